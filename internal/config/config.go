// Package config defines the top-level configuration for the market hub
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETHUB_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Clearnode  ClearnodeConfig  `toml:"clearnode"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Market     MarketConfig     `toml:"market"`
	Orderbook  OrderbookConfig  `toml:"orderbook"`
	Settlement SettlementConfig `toml:"settlement"`
	Server     ServerConfig     `toml:"server"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the operator's Ethereum signing key. Exactly one of
// PrivateKey or EncryptedKeyPath must be set.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ClearnodeConfig holds the off-chain ledger connection parameters.
type ClearnodeConfig struct {
	URL         string   `toml:"url"`
	Application string   `toml:"application"`
	Asset       string   `toml:"asset"`
	ChainID     int      `toml:"chain_id"`
	CallTimeout duration `toml:"call_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for resolution
// archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketConfig holds LMSR market-maker parameters.
type MarketConfig struct {
	// FeeRate is the fraction of each bet taken as operator fee, in [0, 1).
	FeeRate float64 `toml:"fee_rate"`
	// DefaultLiquidityB is the LMSR liquidity parameter used when a market
	// is created without an explicit value.
	DefaultLiquidityB float64 `toml:"default_liquidity_b"`
}

// OrderbookConfig holds peer-to-peer matching parameters.
type OrderbookConfig struct {
	// RejectWashTrades refuses matches where both sides belong to the same
	// address.
	RejectWashTrades bool `toml:"reject_wash_trades"`
}

// SettlementConfig holds ledger settlement parameters.
type SettlementConfig struct {
	// OperatorAddress receives losing stakes and pays winning positions.
	OperatorAddress string `toml:"operator_address"`
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is the per-client request budget per minute; 0 disables it.
	RateLimit int `toml:"rate_limit"`
}

// duration wraps time.Duration so TOML can decode strings like "15s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Clearnode: ClearnodeConfig{
			URL:         "wss://clearnet.yellow.com/ws",
			Application: "markethub",
			Asset:       "usdc",
			ChainID:     137,
			CallTimeout: duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "markethub",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "markethub-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Market: MarketConfig{
			FeeRate:           0.02,
			DefaultLiquidityB: 100,
		},
		Orderbook: OrderbookConfig{
			RejectWashTrades: false,
		},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 300,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — exactly one credential source.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Clearnode
	if c.Clearnode.URL == "" {
		errs = append(errs, "clearnode: url must not be empty")
	}
	if c.Clearnode.Asset == "" {
		errs = append(errs, "clearnode: asset must not be empty")
	}
	if c.Clearnode.ChainID <= 0 {
		errs = append(errs, fmt.Sprintf("clearnode: chain_id must be positive, got %d", c.Clearnode.ChainID))
	}
	if c.Clearnode.CallTimeout.Duration < 0 {
		errs = append(errs, "clearnode: call_timeout must not be negative")
	}

	// Postgres — a DSN or host/database pair.
	if c.Postgres.DSN == "" {
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			errs = append(errs, "postgres: either dsn or host+database must be set")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
	}
	if c.Postgres.PoolMaxConns < c.Postgres.PoolMinConns {
		errs = append(errs, "postgres: pool_max_conns must be >= pool_min_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// Market
	if c.Market.FeeRate < 0 || c.Market.FeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("market: fee_rate %g outside [0, 1)", c.Market.FeeRate))
	}
	if c.Market.DefaultLiquidityB <= 0 {
		errs = append(errs, fmt.Sprintf("market: default_liquidity_b must be positive, got %g", c.Market.DefaultLiquidityB))
	}

	// Settlement
	if c.Settlement.OperatorAddress == "" {
		errs = append(errs, "settlement: operator_address must not be empty")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
