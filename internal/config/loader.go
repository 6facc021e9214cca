package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETHUB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETHUB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MARKETHUB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MARKETHUB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MARKETHUB_WALLET_KEY_PASSWORD")

	// ── Clearnode ──
	setStr(&cfg.Clearnode.URL, "MARKETHUB_CLEARNODE_URL")
	setStr(&cfg.Clearnode.Application, "MARKETHUB_CLEARNODE_APPLICATION")
	setStr(&cfg.Clearnode.Asset, "MARKETHUB_CLEARNODE_ASSET")
	setInt(&cfg.Clearnode.ChainID, "MARKETHUB_CLEARNODE_CHAIN_ID")
	setDuration(&cfg.Clearnode.CallTimeout, "MARKETHUB_CLEARNODE_CALL_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETHUB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETHUB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETHUB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETHUB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETHUB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETHUB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETHUB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETHUB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETHUB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETHUB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETHUB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETHUB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETHUB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETHUB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETHUB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETHUB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKETHUB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETHUB_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETHUB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETHUB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETHUB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETHUB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETHUB_S3_FORCE_PATH_STYLE")

	// ── Market ──
	setFloat64(&cfg.Market.FeeRate, "MARKETHUB_MARKET_FEE_RATE")
	setFloat64(&cfg.Market.DefaultLiquidityB, "MARKETHUB_MARKET_DEFAULT_LIQUIDITY_B")

	// ── Orderbook ──
	setBool(&cfg.Orderbook.RejectWashTrades, "MARKETHUB_ORDERBOOK_REJECT_WASH_TRADES")

	// ── Settlement ──
	setStr(&cfg.Settlement.OperatorAddress, "MARKETHUB_SETTLEMENT_OPERATOR_ADDRESS")

	// ── Server ──
	setInt(&cfg.Server.Port, "MARKETHUB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETHUB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARKETHUB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MARKETHUB_SERVER_RATE_LIMIT")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MARKETHUB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
