package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/openodds/markethub/internal/blob/s3"
	"github.com/openodds/markethub/internal/cache/redis"
	"github.com/openodds/markethub/internal/config"
	"github.com/openodds/markethub/internal/crypto"
	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/platform/clearnode"
	"github.com/openodds/markethub/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency that the application
// needs to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	OrderStore    domain.OrderStore
	PositionStore domain.PositionStore
	LPStore       domain.LPStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Settlement ledger
	Ledger domain.LedgerClient
	Signer *crypto.Signer
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.LPStore = postgres.NewLPStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })

	deps.BlobWriter = s3blob.NewWriter(s3Client)
	deps.BlobReader = s3blob.NewReader(s3Client)
	deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.AuditStore)

	// --- Clearnode settlement ledger ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, cfg.Clearnode.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	deps.Signer = signer

	ledger := clearnode.NewClient(clearnode.Config{
		URL:         cfg.Clearnode.URL,
		Application: cfg.Clearnode.Application,
		Asset:       cfg.Clearnode.Asset,
		CallTimeout: cfg.Clearnode.CallTimeout.Duration,
	}, signer, logger)
	if err := ledger.Connect(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: clearnode: %w", err)
	}
	closers = append(closers, func() { _ = ledger.Close() })
	deps.Ledger = ledger

	return deps, cleanup, nil
}
