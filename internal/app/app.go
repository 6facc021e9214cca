// Package app provides the top-level application lifecycle management for the
// market hub. It wires together all dependencies (stores, caches, blob
// storage, the settlement ledger, services, and the API server) and runs them
// until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openodds/markethub/internal/config"
	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/lp"
	"github.com/openodds/markethub/internal/market"
	"github.com/openodds/markethub/internal/orderbook"
	"github.com/openodds/markethub/internal/position"
	"github.com/openodds/markethub/internal/server"
	"github.com/openodds/markethub/internal/server/handler"
	"github.com/openodds/markethub/internal/server/ws"
	"github.com/openodds/markethub/internal/service"
	"github.com/openodds/markethub/internal/settlement"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, warm-starts the
// in-memory state from storage, starts the API server and WebSocket hub, and
// blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// --- Domain managers, warm-started from storage ---
	markets := market.NewManager(deps.MarketStore, a.logger)
	if err := markets.Load(ctx); err != nil {
		return fmt.Errorf("app: load markets: %w", err)
	}

	live := markets.List()
	liveIDs := make([]string, 0, len(live))
	for _, mv := range live {
		liveIDs = append(liveIDs, mv.ID)
	}

	tracker := position.NewTracker(deps.PositionStore, a.logger)
	if err := tracker.Load(ctx, liveIDs); err != nil {
		return fmt.Errorf("app: load positions: %w", err)
	}

	pool := lp.NewManager(deps.LPStore, a.logger)
	if err := pool.Load(ctx); err != nil {
		return fmt.Errorf("app: load lp shares: %w", err)
	}

	engine := orderbook.NewEngine(markets, orderbook.Config{
		RejectWashTrades: a.cfg.Orderbook.RejectWashTrades,
	})
	a.restoreBooks(ctx, deps, engine, live)

	coordinator := settlement.NewCoordinator(deps.Ledger, settlement.Config{
		OperatorAddress: a.cfg.Settlement.OperatorAddress,
		Asset:           a.cfg.Clearnode.Asset,
		CallTimeout:     a.cfg.Clearnode.CallTimeout.Duration,
	}, a.logger)

	// --- Services ---
	bets := service.NewBetService(markets, tracker, coordinator,
		deps.PriceCache, deps.SignalBus, deps.AuditStore,
		a.cfg.Market.FeeRate, a.logger)
	orders := service.NewOrderService(engine, tracker, coordinator,
		deps.OrderStore, deps.SignalBus, deps.AuditStore, a.logger)
	oracle := service.NewOracleService(markets, engine, tracker, coordinator,
		orders, deps.LockManager, deps.Archiver, deps.BlobReader,
		deps.SignalBus, deps.AuditStore, a.logger)
	pools := service.NewPoolService(pool, markets, tracker, coordinator,
		deps.SignalBus, deps.AuditStore, a.logger)
	prices := service.NewPriceService(markets, deps.PriceCache, a.logger)

	// --- HTTP + WebSocket server ---
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		StartedAt: time.Now().UTC(),
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Markets:   handler.NewMarketHandler(markets, prices, a.logger),
		Oracle:    handler.NewOracleHandler(oracle, a.cfg.Market.DefaultLiquidityB, a.logger),
		Bets:      handler.NewBetHandler(bets, a.logger),
		Orders:    handler.NewOrderHandler(orders, a.logger),
		Positions: handler.NewPositionHandler(tracker, a.logger),
		Pool:      handler.NewPoolHandler(pools, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// restoreBooks reseeds each open market's order book with the resting orders
// persisted before the last shutdown. Failures leave the market with an empty
// book rather than blocking startup.
func (a *App) restoreBooks(ctx context.Context, deps *Dependencies, engine *orderbook.Engine, live []domain.MarketView) {
	for _, mv := range live {
		if mv.Status != domain.MarketStatusOpen {
			continue
		}
		resting, err := deps.OrderStore.ListOpenByMarket(ctx, mv.ID)
		if err != nil {
			a.logger.WarnContext(ctx, "failed to load resting orders",
				slog.String("market_id", mv.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(resting) == 0 {
			continue
		}
		if err := engine.Restore(mv.ID, resting); err != nil {
			a.logger.WarnContext(ctx, "failed to restore order book",
				slog.String("market_id", mv.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "restored order book",
			slog.String("market_id", mv.ID),
			slog.Int("orders", len(resting)),
		)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
