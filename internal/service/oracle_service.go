package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/market"
	"github.com/openodds/markethub/internal/orderbook"
	"github.com/openodds/markethub/internal/position"
	"github.com/openodds/markethub/internal/settlement"
)

// oracleLockTTL bounds how long a replica may hold a market's oracle lock.
const oracleLockTTL = 30 * time.Second

// OracleService owns market lifecycle actions: create, open, close, and the
// terminal resolve-and-payout flow. Every action on one market runs under a
// distributed lock so concurrent oracle requests (or replicas) serialize.
type OracleService struct {
	markets     *market.Manager
	engine      *orderbook.Engine
	tracker     *position.Tracker
	coordinator *settlement.Coordinator
	orders      *OrderService
	locks       domain.LockManager
	archiver    domain.Archiver
	archives    domain.BlobReader
	bus         domain.SignalBus
	audit       domain.AuditStore
	logger      *slog.Logger
}

// NewOracleService creates an OracleService. locks, archiver, and archives
// may be nil (single-replica operation, no cold storage).
func NewOracleService(
	markets *market.Manager,
	engine *orderbook.Engine,
	tracker *position.Tracker,
	coordinator *settlement.Coordinator,
	orders *OrderService,
	locks domain.LockManager,
	archiver domain.Archiver,
	archives domain.BlobReader,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OracleService {
	return &OracleService{
		markets:     markets,
		engine:      engine,
		tracker:     tracker,
		coordinator: coordinator,
		orders:      orders,
		locks:       locks,
		archiver:    archiver,
		archives:    archives,
		bus:         bus,
		audit:       audit,
		logger:      logger.With(slog.String("component", "oracle_service")),
	}
}

// withLock serializes oracle actions per market across replicas.
func (s *OracleService) withLock(ctx context.Context, marketID string, fn func() error) error {
	if s.locks == nil {
		return fn()
	}
	unlock, err := s.locks.Acquire(ctx, "oracle:"+marketID, oracleLockTTL)
	if err != nil {
		return fmt.Errorf("oracle_service: acquire lock for %s: %w", marketID, err)
	}
	defer unlock()
	return fn()
}

// CreateMarket allocates a new PENDING market.
func (s *OracleService) CreateMarket(ctx context.Context, gameID, categoryID string, outcomes []string, b float64) (domain.MarketView, error) {
	mv, err := s.markets.Create(ctx, gameID, categoryID, outcomes, b)
	if err != nil {
		return domain.MarketView{}, err
	}
	s.publishStatus(ctx, mv)
	auditLog(ctx, s.audit, s.logger, "market_created", map[string]any{
		"market_id": mv.ID,
		"game_id":   gameID,
		"category":  categoryID,
		"outcomes":  outcomes,
	})
	return mv, nil
}

// OpenMarket transitions PENDING -> OPEN.
func (s *OracleService) OpenMarket(ctx context.Context, marketID string) (domain.MarketView, error) {
	var mv domain.MarketView
	err := s.withLock(ctx, marketID, func() error {
		var err error
		mv, err = s.markets.Open(ctx, marketID)
		return err
	})
	if err != nil {
		return domain.MarketView{}, err
	}
	s.publishStatus(ctx, mv)
	auditLog(ctx, s.audit, s.logger, "market_opened", map[string]any{"market_id": marketID})
	return mv, nil
}

// CloseMarket transitions OPEN -> CLOSED and cancels every resting P2P order
// on the market, handing unfilled notionals back through their sessions.
func (s *OracleService) CloseMarket(ctx context.Context, marketID string) (domain.MarketView, error) {
	var mv domain.MarketView
	err := s.withLock(ctx, marketID, func() error {
		open, err := s.engine.OpenOrders(marketID)
		if err != nil {
			return err
		}
		if mv, err = s.markets.Close(ctx, marketID); err != nil {
			return err
		}
		for _, o := range open {
			if _, err := s.orders.CancelOrder(ctx, o.OrderID); err != nil {
				s.logger.WarnContext(ctx, "cancel on close failed",
					slog.String("market_id", marketID),
					slog.String("order_id", o.OrderID),
					slog.String("error", err.Error()),
				)
			}
		}
		return nil
	})
	if err != nil {
		return domain.MarketView{}, err
	}
	s.publishStatus(ctx, mv)
	auditLog(ctx, s.audit, s.logger, "market_closed", map[string]any{"market_id": marketID})
	return mv, nil
}

// ResolutionResult reports the terminal resolve-and-payout flow.
type ResolutionResult struct {
	Market  domain.MarketView
	Report  domain.ResolutionReport
	Settled int
	Failed  int
	Cleared int
}

// ResolveMarket resolves a CLOSED market to the winning outcome, classifies
// every position, settles them against the ledger, archives the resolution,
// and clears the live position set. The resolution is terminal: positions
// are cleared regardless of individual settlement failures, which are
// reported as partial success.
func (s *OracleService) ResolveMarket(ctx context.Context, marketID, outcome string) (ResolutionResult, error) {
	var result ResolutionResult
	err := s.withLock(ctx, marketID, func() error {
		mv, err := s.markets.Resolve(ctx, marketID, outcome)
		if err != nil {
			return err
		}
		result.Market = mv
		result.Report = s.tracker.Classify(marketID, outcome)

		// Sessions move to settling before the ledger is touched so a
		// crash mid-payout is visible in the persisted state.
		for _, oc := range result.Report.Outcomes {
			if _, err := s.tracker.AdvanceSession(ctx, oc.Position.ID,
				oc.Position.AppSessionVersion, "", domain.SessionStatusSettling); err != nil {
				s.logger.WarnContext(ctx, "mark settling failed",
					slog.String("position_id", oc.Position.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		payout := s.coordinator.SettleResolution(ctx, result.Report)
		result.Settled = payout.Settled
		result.Failed = payout.Failed

		if s.archiver != nil {
			if path, err := s.archiver.ArchiveResolution(ctx, mv.Market, result.Report); err != nil {
				s.logger.WarnContext(ctx, "archive resolution failed",
					slog.String("market_id", marketID),
					slog.String("error", err.Error()),
				)
			} else {
				s.logger.InfoContext(ctx, "resolution archived",
					slog.String("market_id", marketID),
					slog.String("path", path),
				)
			}
		}

		result.Cleared, err = s.tracker.ClearMarket(ctx, marketID)
		return err
	})
	if err != nil {
		return ResolutionResult{}, err
	}

	s.publishStatus(ctx, result.Market)
	publish(ctx, s.bus, s.logger, domain.ChannelPositions, map[string]any{
		"event":        "market_resolved",
		"market_id":    marketID,
		"winner":       outcome,
		"winners":      result.Report.Winners,
		"losers":       result.Report.Losers,
		"total_payout": result.Report.TotalPayout,
	})
	auditLog(ctx, s.audit, s.logger, "market_resolved", map[string]any{
		"market_id":    marketID,
		"winner":       outcome,
		"winners":      result.Report.Winners,
		"losers":       result.Report.Losers,
		"total_payout": result.Report.TotalPayout,
		"failed":       result.Failed,
	})
	return result, nil
}

// ResolutionArchive streams the cold-storage record of a resolved market.
// The caller closes the returned reader.
func (s *OracleService) ResolutionArchive(ctx context.Context, marketID string) (io.ReadCloser, error) {
	if s.archives == nil {
		return nil, fmt.Errorf("oracle_service: archive %s: no archive store: %w", marketID, domain.ErrNotFound)
	}
	rc, err := s.archives.Get(ctx, domain.ResolutionArchivePath(marketID))
	if err != nil {
		return nil, fmt.Errorf("oracle_service: archive %s: %w", marketID, err)
	}
	return rc, nil
}

// ListResolutionArchives returns metadata for every archived resolution.
func (s *OracleService) ListResolutionArchives(ctx context.Context) ([]domain.BlobInfo, error) {
	if s.archives == nil {
		return nil, nil
	}
	infos, err := s.archives.List(ctx, domain.ResolutionArchivePrefix)
	if err != nil {
		return nil, fmt.Errorf("oracle_service: list archives: %w", err)
	}
	return infos, nil
}

// FundAccounts transfers amount to every destination through the ledger,
// returning how many transfers completed. A partial failure reports the
// first error alongside the completed count.
func (s *OracleService) FundAccounts(ctx context.Context, destinations []string, amount float64) (int, error) {
	if len(destinations) == 0 {
		return 0, fmt.Errorf("oracle_service: no destinations: %w", domain.ErrValidation)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("oracle_service: fund amount %g: %w", amount, domain.ErrValidation)
	}
	completed, err := s.coordinator.Fund(ctx, destinations, amount)
	auditLog(ctx, s.audit, s.logger, "accounts_funded", map[string]any{
		"requested": len(destinations),
		"funded":    completed,
		"amount":    amount,
	})
	return completed, err
}

func (s *OracleService) publishStatus(ctx context.Context, mv domain.MarketView) {
	publish(ctx, s.bus, s.logger, domain.ChannelMarkets, map[string]any{
		"event":     domain.EventMarketStatus,
		"market_id": mv.ID,
		"status":    string(mv.Status),
		"prices":    mv.Prices,
	})
}
