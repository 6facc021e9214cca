package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	s3blob "github.com/openodds/markethub/internal/blob/s3"
	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/lp"
	"github.com/openodds/markethub/internal/market"
	"github.com/openodds/markethub/internal/orderbook"
	"github.com/openodds/markethub/internal/position"
	"github.com/openodds/markethub/internal/settlement"
)

// fakeLedger is a scriptable in-memory LedgerClient. Failures are injected
// per call kind.
type fakeLedger struct {
	mu            sync.Mutex
	balance       int64
	open          map[string]bool // session id -> still open
	transfers     map[string]int64
	failCreate    bool
	failSubmit    bool
	failClose     bool
	failTransfer  bool
	nextSessionID int
}

func newFakeLedger(balance int64) *fakeLedger {
	return &fakeLedger{
		balance:   balance,
		open:      make(map[string]bool),
		transfers: make(map[string]int64),
	}
}

func (f *fakeLedger) GetBalance(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) CreateAppSession(_ context.Context, _ []string, _ []domain.LedgerAllocation, _ string) (domain.AppSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return domain.AppSession{}, errors.New("rpc: create refused")
	}
	f.nextSessionID++
	id := fmt.Sprintf("sess-%d", f.nextSessionID)
	f.open[id] = true
	return domain.AppSession{AppSessionID: id, Version: 1, Status: "open"}, nil
}

func (f *fakeLedger) SubmitAppState(_ context.Context, id, _ string, version uint64, _ []domain.LedgerAllocation, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit {
		return 0, errors.New("rpc: submit refused")
	}
	if !f.open[id] {
		return 0, fmt.Errorf("rpc: session %s not open", id)
	}
	return version, nil
}

func (f *fakeLedger) CloseAppSession(_ context.Context, id string, _ []domain.LedgerAllocation, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClose {
		return errors.New("rpc: close refused")
	}
	delete(f.open, id)
	return nil
}

func (f *fakeLedger) Transfer(_ context.Context, destination, _ string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer {
		return errors.New("rpc: transfer refused")
	}
	f.transfers[destination] += amount
	return nil
}

func (f *fakeLedger) openSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}

// fakeBus captures published events per channel.
type fakeBus struct {
	mu     sync.Mutex
	events map[string][]map[string]any
}

func newFakeBus() *fakeBus {
	return &fakeBus{events: make(map[string][]map[string]any)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	var detail map[string]any
	if err := json.Unmarshal(payload, &detail); err != nil {
		return err
	}
	b.mu.Lock()
	b.events[channel] = append(b.events[channel], detail)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, _ []byte) error { return nil }

func (b *fakeBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) byEvent(channel, event string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, e := range b.events[channel] {
		if e["event"] == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeBlobStore is an in-memory object store implementing both the writer
// and reader sides.
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[path] = body
	f.mu.Unlock()
	return nil
}

func (f *fakeBlobStore) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

func (f *fakeBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("blob: %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *fakeBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []domain.BlobInfo
	for path, body := range f.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{
				Path:         path,
				Size:         int64(len(body)),
				LastModified: time.Now().UTC(),
			})
		}
	}
	return infos, nil
}

// env bundles a full in-memory service stack against one fake ledger.
type env struct {
	ledger  *fakeLedger
	bus     *fakeBus
	blobs   *fakeBlobStore
	markets *market.Manager
	tracker *position.Tracker
	engine  *orderbook.Engine
	pool    *lp.Manager
	coord   *settlement.Coordinator
	bets    *BetService
	orders  *OrderService
	oracle  *OracleService
	pools   *PoolService
}

func testDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := testDiscardLogger()
	ledger := newFakeLedger(10_000 * domain.MicroUnit)
	bus := newFakeBus()
	blobs := newFakeBlobStore()

	markets := market.NewManager(nil, logger)
	tracker := position.NewTracker(nil, logger)
	engine := orderbook.NewEngine(markets, orderbook.Config{})
	pool := lp.NewManager(nil, logger)
	coord := settlement.NewCoordinator(ledger, settlement.Config{
		OperatorAddress: "0xoperator",
		Asset:           "usdc",
	}, logger)
	archiver := s3blob.NewArchiver(blobs, nil)

	e := &env{
		ledger:  ledger,
		bus:     bus,
		blobs:   blobs,
		markets: markets,
		tracker: tracker,
		engine:  engine,
		pool:    pool,
		coord:   coord,
	}
	e.bets = NewBetService(markets, tracker, coord, nil, bus, nil, 0.02, logger)
	e.orders = NewOrderService(engine, tracker, coord, nil, bus, nil, logger)
	e.oracle = NewOracleService(markets, engine, tracker, coord, e.orders, nil, archiver, blobs, bus, nil, logger)
	e.pools = NewPoolService(pool, markets, tracker, coord, bus, nil, logger)
	return e
}

func (e *env) openMarket(t *testing.T, outcomes []string) domain.MarketView {
	t.Helper()
	ctx := context.Background()
	mv, err := e.oracle.CreateMarket(ctx, "game1", "winner", outcomes, 100)
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	mv, err = e.oracle.OpenMarket(ctx, mv.ID)
	if err != nil {
		t.Fatalf("open market: %v", err)
	}
	return mv
}
