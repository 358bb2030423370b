package position

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/intent"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/memory"
)

// fakeExecutor delegates to buy/sell funcs; nil funcs fill at price 1.0.
type fakeExecutor struct {
	buy   func(ctx context.Context, mint string, amount float64) (domain.Fill, error)
	sell  func(ctx context.Context, id int64, mint string, qty float64) (domain.Fill, error)
	buys  atomic.Int32
	sells atomic.Int32
}

func (e *fakeExecutor) Buy(ctx context.Context, mint string, amount float64) (domain.Fill, error) {
	e.buys.Add(1)
	if e.buy != nil {
		return e.buy(ctx, mint, amount)
	}
	return domain.Fill{Price: 1.0, Quantity: 100}, nil
}

func (e *fakeExecutor) Sell(ctx context.Context, id int64, mint string, qty float64) (domain.Fill, error) {
	e.sells.Add(1)
	if e.sell != nil {
		return e.sell(ctx, id, mint, qty)
	}
	return domain.Fill{Price: 1.0, Quantity: qty}, nil
}

// fakePrices serves a settable price per mint; unknown mints return a PriceError.
type fakePrices struct {
	mu      sync.Mutex
	prices  map[string]float64
	block   map[string]bool // ignore ctx until release is closed
	release chan struct{}
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		prices:  make(map[string]float64),
		block:   make(map[string]bool),
		release: make(chan struct{}),
	}
}

func (f *fakePrices) set(mint string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[mint] = price
}

func (f *fakePrices) hang(mint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block[mint] = true
}

func (f *fakePrices) CurrentPrice(_ context.Context, mint string) (float64, error) {
	f.mu.Lock()
	price, ok := f.prices[mint]
	blocked := f.block[mint]
	f.mu.Unlock()

	if blocked {
		<-f.release
		return 0, &domain.PriceError{Mint: mint, Err: errors.New("released")}
	}
	if !ok {
		return 0, &domain.PriceError{Mint: mint, Err: errors.New("no quote")}
	}
	return price, nil
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BuyAmountSOL = 1
	cfg.Exit = ExitPolicy{TakeProfitPct: 0.5, StopLossPct: 0.2, MaxHold: time.Minute}
	cfg.TickInterval = 5 * time.Second
	cfg.PriceTimeout = 100 * time.Millisecond
	cfg.BuyTimeout = time.Second
	cfg.BuyRetryDelay = time.Millisecond
	cfg.SellTimeout = time.Second
	cfg.MaxSellRetries = 3
	cfg.DrainTimeout = time.Second
	return cfg
}

type harness struct {
	m       *Manager
	exec    *fakeExecutor
	prices  *fakePrices
	clock   *clock
	journal storage.Journal
}

func newHarness(t *testing.T, cfg Config, exec *fakeExecutor) *harness {
	t.Helper()
	h := &harness{
		exec:    exec,
		prices:  newFakePrices(),
		clock:   &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		journal: memory.NewJournal(),
	}
	m, err := NewManager(Options{
		Config:   cfg,
		RunID:    "test-run",
		Executor: exec,
		Prices:   h.prices,
		Journal:  h.journal,
		Logger:   zerolog.Nop(),
		Now:      h.clock.Now,
	})
	require.NoError(t, err)
	h.m = m
	t.Cleanup(func() { close(h.prices.release) })
	return h
}

// buy feeds an intent and applies the buy result.
func (h *harness) buy(t *testing.T, mint string) *domain.Position {
	t.Helper()
	h.m.handleIntent(intent.Intent{Signal: domain.TradeSignal{Mint: mint, Signature: "sig-" + mint}})
	h.awaitResult(t)
	return h.position(t, h.m.nextID)
}

// awaitResult applies the next execution result, as Run would.
func (h *harness) awaitResult(t *testing.T) {
	t.Helper()
	select {
	case r := <-h.m.results:
		h.m.handleResult(r)
	case <-time.After(2 * time.Second):
		t.Fatal("no execution result")
	}
}

// position returns the persisted snapshot of id.
func (h *harness) position(t *testing.T, id int64) *domain.Position {
	t.Helper()
	p, err := h.journal.Positions.Get(context.Background(), "test-run", id)
	require.NoError(t, err)
	return p
}

func (h *harness) transitions(t *testing.T, id int64) []*domain.Transition {
	t.Helper()
	trs, err := h.journal.Transitions.List(context.Background(), storage.TransitionFilter{PositionID: id})
	require.NoError(t, err)
	return trs
}

// requireLegalPath checks every journaled transition follows the edge table and chains.
func requireLegalPath(t *testing.T, trs []*domain.Transition) {
	t.Helper()
	prev := domain.StatePendingBuy
	for _, tr := range trs {
		require.Equal(t, prev, tr.From, "transitions must chain")
		require.True(t, domain.CanTransition(tr.From, tr.To), "illegal edge %s -> %s", tr.From, tr.To)
		prev = tr.To
	}
}

var errFlaky = errors.New("rpc congested")
