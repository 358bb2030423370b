package position

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/intent"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/memory"
)

const mint = "MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func TestManager_TakeProfitRoundTrip(t *testing.T) {
	exec := &fakeExecutor{
		sell: func(_ context.Context, _ int64, _ string, qty float64) (domain.Fill, error) {
			return domain.Fill{Price: 1.5, Quantity: qty}, nil
		},
	}
	h := newHarness(t, testConfig(), exec)

	p := h.buy(t, mint)
	require.Equal(t, domain.StateOpen, p.State)
	assert.Equal(t, 1.0, p.EntryPrice)
	assert.Equal(t, 100.0, p.Quantity)
	assert.InDelta(t, 1.5, p.TakeProfitPrice, 1e-9)
	assert.InDelta(t, 0.8, p.StopLossPrice, 1e-9)

	h.prices.set(mint, 1.5)
	h.clock.Advance(time.Second)
	h.m.tick(context.Background())

	p = h.position(t, p.ID)
	require.Equal(t, domain.StatePendingSell, p.State)
	assert.Equal(t, domain.ReasonTakeProfit, p.ExitReason)

	h.awaitResult(t)
	p = h.position(t, p.ID)
	assert.Equal(t, domain.StateClosed, p.State)
	assert.Equal(t, domain.ReasonTakeProfit, p.ExitReason)
	assert.InDelta(t, 50.0, p.RealizedPnL, 1e-9)
	assert.False(t, p.ClosedAt.IsZero())
	assert.Empty(t, h.m.Positions(), "closed positions leave the book")

	trs := h.transitions(t, p.ID)
	requireLegalPath(t, trs)
	require.Len(t, trs, 3)
	assert.Equal(t, domain.StateClosed, trs[2].To)
	assert.InDelta(t, 50.0, trs[2].PnL, 1e-9)

	samples, err := h.journal.Samples.GetByPosition(context.Background(), "test-run", p.ID)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1.5, samples[0].Price)
}

func TestManager_StopLoss(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeExecutor{})
	p := h.buy(t, mint)

	h.prices.set(mint, 0.7)
	h.m.tick(context.Background())

	p = h.position(t, p.ID)
	require.Equal(t, domain.StatePendingSell, p.State)
	assert.Equal(t, domain.ReasonStopLoss, p.ExitReason)
	h.awaitResult(t)
	assert.Equal(t, domain.StateClosed, h.position(t, p.ID).State)
}

func TestManager_HoldsBetweenThresholds(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeExecutor{})
	p := h.buy(t, mint)

	h.prices.set(mint, 1.2)
	h.m.tick(context.Background())

	p = h.position(t, p.ID)
	assert.Equal(t, domain.StateOpen, p.State)
	assert.Equal(t, 1.2, p.LastPrice)
	assert.Equal(t, h.clock.Now(), p.LastCheckedAt)
	assert.Equal(t, int32(0), h.exec.sells.Load())
}

func TestManager_SellRetriesBoundedWithCooldown(t *testing.T) {
	exec := &fakeExecutor{
		sell: func(context.Context, int64, string, float64) (domain.Fill, error) {
			return domain.Fill{}, domain.Transient("sell", errFlaky)
		},
	}
	cfg := testConfig()
	h := newHarness(t, cfg, exec)
	p := h.buy(t, mint)
	h.prices.set(mint, 2.0)

	// first attempt
	h.m.tick(context.Background())
	h.awaitResult(t)
	p = h.position(t, p.ID)
	require.Equal(t, domain.StateOpen, p.State)
	assert.Equal(t, 1, p.SellAttempts)
	assert.Equal(t, domain.ReasonNone, p.ExitReason)
	assert.Contains(t, p.LastError, "rpc congested")

	// within the cooldown nothing is evaluated
	h.clock.Advance(cfg.TickInterval / 2)
	h.m.tick(context.Background())
	assert.Equal(t, int32(1), exec.sells.Load())
	assert.Equal(t, domain.StateOpen, h.position(t, p.ID).State)

	// second attempt
	h.clock.Advance(cfg.TickInterval / 2)
	h.m.tick(context.Background())
	h.awaitResult(t)
	require.Equal(t, int32(2), exec.sells.Load())
	require.Equal(t, 2, h.position(t, p.ID).SellAttempts)

	// third attempt exhausts the budget
	h.clock.Advance(cfg.TickInterval)
	h.m.tick(context.Background())
	h.awaitResult(t)

	p = h.position(t, p.ID)
	assert.Equal(t, domain.StateAbandoned, p.State)
	assert.Equal(t, 3, p.SellAttempts)
	assert.Equal(t, int32(3), exec.sells.Load())

	h.clock.Advance(cfg.TickInterval)
	h.m.tick(context.Background())
	assert.Equal(t, int32(3), exec.sells.Load(), "abandoned positions are not sold again")

	trs := h.transitions(t, p.ID)
	requireLegalPath(t, trs)
	assert.Equal(t, domain.ReasonExhausted, trs[len(trs)-1].Reason)
}

func TestManager_RejectedSellAbandons(t *testing.T) {
	exec := &fakeExecutor{
		sell: func(context.Context, int64, string, float64) (domain.Fill, error) {
			return domain.Fill{}, domain.Rejected("sell", assert.AnError)
		},
	}
	h := newHarness(t, testConfig(), exec)
	p := h.buy(t, mint)

	h.prices.set(mint, 2.0)
	h.m.tick(context.Background())
	h.awaitResult(t)

	p = h.position(t, p.ID)
	assert.Equal(t, domain.StateAbandoned, p.State)
	assert.Equal(t, int32(1), exec.sells.Load())

	trs := h.transitions(t, p.ID)
	requireLegalPath(t, trs)
	assert.Equal(t, domain.ReasonRejected, trs[len(trs)-1].Reason)
}

func TestManager_BuyOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		buy       func(calls int32) (domain.Fill, error)
		wantState domain.PositionState
		wantCalls int32
	}{
		{
			name: "rejected is not retried",
			buy: func(int32) (domain.Fill, error) {
				return domain.Fill{}, domain.Rejected("buy", assert.AnError)
			},
			wantState: domain.StateFailed,
			wantCalls: 1,
		},
		{
			name: "timeout is not retried",
			buy: func(int32) (domain.Fill, error) {
				return domain.Fill{}, domain.Timeout("buy", assert.AnError)
			},
			wantState: domain.StateFailed,
			wantCalls: 1,
		},
		{
			name: "transient retried up to the attempt limit",
			buy: func(int32) (domain.Fill, error) {
				return domain.Fill{}, domain.Transient("buy", errFlaky)
			},
			wantState: domain.StateFailed,
			wantCalls: 2,
		},
		{
			name: "transient then filled",
			buy: func(calls int32) (domain.Fill, error) {
				if calls == 1 {
					return domain.Fill{}, domain.Transient("buy", errFlaky)
				}
				return domain.Fill{Price: 2, Quantity: 0.5}, nil
			},
			wantState: domain.StateOpen,
			wantCalls: 2,
		},
		{
			name: "zero price fill is rejected",
			buy: func(int32) (domain.Fill, error) {
				return domain.Fill{Price: 0, Quantity: 10}, nil
			},
			wantState: domain.StateFailed,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			exec := &fakeExecutor{
				buy: func(context.Context, string, float64) (domain.Fill, error) {
					return tt.buy(calls.Add(1))
				},
			}
			h := newHarness(t, testConfig(), exec)
			p := h.buy(t, mint)

			assert.Equal(t, tt.wantState, p.State)
			assert.Equal(t, tt.wantCalls, exec.buys.Load())
			if tt.wantState == domain.StateFailed {
				assert.NotEmpty(t, p.LastError)
				assert.False(t, p.ClosedAt.IsZero())
				assert.Empty(t, h.m.Positions())
			}
			requireLegalPath(t, h.transitions(t, p.ID))
		})
	}
}

func TestManager_BuyFailureRecordsAttempts(t *testing.T) {
	exec := &fakeExecutor{
		buy: func(context.Context, string, float64) (domain.Fill, error) {
			return domain.Fill{}, domain.Transient("buy", errFlaky)
		},
	}
	h := newHarness(t, testConfig(), exec)
	p := h.buy(t, mint)

	assert.Contains(t, p.LastError, "after 2 attempts")
}

func TestManager_CapacityLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositions = 1
	h := newHarness(t, cfg, &fakeExecutor{})

	first := h.buy(t, mint)
	require.Equal(t, domain.StateOpen, first.State)

	h.m.handleIntent(intent.Intent{Signal: domain.TradeSignal{Mint: "MintB", Signature: "sig-b"}})
	second := h.position(t, h.m.nextID)

	assert.Equal(t, domain.StateFailed, second.State)
	assert.Equal(t, int32(1), h.exec.buys.Load())
	assert.Equal(t, 0, h.m.inflight)

	trs := h.transitions(t, second.ID)
	require.Len(t, trs, 1)
	assert.Equal(t, domain.ReasonCapacity, trs[0].Reason)
}

func TestManager_PriceErrorSkipsPosition(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, &fakeExecutor{})
	p := h.buy(t, mint)

	// Max hold has elapsed, but without a price nothing is triggered.
	h.clock.Advance(2 * cfg.Exit.MaxHold)
	h.m.tick(context.Background())

	p = h.position(t, p.ID)
	assert.Equal(t, domain.StateOpen, p.State)
	assert.True(t, p.LastCheckedAt.IsZero())
	assert.Equal(t, int32(0), h.exec.sells.Load())

	h.prices.set(mint, 1.0)
	h.m.tick(context.Background())
	p = h.position(t, p.ID)
	assert.Equal(t, domain.StatePendingSell, p.State)
	assert.Equal(t, domain.ReasonTimeout, p.ExitReason)
	h.awaitResult(t)
}

func TestManager_SlowPriceSourceIsBounded(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, &fakeExecutor{})
	p := h.buy(t, mint)

	other := h.buy(t, "MintB")
	h.prices.set("MintB", 1.0)
	h.prices.hang(mint)

	start := time.Now()
	h.m.tick(context.Background())
	assert.Less(t, time.Since(start), 10*cfg.PriceTimeout)

	assert.Equal(t, domain.StateOpen, h.position(t, p.ID).State)
	assert.True(t, h.position(t, p.ID).LastCheckedAt.IsZero())
	assert.False(t, h.position(t, other.ID).LastCheckedAt.IsZero(), "other positions are still evaluated")
}

func TestManager_RunDrainsOnClose(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeExecutor{})
	intents := make(chan intent.Intent, 1)
	ticks := make(chan time.Time)
	h.m.ticks = ticks

	done := make(chan error, 1)
	go func() { done <- h.m.Run(context.Background(), intents) }()

	intents <- intent.Intent{Signal: domain.TradeSignal{Mint: mint, Signature: "sig"}}
	require.Eventually(t, func() bool {
		ps := h.m.Positions()
		return len(ps) == 1 && ps[0].State == domain.StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	close(intents)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	open, err := h.journal.Positions.List(context.Background(), storage.PositionFilter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.StateOpen, open[0].State)
}

func TestManager_RunCancelsStuckSellAfterDrainTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	sellCtxDone := make(chan struct{})
	exec := &fakeExecutor{
		sell: func(ctx context.Context, _ int64, _ string, _ float64) (domain.Fill, error) {
			<-ctx.Done()
			close(sellCtxDone)
			return domain.Fill{}, domain.Timeout("sell", ctx.Err())
		},
	}
	h := newHarness(t, cfg, exec)
	intents := make(chan intent.Intent, 1)
	ticks := make(chan time.Time)
	h.m.ticks = ticks

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx, intents) }()

	intents <- intent.Intent{Signal: domain.TradeSignal{Mint: mint, Signature: "sig"}}
	require.Eventually(t, func() bool {
		ps := h.m.Positions()
		return len(ps) == 1 && ps[0].State == domain.StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	h.prices.set(mint, 3.0)
	ticks <- time.Now()
	require.Eventually(t, func() bool {
		ps := h.m.Positions()
		return len(ps) == 1 && ps[0].State == domain.StatePendingSell
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	select {
	case <-sellCtxDone:
	case <-time.After(time.Second):
		t.Fatal("in-flight sell was not cancelled")
	}
	ps := h.m.Positions()
	require.Len(t, ps, 1)
	assert.Equal(t, domain.StatePendingSell, ps[0].State)
	assert.Equal(t, domain.StatePendingSell, h.position(t, ps[0].ID).State)
}

func TestManager_DrainLogsQueuedIntents(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeExecutor{})
	intents := make(chan intent.Intent, 2)
	intents <- intent.Intent{Signal: domain.TradeSignal{Mint: "MintA"}}
	intents <- intent.Intent{Signal: domain.TradeSignal{Mint: "MintB"}}

	require.NoError(t, h.m.drain(intents))

	assert.Empty(t, intents)
	assert.Equal(t, int32(0), h.exec.buys.Load(), "queued intents are not bought at shutdown")
	assert.Empty(t, h.m.Positions())
}

func TestManager_CancelledRunBuysNothingQueued(t *testing.T) {
	for run := 0; run < 20; run++ {
		h := newHarness(t, testConfig(), &fakeExecutor{})
		h.m.ticks = make(chan time.Time)
		intents := make(chan intent.Intent, 50)
		for i := 0; i < cap(intents); i++ {
			intents <- intent.Intent{Signal: domain.TradeSignal{Mint: mint, Signature: "sig"}}
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, h.m.Run(ctx, intents))

		assert.Equal(t, int32(0), h.exec.buys.Load(), "run %d bought after cancellation", run)
		assert.Empty(t, intents, "queued intents are drained and logged")
		assert.Empty(t, h.m.Positions())
	}
}

func TestManager_StopBuyingKeepsSupervising(t *testing.T) {
	exec := &fakeExecutor{
		sell: func(_ context.Context, _ int64, _ string, qty float64) (domain.Fill, error) {
			return domain.Fill{Price: 2, Quantity: qty}, nil
		},
	}
	h := newHarness(t, testConfig(), exec)
	ticks := make(chan time.Time)
	h.m.ticks = ticks
	intents := make(chan intent.Intent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx, intents) }()

	intents <- intent.Intent{Signal: domain.TradeSignal{Mint: mint, Signature: "sig-1"}}
	require.Eventually(t, func() bool {
		ps := h.m.Positions()
		return len(ps) == 1 && ps[0].State == domain.StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.m.StopBuying(ctx))
	intents <- intent.Intent{Signal: domain.TradeSignal{Mint: "MintB", Signature: "sig-2"}}
	// A second command is only accepted once the intent above was handled.
	require.NoError(t, h.m.StopBuying(ctx))

	all, err := h.journal.Positions.List(context.Background(), storage.PositionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "no position for intents after stop")
	assert.Equal(t, int32(1), exec.buys.Load())

	h.prices.set(mint, 2.0)
	ticks <- time.Now()
	require.Eventually(t, func() bool { return len(h.m.Positions()) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.StateClosed, h.position(t, 1).State, "exits still run after stop")

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, h.m.SellAll(context.Background()), ErrStopped)
}

func TestManager_SellAll(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeExecutor{})
	first := h.buy(t, mint)
	second := h.buy(t, "MintB")
	h.m.cooldown[second.ID] = h.clock.Now().Add(time.Hour)

	h.m.handleCommand(cmdSellAll)
	for _, id := range []int64{first.ID, second.ID} {
		p := h.position(t, id)
		assert.Equal(t, domain.StatePendingSell, p.State)
		assert.Equal(t, domain.ReasonManual, p.ExitReason)
	}

	h.awaitResult(t)
	h.awaitResult(t)
	for _, id := range []int64{first.ID, second.ID} {
		p := h.position(t, id)
		assert.Equal(t, domain.StateClosed, p.State)
		assert.Equal(t, domain.ReasonManual, p.ExitReason)
		requireLegalPath(t, h.transitions(t, id))
	}
	assert.Equal(t, int32(2), h.exec.sells.Load())
}

// silentChain never reports a landed transaction.
type silentChain struct{}

func (silentChain) GetSignatureStatuses(context.Context, []string) ([]*solana.SignatureStatus, error) {
	return nil, nil
}

func (silentChain) GetTransaction(context.Context, string) (*solana.Transaction, error) {
	return nil, nil
}

func TestManager_UnacknowledgedLiveBuyIsNotResubmitted(t *testing.T) {
	var posts atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"signature":"sig-1"`))
	}))
	t.Cleanup(api.Close)

	prices := newFakePrices()
	prices.set(mint, 1.0)
	t.Cleanup(func() { close(prices.release) })
	journal := memory.NewJournal()
	exec := execution.NewPumpPortalExecutor(execution.PumpPortalConfig{
		APIURL:          api.URL,
		ConfirmInterval: time.Millisecond,
	}, silentChain{}, prices, zerolog.Nop())

	cfg := testConfig()
	require.Greater(t, cfg.MaxBuyAttempts, 1)
	m, err := NewManager(Options{
		Config:   cfg,
		RunID:    "test-run",
		Executor: exec,
		Prices:   prices,
		Journal:  journal,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	m.handleIntent(intent.Intent{Signal: domain.TradeSignal{Mint: mint, Signature: "sig"}})
	select {
	case r := <-m.results:
		m.handleResult(r)
	case <-time.After(2 * time.Second):
		t.Fatal("no execution result")
	}

	assert.Equal(t, int32(1), posts.Load(), "a trade the API may have accepted is never sent twice")
	p, err := journal.Positions.Get(context.Background(), "test-run", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, p.State)
	assert.Contains(t, p.LastError, domain.ErrOutcomeUnknown.Error())
}

func TestManager_UnclassifiedSellErrorIsRetried(t *testing.T) {
	exec := &fakeExecutor{
		sell: func(context.Context, int64, string, float64) (domain.Fill, error) {
			return domain.Fill{}, errFlaky
		},
	}
	h := newHarness(t, testConfig(), exec)
	p := h.buy(t, mint)

	h.prices.set(mint, 0.5)
	h.m.tick(context.Background())
	h.awaitResult(t)

	p = h.position(t, p.ID)
	assert.Equal(t, domain.StateOpen, p.State)
	assert.Equal(t, 1, p.SellAttempts)
}

func TestNewManager_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 0
	_, err := NewManager(Options{Config: cfg, Executor: &fakeExecutor{}, Prices: newFakePrices(), Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewManager(Options{Config: testConfig(), Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
