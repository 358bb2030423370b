package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"solana-sniper/internal/domain"
)

func TestExitPolicy_Evaluate(t *testing.T) {
	policy := ExitPolicy{TakeProfitPct: 0.5, StopLossPct: 0.2, MaxHold: time.Minute}
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tp, sl := policy.Targets(1.0)
	pos := &domain.Position{TakeProfitPrice: tp, StopLossPrice: sl, OpenedAt: opened}

	tests := []struct {
		name  string
		price float64
		at    time.Duration
		want  domain.ExitReason
	}{
		{"hold", 1.1, time.Second, domain.ReasonNone},
		{"take profit at threshold", 1.5, time.Second, domain.ReasonTakeProfit},
		{"stop loss at threshold", 0.8, time.Second, domain.ReasonStopLoss},
		{"timeout", 1.0, time.Minute, domain.ReasonTimeout},
		{"stop loss beats timeout", 0.5, 2 * time.Minute, domain.ReasonStopLoss},
		{"take profit beats timeout", 2.0, 2 * time.Minute, domain.ReasonTakeProfit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Evaluate(pos, tt.price, opened.Add(tt.at)))
		})
	}
}

func TestExitPolicy_StopLossPrecedence(t *testing.T) {
	// Thresholds overlap so one price crosses both.
	pos := &domain.Position{TakeProfitPrice: 1.0, StopLossPrice: 1.2, OpenedAt: time.Unix(0, 0)}
	policy := ExitPolicy{TakeProfitPct: 0.5, StopLossPct: 0.2, MaxHold: time.Second}

	assert.Equal(t, domain.ReasonStopLoss, policy.Evaluate(pos, 1.1, time.Unix(3600, 0)))
}

func TestExitPolicy_Validate(t *testing.T) {
	assert.NoError(t, ExitPolicy{TakeProfitPct: 1, StopLossPct: 0.5}.Validate())
	assert.Error(t, ExitPolicy{TakeProfitPct: 0, StopLossPct: 0.5}.Validate())
	assert.Error(t, ExitPolicy{TakeProfitPct: 1, StopLossPct: 1}.Validate())
	assert.Error(t, ExitPolicy{TakeProfitPct: 1, StopLossPct: 0.5, MaxHold: -time.Second}.Validate())
}

func TestOrderBook_InsertionOrder(t *testing.T) {
	b := newOrderBook()
	for _, id := range []int64{3, 1, 2} {
		b.add(&domain.Position{ID: id})
	}
	b.add(&domain.Position{ID: 1}) // duplicate ignored
	b.remove(1)
	b.remove(42)

	var got []int64
	b.each(func(p *domain.Position) { got = append(got, p.ID) })
	assert.Equal(t, []int64{3, 2}, got)
	assert.Equal(t, 2, b.len())

	snap := b.snapshot()
	snap[0].State = domain.StateClosed
	p, _ := b.get(3)
	assert.NotEqual(t, domain.StateClosed, p.State, "snapshot is a copy")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxSellRetries = 0
	cfg.BuyAmountSOL = 0
	err := cfg.Validate()
	assert.ErrorContains(t, err, "max_sell_retries")
	assert.ErrorContains(t, err, "buy_amount_sol")
}
