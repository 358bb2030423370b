// Package position owns open positions: it buys on intents, supervises exits on a fixed tick
// and sells through the configured executor.
package position

import (
	"fmt"
	"time"

	"solana-sniper/internal/domain"
)

// ExitPolicy holds the exit thresholds applied to every open position.
type ExitPolicy struct {
	TakeProfitPct float64       // e.g. 0.5 = +50%
	StopLossPct   float64       // e.g. 0.2 = -20%
	MaxHold       time.Duration // 0 disables the timeout exit
}

// Validate checks the thresholds.
func (p ExitPolicy) Validate() error {
	if p.TakeProfitPct <= 0 {
		return fmt.Errorf("take_profit_pct must be positive, got %v", p.TakeProfitPct)
	}
	if p.StopLossPct <= 0 || p.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in (0, 1), got %v", p.StopLossPct)
	}
	if p.MaxHold < 0 {
		return fmt.Errorf("max_hold must not be negative, got %v", p.MaxHold)
	}
	return nil
}

// Targets returns take-profit and stop-loss prices for an entry.
func (p ExitPolicy) Targets(entry float64) (takeProfit, stopLoss float64) {
	return entry * (1 + p.TakeProfitPct), entry * (1 - p.StopLossPct)
}

// Evaluate returns the exit reason for an open position at price and now,
// or ReasonNone. Checks run stop-loss first, then take-profit, then timeout.
func (p ExitPolicy) Evaluate(pos *domain.Position, price float64, now time.Time) domain.ExitReason {
	if price <= pos.StopLossPrice {
		return domain.ReasonStopLoss
	}
	if price >= pos.TakeProfitPrice {
		return domain.ReasonTakeProfit
	}
	if p.MaxHold > 0 && !pos.OpenedAt.IsZero() && now.Sub(pos.OpenedAt) >= p.MaxHold {
		return domain.ReasonTimeout
	}
	return domain.ReasonNone
}
