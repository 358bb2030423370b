// Package execution adapts trade executors and price sources for the position manager.
package execution

import (
	"context"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
)

// Executor performs buys and sells. Errors are *domain.ExecutionError values
// distinguishing permanent rejections from retryable failures.
type Executor interface {
	// Buy spends amountSOL on mint.
	Buy(ctx context.Context, mint string, amountSOL float64) (domain.Fill, error)

	// Sell disposes of quantity tokens of mint held by a position.
	Sell(ctx context.Context, positionID int64, mint string, quantity float64) (domain.Fill, error)
}

// PriceSource quotes the current price of a mint in SOL per token.
// Errors are *domain.PriceError values.
type PriceSource interface {
	CurrentPrice(ctx context.Context, mint string) (float64, error)
}

// Instrumented records latency and outcome of every executor call.
type Instrumented struct {
	next Executor
}

// NewInstrumented wraps next with metrics.
func NewInstrumented(next Executor) *Instrumented {
	return &Instrumented{next: next}
}

// Buy implements Executor.
func (e *Instrumented) Buy(ctx context.Context, mint string, amountSOL float64) (domain.Fill, error) {
	start := time.Now()
	fill, err := e.next.Buy(ctx, mint, amountSOL)
	observability.RecordExecution("buy", outcome(err), time.Since(start).Seconds())
	return fill, err
}

// Sell implements Executor.
func (e *Instrumented) Sell(ctx context.Context, positionID int64, mint string, quantity float64) (domain.Fill, error) {
	start := time.Now()
	fill, err := e.next.Sell(ctx, positionID, mint, quantity)
	observability.RecordExecution("sell", outcome(err), time.Since(start).Seconds())
	return fill, err
}

func outcome(err error) string {
	if err == nil {
		return "filled"
	}
	return string(domain.ExecutionKindOf(err))
}

var _ Executor = (*Instrumented)(nil)
