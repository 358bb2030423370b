package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

const epsilon = 1e-9

// PaperExecutor simulates fills against a price source with a virtual SOL balance.
type PaperExecutor struct {
	prices      PriceSource
	slippageBps int64
	now         func() time.Time

	mu       sync.Mutex
	limited  bool
	cash     decimal.Decimal
	holdings map[string]decimal.Decimal // mint -> tokens
}

// NewPaperExecutor creates a paper executor. startingSOL <= 0 means unlimited cash.
func NewPaperExecutor(prices PriceSource, startingSOL float64, slippageBps int64) *PaperExecutor {
	return &PaperExecutor{
		prices:      prices,
		slippageBps: slippageBps,
		now:         time.Now,
		limited:     startingSOL > 0,
		cash:        decimal.NewFromFloat(startingSOL),
		holdings:    make(map[string]decimal.Decimal),
	}
}

// Buy implements Executor. Fills at the quoted price plus slippage.
func (p *PaperExecutor) Buy(ctx context.Context, mint string, amountSOL float64) (domain.Fill, error) {
	if amountSOL <= 0 {
		return domain.Fill{}, domain.Rejected("buy", errors.New("amount must be positive"))
	}
	quote, err := p.quote(ctx, mint)
	if err != nil {
		return domain.Fill{}, domain.Transient("buy", err)
	}

	price := quote.Mul(p.slip(1))
	amount := decimal.NewFromFloat(amountSOL)
	qty := amount.Div(price)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limited && amount.GreaterThan(p.cash.Add(decimal.NewFromFloat(epsilon))) {
		return domain.Fill{}, domain.Rejected("buy", fmt.Errorf("insufficient paper balance: have %s SOL", p.cash.StringFixed(4)))
	}
	p.cash = p.cash.Sub(amount)
	p.holdings[mint] = p.holdings[mint].Add(qty)

	return domain.Fill{
		Price:     price.InexactFloat64(),
		Quantity:  qty.InexactFloat64(),
		Timestamp: p.now(),
		Signature: fmt.Sprintf("paper-buy-%s-%d", mint, p.now().UnixNano()),
	}, nil
}

// Sell implements Executor. Fills at the quoted price minus slippage.
func (p *PaperExecutor) Sell(ctx context.Context, positionID int64, mint string, quantity float64) (domain.Fill, error) {
	if quantity <= 0 {
		return domain.Fill{}, domain.Rejected("sell", errors.New("quantity must be positive"))
	}
	quote, err := p.quote(ctx, mint)
	if err != nil {
		return domain.Fill{}, domain.Transient("sell", err)
	}

	price := quote.Mul(p.slip(-1))
	qty := decimal.NewFromFloat(quantity)

	p.mu.Lock()
	defer p.mu.Unlock()
	held := p.holdings[mint]
	if held.Add(decimal.NewFromFloat(epsilon)).LessThan(qty) {
		return domain.Fill{}, domain.Rejected("sell", fmt.Errorf("position %d: insufficient holdings of %s", positionID, mint))
	}
	if rest := held.Sub(qty); rest.LessThanOrEqual(decimal.NewFromFloat(epsilon)) {
		delete(p.holdings, mint)
	} else {
		p.holdings[mint] = rest
	}
	p.cash = p.cash.Add(price.Mul(qty))

	return domain.Fill{
		Price:     price.InexactFloat64(),
		Quantity:  quantity,
		Timestamp: p.now(),
		Signature: fmt.Sprintf("paper-sell-%d-%d", positionID, p.now().UnixNano()),
	}, nil
}

// Balance returns the virtual SOL balance.
func (p *PaperExecutor) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash.InexactFloat64()
}

func (p *PaperExecutor) quote(ctx context.Context, mint string) (decimal.Decimal, error) {
	price, err := p.prices.CurrentPrice(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}
	if price <= 0 {
		return decimal.Zero, &domain.PriceError{Mint: mint, Err: fmt.Errorf("non-positive price %v", price)}
	}
	return decimal.NewFromFloat(price), nil
}

// slip returns 1 + sign*slippage.
func (p *PaperExecutor) slip(sign int64) decimal.Decimal {
	return decimal.NewFromInt(1).Add(decimal.New(sign*p.slippageBps, -4))
}

var _ Executor = (*PaperExecutor)(nil)
