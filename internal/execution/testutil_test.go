package execution

import (
	"context"
	"errors"
	"sync"

	"solana-sniper/internal/domain"
)

// stubPrices returns a fixed price per mint; unknown mints fail.
type stubPrices struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

func newStubPrices(prices map[string]float64) *stubPrices {
	return &stubPrices{prices: prices}
}

func (s *stubPrices) set(mint string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[mint] = price
}

func (s *stubPrices) CurrentPrice(_ context.Context, mint string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	p, ok := s.prices[mint]
	if !ok {
		return 0, &domain.PriceError{Mint: mint, Err: errors.New("no quote")}
	}
	return p, nil
}
