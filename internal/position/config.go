package position

import (
	"errors"
	"fmt"
	"time"
)

// Config controls buying, exit supervision and shutdown.
type Config struct {
	BuyAmountSOL float64
	Exit         ExitPolicy

	TickInterval     time.Duration
	PriceTimeout     time.Duration
	PriceConcurrency int

	BuyTimeout     time.Duration
	MaxBuyAttempts int
	BuyRetryDelay  time.Duration

	SellTimeout    time.Duration
	MaxSellRetries int

	MaxOpenPositions int // 0 = unlimited
	DrainTimeout     time.Duration
}

// DefaultConfig returns the default manager settings.
func DefaultConfig() Config {
	return Config{
		BuyAmountSOL: 0.1,
		Exit: ExitPolicy{
			TakeProfitPct: 0.5,
			StopLossPct:   0.2,
			MaxHold:       10 * time.Minute,
		},
		TickInterval:     5 * time.Second,
		PriceTimeout:     2 * time.Second,
		PriceConcurrency: 8,
		BuyTimeout:       30 * time.Second,
		MaxBuyAttempts:   2,
		BuyRetryDelay:    500 * time.Millisecond,
		SellTimeout:      30 * time.Second,
		MaxSellRetries:   3,
		DrainTimeout:     30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.BuyAmountSOL <= 0 {
		errs = append(errs, fmt.Errorf("buy_amount_sol must be positive, got %v", c.BuyAmountSOL))
	}
	if err := c.Exit.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.PriceTimeout <= 0 {
		errs = append(errs, errors.New("price_timeout must be positive"))
	}
	if c.PriceConcurrency <= 0 {
		errs = append(errs, errors.New("price_concurrency must be positive"))
	}
	if c.BuyTimeout <= 0 || c.SellTimeout <= 0 {
		errs = append(errs, errors.New("buy_timeout and sell_timeout must be positive"))
	}
	if c.MaxBuyAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_buy_attempts must be at least 1, got %d", c.MaxBuyAttempts))
	}
	if c.MaxSellRetries < 1 {
		errs = append(errs, fmt.Errorf("max_sell_retries must be at least 1, got %d", c.MaxSellRetries))
	}
	if c.MaxOpenPositions < 0 {
		errs = append(errs, errors.New("max_open_positions must not be negative"))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, errors.New("drain_timeout must not be negative"))
	}
	return errors.Join(errs...)
}
