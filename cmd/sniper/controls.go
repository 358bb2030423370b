package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

const (
	actionStopBuying = "stop"
	actionSellAll    = "sell"
)

// controller is the part of the position manager driven by operator signals.
type controller interface {
	StopBuying(ctx context.Context) error
	SellAll(ctx context.Context) error
}

// forwardControls turns operator signals into manager commands until ctx is done.
func forwardControls(ctx context.Context, sigs <-chan os.Signal, c controller, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			var err error
			switch controlActions[sig] {
			case actionStopBuying:
				logger.Info().Str("signal", sig.String()).Msg("stop requested, buying disabled")
				err = c.StopBuying(ctx)
			case actionSellAll:
				logger.Info().Str("signal", sig.String()).Msg("sell requested, closing all open positions")
				err = c.SellAll(ctx)
			default:
				continue
			}
			if err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Str("signal", sig.String()).Msg("control signal not applied")
			}
		}
	}
}
