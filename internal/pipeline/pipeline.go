// Package pipeline wires the stream, detector, intent channel and position
// manager into the two long-running tasks of the sniper.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/intent"
	"solana-sniper/internal/solana"
)

// Classifier turns raw events into trade signals.
type Classifier interface {
	Classify(ctx context.Context, ev domain.RawEvent) (*domain.TradeSignal, error)
}

// Supervisor consumes intents until the channel closes or ctx is done.
type Supervisor interface {
	Run(ctx context.Context, intents <-chan intent.Intent) error
}

// Options configures a Pipeline.
type Options struct {
	Stream     solana.LogStream
	Filter     solana.LogsFilter
	Classifier Classifier
	Intents    *intent.Channel
	Supervisor Supervisor
	Logger     zerolog.Logger
}

// Stats summarizes one run of the ingestion task.
type Stats struct {
	Events      int
	Markers     int
	ParseErrors int
	Signals     int
}

// Pipeline runs ingestion (stream → detector → intents) and supervision
// (position manager) under one errgroup.
type Pipeline struct {
	opts   Options
	logger zerolog.Logger
	stats  Stats
}

// New validates opts and creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Stream == nil || opts.Classifier == nil || opts.Intents == nil || opts.Supervisor == nil {
		return nil, fmt.Errorf("%w: pipeline needs stream, classifier, intents and supervisor", domain.ErrConfiguration)
	}
	return &Pipeline{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Run blocks until ctx is cancelled, the stream ends, or either task fails.
// Cancellation is a clean shutdown and returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Closing the channel tells the manager no more intents will come.
		defer p.opts.Intents.Close()
		return p.ingest(gctx)
	})
	g.Go(func() error {
		return p.opts.Supervisor.Run(gctx, p.opts.Intents.C())
	})

	err := g.Wait()
	p.logger.Info().
		Int("events", p.stats.Events).
		Int("markers", p.stats.Markers).
		Int("parse_errors", p.stats.ParseErrors).
		Int("signals", p.stats.Signals).
		Msg("pipeline stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stats returns ingestion counters. Only valid after Run returns.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

func (p *Pipeline) ingest(ctx context.Context) error {
	events, err := p.opts.Stream.Subscribe(ctx, p.opts.Filter)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	p.logger.Info().Strs("mentions", p.opts.Filter.Mentions).Msg("ingestion started")

	for ev := range events {
		p.stats.Events++
		if ev.IsMarker() {
			p.stats.Markers++
		}

		signal, err := p.opts.Classifier.Classify(ctx, ev)
		if err != nil {
			// Malformed messages are skipped; the detector has logged them.
			p.stats.ParseErrors++
			continue
		}
		if signal == nil {
			continue
		}
		p.stats.Signals++

		if err := p.opts.Intents.Send(ctx, intent.Intent{Signal: *signal}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("enqueue intent for %s: %w", signal.Mint, err)
		}
	}

	if err := p.opts.Stream.Err(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.logger.Info().Msg("stream ended")
	return nil
}
