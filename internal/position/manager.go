package position

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/intent"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
)

const journalTimeout = 5 * time.Second

var errCapacity = errors.New("max open positions reached")

// ErrStopped is returned by control calls once Run has returned.
var ErrStopped = errors.New("position manager stopped")

// Options for creating a Manager.
type Options struct {
	Config   Config
	RunID    string
	Executor execution.Executor
	Prices   execution.PriceSource
	Journal  storage.Journal // nil stores are skipped
	Logger   zerolog.Logger

	// Now and Ticks override the clock and the tick source. Defaults: time.Now and a
	// ticker at Config.TickInterval.
	Now   func() time.Time
	Ticks <-chan time.Time
}

type execOp int

const (
	opBuy execOp = iota
	opSell
)

type command int

const (
	cmdStopBuying command = iota
	cmdSellAll
)

// result is the outcome of one buy or sell dispatched by the manager.
type result struct {
	op         execOp
	positionID int64
	fill       domain.Fill
	err        error
	attempts   int
}

// change describes one state transition. apply runs only if the edge is legal.
type change struct {
	to     domain.PositionState
	reason domain.ExitReason
	price  float64
	pnl    float64
	cause  error
	apply  func(p *domain.Position)
}

// Manager is the single owner of the order book. All position state is mutated
// from the Run goroutine; executions and price fetches report back through channels.
type Manager struct {
	cfg      Config
	runID    string
	exec     execution.Executor
	prices   execution.PriceSource
	journal  storage.Journal
	logger   zerolog.Logger
	now      func() time.Time
	ticks    <-chan time.Time
	execCtx  context.Context
	stopExec context.CancelFunc

	// owned by the Run goroutine
	book     *orderBook
	nextID   int64
	cooldown map[int64]time.Time // position id -> earliest next evaluation
	inflight int
	paused   bool // set by StopBuying

	results chan result
	control chan command
	stopped chan struct{}
	snap    atomic.Pointer[[]*domain.Position]
}

// NewManager creates a manager.
func NewManager(opts Options) (*Manager, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if opts.Executor == nil || opts.Prices == nil {
		return nil, fmt.Errorf("%w: executor and price source are required", domain.ErrConfiguration)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	execCtx, stopExec := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      opts.Config,
		runID:    opts.RunID,
		exec:     opts.Executor,
		prices:   opts.Prices,
		journal:  opts.Journal,
		logger:   opts.Logger.With().Str("component", "position").Str("run_id", opts.RunID).Logger(),
		now:      opts.Now,
		ticks:    opts.Ticks,
		execCtx:  execCtx,
		stopExec: stopExec,
		book:     newOrderBook(),
		cooldown: make(map[int64]time.Time),
		results:  make(chan result),
		control:  make(chan command),
		stopped:  make(chan struct{}),
	}
	m.publish()
	return m, nil
}

// Run consumes intents and supervises positions until intents is closed or ctx is done,
// then drains in-flight executions and persists what is left. Run must be called once.
func (m *Manager) Run(ctx context.Context, intents <-chan intent.Intent) error {
	defer close(m.stopped)
	defer m.stopExec()

	ticks := m.ticks
	if ticks == nil {
		ticker := time.NewTicker(m.cfg.TickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	m.logger.Info().
		Dur("tick_interval", m.cfg.TickInterval).
		Float64("buy_amount_sol", m.cfg.BuyAmountSOL).
		Msg("position manager started")

	for {
		// Cancellation wins over ready intents.
		if ctx.Err() != nil {
			return m.drain(intents)
		}
		select {
		case it, ok := <-intents:
			if !ok {
				m.logger.Info().Msg("intent channel closed")
				return m.drain(nil)
			}
			if ctx.Err() != nil {
				m.discard(it, "shutdown")
				return m.drain(intents)
			}
			if m.paused {
				m.discard(it, "stopped")
				continue
			}
			m.handleIntent(it)

		case <-ticks:
			m.tick(ctx)

		case r := <-m.results:
			m.handleResult(r)

		case c := <-m.control:
			m.handleCommand(c)

		case <-ctx.Done():
			return m.drain(intents)
		}
	}
}

// StopBuying makes the manager discard further intents while open positions stay supervised.
func (m *Manager) StopBuying(ctx context.Context) error {
	return m.command(ctx, cmdStopBuying)
}

// SellAll triggers a manual exit of every open position.
func (m *Manager) SellAll(ctx context.Context) error {
	return m.command(ctx, cmdSellAll)
}

func (m *Manager) command(ctx context.Context, c command) error {
	select {
	case m.control <- c:
		return nil
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) handleCommand(c command) {
	switch c {
	case cmdStopBuying:
		if m.paused {
			return
		}
		m.paused = true
		m.logger.Info().Str("event", "buying_stopped").Int("open", m.book.len()).Msg("no further buys, supervising open positions")

	case cmdSellAll:
		var open []*domain.Position
		m.book.each(func(p *domain.Position) {
			if p.State == domain.StateOpen {
				open = append(open, p)
			}
		})
		m.logger.Info().Str("event", "sell_all").Int("positions", len(open)).Msg("manual sell of all open positions")
		for _, p := range open {
			delete(m.cooldown, p.ID)
			m.triggerSell(p, domain.ReasonManual, p.LastPrice)
		}
	}
}

// discard records an intent that will never be bought.
func (m *Manager) discard(it intent.Intent, reason string) {
	observability.RecordIntentUnprocessed(reason)
	m.logger.Warn().
		Str("event", "intent_unprocessed").
		Str("reason", reason).
		Str("mint", it.Signal.Mint).
		Str("signature", it.Signal.Signature).
		Msg("queued intent not executed")
}

// Positions returns a copy of the order book as of the last change or tick.
func (m *Manager) Positions() []*domain.Position {
	snap := m.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]*domain.Position, len(*snap))
	for i, p := range *snap {
		out[i] = p.Clone()
	}
	return out
}

func (m *Manager) publish() {
	snap := m.book.snapshot()
	m.snap.Store(&snap)
}

// handleIntent creates a PendingBuy position and dispatches its buy.
func (m *Manager) handleIntent(it intent.Intent) {
	m.nextID++
	now := m.now()
	p := &domain.Position{
		ID:        m.nextID,
		RunID:     m.runID,
		Mint:      it.Signal.Mint,
		Signature: it.Signal.Signature,
		State:     domain.StatePendingBuy,
		CreatedAt: now,
	}
	m.book.add(p)
	m.insert(p)

	ev := m.logger.Info().
		Str("event", "buy_requested").
		Int64("position_id", p.ID).
		Str("mint", p.Mint).
		Str("signature", p.Signature)
	if !it.EnqueuedAt.IsZero() {
		ev = ev.Dur("queued", now.Sub(it.EnqueuedAt))
	}
	ev.Msg("buy requested")

	if m.cfg.MaxOpenPositions > 0 && m.book.len() > m.cfg.MaxOpenPositions {
		m.transition(p, change{to: domain.StateFailed, reason: domain.ReasonCapacity, cause: errCapacity})
		return
	}
	m.dispatchBuy(p)
}

func (m *Manager) dispatchBuy(p *domain.Position) {
	m.inflight++
	id, mint := p.ID, p.Mint
	go func() {
		fill, attempts, err := m.buyWithRetry(mint)
		m.deliver(result{op: opBuy, positionID: id, fill: fill, err: err, attempts: attempts})
	}()
}

// buyWithRetry retries transient failures up to MaxBuyAttempts. Rejections and
// timeouts are final: a timed-out buy may still land.
func (m *Manager) buyWithRetry(mint string) (domain.Fill, int, error) {
	var (
		fill     domain.Fill
		attempts int
	)
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.BuyRetryDelay), uint64(m.cfg.MaxBuyAttempts-1)),
		m.execCtx,
	)
	err := backoff.Retry(func() error {
		attempts++
		ctx, cancel := context.WithTimeout(m.execCtx, m.cfg.BuyTimeout)
		defer cancel()

		f, err := m.exec.Buy(ctx, mint, m.cfg.BuyAmountSOL)
		if err == nil {
			fill = f
			return nil
		}
		err = asTimeout(ctx, "buy", err)
		if domain.ExecutionKindOf(err) != domain.ExecTransient {
			return backoff.Permanent(err)
		}
		m.logger.Warn().Err(err).Str("mint", mint).Int("attempt", attempts).Msg("buy attempt failed")
		return err
	}, b)
	return fill, attempts, err
}

func (m *Manager) dispatchSell(p *domain.Position) {
	m.inflight++
	id, mint, qty := p.ID, p.Mint, p.Quantity
	go func() {
		ctx, cancel := context.WithTimeout(m.execCtx, m.cfg.SellTimeout)
		defer cancel()
		fill, err := m.exec.Sell(ctx, id, mint, qty)
		if err != nil {
			err = asTimeout(ctx, "sell", err)
		}
		m.deliver(result{op: opSell, positionID: id, fill: fill, err: err, attempts: 1})
	}()
}

// asTimeout classifies an unclassified error as a timeout when ctx expired.
func asTimeout(ctx context.Context, op string, err error) error {
	var execErr *domain.ExecutionError
	if ctx.Err() != nil && !errors.As(err, &execErr) {
		return domain.Timeout(op, err)
	}
	return err
}

func (m *Manager) deliver(r result) {
	select {
	case m.results <- r:
	case <-m.stopped:
		m.logger.Warn().
			Int64("position_id", r.positionID).
			Bool("filled", r.err == nil).
			Msg("execution finished after shutdown")
	}
}

func (m *Manager) handleResult(r result) {
	m.inflight--
	p, ok := m.book.get(r.positionID)
	if !ok {
		m.logger.Error().Int64("position_id", r.positionID).Msg("execution result for unknown position")
		return
	}
	switch r.op {
	case opBuy:
		m.onBuyResult(p, r)
	case opSell:
		m.onSellResult(p, r)
	}
}

func (m *Manager) onBuyResult(p *domain.Position, r result) {
	if r.err == nil && (r.fill.Price <= 0 || r.fill.Quantity <= 0) {
		r.err = domain.Rejected("buy", fmt.Errorf("invalid fill price=%v quantity=%v", r.fill.Price, r.fill.Quantity))
	}
	if r.err != nil {
		cause := r.err
		if r.attempts > 1 {
			cause = fmt.Errorf("after %d attempts: %w", r.attempts, r.err)
		}
		m.transition(p, change{to: domain.StateFailed, reason: domain.ReasonBuyFailed, cause: cause})
		return
	}

	fill := r.fill
	opened := fill.Timestamp
	if opened.IsZero() {
		opened = m.now()
	}
	m.transition(p, change{
		to:     domain.StateOpen,
		reason: domain.ReasonFilled,
		price:  fill.Price,
		apply: func(p *domain.Position) {
			p.EntryPrice = fill.Price
			p.Quantity = fill.Quantity
			p.TakeProfitPrice, p.StopLossPrice = m.cfg.Exit.Targets(fill.Price)
			p.OpenedAt = opened
		},
	})
}

func (m *Manager) onSellResult(p *domain.Position, r result) {
	if r.err == nil {
		exit := r.fill.Price
		pnl := decimal.NewFromFloat(exit).
			Sub(decimal.NewFromFloat(p.EntryPrice)).
			Mul(decimal.NewFromFloat(p.Quantity)).
			InexactFloat64()
		err := m.transition(p, change{
			to:     domain.StateClosed,
			reason: p.ExitReason,
			price:  exit,
			pnl:    pnl,
			apply: func(p *domain.Position) {
				p.ExitPrice = exit
				p.RealizedPnL = pnl
			},
		})
		if err == nil {
			observability.RecordRealizedPnL(pnl)
		}
		return
	}

	attempts := p.SellAttempts + 1
	next := change{
		cause: r.err,
		apply: func(p *domain.Position) { p.SellAttempts = attempts },
	}
	switch {
	case !domain.IsRetryable(r.err):
		next.to, next.reason = domain.StateAbandoned, domain.ReasonRejected
	case attempts >= m.cfg.MaxSellRetries:
		next.to, next.reason = domain.StateAbandoned, domain.ReasonExhausted
	default:
		next.to, next.reason = domain.StateOpen, domain.ReasonRetry
		next.apply = func(p *domain.Position) {
			p.SellAttempts = attempts
			p.ExitReason = domain.ReasonNone
		}
	}

	if m.transition(p, next) == nil && next.to == domain.StateOpen {
		// Skip at least one full tick before the next attempt.
		m.cooldown[p.ID] = m.now().Add(m.cfg.TickInterval)
	}
}

// tick fetches prices for every eligible open position, waits for all of them,
// then evaluates exits in insertion order.
func (m *Manager) tick(ctx context.Context) {
	start := time.Now()
	now := m.now()

	var due []*domain.Position
	m.book.each(func(p *domain.Position) {
		if p.State != domain.StateOpen {
			return
		}
		if until, ok := m.cooldown[p.ID]; ok && now.Before(until) {
			return
		}
		due = append(due, p)
	})

	if len(due) > 0 {
		prices := m.fetchPrices(ctx, due)

		var samples []*domain.PriceSample
		for i, p := range due {
			q := prices[i]
			if q.err != nil {
				m.logger.Debug().Err(q.err).Int64("position_id", p.ID).Str("mint", p.Mint).Msg("price unavailable, skipping")
				continue
			}
			delete(m.cooldown, p.ID)
			p.LastPrice = q.price
			p.LastCheckedAt = now
			samples = append(samples, &domain.PriceSample{
				RunID: m.runID, PositionID: p.ID, Mint: p.Mint, Price: q.price, At: now,
			})

			if reason := m.cfg.Exit.Evaluate(p, q.price, now); reason != domain.ReasonNone {
				m.triggerSell(p, reason, q.price)
			}
		}
		m.insertSamples(samples)
	}

	observability.RecordTick(time.Since(start).Seconds(), float64(now.Unix()))
	m.publish()
}

type quote struct {
	price float64
	err   error
}

func (m *Manager) fetchPrices(ctx context.Context, due []*domain.Position) []quote {
	out := make([]quote, len(due))
	var g errgroup.Group
	g.SetLimit(m.cfg.PriceConcurrency)
	for i, p := range due {
		i, mint := i, p.Mint
		g.Go(func() error {
			fetchStart := time.Now()
			price, err := m.fetchPrice(ctx, mint)
			observability.RecordPriceFetch(time.Since(fetchStart).Seconds(), err)
			out[i] = quote{price: price, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fetchPrice bounds a single quote by PriceTimeout even if the source ignores ctx.
func (m *Manager) fetchPrice(ctx context.Context, mint string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PriceTimeout)
	defer cancel()

	ch := make(chan quote, 1)
	go func() {
		price, err := m.prices.CurrentPrice(ctx, mint)
		ch <- quote{price: price, err: err}
	}()

	select {
	case q := <-ch:
		if q.err == nil && q.price <= 0 {
			q.err = &domain.PriceError{Mint: mint, Err: fmt.Errorf("non-positive price %v", q.price)}
		}
		return q.price, q.err
	case <-ctx.Done():
		return 0, &domain.PriceError{Mint: mint, Err: ctx.Err()}
	}
}

func (m *Manager) triggerSell(p *domain.Position, reason domain.ExitReason, price float64) {
	err := m.transition(p, change{
		to:     domain.StatePendingSell,
		reason: reason,
		price:  price,
		apply:  func(p *domain.Position) { p.ExitReason = reason },
	})
	if err != nil {
		return
	}
	m.dispatchSell(p)
}

// transition applies c to p if the edge is legal, then logs, journals and meters it.
// An illegal edge leaves p untouched.
func (m *Manager) transition(p *domain.Position, c change) error {
	from := p.State
	if err := p.Transition(c.to); err != nil {
		m.logger.Error().Err(err).Int64("position_id", p.ID).Str("mint", p.Mint).Msg("illegal transition")
		return err
	}
	if c.apply != nil {
		c.apply(p)
	}

	now := m.now()
	if c.cause != nil {
		p.LastError = c.cause.Error()
	}
	if c.to.IsTerminal() {
		p.ClosedAt = now
		m.book.remove(p.ID)
		delete(m.cooldown, p.ID)
	}

	t := &domain.Transition{
		RunID:      m.runID,
		PositionID: p.ID,
		Mint:       p.Mint,
		From:       from,
		To:         c.to,
		Reason:     c.reason,
		Price:      c.price,
		PnL:        c.pnl,
		At:         now,
	}
	if c.cause != nil {
		t.Error = c.cause.Error()
	}

	m.logTransition(p, t)
	m.update(p)
	m.appendTransition(t)

	observability.RecordTransition(string(from), string(c.to), string(c.reason))
	observability.UpdateOpenPositions(m.book.len())
	m.publish()
	return nil
}

func (m *Manager) logTransition(p *domain.Position, t *domain.Transition) {
	ev := m.logger.Info()
	if t.To == domain.StateFailed || t.To == domain.StateAbandoned {
		ev = m.logger.Warn()
	}
	ev = ev.
		Str("event", transitionEvent(t)).
		Int64("position_id", t.PositionID).
		Str("mint", t.Mint).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Str("reason", string(t.Reason)).
		Float64("price", t.Price)

	switch t.To {
	case domain.StateOpen:
		if t.From == domain.StatePendingBuy {
			ev = ev.Float64("quantity", p.Quantity).
				Float64("take_profit", p.TakeProfitPrice).
				Float64("stop_loss", p.StopLossPrice)
		}
	case domain.StateClosed:
		ev = ev.Float64("pnl", t.PnL).Float64("entry_price", p.EntryPrice)
	}
	if t.Error != "" {
		ev = ev.Str("error", t.Error).Int("sell_attempts", p.SellAttempts)
	}
	ev.Msg("position transition")
}

func transitionEvent(t *domain.Transition) string {
	switch t.To {
	case domain.StateOpen:
		if t.From == domain.StatePendingSell {
			return "sell_failed"
		}
		return "buy_confirmed"
	case domain.StateFailed:
		return "buy_failed"
	case domain.StatePendingSell:
		return "sell_triggered"
	case domain.StateClosed:
		return "position_closed"
	case domain.StateAbandoned:
		return "position_abandoned"
	default:
		return "position_transition"
	}
}

// drain stops new work, waits for in-flight executions up to DrainTimeout and
// persists every position still open.
func (m *Manager) drain(intents <-chan intent.Intent) error {
	if intents != nil {
	queued:
		for {
			select {
			case it, ok := <-intents:
				if !ok {
					break queued
				}
				m.discard(it, "shutdown")
			default:
				break queued
			}
		}
	}

	if m.inflight > 0 {
		m.logger.Info().Int("inflight", m.inflight).Dur("timeout", m.cfg.DrainTimeout).Msg("waiting for in-flight executions")
		deadline := time.NewTimer(m.cfg.DrainTimeout)
		defer deadline.Stop()
	wait:
		for m.inflight > 0 {
			select {
			case r := <-m.results:
				m.handleResult(r)
			case <-deadline.C:
				m.logger.Warn().Int("inflight", m.inflight).Msg("drain timeout, cancelling executions")
				m.stopExec()
				break wait
			}
		}
	}

	left := 0
	m.book.each(func(p *domain.Position) {
		left++
		m.logger.Warn().
			Str("event", "left_open").
			Int64("position_id", p.ID).
			Str("mint", p.Mint).
			Str("state", string(p.State)).
			Str("reason", string(domain.ReasonShutdown)).
			Float64("entry_price", p.EntryPrice).
			Float64("quantity", p.Quantity).
			Float64("last_price", p.LastPrice).
			Msg("position left open at shutdown")
		m.update(p)
	})
	m.publish()
	observability.UpdateOpenPositions(left)
	m.logger.Info().Int("left_open", left).Msg("position manager stopped")
	return nil
}

func (m *Manager) journalCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), journalTimeout)
}

func (m *Manager) insert(p *domain.Position) {
	if m.journal.Positions == nil {
		return
	}
	ctx, cancel := m.journalCtx()
	defer cancel()
	if err := m.journal.Positions.Insert(ctx, p.Clone()); err != nil {
		m.logger.Error().Err(err).Int64("position_id", p.ID).Msg("persist position")
	}
}

func (m *Manager) update(p *domain.Position) {
	if m.journal.Positions == nil {
		return
	}
	ctx, cancel := m.journalCtx()
	defer cancel()
	if err := m.journal.Positions.Update(ctx, p.Clone()); err != nil {
		m.logger.Error().Err(err).Int64("position_id", p.ID).Msg("update position")
	}
}

func (m *Manager) appendTransition(t *domain.Transition) {
	if m.journal.Transitions == nil {
		return
	}
	ctx, cancel := m.journalCtx()
	defer cancel()
	if err := m.journal.Transitions.Append(ctx, t); err != nil {
		m.logger.Error().Err(err).Int64("position_id", t.PositionID).Msg("journal transition")
	}
}

func (m *Manager) insertSamples(samples []*domain.PriceSample) {
	if m.journal.Samples == nil || len(samples) == 0 {
		return
	}
	ctx, cancel := m.journalCtx()
	defer cancel()
	if err := m.journal.Samples.InsertBulk(ctx, samples); err != nil {
		m.logger.Error().Err(err).Int("samples", len(samples)).Msg("persist price samples")
	}
}
