package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
)

// createMintAccountIndex is the position of the mint in a create transaction's
// account keys (index 0 is the fee payer).
const createMintAccountIndex = 1

// TransactionFetcher resolves a transaction when the logs alone do not name the mint.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// DetectorOptions configures a Detector.
type DetectorOptions struct {
	ProgramID string // defaults to the pump.fun program
	Marker    string // defaults to DefaultMarker

	Seen   SeenSet   // defaults to an unbounded MemorySet
	Shared SharedSet // optional cross-run dedup

	// Transactions enables the getTransaction fallback for mint extraction.
	Transactions TransactionFetcher

	Logger zerolog.Logger
	Now    func() time.Time
}

// Detector turns raw stream events into trade signals, at most one per mint.
type Detector struct {
	programID    string
	parser       *CreateParser
	seen         SeenSet
	shared       SharedSet
	transactions TransactionFetcher
	logger       zerolog.Logger
	now          func() time.Time

	// mu makes the dedup check and signal emission atomic.
	mu sync.Mutex
}

// NewDetector creates a Detector.
func NewDetector(opts DetectorOptions) *Detector {
	if opts.ProgramID == "" {
		opts.ProgramID = solana.PumpFunProgram
	}
	if opts.Seen == nil {
		opts.Seen = NewMemorySet()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Detector{
		programID:    opts.ProgramID,
		parser:       NewCreateParser(opts.ProgramID, opts.Marker),
		seen:         opts.Seen,
		shared:       opts.Shared,
		transactions: opts.Transactions,
		logger:       opts.Logger.With().Str("component", "detector").Logger(),
		now:          opts.Now,
	}
}

// Classify returns a signal for a new launch, nil for noise and duplicates.
// Malformed messages are logged and returned as ErrParse; callers skip them.
func (d *Detector) Classify(ctx context.Context, ev domain.RawEvent) (*domain.TradeSignal, error) {
	if ev.IsMarker() {
		d.logger.Warn().Uint64("seq", ev.Seq).Int("attempt", ev.Attempt).Msg("stream reconnected, events may have been missed")
		return nil, nil
	}

	notif, err := solana.DecodeLogsNotification(ev.Payload)
	if err != nil {
		observability.RecordParseError()
		d.logger.Warn().Err(err).Uint64("seq", ev.Seq).Msg("skipping malformed message")
		return nil, err
	}
	if notif.Failed() {
		return nil, nil
	}

	match, ok := d.parser.Parse(notif.Logs)
	if !ok {
		return nil, nil
	}

	mint := match.Mint
	if mint == "" {
		mint = d.resolveMint(ctx, notif.Signature)
	}
	if mint == "" {
		d.logger.Warn().Str("signature", notif.Signature).Msg("launch without extractable mint")
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.seen.MarkIfNew(mint) {
		observability.RecordDuplicate()
		d.logger.Debug().Str("mint", mint).Str("signature", notif.Signature).Msg("duplicate signal suppressed")
		return nil, nil
	}
	if d.shared != nil {
		isNew, err := d.shared.MarkIfNew(ctx, mint)
		switch {
		case err != nil:
			// Local set stays authoritative.
			observability.RecordDedupError("redis")
			d.logger.Warn().Err(err).Str("mint", mint).Msg("shared dedup unavailable")
		case !isNew:
			observability.RecordDuplicate()
			d.logger.Info().Str("mint", mint).Msg("mint already claimed by another run")
			return nil, nil
		}
	}

	signal := &domain.TradeSignal{
		Mint:       mint,
		Signature:  notif.Signature,
		Slot:       notif.Slot,
		DetectedAt: d.now(),
	}
	observability.RecordSignal()

	logEvent := d.logger.Info().
		Str("event", "signal_detected").
		Str("mint", mint).
		Str("signature", notif.Signature).
		Int64("slot", notif.Slot).
		Dur("latency", signal.DetectedAt.Sub(ev.ReceivedAt))
	if match.Event != nil {
		logEvent = logEvent.Str("symbol", match.Event.Symbol).Str("creator", match.Event.User)
	}
	logEvent.Msg("signal detected")

	return signal, nil
}

// resolveMint reads the mint from the transaction's account keys.
func (d *Detector) resolveMint(ctx context.Context, signature string) string {
	if d.transactions == nil || signature == "" {
		return ""
	}
	tx, err := d.transactions.GetTransaction(ctx, signature)
	if err != nil {
		d.logger.Warn().Err(err).Str("signature", signature).Msg("mint lookup failed")
		return ""
	}
	if tx == nil || tx.Message == nil || len(tx.Message.AccountKeys) <= createMintAccountIndex {
		return ""
	}
	return tx.Message.AccountKeys[createMintAccountIndex]
}
