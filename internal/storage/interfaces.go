package storage

import (
	"context"

	"solana-sniper/internal/domain"
)

// PositionFilter narrows position listings. Zero fields match everything.
type PositionFilter struct {
	RunID    string
	Mint     string
	OpenOnly bool // non-terminal states only
	Limit    int
}

// TransitionFilter narrows transition listings. Zero fields match everything.
type TransitionFilter struct {
	RunID      string
	PositionID int64
	Mint       string
	Limit      int
}

// PositionStore persists position snapshots keyed by (run_id, id).
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if (run_id, id) exists.
	Insert(ctx context.Context, p *domain.Position) error

	// Update overwrites the snapshot of an existing position. Returns ErrNotFound if missing.
	Update(ctx context.Context, p *domain.Position) error

	// Get retrieves a position. Returns ErrNotFound if not exists.
	Get(ctx context.Context, runID string, id int64) (*domain.Position, error)

	// List returns positions ordered by created_at ASC, id ASC.
	List(ctx context.Context, f PositionFilter) ([]*domain.Position, error)
}

// TransitionStore is the append-only journal of position state changes.
type TransitionStore interface {
	// Append adds a transition.
	Append(ctx context.Context, t *domain.Transition) error

	// List returns transitions ordered by time ASC, in append order for equal times.
	List(ctx context.Context, f TransitionFilter) ([]*domain.Transition, error)
}

// PriceSampleStore holds price observations taken while supervising positions.
type PriceSampleStore interface {
	// InsertBulk adds samples. Fails the entire batch on a duplicate (run_id, position_id, at).
	InsertBulk(ctx context.Context, samples []*domain.PriceSample) error

	// GetByPosition returns samples for a position ordered by time ASC.
	GetByPosition(ctx context.Context, runID string, positionID int64) ([]*domain.PriceSample, error)
}

// Journal bundles the stores the position manager writes to.
// Samples may be nil when no sample store is configured.
type Journal struct {
	Positions   PositionStore
	Transitions TransitionStore
	Samples     PriceSampleStore
}

// MatchPosition reports whether p satisfies f.
func (f PositionFilter) MatchPosition(p *domain.Position) bool {
	if f.RunID != "" && p.RunID != f.RunID {
		return false
	}
	if f.Mint != "" && p.Mint != f.Mint {
		return false
	}
	if f.OpenOnly && p.State.IsTerminal() {
		return false
	}
	return true
}

// MatchTransition reports whether t satisfies f.
func (f TransitionFilter) MatchTransition(t *domain.Transition) bool {
	if f.RunID != "" && t.RunID != f.RunID {
		return false
	}
	if f.PositionID != 0 && t.PositionID != f.PositionID {
		return false
	}
	if f.Mint != "" && t.Mint != f.Mint {
		return false
	}
	return true
}
