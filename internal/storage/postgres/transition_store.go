package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TransitionStore implements storage.TransitionStore using PostgreSQL.
type TransitionStore struct {
	pool *Pool
}

// NewTransitionStore creates a new TransitionStore.
func NewTransitionStore(pool *Pool) *TransitionStore {
	return &TransitionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransitionStore = (*TransitionStore)(nil)

// Append adds a transition.
func (s *TransitionStore) Append(ctx context.Context, t *domain.Transition) (err error) {
	if t == nil || t.PositionID == 0 || !t.To.IsValid() {
		return storage.ErrInvalidInput
	}
	defer observe("append_transition", time.Now(), &err)

	query := `
		INSERT INTO position_transitions (
			run_id, position_id, mint, from_state, to_state, reason, price, pnl, error, at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		t.RunID, t.PositionID, t.Mint,
		string(t.From), string(t.To), string(t.Reason),
		t.Price, t.PnL, t.Error, t.At,
	)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// List returns transitions ordered by time ASC, in append order for equal times.
func (s *TransitionStore) List(ctx context.Context, f storage.TransitionFilter) (_ []*domain.Transition, err error) {
	defer observe("list_transitions", time.Now(), &err)

	var w whereBuilder
	if f.RunID != "" {
		w.add("run_id = $%d", f.RunID)
	}
	if f.PositionID != 0 {
		w.add("position_id = $%d", f.PositionID)
	}
	if f.Mint != "" {
		w.add("mint = $%d", f.Mint)
	}

	query := `
		SELECT run_id, position_id, mint, from_state, to_state, reason, price, pnl, error, at
		FROM position_transitions` + w.sql() + `
		ORDER BY at ASC, seq ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transition
	for rows.Next() {
		var t domain.Transition
		var from, to, reason string
		if err := rows.Scan(&t.RunID, &t.PositionID, &t.Mint, &from, &to, &reason, &t.Price, &t.PnL, &t.Error, &t.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From = domain.PositionState(from)
		t.To = domain.PositionState(to)
		t.Reason = domain.ExitReason(reason)
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return result, nil
}
