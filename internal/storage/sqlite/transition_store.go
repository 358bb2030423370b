package sqlite

import (
	"context"
	"fmt"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TransitionStore implements storage.TransitionStore on SQLite.
type TransitionStore struct {
	db *DB
}

// NewTransitionStore creates a new TransitionStore.
func NewTransitionStore(db *DB) *TransitionStore {
	return &TransitionStore{db: db}
}

var _ storage.TransitionStore = (*TransitionStore)(nil)

// Append adds a transition.
func (s *TransitionStore) Append(ctx context.Context, t *domain.Transition) error {
	if t == nil || t.PositionID == 0 || !t.To.IsValid() {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO position_transitions (
			run_id, position_id, mint, from_state, to_state, reason, price, pnl, error, at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.RunID, t.PositionID, t.Mint, string(t.From), string(t.To), string(t.Reason),
		t.Price, t.PnL, t.Error, toMillis(t.At))
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// List returns transitions ordered by time ASC, in append order for equal times.
func (s *TransitionStore) List(ctx context.Context, f storage.TransitionFilter) ([]*domain.Transition, error) {
	var w whereBuilder
	if f.RunID != "" {
		w.add("run_id = ?", f.RunID)
	}
	if f.PositionID != 0 {
		w.add("position_id = ?", f.PositionID)
	}
	if f.Mint != "" {
		w.add("mint = ?", f.Mint)
	}

	query := `SELECT run_id, position_id, mint, from_state, to_state, reason, price, pnl, error, at_ms
		FROM position_transitions` + w.sql() + ` ORDER BY at_ms ASC, seq ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transition
	for rows.Next() {
		var t domain.Transition
		var from, to, reason string
		var at int64
		if err := rows.Scan(&t.RunID, &t.PositionID, &t.Mint, &from, &to, &reason, &t.Price, &t.PnL, &t.Error, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From = domain.PositionState(from)
		t.To = domain.PositionState(to)
		t.Reason = domain.ExitReason(reason)
		t.At = fromMillis(at)
		result = append(result, &t)
	}
	return result, rows.Err()
}
