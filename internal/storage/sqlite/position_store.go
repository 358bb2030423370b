package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore implements storage.PositionStore on SQLite.
type PositionStore struct {
	db *DB
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(db *DB) *PositionStore {
	return &PositionStore{db: db}
}

var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `run_id, id, mint, signature, state,
	entry_price, quantity, take_profit_price, stop_loss_price,
	created_at_ms, opened_at_ms, last_checked_at_ms, last_price, sell_attempts,
	exit_reason, exit_price, realized_pnl, closed_at_ms, last_error`

// Insert adds a new position. Returns ErrDuplicateKey if (run_id, id) exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == 0 || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `INSERT INTO positions (` + positionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, positionArgs(p)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update overwrites an existing snapshot. Returns ErrNotFound if missing.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE positions SET
			mint = ?3, signature = ?4, state = ?5,
			entry_price = ?6, quantity = ?7, take_profit_price = ?8, stop_loss_price = ?9,
			created_at_ms = ?10, opened_at_ms = ?11, last_checked_at_ms = ?12, last_price = ?13, sell_attempts = ?14,
			exit_reason = ?15, exit_price = ?16, realized_pnl = ?17, closed_at_ms = ?18, last_error = ?19
		WHERE run_id = ?1 AND id = ?2
	`

	res, err := s.db.ExecContext(ctx, query, positionArgs(p)...)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update position rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Get retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, runID string, id int64) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE run_id = ? AND id = ?`, runID, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// List returns positions ordered by created_at ASC, id ASC.
func (s *PositionStore) List(ctx context.Context, f storage.PositionFilter) ([]*domain.Position, error) {
	var w whereBuilder
	if f.RunID != "" {
		w.add("run_id = ?", f.RunID)
	}
	if f.Mint != "" {
		w.add("mint = ?", f.Mint)
	}
	query := `SELECT ` + positionColumns + ` FROM positions` + w.sql()
	if f.OpenOnly {
		query += andOrWhere(w) + `state NOT IN ('CLOSED', 'ABANDONED', 'FAILED')`
	}
	query += ` ORDER BY created_at_ms ASC, id ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func andOrWhere(w whereBuilder) string {
	if len(w.conds) == 0 {
		return " WHERE "
	}
	return " AND "
}

func positionArgs(p *domain.Position) []interface{} {
	return []interface{}{
		p.RunID, p.ID, p.Mint, p.Signature, string(p.State),
		p.EntryPrice, p.Quantity, p.TakeProfitPrice, p.StopLossPrice,
		toMillis(p.CreatedAt), toMillis(p.OpenedAt), toMillis(p.LastCheckedAt), p.LastPrice, p.SellAttempts,
		string(p.ExitReason), p.ExitPrice, p.RealizedPnL, toMillis(p.ClosedAt), p.LastError,
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scanner) (*domain.Position, error) {
	var p domain.Position
	var state, reason string
	var created, opened, checked, closed int64

	err := row.Scan(
		&p.RunID, &p.ID, &p.Mint, &p.Signature, &state,
		&p.EntryPrice, &p.Quantity, &p.TakeProfitPrice, &p.StopLossPrice,
		&created, &opened, &checked, &p.LastPrice, &p.SellAttempts,
		&reason, &p.ExitPrice, &p.RealizedPnL, &closed, &p.LastError,
	)
	if err != nil {
		return nil, err
	}

	p.State = domain.PositionState(state)
	p.ExitReason = domain.ExitReason(reason)
	p.CreatedAt = fromMillis(created)
	p.OpenedAt = fromMillis(opened)
	p.LastCheckedAt = fromMillis(checked)
	p.ClosedAt = fromMillis(closed)
	return &p, nil
}
