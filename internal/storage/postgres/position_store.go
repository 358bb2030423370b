package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	run_id, id, mint, signature, state,
	entry_price, quantity, take_profit_price, stop_loss_price,
	created_at, opened_at, last_checked_at, last_price, sell_attempts,
	exit_reason, exit_price, realized_pnl, closed_at, last_error
`

// Insert adds a new position. Returns ErrDuplicateKey if (run_id, id) exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.ID == 0 || p.Mint == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_position", time.Now(), &err)

	query := `INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = s.pool.Exec(ctx, query, positionArgs(p)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update overwrites the snapshot of an existing position. Returns ErrNotFound if missing.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.ID == 0 {
		return storage.ErrInvalidInput
	}
	defer observe("update_position", time.Now(), &err)

	query := `
		UPDATE positions SET
			mint = $3, signature = $4, state = $5,
			entry_price = $6, quantity = $7, take_profit_price = $8, stop_loss_price = $9,
			created_at = $10, opened_at = $11, last_checked_at = $12, last_price = $13, sell_attempts = $14,
			exit_reason = $15, exit_price = $16, realized_pnl = $17, closed_at = $18, last_error = $19,
			updated_at = now()
		WHERE run_id = $1 AND id = $2
	`

	tag, err := s.pool.Exec(ctx, query, positionArgs(p)...)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Get retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, runID string, id int64) (_ *domain.Position, err error) {
	defer observe("get_position", time.Now(), &err)

	query := `SELECT ` + positionColumns + ` FROM positions WHERE run_id = $1 AND id = $2`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, runID, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// List returns positions ordered by created_at ASC, id ASC.
func (s *PositionStore) List(ctx context.Context, f storage.PositionFilter) (_ []*domain.Position, err error) {
	defer observe("list_positions", time.Now(), &err)

	var w whereBuilder
	if f.RunID != "" {
		w.add("run_id = $%d", f.RunID)
	}
	if f.Mint != "" {
		w.add("mint = $%d", f.Mint)
	}
	if f.OpenOnly {
		w.add("state <> ALL($%d)", terminalStates())
	}

	query := `SELECT ` + positionColumns + ` FROM positions` + w.sql() + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, w.args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return result, nil
}

func terminalStates() []string {
	return []string{
		string(domain.StateClosed),
		string(domain.StateAbandoned),
		string(domain.StateFailed),
	}
}

func positionArgs(p *domain.Position) []interface{} {
	return []interface{}{
		p.RunID, p.ID, p.Mint, p.Signature, string(p.State),
		p.EntryPrice, p.Quantity, p.TakeProfitPrice, p.StopLossPrice,
		p.CreatedAt, nullTime(p.OpenedAt), nullTime(p.LastCheckedAt), p.LastPrice, p.SellAttempts,
		string(p.ExitReason), p.ExitPrice, p.RealizedPnL, nullTime(p.ClosedAt), p.LastError,
	}
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var state, reason string
	var openedAt, lastCheckedAt, closedAt *time.Time

	err := row.Scan(
		&p.RunID, &p.ID, &p.Mint, &p.Signature, &state,
		&p.EntryPrice, &p.Quantity, &p.TakeProfitPrice, &p.StopLossPrice,
		&p.CreatedAt, &openedAt, &lastCheckedAt, &p.LastPrice, &p.SellAttempts,
		&reason, &p.ExitPrice, &p.RealizedPnL, &closedAt, &p.LastError,
	)
	if err != nil {
		return nil, err
	}

	p.State = domain.PositionState(state)
	p.ExitReason = domain.ExitReason(reason)
	p.OpenedAt = fromNullTime(openedAt)
	p.LastCheckedAt = fromNullTime(lastCheckedAt)
	p.ClosedAt = fromNullTime(closedAt)
	return &p, nil
}
