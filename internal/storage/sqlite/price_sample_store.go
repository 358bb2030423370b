package sqlite

import (
	"context"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore on SQLite.
type PriceSampleStore struct {
	db *DB
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(db *DB) *PriceSampleStore {
	return &PriceSampleStore{db: db}
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertBulk adds samples in one transaction. Fails entire batch on duplicate.
func (s *PriceSampleStore) InsertBulk(ctx context.Context, samples []*domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, p := range samples {
		if p == nil || p.PositionID == 0 {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_samples (run_id, position_id, mint, price, at_ns) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range samples {
		if _, err := stmt.ExecContext(ctx, p.RunID, p.PositionID, p.Mint, p.Price, p.At.UnixNano()); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert price sample: %w", err)
		}
	}
	return tx.Commit()
}

// GetByPosition returns samples for a position ordered by time ASC.
func (s *PriceSampleStore) GetByPosition(ctx context.Context, runID string, positionID int64) ([]*domain.PriceSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, position_id, mint, price, at_ns FROM price_samples
		WHERE run_id = ? AND position_id = ? ORDER BY at_ns ASC
	`, runID, positionID)
	if err != nil {
		return nil, fmt.Errorf("query price samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.PriceSample
	for rows.Next() {
		var p domain.PriceSample
		var at int64
		if err := rows.Scan(&p.RunID, &p.PositionID, &p.Mint, &p.Price, &at); err != nil {
			return nil, fmt.Errorf("scan price sample: %w", err)
		}
		p.At = time.Unix(0, at).UTC()
		result = append(result, &p)
	}
	return result, rows.Err()
}
