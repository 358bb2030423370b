package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

type sampleKey struct {
	runID      string
	positionID int64
	atMs       int64
}

func keyOf(s *domain.PriceSample) sampleKey {
	return sampleKey{s.RunID, s.PositionID, s.At.UnixMilli()}
}

// InsertBulk adds samples. Fails entire batch on duplicate (run_id, position_id, at).
func (s *PriceSampleStore) InsertBulk(ctx context.Context, samples []*domain.PriceSample) (err error) {
	if len(samples) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_price_samples", time.Since(start).Seconds(), err)
	}()

	seen := make(map[sampleKey]struct{}, len(samples))
	for _, p := range samples {
		if p == nil || p.PositionID == 0 {
			return storage.ErrInvalidInput
		}
		k := keyOf(p)
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for k := range seen {
		exists, err := s.exists(ctx, k)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (run_id, position_id, mint, price, at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range samples {
		if err := batch.Append(p.RunID, p.PositionID, p.Mint, p.Price, p.At.UTC()); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPosition returns samples for a position ordered by time ASC.
func (s *PriceSampleStore) GetByPosition(ctx context.Context, runID string, positionID int64) ([]*domain.PriceSample, error) {
	query := `
		SELECT run_id, position_id, mint, price, at
		FROM price_samples
		WHERE run_id = ? AND position_id = ?
		ORDER BY at ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, positionID)
	if err != nil {
		return nil, fmt.Errorf("query price samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.PriceSample
	for rows.Next() {
		var p domain.PriceSample
		if err := rows.Scan(&p.RunID, &p.PositionID, &p.Mint, &p.Price, &p.At); err != nil {
			return nil, fmt.Errorf("scan price sample: %w", err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price samples: %w", err)
	}
	return result, nil
}

func (s *PriceSampleStore) exists(ctx context.Context, k sampleKey) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM price_samples
		WHERE run_id = ? AND position_id = ? AND at = fromUnixTimestamp64Milli(?)
	`, k.runID, k.positionID, k.atMs).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
