package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceSample // keyed by (run_id, position_id, at)
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{
		data: make(map[string]*domain.PriceSample),
	}
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

func sampleKey(s *domain.PriceSample) string {
	return fmt.Sprintf("%s|%d|%d", s.RunID, s.PositionID, s.At.UnixNano())
}

// InsertBulk adds samples. Fails entire batch on duplicate.
func (s *PriceSampleStore) InsertBulk(_ context.Context, samples []*domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(samples))
	for _, p := range samples {
		if p == nil || p.PositionID == 0 {
			return storage.ErrInvalidInput
		}
		key := sampleKey(p)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range samples {
		sampleCopy := *p
		s.data[sampleKey(p)] = &sampleCopy
	}
	return nil
}

// GetByPosition returns samples for a position ordered by time ASC.
func (s *PriceSampleStore) GetByPosition(_ context.Context, runID string, positionID int64) ([]*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceSample
	for _, p := range s.data {
		if p.RunID == runID && p.PositionID == positionID {
			sampleCopy := *p
			result = append(result, &sampleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].At.Before(result[j].At)
	})
	return result, nil
}
