package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by (run_id, id)
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

var _ storage.PositionStore = (*PositionStore)(nil)

func positionKey(runID string, id int64) string {
	return fmt.Sprintf("%s|%d", runID, id)
}

// Insert adds a new position. Returns ErrDuplicateKey if (run_id, id) exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == 0 || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(p.RunID, p.ID)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = p.Clone()
	return nil
}

// Update overwrites an existing snapshot. Returns ErrNotFound if missing.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(p.RunID, p.ID)
	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}
	s.data[key] = p.Clone()
	return nil
}

// Get retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(_ context.Context, runID string, id int64) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionKey(runID, id)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns positions ordered by created_at ASC, id ASC.
func (s *PositionStore) List(_ context.Context, f storage.PositionFilter) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if f.MatchPosition(p) {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}
