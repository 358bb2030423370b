package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TransitionStore is an in-memory append-only transition journal.
type TransitionStore struct {
	mu   sync.RWMutex
	data []*domain.Transition
}

// NewTransitionStore creates a new in-memory transition store.
func NewTransitionStore() *TransitionStore {
	return &TransitionStore{}
}

var _ storage.TransitionStore = (*TransitionStore)(nil)

// Append adds a transition.
func (s *TransitionStore) Append(_ context.Context, t *domain.Transition) error {
	if t == nil || t.PositionID == 0 || !t.To.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tCopy := *t
	s.data = append(s.data, &tCopy)
	return nil
}

// List returns transitions ordered by time ASC, in append order for equal times.
func (s *TransitionStore) List(_ context.Context, f storage.TransitionFilter) ([]*domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transition
	for _, t := range s.data {
		if f.MatchTransition(t) {
			tCopy := *t
			result = append(result, &tCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].At.Before(result[j].At)
	})

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}
