package discovery

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SeenSet is the authoritative, process-local record of mints that produced a signal.
type SeenSet interface {
	// MarkIfNew records mint and reports whether it was not present before.
	MarkIfNew(mint string) bool
	// Len returns the number of remembered mints.
	Len() int
}

// SharedSet is an optional dedup backend shared across processes and restarts.
type SharedSet interface {
	// MarkIfNew records mint and reports whether no other run had recorded it.
	MarkIfNew(ctx context.Context, mint string) (bool, error)
}

// NewSeenSet returns an unbounded set when capacity is zero, otherwise an LRU
// window remembering the most recent capacity mints.
func NewSeenSet(capacity int) (SeenSet, error) {
	if capacity <= 0 {
		return NewMemorySet(), nil
	}
	return NewLRUSet(capacity)
}

// MemorySet remembers every mint for the lifetime of the process.
type MemorySet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemorySet creates an empty unbounded set.
func NewMemorySet() *MemorySet {
	return &MemorySet{seen: make(map[string]struct{})}
}

// MarkIfNew records mint and reports whether it was not present before.
func (s *MemorySet) MarkIfNew(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[mint]; ok {
		return false
	}
	s.seen[mint] = struct{}{}
	return true
}

// Len returns the number of remembered mints.
func (s *MemorySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// LRUSet remembers the most recent mints up to a fixed capacity.
// A mint evicted from the window can signal again.
type LRUSet struct {
	cache *lru.Cache[string, struct{}]
}

// NewLRUSet creates a bounded set.
func NewLRUSet(capacity int) (*LRUSet, error) {
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &LRUSet{cache: cache}, nil
}

// MarkIfNew records mint and reports whether it was not present before.
func (s *LRUSet) MarkIfNew(mint string) bool {
	found, _ := s.cache.ContainsOrAdd(mint, struct{}{})
	return !found
}

// Len returns the number of remembered mints.
func (s *LRUSet) Len() int {
	return s.cache.Len()
}

var (
	_ SeenSet = (*MemorySet)(nil)
	_ SeenSet = (*LRUSet)(nil)
)
