// Package memory provides in-memory storage backends, used by default and in tests.
package memory

import "solana-sniper/internal/storage"

// NewJournal returns a journal backed entirely by memory.
func NewJournal() storage.Journal {
	return storage.Journal{
		Positions:   NewPositionStore(),
		Transitions: NewTransitionStore(),
		Samples:     NewPriceSampleStore(),
	}
}
