// Package intent provides the bounded hand-off queue between detection and position management.
package intent

import (
	"context"
	"errors"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
)

// DefaultCapacity is the default number of queued intents.
const DefaultCapacity = 100

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("intent channel closed")

// Intent is a buy request derived from a trade signal.
type Intent struct {
	Signal     domain.TradeSignal
	EnqueuedAt time.Time
}

// Channel is a bounded FIFO. Send blocks while the queue is full; nothing is dropped.
// Multiple producers are allowed; there is a single consumer.
type Channel struct {
	ch chan Intent

	mu     sync.RWMutex // guards closed against concurrent Send/Close
	closed bool
	done   chan struct{}
	once   sync.Once
}

// New creates a channel. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		ch:   make(chan Intent, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues an intent, blocking until there is room, ctx is done, or the channel is closed.
func (c *Channel) Send(ctx context.Context, it Intent) error {
	// Holding the read lock keeps Close from closing ch under a blocked sender.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}

	select {
	case c.ch <- it:
		observability.UpdateIntentDepth(len(c.ch))
		return nil
	default:
	}

	start := time.Now()
	select {
	case c.ch <- it:
		observability.RecordIntentWait(time.Since(start).Seconds())
		observability.UpdateIntentDepth(len(c.ch))
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C exposes the receive side for select loops. It is closed after Close once drained.
func (c *Channel) C() <-chan Intent {
	return c.ch
}

// Close stops accepting intents. Queued intents remain receivable. Safe to call more than once.
func (c *Channel) Close() {
	c.once.Do(func() {
		// Wake blocked senders before taking the write lock they hold for reading.
		close(c.done)
		c.mu.Lock()
		c.closed = true
		close(c.ch)
		c.mu.Unlock()
	})
}

// Len returns the number of queued intents.
func (c *Channel) Len() int {
	return len(c.ch)
}

// Cap returns the channel capacity.
func (c *Channel) Cap() int {
	return cap(c.ch)
}
