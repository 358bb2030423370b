package intent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
)

func intentFor(mint string) Intent {
	return Intent{Signal: domain.TradeSignal{Mint: mint}}
}

// receive reads one intent from c.C(), failing the test if none arrives.
func receive(t *testing.T, c *Channel) (Intent, bool) {
	t.Helper()
	select {
	case it, ok := <-c.C():
		return it, ok
	case <-time.After(time.Second):
		t.Fatal("no intent received")
		return Intent{}, false
	}
}

func TestChannel_FIFO(t *testing.T) {
	c := New(10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Send(ctx, intentFor(fmt.Sprintf("M%d", i))))
	}
	assert.Equal(t, 5, c.Len())

	for i := 0; i < 5; i++ {
		it, ok := receive(t, c)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("M%d", i), it.Signal.Mint)
		assert.False(t, it.EnqueuedAt.IsZero())
	}
}

func TestChannel_BackpressureBlocksUntilSpace(t *testing.T) {
	c := New(1)
	ctx := context.Background()
	require.NoError(t, c.Send(ctx, intentFor("first")))

	returned := make(chan error, 1)
	go func() {
		returned <- c.Send(ctx, intentFor("second"))
	}()

	// Consumer is paused: the producer must still be blocked.
	select {
	case err := <-returned:
		t.Fatalf("Send returned while channel full: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	it, ok := receive(t, c)
	require.True(t, ok)
	assert.Equal(t, "first", it.Signal.Mint)

	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after space was freed")
	}

	it, ok = receive(t, c)
	require.True(t, ok)
	assert.Equal(t, "second", it.Signal.Mint, "nothing dropped")
}

func TestChannel_SendHonorsContext(t *testing.T) {
	c := New(1)
	require.NoError(t, c.Send(context.Background(), intentFor("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Send(ctx, intentFor("b"))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, c.Len())
}

func TestChannel_CloseDrainsThenEnds(t *testing.T) {
	c := New(4)
	ctx := context.Background()
	require.NoError(t, c.Send(ctx, intentFor("a")))
	require.NoError(t, c.Send(ctx, intentFor("b")))

	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Send(ctx, intentFor("c")), ErrClosed)

	var got []string
	for it := range c.C() {
		got = append(got, it.Signal.Mint)
	}
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok := receive(t, c)
	assert.False(t, ok)
}

func TestChannel_CloseWakesBlockedSender(t *testing.T) {
	c := New(1)
	require.NoError(t, c.Send(context.Background(), intentFor("a")))

	returned := make(chan error, 1)
	go func() {
		returned <- c.Send(context.Background(), intentFor("b"))
	}()
	time.Sleep(50 * time.Millisecond)

	c.Close()

	select {
	case err := <-returned:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked sender not released by Close")
	}
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, 3, New(3).Cap())
}
