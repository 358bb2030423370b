//go:build unix

package main

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingController struct {
	stops atomic.Int32
	sells atomic.Int32
}

func (c *recordingController) StopBuying(context.Context) error {
	c.stops.Add(1)
	return nil
}

func (c *recordingController) SellAll(context.Context) error {
	c.sells.Add(1)
	return nil
}

func TestForwardControls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal)
	c := &recordingController{}

	done := make(chan struct{})
	go func() {
		forwardControls(ctx, sigs, c, zerolog.Nop())
		close(done)
	}()

	sigs <- syscall.SIGUSR1
	sigs <- syscall.SIGHUP
	sigs <- syscall.SIGUSR2
	sigs <- syscall.SIGUSR2

	require.Eventually(t, func() bool { return c.sells.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), c.stops.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwardControls did not return after cancel")
	}
}
