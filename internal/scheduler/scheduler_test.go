package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (c *countingSyncer) Sync(ctx context.Context) error {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	return c.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("backend down")}
	s := NewScheduler("test", syncer, 10*time.Millisecond, time.Second, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return syncer.calls.Load() >= 3 }, time.Second, 5*time.Millisecond,
		"Failures should not stop the schedule")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_SkipsWhenNotReady(t *testing.T) {
	syncer := &countingSyncer{}
	var ready atomic.Bool
	s := NewScheduler("test", syncer, 5*time.Millisecond, time.Second, discard()).WhenReady(ready.Load)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), syncer.calls.Load())

	ready.Store(true)
	require.Eventually(t, func() bool { return syncer.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
}
