package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_RunsEveryJob(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(3), WithQueueSize(10))

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(Job{ID: "j", Run: func(ctx context.Context) error {
			count.Add(1)
			return nil
		}}))
	}
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(10), count.Load())
}

func TestPool_SubmitDoesNotBlockWhenFull(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(1), WithQueueSize(1))

	release := make(chan struct{})
	started := make(chan struct{})
	block := func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	require.NoError(t, p.Submit(Job{ID: "running", Run: block}))
	<-started
	require.NoError(t, p.Submit(Job{ID: "queued", Run: block}))

	done := make(chan error, 1)
	go func() { done <- p.Submit(Job{ID: "overflow", Run: block}) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	assert.Equal(t, 1, p.Depth())

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := NewPool(quietLogger())
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(Job{ID: "late", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_ReportsErrorsAndPanics(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(2))
	boom := errors.New("boom")

	require.NoError(t, p.Submit(Job{ID: "fails", Run: func(context.Context) error { return boom }}))
	require.NoError(t, p.Submit(Job{ID: "panics", Run: func(context.Context) error { panic("kaboom") }}))
	require.NoError(t, p.Submit(Job{ID: "ok", Run: func(context.Context) error { return nil }}))
	require.NoError(t, p.Shutdown(context.Background()))

	got := map[string]JobError{}
	for e := range p.Errors() {
		got[e.JobID] = e
	}
	require.Len(t, got, 2)
	assert.ErrorIs(t, got["fails"], boom)
	assert.Equal(t, "kaboom", got["panics"].Panic)
	assert.Contains(t, got["panics"].Error(), "panicked")
}

func TestPool_DropsErrorsWhenBufferFull(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(1), WithErrorBuffer(1))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(Job{ID: "f", Run: func(context.Context) error { return errors.New("x") }}))
	}
	require.NoError(t, p.Shutdown(context.Background()))

	n := 0
	for range p.Errors() {
		n++
	}
	assert.Equal(t, 1, n)
}

func TestPool_JobTimeout(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(1), WithJobTimeout(20*time.Millisecond))

	var mu sync.Mutex
	var seen error
	require.NoError(t, p.Submit(Job{ID: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		mu.Lock()
		seen = ctx.Err()
		mu.Unlock()
		return nil
	}}))
	require.NoError(t, p.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, seen, context.DeadlineExceeded)
}

func TestPool_ShutdownHonorsContext(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(1))
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(Job{ID: "stuck", Run: func(context.Context) error {
		<-release
		return nil
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
}
