package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func retryTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDispatcherRunsJobs(t *testing.T) {
	d := New(Options{Workers: 2, QueueSize: 8})
	var n atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Enqueue(context.Background(), "inc", func(context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	d.Close()
	assert.Equal(t, int32(5), n.Load())
	assert.Equal(t, uint64(5), d.DoneCount())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherRetriesRetryable(t *testing.T) {
	d := New(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond, Retryable: retryTransient})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "flaky", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errTransient
		}
		return nil
	}))
	d.Close()
	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherStopsOnPermanentError(t *testing.T) {
	d := New(Options{Workers: 1, MaxRetries: 5, RetryBackoff: time.Millisecond, Retryable: retryTransient})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "broken", func(context.Context) error {
		calls.Add(1)
		return errors.New("permanent")
	}))
	d.Close()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := New(Options{Workers: 1})
	require.NoError(t, d.Enqueue(context.Background(), "panic", func(context.Context) error {
		panic("boom")
	}))
	d.Close()
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherQueueFullAndClosed(t *testing.T) {
	d := New(Options{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "block", func(context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), "queued", func(context.Context) error { return nil }))
	assert.ErrorIs(t, d.Enqueue(context.Background(), "overflow", func(context.Context) error { return nil }), ErrQueueFull)

	close(block)
	d.Close()
	assert.ErrorIs(t, d.Enqueue(context.Background(), "late", func(context.Context) error { return nil }), ErrQueueClosed)
}

func TestDispatcherDetachesCancellation(t *testing.T) {
	d := New(Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	require.NoError(t, d.Enqueue(ctx, "detached", func(jobCtx context.Context) error {
		if jobCtx.Err() == nil {
			ran.Store(true)
		}
		return nil
	}))
	cancel()
	d.Close()
	assert.True(t, ran.Load())
}
