package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/prepsync/internal/log"
)

func TestAutoSyncRunsRepeatedly(t *testing.T) {
	var calls atomic.Int32
	a := New(50*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, log.Discard)

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, a.Runs(), 2)
}

func TestAutoSyncStartTwice(t *testing.T) {
	a := New(time.Hour, func(context.Context) error { return nil }, log.Discard)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	assert.Error(t, a.Start(context.Background()))
}

func TestAutoSyncStopCancelsContext(t *testing.T) {
	started := make(chan struct{})
	var sawCancel atomic.Bool
	a := New(time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}, log.Discard)

	require.NoError(t, a.Start(context.Background()))
	<-started
	a.Stop()

	assert.Eventually(t, sawCancel.Load, time.Second, 10*time.Millisecond)
}

func TestAutoSyncLogsErrors(t *testing.T) {
	done := make(chan struct{}, 1)
	a := New(time.Hour, func(context.Context) error {
		defer func() { done <- struct{}{} }()
		return errors.New("boom")
	}, log.Discard)

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)
	<-done
}

func TestDefaultInterval(t *testing.T) {
	a := New(0, func(context.Context) error { return nil }, nil)
	assert.Equal(t, DefaultInterval, a.interval)
}
