package mcpipe

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_Resolve(t *testing.T) {
	f := newFuture[int]()
	requirePending(t, f)

	f.resolve(42)

	v, err := requireCompleted(t, f)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestFuture_Reject(t *testing.T) {
	boom := errors.New("boom")
	f := newFuture[string]()
	f.reject(boom)

	v, err := f.Value()
	require.ErrorIs(t, err, boom)
	require.Empty(t, v)
}

func TestFuture_ValueBlocks(t *testing.T) {
	f := newFuture[int]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.resolve(1)
	}()

	v, err := f.Value()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestFuture_CompleteTwicePanics(t *testing.T) {
	f := newFuture[int]()
	f.resolve(1)

	require.Panics(t, func() { f.resolve(2) })
	require.Panics(t, func() { f.reject(errors.New("late")) })

	v, err := f.Value()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestFuture_OnComplete(t *testing.T) {
	f := newFuture[int]()

	var calls []int
	f.OnComplete(func(v int, err error) {
		assert.NoError(t, err)
		calls = append(calls, v)
	})
	f.OnComplete(func(v int, err error) {
		calls = append(calls, v*10)
	})
	require.Empty(t, calls)

	f.resolve(3)
	require.Equal(t, []int{3, 30}, calls)

	// Registered after completion: runs immediately.
	f.OnComplete(func(v int, err error) {
		calls = append(calls, v*100)
	})
	require.Equal(t, []int{3, 30, 300}, calls)
}

func TestFuture_Wait(t *testing.T) {
	f := newFuture[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.resolve(7)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestFuture_CallbacksRunBeforeWaitersWake(t *testing.T) {
	f := newFuture[int]()

	var seen atomic.Int32
	f.OnComplete(func(v int, err error) {
		time.Sleep(10 * time.Millisecond)
		seen.Store(int32(v))
	})

	go f.resolve(5)

	v, err := f.Value()
	require.NoError(t, err)
	require.Equal(t, 5, v)
	require.Equal(t, int32(5), seen.Load())
}
