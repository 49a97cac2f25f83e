package mcpipe

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous operation.
//
// It is completed exactly once, with either a value or an error. All methods
// are safe for concurrent use.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	completed bool
	value     T
	err       error
	callbacks []func(T, error)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve completes the future with a value.
func (f *Future[T]) resolve(v T) {
	f.complete(v, nil)
}

// reject completes the future with an error.
func (f *Future[T]) reject(err error) {
	var zero T
	f.complete(zero, err)
}

// complete panics when called a second time.
func (f *Future[T]) complete(v T, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		panic("mcpipe: future completed twice")
	}
	f.completed = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn(v, err)
	}
	close(f.done)
}

// Done returns a channel closed once the future is complete and the callbacks
// registered before completion have run.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Value blocks until the future is complete and returns its outcome.
func (f *Future[T]) Value() (T, error) {
	<-f.done
	return f.value, f.err
}

// Wait is Value bounded by ctx. Giving up does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to be called with the outcome. If the future is
// already complete, fn runs immediately on the calling goroutine; otherwise it
// runs on the goroutine that completes the future, before Value returns.
// fn must not wait on the same future.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()

	fn(v, err)
}
