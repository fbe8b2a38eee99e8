package vlmrun

import (
	"context"
	"fmt"
)

// Future is the pending result of a call started with Go.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on its own goroutine and returns a handle to its result. The
// goroutine exits once fn returns; cancelling ctx is the way to stop it early.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("vlmrun: async call panicked: %v", r)
			}
		}()
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Await blocks until the call finishes or ctx is done. A cancelled Await does
// not cancel the underlying call.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the call has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
