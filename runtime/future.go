package runtime

import (
	"context"
	"sync"

	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
)

// Future is the pending result of an async operation.
type Future[T any] struct {
	call   *dispatch.Call
	decode func(*engine.Reply) (T, error)
	done   chan struct{}
	val    T
	err    error
	once   sync.Once
}

func failed[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	f.once.Do(func() {})
	return f
}

// Done is closed once the operation has completed or was canceled.
func (f *Future[T]) Done() <-chan struct{} {
	if f.call == nil {
		return f.done
	}
	return f.call.Done()
}

// Wait blocks until the result is available or ctx is done. Giving up the
// wait does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.Done():
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future[T]) Result() (T, error) {
	f.once.Do(func() {
		reply, err := f.call.Result()
		if err != nil {
			f.err = err
			return
		}
		f.val, f.err = f.decode(reply)
	})
	return f.val, f.err
}

// Cancel withdraws the operation if it is still queued.
func (f *Future[T]) Cancel() bool {
	if f.call == nil {
		return false
	}
	return f.call.Cancel()
}
