package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/mbridge/engine"
)

// Call is an async request. Its result is available once Done is closed.
type Call struct {
	reply   *engine.Reply
	err     error
	done    chan struct{}
	cancel  context.CancelFunc
	started atomic.Bool
}

func newCall() *Call {
	return &Call{done: make(chan struct{})}
}

func (c *Call) finish(reply *engine.Reply, err error) {
	c.started.Store(true)
	c.reply, c.err = reply, err
	close(c.done)
}

// start marks the call as running. It fails if the call was canceled first.
func (c *Call) start() bool {
	return c.started.CompareAndSwap(false, true)
}

// Done is closed when the call has completed or was canceled.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call completes or ctx is done. Giving up the wait
// does not cancel the call.
func (c *Call) Wait(ctx context.Context) (*engine.Reply, error) {
	select {
	case <-c.done:
		return c.reply, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a completed call. It must only be used
// after Done is closed.
func (c *Call) Result() (*engine.Reply, error) {
	return c.reply, c.err
}

// Cancel withdraws a call that has not started executing. It reports false
// when the call is already running or finished.
func (c *Call) Cancel() bool {
	if !c.started.CompareAndSwap(false, true) {
		return false
	}
	if c.cancel != nil {
		c.cancel()
	}
	return true
}
