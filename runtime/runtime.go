package runtime

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/errors"
)

// Options configure a Runtime.
type Options struct {
	// Defaults are the initial configuration of every new session.
	Defaults ThreadConfig

	// Capacity sizes the async worker pool. It is applied at the first
	// Open and fixed afterwards. 0 keeps dispatch.DefaultCapacity.
	Capacity int

	// Signals forwards SIGINT, SIGTERM and SIGQUIT to OnSignal while the
	// runtime is open.
	Signals bool

	// OnSignal receives forwarded signals. nil logs them.
	OnSignal func(os.Signal)

	// Terminal is the file whose terminal state is saved at Open and
	// restored at Close. nil means os.Stdin. Nothing is saved when it is
	// not a terminal.
	Terminal *os.File

	// OwnBackend closes the backend when the owner closes the runtime.
	// A runtime with an owned backend cannot be reopened.
	OwnBackend bool
}

// Runtime is the single process-wide channel to an embedded runtime.
type Runtime struct {
	backend engine.Backend
	core    *dispatch.Core
	owner   *Owner
	opts    Options
	mu      sync.Mutex
	native  atomic.Bool
	sized   bool
}

// New creates a closed Runtime over backend.
func New(backend engine.Backend, opts Options) *Runtime {
	opts.Defaults = opts.Defaults.normalize()
	r := &Runtime{
		backend: backend,
		core:    dispatch.New(backend),
		opts:    opts,
	}
	r.native.Store(backend.Features().ReverseQuery)
	return r
}

// Core returns the dispatch core every call passes through.
func (r *Runtime) Core() *dispatch.Core { return r.core }

// Features returns the backend features.
func (r *Runtime) Features() engine.Features { return r.backend.Features() }

// State returns the connection state.
func (r *Runtime) State() dispatch.State { return r.core.State() }

// Owner is the handle returned by Open. Only the current owner can close
// the runtime.
type Owner struct {
	rt       *Runtime
	term     *terminalState
	stopSigs func()
	id       string
}

// ID identifies this open period in logs.
func (o *Owner) ID() string { return o.id }

// Open opens the runtime and returns its owner. It fails with a connection
// state error when the runtime is already open.
func (r *Runtime) Open(ctx context.Context) (*Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != nil {
		return nil, errors.ConnectionState("open", "runtime is already open")
	}
	if !r.sized {
		if r.opts.Capacity > 0 {
			if err := r.core.SetCapacity(r.opts.Capacity); err != nil {
				return nil, err
			}
		}
		r.sized = true
	}
	if err := r.core.Open(); err != nil {
		return nil, err
	}

	reply, err := r.core.Submit(ctx, &dispatch.Request{Entry: engine.EntryAbout})
	if err != nil {
		_ = r.core.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	version, _ := reply.String("version", codec.UTF8)
	if reply.Has("reverseQuery") {
		if rq, err := reply.Bool("reverseQuery"); err == nil {
			r.native.Store(rq)
		}
	}

	o := &Owner{rt: r, id: uuid.NewString()}
	o.term = saveTerminal(r.opts.Terminal)
	if r.opts.Signals {
		o.stopSigs = forwardSignals(r.opts.OnSignal)
	}
	r.owner = o
	Logger().Info("runtime opened",
		zap.String("owner", o.id),
		zap.String("version", version),
		zap.Bool("reverse_query", r.native.Load()))
	return o, nil
}

// Close closes the runtime. Queued calls fail, the running call completes,
// terminal and signal state are restored and an owned backend is closed.
// A stale owner gets a connection state error.
func (o *Owner) Close(ctx context.Context) error {
	r := o.rt
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != o {
		return errors.ConnectionState("close", "owner is stale")
	}
	r.owner = nil

	err := r.core.Close(ctx)
	if o.stopSigs != nil {
		o.stopSigs()
	}
	err = multierr.Append(err, o.term.restore())
	if r.opts.OwnBackend {
		err = multierr.Append(err, r.backend.Close(ctx))
	}
	Logger().Info("runtime closed", zap.String("owner", o.id), zap.Error(err))
	return err
}
