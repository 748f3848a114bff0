package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/errors"
)

// DefaultCapacity is the async worker pool size when SetCapacity is never
// called.
const DefaultCapacity = 8

// State is the connection state of a Core.
type State int32

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Caller issues entry calls inside a request that already holds the gate.
type Caller interface {
	Call(ctx context.Context, entry string, args ...string) (*engine.Reply, error)
}

// Request is one unit of exclusive work. A plain request calls Entry with
// Args; a request with Steps runs several entry calls as one atomic unit.
type Request struct {
	Steps      func(ctx context.Context, c Caller) (*engine.Reply, error)
	OnComplete func(*engine.Reply, error)
	Name       string
	Entry      string
	Args       []string
	Config     Config
}

func (r *Request) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Entry
}

// Core serializes every call into the backend. At most one backend call is
// in flight at any instant, whether requests arrive synchronously or through
// the async worker pool.
type Core struct {
	backend  engine.Backend
	gate     *semaphore.Weighted
	pool     *semaphore.Weighted
	relink   *bool
	wg       sync.WaitGroup
	mu       sync.Mutex
	capacity int
	state    atomic.Int32
	inFlight atomic.Bool
	poolUsed bool
}

// New creates a closed Core over backend.
func New(backend engine.Backend) *Core {
	return &Core{
		backend:  backend,
		gate:     semaphore.NewWeighted(1),
		capacity: DefaultCapacity,
	}
}

// Backend returns the backend the core serializes.
func (c *Core) Backend() engine.Backend { return c.backend }

// Features returns the backend features.
func (c *Core) Features() engine.Features { return c.backend.Features() }

// State returns the current connection state.
func (c *Core) State() State { return State(c.state.Load()) }

// Open moves the core to Open.
func (c *Core) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CompareAndSwap(int32(Closed), int32(Open)) {
		return errors.ConnectionState("open", "already open")
	}
	return nil
}

// Close moves the core to Closed. Queued requests fail with a connection
// state error; Close waits for the running request and for async workers
// to drain.
func (c *Core) Close(ctx context.Context) error {
	c.mu.Lock()
	closed := c.state.CompareAndSwap(int32(Open), int32(Closed))
	c.mu.Unlock()
	if !closed {
		return errors.ConnectionState("close", "not open")
	}
	if grantFrom(ctx, c) == nil {
		if err := c.gate.Acquire(ctx, 1); err != nil {
			return canceled("close", err)
		}
		c.gate.Release(1)
	}
	c.wg.Wait()
	c.mu.Lock()
	c.relink = nil
	c.mu.Unlock()
	return nil
}

// SetCapacity sizes the async worker pool. It fails once any async request
// has been submitted.
func (c *Core) SetCapacity(n int) error {
	if n < 1 {
		return errors.InvalidInput(errors.PhaseDispatch, "capacity must be at least 1")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poolUsed {
		return errors.New(errors.PhaseDispatch, errors.KindCapacityImmutable).
			Detail("capacity is fixed after first async use").
			Build()
	}
	c.capacity = n
	return nil
}

// Capacity returns the async worker pool size.
func (c *Core) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

func (c *Core) workers() *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.poolUsed {
		c.poolUsed = true
		c.pool = semaphore.NewWeighted(int64(c.capacity))
	}
	return c.pool
}

type grantKey struct{}

type grant struct {
	core *Core
}

func withGrant(ctx context.Context, c *Core) context.Context {
	return context.WithValue(ctx, grantKey{}, &grant{core: c})
}

func grantFrom(ctx context.Context, c *Core) *grant {
	g, _ := ctx.Value(grantKey{}).(*grant)
	if g == nil || g.core != c {
		return nil
	}
	return g
}

// Holding reports whether ctx carries exclusive access to c.
func (c *Core) Holding(ctx context.Context) bool {
	return grantFrom(ctx, c) != nil
}

// Submit executes req synchronously, blocking until it is granted exclusive
// access. Inside Hold it runs inline.
func (c *Core) Submit(ctx context.Context, req *Request) (*engine.Reply, error) {
	if grantFrom(ctx, c) != nil {
		return c.exec(ctx, req)
	}
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, c.complete(req, nil, canceled(req.label(), err))
	}
	defer c.gate.Release(1)
	return c.exec(ctx, req)
}

// Hold grants fn exclusive access for its whole duration, with cfg applied.
// Requests submitted with the ctx passed to fn run inline. Nested Hold
// calls reuse the outer grant.
func (c *Core) Hold(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if grantFrom(ctx, c) != nil {
		return fn(ctx)
	}
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return canceled("hold", err)
	}
	defer c.gate.Release(1)
	if c.State() != Open {
		return errors.ConnectionState("hold", "connection is closed")
	}
	restore, err := c.apply(ctx, cfg)
	if err != nil {
		return err
	}
	defer restore()
	return fn(withGrant(ctx, c))
}

// Go queues req on the async worker pool and returns at once. Submitting
// from inside Hold is a concurrency violation: the queued request could
// never run before the grant is released.
func (c *Core) Go(ctx context.Context, req *Request) *Call {
	call := newCall()
	if grantFrom(ctx, c) != nil {
		call.finish(nil, c.complete(req, nil, errors.Concurrency(req.label(),
			"async submission while holding exclusive access")))
		return call
	}
	// The state check and wg.Add share c.mu with Close so no worker is
	// added once Close has started waiting.
	c.mu.Lock()
	if c.State() != Open {
		c.mu.Unlock()
		call.finish(nil, c.complete(req, nil, errors.ConnectionState(req.label(), "connection is closed")))
		return call
	}
	c.wg.Add(1)
	c.mu.Unlock()

	pool := c.workers()
	qctx, cancel := context.WithCancel(ctx)
	call.cancel = cancel
	go func() {
		defer c.wg.Done()
		defer cancel()
		call.finish(c.run(qctx, pool, call, req))
	}()
	return call
}

func (c *Core) run(ctx context.Context, pool *semaphore.Weighted, call *Call, req *Request) (*engine.Reply, error) {
	if err := pool.Acquire(ctx, 1); err != nil {
		return nil, c.complete(req, nil, canceled(req.label(), err))
	}
	defer pool.Release(1)
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, c.complete(req, nil, canceled(req.label(), err))
	}
	defer c.gate.Release(1)
	if !call.start() {
		return nil, c.complete(req, nil, canceled(req.label(), context.Canceled))
	}
	// running calls cannot be interrupted
	return c.exec(context.WithoutCancel(ctx), req)
}

// exec runs req; the caller holds the gate.
func (c *Core) exec(ctx context.Context, req *Request) (*engine.Reply, error) {
	if c.State() != Open {
		return nil, c.complete(req, nil, errors.ConnectionState(req.label(), "connection is closed"))
	}

	restore, err := c.apply(ctx, req.Config)
	if err != nil {
		return nil, c.complete(req, nil, err)
	}

	id := ""
	if req.Config.Trace != TraceOff {
		id = uuid.NewString()
	}
	start := time.Now()
	bound := &boundCaller{core: c}
	var reply *engine.Reply
	if req.Steps != nil {
		reply, err = req.Steps(ctx, bound)
	} else {
		reply, err = bound.Call(ctx, req.Entry, req.Args...)
	}
	restore()
	c.trace(req, id, time.Since(start), err)
	return reply, c.complete(req, reply, err)
}

func (c *Core) complete(req *Request, reply *engine.Reply, err error) error {
	if req.OnComplete != nil {
		req.OnComplete(reply, err)
	}
	return err
}

// apply switches the backend's auto-relink to cfg and returns a function
// restoring the previous setting.
func (c *Core) apply(ctx context.Context, cfg Config) (func(), error) {
	c.mu.Lock()
	current := c.relink
	c.mu.Unlock()
	if current != nil && *current == cfg.AutoRelink {
		return func() {}, nil
	}
	prev, err := c.configure(ctx, cfg.AutoRelink)
	if err != nil {
		return nil, err
	}
	if prev == cfg.AutoRelink {
		return func() {}, nil
	}
	return func() {
		if _, err := c.configure(context.WithoutCancel(ctx), prev); err != nil {
			Logger().Warn("restore relink failed", zap.Error(err))
		}
	}, nil
}

func (c *Core) configure(ctx context.Context, relink bool) (bool, error) {
	arg := "0"
	if relink {
		arg = "1"
	}
	reply, err := c.invoke(ctx, engine.EntryConfigure, arg)
	if err != nil {
		return false, err
	}
	prev, err := reply.Bool("relink")
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.relink = &relink
	c.mu.Unlock()
	return prev, nil
}

// invoke is the single path into the backend.
func (c *Core) invoke(ctx context.Context, entry string, args ...string) (*engine.Reply, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, errors.Concurrency(entry, "a backend call is already in flight")
	}
	defer c.inFlight.Store(false)
	raw, err := c.backend.Call(ctx, entry, args...)
	if err != nil {
		return nil, err
	}
	return engine.ParseReply(entry, raw)
}

func (c *Core) trace(req *Request, id string, d time.Duration, err error) {
	lvl := req.Config.Trace
	if lvl == TraceOff || (lvl == TraceLow && err == nil) {
		return
	}
	fields := []zap.Field{
		zap.String("id", id),
		zap.String("request", req.label()),
		zap.Duration("duration", d),
	}
	if lvl == TraceHigh {
		fields = append(fields, zap.Strings("args", req.Args))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := Logger().Check(lvl.zapLevel(), "call"); ce != nil {
		ce.Write(fields...)
	}
}

type boundCaller struct {
	core *Core
}

func (b *boundCaller) Call(ctx context.Context, entry string, args ...string) (*engine.Reply, error) {
	return b.core.invoke(ctx, entry, args...)
}

func canceled(op string, cause error) error {
	return errors.New(errors.PhaseDispatch, errors.KindCanceled).
		Op(op).
		Cause(cause).
		Detail("canceled while queued").
		Build()
}
