package runtime

import (
	"context"
	"strconv"
	"time"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/errors"
	"github.com/wippyai/mbridge/traverse"
)

// op is a prepared request and the decoder for its reply.
type op[T any] struct {
	req    *dispatch.Request
	decode func(*engine.Reply) (T, error)
}

func run[T any](ctx context.Context, s *Session, o op[T], err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	reply, err := s.rt.core.Submit(ctx, o.req)
	if err != nil {
		return zero, err
	}
	return o.decode(reply)
}

func async[T any](ctx context.Context, s *Session, o op[T], err error) *Future[T] {
	if err != nil {
		return failed[T](err)
	}
	return &Future[T]{call: s.rt.core.Go(ctx, o.req), decode: o.decode}
}

func none(*engine.Reply) (struct{}, error) { return struct{}{}, nil }

func (s *Session) request(cfg ThreadConfig, entry string, args ...string) (*dispatch.Request, error) {
	if err := codec.CheckSize(args, s.rt.Features().MaxParamSize); err != nil {
		return nil, err
	}
	return &dispatch.Request{Entry: entry, Args: args, Config: cfg.dispatchConfig()}, nil
}

func (s *Session) steps(cfg ThreadConfig, name string, fn func(ctx context.Context, c dispatch.Caller) error) *dispatch.Request {
	return &dispatch.Request{
		Name:   name,
		Config: cfg.dispatchConfig(),
		Steps: func(ctx context.Context, c dispatch.Caller) (*engine.Reply, error) {
			return nil, fn(ctx, c)
		},
	}
}

// nodeArgs renders the kind, name and subscript parameters of a node.
func nodeArgs(a address.Address, cfg ThreadConfig) ([]string, error) {
	if a.Kind == address.Intrinsic {
		if len(a.Subscripts) > 0 {
			return nil, errors.InvalidInput(errors.PhaseAddress, "intrinsic variables have no subscripts")
		}
		return []string{engine.KindIntrinsic, a.Name, ""}, nil
	}
	if err := address.ValidateName(a.Name); err != nil {
		return nil, err
	}
	keys, err := traverse.HostKeys(a.Subscripts, cfg.Mode, cfg.Charset)
	if err != nil {
		return nil, err
	}
	return []string{engine.KindTag(a.Kind), a.Name, traverse.Vector(keys)}, nil
}

// valueLiteral marshals a Go value for the runtime.
func valueLiteral(v any, cfg ThreadConfig) (string, error) {
	tok, err := codec.FormatToken(v)
	if err != nil {
		return "", err
	}
	if cfg.Mode == codec.Canonical && codec.IsInboundNumber(tok) {
		return codec.CanonicalizeInbound(tok, cfg.Mode), nil
	}
	raw, err := codec.ToRuntime(tok, cfg.Charset)
	if err != nil {
		return "", err
	}
	return codec.Quote(raw), nil
}

func hostValue(k traverse.Key, cfg ThreadConfig) (any, error) {
	if k.Number {
		if cfg.Mode == codec.Canonical {
			return codec.Number(k.Value), nil
		}
		return k.Value, nil
	}
	return codec.FromRuntime(k.Value, cfg.Charset)
}

func hostSubscript(k traverse.Key, cs codec.Charset) (string, error) {
	if k.Number {
		return k.Value, nil
	}
	return codec.FromRuntime(k.Value, cs)
}

// About describes the runtime behind the bridge.
type About struct {
	Version          string
	IndirectionLimit int
	MaxParamSize     int
	TLevel           int
	ReverseQuery     bool
}

// About queries the runtime version and limits.
func (s *Session) About(ctx context.Context) (About, error) {
	cfg := s.Config()
	req, err := s.request(cfg, engine.EntryAbout)
	return run(ctx, s, op[About]{req: req, decode: func(r *engine.Reply) (About, error) {
		var a About
		var err error
		if a.Version, err = r.String("version", codec.UTF8); err != nil {
			return a, err
		}
		if a.IndirectionLimit, err = r.Int("indirectionLimit"); err != nil {
			return a, err
		}
		if a.MaxParamSize, err = r.Int("maxParamSize"); err != nil {
			return a, err
		}
		if a.ReverseQuery, err = r.Bool("reverseQuery"); err != nil {
			return a, err
		}
		a.TLevel, err = r.Int("tlevel")
		return a, err
	}}, err)
}

type lookup struct {
	value   any
	defined bool
}

func (s *Session) lookupOp(a address.Address) (op[lookup], error) {
	cfg := s.Config()
	args, err := nodeArgs(a, cfg)
	if err != nil {
		return op[lookup]{}, err
	}
	req, err := s.request(cfg, engine.EntryGet, append(args, string(cfg.Mode))...)
	if err != nil {
		return op[lookup]{}, err
	}
	return op[lookup]{req: req, decode: func(r *engine.Reply) (lookup, error) {
		defined, err := r.Bool("defined")
		if err != nil || !defined {
			return lookup{}, err
		}
		v, err := r.Value("data", cfg.Mode, cfg.Charset)
		return lookup{value: v, defined: true}, err
	}}, nil
}

func (s *Session) getOp(a address.Address) (op[any], error) {
	o, err := s.lookupOp(a)
	if err != nil {
		return op[any]{}, err
	}
	return op[any]{req: o.req, decode: func(r *engine.Reply) (any, error) {
		l, err := o.decode(r)
		if err != nil {
			return nil, err
		}
		if !l.defined {
			return nil, errors.NotFound(errors.PhaseRuntime, "node", a.String())
		}
		return l.value, nil
	}}, nil
}

// Lookup reads a node, reporting whether it holds data.
func (s *Session) Lookup(ctx context.Context, a address.Address) (any, bool, error) {
	o, err := s.lookupOp(a)
	l, err := run(ctx, s, o, err)
	return l.value, l.defined, err
}

// Get reads a node. A node without data is a not-found error.
func (s *Session) Get(ctx context.Context, a address.Address) (any, error) {
	o, err := s.getOp(a)
	return run(ctx, s, o, err)
}

// GetAsync is Get on the worker pool.
func (s *Session) GetAsync(ctx context.Context, a address.Address) *Future[any] {
	o, err := s.getOp(a)
	return async(ctx, s, o, err)
}

func (s *Session) dataOp(a address.Address) (op[int], error) {
	cfg := s.Config()
	args, err := nodeArgs(a, cfg)
	if err != nil {
		return op[int]{}, err
	}
	req, err := s.request(cfg, engine.EntryData, args...)
	return op[int]{req: req, decode: func(r *engine.Reply) (int, error) {
		return r.Int("data")
	}}, err
}

// Data returns 0 (no node), 1 (data only), 10 (descendants only) or 11
// (both).
func (s *Session) Data(ctx context.Context, a address.Address) (int, error) {
	o, err := s.dataOp(a)
	return run(ctx, s, o, err)
}

// DataAsync is Data on the worker pool.
func (s *Session) DataAsync(ctx context.Context, a address.Address) *Future[int] {
	o, err := s.dataOp(a)
	return async(ctx, s, o, err)
}

func (s *Session) setOp(a address.Address, value any) (op[struct{}], error) {
	cfg := s.Config()
	args, err := nodeArgs(a, cfg)
	if err != nil {
		return op[struct{}]{}, err
	}
	lit, err := valueLiteral(value, cfg)
	if err != nil {
		return op[struct{}]{}, err
	}
	req, err := s.request(cfg, engine.EntrySet, append(args, lit)...)
	return op[struct{}]{req: req, decode: none}, err
}

// Set writes a node. Intrinsic variables are set the same way.
func (s *Session) Set(ctx context.Context, a address.Address, value any) error {
	o, err := s.setOp(a, value)
	_, err = run(ctx, s, o, err)
	return err
}

// SetAsync is Set on the worker pool.
func (s *Session) SetAsync(ctx context.Context, a address.Address, value any) *Future[struct{}] {
	o, err := s.setOp(a, value)
	return async(ctx, s, o, err)
}

func (s *Session) killOp(a address.Address, nodeOnly bool) (op[struct{}], error) {
	cfg := s.Config()
	args, err := nodeArgs(a, cfg)
	if err != nil {
		return op[struct{}]{}, err
	}
	flag := "0"
	if nodeOnly {
		flag = "1"
	}
	req, err := s.request(cfg, engine.EntryKill, append(args, flag)...)
	return op[struct{}]{req: req, decode: none}, err
}

// Kill deletes a node and all its descendants.
func (s *Session) Kill(ctx context.Context, a address.Address) error {
	o, err := s.killOp(a, false)
	_, err = run(ctx, s, o, err)
	return err
}

// KillNode deletes only the data of a node, keeping its descendants.
func (s *Session) KillNode(ctx context.Context, a address.Address) error {
	o, err := s.killOp(a, true)
	_, err = run(ctx, s, o, err)
	return err
}

// KillAsync is Kill on the worker pool.
func (s *Session) KillAsync(ctx context.Context, a address.Address) *Future[struct{}] {
	o, err := s.killOp(a, false)
	return async(ctx, s, o, err)
}

// Merge copies every node under from onto to.
func (s *Session) Merge(ctx context.Context, to, from address.Address) error {
	cfg := s.Config()
	toArgs, err := nodeArgs(to, cfg)
	if err != nil {
		return err
	}
	fromArgs, err := nodeArgs(from, cfg)
	if err != nil {
		return err
	}
	req, err := s.request(cfg, engine.EntryMerge, append(toArgs, fromArgs...)...)
	_, err = run(ctx, s, op[struct{}]{req: req, decode: none}, err)
	return err
}

func (s *Session) orderOp(a address.Address, dir traverse.Direction) (op[string], error) {
	cfg := s.Config()
	if a.Kind == address.Intrinsic {
		return op[string]{}, errors.InvalidInput(errors.PhaseTraverse, "intrinsic variables have no order")
	}
	if a.Name != "" || len(a.Subscripts) > 0 {
		if err := address.ValidateName(a.Name); err != nil {
			return op[string]{}, err
		}
	}
	keys, err := traverse.HostKeys(a.Subscripts, cfg.Mode, cfg.Charset)
	if err != nil {
		return op[string]{}, err
	}
	if err := codec.CheckSize(traverse.Literals(keys), s.rt.Features().MaxParamSize); err != nil {
		return op[string]{}, err
	}
	root := address.Address{Kind: a.Kind, Name: a.Name}
	var next traverse.Key
	req := s.steps(cfg, engine.EntryOrder, func(ctx context.Context, c dispatch.Caller) error {
		eng := traverse.New(traverse.FromCaller(c), s.rt.native.Load())
		var err error
		if dir == traverse.Reverse {
			next, err = eng.PreviousOrder(ctx, root, keys)
		} else {
			next, err = eng.Order(ctx, root, keys)
		}
		return err
	})
	return op[string]{req: req, decode: func(*engine.Reply) (string, error) {
		return hostSubscript(next, cfg.Charset)
	}}, nil
}

// Order returns the next sibling of the last subscript of a, or "" after
// the last one. An unsubscripted address iterates variable names instead,
// starting after a.Name. Bridge-internal names are never returned.
func (s *Session) Order(ctx context.Context, a address.Address) (string, error) {
	o, err := s.orderOp(a, traverse.Forward)
	return run(ctx, s, o, err)
}

// Previous is Order in reverse collation order.
func (s *Session) Previous(ctx context.Context, a address.Address) (string, error) {
	o, err := s.orderOp(a, traverse.Reverse)
	return run(ctx, s, o, err)
}

// OrderAsync is Order on the worker pool.
func (s *Session) OrderAsync(ctx context.Context, a address.Address) *Future[string] {
	o, err := s.orderOp(a, traverse.Forward)
	return async(ctx, s, o, err)
}

// Node is one step of depth-first iteration.
type Node struct {
	Data       any
	Subscripts []string
	Defined    bool
}

func hostNode(n traverse.Node, cfg ThreadConfig) (Node, error) {
	if !n.Defined {
		return Node{}, nil
	}
	out := Node{Defined: true, Subscripts: make([]string, len(n.Subscripts))}
	for i, k := range n.Subscripts {
		sub, err := hostSubscript(k, cfg.Charset)
		if err != nil {
			return Node{}, err
		}
		out.Subscripts[i] = sub
	}
	var err error
	out.Data, err = hostValue(n.Data, cfg)
	return out, err
}

func (s *Session) nodeOp(a address.Address, dir traverse.Direction) (op[Node], error) {
	cfg := s.Config()
	if err := address.ValidateName(a.Name); err != nil {
		return op[Node]{}, err
	}
	keys, err := traverse.HostKeys(a.Subscripts, cfg.Mode, cfg.Charset)
	if err != nil {
		return op[Node]{}, err
	}
	root := address.Address{Kind: a.Kind, Name: a.Name}
	var found traverse.Node
	req := s.steps(cfg, engine.EntryNextNode, func(ctx context.Context, c dispatch.Caller) error {
		eng := traverse.New(traverse.FromCaller(c), s.rt.native.Load())
		var err error
		if dir == traverse.Reverse {
			found, err = eng.PreviousNode(ctx, root, keys)
			if !eng.Native() {
				s.rt.native.Store(false)
			}
		} else {
			found, err = eng.NextNode(ctx, root, keys)
		}
		return err
	})
	if dir == traverse.Reverse {
		req.Name = engine.EntryPreviousNode
	}
	return op[Node]{req: req, decode: func(*engine.Reply) (Node, error) {
		return hostNode(found, cfg)
	}}, nil
}

// NextNode returns the depth-first successor of a within its variable.
// Defined is false past the last node.
func (s *Session) NextNode(ctx context.Context, a address.Address) (Node, error) {
	o, err := s.nodeOp(a, traverse.Forward)
	return run(ctx, s, o, err)
}

// PreviousNode returns the depth-first predecessor of a. Runtimes without
// a native reverse query are served by the traversal fallback.
func (s *Session) PreviousNode(ctx context.Context, a address.Address) (Node, error) {
	o, err := s.nodeOp(a, traverse.Reverse)
	return run(ctx, s, o, err)
}

// NextNodeAsync is NextNode on the worker pool.
func (s *Session) NextNodeAsync(ctx context.Context, a address.Address) *Future[Node] {
	o, err := s.nodeOp(a, traverse.Forward)
	return async(ctx, s, o, err)
}

// Walk calls fn for every node of a's variable in depth-first order until
// fn returns false. Each step is a separate call, so fn may use the session.
func (s *Session) Walk(ctx context.Context, a address.Address, fn func(Node) bool) error {
	return s.walk(ctx, a, false, fn)
}

// WalkReverse is Walk from the last node backwards.
func (s *Session) WalkReverse(ctx context.Context, a address.Address, fn func(Node) bool) error {
	return s.walk(ctx, a, true, fn)
}

func (s *Session) walk(ctx context.Context, a address.Address, reverse bool, fn func(Node) bool) error {
	if err := address.ValidateName(a.Name); err != nil {
		return err
	}
	cfg := s.Config()
	eng := traverse.New(traverse.NewRemote(s.rt.core, cfg.dispatchConfig()), s.rt.native.Load())
	root := address.Address{Kind: a.Kind, Name: a.Name}
	var convErr error
	visit := func(n traverse.Node) bool {
		h, err := hostNode(n, cfg)
		if err != nil {
			convErr = err
			return false
		}
		return fn(h)
	}
	var err error
	if reverse {
		err = eng.WalkReverse(ctx, root, visit)
		if !eng.Native() {
			s.rt.native.Store(false)
		}
	} else {
		err = eng.Walk(ctx, root, visit)
	}
	if err != nil {
		return err
	}
	return convErr
}

func (s *Session) incrementOp(a address.Address, by any) (op[any], error) {
	cfg := s.Config()
	args, err := nodeArgs(a, cfg)
	if err != nil {
		return op[any]{}, err
	}
	tok, err := codec.FormatToken(by)
	if err != nil {
		return op[any]{}, err
	}
	if !codec.IsInboundNumber(tok) {
		return op[any]{}, errors.InvalidInput(errors.PhaseEncode, "increment must be a number")
	}
	lit := codec.CanonicalizeInbound(tok, codec.Canonical)
	req, err := s.request(cfg, engine.EntryIncrement, append(args, lit, string(cfg.Mode))...)
	return op[any]{req: req, decode: func(r *engine.Reply) (any, error) {
		return r.Value("data", cfg.Mode, cfg.Charset)
	}}, err
}

// Increment atomically adds by to a node and returns the new value. A node
// without data counts as 0.
func (s *Session) Increment(ctx context.Context, a address.Address, by any) (any, error) {
	o, err := s.incrementOp(a, by)
	return run(ctx, s, o, err)
}

// IncrementAsync is Increment on the worker pool.
func (s *Session) IncrementAsync(ctx context.Context, a address.Address, by any) *Future[any] {
	o, err := s.incrementOp(a, by)
	return async(ctx, s, o, err)
}

// Lock takes an incremental lock on a node. A negative timeout waits until
// the lock is granted or ctx is done. It reports whether the lock was
// granted.
func (s *Session) Lock(ctx context.Context, a address.Address, timeout time.Duration) (bool, error) {
	cfg := s.Config()
	args, err := nodeArgs(a, cfg)
	if err != nil {
		return false, err
	}
	secs := "-1"
	if timeout >= 0 {
		secs = strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	}
	req, err := s.request(cfg, engine.EntryLock, append(args, secs)...)
	return run(ctx, s, op[bool]{req: req, decode: func(r *engine.Reply) (bool, error) {
		n, err := r.Int("result")
		return n == 1, err
	}}, err)
}

// Unlock releases one incremental lock on a node.
func (s *Session) Unlock(ctx context.Context, a address.Address) error {
	cfg := s.Config()
	args, err := nodeArgs(a, cfg)
	if err != nil {
		return err
	}
	req, err := s.request(cfg, engine.EntryUnlock, args...)
	_, err = run(ctx, s, op[struct{}]{req: req, decode: none}, err)
	return err
}

// UnlockAll releases every lock the runtime holds.
func (s *Session) UnlockAll(ctx context.Context) error {
	req, err := s.request(s.Config(), engine.EntryUnlock, engine.KindGlobal, "", "")
	_, err = run(ctx, s, op[struct{}]{req: req, decode: none}, err)
	return err
}

func (s *Session) directoryOp(kind address.Kind) op[[]string] {
	cfg := s.Config()
	var names []string
	req := s.steps(cfg, "directory", func(ctx context.Context, c dispatch.Caller) error {
		names = names[:0]
		eng := traverse.New(traverse.FromCaller(c), s.rt.native.Load())
		return eng.Names(ctx, kind, traverse.Forward, func(n string) bool {
			names = append(names, n)
			return true
		})
	})
	return op[[]string]{req: req, decode: func(*engine.Reply) ([]string, error) {
		return names, nil
	}}
}

// GlobalDirectory lists the names of all globals.
func (s *Session) GlobalDirectory(ctx context.Context) ([]string, error) {
	return run(ctx, s, s.directoryOp(address.Global), nil)
}

// LocalDirectory lists the names of all local variables.
func (s *Session) LocalDirectory(ctx context.Context) ([]string, error) {
	return run(ctx, s, s.directoryOp(address.Local), nil)
}
