package traverse

import (
	"context"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
)

// Remote implements Primitives with entry calls, either submitted to a
// dispatch core or issued through a Caller inside a request that already
// holds the gate.
type Remote struct {
	core   *dispatch.Core
	caller dispatch.Caller
	cfg    dispatch.Config
}

var (
	_ Primitives = (*Remote)(nil)
	_ Holder     = (*Remote)(nil)
)

// NewRemote creates primitives bound to core and cfg.
func NewRemote(core *dispatch.Core, cfg dispatch.Config) *Remote {
	return &Remote{core: core, cfg: cfg}
}

// FromCaller creates primitives for use inside a request's Steps.
func FromCaller(c dispatch.Caller) *Remote {
	return &Remote{caller: c}
}

func (r *Remote) call(ctx context.Context, entry string, args ...string) (*engine.Reply, error) {
	if r.caller != nil {
		return r.caller.Call(ctx, entry, args...)
	}
	return r.core.Submit(ctx, &dispatch.Request{Entry: entry, Args: args, Config: r.cfg})
}

// Hold runs fn with exclusive access to the runtime. A Caller already has
// it.
func (r *Remote) Hold(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.caller != nil {
		return fn(ctx)
	}
	return r.core.Hold(ctx, r.cfg, fn)
}

// Vector encodes a key path as a subscript vector. The unsubscripted node
// is the empty string.
func Vector(path []Key) string {
	if len(path) == 0 {
		return ""
	}
	return codec.Encode(Literals(path))
}

func (r *Remote) Order(ctx context.Context, root address.Address, path []Key, dir Direction) (Key, error) {
	d := "1"
	if dir == Reverse {
		d = "-1"
	}
	reply, err := r.call(ctx, engine.EntryOrder,
		engine.KindTag(root.Kind), root.Name, Vector(path), d, string(codec.Canonical))
	if err != nil {
		return Key{}, err
	}
	v, num, err := reply.Literal("result")
	return Key{Value: v, Number: num}, err
}

func (r *Remote) Query(ctx context.Context, root address.Address, path []Key) (Node, error) {
	return r.query(ctx, engine.EntryNextNode, root, path)
}

func (r *Remote) ReverseQuery(ctx context.Context, root address.Address, path []Key) (Node, error) {
	return r.query(ctx, engine.EntryPreviousNode, root, path)
}

func (r *Remote) query(ctx context.Context, entry string, root address.Address, path []Key) (Node, error) {
	reply, err := r.call(ctx, entry,
		engine.KindTag(root.Kind), root.Name, Vector(path), string(codec.Canonical))
	if err != nil {
		return Node{}, err
	}
	defined, err := reply.Bool("defined")
	if err != nil || !defined {
		return Node{}, err
	}
	vals, nums, err := reply.Literals("subscripts")
	if err != nil {
		return Node{}, err
	}
	n := Node{Defined: true, Subscripts: make([]Key, len(vals))}
	for i := range vals {
		n.Subscripts[i] = Key{Value: vals[i], Number: nums[i]}
	}
	n.Data.Value, n.Data.Number, err = reply.Literal("data")
	if err != nil {
		return Node{}, err
	}
	return n, nil
}

func (r *Remote) Data(ctx context.Context, root address.Address, path []Key) (int, error) {
	reply, err := r.call(ctx, engine.EntryData, engine.KindTag(root.Kind), root.Name, Vector(path))
	if err != nil {
		return 0, err
	}
	return reply.Int("data")
}

func (r *Remote) Get(ctx context.Context, root address.Address, path []Key) (Key, bool, error) {
	reply, err := r.call(ctx, engine.EntryGet,
		engine.KindTag(root.Kind), root.Name, Vector(path), string(codec.Canonical))
	if err != nil {
		return Key{}, false, err
	}
	defined, err := reply.Bool("defined")
	if err != nil || !defined {
		return Key{}, false, err
	}
	v, num, err := reply.Literal("data")
	if err != nil {
		return Key{}, false, err
	}
	return Key{Value: v, Number: num}, true, nil
}
