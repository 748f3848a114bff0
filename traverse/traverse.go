package traverse

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// Direction is a collation direction.
type Direction int

const (
	Forward Direction = 1
	Reverse Direction = -1
)

// Key is one subscript or value as the runtime holds it. Value is in
// runtime bytes; Number is set when the runtime reported a number.
type Key struct {
	Value  string
	Number bool
}

// HostKey converts a host subscript into a Key under mode and charset.
func HostKey(s string, mode codec.Mode, cs codec.Charset) (Key, error) {
	if mode == codec.Canonical && codec.IsInboundNumber(s) {
		return Key{Value: s, Number: true}, nil
	}
	v, err := codec.ToRuntime(s, cs)
	if err != nil {
		return Key{}, err
	}
	return Key{Value: v}, nil
}

// HostKeys converts a host subscript list.
func HostKeys(subs []string, mode codec.Mode, cs codec.Charset) ([]Key, error) {
	out := make([]Key, len(subs))
	for i, s := range subs {
		k, err := HostKey(s, mode, cs)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}

// IsZero reports whether k is the empty key, which seeds and ends sibling
// iteration.
func (k Key) IsZero() bool { return k.Value == "" }

// Literal renders k for the runtime. Numbers cross in embedded form and
// everything else quoted, so a key read back from the runtime always
// addresses the same node again.
func (k Key) Literal() string {
	if k.Number {
		return codec.RuntimeNumber(k.Value)
	}
	return codec.Quote(k.Value)
}

// Literals renders a key path for the runtime.
func Literals(path []Key) []string {
	out := make([]string, len(path))
	for i, k := range path {
		out[i] = k.Literal()
	}
	return out
}

// Node is one step of depth-first iteration.
type Node struct {
	Subscripts []Key
	Data       Key
	Defined    bool
}

// Primitives are the native traversal calls of a runtime. root supplies
// the namespace and variable name; its subscripts are ignored in favor of
// path. An Order with an empty path iterates variable names, seeded by
// root.Name.
type Primitives interface {
	Order(ctx context.Context, root address.Address, path []Key, dir Direction) (Key, error)
	Query(ctx context.Context, root address.Address, path []Key) (Node, error)
	ReverseQuery(ctx context.Context, root address.Address, path []Key) (Node, error)
	Data(ctx context.Context, root address.Address, path []Key) (int, error)
	Get(ctx context.Context, root address.Address, path []Key) (Key, bool, error)
}

// Holder is implemented by primitives that can run several calls as one
// exclusive unit.
type Holder interface {
	Hold(ctx context.Context, fn func(ctx context.Context) error) error
}

// Engine implements sibling and node iteration over Primitives.
type Engine struct {
	prims  Primitives
	native atomic.Bool
}

// New creates an Engine. reverse reports whether the runtime has a native
// reverse query; when it does not, PreviousNode uses the fallback.
func New(p Primitives, reverse bool) *Engine {
	e := &Engine{prims: p}
	e.native.Store(reverse)
	return e
}

// Native reports whether PreviousNode delegates to the runtime.
func (e *Engine) Native() bool { return e.native.Load() }

// Order returns the next sibling of the last key of path, or the empty key
// at the end. With an empty path it returns the next variable name after
// root.Name. Reserved bookkeeping names are never returned.
func (e *Engine) Order(ctx context.Context, root address.Address, path []Key) (Key, error) {
	return e.order(ctx, root, path, Forward)
}

// PreviousOrder is Order in reverse collation order.
func (e *Engine) PreviousOrder(ctx context.Context, root address.Address, path []Key) (Key, error) {
	return e.order(ctx, root, path, Reverse)
}

func (e *Engine) order(ctx context.Context, root address.Address, path []Key, dir Direction) (Key, error) {
	if len(path) > 0 {
		return e.prims.Order(ctx, root, path, dir)
	}
	seed := root
	for {
		k, err := e.prims.Order(ctx, seed, nil, dir)
		if err != nil || k.IsZero() || !address.IsReserved(k.Value) {
			return k, err
		}
		seed.Name = k.Value
	}
}

// NextNode returns the depth-first successor of path. An empty path, or a
// path of one empty key, starts at the first node.
func (e *Engine) NextNode(ctx context.Context, root address.Address, path []Key) (Node, error) {
	return e.prims.Query(ctx, root, seed(path))
}

// PreviousNode returns the depth-first predecessor of path. An empty path,
// or a path of one empty key, starts at the last node.
func (e *Engine) PreviousNode(ctx context.Context, root address.Address, path []Key) (Node, error) {
	path = seed(path)
	if e.native.Load() {
		n, err := e.prims.ReverseQuery(ctx, root, path)
		re, ok := errors.AsRuntime(err)
		if !ok || re.Code != errors.CodeUnknownEntry {
			return n, err
		}
		e.native.Store(false)
		Logger().Info("runtime has no reverse query, using fallback",
			zap.String("variable", root.Ref()))
	}

	h, ok := e.prims.(Holder)
	if !ok {
		return e.fallback(ctx, root, path)
	}
	var n Node
	err := h.Hold(ctx, func(ctx context.Context) error {
		var err error
		n, err = e.fallback(ctx, root, path)
		return err
	})
	return n, err
}

func seed(path []Key) []Key {
	if len(path) == 0 {
		return []Key{{}}
	}
	return path
}

func (e *Engine) fallback(ctx context.Context, root address.Address, path []Key) (Node, error) {
	cur := append([]Key(nil), path...)
	for len(cur) > 0 {
		sib, err := e.prims.Order(ctx, root, cur, Reverse)
		if err != nil {
			return Node{}, err
		}
		if !sib.IsZero() {
			cur[len(cur)-1] = sib
			return e.rightmost(ctx, root, cur)
		}
		cur = cur[:len(cur)-1]
		if len(cur) == 0 {
			break
		}
		d, err := e.prims.Data(ctx, root, cur)
		if err != nil {
			return Node{}, err
		}
		if d%10 == 1 {
			return e.node(ctx, root, cur)
		}
	}
	return Node{}, nil
}

// rightmost descends from at to the last node of its subtree.
func (e *Engine) rightmost(ctx context.Context, root address.Address, at []Key) (Node, error) {
	for {
		k, err := e.prims.Order(ctx, root, append(at, Key{}), Reverse)
		if err != nil {
			return Node{}, err
		}
		if k.IsZero() {
			break
		}
		at = append(at, k)
	}
	return e.node(ctx, root, at)
}

func (e *Engine) node(ctx context.Context, root address.Address, at []Key) (Node, error) {
	v, defined, err := e.prims.Get(ctx, root, at)
	if err != nil {
		return Node{}, err
	}
	if !defined {
		// a leaf without data cannot exist; the tree changed underneath
		return e.fallback(ctx, root, at)
	}
	return Node{Subscripts: at, Data: v, Defined: true}, nil
}

// Walk calls fn for every node of root in depth-first order until fn
// returns false.
func (e *Engine) Walk(ctx context.Context, root address.Address, fn func(Node) bool) error {
	return e.walk(ctx, root, e.NextNode, fn)
}

// WalkReverse is Walk from the last node backwards.
func (e *Engine) WalkReverse(ctx context.Context, root address.Address, fn func(Node) bool) error {
	return e.walk(ctx, root, e.PreviousNode, fn)
}

func (e *Engine) walk(ctx context.Context, root address.Address,
	step func(context.Context, address.Address, []Key) (Node, error), fn func(Node) bool,
) error {
	var path []Key
	for {
		n, err := step(ctx, root, path)
		if err != nil {
			return err
		}
		if !n.Defined || !fn(n) {
			return nil
		}
		path = n.Subscripts
	}
}

// Names calls fn for every variable name of kind in collation order, or
// in reverse, until fn returns false.
func (e *Engine) Names(ctx context.Context, kind address.Kind, dir Direction, fn func(string) bool) error {
	seed := address.Address{Kind: kind}
	for {
		k, err := e.order(ctx, seed, nil, dir)
		if err != nil {
			return err
		}
		if k.IsZero() || !fn(k.Value) {
			return nil
		}
		seed.Name = k.Value
	}
}
