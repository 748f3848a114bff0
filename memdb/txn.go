package memdb

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// Durability classes accepted by tstart.
const (
	Serial = "serial"
	Batch  = "batch"
)

// frame is one level of transaction nesting.
type frame struct {
	saved      map[string]*node
	durability string
	all        bool
	undo       []undo
	mark       int
}

// undo restores one global to its state before a change: the whole subtree
// when whole is set, otherwise just the node's value.
type undo struct {
	prev  *node
	name  string
	subs  []string
	val   string
	whole bool
	had   bool
}

func (db *DB) journaling(sp *space) bool {
	return sp == db.globals && len(db.frames) > 0
}

func (db *DB) journalValue(sp *space, name string, subs []string) {
	if !db.journaling(sp) {
		return
	}
	u := undo{name: name, subs: append([]string(nil), subs...)}
	if n := sp.lookup(name, subs); n != nil {
		u.had, u.val = n.hasValue, n.value
	}
	f := db.frames[len(db.frames)-1]
	f.undo = append(f.undo, u)
}

func (db *DB) journalTree(sp *space, name string, subs []string) {
	if !db.journaling(sp) {
		return
	}
	f := db.frames[len(db.frames)-1]
	f.undo = append(f.undo, undo{
		name:  name,
		subs:  append([]string(nil), subs...),
		whole: true,
		prev:  sp.lookup(name, subs).clone(),
	})
}

func (u undo) apply(sp *space) {
	if u.whole {
		sp.replace(u.name, u.subs, u.prev)
		return
	}
	if u.had {
		n := sp.ensure(u.name, u.subs)
		n.value, n.hasValue = u.val, true
		return
	}
	if n := sp.lookup(u.name, u.subs); n != nil {
		n.value, n.hasValue = "", false
		sp.prune(u.name, u.subs)
	}
}

// setValue assigns a node, journaling and persisting global changes.
func (db *DB) setValue(sp *space, name string, subs []string, v string) {
	db.journalValue(sp, name, subs)
	n := sp.ensure(name, subs)
	n.value, n.hasValue = v, true
	db.persist(sp, op{kind: opPut, name: name, subs: subs, value: v})
}

func (db *DB) killTree(sp *space, name string, subs []string) {
	if sp.lookup(name, subs) == nil {
		return
	}
	db.journalTree(sp, name, subs)
	sp.delete(name, subs)
	db.persist(sp, op{kind: opDeleteTree, name: name, subs: subs})
}

func (db *DB) killValue(sp *space, name string, subs []string) {
	n := sp.lookup(name, subs)
	if n == nil || !n.hasValue {
		return
	}
	db.journalValue(sp, name, subs)
	n.value, n.hasValue = "", false
	sp.prune(name, subs)
	db.persist(sp, op{kind: opDeleteValue, name: name, subs: subs})
}

// persist records a global change for the store: queued until the outermost
// commit inside a transaction, written at once outside.
func (db *DB) persist(sp *space, o op) {
	if sp != db.globals || db.store == nil {
		return
	}
	o.subs = append([]string(nil), o.subs...)
	if len(db.frames) > 0 {
		db.pending = append(db.pending, o)
		return
	}
	if err := db.store.apply(context.Background(), []op{o}, Serial); err != nil {
		Logger().Error("store write failed", zap.Error(err))
	}
}

// tstart opens a frame. Variables are a vector of local names to restore on
// restart; "*" selects every local.
func tstart(_ context.Context, db *DB, args []string) (string, error) {
	durability := strings.ToLower(args[0])
	switch durability {
	case "", Serial:
		durability = Serial
	case Batch:
	default:
		return "", rtErr(errors.CodeInvalidArgs, "bad durability %q", args[0])
	}
	names, err := codec.Decode(args[1])
	if err != nil {
		return "", rtErr(errors.CodeInvalidArgs, "%v", err)
	}

	f := &frame{durability: durability, mark: len(db.pending), saved: make(map[string]*node)}
	for _, name := range names {
		switch {
		case name == "*":
			f.all = true
			for _, n := range db.locals.names {
				if !address.IsReserved(n) {
					f.saved[n] = db.locals.vars[n].clone()
				}
			}
		case name == "":
		case !validName(name):
			return "", rtErr(errors.CodeInvalidName, "bad variable name %q", name)
		case address.IsReserved(name):
			return "", rtErr(errors.CodeInvalidName, "reserved variable name %q", name)
		default:
			f.saved[name] = db.locals.vars[name].clone()
		}
	}
	db.frames = append(db.frames, f)
	return ok().num("tlevel", len(db.frames)).String(), nil
}

func tcommit(ctx context.Context, db *DB, _ []string) (string, error) {
	if len(db.frames) == 0 {
		return "", rtErr(errors.CodeTPNotActive, "tcommit with no transaction")
	}
	f := db.frames[len(db.frames)-1]
	db.frames = db.frames[:len(db.frames)-1]
	if len(db.frames) > 0 {
		parent := db.frames[len(db.frames)-1]
		parent.undo = append(parent.undo, f.undo...)
		return ok().num("tlevel", len(db.frames)).String(), nil
	}

	pending := db.pending
	db.pending = nil
	if db.store != nil && len(pending) > 0 {
		if err := db.store.apply(ctx, pending, f.durability); err != nil {
			return "", rtErr(errors.CodeRoutineFailed, "commit: %v", err)
		}
	}
	return ok().num("tlevel", 0).String(), nil
}

func trollback(_ context.Context, db *DB, _ []string) (string, error) {
	if len(db.frames) == 0 {
		return "", rtErr(errors.CodeTPNotActive, "trollback with no transaction")
	}
	db.rollbackFrame()
	return ok().num("tlevel", len(db.frames)).String(), nil
}

func trestart(_ context.Context, db *DB, _ []string) (string, error) {
	if len(db.frames) == 0 {
		return "", rtErr(errors.CodeTPNotActive, "trestart with no transaction")
	}
	f := db.frames[len(db.frames)-1]
	db.undoFrame(f)
	if f.all {
		for _, n := range append([]string(nil), db.locals.names...) {
			if _, saved := f.saved[n]; !saved && !address.IsReserved(n) {
				db.locals.drop(n)
			}
		}
	}
	for name, snap := range f.saved {
		db.locals.drop(name)
		if snap != nil {
			db.locals.replace(name, nil, snap.clone())
		}
	}
	return ok().num("tlevel", len(db.frames)).String(), nil
}

func tlevel(_ context.Context, db *DB, _ []string) (string, error) {
	return ok().num("tlevel", len(db.frames)).String(), nil
}

// rollbackFrame discards the innermost frame and its writes.
func (db *DB) rollbackFrame() {
	f := db.frames[len(db.frames)-1]
	db.undoFrame(f)
	db.frames = db.frames[:len(db.frames)-1]
}

func (db *DB) undoFrame(f *frame) {
	for i := len(f.undo) - 1; i >= 0; i-- {
		f.undo[i].apply(db.globals)
	}
	f.undo = nil
	db.pending = db.pending[:f.mark]
}
