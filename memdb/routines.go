package memdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// Routine is runtime code callable by reference. Arguments arrive as runtime
// values. Function calls return the result; procedure calls discard it.
// Returning an *errors.RuntimeError reports that code to the caller.
type Routine func(env *Env, args []string) (string, error)

// RegisterRoutine makes fn callable as ref (label^routine, ^routine or
// label). Registering an existing ref adds a new version; callers see it
// only once they relink.
func (db *DB) RegisterRoutine(ref string, fn Routine) error {
	if err := address.ValidateRoutine(ref); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.routines[ref] = append(db.routines[ref], fn)
	return nil
}

// resolve picks the linked version of a routine, relinking to the newest
// when auto-relink is on or the routine was never linked.
func (db *DB) resolve(ref string) (Routine, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	versions := db.routines[ref]
	if len(versions) == 0 {
		return nil, false
	}
	v, linked := db.linked[ref]
	if !linked || db.relink {
		v = len(versions) - 1
		db.linked[ref] = v
	}
	return versions[v], true
}

// invoke evaluates a routine reference such as add^math(1,"x",%mbArgs(3)).
func (db *DB) invoke(ctx context.Context, ref string) (string, error) {
	if limit := db.features.IndirectionLimit; limit > 0 && len(ref) > limit {
		return "", rtErr(errors.CodeIndirectionMax,
			"indirection string of %d bytes exceeds the %d byte maximum", len(ref), limit)
	}
	name, argText, hasArgs := strings.Cut(ref, "(")
	if hasArgs {
		if !strings.HasSuffix(argText, ")") {
			return "", rtErr(errors.CodeInvalidArgs, "missing ) in %s", ref)
		}
		argText = argText[:len(argText)-1]
	}
	lits, err := address.SplitLiterals(argText)
	if err != nil {
		return "", rtErr(errors.CodeInvalidArgs, "%v", err)
	}
	args := make([]string, len(lits))
	for i, l := range lits {
		if args[i], err = db.argument(l); err != nil {
			return "", err
		}
	}

	fn, found := db.resolve(name)
	if !found {
		return "", rtErr(errors.CodeRoutineMissing, "no routine %s", name)
	}
	res, err := fn(&Env{db: db, ctx: ctx}, args)
	if err != nil {
		if re, ok := errors.AsRuntime(err); ok {
			return "", re
		}
		return "", rtErr(errors.CodeRoutineFailed, "%s: %v", name, err)
	}
	return res, nil
}

// argument evaluates one actual parameter: a literal or a staged element.
func (db *DB) argument(lit string) (string, error) {
	prefix := address.StageArray + "("
	if strings.HasPrefix(lit, prefix) && strings.HasSuffix(lit, ")") {
		idx := lit[len(prefix) : len(lit)-1]
		if _, err := strconv.Atoi(idx); err != nil {
			return "", rtErr(errors.CodeInvalidSubs, "bad staged index %s", idx)
		}
		n := db.locals.lookup(address.StageArray, []string{idx})
		if n == nil || !n.hasValue {
			return "", rtErr(errors.CodeUndefined, "undefined %s", lit)
		}
		return n.value, nil
	}
	v, _, ok := codec.ParseLiteral(lit)
	if !ok {
		return "", rtErr(errors.CodeInvalidArgs, "bad actual parameter %s", lit)
	}
	return v, nil
}

// Env is what a running routine sees of the database. Names starting with
// a caret are globals; others are locals.
type Env struct {
	ctx context.Context
	db  *DB
}

// Context returns the context of the call that invoked the routine.
func (e *Env) Context() context.Context { return e.ctx }

func (e *Env) space(name string) (*space, string) {
	if strings.HasPrefix(name, "^") {
		return e.db.globals, name[1:]
	}
	return e.db.locals, name
}

// Get returns a node's value and whether it is defined.
func (e *Env) Get(name string, subs ...string) (string, bool) {
	sp, n := e.space(name)
	node := sp.lookup(n, subs)
	if node == nil || !node.hasValue {
		return "", false
	}
	return node.value, true
}

// Set assigns a node's value.
func (e *Env) Set(value, name string, subs ...string) error {
	sp, n := e.space(name)
	if !validName(n) {
		return rtErr(errors.CodeInvalidName, "bad name %s", name)
	}
	for _, s := range subs {
		if s == "" {
			return rtErr(errors.CodeInvalidSubs, "null subscript in %s", name)
		}
	}
	e.db.setValue(sp, n, subs, value)
	return nil
}

// Kill removes a node and its descendants.
func (e *Env) Kill(name string, subs ...string) {
	sp, n := e.space(name)
	e.db.killTree(sp, n, subs)
}

// Data returns $DATA of a node.
func (e *Env) Data(name string, subs ...string) int {
	sp, n := e.space(name)
	return sp.lookup(n, subs).data()
}

// TLevel returns the current transaction depth.
func (e *Env) TLevel() int { return len(e.db.frames) }

// Restart asks the enclosing transaction to restart.
func (e *Env) Restart() error {
	return errors.NewRuntimeError("", errors.CodeTPRestart, "transaction restart requested")
}

// Rollback asks the enclosing transaction to roll back.
func (e *Env) Rollback() error {
	return errors.NewRuntimeError("", errors.CodeTPRollback, "transaction rollback requested")
}

func rtErr(code int, format string, args ...any) *errors.RuntimeError {
	return errors.NewRuntimeError("", code, fmt.Sprintf(format, args...))
}
