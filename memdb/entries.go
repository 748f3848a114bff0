package memdb

import (
	"context"
	"strconv"
	"time"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/errors"
)

type handler struct {
	fn     func(ctx context.Context, db *DB, args []string) (string, error)
	params int
}

var handlers = map[string]handler{
	engine.EntryAbout:        {about, 0},
	engine.EntryConfigure:    {configure, 1},
	engine.EntryData:         {data, 3},
	engine.EntryGet:          {get, 4},
	engine.EntrySet:          {set, 4},
	engine.EntryKill:         {kill, 4},
	engine.EntryMerge:        {merge, 6},
	engine.EntryOrder:        {order, 5},
	engine.EntryNextNode:     {nextNode, 4},
	engine.EntryPreviousNode: {previousNode, 4},
	engine.EntryIncrement:    {increment, 5},
	engine.EntryLock:         {lock, 4},
	engine.EntryUnlock:       {unlock, 3},
	engine.EntryFunction:     {function, 2},
	engine.EntryProcedure:    {procedure, 1},
	engine.EntryStage:        {stage, 1},
	engine.EntryUnstage:      {unstage, 0},
	engine.EntryTStart:       {tstart, 2},
	engine.EntryTCommit:      {tcommit, 0},
	engine.EntryTRollback:    {trollback, 0},
	engine.EntryTRestart:     {trestart, 0},
	engine.EntryTLevel:       {tlevel, 0},
}

func about(_ context.Context, db *DB, _ []string) (string, error) {
	return ok().
		str("version", db.features.Version).
		num("indirectionLimit", db.features.IndirectionLimit).
		num("maxParamSize", db.features.MaxParamSize).
		flag("reverseQuery", db.features.ReverseQuery).
		num("tlevel", len(db.frames)).
		String(), nil
}

func configure(_ context.Context, db *DB, args []string) (string, error) {
	db.mu.Lock()
	prev := db.relink
	switch args[0] {
	case "1":
		db.relink = true
	case "0":
		db.relink = false
	}
	db.mu.Unlock()
	return ok().flag("relink", prev).String(), nil
}

func mode(arg string) (codec.Mode, error) {
	m, err := codec.ParseMode(arg)
	if err != nil {
		return "", rtErr(errors.CodeInvalidArgs, "%v", err)
	}
	return m, nil
}

// node parses the kind, name and subscript parameters every node entry
// starts with.
func (db *DB) node(args []string) (*space, string, []string, error) {
	sp, err := db.target(args[0], args[1])
	if err != nil {
		return nil, "", nil, err
	}
	subs, err := subscripts(args[2])
	if err != nil {
		return nil, "", nil, err
	}
	return sp, args[1], subs, nil
}

func data(_ context.Context, db *DB, args []string) (string, error) {
	if args[0] == engine.KindIntrinsic {
		if _, err := db.intrinsic(args[1]); err != nil {
			return "", err
		}
		return ok().num("data", 1).String(), nil
	}
	sp, name, subs, err := db.node(args)
	if err != nil {
		return "", err
	}
	return ok().num("data", sp.lookup(name, subs).data()).String(), nil
}

func get(_ context.Context, db *DB, args []string) (string, error) {
	m, err := mode(args[3])
	if err != nil {
		return "", err
	}
	if args[0] == engine.KindIntrinsic {
		v, err := db.intrinsic(args[1])
		if err != nil {
			return "", err
		}
		return ok().flag("defined", true).lit("data", v, m).String(), nil
	}
	sp, name, subs, err := db.node(args)
	if err != nil {
		return "", err
	}
	n := sp.lookup(name, subs)
	if n == nil || !n.hasValue {
		return ok().flag("defined", false).String(), nil
	}
	return ok().flag("defined", true).lit("data", n.value, m).String(), nil
}

func set(_ context.Context, db *DB, args []string) (string, error) {
	v, _, isLit := codec.ParseLiteral(args[3])
	if !isLit {
		return "", rtErr(errors.CodeInvalidArgs, "bad value literal")
	}
	if args[0] == engine.KindIntrinsic {
		if err := db.setIntrinsic(args[1], v); err != nil {
			return "", err
		}
		return ok().String(), nil
	}
	sp, name, subs, err := db.node(args)
	if err != nil {
		return "", err
	}
	if err := noNull(name, subs); err != nil {
		return "", err
	}
	db.setValue(sp, name, subs, v)
	return ok().String(), nil
}

func kill(_ context.Context, db *DB, args []string) (string, error) {
	sp, name, subs, err := db.node(args)
	if err != nil {
		return "", err
	}
	if args[3] == "1" {
		db.killValue(sp, name, subs)
	} else {
		db.killTree(sp, name, subs)
	}
	return ok().String(), nil
}

// merge copies every node under the source onto the destination, keeping
// destination nodes the source does not define.
func merge(_ context.Context, db *DB, args []string) (string, error) {
	toSp, toName, toSubs, err := db.node(args[0:3])
	if err != nil {
		return "", err
	}
	fromSp, fromName, fromSubs, err := db.node(args[3:6])
	if err != nil {
		return "", err
	}
	if err := noNull(toName, toSubs); err != nil {
		return "", err
	}
	if toSp == fromSp && toName == fromName && overlaps(toSubs, fromSubs) {
		return "", rtErr(errors.CodeInvalidArgs, "merge source and destination overlap")
	}
	src := fromSp.lookup(fromName, fromSubs).clone()
	if src == nil {
		return ok().String(), nil
	}
	db.journalTree(toSp, toName, toSubs)
	src.walk(toSubs, func(subs []string, v string) {
		n := toSp.ensure(toName, subs)
		n.value, n.hasValue = v, true
		db.persist(toSp, op{kind: opPut, name: toName, subs: subs, value: v})
	})
	return ok().String(), nil
}

func overlaps(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func order(_ context.Context, db *DB, args []string) (string, error) {
	m, err := mode(args[4])
	if err != nil {
		return "", err
	}
	dir := 1
	if args[3] == "-1" {
		dir = -1
	}
	subs, err := subscripts(args[2])
	if err != nil {
		return "", err
	}
	var sp *space
	if len(subs) == 0 {
		// name level: the name parameter is the seed and may be empty
		switch args[0] {
		case engine.KindGlobal:
			sp = db.globals
		case engine.KindLocal:
			sp = db.locals
		default:
			return "", rtErr(errors.CodeInvalidArgs, "bad namespace %q", args[0])
		}
	} else if sp, err = db.target(args[0], args[1]); err != nil {
		return "", err
	}
	next, _ := sp.order(args[1], subs, dir)
	return ok().lit("result", next, m).String(), nil
}

func nextNode(_ context.Context, db *DB, args []string) (string, error) {
	return query(db, args, (*space).query)
}

func previousNode(_ context.Context, db *DB, args []string) (string, error) {
	return query(db, args, (*space).reverseQuery)
}

func query(db *DB, args []string, step func(*space, string, []string) ([]string, bool)) (string, error) {
	m, err := mode(args[3])
	if err != nil {
		return "", err
	}
	sp, name, subs, err := db.node(args)
	if err != nil {
		return "", err
	}
	found, defined := step(sp, name, subs)
	if !defined {
		return ok().flag("defined", false).String(), nil
	}
	return ok().
		flag("defined", true).
		lits("subscripts", found, m).
		lit("data", sp.lookup(name, found).value, m).
		String(), nil
}

func increment(_ context.Context, db *DB, args []string) (string, error) {
	m, err := mode(args[4])
	if err != nil {
		return "", err
	}
	by, _, isLit := codec.ParseLiteral(args[3])
	if !isLit {
		return "", rtErr(errors.CodeInvalidArgs, "bad increment literal")
	}
	sp, name, subs, err := db.node(args)
	if err != nil {
		return "", err
	}
	if err := noNull(name, subs); err != nil {
		return "", err
	}
	cur := "0"
	if n := sp.lookup(name, subs); n != nil && n.hasValue {
		cur = n.value
	}
	sum, valid := codec.Add(cur, by)
	if !valid {
		return "", rtErr(errors.CodeNumericOverflow, "cannot increment %s", name)
	}
	db.setValue(sp, name, subs, sum)
	return ok().lit("data", sum, m).String(), nil
}

// lockTimeout reads a timeout in seconds. Empty or negative waits forever.
func lockTimeout(arg string) (time.Duration, error) {
	if arg == "" {
		return -1, nil
	}
	secs, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, rtErr(errors.CodeInvalidArgs, "bad lock timeout %q", arg)
	}
	if secs < 0 {
		return -1, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func lock(ctx context.Context, db *DB, args []string) (string, error) {
	timeout, err := lockTimeout(args[3])
	if err != nil {
		return "", err
	}
	_, name, subs, err := db.node(args)
	if err != nil {
		return "", err
	}
	got, err := db.locks.acquire(ctx, db, args[0], name, subs, timeout)
	if err != nil {
		return "", rtErr(errors.CodeLockTimeout, "lock wait interrupted: %v", err)
	}
	res := 0
	if got {
		res = 1
	}
	return ok().num("result", res).String(), nil
}

func unlock(_ context.Context, db *DB, args []string) (string, error) {
	if args[1] == "" {
		db.locks.releaseAll(db)
		return ok().String(), nil
	}
	_, name, subs, err := db.node(args)
	if err != nil {
		return "", err
	}
	db.locks.release(db, args[0], name, subs)
	return ok().String(), nil
}

func function(ctx context.Context, db *DB, args []string) (string, error) {
	m, err := mode(args[1])
	if err != nil {
		return "", err
	}
	res, err := db.invoke(ctx, args[0])
	if err != nil {
		return "", err
	}
	return ok().lit("result", res, m).String(), nil
}

func procedure(ctx context.Context, db *DB, args []string) (string, error) {
	if _, err := db.invoke(ctx, args[0]); err != nil {
		return "", err
	}
	return ok().String(), nil
}

// stage copies literals into the staging array so a routine reference can
// cite them by index.
func stage(_ context.Context, db *DB, args []string) (string, error) {
	lits, err := codec.Decode(args[0])
	if err != nil {
		return "", rtErr(errors.CodeInvalidArgs, "%v", err)
	}
	db.locals.drop(address.StageArray)
	for i, l := range lits {
		v, _, isLit := codec.ParseLiteral(l)
		if !isLit {
			db.locals.drop(address.StageArray)
			return "", rtErr(errors.CodeInvalidArgs, "bad staged literal %d", i+1)
		}
		n := db.locals.ensure(address.StageArray, []string{strconv.Itoa(i + 1)})
		n.value, n.hasValue = v, true
	}
	return ok().num("staged", len(lits)).String(), nil
}

func unstage(_ context.Context, db *DB, _ []string) (string, error) {
	db.locals.drop(address.StageArray)
	return ok().String(), nil
}
