package memdb

import (
	"testing"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/errors"
)

func tlevelOf(t *testing.T, r *engine.Reply) int {
	t.Helper()
	n, err := r.Int("tlevel")
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func defined(t *testing.T, db *DB, kind, name string, s ...string) bool {
	t.Helper()
	r := call(t, db, engine.EntryData, kind, name, subs(s...))
	n, _ := r.Int("data")
	return n%2 == 1
}

func TestTransactionCommit(t *testing.T) {
	db := newDB(t, nil)
	if n := tlevelOf(t, call(t, db, engine.EntryTStart, "serial", "")); n != 1 {
		t.Fatalf("tlevel = %d", n)
	}
	setG(t, db, "1", "tx", "a")
	if n := tlevelOf(t, call(t, db, engine.EntryTCommit)); n != 0 {
		t.Errorf("tlevel after commit = %d", n)
	}
	if !defined(t, db, engine.KindGlobal, "tx", "a") {
		t.Error("committed write lost")
	}
	if re := callFail(t, db, engine.EntryTCommit); re.Code != errors.CodeTPNotActive {
		t.Errorf("commit without transaction code = %d", re.Code)
	}
}

func TestTransactionReservedVariable(t *testing.T) {
	db := newDB(t, nil)
	vars := codec.Encode([]string{"x", "%mbArgs"})
	if re := callFail(t, db, engine.EntryTStart, "serial", vars); re.Code != errors.CodeInvalidName {
		t.Errorf("reserved reset variable code = %d", re.Code)
	}
	if n := tlevelOf(t, call(t, db, engine.EntryTLevel)); n != 0 {
		t.Errorf("tlevel = %d", n)
	}
}

func TestTransactionRollback(t *testing.T) {
	db := newDB(t, nil)
	setG(t, db, "old", "tx", "a")
	call(t, db, engine.EntryTStart, "batch", "")
	setG(t, db, "new", "tx", "a")
	setG(t, db, "1", "tx", "b", "c")
	call(t, db, engine.EntryKill, engine.KindGlobal, "tx", subs("a"), "0")
	call(t, db, engine.EntryTRollback)

	r := call(t, db, engine.EntryGet, engine.KindGlobal, "tx", subs("a"), "string")
	if v, _ := r.String("data", codec.UTF8); v != "old" {
		t.Errorf("^tx(a) = %q after rollback", v)
	}
	if defined(t, db, engine.KindGlobal, "tx", "b", "c") {
		t.Error("rolled back write visible")
	}
}

func TestTransactionNested(t *testing.T) {
	db := newDB(t, nil)
	call(t, db, engine.EntryTStart, "serial", "")
	setG(t, db, "outer", "n", "1")
	call(t, db, engine.EntryTStart, "serial", "")
	setG(t, db, "inner", "n", "2")
	if n := tlevelOf(t, call(t, db, engine.EntryTRollback)); n != 1 {
		t.Fatalf("tlevel after inner rollback = %d", n)
	}
	if defined(t, db, engine.KindGlobal, "n", "2") || !defined(t, db, engine.KindGlobal, "n", "1") {
		t.Error("inner rollback discarded the wrong writes")
	}

	call(t, db, engine.EntryTStart, "serial", "")
	setG(t, db, "inner2", "n", "3")
	call(t, db, engine.EntryTCommit)
	call(t, db, engine.EntryTRollback)
	if defined(t, db, engine.KindGlobal, "n", "1") || defined(t, db, engine.KindGlobal, "n", "3") {
		t.Error("outer rollback kept writes of a committed inner frame")
	}
}

func TestTransactionRestartResetsLocals(t *testing.T) {
	db := newDB(t, nil)
	call(t, db, engine.EntrySet, engine.KindLocal, "keep", "", `"start"`)
	call(t, db, engine.EntrySet, engine.KindLocal, "other", "", `"start"`)

	call(t, db, engine.EntryTStart, "serial", codec.Encode([]string{"keep"}))
	call(t, db, engine.EntrySet, engine.KindLocal, "keep", "", `"changed"`)
	call(t, db, engine.EntrySet, engine.KindLocal, "other", "", `"changed"`)
	call(t, db, engine.EntrySet, engine.KindLocal, "keep", subs("1"), `"new"`)
	setG(t, db, "1", "g")
	if n := tlevelOf(t, call(t, db, engine.EntryTRestart)); n != 1 {
		t.Fatalf("tlevel after restart = %d", n)
	}

	get := func(name string) string {
		r := call(t, db, engine.EntryGet, engine.KindLocal, name, "", "string")
		v, _ := r.String("data", codec.UTF8)
		return v
	}
	if v := get("keep"); v != "start" {
		t.Errorf("keep = %q", v)
	}
	if defined(t, db, engine.KindLocal, "keep", "1") {
		t.Error("keep(1) survived restart")
	}
	if v := get("other"); v != "changed" {
		t.Errorf("other = %q, restart touched an unlisted local", v)
	}
	if defined(t, db, engine.KindGlobal, "g") {
		t.Error("global write survived restart")
	}
	call(t, db, engine.EntryTCommit)
}

func TestTransactionRestartWildcard(t *testing.T) {
	db := newDB(t, nil)
	call(t, db, engine.EntrySet, engine.KindLocal, "a", "", "1")
	call(t, db, engine.EntryTStart, "serial", codec.Encode([]string{"*"}))
	call(t, db, engine.EntrySet, engine.KindLocal, "a", "", "2")
	call(t, db, engine.EntrySet, engine.KindLocal, "b", "", "2")
	call(t, db, engine.EntryTRestart)

	r := call(t, db, engine.EntryGet, engine.KindLocal, "a", "", "string")
	if v, _ := r.String("data", codec.UTF8); v != "1" {
		t.Errorf("a = %q", v)
	}
	if defined(t, db, engine.KindLocal, "b") {
		t.Error("b created inside the transaction survived a wildcard restart")
	}
	call(t, db, engine.EntryTRollback)
}
