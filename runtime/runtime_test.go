package runtime

import (
	"context"
	"os"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/errors"
	"github.com/wippyai/mbridge/memdb"
	"github.com/wippyai/mbridge/txn"
)

type fixture struct {
	rt    *Runtime
	owner *Owner
	db    *memdb.DB
	s     *Session
}

func openRuntime(t *testing.T, cfg *memdb.Config, opts Options) *fixture {
	t.Helper()
	db, err := memdb.New(cfg)
	require.NoError(t, err)
	opts.OwnBackend = true
	rt := New(db, opts)
	owner, err := rt.Open(context.Background())
	require.NoError(t, err)
	f := &fixture{rt: rt, owner: owner, db: db, s: rt.Session()}
	t.Cleanup(func() {
		if rt.State() == dispatch.Open {
			owner.Close(context.Background())
		}
		db.Close(context.Background())
	})
	return f
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	db, err := memdb.New(nil)
	require.NoError(t, err)
	defer db.Close(ctx)
	rt := New(db, Options{})
	s := rt.Session()

	_, err = s.Get(ctx, address.MustGlobal("x"))
	assert.True(t, errors.HasKind(err, errors.KindConnectionState), "call before open: %v", err)

	owner, err := rt.Open(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, owner.ID())
	_, err = rt.Open(ctx)
	assert.True(t, errors.HasKind(err, errors.KindConnectionState), "double open: %v", err)

	require.NoError(t, s.Set(ctx, address.MustGlobal("x"), 1))
	require.NoError(t, owner.Close(ctx))
	assert.Equal(t, dispatch.Closed, rt.State())

	err = s.Set(ctx, address.MustGlobal("x"), 2)
	assert.True(t, errors.HasKind(err, errors.KindConnectionState), "call after close: %v", err)
	assert.True(t, errors.HasKind(owner.Close(ctx), errors.KindConnectionState))

	again, err := rt.Open(ctx)
	require.NoError(t, err)
	v, err := s.Get(ctx, address.MustGlobal("x"))
	require.NoError(t, err)
	assert.Equal(t, codec.Number("1"), v)
	assert.True(t, errors.HasKind(owner.Close(ctx), errors.KindConnectionState), "stale owner closed the runtime")
	require.NoError(t, again.Close(ctx))
}

func TestSetGet(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	name := address.MustGlobal("acct", 1, "name")

	require.NoError(t, f.s.Set(ctx, name, "Ada"))
	v, err := f.s.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "Ada", v)

	bal := address.MustGlobal("acct", 1, "bal")
	require.NoError(t, f.s.Set(ctx, bal, 0.5))
	v, err = f.s.Get(ctx, bal)
	require.NoError(t, err)
	assert.Equal(t, codec.Number("0.5"), v)

	_, ok, err := f.s.Lookup(ctx, address.MustGlobal("acct", 2))
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.s.Get(ctx, address.MustGlobal("acct", 2))
	assert.True(t, errors.HasKind(err, errors.KindNotFound), "undefined get: %v", err)

	_, err = f.s.Get(ctx, address.Address{Kind: address.Global, Name: "%mbArgs"})
	assert.True(t, errors.HasKind(err, errors.KindReserved))
}

func TestModes(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	str := f.rt.Session(WithMode(codec.String))

	require.NoError(t, f.s.Set(ctx, address.MustGlobal("n", "canon"), 0.5))
	require.NoError(t, str.Set(ctx, address.MustGlobal("n", "str"), "0.5"))

	v, _ := f.s.Get(ctx, address.MustGlobal("n", "canon"))
	assert.Equal(t, codec.Number("0.5"), v)
	v, _ = str.Get(ctx, address.MustGlobal("n", "canon"))
	assert.Equal(t, ".5", v, "string mode returns the runtime text")
	v, _ = f.s.Get(ctx, address.MustGlobal("n", "str"))
	assert.Equal(t, "0.5", v, "a string that is not a canonical number stays a string")

	// "10" in string mode and 10 in canonical mode are the same subscript
	require.NoError(t, str.Set(ctx, address.MustGlobal("k", "10"), "s"))
	v, err := f.s.Get(ctx, address.MustGlobal("k", 10))
	require.NoError(t, err)
	assert.Equal(t, "s", v)

	f.s.Configure(WithMode(codec.String))
	assert.Equal(t, codec.String, f.s.Config().Mode)
	v, _ = f.s.Get(ctx, address.MustGlobal("n", "canon"))
	assert.Equal(t, ".5", v)
}

func TestByteCharset(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	latin := f.rt.Session(WithCharset(codec.Byte))
	a := address.MustGlobal("c", "é")

	require.NoError(t, latin.Set(ctx, a, "café"))
	v, err := latin.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "café", v)

	raw, err := f.s.Get(ctx, address.MustGlobal("c", "\xe9"))
	require.NoError(t, err)
	assert.Equal(t, "caf\xe9", raw)

	err = latin.Set(ctx, address.MustGlobal("c", "x"), "日本")
	assert.True(t, errors.HasKind(err, errors.KindCharset), "unmappable: %v", err)
}

func TestDataKillMerge(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	s := f.s
	require.NoError(t, s.Set(ctx, address.MustGlobal("src", 1), "a"))
	require.NoError(t, s.Set(ctx, address.MustGlobal("src", 1, 2), "b"))
	require.NoError(t, s.Set(ctx, address.MustGlobal("src", 3), "c"))

	for sub, want := range map[int]int{1: 11, 3: 1, 4: 0} {
		d, err := s.Data(ctx, address.MustGlobal("src", sub))
		require.NoError(t, err)
		assert.Equal(t, want, d, "$DATA(^src(%d))", sub)
	}

	require.NoError(t, s.Merge(ctx, address.MustLocal("dst", "x"), address.MustGlobal("src")))
	v, err := s.Get(ctx, address.MustLocal("dst", "x", 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	require.NoError(t, s.KillNode(ctx, address.MustGlobal("src", 1)))
	d, _ := s.Data(ctx, address.MustGlobal("src", 1))
	assert.Equal(t, 10, d)

	require.NoError(t, s.Kill(ctx, address.MustGlobal("src", 1)))
	d, _ = s.Data(ctx, address.MustGlobal("src", 1))
	assert.Equal(t, 0, d)
}

func TestOrder(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	for _, sub := range []any{"b", 10, 2, "a", -1} {
		require.NoError(t, f.s.Set(ctx, address.MustGlobal("o", sub), "v"))
	}

	var fwd []string
	for sub := ""; ; {
		next, err := f.s.Order(ctx, address.MustGlobal("o", sub))
		require.NoError(t, err)
		if next == "" {
			break
		}
		fwd = append(fwd, next)
		sub = next
	}
	assert.Equal(t, []string{"-1", "2", "10", "a", "b"}, fwd)

	prev, err := f.s.Previous(ctx, address.MustGlobal("o", "a"))
	require.NoError(t, err)
	assert.Equal(t, "10", prev)

	// name level
	require.NoError(t, f.s.Set(ctx, address.MustGlobal("p"), 1))
	next, err := f.s.Order(ctx, address.MustGlobal("o"))
	require.NoError(t, err)
	assert.Equal(t, "p", next)

	staged := address.Address{Kind: address.Local, Name: address.StageArray, Subscripts: []string{"1"}}
	_, err = f.s.Order(ctx, staged)
	assert.True(t, errors.HasKind(err, errors.KindReserved), "got %v", err)
	_, err = f.s.Previous(ctx, address.Address{Kind: address.Local, Name: address.StageArray})
	assert.True(t, errors.HasKind(err, errors.KindReserved), "got %v", err)
}

func TestNodes(t *testing.T) {
	for _, native := range []bool{true, false} {
		name := "native"
		if !native {
			name = "fallback"
		}
		t.Run(name, func(t *testing.T) {
			f := openRuntime(t, &memdb.Config{NoReverseQuery: !native}, Options{})
			ctx := context.Background()
			paths := [][]any{{1}, {1, 1}, {1, 2, "x"}, {2}, {"a", "b", "c", "d"}}
			for i, p := range paths {
				require.NoError(t, f.s.Set(ctx, address.MustGlobal("t", p...), i))
			}

			var fwd, rev []string
			require.NoError(t, f.s.Walk(ctx, address.MustGlobal("t"), func(n Node) bool {
				fwd = append(fwd, strings.Join(n.Subscripts, ","))
				return true
			}))
			require.NoError(t, f.s.WalkReverse(ctx, address.MustGlobal("t"), func(n Node) bool {
				rev = append(rev, strings.Join(n.Subscripts, ","))
				return true
			}))
			assert.Equal(t, []string{"1", "1,1", "1,2,x", "2", "a,b,c,d"}, fwd)
			assert.Equal(t, []string{"a,b,c,d", "2", "1,2,x", "1,1", "1"}, rev)

			n, err := f.s.NextNode(ctx, address.MustGlobal("t", 1, 1))
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "2", "x"}, n.Subscripts)
			assert.Equal(t, codec.Number("2"), n.Data)

			n, err = f.s.PreviousNode(ctx, address.MustGlobal("t", 2))
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "2", "x"}, n.Subscripts)

			n, err = f.s.PreviousNode(ctx, address.MustGlobal("t", 1))
			require.NoError(t, err)
			assert.False(t, n.Defined)
			assert.Equal(t, native, f.rt.native.Load())
		})
	}
}

func TestNodes_ExactNumbers(t *testing.T) {
	for _, native := range []bool{true, false} {
		name := "native"
		if !native {
			name = "fallback"
		}
		t.Run(name, func(t *testing.T) {
			f := openRuntime(t, &memdb.Config{NoReverseQuery: !native}, Options{})
			ctx := context.Background()
			for _, sub := range []any{1, codec.Number("0.123456789012345678"), 0.5, codec.Number("0.0000001")} {
				require.NoError(t, f.s.Set(ctx, address.MustGlobal("p", sub), 1))
			}

			var fwd, rev []string
			require.NoError(t, f.s.Walk(ctx, address.MustGlobal("p"), func(n Node) bool {
				fwd = append(fwd, strings.Join(n.Subscripts, ","))
				return true
			}))
			require.NoError(t, f.s.WalkReverse(ctx, address.MustGlobal("p"), func(n Node) bool {
				rev = append(rev, strings.Join(n.Subscripts, ","))
				return true
			}))
			assert.Equal(t, []string{"0.0000001", "0.123456789012345678", "0.5", "1"}, fwd)
			assert.Equal(t, []string{"1", "0.5", "0.123456789012345678", "0.0000001"}, rev)

			next, err := f.s.Order(ctx, address.MustGlobal("p", fwd[0]))
			require.NoError(t, err)
			assert.Equal(t, "0.123456789012345678", next)

			v, err := f.s.Get(ctx, address.MustGlobal("p", next))
			require.NoError(t, err)
			assert.Equal(t, codec.Number("1"), v)
		})
	}
}

func TestDirectories(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	require.NoError(t, f.s.Set(ctx, address.MustGlobal("g2"), 1))
	require.NoError(t, f.s.Set(ctx, address.MustGlobal("g1", "x"), 1))
	require.NoError(t, f.s.Set(ctx, address.MustLocal("loc"), 1))
	_, err := f.rt.Core().Submit(ctx, &dispatch.Request{Entry: "stage", Args: []string{codec.Encode([]string{"1"})}})
	require.NoError(t, err)

	g, err := f.s.GlobalDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, g)
	l, err := f.s.LocalDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"loc"}, l)
}

func TestIncrement(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	a := address.MustGlobal("cnt")

	v, err := f.s.Increment(ctx, a, 1)
	require.NoError(t, err)
	assert.Equal(t, codec.Number("1"), v)
	v, err = f.s.Increment(ctx, a, 0.5)
	require.NoError(t, err)
	assert.Equal(t, codec.Number("1.5"), v)

	_, err = f.s.Increment(ctx, a, "x")
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
}

func TestLocks(t *testing.T) {
	table := memdb.NewLockTable()
	a := openRuntime(t, &memdb.Config{Locks: table}, Options{})
	b := openRuntime(t, &memdb.Config{Locks: table}, Options{})
	ctx := context.Background()
	node := address.MustGlobal("acct", 1)

	ok, err := a.s.Lock(ctx, node, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.s.Lock(ctx, address.MustGlobal("acct", 1, "bal"), 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "descendant of a locked node was granted")

	require.NoError(t, a.s.Unlock(ctx, node))
	ok, err = b.s.Lock(ctx, node, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.s.UnlockAll(ctx))
	assert.Equal(t, 0, table.Held())
}

func TestRoutines(t *testing.T) {
	f := openRuntime(t, &memdb.Config{IndirectionLimit: 64}, Options{})
	ctx := context.Background()
	require.NoError(t, f.db.RegisterRoutine("cat^str", func(_ *memdb.Env, args []string) (string, error) {
		return strings.Join(args, ""), nil
	}))
	require.NoError(t, f.db.RegisterRoutine("put^str", func(env *memdb.Env, args []string) (string, error) {
		return "", env.Set(args[1], "^out", args[0])
	}))

	v, err := f.s.Function(ctx, "cat^str", "a", 1, "b")
	require.NoError(t, err)
	assert.Equal(t, "a1b", v)

	long := strings.Repeat("x", 200)
	v, err = f.s.Function(ctx, "cat^str", long, "!")
	require.NoError(t, err, "staged call")
	assert.Equal(t, long+"!", v)

	l, err := f.s.LocalDirectory(ctx)
	require.NoError(t, err)
	assert.Empty(t, l, "staging left locals behind")

	require.NoError(t, f.s.Procedure(ctx, "put^str", "k", long))
	v, err = f.s.Get(ctx, address.MustGlobal("out", "k"))
	require.NoError(t, err)
	assert.Equal(t, long, v)

	_, err = f.s.Function(ctx, "no^such")
	re, ok := errors.AsRuntime(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, errors.CodeRoutineMissing, re.Code)

	_, err = f.s.Function(ctx, "bad ref^x")
	assert.True(t, errors.HasKind(err, errors.KindInvalidName))
}

func TestAutoRelink(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	version := func(v string) memdb.Routine {
		return func(*memdb.Env, []string) (string, error) { return v, nil }
	}
	require.NoError(t, f.db.RegisterRoutine("v^lib", version("one")))
	v, _ := f.s.Function(ctx, "v^lib")
	assert.Equal(t, "one", v)

	require.NoError(t, f.db.RegisterRoutine("v^lib", version("two")))
	v, _ = f.s.Function(ctx, "v^lib")
	assert.Equal(t, "one", v, "relinked without auto-relink")

	relink := f.rt.Session(WithAutoRelink(true))
	v, _ = relink.Function(ctx, "v^lib")
	assert.Equal(t, "two", v)
}

func TestTransaction(t *testing.T) {
	f := openRuntime(t, nil, Options{})
	ctx := context.Background()
	require.NoError(t, f.s.Set(ctx, address.MustLocal("x"), "start"))

	tries := 0
	out, err := f.s.Transaction(ctx, func(ctx context.Context) (txn.Outcome, error) {
		tries++
		v, err := f.s.Get(ctx, address.MustLocal("x"))
		if err != nil {
			return txn.Commit, err
		}
		assert.Equal(t, "start", v)
		if err := f.s.Set(ctx, address.MustLocal("x"), "changed"); err != nil {
			return txn.Commit, err
		}
		if err := f.s.Set(ctx, address.MustGlobal("t"), tries); err != nil {
			return txn.Commit, err
		}

		fut := f.s.GetAsync(ctx, address.MustGlobal("t"))
		_, ferr := fut.Wait(ctx)
		assert.True(t, errors.HasKind(ferr, errors.KindConcurrency), "async inside transaction: %v", ferr)

		if tries == 1 {
			return txn.Restart, nil
		}
		return txn.Commit, nil
	}, txn.Options{Variables: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, txn.Commit, out)
	assert.Equal(t, 2, tries)

	v, _ := f.s.Get(ctx, address.MustGlobal("t"))
	assert.Equal(t, codec.Number("2"), v)
}

func TestIntrinsics(t *testing.T) {
	f := openRuntime(t, &memdb.Config{GlobalDirectory: "/data/mumps.gld"}, Options{})
	ctx := context.Background()

	v, err := f.s.Get(ctx, mustIntrinsic(t, "$ZVERSION"))
	require.NoError(t, err)
	assert.Equal(t, memdb.DefaultVersion, v)

	gld := mustIntrinsic(t, "zgbldir")
	v, _ = f.s.Get(ctx, gld)
	assert.Equal(t, "/data/mumps.gld", v)
	require.NoError(t, f.s.Set(ctx, gld, "/tmp/other.gld"))
	v, _ = f.s.Get(ctx, gld)
	assert.Equal(t, "/tmp/other.gld", v)

	err = f.s.Set(ctx, mustIntrinsic(t, "$JOB"), 1)
	re, ok := errors.AsRuntime(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, errors.CodeReadOnly, re.Code)

	tl, err := f.s.Get(ctx, mustIntrinsic(t, "$TLEVEL"))
	require.NoError(t, err)
	assert.Equal(t, codec.Number("0"), tl)
}

func mustIntrinsic(t *testing.T, name string) address.Address {
	t.Helper()
	a, err := address.NewIntrinsic(name)
	require.NoError(t, err)
	return a
}

func TestAbout(t *testing.T) {
	f := openRuntime(t, &memdb.Config{NoReverseQuery: true}, Options{})
	a, err := f.s.About(context.Background())
	require.NoError(t, err)
	assert.Equal(t, memdb.DefaultVersion, a.Version)
	assert.Equal(t, address.DefaultIndirectionLimit, a.IndirectionLimit)
	assert.False(t, a.ReverseQuery)
	assert.Equal(t, 0, a.TLevel)
}

func TestParamSize(t *testing.T) {
	f := openRuntime(t, &memdb.Config{MaxParamSize: 16}, Options{})
	err := f.s.Set(context.Background(), address.MustGlobal("big"), strings.Repeat("z", 100))
	assert.True(t, errors.HasKind(err, errors.KindTokenTooLarge), "err = %v", err)
}

func TestSignals(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("no SIGINT delivery to self")
	}
	got := make(chan os.Signal, 1)
	f := openRuntime(t, nil, Options{Signals: true, OnSignal: func(sig os.Signal) {
		got <- sig
	}})

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(os.Interrupt))
	select {
	case sig := <-got:
		assert.Equal(t, os.Interrupt, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("signal not forwarded")
	}
	require.NoError(t, f.owner.Close(context.Background()))
}
