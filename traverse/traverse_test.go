package traverse

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/memdb"
)

type fixture struct {
	t    *testing.T
	core *dispatch.Core
	eng  *Engine
}

func newFixture(t *testing.T, nativeReverse, claimReverse bool) *fixture {
	t.Helper()
	db, err := memdb.New(&memdb.Config{NoReverseQuery: !nativeReverse})
	if err != nil {
		t.Fatal(err)
	}
	core := dispatch.New(db)
	if err := core.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		core.Close(context.Background())
		db.Close(context.Background())
	})
	return &fixture{t: t, core: core, eng: New(NewRemote(core, dispatch.Config{}), claimReverse)}
}

func (f *fixture) call(entry string, args ...string) {
	f.t.Helper()
	if _, err := f.core.Submit(context.Background(), &dispatch.Request{Entry: entry, Args: args}); err != nil {
		f.t.Fatalf("%s: %v", entry, err)
	}
}

func (f *fixture) keys(subs ...string) []Key {
	f.t.Helper()
	k, err := HostKeys(subs, codec.Canonical, codec.UTF8)
	if err != nil {
		f.t.Fatal(err)
	}
	return k
}

func (f *fixture) set(root address.Address, value string, subs ...string) {
	f.t.Helper()
	f.call(engine.EntrySet, engine.KindTag(root.Kind), root.Name, Vector(f.keys(subs...)), codec.Quote(value))
}

func (f *fixture) killNode(root address.Address, subs ...string) {
	f.t.Helper()
	f.call(engine.EntryKill, engine.KindTag(root.Kind), root.Name, Vector(f.keys(subs...)), "1")
}

func pathString(keys []Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Value
	}
	return strings.Join(parts, ",")
}

var sample = []struct {
	subs  []string
	value string
}{
	{[]string{"1"}, "a"},
	{[]string{"1", "1"}, "b"},
	{[]string{"1", "2", "x"}, "c"},
	{[]string{"2"}, "d"},
	{[]string{"10", "z", "q"}, "e"},
	{[]string{"a"}, "f"},
	{[]string{"a", "b"}, "g"},
	{[]string{"a", "b", "c", "d"}, "h"},
	{[]string{"-1"}, "m"},
	{[]string{"0.5"}, "n"},
}

var sampleOrder = []string{
	"-1", "0.5", "1", "1,1", "1,2,x", "2", "10,z,q", "a", "a,b", "a,b,c,d",
}

func (f *fixture) populate(root address.Address) {
	f.set(root, "root")
	for _, n := range sample {
		f.set(root, n.value, n.subs...)
	}
}

func collect(t *testing.T, walk func(context.Context, address.Address, func(Node) bool) error, root address.Address) []string {
	t.Helper()
	var got []string
	err := walk(context.Background(), root, func(n Node) bool {
		got = append(got, pathString(n.Subscripts))
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestWalk(t *testing.T) {
	f := newFixture(t, true, true)
	root := address.MustGlobal("t")
	f.populate(root)

	if diff := cmp.Diff(sampleOrder, collect(t, f.eng.Walk, root)); diff != "" {
		t.Errorf("forward order (-want +got):\n%s", diff)
	}
}

func TestWalk_ExactNumbers(t *testing.T) {
	// Numbers outside float64's exact text form must still address
	// numeric nodes when handed back to the runtime.
	want := []string{"0.0000001", "0.123456789012345678", "0.5", "1", "a"}
	for _, tc := range []struct {
		name   string
		native bool
	}{
		{"native", true},
		{"fallback", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.native, tc.native)
			root := address.MustGlobal("p")
			for _, sub := range []string{"1", "a", "0.5", "0.123456789012345678", "0.0000001"} {
				f.set(root, "v", sub)
			}

			if diff := cmp.Diff(want, collect(t, f.eng.Walk, root)); diff != "" {
				t.Errorf("forward order (-want +got):\n%s", diff)
			}
			rev := slices.Clone(want)
			slices.Reverse(rev)
			if diff := cmp.Diff(rev, collect(t, f.eng.WalkReverse, root)); diff != "" {
				t.Errorf("reverse order (-want +got):\n%s", diff)
			}

			next, err := f.eng.Order(context.Background(), root, f.keys("0.123456789012345678"))
			if err != nil {
				t.Fatal(err)
			}
			if next.Value != "0.5" || !next.Number {
				t.Errorf("Order after 18-digit fraction = %+v", next)
			}
		})
	}
}

func TestWalkReverse(t *testing.T) {
	want := slices.Clone(sampleOrder)
	slices.Reverse(want)

	for _, tc := range []struct {
		name   string
		native bool
	}{
		{"native", true},
		{"fallback", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.native, tc.native)
			root := address.MustGlobal("t")
			f.populate(root)

			if diff := cmp.Diff(want, collect(t, f.eng.WalkReverse, root)); diff != "" {
				t.Errorf("reverse order (-want +got):\n%s", diff)
			}
			if f.eng.Native() != tc.native {
				t.Errorf("Native = %v", f.eng.Native())
			}
		})
	}
}

func TestWalk_Data(t *testing.T) {
	f := newFixture(t, false, false)
	root := address.MustLocal("v")
	f.populate(root)

	var fwd, rev []string
	f.eng.Walk(context.Background(), root, func(n Node) bool {
		fwd = append(fwd, n.Data.Value)
		return true
	})
	f.eng.WalkReverse(context.Background(), root, func(n Node) bool {
		rev = append(rev, n.Data.Value)
		return true
	})
	slices.Reverse(rev)
	if diff := cmp.Diff(fwd, rev); diff != "" {
		t.Errorf("data differs between directions (-fwd +rev):\n%s", diff)
	}
	if len(fwd) != len(sample) {
		t.Errorf("visited %d nodes, want %d", len(fwd), len(sample))
	}
}

func TestWalk_Stop(t *testing.T) {
	f := newFixture(t, true, true)
	root := address.MustGlobal("t")
	f.populate(root)

	n := 0
	err := f.eng.Walk(context.Background(), root, func(Node) bool {
		n++
		return n < 3
	})
	if err != nil || n != 3 {
		t.Errorf("visited %d, err %v", n, err)
	}
}

func TestPreviousNode_Fallback(t *testing.T) {
	f := newFixture(t, false, false)
	ctx := context.Background()
	root := address.MustGlobal("f")

	f.set(root, "d", "1", "2", "3", "4")
	f.set(root, "p", "1", "2", "3")

	n, err := f.eng.PreviousNode(ctx, root, f.keys("1", "2", "3", "4"))
	if err != nil {
		t.Fatal(err)
	}
	if got := pathString(n.Subscripts); !n.Defined || got != "1,2,3" || n.Data.Value != "p" {
		t.Errorf("predecessor = %+v", n)
	}

	// parent without data: keep ascending
	f.killNode(root, "1", "2", "3")
	n, err = f.eng.PreviousNode(ctx, root, f.keys("1", "2", "3", "4"))
	if err != nil || n.Defined {
		t.Errorf("predecessor of only node = %+v, %v", n, err)
	}

	f.set(root, "top", "1")
	n, _ = f.eng.PreviousNode(ctx, root, f.keys("1", "2", "3", "4"))
	if got := pathString(n.Subscripts); got != "1" {
		t.Errorf("predecessor = %q, want ancestor 1", got)
	}

	// an earlier sibling subtree wins over the ancestor
	f.set(root, "s", "1", "0", "9")
	n, _ = f.eng.PreviousNode(ctx, root, f.keys("1", "2", "3", "4"))
	if got := pathString(n.Subscripts); got != "1,0,9" {
		t.Errorf("predecessor = %q, want 1,0,9", got)
	}
}

func TestPreviousNode_DetectsMissingEntry(t *testing.T) {
	f := newFixture(t, false, true)
	root := address.MustGlobal("t")
	f.populate(root)

	n, err := f.eng.PreviousNode(context.Background(), root, f.keys("2"))
	if err != nil {
		t.Fatal(err)
	}
	if got := pathString(n.Subscripts); got != "1,2,x" {
		t.Errorf("predecessor = %q", got)
	}
	if f.eng.Native() {
		t.Error("engine still claims native reverse query")
	}
}

func TestNextNode_FromMissingNode(t *testing.T) {
	f := newFixture(t, true, true)
	root := address.MustGlobal("t")
	f.populate(root)

	n, err := f.eng.NextNode(context.Background(), root, f.keys("1", "5"))
	if err != nil {
		t.Fatal(err)
	}
	if got := pathString(n.Subscripts); got != "2" || n.Data.Value != "d" {
		t.Errorf("successor = %+v", n)
	}
	n, _ = f.eng.NextNode(context.Background(), root, f.keys("a", "b", "c", "d"))
	if n.Defined {
		t.Errorf("successor of last = %+v", n)
	}
}

func TestOrder(t *testing.T) {
	f := newFixture(t, true, true)
	ctx := context.Background()
	root := address.MustGlobal("t")
	f.populate(root)

	var fwd []string
	k := Key{}
	for {
		var err error
		k, err = f.eng.Order(ctx, root, []Key{k})
		if err != nil {
			t.Fatal(err)
		}
		if k.IsZero() {
			break
		}
		fwd = append(fwd, k.Value)
	}
	if diff := cmp.Diff([]string{"-1", "0.5", "1", "2", "10", "a"}, fwd); diff != "" {
		t.Errorf("top-level order (-want +got):\n%s", diff)
	}

	k, err := f.eng.PreviousOrder(ctx, root, f.keys("10"))
	if err != nil || k.Value != "2" || !k.Number {
		t.Errorf("PreviousOrder(10) = %+v, %v", k, err)
	}
	k, _ = f.eng.PreviousOrder(ctx, root, f.keys("1", ""))
	if k.Value != "2" {
		t.Errorf("last child of 1 = %+v", k)
	}
}

func TestNames_HideReserved(t *testing.T) {
	f := newFixture(t, true, true)
	ctx := context.Background()
	f.set(address.MustLocal("a"), "1")
	f.set(address.MustLocal("z"), "2")
	f.call(engine.EntryStage, codec.Encode([]string{`"staged"`, "2"}))

	for _, tc := range []struct {
		dir  Direction
		want []string
	}{
		{Forward, []string{"a", "z"}},
		{Reverse, []string{"z", "a"}},
	} {
		var got []string
		if err := f.eng.Names(ctx, address.Local, tc.dir, func(n string) bool {
			got = append(got, n)
			return true
		}); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("names dir %d (-want +got):\n%s", tc.dir, diff)
		}
	}

	k, err := f.eng.Order(ctx, address.Address{Kind: address.Local}, nil)
	if err != nil || k.Value != "a" {
		t.Errorf("first local = %+v, %v", k, err)
	}
}

func TestKeyLiteral(t *testing.T) {
	cases := []struct {
		key  Key
		want string
	}{
		{Key{Value: "0.5", Number: true}, ".5"},
		{Key{Value: "10", Number: true}, "10"},
		{Key{Value: "0.0000001", Number: true}, ".0000001"},
		{Key{Value: "-0.123456789012345678", Number: true}, "-.123456789012345678"},
		{Key{Value: "10"}, `"10"`},
		{Key{Value: `a"b`}, `"a""b"`},
		{Key{}, `""`},
	}
	for _, c := range cases {
		if got := c.key.Literal(); got != c.want {
			t.Errorf("%+v.Literal() = %q, want %q", c.key, got, c.want)
		}
	}

	k, err := HostKey("0.5", codec.String, codec.UTF8)
	if err != nil || k.Number {
		t.Errorf("string mode key = %+v, %v", k, err)
	}
	k, err = HostKey("0.0000001", codec.Canonical, codec.UTF8)
	if err != nil || !k.Number || k.Literal() != ".0000001" {
		t.Errorf("small number key = %+v, %v", k, err)
	}
	k, err = HostKey("0.10", codec.Canonical, codec.UTF8)
	if err != nil || k.Number {
		t.Errorf("non-canonical number key = %+v, %v", k, err)
	}
	k, err = HostKey("é", codec.Canonical, codec.Byte)
	if err != nil || k.Value != "\xe9" {
		t.Errorf("byte charset key = %q, %v", k.Value, err)
	}
}
