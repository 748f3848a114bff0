// Package runtime is the public API of the bridge to an embedded
// hierarchical-database runtime.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := memdb.New(nil)
//	rt := runtime.New(db, runtime.Options{OwnBackend: true})
//
//	owner, err := rt.Open(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer owner.Close(ctx)
//
//	s := rt.Session()
//	s.Set(ctx, address.MustGlobal("acct", 1, "name"), "Ada")
//	v, err := s.Get(ctx, address.MustGlobal("acct", 1, "name"))
//
// # Lifecycle
//
// A Runtime is Closed until Open succeeds. The Owner returned by Open is
// the only handle that can close it again; after Close a new Open is
// allowed and the old Owner is stale. Open snapshots the terminal state when
// stdin is a terminal and optionally forwards SIGINT, SIGTERM and SIGQUIT;
// Close restores both.
//
// # Sessions
//
// A Session is one caller's view of the runtime: charset, mode,
// auto-relink and trace level. Sessions start from the Runtime defaults and
// may be reconfigured at any time. A session's configuration is applied
// immediately before each of its calls and restored after.
//
// Every operation is serialized through one dispatch core, so sessions may
// be used from any number of goroutines. Async variants return a Future
// and run on the core's bounded worker pool.
//
// # Values
//
// In canonical mode numbers come back as codec.Number and strings as
// string. In string mode everything is a string. Subscripts are always host
// strings, ready to be fed back into an address.
package runtime
