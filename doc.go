// Package mbridge marshals values and dispatches calls between Go and an
// embedded, single-threaded hierarchical database runtime.
//
// The runtime is reached through a narrow call boundary: named entries that
// take positional string parameters and answer with a JSON object. The bridge
// owns everything on the Go side of that boundary.
//
// # Architecture Overview
//
//	mbridge/
//	├── codec/       netstring vectors, numeric classification, charsets
//	├── address/     node addresses and routine references
//	├── engine/      the Backend boundary, reply parsing, wazero backend
//	├── memdb/       in-process reference runtime (optional SQLite store)
//	├── dispatch/    serialization gate, async worker pool, call tracing
//	├── traverse/    $ORDER and $QUERY iteration with a reverse fallback
//	├── txn/         transaction bracket with restart and rollback
//	├── runtime/     connection lifecycle, sessions, the public API
//	├── config/      TOML configuration with environment overrides
//	├── errors/      structured error types
//	└── cmd/mshell/  command line and interactive shell
//
// # Quick Start
//
//	db, _ := memdb.New(nil)
//	rt := runtime.New(db, runtime.Options{OwnBackend: true})
//	owner, err := rt.Open(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer owner.Close(ctx)
//
//	s := rt.Session()
//	_ = s.Set(ctx, address.MustGlobal("acct", 1, "name"), "Ada")
//	name, _ := s.Get(ctx, address.MustGlobal("acct", 1, "name"))
//
// # Concurrency
//
// The runtime must never be entered twice at once. Every call, synchronous
// or async, passes through one gate in the dispatch core, and transactions
// hold that gate from start to commit. Sessions carry per-caller settings
// (charset, numeric mode, auto-relink, tracing) that are applied to the
// runtime just before each call and restored after it.
package mbridge
