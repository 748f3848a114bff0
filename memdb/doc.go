// Package memdb is a reference embedded runtime: an in-process hierarchical
// database that implements every entry of the engine call boundary.
//
// Globals and locals are sparse ordered trees. Subscripts collate with the
// empty string first, then canonical numbers by value, then strings by
// bytes. Replies are assembled as JSON text by hand, exactly as a runtime
// without a JSON library would write them.
//
// A DB is single-threaded and non-reentrant, like the runtimes it models.
// Entering Call while another Call is running fails with a concurrency
// violation instead of corrupting state; the dispatch package is what makes
// concurrent use safe.
//
// Globals may be persisted to SQLite with Config.StorePath. Writes outside a
// transaction are stored immediately; writes inside one are stored when the
// outermost frame commits, synced to disk for serial durability and left to
// the OS for batch durability.
//
// Routines are Go functions registered by reference:
//
//	db.RegisterRoutine("add^math", func(env *memdb.Env, args []string) (string, error) {
//		sum, _ := codec.Add(args[0], args[1])
//		return sum, nil
//	})
package memdb
