// Package txn runs operation sequences as atomic transactions.
//
// A Coordinator opens a native transaction bracket, runs the body and
// interprets its Outcome: Commit (the default) makes the writes durable,
// Restart undoes the frame, resets the named local variables and runs the
// body again, Rollback discards the frame. A body error rolls back and is
// returned. The dispatch gate is held for the whole transaction, so no other
// caller's request can interleave with it.
//
//	coord := txn.New(core, dispatch.Config{})
//	out, err := coord.Run(ctx, func(ctx context.Context) (txn.Outcome, error) {
//		// submit requests with ctx; they run inside the bracket
//		return txn.Commit, nil
//	}, txn.Options{Durability: txn.Serial, Variables: []string{"*"}})
//
// Nested Run calls made with the body's context open inner frames inside the
// same bracket. An inner Restart or Rollback affects only the inner frame.
package txn
