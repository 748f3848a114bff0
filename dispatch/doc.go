// Package dispatch serializes calls from many goroutines into the single
// call stream an embedded runtime accepts.
//
// Every request, synchronous or asynchronous, passes one gate (a weighted
// semaphore of size 1) before it reaches the backend, so at most one backend
// call is in flight at any instant. Async requests first take a slot in a
// bounded worker pool, which only overlaps queuing with execution; they
// still serialize at the same gate.
//
//	core := dispatch.New(backend)
//	core.Open()
//	reply, err := core.Submit(ctx, &dispatch.Request{Entry: engine.EntryAbout})
//
//	call := core.Go(ctx, &dispatch.Request{Entry: engine.EntryGet, Args: args})
//	reply, err = call.Wait(ctx)
//
// # Exclusive Sections
//
// Hold keeps the gate for a whole function. The context passed to the
// function carries the grant, and requests submitted with it run inline.
// Transactions and multi-step operations use this to stay atomic. A request
// with Steps is the lighter form for a fixed sequence of entry calls.
//
// # Cancellation
//
// A request can be canceled only while it is queued. Once it holds the gate
// it runs to completion, because a foreign call cannot be preempted.
//
// # Configuration
//
// Each request carries a Config. Auto-relink is switched through the
// backend's configure entry just before the request runs and switched back
// right after. The trace level selects which calls are logged and at what
// zap level.
package dispatch
