// Package engine defines the call boundary into an embedded hierarchical
// database runtime.
//
// A Backend exposes the runtime as a set of named entries, each taking
// positional string parameters and returning one JSON object:
//
//	{"ok":true,"data":"value","defined":true}
//	{"ok":false,"errorCode":"150373850","errorMessage":"undefined node"}
//
// Scalars in a reply are either JSON numbers (the runtime holds a numeric
// value) or JSON strings whose bytes above 0x7E and control bytes are sent
// as \u00XX escapes. ParseReply turns the text into a Reply, and a reply with
// ok false into an errors.RuntimeError.
//
// # Backends
//
// Two backends ship with the bridge:
//
//	memdb.DB     - a pure Go reference runtime (package memdb)
//	WasmBackend  - a runtime compiled to WebAssembly, run under wazero
//
// A wasm guest exports memory, mb_alloc and mb_call, and may export mb_free.
// The host writes the entry name and the codec vector of arguments into guest
// memory, calls mb_call and reads the reply from the packed ptr<<32|len
// result. Guests may import mbridge.log(ptr, len) to write to the engine
// logger.
//
// # Thread Safety
//
// Backends are NOT safe for concurrent use. Serialization is the job of the
// dispatch package; backends only detect overlap and fail with a
// concurrency violation.
package engine
