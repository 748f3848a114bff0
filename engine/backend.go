package engine

import (
	"context"

	"github.com/wippyai/mbridge/address"
)

// Entry names of the call boundary. Every entry takes positional string
// parameters and returns one JSON object.
const (
	EntryAbout        = "about"
	EntryConfigure    = "configure"     // relink
	EntryData         = "data"          // kind, name, subs
	EntryGet          = "get"           // kind, name, subs, mode
	EntrySet          = "set"           // kind, name, subs, value
	EntryKill         = "kill"          // kind, name, subs, nodeOnly
	EntryMerge        = "merge"         // toKind, toName, toSubs, fromKind, fromName, fromSubs
	EntryOrder        = "order"         // kind, name, subs, direction, mode
	EntryNextNode     = "next_node"     // kind, name, subs, mode
	EntryPreviousNode = "previous_node" // kind, name, subs, mode
	EntryIncrement    = "increment"     // kind, name, subs, increment, mode
	EntryLock         = "lock"          // kind, name, subs, timeout
	EntryUnlock       = "unlock"        // kind, name, subs (empty name releases all)
	EntryFunction     = "function"      // ref, mode
	EntryProcedure    = "procedure"     // ref
	EntryStage        = "stage"         // literals
	EntryUnstage      = "unstage"
	EntryTStart       = "tstart" // durability, variables
	EntryTCommit      = "tcommit"
	EntryTRollback    = "trollback"
	EntryTRestart     = "trestart"
	EntryTLevel       = "tlevel"
)

// Namespace tags used as the kind parameter.
const (
	KindGlobal    = "G"
	KindLocal     = "L"
	KindIntrinsic = "I"
)

// KindTag returns the namespace tag for an address kind.
func KindTag(k address.Kind) string {
	switch k {
	case address.Global:
		return KindGlobal
	case address.Intrinsic:
		return KindIntrinsic
	}
	return KindLocal
}

// Backend is the narrow call boundary into an embedded runtime. The runtime
// is single-threaded and non-reentrant: a Backend must never be called
// concurrently, and the dispatch layer guarantees it is not.
type Backend interface {
	// Call invokes a named entry with positional string parameters and
	// returns the entry's JSON reply text.
	Call(ctx context.Context, entry string, args ...string) (string, error)

	// Features describes the runtime behind the boundary.
	Features() Features

	// Close releases the runtime.
	Close(ctx context.Context) error
}

// Features describes limits and optional primitives of a runtime.
type Features struct {
	// Version is a free-form runtime version string.
	Version string

	// IndirectionLimit is the longest string the runtime evaluates
	// indirectly. 0 means unlimited.
	IndirectionLimit int

	// MaxParamSize is the largest single parameter the boundary accepts.
	// 0 means unlimited.
	MaxParamSize int

	// ReverseQuery is true when the runtime can return the depth-first
	// predecessor of a node natively. Older runtimes cannot.
	ReverseQuery bool
}
