package memdb

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/errors"
)

// DefaultVersion is reported by about and $ZVERSION.
const DefaultVersion = "MBRIDGE memdb V1.0 Go"

// Config holds configuration for a DB.
type Config struct {
	// Version overrides the reported runtime version.
	Version string

	// IndirectionLimit is the longest routine reference the runtime
	// evaluates. 0 selects address.DefaultIndirectionLimit; negative
	// disables the limit.
	IndirectionLimit int

	// MaxParamSize bounds every call parameter. 0 selects
	// codec.DefaultMaxParamSize.
	MaxParamSize int

	// NoReverseQuery removes the previous_node entry, like older runtimes.
	NoReverseQuery bool

	// Locks is the lock namespace. nil gives the DB a private table.
	Locks *LockTable

	// StorePath persists globals in a SQLite file. Empty keeps globals in
	// memory only.
	StorePath string

	// GlobalDirectory is the initial $ZGBLDIR.
	GlobalDirectory string

	// AutoRelink starts the DB with auto-relink on.
	AutoRelink bool
}

// DB is an in-process hierarchical database runtime. Like the runtimes it
// stands in for, it is single-threaded: Call must not be entered while
// another Call is running, and doing so fails with a concurrency violation.
type DB struct {
	globals  *space
	locals   *space
	locks    *LockTable
	store    *store
	routines map[string][]Routine
	linked   map[string]int
	frames   []*frame
	pending  []op
	features engine.Features
	gbldir   string
	ecode    string
	tpTime   string
	relink   bool
	inFlight atomic.Bool
	mu       sync.Mutex
	closed   bool
}

var _ engine.Backend = (*DB)(nil)

// New creates a DB. With a StorePath the stored globals are loaded first.
func New(cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	db := &DB{
		globals:  newSpace(),
		locals:   newSpace(),
		locks:    cfg.Locks,
		routines: make(map[string][]Routine),
		linked:   make(map[string]int),
		gbldir:   cfg.GlobalDirectory,
		tpTime:   "0",
		relink:   cfg.AutoRelink,
		features: engine.Features{
			Version:          cfg.Version,
			IndirectionLimit: cfg.IndirectionLimit,
			MaxParamSize:     cfg.MaxParamSize,
			ReverseQuery:     !cfg.NoReverseQuery,
		},
	}
	if db.locks == nil {
		db.locks = NewLockTable()
	}
	if db.features.Version == "" {
		db.features.Version = DefaultVersion
	}
	switch {
	case db.features.IndirectionLimit == 0:
		db.features.IndirectionLimit = address.DefaultIndirectionLimit
	case db.features.IndirectionLimit < 0:
		db.features.IndirectionLimit = 0
	}
	if db.features.MaxParamSize == 0 {
		db.features.MaxParamSize = codec.DefaultMaxParamSize
	}

	if cfg.StorePath != "" {
		st, err := openStore(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		n, err := st.load(func(name string, subs []string, value string) {
			n := db.globals.ensure(name, subs)
			n.value, n.hasValue = value, true
		})
		if err != nil {
			st.close()
			return nil, err
		}
		db.store = st
		Logger().Debug("globals loaded",
			zap.String("path", cfg.StorePath),
			zap.Int("nodes", n))
	}
	return db, nil
}

func (db *DB) Features() engine.Features { return db.features }

// Call implements engine.Backend.
func (db *DB) Call(ctx context.Context, entry string, args ...string) (string, error) {
	if !db.inFlight.CompareAndSwap(false, true) {
		return "", errors.Concurrency(entry, "memdb entered while a call is in flight")
	}
	defer db.inFlight.Store(false)

	db.mu.Lock()
	closed := db.closed
	db.mu.Unlock()
	if closed {
		return "", errors.ConnectionState(entry, "memdb is closed")
	}
	if err := codec.CheckSize(args, db.features.MaxParamSize); err != nil {
		return "", err
	}

	h, ok := handlers[entry]
	if !ok {
		return failure(errors.CodeUnknownEntry, "no call-in entry "+entry), nil
	}
	if entry == engine.EntryPreviousNode && !db.features.ReverseQuery {
		return failure(errors.CodeUnknownEntry, "no call-in entry "+entry), nil
	}
	if len(args) < h.params {
		return failure(errors.CodeInvalidArgs, entry+" needs more parameters"), nil
	}

	out, err := h.fn(ctx, db, args)
	if err != nil {
		re, ok := errors.AsRuntime(err)
		if !ok {
			return "", err
		}
		db.ecode = ",Z" + strconv.Itoa(re.Code) + ","
		Logger().Debug("entry failed",
			zap.String("entry", entry),
			zap.Int("code", re.Code),
			zap.String("message", re.Message))
		return failure(re.Code, re.Message), nil
	}
	return out, nil
}

// Close releases locks held by this DB and closes the store. Open
// transactions are rolled back.
func (db *DB) Close(_ context.Context) error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	for len(db.frames) > 0 {
		db.rollbackFrame()
	}
	db.locks.releaseAll(db)
	if db.store != nil {
		return db.store.close()
	}
	return nil
}

// LockTable returns the lock namespace this DB uses.
func (db *DB) LockTable() *LockTable { return db.locks }

// target resolves kind and name parameters to a namespace.
func (db *DB) target(kind, name string) (*space, error) {
	if !validName(name) {
		return nil, rtErr(errors.CodeInvalidName, "bad variable name %q", name)
	}
	switch kind {
	case engine.KindGlobal:
		return db.globals, nil
	case engine.KindLocal:
		return db.locals, nil
	}
	return nil, rtErr(errors.CodeInvalidArgs, "bad namespace %q", kind)
}

// subscripts decodes a subscript vector into runtime values. Quoted strings
// that read as canonical numbers are the same subscript as the number.
func subscripts(vec string) ([]string, error) {
	toks, err := codec.Decode(vec)
	if err != nil {
		return nil, rtErr(errors.CodeInvalidSubs, "%v", err)
	}
	subs := make([]string, len(toks))
	for i, t := range toks {
		v, _, ok := codec.ParseLiteral(t)
		if !ok {
			return nil, rtErr(errors.CodeInvalidSubs, "bad subscript %s", t)
		}
		subs[i] = v
	}
	return subs, nil
}

func noNull(name string, subs []string) error {
	for _, s := range subs {
		if s == "" {
			return rtErr(errors.CodeInvalidSubs, "null subscript in %s", name)
		}
	}
	return nil
}

func validName(name string) bool {
	if name == "" || len(name) > address.MaxNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c == '%' && i == 0:
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
