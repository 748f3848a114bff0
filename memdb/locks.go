package memdb

import (
	"context"
	"sync"
	"time"
)

// LockTable is a lock namespace that several DB instances may share, the
// way separate processes share one database's locks.
type LockTable struct {
	held    map[*DB][]*lockEntry
	changed chan struct{}
	mu      sync.Mutex
}

type lockEntry struct {
	kind  string
	name  string
	subs  []string
	count int
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		held:    make(map[*DB][]*lockEntry),
		changed: make(chan struct{}),
	}
}

// covers reports whether two lock resources overlap: a lock on a node also
// locks its whole subtree.
func (e *lockEntry) covers(kind, name string, subs []string) bool {
	if e.kind != kind || e.name != name {
		return false
	}
	n := min(len(e.subs), len(subs))
	for i := 0; i < n; i++ {
		if e.subs[i] != subs[i] {
			return false
		}
	}
	return true
}

func (e *lockEntry) same(kind, name string, subs []string) bool {
	return len(e.subs) == len(subs) && e.covers(kind, name, subs)
}

func (t *LockTable) conflict(owner *DB, kind, name string, subs []string) bool {
	for o, entries := range t.held {
		if o == owner {
			continue
		}
		for _, e := range entries {
			if e.covers(kind, name, subs) {
				return true
			}
		}
	}
	return false
}

// acquire takes an incremental lock for owner. A negative timeout waits
// until ctx is done. It reports false when the timeout expires first.
func (t *LockTable) acquire(ctx context.Context, owner *DB, kind, name string, subs []string, timeout time.Duration) (bool, error) {
	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		t.mu.Lock()
		if !t.conflict(owner, kind, name, subs) {
			t.grant(owner, kind, name, subs)
			t.mu.Unlock()
			return true, nil
		}
		wait := t.changed
		t.mu.Unlock()

		if timeout == 0 {
			return false, nil
		}
		select {
		case <-wait:
		case <-deadline:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (t *LockTable) grant(owner *DB, kind, name string, subs []string) {
	for _, e := range t.held[owner] {
		if e.same(kind, name, subs) {
			e.count++
			return
		}
	}
	t.held[owner] = append(t.held[owner], &lockEntry{
		kind:  kind,
		name:  name,
		subs:  append([]string(nil), subs...),
		count: 1,
	})
}

// release drops one level of an incremental lock. It reports false if owner
// did not hold it.
func (t *LockTable) release(owner *DB, kind, name string, subs []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := t.held[owner]
	for i, e := range entries {
		if !e.same(kind, name, subs) {
			continue
		}
		e.count--
		if e.count == 0 {
			entries = append(entries[:i], entries[i+1:]...)
			if len(entries) == 0 {
				delete(t.held, owner)
			} else {
				t.held[owner] = entries
			}
			t.notify()
		}
		return true
	}
	return false
}

// releaseAll drops every lock owner holds.
func (t *LockTable) releaseAll(owner *DB) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[owner]; ok {
		delete(t.held, owner)
		t.notify()
	}
}

func (t *LockTable) notify() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// Held returns the number of distinct resources locked across all owners.
func (t *LockTable) Held() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, entries := range t.held {
		n += len(entries)
	}
	return n
}
