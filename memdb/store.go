package memdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

type opKind int

const (
	opPut opKind = iota
	opDeleteValue
	opDeleteTree
)

// op is one pending change to a stored global.
type op struct {
	name  string
	value string
	subs  []string
	kind  opKind
}

// store persists globals in SQLite. Keys are subscript vectors, so the keys
// of a subtree all share its node's key as a prefix.
type store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	name  TEXT NOT NULL,
	key   BLOB NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (name, key)
)`

func openStore(path string) (*store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Load("create store directory", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Load("open store", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		Logger().Debug("store: journal_mode=WAL not set")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Load("create store schema", err)
	}
	return &store{db: db}, nil
}

func nodeKey(subs []string) []byte {
	if len(subs) == 0 {
		return []byte{}
	}
	return []byte(codec.Encode(subs))
}

func (s *store) load(fn func(name string, subs []string, value string)) (int, error) {
	rows, err := s.db.Query("SELECT name, key, value FROM nodes")
	if err != nil {
		return 0, errors.Load("read store", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var name string
		var key, value []byte
		if err := rows.Scan(&name, &key, &value); err != nil {
			return n, errors.Load("scan store", err)
		}
		subs, err := codec.Decode(string(key))
		if err != nil {
			return n, errors.Load("bad stored key for "+name, err)
		}
		fn(name, subs, string(value))
		n++
	}
	if err := rows.Err(); err != nil {
		return n, errors.Load("read store", err)
	}
	return n, nil
}

// apply writes ops in one SQLite transaction. Serial durability syncs the
// commit to disk; batch leaves it to the OS.
func (s *store) apply(ctx context.Context, ops []op, durability string) error {
	sync := "FULL"
	if durability == Batch {
		sync = "OFF"
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous = "+sync); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, o := range ops {
		key := nodeKey(o.subs)
		switch o.kind {
		case opPut:
			_, err = tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO nodes (name, key, value) VALUES (?, ?, ?)",
				o.name, key, []byte(o.value))
		case opDeleteValue:
			_, err = tx.ExecContext(ctx,
				"DELETE FROM nodes WHERE name = ? AND key = ?", o.name, key)
		case opDeleteTree:
			if len(o.subs) == 0 {
				_, err = tx.ExecContext(ctx, "DELETE FROM nodes WHERE name = ?", o.name)
			} else {
				_, err = tx.ExecContext(ctx,
					"DELETE FROM nodes WHERE name = ? AND substr(key, 1, ?) = ?",
					o.name, len(key), key)
			}
		}
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *store) close() error {
	return s.db.Close()
}
