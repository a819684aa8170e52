// Package container implements the hierarchical data file shared by all
// pipeline stages: a tree of groups and typed, chunked datasets stored in a
// single SQLite database.
package container

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

const formatTag = "egc-container/1"

var (
	ErrNotFound     = errors.New("node not found")
	ErrExists       = errors.New("node already exists")
	ErrNotGroup     = errors.New("node is not a group")
	ErrNotDataset   = errors.New("node is not a dataset")
	ErrTypeMismatch = errors.New("dataset element type mismatch")
	ErrNotContainer = errors.New("not a container file")
	ErrReadOnly     = errors.New("container opened read-only")
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	path       TEXT PRIMARY KEY,
	parent     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	dtype      TEXT NOT NULL DEFAULT '',
	shape      TEXT NOT NULL DEFAULT '',
	chunk_rank INTEGER NOT NULL DEFAULT 0,
	fill       BLOB
);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent);
CREATE TABLE IF NOT EXISTS chunks (
	path TEXT NOT NULL,
	idx  INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (path, idx)
);
CREATE TABLE IF NOT EXISTS attrs (
	path  TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (path, key)
);
`

const (
	kindGroup   = "group"
	kindDataset = "dataset"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// File is an open container
type File struct {
	db       *sql.DB
	tx       *sql.Tx
	path     string
	readOnly bool
}

// Open opens the container at path for update, creating it if absent
func Open(path string) (*File, error) {
	return open(path, false)
}

// Create creates a fresh container at path, truncating any existing file
func Create(path string) (*File, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove old container: %w", err)
	}
	return open(path, false)
}

// OpenReadOnly opens an existing container without write access
func OpenReadOnly(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotContainer)
	}
	return open(path, true)
}

// IsContainer reports whether path holds a container file
func IsContainer(path string) bool {
	f, err := OpenReadOnly(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func open(path string, readOnly bool) (*File, error) {
	dsn := path + "?_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	if readOnly {
		dsn += "&_pragma=query_only(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open container %s: %w", path, err)
	}
	// Transactions are routed through a single connection.
	db.SetMaxOpenConns(1)

	f := &File{db: db, path: path, readOnly: readOnly}
	if readOnly {
		err = f.checkFormat()
	} else {
		err = f.initSchema()
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) initSchema() error {
	var tag string
	err := f.db.QueryRow(`SELECT value FROM meta WHERE key = 'format'`).Scan(&tag)
	if err == nil {
		if tag != formatTag {
			return fmt.Errorf("%s: unsupported format %q: %w", f.path, tag, ErrNotContainer)
		}
		return nil
	}

	// A database without our meta table is either empty or foreign.
	var tables int
	if err := f.db.QueryRow(`SELECT count(*) FROM sqlite_master`).Scan(&tables); err != nil {
		return fmt.Errorf("%s: %w: %v", f.path, ErrNotContainer, err)
	}
	if tables > 0 {
		return fmt.Errorf("%s: foreign database: %w", f.path, ErrNotContainer)
	}

	if _, err := f.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create container schema: %w", err)
	}
	if _, err := f.db.Exec(`INSERT INTO meta (key, value) VALUES ('format', ?)`, formatTag); err != nil {
		return fmt.Errorf("failed to tag container: %w", err)
	}
	if _, err := f.db.Exec(`INSERT OR IGNORE INTO nodes (path, parent, kind) VALUES ('/', '', ?)`, kindGroup); err != nil {
		return fmt.Errorf("failed to create root group: %w", err)
	}
	return nil
}

func (f *File) checkFormat() error {
	var tag string
	if err := f.db.QueryRow(`SELECT value FROM meta WHERE key = 'format'`).Scan(&tag); err != nil {
		return fmt.Errorf("%s: %w: %v", f.path, ErrNotContainer, err)
	}
	if tag != formatTag {
		return fmt.Errorf("%s: unsupported format %q: %w", f.path, tag, ErrNotContainer)
	}
	return nil
}

// Path returns the file system path of the container
func (f *File) Path() string { return f.path }

// Close releases the underlying database handle. An open transaction is
// rolled back.
func (f *File) Close() error {
	if f.tx != nil {
		f.tx.Rollback()
		f.tx = nil
	}
	return f.db.Close()
}

// Atomically runs fn inside a single transaction. Any error returned by fn
// rolls back every mutation made through f while fn ran. Nested calls join
// the outer transaction.
func (f *File) Atomically(fn func() error) error {
	if f.tx != nil {
		return fn()
	}
	if f.readOnly {
		return ErrReadOnly
	}

	tx, err := f.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	f.tx = tx
	defer func() { f.tx = nil }()

	if err := fn(); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (f *File) q() queryer {
	if f.tx != nil {
		return f.tx
	}
	return f.db
}

func (f *File) writable() error {
	if f.readOnly {
		return fmt.Errorf("%s: %w", f.path, ErrReadOnly)
	}
	return nil
}
