// Package sqlite implements docstore.Store on modernc.org/sqlite (pure Go).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	data       TEXT    NOT NULL DEFAULT '{}',
	version    INTEGER NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Store implements docstore.Store on a SQLite database file.
type Store struct {
	db    *sql.DB
	clock core.Clock
}

// Options configures the store.
type Options struct {
	Clock core.Clock
}

// New opens or creates a SQLite database at path and ensures the schema.
// Use ":memory:" for an ephemeral database.
func New(ctx context.Context, path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Clock: core.SystemClock{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// A single connection serializes read-modify-write transactions and keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable wal: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	return &Store{db: db, clock: opts.Clock}, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, key docstore.Key) (docstore.Document, error) {
	if err := key.Validate(); err != nil {
		return docstore.Document{}, err
	}

	return s.get(ctx, s.db, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, q queryer, key docstore.Key) (docstore.Document, error) {
	var (
		raw       string
		version   int64
		updatedAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT data, version, updated_at FROM documents WHERE collection = ? AND id = ?`,
		key.Collection, key.ID,
	).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.NotFound(key)
	}

	if err != nil {
		return docstore.Document{}, fmt.Errorf("sqlite: get %s: %w", key, err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return docstore.Document{}, fmt.Errorf("sqlite: decode %s: %w", key, err)
	}

	ts, _ := time.Parse(time.RFC3339Nano, updatedAt)

	return docstore.Document{Key: key, Data: data, Version: version, UpdatedAt: ts}, nil
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, key docstore.Key, data map[string]any, optFns ...func(o *docstore.WriteOptions)) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	opts := docstore.WriteOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	raw, err := docstore.Raw(data)
	if err != nil {
		return 0, err
	}

	var version int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.currentVersion(ctx, tx, key)
		if err != nil {
			return err
		}

		if err := docstore.CheckVersion(key, opts.IfVersion, current); err != nil {
			return err
		}

		version = current + 1
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data, version, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`,
			key.Collection, key.ID, string(raw), version, s.now(),
		)
		return err
	})
	if err != nil {
		return 0, err
	}

	return version, nil
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, key docstore.Key, u docstore.Update) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	var version int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		doc, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}

		if err := docstore.CheckVersion(key, u.ExpectedVersion, doc.Version); err != nil {
			return err
		}

		data, err := docstore.Apply(doc.Data, u)
		if err != nil {
			return err
		}

		raw, err := docstore.Raw(data)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = ?, version = version + 1, updated_at = ? WHERE collection = ? AND id = ? AND version = ?`,
			string(raw), s.now(), key.Collection, key.ID, doc.Version,
		)
		if err != nil {
			return err
		}

		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s changed concurrently", core.ErrConflict, key)
		}

		version = doc.Version + 1
		return nil
	})
	if err != nil {
		return 0, err
	}

	return version, nil
}

// Close implements docstore.Store.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) currentVersion(ctx context.Context, tx *sql.Tx, key docstore.Key) (int64, error) {
	var v int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE collection = ? AND id = ?`, key.Collection, key.ID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	return v, err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	return nil
}

func (s *Store) now() string { return s.clock.Now().UTC().Format(time.RFC3339Nano) }
