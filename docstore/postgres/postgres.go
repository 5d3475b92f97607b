// Package postgres implements docstore.Store on PostgreSQL via pgx, storing
// documents as JSONB rows.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
	version    BIGINT      NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Store implements docstore.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	clock  core.Clock
	logger logging.Logger
}

// Options configures the store.
type Options struct {
	Clock  core.Clock
	Logger logging.Logger
}

// New connects to dsn, pings the server and ensures the schema.
func New(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Clock: core.SystemClock{}, Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: init schema: %w", err)
	}

	opts.Logger.Info("docstore.postgres.connected", "max_conns", cfg.MaxConns)

	return &Store{pool: pool, clock: opts.Clock, logger: opts.Logger}, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, key docstore.Key) (docstore.Document, error) {
	if err := key.Validate(); err != nil {
		return docstore.Document{}, err
	}

	return s.get(ctx, s.pool, key, false)
}

type rowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) get(ctx context.Context, q rowQueryer, key docstore.Key, forUpdate bool) (docstore.Document, error) {
	query := `SELECT data, version, updated_at FROM documents WHERE collection = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		raw       []byte
		version   int64
		updatedAt time.Time
	)

	err := q.QueryRow(ctx, query, key.Collection, key.ID).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, docstore.NotFound(key)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("postgres: get %s: %w", key, err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("postgres: decode %s: %w", key, err)
	}

	return docstore.Document{Key: key, Data: data, Version: version, UpdatedAt: updatedAt}, nil
}

// Set implements docstore.Store. Every variant is a single statement, so
// concurrent creators of the same key cannot both succeed.
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

	now := s.clock.Now()

	switch {
	case opts.IfVersion == nil:
		var version int64

		err := s.pool.QueryRow(ctx,
			`INSERT INTO documents (collection, id, data, version, updated_at) VALUES ($1, $2, $3, 1, $4)
			 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1, updated_at = EXCLUDED.updated_at
			 RETURNING version`,
			key.Collection, key.ID, raw, now,
		).Scan(&version)
		if err != nil {
			return 0, fmt.Errorf("postgres: set %s: %w", key, err)
		}

		return version, nil
	case *opts.IfVersion == 0:
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO documents (collection, id, data, version, updated_at) VALUES ($1, $2, $3, 1, $4)
			 ON CONFLICT (collection, id) DO NOTHING`,
			key.Collection, key.ID, raw, now,
		)
		if err != nil {
			return 0, fmt.Errorf("postgres: create %s: %w", key, err)
		}

		if tag.RowsAffected() == 0 {
			return 0, s.conflict(ctx, key, *opts.IfVersion)
		}

		return 1, nil
	default:
		var version int64

		err := s.pool.QueryRow(ctx,
			`UPDATE documents SET data = $1, version = version + 1, updated_at = $2
			 WHERE collection = $3 AND id = $4 AND version = $5
			 RETURNING version`,
			raw, now, key.Collection, key.ID, *opts.IfVersion,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, s.conflict(ctx, key, *opts.IfVersion)
		}
		if err != nil {
			return 0, fmt.Errorf("postgres: set %s: %w", key, err)
		}

		return version, nil
	}
}

// conflict reports a failed conditional write against the version now stored.
func (s *Store) conflict(ctx context.Context, key docstore.Key, expected int64) error {
	var current int64

	err := s.pool.QueryRow(ctx,
		`SELECT version FROM documents WHERE collection = $1 AND id = $2`,
		key.Collection, key.ID,
	).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: read version %s: %w", key, err)
	}

	if err := docstore.CheckVersion(key, &expected, current); err != nil {
		return err
	}

	return fmt.Errorf("%w: %s changed during write", core.ErrConflict, key)
}

// Update implements docstore.Store. The row is locked for the duration of the
// read-modify-write so concurrent unions are serialized.
func (s *Store) Update(ctx context.Context, key docstore.Key, u docstore.Update) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	var version int64

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		doc, err := s.get(ctx, tx, key, true)
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

		version = doc.Version + 1

		_, err = tx.Exec(ctx,
			`UPDATE documents SET data = $1, version = $2, updated_at = $3 WHERE collection = $4 AND id = $5`,
			raw, version, s.clock.Now(), key.Collection, key.ID,
		)
		if err != nil {
			return fmt.Errorf("postgres: update %s: %w", key, err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return version, nil
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
