// Package postgresstore is a concrete, persistent interfaces.DataStore
// backed by PostgreSQL via pgx/pgxpool — the DOMAIN STACK's "persistent
// passthrough" collaborator mentioned in spec §4.6. Grounded on the
// teacher's internal/store/postgres.go (wraps a pool, converts rows to
// domain structs) and internal/db/pool.go's pool-configuration
// conventions; the sqlc-generated dbgen layer underneath it is dropped
// (its query surface is tied to the teacher's flat Flag row) in favor of
// hand-written SQL against a generic (kind, key, version, data) table
// that fits any ldmodel item.
package postgresstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TimurManjosov/goflagship/internal/ldmodel"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS flagship_items (
	kind    SMALLINT NOT NULL,
	key     TEXT NOT NULL,
	version INTEGER NOT NULL,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	data    JSONB,
	PRIMARY KEY (kind, key)
);
`

// Store is a PostgreSQL-backed interfaces.DataStore.
type Store struct {
	pool        *pgxpool.Pool
	initialized bool
}

// New wraps an already-configured pool (see NewPool) and ensures the
// backing table exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("postgresstore: creating schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewPool mirrors the teacher's internal/db/pool.go connection settings,
// kept here so this store stays self-contained for the DOMAIN STACK
// wiring.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgresstore: invalid DSN: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (s *Store) Init(ctx context.Context, snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM flagship_items"); err != nil {
		return err
	}
	for _, key := range orderedKinds() {
		for itemKey, desc := range snapshot[key] {
			if err := upsertRow(ctx, tx, key, itemKey, desc); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

func (s *Store) Get(ctx context.Context, kind ldmodel.DataKind, key string) (ldmodel.ItemDescriptor, bool, error) {
	row := s.pool.QueryRow(ctx, "SELECT version, deleted, data FROM flagship_items WHERE kind=$1 AND key=$2", int(kind), key)
	desc, err := scanDescriptor(kind, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ldmodel.ItemDescriptor{}, false, nil
	}
	if err != nil {
		return ldmodel.ItemDescriptor{}, false, err
	}
	return desc, true, nil
}

func (s *Store) GetAll(ctx context.Context, kind ldmodel.DataKind) (map[string]ldmodel.ItemDescriptor, error) {
	rows, err := s.pool.Query(ctx, "SELECT key, version, deleted, data FROM flagship_items WHERE kind=$1", int(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]ldmodel.ItemDescriptor{}
	for rows.Next() {
		var key string
		var version int
		var deleted bool
		var data []byte
		if err := rows.Scan(&key, &version, &deleted, &data); err != nil {
			return nil, err
		}
		item, err := decodeItem(kind, deleted, data)
		if err != nil {
			return nil, err
		}
		out[key] = ldmodel.ItemDescriptor{Version: version, Item: item}
	}
	return out, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, kind ldmodel.DataKind, key string, item ldmodel.ItemDescriptor) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var existingVersion int
	err = tx.QueryRow(ctx, "SELECT version FROM flagship_items WHERE kind=$1 AND key=$2", int(kind), key).Scan(&existingVersion)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	if err == nil && existingVersion >= item.Version {
		return false, nil
	}

	if err := upsertRow(ctx, tx, kind, key, item); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) IsInitialized(ctx context.Context) bool {
	return s.initialized
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

func upsertRow(ctx context.Context, tx execer, kind ldmodel.DataKind, key string, desc ldmodel.ItemDescriptor) error {
	data, err := encodeItem(desc.Item)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO flagship_items (kind, key, version, deleted, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, key) DO UPDATE SET version=$3, deleted=$4, data=$5
	`, int(kind), key, desc.Version, desc.IsDeleted(), data)
	return err
}

func encodeItem(item any) ([]byte, error) {
	if item == nil {
		return nil, nil
	}
	return json.Marshal(item)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(kind ldmodel.DataKind, row rowScanner) (ldmodel.ItemDescriptor, error) {
	var version int
	var deleted bool
	var data []byte
	if err := row.Scan(&version, &deleted, &data); err != nil {
		return ldmodel.ItemDescriptor{}, err
	}
	item, err := decodeItem(kind, deleted, data)
	if err != nil {
		return ldmodel.ItemDescriptor{}, err
	}
	return ldmodel.ItemDescriptor{Version: version, Item: item}, nil
}

func decodeItem(kind ldmodel.DataKind, deleted bool, data []byte) (any, error) {
	if deleted || len(data) == 0 {
		return nil, nil
	}
	switch kind {
	case ldmodel.Features:
		flag := &ldmodel.FeatureFlag{}
		if err := json.Unmarshal(data, flag); err != nil {
			return nil, err
		}
		flag.Finalize()
		return flag, nil
	case ldmodel.Segments:
		seg := &ldmodel.Segment{}
		if err := json.Unmarshal(data, seg); err != nil {
			return nil, err
		}
		seg.Finalize()
		return seg, nil
	default:
		return nil, fmt.Errorf("postgresstore: unknown data kind %v", kind)
	}
}

func orderedKinds() []ldmodel.DataKind {
	return []ldmodel.DataKind{ldmodel.Segments, ldmodel.Features}
}
