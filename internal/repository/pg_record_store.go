package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parcelaid/backend/internal/model"
)

// PgRecordStore is the PostgreSQL implementation of RecordStore. All
// collections share the form_records table; insertion order is the bigserial id.
type PgRecordStore struct {
	pool *pgxpool.Pool
}

// NewPgRecordStore creates a PgRecordStore backed by the given pool.
func NewPgRecordStore(pool *pgxpool.Pool) *PgRecordStore {
	return &PgRecordStore{pool: pool}
}

// Ensure PgRecordStore implements RecordStore at compile time.
var _ RecordStore = (*PgRecordStore)(nil)

func (s *PgRecordStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PgRecordStore) Append(ctx context.Context, c model.Collection, rec json.RawMessage) (int, error) {
	n, _, err := s.AppendUnique(ctx, c, rec, nil)
	return n, err
}

// AppendUnique serializes writers of one collection with a transaction-scoped
// advisory lock keyed by the collection name.
func (s *PgRecordStore) AppendUnique(ctx context.Context, c model.Collection, rec json.RawMessage, exists func(json.RawMessage) bool) (int, bool, error) {
	if !c.Valid() {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("append %s: begin: %w", c, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(c)); err != nil {
		return 0, false, fmt.Errorf("append %s: lock: %w", c, err)
	}

	if exists != nil {
		records, err := queryPayloads(ctx, tx, c)
		if err != nil {
			return 0, false, fmt.Errorf("append %s: scan existing: %w", c, err)
		}
		for _, r := range records {
			if exists(r) {
				return len(records), false, nil
			}
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO form_records (collection, payload) VALUES ($1, $2::jsonb)`,
		string(c), string(rec),
	); err != nil {
		return 0, false, fmt.Errorf("append %s: insert: %w", c, err)
	}

	var n int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM form_records WHERE collection = $1`, string(c),
	).Scan(&n); err != nil {
		return 0, false, fmt.Errorf("append %s: count: %w", c, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("append %s: commit: %w", c, err)
	}
	return n, true, nil
}

func (s *PgRecordStore) ReadAll(ctx context.Context, c model.Collection) []json.RawMessage {
	records, err := queryPayloads(ctx, s.pool, c)
	if err != nil {
		slog.Error("read collection failed, returning empty", "collection", c, "error", err)
		return []json.RawMessage{}
	}
	return records
}

func (s *PgRecordStore) Count(ctx context.Context, c model.Collection) int {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM form_records WHERE collection = $1`, string(c),
	).Scan(&n); err != nil {
		slog.Error("count collection failed", "collection", c, "error", err)
		return 0
	}
	return n
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryPayloads(ctx context.Context, q querier, c model.Collection) ([]json.RawMessage, error) {
	rows, err := q.Query(ctx,
		`SELECT payload FROM form_records WHERE collection = $1 ORDER BY id`, string(c))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []json.RawMessage{}
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		records = append(records, json.RawMessage(b))
	}
	return records, rows.Err()
}
