package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts the subset of pgxpool.Pool used by PostgresStore.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore keeps documents as JSONB rows keyed by their full path.
// See migrations/001_documents.sql for the schema.
type PostgresStore struct {
	q     Querier
	close func()
}

// NewPostgresStore constructs a PostgresStore backed by the given pool.
// Close releases the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{q: pool, close: pool.Close}
}

// NewPostgresStoreWithQuerier constructs a PostgresStore with a custom Querier (for tests).
func NewPostgresStoreWithQuerier(q Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// Get retrieves the document at path. Returns nil, nil when it does not exist.
func (s *PostgresStore) Get(ctx context.Context, path string) (*Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}

	const q = `
		SELECT id, path, data
		FROM documents
		WHERE path = $1
	`

	var d Document
	var dataJSON []byte

	err := s.q.QueryRow(ctx, q, path).Scan(&d.ID, &d.Path, &dataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying document %s: %w", path, err)
	}

	if err := json.Unmarshal(dataJSON, &d.Data); err != nil {
		return nil, fmt.Errorf("unmarshaling document %s: %w", path, err)
	}

	return &d, nil
}

// FindByField returns documents in collection whose top-level field equals value.
// Uses the JSONB @> containment operator so the GIN index applies.
func (s *PostgresStore) FindByField(ctx context.Context, collection, field string, value any, limit int) ([]*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	filter, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return nil, fmt.Errorf("marshaling JSONB filter: %w", err)
	}

	const q = `
		SELECT id, path, data
		FROM documents
		WHERE collection = $1
		AND data @> $2::jsonb
		ORDER BY created_at, path
		LIMIT $3
	`

	rows, err := s.q.Query(ctx, q, collection, string(filter), limit)
	if err != nil {
		return nil, fmt.Errorf("querying %s by %s: %w", collection, field, err)
	}
	defer rows.Close()

	var results []*Document
	for rows.Next() {
		var d Document
		var dataJSON []byte

		if err := rows.Scan(&d.ID, &d.Path, &dataJSON); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}

		if err := json.Unmarshal(dataJSON, &d.Data); err != nil {
			return nil, fmt.Errorf("unmarshaling document %s: %w", d.Path, err)
		}

		results = append(results, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	return results, nil
}

// Set inserts or replaces the document at path. With merge, the new
// top-level fields are merged into the stored object (jsonb ||).
func (s *PostgresStore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return err
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", path, err)
	}

	const replace = `
		INSERT INTO documents (path, collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (path) DO UPDATE
		SET data       = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at
	`
	const merged = `
		INSERT INTO documents (path, collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (path) DO UPDATE
		SET data       = documents.data || EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at
	`

	q := replace
	if merge {
		q = merged
	}

	if _, err := s.q.Exec(ctx, q, path, collection, id, dataJSON); err != nil {
		return fmt.Errorf("upserting document %s: %w", path, err)
	}

	return nil
}

// Create inserts the document only when path is free. The check and the
// write are a single statement, so concurrent creators cannot both succeed.
func (s *PostgresStore) Create(ctx context.Context, path string, data map[string]any) (bool, error) {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return false, err
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("marshaling document %s: %w", path, err)
	}

	const q = `
		INSERT INTO documents (path, collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (path) DO NOTHING
	`

	tag, err := s.q.Exec(ctx, q, path, collection, id, dataJSON)
	if err != nil {
		return false, fmt.Errorf("creating document %s: %w", path, err)
	}

	return tag.RowsAffected() == 1, nil
}

// Add stores data under a random id in collection.
func (s *PostgresStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}

	id := uuid.NewString()
	created, err := s.Create(ctx, DocPath(collection, id), data)
	if err != nil {
		return "", err
	}
	if !created {
		return "", fmt.Errorf("adding to %s: generated id %s already taken", collection, id)
	}

	return id, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.q.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
