package storage_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/parkwait/internal/storage"
)

// ---- mock Querier ----

type mockQuerier struct {
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	pingErr    error
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.queryRowFn(ctx, sql, args...)
}
func (m *mockQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return m.queryFn(ctx, sql, args...)
}
func (m *mockQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return m.execFn(ctx, sql, args...)
}
func (m *mockQuerier) Ping(_ context.Context) error { return m.pingErr }

// ---- mock pgx.Row ----

type fakeRow struct {
	scanFn func(dest ...any) error
}

func (f *fakeRow) Scan(dest ...any) error { return f.scanFn(dest...) }

// ---- mock pgx.Rows ----

type fakeRows struct {
	rows    [][]any
	idx     int
	rowErr  error
	scanErr error
}

func (f *fakeRows) Next() bool                                   { f.idx++; return f.idx <= len(f.rows) }
func (f *fakeRows) Err() error                                   { return f.rowErr }
func (f *fakeRows) Close()                                       {}
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.rows[f.idx-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *[]byte:
			*v = row[i].([]byte)
		}
	}
	return nil
}

func documentRow(id, path, data string) *fakeRow {
	return &fakeRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = path
		*dest[2].(*[]byte) = []byte(data)
		return nil
	}}
}

// ---- Get ----

func TestPostgresGet_Found(t *testing.T) {
	var capturedPath any
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, args ...any) pgx.Row {
			capturedPath = args[0]
			return documentRow("disneyland-park", "parks/disneyland-park", `{"id":"disneyland-park","name":"Disneyland Park"}`)
		},
	}

	s := storage.NewPostgresStoreWithQuerier(q)
	doc, err := s.Get(context.Background(), "parks/disneyland-park")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "parks/disneyland-park", capturedPath)
	assert.Equal(t, "disneyland-park", doc.ID)
	name, ok := doc.String("name")
	assert.True(t, ok)
	assert.Equal(t, "Disneyland Park", name)
}

func TestPostgresGet_NotFound(t *testing.T) {
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	doc, err := storage.NewPostgresStoreWithQuerier(q).Get(context.Background(), "parks/nowhere")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestPostgresGet_DBError(t *testing.T) {
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error { return fmt.Errorf("connection reset") }}
		},
	}

	_, err := storage.NewPostgresStoreWithQuerier(q).Get(context.Background(), "parks/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying document")
}

func TestPostgresGet_BadJSON(t *testing.T) {
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return documentRow("x", "parks/x", "not-valid-json")
		},
	}

	_, err := storage.NewPostgresStoreWithQuerier(q).Get(context.Background(), "parks/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshaling")
}

func TestPostgresGet_InvalidPath(t *testing.T) {
	s := storage.NewPostgresStoreWithQuerier(&mockQuerier{})
	for _, p := range []string{"", "parks", "parks//rides", "parks/x/rides"} {
		_, err := s.Get(context.Background(), p)
		assert.ErrorIs(t, err, storage.ErrInvalidPath, p)
	}
}

// ---- FindByField ----

func TestPostgresFindByField_Found(t *testing.T) {
	var capturedArgs []any
	rows := &fakeRows{
		rows: [][]any{{"space-mountain", "parks/dl/rides/space-mountain", []byte(`{"name":"Space Mountain"}`)}},
	}
	q := &mockQuerier{
		queryFn: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			capturedArgs = args
			assert.Contains(t, sql, "data @> $2::jsonb")
			return rows, nil
		},
	}

	results, err := storage.NewPostgresStoreWithQuerier(q).
		FindByField(context.Background(), "parks/dl/rides", "name", "Space Mountain", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "space-mountain", results[0].ID)

	require.Len(t, capturedArgs, 3)
	assert.Equal(t, "parks/dl/rides", capturedArgs[0])
	assert.JSONEq(t, `{"name":"Space Mountain"}`, capturedArgs[1].(string))
	assert.Equal(t, 1, capturedArgs[2])
}

func TestPostgresFindByField_Empty(t *testing.T) {
	q := &mockQuerier{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return &fakeRows{}, nil },
	}

	results, err := storage.NewPostgresStoreWithQuerier(q).FindByField(context.Background(), "parks", "name", "x", 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPostgresFindByField_Errors(t *testing.T) {
	ctx := context.Background()

	q := &mockQuerier{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return nil, fmt.Errorf("query failed") },
	}
	_, err := storage.NewPostgresStoreWithQuerier(q).FindByField(ctx, "parks", "name", "x", 1)
	require.Error(t, err)

	q.queryFn = func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
		return &fakeRows{rows: [][]any{{"a", "parks/a", []byte("{}")}}, scanErr: fmt.Errorf("scan failed")}, nil
	}
	_, err = storage.NewPostgresStoreWithQuerier(q).FindByField(ctx, "parks", "name", "x", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning")

	q.queryFn = func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
		return &fakeRows{rowErr: fmt.Errorf("rows iteration error")}, nil
	}
	_, err = storage.NewPostgresStoreWithQuerier(q).FindByField(ctx, "parks", "name", "x", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterating")

	_, err = storage.NewPostgresStoreWithQuerier(q).FindByField(ctx, "parks/x", "name", "x", 1)
	assert.ErrorIs(t, err, storage.ErrInvalidPath)
}

// ---- Set ----

func TestPostgresSet_MergeAndReplace(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	q := &mockQuerier{
		execFn: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			capturedArgs = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	s := storage.NewPostgresStoreWithQuerier(q)

	require.NoError(t, s.Set(context.Background(), "parks/dl/rides/sm", map[string]any{"name": "Space Mountain"}, true))
	assert.Contains(t, capturedSQL, "documents.data || EXCLUDED.data")
	require.Len(t, capturedArgs, 4)
	assert.Equal(t, "parks/dl/rides/sm", capturedArgs[0])
	assert.Equal(t, "parks/dl/rides", capturedArgs[1])
	assert.Equal(t, "sm", capturedArgs[2])
	assert.JSONEq(t, `{"name":"Space Mountain"}`, string(capturedArgs[3].([]byte)))

	require.NoError(t, s.Set(context.Background(), "parks/dl", map[string]any{"id": "dl"}, false))
	assert.NotContains(t, capturedSQL, "||")
}

func TestPostgresSet_DBError(t *testing.T) {
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, fmt.Errorf("db error")
		},
	}

	err := storage.NewPostgresStoreWithQuerier(q).Set(context.Background(), "parks/dl", nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upserting document")
}

// ---- Create / Add ----

func TestPostgresCreate_ReportsWhetherInserted(t *testing.T) {
	tag := pgconn.NewCommandTag("INSERT 0 1")
	q := &mockQuerier{
		execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			assert.Contains(t, sql, "ON CONFLICT (path) DO NOTHING")
			return tag, nil
		},
	}
	s := storage.NewPostgresStoreWithQuerier(q)

	created, err := s.Create(context.Background(), "parks/dl", map[string]any{"id": "dl", "name": "Disneyland"})
	require.NoError(t, err)
	assert.True(t, created)

	tag = pgconn.NewCommandTag("INSERT 0 0")
	created, err = s.Create(context.Background(), "parks/dl", map[string]any{"id": "dl", "name": "Disneyland"})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPostgresAdd_GeneratesID(t *testing.T) {
	var capturedArgs []any
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			capturedArgs = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}

	id, err := storage.NewPostgresStoreWithQuerier(q).Add(context.Background(), "fetchedData", map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, "fetchedData/"+id, capturedArgs[0])
	assert.Equal(t, "fetchedData", capturedArgs[1])
	assert.True(t, strings.HasSuffix(capturedArgs[0].(string), id))
}

func TestPostgresAdd_InvalidCollection(t *testing.T) {
	_, err := storage.NewPostgresStoreWithQuerier(&mockQuerier{}).Add(context.Background(), "parks/dl", nil)
	assert.ErrorIs(t, err, storage.ErrInvalidPath)
}

func TestPostgresPing(t *testing.T) {
	s := storage.NewPostgresStoreWithQuerier(&mockQuerier{pingErr: fmt.Errorf("down")})
	assert.Error(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}
