package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "audit_test.db")
}

func newTestStore(t *testing.T) *SQLiteRepository {
	t.Helper()
	store, err := NewSQLiteRepository(createTempDB(t), Options{DefaultExecutor: "tester"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func int64Ptr(v int64) *int64 { return &v }

func TestSQLiteRepository_AppendAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &Entry{
		Kind:        "insert",
		SalesID:     "SO-100",
		LineNumber:  int64Ptr(3),
		EntryID:     "insert-3",
		ExecutedSQL: "INSERT INTO T (A) VALUES (1);",
		RollbackSQL: "DELETE FROM T WHERE A = 1;",
		Metadata:    map[string]any{"runId": "abc"},
	}

	require.NoError(t, store.Append(ctx, entry))
	require.NotZero(t, entry.ID)

	got, err := store.Get(ctx, entry.ID)

	require.NoError(t, err)
	assert.Equal(t, ActionSQL, got.ActionType)
	assert.Equal(t, "tester", got.ExecutedBy)
	assert.Equal(t, "SO-100", got.SalesID)
	require.NotNil(t, got.LineNumber)
	assert.Equal(t, int64(3), *got.LineNumber)
	assert.Equal(t, "DELETE FROM T WHERE A = 1;", got.RollbackSQL)
	assert.Equal(t, "abc", got.Metadata["runId"])
	assert.False(t, got.ExecutedAt.IsZero())
}

func TestSQLiteRepository_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRepository_AppendRequiresSQL(t *testing.T) {
	store := newTestStore(t)

	err := store.Append(context.Background(), &Entry{SalesID: "SO-1"})

	assert.ErrorIs(t, err, ErrEmptySQL)
}

func TestSQLiteRepository_ListFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	fixtures := []Entry{
		{SalesID: "SO-100", Kind: "insert", ExecutedSQL: "SELECT 1"},
		{SalesID: "so-101", Kind: "update", ExecutedSQL: "SELECT 2"},
		{SalesID: "SO-200", Kind: "update", ExecutedSQL: "SELECT 3"},
		{SalesID: "SO-100", ActionType: ActionRollbackFromLog, ExecutedSQL: "SELECT 4"},
	}
	for i := range fixtures {
		fixtures[i].ExecutedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Append(ctx, &fixtures[i]))
	}

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "SELECT 4", all[0].ExecutedSQL, "newest first")

	bySales, err := store.List(ctx, Filter{SalesID: "so-10"})
	require.NoError(t, err)
	assert.Len(t, bySales, 3)

	updates, err := store.Count(ctx, Filter{Kind: "update"})
	require.NoError(t, err)
	assert.Equal(t, 2, updates)

	rollbacks, err := store.Count(ctx, Filter{ActionType: ActionRollbackFromLog})
	require.NoError(t, err)
	assert.Equal(t, 1, rollbacks)

	page, err := store.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "SELECT 3", page[0].ExecutedSQL)
	assert.Equal(t, "SELECT 2", page[1].ExecutedSQL)

	total, err := store.Count(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total, "count ignores pagination")
}

func TestSQLiteRepository_ReopenKeepsDataAndSchema(t *testing.T) {
	path := createTempDB(t)
	ctx := context.Background()

	store, err := NewSQLiteRepository(path, Options{})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, &Entry{ExecutedSQL: "SELECT 1"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteRepository(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	version, err := schemaVersion(ctx, reopened.db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	count, err := reopened.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewSQLiteRepository_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewSQLiteRepository(filepath.Join(blocker, "audit.db"), Options{})

	assert.Error(t, err)
}
