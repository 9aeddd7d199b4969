package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/models"
)

func post(id string) models.Item {
	return models.Item{
		ID:        id,
		Kind:      models.KindPost,
		Title:     "title " + id,
		Text:      "body " + id,
		CreatedAt: time.Unix(1700000000, 0),
	}
}

// backends returns a fresh instance of every backend available in this environment.
func backends(t *testing.T) map[string]DedupStore {
	t.Helper()

	sqliteStore, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "state", "harvester.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	stores := map[string]DedupStore{
		"memory": NewMemoryStorage(),
		"sqlite": sqliteStore,
	}

	if dsn := os.Getenv("HARVESTER_POSTGRES_DSN"); dsn != "" {
		pgStore, err := OpenPostgres(dsn, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, pgStore.Clear(context.Background()))
		t.Cleanup(func() { pgStore.Close() })
		stores["postgres"] = pgStore
	}
	return stores
}

func TestDedupStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			has, err := store.Has(ctx, "abc")
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, store.MarkProcessed(ctx, post("abc")))

			for i := 0; i < 3; i++ {
				has, err = store.Has(ctx, "abc")
				require.NoError(t, err)
				assert.True(t, has)
			}

			err = store.MarkProcessed(ctx, post("abc"))
			assert.ErrorIs(t, err, ErrDuplicateKey)

			require.NoError(t, store.MarkProcessed(ctx, post("def")))
			n, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, store.Clear(ctx))
			for _, id := range []string{"abc", "def"} {
				has, err = store.Has(ctx, id)
				require.NoError(t, err)
				assert.False(t, has, id)
			}
			n, err = store.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestSQLiteStorage_DurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "harvester.db")

	store, err := NewSQLiteStorage(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessed(ctx, post("keep")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStorage(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	has, err := reopened.Has(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, has)

	assert.ErrorIs(t, reopened.MarkProcessed(ctx, post("keep")), ErrDuplicateKey)
}

func TestMemoryStorage_SnapshotsItem(t *testing.T) {
	store := NewMemoryStorage()
	item := post("snap")
	require.NoError(t, store.MarkProcessed(context.Background(), item))

	record, ok := store.Get("snap")
	require.True(t, ok)
	assert.Equal(t, models.NewProcessedRecord(item), record)
}

func TestOpen(t *testing.T) {
	store, err := Open(DatabaseConfig{Driver: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, store)

	store, err = Open(DatabaseConfig{Path: filepath.Join(t.TempDir(), "x.db")}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, store)
	require.NoError(t, store.Close())

	_, err = Open(DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}
