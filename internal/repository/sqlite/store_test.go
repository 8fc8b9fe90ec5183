package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "oath.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	require.Error(t, err)
	assert.Equal(t, oatherr.CodeInvalidArgument, oatherr.GetCode(err))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)

	require.NoError(t, store.Save(ctx, "game-1", "abc", []byte{1, 2, 3}))
	data, err := store.Load(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	sum, err := store.Checksum(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, "abc", sum)

	require.NoError(t, store.Save(ctx, "game-1", "def", []byte{4}))
	data, err = store.Load(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, data)
}

func TestLoadMissing(t *testing.T) {
	store := openTempStore(t)
	_, err := store.Load(context.Background(), "nope")
	assert.True(t, oatherr.IsNotFound(err))
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		store.WithClock(func() time.Time { return at })
		require.NoError(t, store.Save(ctx, id, "sum", []byte(id)))
	}

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)
	require.NoError(t, store.Save(ctx, "game-1", "abc", []byte{1}))

	require.NoError(t, store.Delete(ctx, "game-1"))
	assert.True(t, oatherr.IsNotFound(store.Delete(ctx, "game-1")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oath.db")
	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), "kept", "sum", []byte{9}))
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer second.Close()
	data, err := second.Load(context.Background(), "kept")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, data)
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE t (x INT);\n-- +migrate Down\nDROP TABLE t;")
	assert.Equal(t, "\nCREATE TABLE t (x INT);\n", got)
	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}
