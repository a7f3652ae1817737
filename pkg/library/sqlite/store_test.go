package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autopilot/pkg/library"
	"github.com/entrhq/autopilot/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "scripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func passedScript(id, fingerprint string) *types.GeneratedScript {
	return &types.GeneratedScript{
		ID:          id,
		Fingerprint: fingerprint,
		Body:        "version: 1\ninstructions:\n  - op: navigate\n    target: https://example.com\n",
		Params:      []string{"role"},
		Status:      types.StatusPassed,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	s := passedScript("scr_1", "fp-round-trip")

	require.NoError(t, store.Put(context.Background(), s))

	got, err := store.Get(context.Background(), "fp-round-trip")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Body, got.Body)
	assert.Equal(t, s.Params, got.Params)
	assert.Equal(t, types.StatusPassed, got.Status)
}

func TestPutReplacesExistingEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, passedScript("scr_old", "fp-replace")))
	require.NoError(t, store.Put(ctx, passedScript("scr_new", "fp-replace")))

	got, err := store.Get(ctx, "fp-replace")
	require.NoError(t, err)
	assert.Equal(t, "scr_new", got.ID)

	var count int64
	require.NoError(t, store.db.Model(&record{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "replacement must not accumulate rows")
}

func TestPutRejectsUnvalidated(t *testing.T) {
	store := openTestStore(t)

	s := passedScript("scr_raw", "fp-unvalidated")
	s.Status = types.StatusUnvalidated
	assert.Error(t, store.Put(context.Background(), s))

	s.Status = types.StatusFailed
	assert.Error(t, store.Put(context.Background(), s))

	_, err := store.Get(context.Background(), "fp-unvalidated")
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestReopenSeesPersistedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scripts.db")

	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), passedScript("scr_1", "fp-reopen")))
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, err := second.Get(context.Background(), "fp-reopen")
	require.NoError(t, err)
	assert.Equal(t, "scr_1", got.ID)
}
