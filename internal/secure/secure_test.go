package secure

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := Open(filepath.Join(dir, "secure.db"), filepath.Join(dir, "secure.key"))
	require.NoError(t, err)
	return store
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, dir)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "pin", []byte("1234")))

	value, err := store.Get(ctx, "pin")
	require.NoError(t, err)
	assert.Equal(t, []byte("1234"), value)
}

func TestMissingKey(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	value, err := store.Get(context.Background(), "pin")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestValuesAreSealedAtRest(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, dir)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "pin", []byte("1234")))

	// The raw kv layer must not contain the plaintext.
	raw, err := store.kv.Get(ctx, "pin")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "1234")
	assert.Greater(t, len(raw), 4, "sealed value carries nonce and tag")
}

func TestReopenWithSameKeyfile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := openTestStore(t, dir)
	require.NoError(t, store.Set(ctx, "pin", []byte("0000")))
	require.NoError(t, store.Close())

	reopened := openTestStore(t, dir)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "pin")
	require.NoError(t, err)
	assert.Equal(t, []byte("0000"), value)
}

func TestWrongKeyFailsClosed(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := openTestStore(t, dir)
	require.NoError(t, store.Set(ctx, "pin", []byte("1234")))
	require.NoError(t, store.Close())

	// Same database, different keyfile: unsealing must fail, not return
	// garbage.
	other, err := Open(filepath.Join(dir, "secure.db"), filepath.Join(dir, "other.key"))
	require.NoError(t, err)
	defer other.Close()

	_, err = other.Get(ctx, "pin")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDeleteAndHas(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "marker", []byte("1")))

	has, err := store.Has(ctx, "marker")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, store.Delete(ctx, "marker"))

	has, err = store.Has(ctx, "marker")
	require.NoError(t, err)
	assert.False(t, has)
}
