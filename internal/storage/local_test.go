package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files/",
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return store
}

func TestLocalStoragePutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "accounts/a1/photos/p1.jpg"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("jpeg bytes"), PutOptions{}))

	body, info, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
	assert.Equal(t, key, info.Key)
	assert.Equal(t, int64(len("jpeg bytes")), info.Size)
	assert.Equal(t, "image/jpeg", info.ContentType)
}

func TestLocalStoragePutRespectsOverwriteFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "accounts/a1/photos/p1.jpg"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("one"), PutOptions{}))

	err := store.Put(ctx, key, strings.NewReader("two"), PutOptions{})
	assert.ErrorIs(t, err, ErrKeyExists)

	require.NoError(t, store.Put(ctx, key, strings.NewReader("two"), PutOptions{Overwrite: true}))
	body, _, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer body.Close()
	data, _ := io.ReadAll(body)
	assert.Equal(t, "two", string(data))
}

func TestLocalStoragePutEnforcesMaxSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "accounts/a1/photos/big.jpg"

	err := store.Put(ctx, key, strings.NewReader("12345678"), PutOptions{MaxSize: 4})
	assert.ErrorIs(t, err, ErrTooLarge)

	// The partial file must not linger.
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	// An at-limit upload goes through.
	require.NoError(t, store.Put(ctx, key, strings.NewReader("1234"), PutOptions{MaxSize: 4}))
}

func TestLocalStorageDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "accounts/a1/photos/p1.jpg"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("x"), PutOptions{}))
	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	_, _, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageRejectsTraversalKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../outside.jpg", "photos/../../etc/passwd"} {
		err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{})
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestLocalStorageURLJoinsBase(t *testing.T) {
	store := newTestStore(t)

	url, err := store.URL(context.Background(), "accounts/a1/photos/p1.jpg", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/accounts/a1/photos/p1.jpg", url)
}
