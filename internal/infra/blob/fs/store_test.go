package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liunix61/uptane-server/internal/domain"
)

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	require.NoError(t, store.CreateContainer(ctx, "ns-1"))
	require.NoError(t, store.Put(ctx, "ns-1/ab/cdef", strings.NewReader("hello"), 5))

	rc, size, err := store.Get(ctx, "ns-1/ab/cdef")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "hello", string(body))

	_, err = os.Stat(filepath.Join(root, "ns-1", "ab", "cdef"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "ns-1/ab/cdef"))
	require.NoError(t, store.Delete(ctx, "ns-1/ab/cdef"))
	_, _, err = store.Get(ctx, "ns-1/ab/cdef")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PutOverwritesAndChecksSize(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "ns/summary", bytes.NewReader([]byte("one")), 3))
	require.NoError(t, store.Put(ctx, "ns/summary", bytes.NewReader([]byte("two!")), 4))
	rc, _, err := store.Get(ctx, "ns/summary")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "two!", string(body))

	assert.Error(t, store.Put(ctx, "ns/summary", bytes.NewReader([]byte("short")), 10))
	rc, _, err = store.Get(ctx, "ns/summary")
	require.NoError(t, err)
	body, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "two!", string(body))
}

func TestStore_DeleteContainer(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "ns-1/ab/cdef", strings.NewReader("x"), 1))
	require.NoError(t, store.Put(ctx, "ns-2/ab/cdef", strings.NewReader("y"), 1))
	require.NoError(t, store.DeleteContainer(ctx, "ns-1"))

	_, err = os.Stat(filepath.Join(root, "ns-1"))
	assert.True(t, os.IsNotExist(err))
	_, _, err = store.Get(ctx, "ns-2/ab/cdef")
	assert.NoError(t, err)
	require.NoError(t, store.DeleteContainer(ctx, "ns-1"))
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "/etc/passwd", "ns/../../x", `ns\x`} {
		_, _, err := store.Get(context.Background(), key)
		assert.ErrorIs(t, err, domain.ErrValidation, key)
	}
}

func TestStore_PutHonoursCancellation(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.Put(ctx, "ns/ab/cd", strings.NewReader("x"), 1))
	_, _, err = store.Get(context.Background(), "ns/ab/cd")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
