package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "outputs"))
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.Put(ctx, "a.mp3", []byte("ID3audio")))

	got, err := s.Get(ctx, "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), got)

	require.NoError(t, s.Delete(ctx, "a.mp3"))
	_, err = s.Get(ctx, "a.mp3")
	assert.ErrorIs(t, err, common.ErrNotFound)

	// a second delete reports the key as gone
	assert.ErrorIs(t, s.Delete(ctx, "a.mp3"), common.ErrNotFound)
}

func TestLocalStore_NestedKey(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "2025/01/a.mp3", []byte("x")))
	_, err = os.Stat(filepath.Join(root, "2025", "01", "a.mp3"))
	require.NoError(t, err)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../x.mp3", "/etc/passwd", "a/../../b", ".", `a\b`} {
		assert.Error(t, s.Put(ctx, key, []byte("x")), key)
		_, err := s.Get(ctx, key)
		assert.Error(t, err, key)
		assert.Error(t, s.Delete(ctx, key), key)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "a.mp3", []byte("x")), context.Canceled)
	_, err = s.Get(ctx, "a.mp3")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Delete(ctx, "a.mp3"), context.Canceled)
}

func TestNewLocalStore_EmptyRoot(t *testing.T) {
	_, err := NewLocalStore("  ")
	require.Error(t, err)
}

func TestLocalStore_PingMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "gone")
	s, err := NewLocalStore(root)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(root))

	assert.Error(t, s.Ping(context.Background()))
}
