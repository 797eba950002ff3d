package filex

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNestedAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "a", "b")

	got, err := EnsureDir(dir)
	require.NoError(t, err)
	require.Equal(t, dir, got)

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	_, err = EnsureDir(dir)
	require.NoError(t, err)
}

func TestEnsureDir_FailsWhenPathIsFile(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	_, err := EnsureDir(filepath.Join(p, "sub"))
	require.Error(t, err)
}

func countEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestWithTempFile_RemovesOnSuccessAndError(t *testing.T) {
	dir := t.TempDir()

	var seen string
	err := WithTempFile(dir, "upload-*", func(f *os.File) error {
		seen = f.Name()
		_, err := f.WriteString("payload")
		return err
	})
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Equal(t, 0, countEntries(t, dir))

	boom := errors.New("boom")
	err = WithTempFile(dir, "upload-*", func(f *os.File) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countEntries(t, dir))
}

func TestWithTempFile_RemovesOnPanic(t *testing.T) {
	dir := t.TempDir()

	func() {
		defer func() { _ = recover() }()
		_ = WithTempFile(dir, "upload-*", func(f *os.File) error {
			panic("decoder crashed")
		})
	}()

	assert.Equal(t, 0, countEntries(t, dir))
}

func TestWithTempFile_BadDir(t *testing.T) {
	err := WithTempFile(filepath.Join(t.TempDir(), "missing"), "x-*", func(*os.File) error { return nil })
	require.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.mp3")

	require.NoError(t, WriteFileAtomic(p, []byte("ID3"), 0o640))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), b)

	require.NoError(t, WriteFileAtomic(p, []byte("ID3v2"), 0o640))
	b, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3v2"), b)
	assert.Equal(t, 1, countEntries(t, dir))
}
