package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "payload.pkg")

	require.NoError(t, AtomicWriteFile(target, []byte("first"), 0644))
	require.NoError(t, AtomicWriteFile(target, []byte("second"), 0600))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestAtomicWriteFileEmptyPath(t *testing.T) {
	assert.Error(t, AtomicWriteFile("", []byte("x"), 0644))
}

func TestCopyFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "out", "dst.bin")

	require.NoError(t, os.WriteFile(src, []byte("new bytes"), 0640))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new bytes", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "absent"), filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.False(t, FileExists(filepath.Join(dir, "dst")))
}

func TestExistenceHelpers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.True(t, PathExists(file))
	assert.True(t, PathExists(dir))
	assert.False(t, PathExists(filepath.Join(dir, "nope")))
	assert.False(t, PathExists(""))
}

func TestSafeRemoveAllIdempotent(t *testing.T) {
	dir := t.TempDir()
	tree := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "a", "b"), 0755))
	require.NoError(t, SafeRemoveAll(tree))
	require.NoError(t, SafeRemoveAll(tree))
	assert.False(t, PathExists(tree))
}

func TestGetFileSize(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("12345"), 0644))

	size, err := GetFileSize(file)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = GetFileSize(dir)
	assert.Error(t, err)
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		rel     string
		want    string
		escapes bool
	}{
		{name: "simple", rel: "textures/logo.png", want: filepath.Join(root, "textures", "logo.png")},
		{name: "dot segments inside", rel: "a/./b/../c.txt", want: filepath.Join(root, "a", "c.txt")},
		{name: "parent escape", rel: "../outside.txt", escapes: true},
		{name: "nested escape", rel: "a/../../outside.txt", escapes: true},
		{name: "absolute", rel: "/etc/passwd", escapes: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeJoin(root, tt.rel)
			if tt.escapes {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrPathEscapesRoot))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestYAMLRoundTripFile(t *testing.T) {
	type record struct {
		ID      string `yaml:"id"`
		Version string `yaml:"version"`
	}

	path := filepath.Join(t.TempDir(), "state", "records.yaml")
	in := []record{{ID: "com.example.a", Version: "1.0.0"}}
	require.NoError(t, SaveYAMLFile(path, in))

	var out []record
	require.NoError(t, LoadYAMLFile(path, &out))
	assert.Equal(t, in, out)

	err := LoadYAMLFile(filepath.Join(t.TempDir(), "missing.yaml"), &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
