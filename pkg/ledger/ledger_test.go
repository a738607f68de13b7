package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry(dir, id string) Entry {
	return Entry{
		Kind:    KindPlugin,
		ID:      id,
		Name:    "Sample",
		Version: "1.0.0",
		Path:    filepath.Join(dir, id, id+"-1.0.0.pkg"),
		SHA256:  "ab",
		Size:    12,
	}
}

func TestRecordAndReload(t *testing.T) {
	dir := t.TempDir()
	metaFile := filepath.Join(dir, "state", "installed.yaml")

	l := New(metaFile)
	require.NoError(t, l.Load())
	require.NoError(t, l.Record(sampleEntry(dir, "com.example.b")))
	require.NoError(t, l.Record(sampleEntry(dir, "com.example.a")))

	scene := sampleEntry(dir, "com.example.a")
	scene.Kind = KindScene
	require.NoError(t, l.Record(scene))
	assert.Equal(t, 3, l.Count())

	reloaded := New(metaFile)
	require.NoError(t, reloaded.Load())
	list := reloaded.List()
	require.Len(t, list, 3)
	assert.Equal(t, KindPlugin, list[0].Kind)
	assert.Equal(t, "com.example.a", list[0].ID)
	assert.Equal(t, "com.example.b", list[1].ID)
	assert.Equal(t, KindScene, list[2].Kind)
	assert.False(t, list[0].InstalledAt.IsZero())
}

func TestRecordReplacesSameKey(t *testing.T) {
	dir := t.TempDir()
	l := New(filepath.Join(dir, "installed.yaml"))

	first := sampleEntry(dir, "com.example.a")
	require.NoError(t, l.Record(first))

	second := first
	second.Version = "2.0.0"
	second.InstalledAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, l.Record(second))

	got, ok := l.Get(KindPlugin, "com.example.a")
	require.True(t, ok)
	assert.Equal(t, "2.0.0", got.Version)
	assert.Equal(t, 1, l.Count())
}

func TestRecordRejectsInvalid(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "installed.yaml"))

	bad := sampleEntry(t.TempDir(), "x")
	bad.Path = "relative/path"
	assert.Error(t, l.Record(bad))

	bad = sampleEntry(t.TempDir(), "")
	assert.Error(t, l.Record(bad))

	bad = sampleEntry(t.TempDir(), "x")
	bad.Kind = "theme"
	assert.Error(t, l.Record(bad))

	assert.Equal(t, 0, l.Count())
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	l := New(filepath.Join(dir, "installed.yaml"))
	require.NoError(t, l.Record(sampleEntry(dir, "com.example.a")))

	require.NoError(t, l.Remove(KindPlugin, "com.example.a"))
	_, ok := l.Get(KindPlugin, "com.example.a")
	assert.False(t, ok)

	err := l.Remove(KindPlugin, "com.example.a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordRevertsOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	// Parent of the ledger file is a regular file, so the write must fail
	l := New(filepath.Join(blocker, "installed.yaml"))
	err := l.Record(sampleEntry(dir, "com.example.a"))
	require.Error(t, err)
	assert.Equal(t, 0, l.Count())
}

func TestLoadCorruptFile(t *testing.T) {
	metaFile := filepath.Join(t.TempDir(), "installed.yaml")
	require.NoError(t, os.WriteFile(metaFile, []byte("{[not yaml"), 0644))

	l := New(metaFile)
	assert.Error(t, l.Load())
}
