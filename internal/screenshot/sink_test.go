package screenshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveNamesByTimestamp(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, 5, nil)
	require.NoError(t, err)
	sink.now = func() time.Time { return time.UnixMilli(1700000000123) }

	path, err := sink.Save("after-submit", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "after-submit-1700000000123.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestSavePrunesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, 3, nil)
	require.NoError(t, err)

	stamp := int64(1000)
	sink.now = func() time.Time {
		stamp++
		return time.UnixMilli(stamp)
	}

	// Names differ so ordering must come from the suffix, not the name.
	for _, name := range []string{"zeta", "alpha", "mid", "beta", "omega"} {
		_, err := sink.Save(name, []byte("x"))
		require.NoError(t, err)
	}

	paths := stored(t, sink)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "mid-1003.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "beta-1004.png"), paths[1])
	assert.Equal(t, filepath.Join(dir, "omega-1005.png"), paths[2])
}

func TestScanIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-suffix.png"), []byte("x"), 0o644))

	sink, err := NewSink(dir, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, sink.limit)

	assert.Empty(t, stored(t, sink))
}

func stored(t *testing.T, s *Sink) []string {
	t.Helper()
	shots, err := s.scan()
	require.NoError(t, err)
	paths := make([]string, 0, len(shots))
	for _, sh := range shots {
		paths = append(paths, sh.path)
	}
	return paths
}
