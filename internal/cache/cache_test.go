package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/grasptest/internal/testcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Path(t *testing.T) {
	s := New("cache")
	tc := &testcase.TestCase{Key: "login", Hash: "0123456789"}

	assert.Equal(t, filepath.Join("cache", "login.0123456789.sql"), s.Path(tc))
}

func TestStore_WriteThenSkip(t *testing.T) {
	// --- Arrange ---
	dir := filepath.Join(t.TempDir(), "nested", ".grasp_cache")
	s := New(dir)
	tc := &testcase.TestCase{Key: "basic", Hash: "abcdef0123"}

	stale, err := s.NeedsProcessing(tc)
	require.NoError(t, err)
	require.True(t, stale)

	// --- Act ---
	lines := []string{"CREATE VIEW r AS", "SELECT x FROM goal;"}
	require.NoError(t, s.Write(tc, lines))

	// --- Assert ---
	stale, err = s.NeedsProcessing(tc)
	require.NoError(t, err)
	assert.False(t, stale)

	data, err := os.ReadFile(s.Path(tc))
	require.NoError(t, err)
	assert.Equal(t, "CREATE VIEW r AS\nSELECT x FROM goal;\n", string(data))

	got, err := s.Read(tc)
	require.NoError(t, err)
	assert.Equal(t, lines, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestStore_NewHashIsNewEntry(t *testing.T) {
	s := New(t.TempDir())
	v1 := &testcase.TestCase{Key: "basic", Hash: "1111111111"}
	v2 := &testcase.TestCase{Key: "basic", Hash: "2222222222"}

	require.NoError(t, s.Write(v1, []string{"SELECT 1;"}))

	stale, err := s.NeedsProcessing(v2)
	require.NoError(t, err)
	assert.True(t, stale)

	require.NoError(t, s.Write(v2, []string{"SELECT 2;"}))
	_, err = os.Stat(s.Path(v1))
	assert.NoError(t, err, "older versions are kept")
}

func TestStore_EmptyArtifact(t *testing.T) {
	s := New(t.TempDir())
	tc := &testcase.TestCase{Key: "empty", Hash: "0000000000"}

	require.NoError(t, s.Write(tc, nil))

	stale, err := s.NeedsProcessing(tc)
	require.NoError(t, err)
	assert.False(t, stale)
	got, err := s.Read(tc)
	require.NoError(t, err)
	assert.Empty(t, got)
}
