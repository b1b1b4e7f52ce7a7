package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestFindFilesBySuffix(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.test.grasp"))
	touch(t, filepath.Join(root, "nested", "a.test.grasp"))
	touch(t, filepath.Join(root, "notes.grasp"))

	files, err := FindFilesBySuffix(root, ".test.grasp")

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "b.test.grasp"),
		filepath.Join(root, "nested", "a.test.grasp"),
	}, files)

	_, err = FindFilesBySuffix(root, "")
	assert.Error(t, err)
}

func TestListFilesBySuffix(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "20_views.sql"))
	touch(t, filepath.Join(dir, "10_tables.sql"))
	touch(t, filepath.Join(dir, "README.md"))
	touch(t, filepath.Join(dir, "sub", "99_ignored.sql"))

	files, err := ListFilesBySuffix(dir, ".sql")

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "10_tables.sql"),
		filepath.Join(dir, "20_views.sql"),
	}, files)
}

func TestExpandPaths(t *testing.T) {
	root := t.TempDir()
	single := filepath.Join(root, "single.test.grasp")
	touch(t, single)
	touch(t, filepath.Join(root, "suite", "x.test.grasp"))
	touch(t, filepath.Join(root, "suite", "y.test.grasp"))

	files, err := ExpandPaths([]string{single, filepath.Join(root, "suite"), single}, ".test.grasp")

	require.NoError(t, err)
	assert.Equal(t, []string{
		single,
		filepath.Join(root, "suite", "x.test.grasp"),
		filepath.Join(root, "suite", "y.test.grasp"),
	}, files)

	_, err = ExpandPaths([]string{filepath.Join(root, "missing")}, ".test.grasp")
	assert.Error(t, err)
}
