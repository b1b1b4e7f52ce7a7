// Package cache stores the SQL derived from each test case version under a
// content-addressed path. Entries are written once and never replaced or
// evicted; a changed test case hashes to a new path.
package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/grasptest/internal/testcase"
)

// Store is a cache directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir is the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path is where the artifact for tc lives: <dir>/<key>.<hash>.sql.
func (s *Store) Path(tc *testcase.TestCase) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s.sql", tc.Key, tc.Hash))
}

// NeedsProcessing reports whether tc has no artifact yet.
func (s *Store) NeedsProcessing(tc *testcase.TestCase) (bool, error) {
	_, err := os.Stat(s.Path(tc))
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, fmt.Errorf("failed to check cache entry for %s: %w", tc, err)
	}
}

// Write stores lines for tc, one per line. The file appears atomically so a
// reader never observes a partial artifact.
func (s *Store) Write(tc *testcase.TestCase, lines []string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+tc.Key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache entry for %s: %w", tc, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry for %s: %w", tc, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache entry for %s: %w", tc, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(tc)); err != nil {
		return fmt.Errorf("failed to commit cache entry for %s: %w", tc, err)
	}
	return nil
}

// Read returns the stored lines for tc.
func (s *Store) Read(tc *testcase.TestCase) ([]string, error) {
	data, err := os.ReadFile(s.Path(tc))
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry for %s: %w", tc, err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}
