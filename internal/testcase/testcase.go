// Package testcase identifies rule-language test cases on disk.
//
// A test case lives in a file named <key>.test.grasp. Its identity is the
// key plus a short content hash, so editing the file yields a new identity
// and stale derived artifacts are simply never looked up again.
package testcase

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Suffix is the file name suffix of every test case.
const Suffix = ".test.grasp"

// HashLen is the number of hex characters kept from the content digest.
const HashLen = 10

// ErrNotTestCase is returned for paths whose file name lacks Suffix.
var ErrNotTestCase = errors.New("not a test case file")

// TestCase is one source test case and its derived identity.
type TestCase struct {
	Path   string
	Key    string
	Hash   string
	Source string
}

// Load reads the test case at path.
func Load(path string) (*TestCase, error) {
	key, err := KeyFromPath(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test case %s: %w", path, err)
	}
	return &TestCase{
		Path:   path,
		Key:    key,
		Hash:   Hash(content),
		Source: string(content),
	}, nil
}

// KeyFromPath returns the file name of path without Suffix.
func KeyFromPath(path string) (string, error) {
	name := filepath.Base(path)
	key, ok := strings.CutSuffix(name, Suffix)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %s", ErrNotTestCase, path)
	}
	return key, nil
}

// Hash returns the first HashLen hex characters of the SHA-256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:HashLen]
}

// PipelineID is the identity that scopes this version of the test case
// inside the Engine's shared storage.
func (tc *TestCase) PipelineID() string {
	return tc.Key + ":" + tc.Hash
}

func (tc *TestCase) String() string {
	return tc.PipelineID()
}
