package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/grasptest/internal/cli"
	"github.com/specialistvlad/grasptest/internal/executor"
	"github.com/specialistvlad/grasptest/internal/testcase"
	"github.com/specialistvlad/grasptest/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_StartupError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A settings file with a syntax error fails app construction.
	dir := t.TempDir()
	settings := testutil.WriteFile(t, dir, "grasp.hcl", "engine {\n  url = \n")
	args := []string{"-config", settings, dir}
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "application startup failed")
	assert.Contains(t, runErr.Error(), "failed to parse")
	assert.Equal(t, 1, cli.ExitCode(runErr))
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
	assert.Equal(t, 2, cli.ExitCode(err))
}

func TestRun_EndToEnd(t *testing.T) {
	// --- Arrange ---
	fake := testutil.NewFakeEngine(t)
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "transpiler/schema.sql", "CREATE TABLE rule(rule_id VARCHAR);")
	pass := testutil.WriteTestCase(t, dir, "pass", `r(x) :- goal(x).`)
	fail := testutil.WriteTestCase(t, dir, "fail", `r(z) :- goal(x).`)
	tc, err := testcase.Load(fail)
	require.NoError(t, err)
	fake.FailWith(tc.PipelineID(), "unbound_var")

	args := []string{
		"-config", filepath.Join(dir, "absent.hcl"),
		"-engine-url", fake.URL,
		"-pipeline", "e2e",
		"-program-dir", filepath.Join(dir, "transpiler"),
		"-cache-dir", filepath.Join(dir, "cache"),
		"-poll-interval", "1ms",
		"-log-level", "debug",
		dir,
	}
	out := &testutil.SafeBuffer{}
	testutil.LogOnFailure(t, out)

	// --- Act ---
	err = run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errors.Is(err, executor.ErrTestsFailed))
	assert.Equal(t, 1, cli.ExitCode(err))
	assert.Equal(t, "CREATE TABLE rule(rule_id VARCHAR);", fake.Program())

	passTC, err := testcase.Load(pass)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "cache", passTC.Key+"."+passTC.Hash+".sql"))
	assert.NoError(t, err)
}
