package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/specialistvlad/grasptest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	// --- Act ---
	cfg, shouldExit, err := Parse([]string{"test/cases"}, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, []string{"test/cases"}, cfg.Paths)
	assert.Equal(t, "grasp.hcl", cfg.SettingsPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.StatusPort)

	m := config.Default()
	m.Pipeline = "from_file"
	cfg.Override(m)
	assert.Equal(t, "from_file", m.Pipeline, "flags left at their default do not override the file")
}

func TestParse_FlagsOverrideSettings(t *testing.T) {
	// --- Arrange ---
	args := []string{
		"-config", "ci.hcl",
		"-engine-url", "http://engine:9",
		"-pipeline", "ci",
		"-cache-dir", "out",
		"-program-dir", "sql",
		"-grammar", "g.lark",
		"-poll-interval", "200ms",
		"-transactional",
		"-status-port", "9090",
		"-log-format", "JSON",
		"-log-level", "DEBUG",
		"a.test.grasp", "dir",
	}

	// --- Act ---
	cfg, _, err := Parse(args, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "ci.hcl", cfg.SettingsPath)
	assert.Equal(t, []string{"a.test.grasp", "dir"}, cfg.Paths)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.StatusPort)

	m := config.Default()
	cfg.Override(m)
	assert.Equal(t, &config.Model{
		EngineURL:     "http://engine:9",
		Pipeline:      "ci",
		PollInterval:  200 * time.Millisecond,
		Transactional: true,
		CacheDir:      "out",
		ProgramDir:    "sql",
		GrammarPath:   "g.lark",
	}, m)
}

func TestParse_HelpAndNoArgs(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {}} {
		out := &bytes.Buffer{}

		cfg, shouldExit, err := Parse(args, out)

		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_UsageErrors(t *testing.T) {
	testCases := []struct {
		args    []string
		wantMsg string
	}{
		{args: []string{"-nope", "x"}, wantMsg: "flag provided but not defined"},
		{args: []string{"-log-format", "xml", "x"}, wantMsg: "invalid log-format"},
		{args: []string{"-log-level", "loud", "x"}, wantMsg: "invalid log-level"},
		{args: []string{"-poll-interval", "0s", "x"}, wantMsg: "invalid poll-interval"},
		{args: []string{"-status-port", "-1", "x"}, wantMsg: "out of range"},
	}

	for _, tc := range testCases {
		t.Run(tc.wantMsg, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantMsg)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", &ExitError{Code: 2})))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
}
