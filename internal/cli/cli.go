package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/grasptest/internal/app"
	"github.com/specialistvlad/grasptest/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("grasptest", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
grasptest - runs rule-language test cases through the Engine and caches the derived SQL.

Usage:
  grasptest [options] PATH...

Arguments:
  PATH
    A .test.grasp file, or a directory searched recursively for them.

Options:
`)
		flagSet.PrintDefaults()
	}

	settingsFlag := flagSet.String("config", "grasp.hcl", "Path to the HCL settings file. A missing file means defaults.")
	engineURLFlag := flagSet.String("engine-url", config.DefaultEngineURL, "Base URL of the Engine REST API.")
	pipelineFlag := flagSet.String("pipeline", config.DefaultPipeline, "Name of the Engine pipeline.")
	cacheDirFlag := flagSet.String("cache-dir", config.DefaultCacheDir, "Directory of derived SQL artifacts.")
	programDirFlag := flagSet.String("program-dir", config.DefaultProgramDir, "Directory of the *.sql program fragments.")
	grammarFlag := flagSet.String("grammar", "", "Path to the grammar file. Empty uses the embedded grammar.")
	pollFlag := flagSet.Duration("poll-interval", config.DefaultPollInterval, "Fixed delay between Engine status polls.")
	txFlag := flagSet.Bool("transactional", false, "Bracket all fact batches of the run in one Engine transaction.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the /health and /metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No test case path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	if *pollFlag <= 0 {
		return nil, false, usageError("invalid poll-interval: must be positive")
	}

	// Only flags given on the command line override the settings file.
	var overrides []func(*config.Model)
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "engine-url":
			overrides = append(overrides, func(m *config.Model) { m.EngineURL = *engineURLFlag })
		case "pipeline":
			overrides = append(overrides, func(m *config.Model) { m.Pipeline = *pipelineFlag })
		case "cache-dir":
			overrides = append(overrides, func(m *config.Model) { m.CacheDir = *cacheDirFlag })
		case "program-dir":
			overrides = append(overrides, func(m *config.Model) { m.ProgramDir = *programDirFlag })
		case "grammar":
			overrides = append(overrides, func(m *config.Model) { m.GrammarPath = *grammarFlag })
		case "poll-interval":
			overrides = append(overrides, func(m *config.Model) { m.PollInterval = *pollFlag })
		case "transactional":
			overrides = append(overrides, func(m *config.Model) { m.Transactional = *txFlag })
		}
	})
	slog.Debug("CLI parameter validation complete.", "overrides", len(overrides))

	cfg, err := app.NewConfig(app.Config{
		SettingsPath: *settingsFlag,
		Override: func(m *config.Model) {
			for _, o := range overrides {
				o(m)
			}
		},
		Paths:      flagSet.Args(),
		LogFormat:  logFormat,
		LogLevel:   logLevel,
		StatusPort: *statusPortFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "paths", cfg.Paths)
	return cfg, false, nil
}

// ExitCode maps an error returned by a run to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
