package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/multierr"
)

// Defaults used when neither the settings file nor a flag sets a value.
const (
	DefaultEngineURL    = "http://localhost:8080"
	DefaultPipeline     = "transpiler"
	DefaultPollInterval = time.Second
	DefaultCacheDir     = "test/.grasp_cache"
	DefaultProgramDir   = "transpiler"
)

// Model holds the settings of one run.
type Model struct {
	EngineURL string
	Pipeline  string
	// PollInterval is the fixed delay between every status poll.
	PollInterval time.Duration
	// Transactional brackets batch writes in one Engine transaction.
	Transactional bool
	CacheDir      string
	// ProgramDir holds the *.sql fragments of the Engine program.
	ProgramDir string
	// GrammarPath is the rule-language grammar; empty means the embedded one.
	GrammarPath string
}

// Default returns a model with every default applied.
func Default() *Model {
	return &Model{
		EngineURL:    DefaultEngineURL,
		Pipeline:     DefaultPipeline,
		PollInterval: DefaultPollInterval,
		CacheDir:     DefaultCacheDir,
		ProgramDir:   DefaultProgramDir,
	}
}

// Validate reports every setting that cannot be used.
func (m *Model) Validate() error {
	var errs error
	if u, err := url.Parse(m.EngineURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("engine URL %q must be an absolute http(s) URL", m.EngineURL))
	}
	if m.Pipeline == "" {
		errs = multierr.Append(errs, errors.New("pipeline name cannot be empty"))
	}
	if m.PollInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("poll interval must be positive, got %s", m.PollInterval))
	}
	if m.CacheDir == "" {
		errs = multierr.Append(errs, errors.New("cache directory cannot be empty"))
	}
	if m.ProgramDir == "" {
		errs = multierr.Append(errs, errors.New("program directory cannot be empty"))
	}
	return errs
}
