package app

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/grasptest/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// SettingsPath is the settings file; a missing file means defaults.
	SettingsPath string
	// Override is applied to the loaded settings, e.g. from flags.
	Override func(*config.Model)
	// Paths are test case files or directories searched for them.
	Paths []string

	LogFormat  string
	LogLevel   string
	StatusPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("at least one test case path is required")
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("status port %d is out of range", cfg.StatusPort)
	}
	return &cfg, nil
}
