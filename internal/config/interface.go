package config

import "context"

// Loader is the interface for a format-specific settings loader.
type Loader interface {
	// Load reads the settings file at path on top of Default(). A path that
	// does not exist yields the defaults.
	Load(ctx context.Context, path string) (*Model, error)
}
