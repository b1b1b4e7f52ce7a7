// Package config defines the format-agnostic settings model of a run and
// the Loader interface that fills it from a settings file.
//
// The `config.Model` is the single source of truth for the `session` and
// `app` packages. Concrete loaders, such as for HCL, are provided in
// separate packages.
package config
