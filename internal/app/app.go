package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/specialistvlad/grasptest/internal/config"
	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/specialistvlad/grasptest/internal/session"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	settings   *config.Model
	sessions   session.SessionFactory
	registry   *prometheus.Registry
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It builds the app's
// own logger and metrics registry and loads the run settings.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, sessions session.SessionFactory) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	settings, err := loader.Load(ctx, appConfig.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Override != nil {
		appConfig.Override(settings)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "settings", settings)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &App{
		ctx:      ctx,
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		settings: settings,
		sessions: sessions,
		registry: reg,
	}, nil
}

// Settings returns the effective run settings. This is primarily for testing.
func (a *App) Settings() *config.Model {
	return a.settings
}

// Registry returns the application's metrics registry.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}
