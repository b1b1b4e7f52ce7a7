// Package localsession provides the concrete session.Session and
// session.SessionFactory that drive a run from this process.
package localsession

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/grasptest/internal/cache"
	"github.com/specialistvlad/grasptest/internal/config"
	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/specialistvlad/grasptest/internal/engine"
	"github.com/specialistvlad/grasptest/internal/executor"
	"github.com/specialistvlad/grasptest/internal/grammar"
	"github.com/specialistvlad/grasptest/internal/lifecycle"
	"github.com/specialistvlad/grasptest/internal/parser"
	"github.com/specialistvlad/grasptest/internal/session"
)

// SessionFactory implements session.SessionFactory for local runs.
type SessionFactory struct{}

// NewSession loads the grammar and wires the Engine client, lifecycle
// manager, cache and executor.
func (f *SessionFactory) NewSession(ctx context.Context, cfg *config.Model, reg prometheus.Registerer) (session.Session, error) {
	logger := ctxlog.FromContext(ctx)

	g, err := grammar.Load(cfg.GrammarPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Grammar loaded.", "path", cfg.GrammarPath, "embedded", cfg.GrammarPath == "")

	client := engine.New(cfg.EngineURL, cfg.Pipeline)
	store := cache.New(cfg.CacheDir)
	exec := executor.New(client, parser.New(g), store, executor.Options{
		PollInterval:  cfg.PollInterval,
		Transactional: cfg.Transactional,
		Metrics:       executor.NewMetrics(reg),
	})
	logger.Debug("Session wired.", "engine_url", cfg.EngineURL, "pipeline", cfg.Pipeline, "cache_dir", store.Dir())

	return &Session{
		client:     client,
		manager:    lifecycle.NewManager(client, cfg.PollInterval),
		executor:   exec,
		programDir: cfg.ProgramDir,
	}, nil
}

// Session implements session.Session for local runs.
type Session struct {
	client     *engine.Client
	manager    *lifecycle.Manager
	executor   *executor.Executor
	programDir string
}

// Prepare implements session.Session.
func (s *Session) Prepare(ctx context.Context) error {
	source, err := lifecycle.ReadProgram(s.programDir)
	if err != nil {
		return err
	}
	if err := s.manager.EnsureReady(ctx, source); err != nil {
		return fmt.Errorf("failed to prepare engine pipeline %s: %w", s.client.Pipeline(), err)
	}
	return nil
}

// Execute implements session.Session.
func (s *Session) Execute(ctx context.Context, paths []string) (*executor.Result, error) {
	return s.executor.Execute(ctx, paths)
}

// Close releases the Engine HTTP client.
func (s *Session) Close(ctx context.Context) error {
	ctxlog.FromContext(ctx).Debug("Closing session.")
	return s.client.Close()
}
