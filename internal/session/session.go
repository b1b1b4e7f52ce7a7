// Package session defines the core interfaces for creating and managing a
// run against one Engine pipeline.
package session

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/grasptest/internal/config"
	"github.com/specialistvlad/grasptest/internal/executor"
)

// SessionFactory creates a Session from the run settings. Metrics of the
// session are registered with reg.
type SessionFactory interface {
	NewSession(ctx context.Context, cfg *config.Model, reg prometheus.Registerer) (Session, error)
}

// Session represents a single run and manages its lifecycle.
type Session interface {
	// Prepare brings the Engine pipeline to Running with the program on
	// disk. It must succeed before Execute.
	Prepare(ctx context.Context) error
	Execute(ctx context.Context, paths []string) (*executor.Result, error)
	// Close releases any resources held by the session.
	Close(ctx context.Context) error
}
