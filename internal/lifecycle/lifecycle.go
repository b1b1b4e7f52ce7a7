// Package lifecycle keeps the Engine's shared program in sync with the SQL
// sources on disk and brings the pipeline to Running before any test case
// is submitted.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/specialistvlad/grasptest/internal/engine"
	"github.com/specialistvlad/grasptest/internal/fsutil"
	"github.com/specialistvlad/grasptest/internal/poll"
)

// Engine is the part of the Engine API the manager drives.
type Engine interface {
	Program(ctx context.Context) (string, bool, error)
	Status(ctx context.Context) (*engine.Status, error)
	PutProgram(ctx context.Context, source string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context, force bool) error
	Clear(ctx context.Context) error
}

// State is the manager's view of the shared program.
type State string

const (
	Absent    State = "Absent"
	Stopped   State = "Stopped"
	Running   State = "Running"
	Compiling State = "Compiling"
	Failed    State = "Failed"
)

// StateOf classifies an Engine status report.
func StateOf(st *engine.Status) State {
	switch {
	case !st.Exists:
		return Absent
	case isCompileFailure(st.Program):
		return Failed
	case isCompiling(st.Program):
		return Compiling
	case st.Deployment == engine.DeploymentRunning:
		return Running
	default:
		return Stopped
	}
}

func isCompiling(s engine.ProgramStatus) bool {
	switch s {
	case engine.ProgramPending, engine.ProgramCompilingSQL, engine.ProgramSQLCompiled, engine.ProgramCompilingRust:
		return true
	}
	return false
}

func isCompileFailure(s engine.ProgramStatus) bool {
	switch s {
	case engine.ProgramSQLError, engine.ProgramRustError, engine.ProgramSystemError:
		return true
	}
	return false
}

// CompileError reports that the Engine could not compile the program.
type CompileError struct {
	Status engine.ProgramStatus
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("engine failed to compile the program: %s", e.Status)
}

// Manager drives the pipeline through stop, clear, upload, compile and
// start. Every wait polls at a fixed interval with no deadline.
type Manager struct {
	engine   Engine
	interval time.Duration
}

// NewManager creates a manager polling e every interval.
func NewManager(e Engine, interval time.Duration) *Manager {
	return &Manager{engine: e, interval: interval}
}

// EnsureReady makes sure the pipeline runs exactly source. The program is
// replaced only when it is missing or differs; compilation and start are
// awaited in every case.
func (m *Manager) EnsureReady(ctx context.Context, source string) error {
	logger := ctxlog.FromContext(ctx)

	current, exists, err := m.engine.Program(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch engine program: %w", err)
	}
	switch {
	case !exists:
		logger.Info("🆕 Engine pipeline does not exist, creating it.")
		if err := m.recompile(ctx, source); err != nil {
			return err
		}
	case current != source:
		logger.Info("🔁 Engine program differs from sources on disk, recompiling.")
		if err := m.recompile(ctx, source); err != nil {
			return err
		}
	default:
		logger.Debug("Engine program is up to date.")
	}

	if err := m.awaitCompiled(ctx); err != nil {
		return err
	}
	if err := m.start(ctx); err != nil {
		return err
	}
	logger.Info("✅ Engine pipeline is running.")
	return nil
}

func (m *Manager) recompile(ctx context.Context, source string) error {
	st, err := m.engine.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch engine status: %w", err)
	}

	if st.Exists {
		if st.Deployment == engine.DeploymentRunning {
			if err := m.engine.Stop(ctx, true); err != nil {
				return fmt.Errorf("failed to stop pipeline: %w", err)
			}
		}
		if err := m.await(ctx, "stopped", func(st *engine.Status) bool {
			return st.Deployment == engine.DeploymentStopped
		}); err != nil {
			return err
		}

		if err := m.engine.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear pipeline storage: %w", err)
		}
		if err := m.await(ctx, "storage cleared", func(st *engine.Status) bool {
			return st.Storage == engine.StorageCleared
		}); err != nil {
			return err
		}
	}

	if err := m.engine.PutProgram(ctx, source); err != nil {
		return fmt.Errorf("failed to upload program: %w", err)
	}
	ctxlog.FromContext(ctx).Info("📤 Program uploaded, waiting for compilation.", "bytes", len(source))
	return nil
}

func (m *Manager) awaitCompiled(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	return poll.Until(ctx, m.interval, func(ctx context.Context) (bool, error) {
		st, err := m.engine.Status(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to fetch engine status: %w", err)
		}
		switch {
		case st.Program == engine.ProgramSuccess:
			return true, nil
		case isCompiling(st.Program):
			logger.Debug("Program is compiling.", "program_status", st.Program)
			return false, nil
		case isCompileFailure(st.Program):
			return false, &CompileError{Status: st.Program}
		default:
			return false, &engine.ProtocolError{
				Op:  "get status",
				Msg: fmt.Sprintf("unrecognized program_status %q", st.Program),
			}
		}
	})
}

func (m *Manager) start(ctx context.Context) error {
	if err := m.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	return m.await(ctx, "running", func(st *engine.Status) bool {
		return st.Deployment == engine.DeploymentRunning
	})
}

// await polls the status until reached holds.
func (m *Manager) await(ctx context.Context, target string, reached func(*engine.Status) bool) error {
	logger := ctxlog.FromContext(ctx)
	return poll.Until(ctx, m.interval, func(ctx context.Context) (bool, error) {
		st, err := m.engine.Status(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to fetch engine status: %w", err)
		}
		logger.Debug("Waiting for pipeline.", "target", target, "state", StateOf(st), "deployment_status", st.Deployment, "storage_status", st.Storage)
		return reached(st), nil
	})
}

// ReadProgram concatenates the *.sql files directly inside dir, in name
// order, separated by newlines.
func ReadProgram(dir string) (string, error) {
	files, err := fsutil.ListFilesBySuffix(dir, ".sql")
	if err != nil {
		return "", fmt.Errorf("failed to list program sources in %s: %w", dir, err)
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("failed to read program source %s: %w", f, err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n"), nil
}
