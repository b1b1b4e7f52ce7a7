package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/grasptest/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine simulates the pipeline state machine. Transitions complete
// one status poll after the request that triggers them.
type fakeEngine struct {
	exists     bool
	program    string
	deployment engine.DeploymentStatus
	storage    engine.StorageStatus
	compiled   engine.ProgramStatus

	// compileResult is what compilation ends in after an upload.
	compileResult engine.ProgramStatus

	deploymentQ []engine.DeploymentStatus
	storageQ    []engine.StorageStatus
	programQ    []engine.ProgramStatus

	calls []string
}

func newRunningEngine(program string) *fakeEngine {
	return &fakeEngine{
		exists:        true,
		program:       program,
		deployment:    engine.DeploymentRunning,
		storage:       engine.StorageInUse,
		compiled:      engine.ProgramSuccess,
		compileResult: engine.ProgramSuccess,
	}
}

func (f *fakeEngine) Program(context.Context) (string, bool, error) {
	return f.program, f.exists, nil
}

func (f *fakeEngine) Status(context.Context) (*engine.Status, error) {
	if !f.exists {
		return &engine.Status{}, nil
	}
	if len(f.deploymentQ) > 0 {
		f.deployment, f.deploymentQ = f.deploymentQ[0], f.deploymentQ[1:]
	}
	if len(f.storageQ) > 0 {
		f.storage, f.storageQ = f.storageQ[0], f.storageQ[1:]
	}
	if len(f.programQ) > 0 {
		f.compiled, f.programQ = f.programQ[0], f.programQ[1:]
	}
	return &engine.Status{Exists: true, Deployment: f.deployment, Storage: f.storage, Program: f.compiled}, nil
}

func (f *fakeEngine) PutProgram(_ context.Context, source string) error {
	f.calls = append(f.calls, "put")
	f.exists = true
	f.program = source
	if f.deployment == "" {
		f.deployment = engine.DeploymentStopped
		f.storage = engine.StorageCleared
	}
	f.compiled = engine.ProgramPending
	f.programQ = []engine.ProgramStatus{engine.ProgramCompilingSQL, engine.ProgramSQLCompiled, engine.ProgramCompilingRust, f.compileResult}
	return nil
}

func (f *fakeEngine) Start(context.Context) error {
	f.calls = append(f.calls, "start")
	if f.deployment != engine.DeploymentRunning {
		f.deploymentQ = []engine.DeploymentStatus{"Initializing", engine.DeploymentRunning}
	}
	return nil
}

func (f *fakeEngine) Stop(_ context.Context, force bool) error {
	if force {
		f.calls = append(f.calls, "stop(force)")
	} else {
		f.calls = append(f.calls, "stop")
	}
	f.deploymentQ = []engine.DeploymentStatus{"Stopping", engine.DeploymentStopped}
	return nil
}

func (f *fakeEngine) Clear(context.Context) error {
	f.calls = append(f.calls, "clear")
	f.storageQ = []engine.StorageStatus{"Clearing", engine.StorageCleared}
	return nil
}

func TestEnsureReady_CreatesAbsentPipeline(t *testing.T) {
	// --- Arrange ---
	fake := &fakeEngine{compileResult: engine.ProgramSuccess}
	m := NewManager(fake, time.Millisecond)

	// --- Act ---
	err := m.EnsureReady(context.Background(), "CREATE TABLE rule(rule_id VARCHAR);")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"put", "start"}, fake.calls)
	assert.Equal(t, "CREATE TABLE rule(rule_id VARCHAR);", fake.program)
	assert.Equal(t, engine.DeploymentRunning, fake.deployment)
}

func TestEnsureReady_RecompilesChangedProgram(t *testing.T) {
	fake := newRunningEngine("-- v1")
	m := NewManager(fake, time.Millisecond)

	err := m.EnsureReady(context.Background(), "-- v2")

	require.NoError(t, err)
	assert.Equal(t, []string{"stop(force)", "clear", "put", "start"}, fake.calls)
	assert.Equal(t, "-- v2", fake.program)
	assert.Equal(t, engine.DeploymentRunning, fake.deployment)
	assert.Equal(t, engine.ProgramSuccess, fake.compiled)
}

func TestEnsureReady_StoppedPipelineIsClearedWithoutStop(t *testing.T) {
	fake := newRunningEngine("-- v1")
	fake.deployment = engine.DeploymentStopped

	err := NewManager(fake, time.Millisecond).EnsureReady(context.Background(), "-- v2")

	require.NoError(t, err)
	assert.Equal(t, []string{"clear", "put", "start"}, fake.calls)
}

func TestEnsureReady_UpToDateProgramIsKept(t *testing.T) {
	fake := newRunningEngine("-- v1")

	err := NewManager(fake, time.Millisecond).EnsureReady(context.Background(), "-- v1")

	require.NoError(t, err)
	assert.Equal(t, []string{"start"}, fake.calls)
}

func TestEnsureReady_CompileFailureAbortsBeforeStart(t *testing.T) {
	fake := newRunningEngine("-- v1")
	fake.compileResult = engine.ProgramSQLError

	err := NewManager(fake, time.Millisecond).EnsureReady(context.Background(), "-- broken")

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr), "expected CompileError, got %v", err)
	assert.Equal(t, engine.ProgramSQLError, compileErr.Status)
	assert.Equal(t, []string{"stop(force)", "clear", "put"}, fake.calls)
	assert.Contains(t, err.Error(), "SqlError")
}

func TestEnsureReady_UnknownProgramStatus(t *testing.T) {
	fake := newRunningEngine("-- v1")
	fake.compiled = "Mystery"

	err := NewManager(fake, time.Millisecond).EnsureReady(context.Background(), "-- v1")

	var protoErr *engine.ProtocolError
	require.True(t, errors.As(err, &protoErr), "expected ProtocolError, got %v", err)
	assert.Contains(t, protoErr.Msg, "Mystery")
	assert.Empty(t, fake.calls)
}

func TestEnsureReady_CancelledWhileWaiting(t *testing.T) {
	fake := newRunningEngine("-- v1")
	fake.compiled = engine.ProgramPending
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewManager(fake, time.Millisecond).EnsureReady(ctx, "-- v1")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStateOf(t *testing.T) {
	testCases := []struct {
		status engine.Status
		want   State
	}{
		{status: engine.Status{}, want: Absent},
		{status: engine.Status{Exists: true, Deployment: engine.DeploymentRunning, Program: engine.ProgramSuccess}, want: Running},
		{status: engine.Status{Exists: true, Deployment: engine.DeploymentStopped, Program: engine.ProgramSuccess}, want: Stopped},
		{status: engine.Status{Exists: true, Deployment: engine.DeploymentStopped, Program: engine.ProgramCompilingRust}, want: Compiling},
		{status: engine.Status{Exists: true, Deployment: engine.DeploymentStopped, Program: engine.ProgramRustError}, want: Failed},
	}

	for _, tc := range testCases {
		t.Run(string(tc.want), func(t *testing.T) {
			st := tc.status
			assert.Equal(t, tc.want, StateOf(&st))
		})
	}
}

func TestReadProgram(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02_views.sql"), []byte("CREATE VIEW v AS SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01_tables.sql"), []byte("CREATE TABLE t(x INT);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	src, err := ReadProgram(dir)

	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t(x INT);\nCREATE VIEW v AS SELECT 1;", src)

	_, err = ReadProgram(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
