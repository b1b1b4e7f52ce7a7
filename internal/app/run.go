package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/specialistvlad/grasptest/internal/fsutil"
	"github.com/specialistvlad/grasptest/internal/testcase"
)

// Run brings the Engine pipeline up, processes every test case and reports
// failed test cases as an error wrapping executor.ErrTestsFailed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	if a.config.StatusPort > 0 {
		if err := a.statusServer(); err != nil {
			return err
		}
		defer a.closeStatusServer()
	}

	paths, err := fsutil.ExpandPaths(a.config.Paths, testcase.Suffix)
	if err != nil {
		return fmt.Errorf("failed to collect test cases: %w", err)
	}
	if len(paths) == 0 {
		a.logger.Warn("No test cases found, nothing to do.", "paths", a.config.Paths)
		return nil
	}
	a.logger.Debug("Test cases collected.", "count", len(paths))

	sess, err := a.sessions.NewSession(ctx, a.settings, a.registry)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		if err := sess.Close(ctx); err != nil {
			a.logger.Warn("Session close failed.", "error", err)
		}
	}()

	a.logger.Info("🚀 Preparing engine pipeline...", "engine_url", a.settings.EngineURL, "pipeline", a.settings.Pipeline)
	if err := sess.Prepare(ctx); err != nil {
		return err
	}

	res, err := sess.Execute(ctx, paths)
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(a.outW, "FAIL %s: %v\n", f.TestCase.Path, f.ErrorTypes)
	}

	a.logger.Debug("App.Run method finished.")
	return res.Err()
}
