// Package executor runs a batch of test cases against the Engine: it skips
// cached ones, submits the facts of all others up front, then collects
// errors or derived SQL as each test case finishes ingesting.
//
// All Engine calls, the tracker and the cache are driven from the calling
// goroutine. Nothing here is safe for concurrent use.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/grasptest/internal/cache"
	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/specialistvlad/grasptest/internal/engine"
	"github.com/specialistvlad/grasptest/internal/lowering"
	"github.com/specialistvlad/grasptest/internal/parser"
	"github.com/specialistvlad/grasptest/internal/poll"
	"github.com/specialistvlad/grasptest/internal/testcase"
	"github.com/specialistvlad/grasptest/internal/tracker"
	"go.uber.org/multierr"
)

// Engine is the part of the Engine API a run needs.
type Engine interface {
	tracker.Ingestor
	Query(ctx context.Context, sql string) ([]engine.Row, error)
	StartTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	TransactionStatus(ctx context.Context) (engine.TransactionStatus, error)
}

// ErrTestsFailed is wrapped by Result.Err when any test case failed.
var ErrTestsFailed = errors.New("test cases failed")

// TestFailure is a test case for which the Engine reported error rows.
type TestFailure struct {
	TestCase   *testcase.TestCase
	ErrorTypes []string
}

func (f *TestFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.TestCase.Path, strings.Join(f.ErrorTypes, ", "))
}

// Result summarizes a run.
type Result struct {
	// Cached test cases already had an artifact and were not submitted.
	Cached []*testcase.TestCase
	// Passed test cases had their derived SQL written to the cache.
	Passed   []*testcase.TestCase
	Failures []*TestFailure
}

// Err is nil when no test case failed, otherwise an error wrapping
// ErrTestsFailed and every TestFailure.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	var errs error
	for _, f := range r.Failures {
		errs = multierr.Append(errs, f)
	}
	return fmt.Errorf("%w: %d of %d: %w", ErrTestsFailed, len(r.Failures), len(r.Failures)+len(r.Passed), errs)
}

// Options configures an Executor.
type Options struct {
	// PollInterval is the fixed delay between completion ticks and
	// transaction status polls.
	PollInterval time.Duration
	// Transactional brackets all batch writes of a run in one Engine
	// transaction.
	Transactional bool
	// Metrics may be nil.
	Metrics *Metrics
}

// Executor processes test cases.
type Executor struct {
	eng    Engine
	parser *parser.Parser
	cache  *cache.Store
	opts   Options
}

// New creates an executor.
func New(eng Engine, p *parser.Parser, store *cache.Store, opts Options) *Executor {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Executor{eng: eng, parser: p, cache: store, opts: opts}
}

// Execute processes the test cases at paths. The returned error reports
// aborts: unreadable or unparsable test cases, protocol errors, cache
// failures. Test cases the Engine rejects are reported in Result.Failures.
// Artifacts of passed test cases are written even when others fail.
func (e *Executor) Execute(ctx context.Context, paths []string) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	m := e.opts.Metrics
	startedAt := time.Now()
	defer func() { m.runDuration.Observe(time.Since(startedAt).Seconds()) }()

	res := &Result{}
	stale, err := e.selectStale(ctx, paths, res)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		logger.Info("✨ All test cases are cached, nothing to submit.", "cached", len(res.Cached))
		return res, nil
	}

	tr := tracker.New(e.eng)
	byID, err := e.submitAll(ctx, tr, stale)
	if err != nil {
		return nil, err
	}

	submittedAt := time.Now()
	err = tr.Drain(ctx, e.opts.PollInterval, func(ctx context.Context, id string) error {
		m.pending.Dec()
		m.ingestWait.Observe(time.Since(submittedAt).Seconds())
		return e.collect(ctx, byID[id], res)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("🏁 Run finished.", "passed", len(res.Passed), "failed", len(res.Failures), "cached", len(res.Cached))
	return res, nil
}

// selectStale loads every test case and returns those without a cache
// entry. Cached ones are recorded in res.
func (e *Executor) selectStale(ctx context.Context, paths []string, res *Result) ([]*testcase.TestCase, error) {
	logger := ctxlog.FromContext(ctx)

	var stale []*testcase.TestCase
	seen := make(map[string]string)
	for _, path := range paths {
		tc, err := testcase.Load(path)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[tc.PipelineID()]; dup {
			logger.Warn("Skipping test case identical to another one.", "path", path, "same_as", other)
			continue
		}
		seen[tc.PipelineID()] = path

		needed, err := e.cache.NeedsProcessing(tc)
		if err != nil {
			return nil, err
		}
		if !needed {
			logger.Debug("Test case is cached.", "path", path, "artifact", e.cache.Path(tc))
			e.opts.Metrics.testCases.WithLabelValues("cached").Inc()
			res.Cached = append(res.Cached, tc)
			continue
		}
		stale = append(stale, tc)
	}
	return stale, nil
}

// submitAll encodes every stale test case, then submits them all before
// the first completion tick. Nothing is submitted when any fails to encode.
func (e *Executor) submitAll(ctx context.Context, tr *tracker.Tracker, stale []*testcase.TestCase) (map[string]*testcase.TestCase, error) {
	logger := ctxlog.FromContext(ctx)
	m := e.opts.Metrics

	encoded := make([]*lowering.Records, len(stale))
	for i, tc := range stale {
		rec, err := e.encode(ctx, tc)
		if err != nil {
			return nil, err
		}
		encoded[i] = rec
	}

	logger.Info("🚀 Submitting test cases.", "count", len(stale), "transactional", e.opts.Transactional)
	if e.opts.Transactional {
		if err := e.eng.StartTransaction(ctx); err != nil {
			return nil, fmt.Errorf("failed to start transaction: %w", err)
		}
	}

	byID := make(map[string]*testcase.TestCase, len(stale))
	for i, tc := range stale {
		rec := encoded[i]
		if err := tr.Submit(ctx, tc.PipelineID(), rec); err != nil {
			return nil, err
		}
		byID[tc.PipelineID()] = tc
		m.batches.Add(float64(len(rec.Tables())))
		m.rows.Add(float64(rec.Len()))
		m.pending.Inc()
		logger.Debug("Test case submitted.", "path", tc.Path, "pipeline_id", tc.PipelineID(), "tables", len(rec.Tables()), "rows", rec.Len())
	}

	if e.opts.Transactional {
		if err := e.commit(ctx); err != nil {
			return nil, err
		}
	}
	return byID, nil
}

// encode parses and lowers tc and stamps every row with its pipeline id.
func (e *Executor) encode(ctx context.Context, tc *testcase.TestCase) (*lowering.Records, error) {
	tree, err := e.parser.Parse(ctx, tc.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tc.Path, err)
	}
	rec, err := lowering.LowerTree(ctx, tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tc.Path, err)
	}
	return rec.WithPipelineID(tc.PipelineID()), nil
}

func (e *Executor) commit(ctx context.Context) error {
	if err := e.eng.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	logger := ctxlog.FromContext(ctx)
	return poll.Until(ctx, e.opts.PollInterval, func(ctx context.Context) (bool, error) {
		st, err := e.eng.TransactionStatus(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to fetch transaction status: %w", err)
		}
		logger.Debug("Waiting for commit.", "transaction_status", st)
		return st == engine.NoTransaction, nil
	})
}

// collect handles a fully ingested test case: it records a failure when
// the Engine reported errors for it, otherwise caches its derived SQL.
func (e *Executor) collect(ctx context.Context, tc *testcase.TestCase, res *Result) error {
	logger := ctxlog.FromContext(ctx).With("path", tc.Path, "pipeline_id", tc.PipelineID())
	m := e.opts.Metrics

	errorTypes, err := e.errorTypes(ctx, tc)
	if err != nil {
		return err
	}
	if len(errorTypes) > 0 {
		logger.Error("Test case reported errors.", "errors", errorTypes)
		m.testCases.WithLabelValues("failed").Inc()
		res.Failures = append(res.Failures, &TestFailure{TestCase: tc, ErrorTypes: errorTypes})
		return nil
	}

	lines, err := e.sqlLines(ctx, tc)
	if err != nil {
		return err
	}
	if err := e.cache.Write(tc, lines); err != nil {
		return err
	}
	logger.Info("✅ Test case passed.", "artifact", e.cache.Path(tc), "lines", len(lines))
	m.testCases.WithLabelValues("passed").Inc()
	res.Passed = append(res.Passed, tc)
	return nil
}

func (e *Executor) errorTypes(ctx context.Context, tc *testcase.TestCase) ([]string, error) {
	sql := fmt.Sprintf(`SELECT error_type FROM "error" WHERE pipeline_id = %s`, quote(tc.PipelineID()))
	rows, err := e.eng.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors of %s: %w", tc.Path, err)
	}
	types := make([]string, 0, len(rows))
	for _, row := range rows {
		if !row.Has("error_type") {
			return nil, fmt.Errorf("error row of %s has no error_type column", tc.Path)
		}
		t, err := row.String("error_type")
		if err != nil {
			return nil, fmt.Errorf("failed to read errors of %s: %w", tc.Path, err)
		}
		types = append(types, t)
	}
	return types, nil
}

func (e *Executor) sqlLines(ctx context.Context, tc *testcase.TestCase) ([]string, error) {
	sql := fmt.Sprintf(`SELECT sql_lines FROM full_pipeline_sql WHERE pipeline_id = %s`, quote(tc.PipelineID()))
	rows, err := e.eng.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query derived SQL of %s: %w", tc.Path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("engine returned no derived SQL for %s", tc.Path)
	}
	lines, err := rows[0].Strings("sql_lines")
	if err != nil {
		return nil, fmt.Errorf("failed to read derived SQL of %s: %w", tc.Path, err)
	}
	return lines, nil
}

// quote renders s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
