// Package tracker submits the fact batches of many test cases and follows
// their completion tokens until every batch has been processed.
//
// A Tracker is owned by a single goroutine. Submissions for all test cases
// happen up front; each Tick then polls every outstanding token once.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"github.com/specialistvlad/grasptest/internal/engine"
	"github.com/specialistvlad/grasptest/internal/lowering"
	"github.com/specialistvlad/grasptest/internal/poll"
)

// Ingestor is the part of the Engine API the tracker needs.
type Ingestor interface {
	Insert(ctx context.Context, table string, rows any) (string, error)
	IngestStatus(ctx context.Context, token string) (engine.IngestStatus, error)
}

// Tracker maps each pending test case, by pipeline id, to the tokens of
// its batches that have not completed yet.
type Tracker struct {
	eng     Ingestor
	pending map[string][]string
	order   []string
}

// New creates an empty tracker.
func New(eng Ingestor) *Tracker {
	return &Tracker{eng: eng, pending: make(map[string][]string)}
}

// Submit writes each table of rec as one batch and starts tracking the
// returned tokens under id.
func (t *Tracker) Submit(ctx context.Context, id string, rec *lowering.Records) error {
	if _, dup := t.pending[id]; dup {
		return fmt.Errorf("pipeline id %s is already being tracked", id)
	}
	logger := ctxlog.FromContext(ctx)

	tokens := make([]string, 0, len(rec.Tables()))
	seen := make(map[string]bool)
	for _, table := range rec.Tables() {
		rows := rec.Rows(table)
		token, err := t.eng.Insert(ctx, table, rows)
		if err != nil {
			return fmt.Errorf("failed to submit %s for %s: %w", table, id, err)
		}
		logger.Debug("Batch submitted.", "pipeline_id", id, "table", table, "rows", len(rows), "token", token)
		if !seen[token] {
			seen[token] = true
			tokens = append(tokens, token)
		}
	}

	t.pending[id] = tokens
	t.order = append(t.order, id)
	return nil
}

// Pending is the number of test cases with batches still in flight.
func (t *Tracker) Pending() int {
	return len(t.pending)
}

// Outstanding is the number of unfinished batches of id.
func (t *Tracker) Outstanding(id string) int {
	return len(t.pending[id])
}

// Tick polls every outstanding token once, forgets completed ones, and
// returns the ids whose batches have all completed, in submission order.
// Those ids are no longer pending. A status other than inprogress or
// complete aborts the tick with the error.
func (t *Tracker) Tick(ctx context.Context) ([]string, error) {
	logger := ctxlog.FromContext(ctx)

	var ingested []string
	for _, id := range t.order {
		tokens := t.pending[id]
		remaining := make([]string, 0, len(tokens))
		for i, token := range tokens {
			status, err := t.eng.IngestStatus(ctx, token)
			if err != nil {
				t.pending[id] = append(remaining, tokens[i:]...)
				t.compact()
				return ingested, fmt.Errorf("failed to poll token %s of %s: %w", token, id, err)
			}
			switch status {
			case engine.IngestComplete:
				logger.Debug("Batch completed.", "pipeline_id", id, "token", token)
			case engine.IngestInProgress:
				remaining = append(remaining, token)
			default:
				t.pending[id] = append(remaining, tokens[i:]...)
				t.compact()
				return ingested, &engine.ProtocolError{
					Op:  "get completion status",
					Msg: fmt.Sprintf("unrecognized ingest status %q for token %s", status, token),
				}
			}
		}

		if len(remaining) == 0 {
			delete(t.pending, id)
			ingested = append(ingested, id)
			continue
		}
		t.pending[id] = remaining
	}
	t.compact()
	return ingested, nil
}

// compact drops ids that are no longer pending from the polling order.
func (t *Tracker) compact() {
	order := t.order[:0]
	for _, id := range t.order {
		if _, ok := t.pending[id]; ok {
			order = append(order, id)
		}
	}
	t.order = order
}

// Drain ticks until nothing is pending, sleeping interval between ticks.
// onIngested runs for each test case as soon as its last batch completes;
// an error from it stops the drain.
func (t *Tracker) Drain(ctx context.Context, interval time.Duration, onIngested func(ctx context.Context, id string) error) error {
	for t.Pending() > 0 {
		ingested, err := t.Tick(ctx)
		if err != nil {
			return err
		}
		for _, id := range ingested {
			if err := onIngested(ctx, id); err != nil {
				return err
			}
		}
		if t.Pending() == 0 {
			break
		}
		if err := poll.Sleep(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}
