// Package poll waits for remote conditions at a fixed interval.
//
// Waits have no deadline and no backoff. A condition that never holds
// blocks until the context is cancelled.
package poll

import (
	"context"
	"time"
)

// Cond reports whether the awaited condition holds. An error stops polling.
type Cond func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it holds,
// returns an error, or ctx is done.
func Until(ctx context.Context, interval time.Duration, cond Cond) error {
	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// Sleep pauses for d, returning early with ctx.Err() when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
