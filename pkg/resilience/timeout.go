package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context that expires after timeout and waits
// for fn to return. fn must honour ctx; work it started is finished or
// abandoned by the time WithTimeout returns, so callers may safely discard
// partial state.
//
// When the deadline, not the parent, ended the call the error wraps
// context.DeadlineExceeded regardless of what fn returned.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	boundedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(boundedCtx)
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%s: parent context done: %w", name, ctx.Err())
	case boundedCtx.Err() != nil && err != nil:
		return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
	return err
}
