package vlmrun

import (
	"context"
	"fmt"
	"time"
)

// WaitOptions bounds a polling wait.
type WaitOptions struct {
	// Timeout is the overall wait budget. Zero uses the façade default.
	Timeout time.Duration
	// Interval is the delay between polls. Zero uses the façade default.
	Interval time.Duration
}

func (o WaitOptions) withDefaults(timeout, interval time.Duration) WaitOptions {
	if o.Timeout <= 0 {
		o.Timeout = timeout
	}
	if o.Interval <= 0 {
		o.Interval = interval
	}
	return o
}

// pollUntil calls fetch until done reports true, the timeout elapses or ctx
// is cancelled. The last fetched value is returned alongside a timeout error.
func pollUntil[T any](ctx context.Context, what string, opts WaitOptions, fetch func(context.Context) (T, error), done func(T) bool) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(opts.Timeout)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var last T
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		current, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = current
		if done(current) {
			return current, nil
		}

		if time.Now().Add(opts.Interval).After(deadline) {
			return last, &Error{
				Kind:       KindTimeout,
				Message:    fmt.Sprintf("%s did not complete within %s", what, opts.Timeout),
				Suggestion: "Increase the wait timeout or check the job status later",
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
