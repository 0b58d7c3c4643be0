package summary

import (
	"context"
	"time"

	"topomap/internal/domain"
	"topomap/internal/errors"
	"topomap/internal/logging"
)

const (
	DefaultRetries = 10
	DefaultBackoff = time.Second
)

// Retrying retries a Generator with a fixed backoff. When every attempt
// fails it returns Unavailable together with the last error.
type Retrying struct {
	next    Generator
	retries int
	backoff time.Duration
	logger  *logging.Logger
}

// RetryOption configures Retrying
type RetryOption func(*Retrying)

// WithRetries sets the number of attempts
func WithRetries(n int) RetryOption {
	return func(r *Retrying) {
		if n > 0 {
			r.retries = n
		}
	}
}

// WithBackoff sets the pause between attempts
func WithBackoff(d time.Duration) RetryOption {
	return func(r *Retrying) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

// WithRetryLogger sets the logger
func WithRetryLogger(l *logging.Logger) RetryOption {
	return func(r *Retrying) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetrying wraps next
func NewRetrying(next Generator, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:    next,
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		logger:  logging.Default().WithComponent("summary"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Summarize returns the first successful summary
func (r *Retrying) Summarize(ctx context.Context, nodes []domain.Node) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		text, err := r.next.Summarize(ctx, nodes)
		if err == nil {
			return text, nil
		}
		lastErr = err
		r.logger.Debug("summary attempt failed", "attempt", attempt, "error", err)

		if attempt == r.retries {
			break
		}
		if !wait(ctx, r.backoff) {
			lastErr = errors.Wrap(errors.CodeSummary, "summary cancelled", ctx.Err())
			break
		}
	}

	r.logger.Warn("summary unavailable", "attempts", r.retries, "error", lastErr)
	if errors.CodeOf(lastErr) != errors.CodeSummary {
		lastErr = errors.Wrap(errors.CodeSummary, "summary unavailable", lastErr)
	}
	return Unavailable, lastErr
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
