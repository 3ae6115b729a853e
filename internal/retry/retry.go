// Package retry runs fallible operations with a bounded number of attempts
// and a fixed delay between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phase-trade-bot-go/internal/metrics"

	"go.uber.org/zap"
)

// Policy bounds a retried call. Attempts below 1 are treated as 1 and a
// negative Delay as no delay.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy is what the venue gateway uses unless configured otherwise.
var DefaultPolicy = Policy{Attempts: 3, Delay: 5 * time.Second}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// after the first attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do invokes op until it succeeds or the policy's attempts are exhausted,
// sleeping p.Delay between attempts. Every failed attempt is logged with its
// 1-based index. The last error is returned on exhaustion.
func Do[T any](ctx context.Context, logger *zap.Logger, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay < 0 {
		delay = 0
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			logger.Warn("Operation failed permanently, not retrying",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Error(perm.err),
			)
			return zero, perm.err
		}

		lastErr = err
		logger.Warn("Operation attempt failed",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)

		if attempt == attempts {
			break
		}
		metrics.Retries.WithLabelValues(name).Inc()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w (retry aborted: %v)", lastErr, ctx.Err())
		}
	}

	logger.Error("Operation failed after all attempts",
		zap.String("operation", name),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return zero, lastErr
}

// Run is Do for operations that only report an error.
func Run(ctx context.Context, logger *zap.Logger, p Policy, name string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, logger, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
