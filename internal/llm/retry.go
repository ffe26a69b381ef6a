package llm

import (
	"context"
	"errors"
	"time"
)

// retryBackoff is the wait schedule applied between attempts: the call is
// retried after 100ms, then once more after 500ms.
var retryBackoff = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond}

// WithRetry runs fn, retrying on provider transport errors with the fixed
// backoff schedule. Rate-limit and configuration errors are not retried;
// neither is context cancellation.
func WithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= len(retryBackoff) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff[attempt]):
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return false
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return false
	}
	var pe *ProviderError
	return errors.As(err, &pe)
}
