package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "vkharvest/pkg/errors"
)

// Config controls how Do repeats an operation
type Config struct {
	// MaxAttempts counts the first call; 0 means no limit
	MaxAttempts int
	Backoff     Backoff
	// RetryIf picks the errors worth another attempt. When nil, typed errors
	// of a retryable type are retried.
	RetryIf func(error) bool
	// OnRetry runs before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do calls op until it succeeds, returns an error RetryIf rejects, runs out
// of attempts, or ctx ends during a wait
func Do(ctx context.Context, cfg Config, op func() error) error {
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = retryable
	}

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		delay := cfg.Backoff.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var typed *errs.Error
	return errors.As(err, &typed) && errs.IsRetryable(typed.Type)
}
