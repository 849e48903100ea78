package agent

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy controls how often a failed LLM call is retried and how long
// to wait in between. The wait after attempt n is BaseDelay + n*Increment.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Increment   time.Duration
	ShouldRetry func(error) bool
	// Sleep waits for d unless ctx ends first. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Increment:   time.Second,
	}
}

// Delay returns the wait after the given 1-based failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	increment := p.Increment
	if increment <= 0 {
		increment = time.Second
	}
	base := p.BaseDelay
	if base < 0 {
		base = 0
	}
	return base + increment*time.Duration(attempt)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// do runs fn until it succeeds, the attempts run out, or the error is not
// retryable. It returns the last error.
func (p RetryPolicy) do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempts := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts || !p.shouldRetry(ctx, err) {
			break
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p RetryPolicy) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
