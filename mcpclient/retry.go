package mcpclient

import (
	"context"
	"time"
)

// RetryPolicy controls how many times a tool call is attempted.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, values below 1 mean 1.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" toml:"max_attempts,omitempty"`
	// Delay between attempts.
	Delay time.Duration `json:"delay,omitempty" yaml:"delay,omitempty" toml:"delay,omitempty"`
}

var (
	// DefaultRetryPolicy makes two attempts, one second apart.
	DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, Delay: time.Second}
	// NoRetry makes a single attempt.
	NoRetry = RetryPolicy{MaxAttempts: 1}
)

// Attempts returns the effective number of attempts.
func (p RetryPolicy) Attempts() int {
	return max(1, p.MaxAttempts)
}

// Do calls fn until it succeeds or the attempts are exhausted.
// onFailure is called after every failed attempt with its 1-based number.
// It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onFailure func(attempt int, err error)) (int, error) {
	attempts := p.Attempts()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if attempt == attempts {
			return attempt, err
		}
		if ctxErr := sleep(ctx, p.Delay); ctxErr != nil {
			return attempt, err
		}
	}
	return attempts, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
