// Package retry implements the backoff policy and remote-call wrapper
// shared by the embedding and parsing clients. The policy is a pure
// decision function (should we retry, and for how long do we sleep);
// the wrapper owns the attempt loop and the sleep itself.
package retry

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// Strategy selects how failed remote calls are retried. It is chosen
// per client at construction time and never changes afterwards.
type Strategy string

const (
	// NoRetry fails on the first transport error.
	NoRetry Strategy = "no_retry"
	// ExponentialBackoffLimited retries up to MaxRetries times with
	// exponentially increasing delays.
	ExponentialBackoffLimited Strategy = "exponential_backoff_limited"
	// ExponentialBackoffUnlimited retries forever. The exponential
	// delay still saturates at MaxDelay.
	ExponentialBackoffUnlimited Strategy = "exponential_backoff_unlimited"
)

// Strategies lists every valid strategy value, for error messages and
// configuration validation.
func Strategies() []Strategy {
	return []Strategy{NoRetry, ExponentialBackoffLimited, ExponentialBackoffUnlimited}
}

// ParseStrategy validates a configuration string against the known
// strategy set. An empty string selects ExponentialBackoffLimited.
func ParseStrategy(value string) (Strategy, error) {
	if value == "" {
		return ExponentialBackoffLimited, nil
	}
	v := Strategy(strings.ToLower(value))
	for _, s := range Strategies() {
		if v == s {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid retry strategy %q (valid options: %v)", value, Strategies())
}

// Config holds the backoff parameters for one client.
type Config struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential delay growth.
	MaxDelay time.Duration
	// ExponentialBase is the growth factor applied per attempt.
	ExponentialBase float64
	// Jitter randomizes each delay by ±25% to avoid retry storms.
	Jitter bool
	// MaxRetries bounds ExponentialBackoffLimited. Ignored by the
	// other strategies.
	MaxRetries int
}

// DefaultConfig returns the backoff defaults shared by all clients:
// 1s initial delay doubling up to 60s, jittered, 3 retries.
func DefaultConfig() Config {
	return Config{
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
		MaxRetries:      3,
	}
}

// Validate checks the backoff invariants. Violations are configuration
// errors and must surface at construction time, never at call time.
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial delay must be non-negative, got %v", c.InitialDelay)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("max delay must be non-negative, got %v", c.MaxDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay (%v) must be >= initial delay (%v)", c.MaxDelay, c.InitialDelay)
	}
	if c.ExponentialBase <= 0 {
		return fmt.Errorf("exponential base must be positive, got %v", c.ExponentialBase)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", c.MaxRetries)
	}
	return nil
}

// Delay returns the sleep before retrying the given 0-indexed attempt:
// min(initial * base^attempt, max), plus a uniform random offset in
// [-25%, +25%] when jitter is enabled, floored at zero. The cap is not
// reapplied after jitter, so a jittered delay can exceed MaxDelay by
// up to 25%.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(c.InitialDelay) * math.Pow(c.ExponentialBase, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter {
		// Cryptographic randomness not required here, the jitter only
		// de-synchronizes concurrent clients.
		delay += (rand.Float64()*2 - 1) * 0.25 * delay //nolint:gosec // G404: non-security use case
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Policy pairs a strategy with its backoff parameters.
type Policy struct {
	Strategy Strategy
	Backoff  Config
}

// DefaultPolicy returns limited exponential backoff with DefaultConfig.
func DefaultPolicy() Policy {
	return Policy{Strategy: ExponentialBackoffLimited, Backoff: DefaultConfig()}
}

// Validate checks the strategy and the backoff invariants.
func (p Policy) Validate() error {
	if _, err := ParseStrategy(string(p.Strategy)); err != nil {
		return err
	}
	return p.Backoff.Validate()
}

// ShouldRetry reports whether the given 0-indexed attempt may be
// retried. With ExponentialBackoffLimited and MaxRetries=3, attempts
// 0, 1 and 2 retry; attempt 3 does not.
func (p Policy) ShouldRetry(attempt int) bool {
	switch p.Strategy {
	case ExponentialBackoffLimited:
		return attempt < p.Backoff.MaxRetries
	case ExponentialBackoffUnlimited:
		return true
	default:
		return false
	}
}

// Delay returns the backoff sleep for the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.Backoff.Delay(attempt)
}

// ExhaustedError reports that an operation kept failing until its
// retry budget ran out. It wraps the last transport failure.
type ExhaustedError struct {
	Op       string // operation label, for diagnostics
	Attempts int    // total attempts made, including the first call
	Err      error  // last failure
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do executes fn with retry. One invocation of fn is one network
// attempt. On failure the policy decides whether to retry; if so, Do
// sleeps for the computed delay (honoring ctx cancellation) and calls
// fn again. When the budget is exhausted the last failure is returned
// wrapped in an *ExhaustedError, never swallowed.
func Do[T any](ctx context.Context, op string, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Printf("%s failed (attempt %d): %v", op, attempt+1, err)

		if !p.ShouldRetry(attempt) {
			return zero, &ExhaustedError{Op: op, Attempts: attempt + 1, Err: lastErr}
		}

		delay := p.Delay(attempt)
		log.Printf("%s: retrying in %v", op, delay.Round(10*time.Millisecond))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}
