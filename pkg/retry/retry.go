package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"syscall"
	"time"
)

// Config defines the backoff policy.
type Config struct {
	// MaxAttempts is the maximum number of attempts including the first one
	MaxAttempts int
	// InitialDelay is the delay before the second attempt
	InitialDelay time.Duration
	// MaxDelay caps a single delay
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor (defaults to 2)
	Multiplier float64
	// Jitter randomizes every delay within [delay/2, delay]
	Jitter bool
	// OnRetry is called before sleeping for the next attempt
	OnRetry func(attempt int, err error, nextDelay time.Duration)
	// After creates a timer channel (for testing, defaults to time.After)
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

func (c *Config) normalize() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay <= 0 {
		return errors.New("retry: InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.InitialDelay > c.MaxDelay {
		return errors.New("retry: InitialDelay cannot be greater than MaxDelay")
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	if c.Multiplier < 1 {
		return errors.New("retry: Multiplier must be >= 1")
	}
	if c.After == nil {
		c.After = time.After
	}
	return nil
}

// Func is an operation that can be retried.
type Func func(ctx context.Context) error

// RetryableFunc decides whether an error should trigger another attempt.
type RetryableFunc func(err error) bool

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	LastError error
	Attempts  int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.LastError)
}

func (e *ExhaustedError) Unwrap() error { return e.LastError }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// DefaultRetryable retries timeouts and transient network failures.
func DefaultRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsTemporary {
		return true
	}
	for _, errno := range []syscall.Errno{
		syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
		syscall.ENETUNREACH, syscall.EHOSTUNREACH, syscall.EPIPE, syscall.ETIMEDOUT,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// Always retries every error except context cancellation.
func Always(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Do runs fn until it succeeds, using DefaultRetryable.
func Do(ctx context.Context, cfg Config, fn Func) error {
	return DoWithRetryable(ctx, cfg, fn, DefaultRetryable)
}

// DoWithRetryable runs fn until it succeeds, returns a non-retryable error,
// runs out of attempts or ctx is done.
func DoWithRetryable(ctx context.Context, cfg Config, fn Func, retryable RetryableFunc) error {
	if err := cfg.normalize(); err != nil {
		return err
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait = wait/2 + rand.N(wait/2+1)
		}
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); wait > remaining {
				wait = remaining
			}
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cfg.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return &ExhaustedError{LastError: lastErr, Attempts: cfg.MaxAttempts}
}
