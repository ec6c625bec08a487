// Package retry runs fallible operations with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

var (
	// ErrInvalidPolicy is returned when a Policy has MaxAttempts < 1 or a negative BaseDelay.
	ErrInvalidPolicy = errors.New("retry: invalid policy")
	// ErrAllAttemptsFailed is returned only when attempts ran out without any error being captured.
	ErrAllAttemptsFailed = errors.New("retry: all attempts failed")
)

// Policy configures how many times an operation runs and how long to wait between runs.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
}

// DefaultPolicy is 3 attempts with 1s, 2s waits between them.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// Validate reports whether the policy can be executed.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts %d < 1", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("%w: negative base delay %s", ErrInvalidPolicy, p.BaseDelay)
	}
	return nil
}

// Delay returns the wait after the failed attempt with 0-based index attempt: BaseDelay * 2^attempt,
// saturating at the largest time.Duration.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.BaseDelay <= 0 {
		return p.BaseDelay
	}
	if attempt >= 63 || p.BaseDelay > time.Duration(math.MaxInt64>>uint(attempt)) {
		return time.Duration(math.MaxInt64)
	}
	return p.BaseDelay << uint(attempt)
}

// OperationError is returned when every allowed attempt failed (or the backoff wait was cancelled).
// Err is the error of the last attempt that ran.
type OperationError struct {
	Attempts int
	Err      error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Operation is the unit of work retried by Do.
type Operation[T any] func(ctx context.Context) (T, error)

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

type options struct {
	sleep    SleepFunc
	logger   *slog.Logger
	observer func(attempt int, err error)
}

// Option customises a single Do call.
type Option func(*options)

// WithSleep replaces the timer-based wait (tests use it to drive a fake clock).
func WithSleep(fn SleepFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithLogger sets the logger used for non-final attempt failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver is called after each non-final failed attempt with its 1-based number.
func WithObserver(fn func(attempt int, err error)) Option {
	return func(o *options) { o.observer = fn }
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Do runs op until it succeeds or policy.MaxAttempts attempts have failed.
// A cancelled backoff wait stops the sequence without another attempt and returns the last error.
// Do never imposes a timeout on op itself.
func Do[T any](ctx context.Context, policy Policy, op Operation[T], opts ...Option) (T, error) {
	var zero T
	if err := policy.Validate(); err != nil {
		return zero, err
	}
	o := options{sleep: Sleep, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		lastErr error
		ran     int
	)
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		ran++
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		o.logger.Debug("retry attempt failed", "attempt", attempt+1, "max_attempts", policy.MaxAttempts, "delay", delay, "err", err)
		if o.observer != nil {
			o.observer(attempt+1, err)
		}
		if werr := o.sleep(ctx, delay); werr != nil {
			break
		}
	}

	if lastErr == nil {
		return zero, ErrAllAttemptsFailed
	}
	return zero, &OperationError{Attempts: ran, Err: lastErr}
}

// Executor keeps a policy and options for callers that retry many operations the same way.
type Executor struct {
	Policy  Policy
	Options []Option
}

// NewExecutor returns an Executor for p.
func NewExecutor(p Policy, opts ...Option) *Executor {
	return &Executor{Policy: p, Options: opts}
}

// Run executes op with the executor's policy. Errors are the same as Do's.
func (e *Executor) Run(ctx context.Context, op func(ctx context.Context) error) error {
	policy := DefaultPolicy
	var opts []Option
	if e != nil {
		policy = e.Policy
		opts = e.Options
	}
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// Call is Run for operations that produce a value.
func Call[T any](ctx context.Context, e *Executor, op Operation[T]) (T, error) {
	if e == nil {
		return Do(ctx, DefaultPolicy, op)
	}
	return Do(ctx, e.Policy, op, e.Options...)
}
