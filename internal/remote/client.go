package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/raysh454/sitedrop/internal/logging"
)

// Idempotency says whether repeating an operation with identical inputs is safe.
type Idempotency int

const (
	// Idempotent operations (reads, create-or-update) may be retried.
	Idempotent Idempotency = iota
	// NonIdempotent operations (create-new) run exactly once.
	NonIdempotent
)

// Op describes one logical remote operation. Zero Attempts/Delay fall back to
// the client's policy.
type Op struct {
	Name     string
	Class    Idempotency
	Attempts int
	Delay    time.Duration
}

// Policy is the default retry policy for idempotent operations.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int `yaml:"attempts"`
	// Delay is the fixed wait between attempts.
	Delay time.Duration `yaml:"delay"`
	// Timeout bounds each individual attempt; 0 disables it.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: time.Second, Timeout: 30 * time.Second}
}

// Client runs provider calls under a retry policy and classifies failures.
type Client struct {
	policy Policy
	logger logging.Logger
}

// NewClient returns a Client. A zero policy is replaced by DefaultPolicy.
func NewClient(policy Policy, logger logging.Logger) *Client {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultPolicy().Attempts
	}
	return &Client{
		policy: policy,
		logger: logger.With(logging.Field{Key: "component", Value: "remote"}),
	}
}

// Policy returns the client's default policy.
func (c *Client) Policy() Policy { return c.policy }

// Do executes fn under op's policy. A nil return means success; otherwise the
// error is a *Error whose Kind is never KindTransient: transient failures are
// either retried away or escalated to KindFatal once attempts run out.
func (c *Client) Do(ctx context.Context, op Op, fn func(ctx context.Context) error) error {
	attempts := op.Attempts
	if attempts <= 0 {
		attempts = c.policy.Attempts
	}
	if op.Class == NonIdempotent {
		attempts = 1
	}
	delay := op.Delay
	if delay <= 0 {
		delay = c.policy.Delay
	}

	n := 0
	retryable := func(err error) bool {
		return ctx.Err() == nil && Classify(err) == KindTransient
	}
	err := Retry(ctx, op.Name, attempts, delay, retryable, func(ctx context.Context) error {
		n++
		callCtx := ctx
		if c.policy.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err != nil && retryable(err) && n < attempts {
			c.logger.Warn("transient provider failure, retrying",
				logging.Field{Key: "op", Value: op.Name},
				logging.Field{Key: "attempt", Value: n},
				logging.Field{Key: "max_attempts", Value: attempts},
				logging.Err(err))
		}
		return err
	})
	if err == nil {
		return nil
	}

	rerr := wrap(op.Name, n, err)
	if rerr.Kind == KindTransient {
		// Cancellation cut the loop short; the failure still leaves as Fatal.
		return Exhausted(op.Name, n, err)
	}
	return rerr
}

// Call is Do for operations that return a value.
func Call[T any](ctx context.Context, c *Client, op Op, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type stopError struct{ err error }

func (s *stopError) Error() string { return s.err.Error() }

// Retry runs fn up to attempts times with a fixed delay between attempts,
// for as long as retryable reports the returned error as retryable. When the
// attempts run out the last error is returned wrapped by Exhausted; any other
// error is returned unchanged.
func Retry(ctx context.Context, op string, attempts int, delay time.Duration, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	// go-retry's constant backoff rejects non-positive durations.
	if delay <= 0 {
		delay = time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	n := 0
	var last error
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		n++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if retryable(err) {
			last = err
			return retry.RetryableError(err)
		}
		return &stopError{err: err}
	})

	var stop *stopError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &stop):
		return stop.err
	case last != nil && errors.Is(err, last) && n >= attempts:
		return Exhausted(op, n, last)
	default:
		return err
	}
}
