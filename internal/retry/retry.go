// Package retry runs an operation with bounded attempts and exponential
// backoff. Waits between attempts end early when the context is cancelled.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultJitter      = 0.25
)

// Policy is an immutable retry configuration. It is safe for concurrent use
// since all fields are read-only after construction.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	retryable   func(error) bool
}

// NewPolicy builds a policy from cfg, filling unset fields with defaults.
// A nil cfg yields the default policy.
func NewPolicy(cfg *transfertypes.RetryPolicy) *Policy {
	p := &Policy{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		jitter:      DefaultJitter,
		retryable:   IsRetryable,
	}
	if cfg == nil {
		return p
	}

	if cfg.MaxAttempts > 0 {
		p.maxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		p.baseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.maxDelay = cfg.MaxDelay
	}
	switch {
	case cfg.Jitter < 0:
		p.jitter = 0
	case cfg.Jitter > 0 && cfg.Jitter <= 1:
		p.jitter = cfg.Jitter
	}
	if cfg.Retryable != nil {
		p.retryable = cfg.Retryable
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	return p
}

// MaxAttempts returns the attempt bound, including the first attempt.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// RetryDelay returns the wait after the given failed attempt:
// baseDelay * 2^(attempt-1), +/- jitter, capped at maxDelay.
func (p *Policy) RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := math.Pow(2, float64(attempt-1))
	if exp > float64(math.MaxInt64)/float64(p.baseDelay) {
		return p.maxDelay
	}
	delay := time.Duration(exp) * p.baseDelay

	jitterRange := int64(float64(delay) * p.jitter)
	if jitterRange > 0 {
		delay += time.Duration(rand.Int63n(2*jitterRange) - jitterRange)
	}

	// Cap at maximum delay (after adding jitter)
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// IsErrorRetryable reports whether err should be retried under this policy.
// Cancellation is never retried, whatever the predicate says.
func (p *Policy) IsErrorRetryable(err error) bool {
	if err == nil || transfererrors.IsCancelled(err) {
		return false
	}
	return p.retryable(err)
}

// Recorder observes every attempt.
type Recorder interface {
	RecordAttempt(attempt int, err error)
}

// Do calls op until it succeeds, fails with a non-retryable error or runs
// out of attempts. It returns nil, the last error, or a CancelledError when
// ctx ends before or between attempts.
func Do(ctx context.Context, p *Policy, rec Recorder, op func(context.Context) error) error {
	if p == nil {
		p = NewPolicy(nil)
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}

		err := op(ctx)
		if rec != nil {
			rec.RecordAttempt(attempt, err)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		if attempt >= p.maxAttempts || !p.IsErrorRetryable(err) {
			return err
		}

		if err := wait(ctx, p.RetryDelay(attempt)); err != nil {
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return cancelled(ctx)
	}
}

func cancelled(ctx context.Context) error {
	return transfererrors.NewCancelledError(context.Cause(ctx))
}
