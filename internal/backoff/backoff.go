// Package backoff implements the capped exponential backoff spec.md §4.D
// prescribes for verification polling (50ms initial, ×1.5, capped at 2s)
// and reused by the setup orchestrator's readiness gate.
package backoff

import (
	"context"
	"time"
)

// Policy is a capped exponential backoff schedule.
type Policy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// Verification is spec.md's example schedule for receipt polling.
func Verification() Policy {
	return Policy{Initial: 50 * time.Millisecond, Multiplier: 1.5, Max: 2 * time.Second}
}

// Setup is the readiness gate's schedule: slower and more patient, since it
// runs once per benchmark rather than once per submitted transaction.
func Setup() Policy {
	return Policy{Initial: 200 * time.Millisecond, Multiplier: 1.5, Max: 5 * time.Second}
}

// Sequence returns a stateful next-delay function starting at p.Initial and
// growing by p.Multiplier up to p.Max on each call.
func (p Policy) Sequence() func() time.Duration {
	current := p.Initial
	first := true
	return func() time.Duration {
		if first {
			first = false
			return current
		}
		next := time.Duration(float64(current) * p.Multiplier)
		if next > p.Max {
			next = p.Max
		}
		current = next
		return current
	}
}

// Wait blocks for d or until ctx is cancelled, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn repeatedly on schedule p until it returns true, the
// deadline elapses, or ctx is cancelled. It returns false on deadline
// exceeded without error, since callers (setup readiness, verification
// polling) treat that as a domain-specific Timeout, not a Go error.
func Retry(ctx context.Context, p Policy, deadline time.Duration, fn func() (bool, error)) (bool, error) {
	next := p.Sequence()
	start := time.Now()
	for {
		ok, err := fn()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Since(start) >= deadline {
			return false, nil
		}
		remaining := deadline - time.Since(start)
		delay := next()
		if delay > remaining {
			delay = remaining
		}
		if err := Wait(ctx, delay); err != nil {
			return false, err
		}
	}
}
