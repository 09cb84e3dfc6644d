package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSequenceGrowsAndCaps(t *testing.T) {
	p := Policy{Initial: 10 * time.Millisecond, Multiplier: 2, Max: 30 * time.Millisecond}
	next := p.Sequence()

	got := []time.Duration{next(), next(), next(), next()}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRetrySucceedsBeforeDeadline(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 1.5, Max: 5 * time.Millisecond}
	calls := 0
	ok, err := Retry(context.Background(), p, time.Second, func() (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if !ok {
		t.Fatalf("expected success")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryReturnsFalseOnDeadlineExceeded(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 1, Max: time.Millisecond}
	ok, err := Retry(context.Background(), p, 5*time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if ok {
		t.Fatalf("expected deadline exceeded, not success")
	}
}

func TestRetryPropagatesFnError(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 1, Max: time.Millisecond}
	sentinel := errors.New("boom")
	_, err := Retry(context.Background(), p, time.Second, func() (bool, error) {
		return false, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	p := Policy{Initial: 50 * time.Millisecond, Multiplier: 1, Max: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, p, time.Second, func() (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
