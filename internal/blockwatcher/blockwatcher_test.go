package blockwatcher

import (
	"context"
	"testing"
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/metrics"
	"github.com/gateway-fm/starknet-gatling/internal/rpc"
)

func TestWatcherEmitsBlocksInOrderViaSubscription(t *testing.T) {
	fake := rpc.NewFake()
	events := make(chan metrics.Event, 64)
	w := New(fake, Config{PollInterval: 50 * time.Millisecond, StallTimeout: 2 * time.Second}, events, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	fake.AdvanceBlock(1000)
	fake.AdvanceBlock(1010)
	fake.AdvanceBlock(1020)

	var seen []uint64
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case ev := <-events:
			if ev.Block != nil {
				seen = append(seen, ev.Block.BlockNumber)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for block samples, got %v", seen)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("expected strictly increasing block numbers, got %v", seen)
		}
	}
}

func TestWatcherStallEscalatesFatally(t *testing.T) {
	fake := rpc.NewFake()
	events := make(chan metrics.Event, 8)
	w := New(fake, Config{PollInterval: 20 * time.Millisecond, StallTimeout: 80 * time.Millisecond}, events, nil)

	err := w.Run(context.Background())
	if err == nil {
		t.Fatalf("expected a fatal stall error when no head ever arrives")
	}
}
