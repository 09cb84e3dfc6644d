package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
)

func TestAggregatorSmallestRun(t *testing.T) {
	agg := NewAggregator(nil)
	ch := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, ch)
		close(done)
	}()

	start := time.Now()
	ch <- Event{Start: &StartEvent{Shooter: "transfer", Amount: 1, At: start}}
	ch <- Event{Sample: &RequestSample{Shooter: "transfer", Kind: KindSubmit, Elapsed: 5 * time.Millisecond}}
	ch <- Event{Sample: &RequestSample{Shooter: "transfer", Kind: KindVerify, Elapsed: 50 * time.Millisecond}}
	ch <- Event{Stop: &StopEvent{Shooter: "transfer", At: start.Add(time.Second)}}
	cancel()
	<-done

	snap, ok := agg.Snapshot("transfer", 4)
	if !ok {
		t.Fatalf("expected a snapshot for transfer")
	}
	if snap.SubmitOkCount != 1 || snap.VerifyOkCount != 1 {
		t.Fatalf("expected exactly one submit-ok and one verify-ok, got %+v", snap)
	}
	if snap.OfferedRate != snap.AcceptedRate {
		t.Fatalf("expected offered_rate == accepted_rate for the smallest run, got %v vs %v", snap.OfferedRate, snap.AcceptedRate)
	}
}

func TestAggregatorZeroShootHasNoDivisionByZero(t *testing.T) {
	agg := NewAggregator(nil)
	ch := make(chan Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, ch)
		close(done)
	}()

	now := time.Now()
	ch <- Event{Start: &StartEvent{Shooter: "mint", Amount: 0, At: now}}
	ch <- Event{Stop: &StopEvent{Shooter: "mint", At: now}}
	cancel()
	<-done

	snap, ok := agg.Snapshot("mint", 4)
	if !ok {
		t.Fatalf("expected a snapshot for mint")
	}
	if snap.SubmitOkCount != 0 {
		t.Fatalf("expected zero submissions")
	}
	if !isNotFinite(snap.OfferedRate) {
		t.Fatalf("expected offered_rate to be non-finite at zero wall time, got %v", snap.OfferedRate)
	}
}

func TestAggregatorRecordsRevertsSeparatelyFromTimeouts(t *testing.T) {
	agg := NewAggregator(nil)
	ch := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, ch)
		close(done)
	}()

	now := time.Now()
	ch <- Event{Start: &StartEvent{Shooter: "transfer", Amount: 2, At: now}}
	ch <- Event{Sample: &RequestSample{Shooter: "transfer", Kind: KindVerify, Err: errkind.New(errkind.Reverted, nil)}}
	ch <- Event{Sample: &RequestSample{Shooter: "transfer", Kind: KindVerify, Err: errkind.New(errkind.Timeout, nil)}}
	ch <- Event{Stop: &StopEvent{Shooter: "transfer", At: now.Add(time.Second)}}
	cancel()
	<-done

	snap, _ := agg.Snapshot("transfer", 4)
	if snap.VerifyErrCount[errkind.Reverted] != 1 {
		t.Fatalf("expected one reverted verify sample")
	}
	if snap.VerifyErrCount[errkind.Timeout] != 1 {
		t.Fatalf("expected one timed-out verify sample")
	}
}

func TestAggregatorAttributesBlocksToActiveShooter(t *testing.T) {
	agg := NewAggregator(nil)
	ch := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, ch)
		close(done)
	}()

	now := time.Now()
	ch <- Event{Start: &StartEvent{Shooter: "transfer", Amount: 1, At: now}}
	ch <- Event{Block: &BlockSample{BlockNumber: 1, TxCount: 5, Timestamp: 1000}}
	ch <- Event{Block: &BlockSample{BlockNumber: 2, TxCount: 5, Timestamp: 1006}}
	ch <- Event{Stop: &StopEvent{Shooter: "transfer", At: now}}
	cancel()
	<-done

	snap, _ := agg.Snapshot("transfer", 4)
	if snap.TrailingNumBlocks != 1 {
		t.Fatalf("expected one usable tps point from two blocks, got %d", snap.TrailingNumBlocks)
	}
}

func isNotFinite(v float64) bool {
	return v != v // NaN never equals itself
}
