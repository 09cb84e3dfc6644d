package shooter

import (
	"context"
	"testing"
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/account"
	"github.com/gateway-fm/starknet-gatling/internal/metrics"
	"github.com/gateway-fm/starknet-gatling/internal/rpc"
	"github.com/gateway-fm/starknet-gatling/internal/starkcurve"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// sealingFake auto-advances a block after every accepted invoke, so
// verification's very first poll always finds a terminal receipt.
type sealingFake struct {
	*rpc.Fake
}

func (f *sealingFake) AddInvoke(ctx context.Context, tx rpc.InvokeTransaction) (felt.Element, error) {
	h, err := f.Fake.AddInvoke(ctx, tx)
	if err == nil {
		f.Fake.AdvanceBlock(uint64(time.Now().Unix()))
	}
	return h, err
}

// neverSealingFake accepts every invoke but never advances a block, so
// receipts stay pending forever — used to exercise the verify timeout path.
type neverSealingFake struct {
	*rpc.Fake
}

// batchingFake answers BatchCall by fanning each call out to RawRequest,
// since rpc.Fake's own BatchCall is deliberately unsupported.
type batchingFake struct {
	*sealingFake
}

func (f *batchingFake) BatchCall(ctx context.Context, calls []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
	out := make([]rpc.BatchResponse, len(calls))
	for i, c := range calls {
		_, err := f.RawRequest(ctx, c.Method, c.Params)
		out[i] = rpc.BatchResponse{Err: err}
	}
	return out, nil
}

func newPool(t *testing.T, curve starkcurve.Curve, n int) *account.Pool {
	t.Helper()
	accounts := make([]*account.Account, n)
	for i := range accounts {
		signingKey := felt.FromUint64(uint64(100 + i))
		address := felt.FromUint64(uint64(200 + i))
		accounts[i] = account.New(curve, address, signingKey, felt.Selector("SN_GOERLI"), false)
	}
	return account.NewPool(accounts, nil)
}

func fixedBuilder() BuildFunc {
	return func(acc *account.Account, localIndex uint64) ([]felt.Element, error) {
		return []felt.Element{felt.FromUint64(localIndex)}, nil
	}
}

func drain(ch chan metrics.Event) []metrics.Event {
	close(ch)
	var out []metrics.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRuntimeSmallestRun(t *testing.T) {
	curve := starkcurve.NewReference()
	pool := newPool(t, curve, 1)
	client := &sealingFake{Fake: rpc.NewFake()}

	events := make(chan metrics.Event, 16)
	rt := New(client, curve, pool, Config{Concurrency: 1, MaxWait: time.Second, Version: "0x1", MaxFee: felt.FromUint64(1)}, events, nil)

	if err := rt.Run(context.Background(), Spec{Name: "transfer", Amount: 1, Build: fixedBuilder()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := drain(events)
	var submitOk, verifyOk int
	for _, ev := range evs {
		if ev.Sample == nil {
			continue
		}
		switch ev.Sample.Kind {
		case metrics.KindSubmit:
			if ev.Sample.Ok() {
				submitOk++
			}
		case metrics.KindVerify:
			if ev.Sample.Ok() {
				verifyOk++
			}
		}
	}
	if submitOk != 1 || verifyOk != 1 {
		t.Fatalf("expected exactly one submit-ok and one verify-ok, got submitOk=%d verifyOk=%d", submitOk, verifyOk)
	}
}

func TestRuntimeNonceContentionStaysOrdered(t *testing.T) {
	curve := starkcurve.NewReference()
	pool := newPool(t, curve, 1)
	client := &sealingFake{Fake: rpc.NewFake()}

	events := make(chan metrics.Event, 256)
	rt := New(client, curve, pool, Config{Concurrency: 5, MaxWait: time.Second, Version: "0x1", MaxFee: felt.FromUint64(1)}, events, nil)

	if err := rt.Run(context.Background(), Spec{Name: "transfer", Amount: 10, Build: fixedBuilder()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := drain(events)
	var submitOk, submitErr int
	for _, ev := range evs {
		if ev.Sample == nil || ev.Sample.Kind != metrics.KindSubmit {
			continue
		}
		if ev.Sample.Ok() {
			submitOk++
		} else {
			submitErr++
		}
	}
	if submitOk != 10 {
		t.Fatalf("expected 10 submit-ok samples, got %d (submit-err=%d)", submitOk, submitErr)
	}
	if submitErr != 0 {
		t.Fatalf("expected no nonce-ordering errors, got %d", submitErr)
	}
}

func TestRuntimeTimeoutSurfacing(t *testing.T) {
	curve := starkcurve.NewReference()
	pool := newPool(t, curve, 1)
	client := &neverSealingFake{Fake: rpc.NewFake()}

	events := make(chan metrics.Event, 64)
	rt := New(client, curve, pool, Config{Concurrency: 2, MaxWait: 150 * time.Millisecond, Version: "0x1", MaxFee: felt.FromUint64(1)}, events, nil)

	if err := rt.Run(context.Background(), Spec{Name: "transfer", Amount: 3, Build: fixedBuilder()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := drain(events)
	var submitOk, verifyTimeout int
	for _, ev := range evs {
		if ev.Sample == nil {
			continue
		}
		if ev.Sample.Kind == metrics.KindSubmit && ev.Sample.Ok() {
			submitOk++
		}
		if ev.Sample.Kind == metrics.KindVerify && !ev.Sample.Ok() {
			verifyTimeout++
		}
	}
	if submitOk != 3 {
		t.Fatalf("expected 3 submit-ok, got %d", submitOk)
	}
	if verifyTimeout != 3 {
		t.Fatalf("expected 3 verify-timeout samples, got %d", verifyTimeout)
	}
}

func TestRuntimeZeroAmountHasNoDivisionByZero(t *testing.T) {
	curve := starkcurve.NewReference()
	pool := newPool(t, curve, 1)
	client := &sealingFake{Fake: rpc.NewFake()}

	events := make(chan metrics.Event, 4)
	rt := New(client, curve, pool, Config{Concurrency: 1, MaxWait: time.Second, Version: "0x1", MaxFee: felt.FromUint64(1)}, events, nil)

	if err := rt.Run(context.Background(), Spec{Name: "transfer", Amount: 0, Build: fixedBuilder()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := drain(events)
	if len(evs) != 2 || evs[0].Start == nil || evs[1].Stop == nil {
		t.Fatalf("expected exactly Start then Stop for a zero-amount shooter, got %+v", evs)
	}
}

func TestRuntimeConcurrencyGreaterThanShootSpawnsOnlyShootTasks(t *testing.T) {
	curve := starkcurve.NewReference()
	pool := newPool(t, curve, 2)
	client := &sealingFake{Fake: rpc.NewFake()}

	events := make(chan metrics.Event, 64)
	rt := New(client, curve, pool, Config{Concurrency: 50, MaxWait: time.Second, Version: "0x1", MaxFee: felt.FromUint64(1)}, events, nil)

	if err := rt.Run(context.Background(), Spec{Name: "transfer", Amount: 3, Build: fixedBuilder()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := drain(events)
	var submitSamples int
	for _, ev := range evs {
		if ev.Sample != nil && ev.Sample.Kind == metrics.KindSubmit {
			submitSamples++
		}
	}
	if submitSamples != 3 {
		t.Fatalf("expected exactly 3 submit samples, got %d", submitSamples)
	}
}

func TestRuntimeReadShooterBatchesOverClient(t *testing.T) {
	curve := starkcurve.NewReference()
	pool := newPool(t, curve, 1)
	client := &batchingFake{sealingFake: &sealingFake{Fake: rpc.NewFake()}}

	events := make(chan metrics.Event, 64)
	rt := New(client, curve, pool, Config{Concurrency: 4, ReadBatchSize: 2}, events, nil)

	spec := Spec{Name: "read_nonce", Amount: 5, IsRead: true, ReadMethod: "starknet_blockNumber"}
	if err := rt.Run(context.Background(), spec); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := drain(events)
	var readOk int
	for _, ev := range evs {
		if ev.Sample != nil && ev.Sample.Kind == metrics.KindRead && ev.Sample.Ok() {
			readOk++
		}
	}
	if readOk != 5 {
		t.Fatalf("expected 5 read-ok samples, got %d", readOk)
	}
}
