// Package shooter implements the Shooter Runtime (spec.md §4.D), the
// component that actually drives load: it partitions a requested amount of
// work across an account.Pool in round-robin order, submits each task
// through a bounded submit stage, and verifies each submission through an
// independently bounded verify stage, emitting metrics.Event samples for
// the aggregator throughout.
//
// Work partitioning gives account i the contiguous local sequence
// 0, 1, 2, ... within its own nonce range; a dedicated driver goroutine per
// account processes that sequence strictly in order, which is the account
// FIFO spec.md asks for without a separate per-account semaphore: a single
// goroutine can only do one thing at a time. Global submission concurrency
// is bounded across all accounts by a shared weighted semaphore, the same
// pattern the teacher's sender.Sender uses for its send slots.
package shooter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gateway-fm/starknet-gatling/internal/account"
	"github.com/gateway-fm/starknet-gatling/internal/backoff"
	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/internal/metrics"
	"github.com/gateway-fm/starknet-gatling/internal/rpc"
	"github.com/gateway-fm/starknet-gatling/internal/starkcurve"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// BuildFunc builds the calldata for one task against acc, given the task's
// position in that account's own local sequence (0-based, contiguous).
// Implementations are the built-in transfer/mint shooters in shooters.go.
type BuildFunc func(acc *account.Account, localIndex uint64) ([]felt.Element, error)

// Spec describes one shooter invocation: either a write workload (Build is
// set) or a read-only workload (ReadMethod is set).
type Spec struct {
	Name   string
	Amount uint64
	IsRead bool

	// Build constructs the calldata for a write shooter's task localIndex.
	Build BuildFunc

	// ReadMethod and ReadParams back a read-only bench: each of the Amount
	// requests calls ReadMethod with ReadParams[i % len(ReadParams)], or no
	// parameters at all when ReadParams is empty.
	ReadMethod string
	ReadParams [][]any
}

// Config is the runtime's concurrency and transaction-shape configuration,
// constant across every Spec it runs.
type Config struct {
	// Concurrency is the global in-flight submission bound C.
	Concurrency uint32
	// VerifyConcurrency is the verify-stage bound V; defaults to 4*Concurrency
	// per spec.md §4.D's "typically 4C" guidance when left at zero.
	VerifyConcurrency uint32
	// MaxWait is the per-transaction verification deadline.
	MaxWait time.Duration
	MaxFee  felt.Element
	// Version is the invoke transaction version literal ("0x1" or "0x3").
	Version string
	// ReadBatchSize bounds how many read requests are folded into a single
	// BatchCall.
	ReadBatchSize int
}

func (c Config) verifyConcurrency() int64 {
	if c.VerifyConcurrency > 0 {
		return int64(c.VerifyConcurrency)
	}
	return int64(c.Concurrency) * 4
}

func (c Config) readBatchSize() int {
	if c.ReadBatchSize > 0 {
		return c.ReadBatchSize
	}
	return 32
}

// Runtime drives one or more Spec runs against a fixed account pool.
type Runtime struct {
	client rpc.Client
	curve  starkcurve.Curve
	pool   *account.Pool
	cfg    Config
	events chan<- metrics.Event
	logger *slog.Logger
}

// New constructs a Runtime. events is the aggregator's input channel;
// Run blocks while sending to it, so the caller must keep it drained.
func New(client rpc.Client, curve starkcurve.Curve, pool *account.Pool, cfg Config, events chan<- metrics.Event, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{client: client, curve: curve, pool: pool, cfg: cfg, events: events, logger: logger}
}

// Run executes spec to completion (or until ctx is cancelled), emitting a
// Start event, every Submit/Verify sample, and a matching Stop event.
// It never returns an error for per-task failures — those are samples, not
// faults — only for a nil events channel, which is a caller bug.
func (r *Runtime) Run(ctx context.Context, spec Spec) error {
	if r.events == nil {
		return fmt.Errorf("shooter: nil events channel")
	}

	wallStart := time.Now()
	r.events <- metrics.Event{Start: &metrics.StartEvent{
		Shooter: spec.Name,
		IsRead:  spec.IsRead,
		Amount:  spec.Amount,
		At:      wallStart,
	}}
	defer func() {
		r.events <- metrics.Event{Stop: &metrics.StopEvent{Shooter: spec.Name, At: time.Now()}}
	}()

	if spec.Amount == 0 {
		return nil
	}
	if spec.IsRead {
		r.runRead(ctx, spec)
		return nil
	}
	r.runWrite(ctx, spec)
	return nil
}

func (r *Runtime) emit(shooter string, kind metrics.SampleKind, elapsed time.Duration, err error) {
	r.events <- metrics.Event{Sample: &metrics.RequestSample{
		Shooter: shooter,
		Kind:    kind,
		Elapsed: elapsed,
		Err:     err,
	}}
}

// runWrite partitions spec.Amount tasks round-robin across the pool and
// drives one driver goroutine per account, each processing its own
// contiguous local sequence strictly in order.
func (r *Runtime) runWrite(ctx context.Context, spec Spec) {
	n := r.pool.Len()
	submitSem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	verifySem := semaphore.NewWeighted(r.cfg.verifyConcurrency())

	var verifyWG sync.WaitGroup
	var driverWG sync.WaitGroup

	accountsInUse := n
	if uint64(accountsInUse) > spec.Amount {
		accountsInUse = int(spec.Amount)
	}

	for accIdx := 0; accIdx < accountsInUse; accIdx++ {
		driverWG.Add(1)
		go func(accIdx int) {
			defer driverWG.Done()
			acc := r.pool.At(accIdx)
			local := uint64(0)
			for t := uint64(accIdx); t < spec.Amount; t += uint64(n) {
				if ctx.Err() != nil {
					return
				}
				r.submitAndVerify(ctx, spec, acc, local, submitSem, verifySem, &verifyWG)
				local++
			}
		}(accIdx)
	}

	driverWG.Wait()
	verifyWG.Wait()
}

func (r *Runtime) submitAndVerify(ctx context.Context, spec Spec, acc *account.Account, localIndex uint64, submitSem, verifySem *semaphore.Weighted, verifyWG *sync.WaitGroup) {
	nonce := acc.ReserveNonce()

	calldata, err := spec.Build(acc, localIndex)
	if err != nil {
		nonce.Rollback()
		r.emit(spec.Name, metrics.KindSubmit, 0, errkind.New(errkind.Config, fmt.Errorf("building calldata: %w", err)))
		return
	}
	tx, err := acc.SignInvoke(r.curve, r.cfg.Version, calldata, r.cfg.MaxFee, nonce.Value())
	if err != nil {
		nonce.Rollback()
		r.emit(spec.Name, metrics.KindSubmit, 0, err)
		return
	}

	if err := submitSem.Acquire(ctx, 1); err != nil {
		nonce.Rollback()
		r.emit(spec.Name, metrics.KindSubmit, 0, errkind.New(errkind.Cancelled, err))
		return
	}
	t0 := time.Now()
	txHash, err := r.client.AddInvoke(ctx, tx)
	elapsed := time.Since(t0)
	submitSem.Release(1)

	if err != nil {
		nonce.Rollback()
		r.emit(spec.Name, metrics.KindSubmit, elapsed, classifyCancellation(ctx, err))
		return
	}
	nonce.Commit()
	r.emit(spec.Name, metrics.KindSubmit, elapsed, nil)

	// Acquire the verify permit here, on the driver's own goroutine, before
	// handing off to a verify goroutine. A saturated verify stage (on-chain
	// inclusion takes seconds, submission takes milliseconds) then blocks
	// the driver from submitting its next task, rather than letting
	// verify goroutines queue up unbounded behind verifySem.
	if err := verifySem.Acquire(ctx, 1); err != nil {
		r.emit(spec.Name, metrics.KindVerify, 0, errkind.New(errkind.Cancelled, err))
		return
	}

	verifyWG.Add(1)
	go func() {
		defer verifyWG.Done()
		defer verifySem.Release(1)
		r.verify(ctx, spec.Name, txHash, t0)
	}()
}

// verify polls for a terminal receipt using spec.md's verification backoff
// schedule, recording exactly one Verify sample however the poll ends:
// accepted, reverted, rejected, timed out, or cancelled.
func (r *Runtime) verify(ctx context.Context, shooterName string, txHash felt.Element, submittedAt time.Time) {
	accepted, err := backoff.Retry(ctx, backoff.Verification(), r.cfg.MaxWait, func() (bool, error) {
		receipt, err := r.client.GetReceipt(ctx, txHash)
		if err != nil {
			return false, err
		}
		if receipt.Pending() {
			return false, nil
		}
		if receipt.FinalityStatus == rpc.FinalityRejected {
			return false, errkind.New(errkind.RpcRejected, fmt.Errorf("tx %s rejected", txHash.Hex()))
		}
		if receipt.ExecutionStatus == rpc.ExecutionReverted {
			return false, errkind.New(errkind.Reverted, fmt.Errorf("tx %s reverted: %s", txHash.Hex(), receipt.RevertReason))
		}
		return true, nil
	})
	elapsed := time.Since(submittedAt)

	if err != nil {
		r.emit(shooterName, metrics.KindVerify, elapsed, classifyCancellation(ctx, err))
		return
	}
	if !accepted {
		r.emit(shooterName, metrics.KindVerify, elapsed, errkind.New(errkind.Timeout, fmt.Errorf("tx %s: not accepted within %s", txHash.Hex(), r.cfg.MaxWait)))
		return
	}
	r.emit(shooterName, metrics.KindVerify, elapsed, nil)
}

// classifyCancellation tags err as errkind.Cancelled when it stems from the
// caller's own context, distinct from a transport-level or RPC-level
// failure that happens to coincide with cancellation.
func classifyCancellation(ctx context.Context, err error) error {
	if _, tagged := errkind.Of(err); tagged {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errkind.New(errkind.Cancelled, err)
	}
	return err
}

// runRead drives a read-only bench, folding requests into BatchCall round
// trips bounded by cfg.Concurrency batches in flight at once.
func (r *Runtime) runRead(ctx context.Context, spec Spec) {
	batchSize := uint64(r.cfg.readBatchSize())
	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	var wg sync.WaitGroup

	for start := uint64(0); start < spec.Amount; start += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + batchSize
		if end > spec.Amount {
			end = spec.Amount
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			for i := start; i < end; i++ {
				r.emit(spec.Name, metrics.KindRead, 0, errkind.New(errkind.Cancelled, err))
			}
			break
		}

		wg.Add(1)
		go func(start, end uint64) {
			defer wg.Done()
			defer sem.Release(1)
			r.runReadBatch(ctx, spec, start, end)
		}(start, end)
	}

	wg.Wait()
}

func (r *Runtime) runReadBatch(ctx context.Context, spec Spec, start, end uint64) {
	calls := make([]rpc.BatchRequest, 0, end-start)
	for i := start; i < end; i++ {
		var params []any
		if len(spec.ReadParams) > 0 {
			params = spec.ReadParams[i%uint64(len(spec.ReadParams))]
		}
		calls = append(calls, rpc.BatchRequest{Method: spec.ReadMethod, Params: params})
	}

	t0 := time.Now()
	results, err := r.client.BatchCall(ctx, calls)
	elapsed := time.Since(t0)

	if err != nil {
		tagged := classifyCancellation(ctx, err)
		for range calls {
			r.emit(spec.Name, metrics.KindRead, elapsed, tagged)
		}
		return
	}
	for _, res := range results {
		r.emit(spec.Name, metrics.KindRead, elapsed, res.Err)
	}
}
