package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
)

// shooterState is the aggregator's exclusive, unsynchronised working state
// for one shooter; only the Aggregator's Run goroutine ever touches it.
type shooterState struct {
	name     string
	isRead   bool
	amount   uint64
	wallStart time.Time
	wallEnd   time.Time

	submitHist *Histogram
	verifyHist *Histogram

	submitOk       uint64
	submitErrKind  map[errkind.Kind]uint64
	verifyOk       uint64
	verifyErrKind  map[errkind.Kind]uint64
	readOk         uint64
	readErrKind    map[errkind.Kind]uint64

	blocks *BlockWindow
}

func newShooterState(name string, isRead bool, amount uint64, at time.Time) *shooterState {
	return &shooterState{
		name:          name,
		isRead:        isRead,
		amount:        amount,
		wallStart:     at,
		submitHist:    NewHistogram(),
		verifyHist:    NewHistogram(),
		submitErrKind: make(map[errkind.Kind]uint64),
		verifyErrKind: make(map[errkind.Kind]uint64),
		readErrKind:   make(map[errkind.Kind]uint64),
		blocks:        &BlockWindow{},
	}
}

// Aggregator is the sole owner of every shooterState; it is fed via a
// bounded channel per spec.md §4.E and must run in exactly one goroutine.
type Aggregator struct {
	logger  *slog.Logger
	order   []string
	states  map[string]*shooterState
	active  string // name of the shooter currently receiving block samples
}

// NewAggregator constructs an empty aggregator.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger, states: make(map[string]*shooterState)}
}

// Run consumes events until ch is closed or ctx is cancelled; on
// cancellation it first applies every event already buffered in ch, so
// events sent before the cancel are never lost. It is meant
// to be the aggregator's single reader goroutine; calling it from more than
// one goroutine breaks the single-writer invariant this package relies on
// for lock-free shooterState mutation.
func (a *Aggregator) Run(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					a.apply(ev)
				default:
					return
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.apply(ev)
		}
	}
}

func (a *Aggregator) apply(ev Event) {
	switch {
	case ev.Start != nil:
		st := newShooterState(ev.Start.Shooter, ev.Start.IsRead, ev.Start.Amount, ev.Start.At)
		a.states[ev.Start.Shooter] = st
		a.order = append(a.order, ev.Start.Shooter)
		a.active = ev.Start.Shooter

	case ev.Stop != nil:
		if st, ok := a.states[ev.Stop.Shooter]; ok {
			st.wallEnd = ev.Stop.At
		}
		if a.active == ev.Stop.Shooter {
			a.active = ""
		}

	case ev.Sample != nil:
		st, ok := a.states[ev.Sample.Shooter]
		if !ok {
			a.logger.Warn("sample for unknown shooter", slog.String("shooter", ev.Sample.Shooter))
			return
		}
		a.applySample(st, ev.Sample)

	case ev.Block != nil:
		if st, ok := a.states[a.active]; ok {
			st.blocks.Add(*ev.Block)
		}
	}
}

func (a *Aggregator) applySample(st *shooterState, s *RequestSample) {
	seconds := s.Elapsed.Seconds()
	switch s.Kind {
	case KindSubmit:
		st.submitHist.Add(seconds)
		if s.Ok() {
			st.submitOk++
		} else {
			st.submitErrKind[s.ErrKind()]++
		}
	case KindVerify:
		st.verifyHist.Add(seconds)
		if s.Ok() {
			st.verifyOk++
		} else {
			st.verifyErrKind[s.ErrKind()]++
		}
	case KindRead:
		if s.Ok() {
			st.readOk++
		} else {
			st.readErrKind[s.ErrKind()]++
		}
	}
}

// ShooterSnapshot is a point-in-time read of one shooter's accumulated
// statistics, safe to call once a shooter's Stop event has been applied.
type ShooterSnapshot struct {
	Name   string
	IsRead bool
	Amount uint64

	WallStart time.Time
	WallEnd   time.Time

	SubmitOkCount   uint64
	SubmitErrCount  map[errkind.Kind]uint64
	VerifyOkCount   uint64
	VerifyErrCount  map[errkind.Kind]uint64
	ReadOkCount     uint64
	ReadErrCount    map[errkind.Kind]uint64

	SubmitMean, SubmitMin, SubmitMax, SubmitP50, SubmitP95, SubmitP99 float64
	VerifyMean, VerifyMin, VerifyMax, VerifyP50, VerifyP95, VerifyP99 float64

	OfferedRate  float64
	AcceptedRate float64

	BlockTPSMean, BlockTPSMin, BlockTPSMax float64
	BlockStepsMean, BlockStepsMin, BlockStepsMax float64
	BlockGasMean, BlockGasMin, BlockGasMax float64

	TrailingNumBlocks                                     int
	TrailingTPSMean, TrailingTPSMin, TrailingTPSMax        float64
}

// Snapshot returns the accumulated statistics for one shooter, or ok=false
// if the shooter was never started.
func (a *Aggregator) Snapshot(name string, trailingNumBlocks int) (ShooterSnapshot, bool) {
	st, ok := a.states[name]
	if !ok {
		return ShooterSnapshot{}, false
	}
	return a.snapshotOf(st, trailingNumBlocks), true
}

// AllShooters returns every shooter's snapshot in the order it was started.
func (a *Aggregator) AllShooters(trailingNumBlocks int) []ShooterSnapshot {
	out := make([]ShooterSnapshot, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.snapshotOf(a.states[name], trailingNumBlocks))
	}
	return out
}

func (a *Aggregator) snapshotOf(st *shooterState, trailingNumBlocks int) ShooterSnapshot {
	wall := st.wallEnd.Sub(st.wallStart).Seconds()

	snap := ShooterSnapshot{
		Name:           st.name,
		IsRead:         st.isRead,
		Amount:         st.amount,
		WallStart:      st.wallStart,
		WallEnd:        st.wallEnd,
		SubmitOkCount:  st.submitOk,
		SubmitErrCount: copyKindMap(st.submitErrKind),
		VerifyOkCount:  st.verifyOk,
		VerifyErrCount: copyKindMap(st.verifyErrKind),
		ReadOkCount:    st.readOk,
		ReadErrCount:   copyKindMap(st.readErrKind),
	}

	snap.SubmitMean, _ = st.submitHist.Mean()
	snap.SubmitMin, snap.SubmitMax, _ = st.submitHist.MinMax()
	snap.SubmitP50, _ = st.submitHist.Quantile(0.50)
	snap.SubmitP95, _ = st.submitHist.Quantile(0.95)
	snap.SubmitP99, _ = st.submitHist.Quantile(0.99)

	snap.VerifyMean, _ = st.verifyHist.Mean()
	snap.VerifyMin, snap.VerifyMax, _ = st.verifyHist.MinMax()
	snap.VerifyP50, _ = st.verifyHist.Quantile(0.50)
	snap.VerifyP95, _ = st.verifyHist.Quantile(0.95)
	snap.VerifyP99, _ = st.verifyHist.Quantile(0.99)

	if wall > 0 {
		submitAttempts := st.submitOk + sumValues(st.submitErrKind)
		snap.OfferedRate = float64(submitAttempts) / wall
		snap.AcceptedRate = float64(st.verifyOk) / wall
	} else {
		snap.OfferedRate = notFinite()
		snap.AcceptedRate = notFinite()
	}

	snap.BlockTPSMean, snap.BlockTPSMin, snap.BlockTPSMax, _ = st.blocks.TPS()
	snap.BlockStepsMean, snap.BlockStepsMin, snap.BlockStepsMax, _ = st.blocks.StepsPerSecond()
	snap.BlockGasMean, snap.BlockGasMin, snap.BlockGasMax, _ = st.blocks.GasPerSecond()
	snap.TrailingTPSMean, snap.TrailingTPSMin, snap.TrailingTPSMax, snap.TrailingNumBlocks, _ = st.blocks.TrailingTPS(trailingNumBlocks)

	return snap
}

func copyKindMap(m map[errkind.Kind]uint64) map[errkind.Kind]uint64 {
	out := make(map[errkind.Kind]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sumValues(m map[errkind.Kind]uint64) uint64 {
	var total uint64
	for _, v := range m {
		total += v
	}
	return total
}

// notFinite returns a NaN sentinel for metrics undefined at zero wall time
// (spec.md's shoot=0 edge case); internal/report normalises these to JSON
// null rather than propagating NaN.
func notFinite() float64 {
	var zero float64
	return zero / zero
}
