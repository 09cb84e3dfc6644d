// Package metrics implements the Metrics Aggregator (spec §4.E): a
// single-writer state machine fed by a bounded channel of samples from
// every shooter and the block watcher, producing per-shooter latency
// distributions, rates, and block-TPS statistics.
package metrics

import (
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
)

// SampleKind is the phase spec.md §3's RequestSample was recorded for.
type SampleKind int

const (
	KindSubmit SampleKind = iota
	KindVerify
	KindRead
)

func (k SampleKind) String() string {
	switch k {
	case KindSubmit:
		return "submit"
	case KindVerify:
		return "verify"
	case KindRead:
		return "read"
	default:
		return "unknown"
	}
}

// RequestSample is spec.md §3's per-request observation: created once,
// never mutated.
type RequestSample struct {
	Shooter string
	Kind    SampleKind
	Elapsed time.Duration
	// Err is nil for Ok outcomes; otherwise carries the errkind.Kind that
	// classifies the failure (Reverted for on-chain-but-failed verifies).
	Err error
}

// Ok reports whether the sample recorded a success.
func (s RequestSample) Ok() bool { return s.Err == nil }

// ErrKind extracts the sample's error classification, defaulting to
// errkind.Transport for an error that was never tagged with a Kind.
func (s RequestSample) ErrKind() errkind.Kind {
	if s.Err == nil {
		return ""
	}
	if k, ok := errkind.Of(s.Err); ok {
		return k
	}
	return errkind.Transport
}

// StartEvent marks the beginning of a shooter's active interval.
type StartEvent struct {
	Shooter string
	IsRead  bool
	Amount  uint64
	At      time.Time
}

// StopEvent marks the end of a shooter's active interval.
type StopEvent struct {
	Shooter string
	At      time.Time
}

// Event is the sum type carried on the aggregator's bounded input channel.
// Exactly one field is set.
type Event struct {
	Start  *StartEvent
	Stop   *StopEvent
	Sample *RequestSample
	Block  *BlockSample
}
