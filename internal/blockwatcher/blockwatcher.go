// Package blockwatcher implements the Block Watcher (spec.md §4.F): a
// single task that observes new blocks on the target chain and feeds a
// BlockSample into the metrics aggregator for each one, in strictly
// increasing block-number order. It runs for the lifetime of the whole
// benchmark (started before the first shooter, stopped after the last),
// and escalates to a fatal cancellation if it cannot make progress for
// longer than its configured timeout.
package blockwatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/internal/metrics"
	"github.com/gateway-fm/starknet-gatling/internal/rpc"
)

// Config configures a Watcher.
type Config struct {
	// PollInterval is used whenever the subscription mode is unavailable.
	PollInterval time.Duration
	// StallTimeout is how long the watcher tolerates making no progress
	// (consecutive RPC errors in polling mode; no new head in subscription
	// mode) before escalating fatally.
	StallTimeout time.Duration
}

// Watcher polls or subscribes for new blocks and reports them as
// metrics.BlockSample events.
type Watcher struct {
	client rpc.Client
	cfg    Config
	events chan<- metrics.Event
	logger *slog.Logger
}

// New constructs a Watcher. events is the aggregator's input channel.
func New(client rpc.Client, cfg Config, events chan<- metrics.Event, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{client: client, cfg: cfg, events: events, logger: logger}
}

// Run observes blocks until ctx is cancelled, preferring a websocket
// subscription and falling back to polling when none is configured or the
// dial fails. It returns a non-nil error only on fatal stall escalation;
// ctx cancellation returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	heads, closeSub, err := w.client.SubscribeNewHeads(ctx)
	if err == nil {
		defer closeSub()
		return w.runSubscribed(ctx, heads)
	}
	w.logger.Debug("block watcher falling back to polling", slog.String("reason", err.Error()))
	return w.runPolling(ctx)
}

func (w *Watcher) runSubscribed(ctx context.Context, heads <-chan rpc.BlockHeader) error {
	var lastSeen uint64
	haveSeen := false
	stallDeadline := time.NewTimer(w.cfg.StallTimeout)
	defer stallDeadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stallDeadline.C:
			return errkind.New(errkind.Timeout, fmt.Errorf("block watcher: no new head for %s", w.cfg.StallTimeout))
		case head, ok := <-heads:
			if !ok {
				return w.runPolling(ctx)
			}
			if haveSeen && head.BlockNumber <= lastSeen {
				continue
			}
			if err := w.emitRange(ctx, lastSeen, head.BlockNumber, haveSeen); err != nil {
				w.logger.Debug("block watcher: fetching block body failed", slog.String("error", err.Error()))
				continue
			}
			lastSeen = head.BlockNumber
			haveSeen = true
			resetTimer(stallDeadline, w.cfg.StallTimeout)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	var lastSeen uint64
	haveSeen := false
	var firstFailure time.Time

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			head, err := w.client.BlockNumber(ctx)
			if err != nil {
				if firstFailure.IsZero() {
					firstFailure = time.Now()
				} else if time.Since(firstFailure) > w.cfg.StallTimeout {
					return errkind.New(errkind.Timeout, fmt.Errorf("block watcher: stalled for %s: %w", w.cfg.StallTimeout, err))
				}
				w.logger.Debug("block watcher: poll failed, retrying silently", slog.String("error", err.Error()))
				continue
			}
			firstFailure = time.Time{}

			if haveSeen && head <= lastSeen {
				continue
			}
			if err := w.emitRange(ctx, lastSeen, head, haveSeen); err != nil {
				w.logger.Debug("block watcher: fetching block body failed", slog.String("error", err.Error()))
				continue
			}
			lastSeen = head
			haveSeen = true
		}
	}
}

// emitRange fetches and emits every block from (lastSeen, upTo] — or just
// upTo, the first time through, since there is no prior block to resume
// from — preserving spec.md's strictly-increasing-block-number guarantee
// even when the watcher's poll skips over several blocks at once.
func (w *Watcher) emitRange(ctx context.Context, lastSeen, upTo uint64, haveSeen bool) error {
	start := upTo
	if haveSeen {
		start = lastSeen + 1
	}
	for n := start; n <= upTo; n++ {
		block, err := w.client.GetBlockWithReceipts(ctx, n)
		if err != nil {
			return err
		}
		steps := block.Steps
		w.events <- metrics.Event{Block: &metrics.BlockSample{
			BlockNumber: block.BlockNumber,
			TxCount:     uint32(len(block.TxHashes)),
			Timestamp:   block.Timestamp,
			L1GasPrice:  block.L1GasPrice,
			Steps:       &steps,
		}}
	}
	return nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
