package account

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gateway-fm/starknet-gatling/internal/rpc"
)

// Pool holds the accounts the setup orchestrator derives and the shooter
// runtime partitions work across (spec.md §4.C/§4.D). Round-robin work
// partitioning over Accounts is the caller's responsibility (internal/shooter);
// Pool's job is just parallel nonce initialisation and lookup by index.
type Pool struct {
	Accounts []*Account
	logger   *slog.Logger
}

// NewPool wraps an ordered slice of accounts, index order matching the
// deterministic salt derivation order from setup.
func NewPool(accounts []*Account, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{Accounts: accounts, logger: logger}
}

// ResyncAll refreshes every account's nonce from chain in parallel, bounded
// by maxConcurrent in-flight RPC calls.
func (p *Pool) ResyncAll(ctx context.Context, client rpc.Client, maxConcurrent int64) error {
	if maxConcurrent < 1 {
		maxConcurrent = 16
	}
	sem := semaphore.NewWeighted(maxConcurrent)
	g, gctx := errgroup.WithContext(ctx)

	for i, acc := range p.Accounts {
		i, acc := i, acc
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			if err := acc.Resync(gctx, client); err != nil {
				return fmt.Errorf("account %d (%s): %w", i, acc.Address.Hex(), err)
			}
			p.logger.Debug("account nonce resynced",
				slog.Int("index", i), slog.String("address", acc.Address.Hex()), slog.Uint64("nonce", acc.PeekNonce()))
			return nil
		})
	}
	return g.Wait()
}

// At returns the account at index i, wrapping around the pool size so
// round-robin partitioning never indexes out of range.
func (p *Pool) At(i int) *Account {
	return p.Accounts[i%len(p.Accounts)]
}

// Len returns the number of accounts in the pool.
func (p *Pool) Len() int {
	return len(p.Accounts)
}
