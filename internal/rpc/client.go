// Package rpc is the Facade component (spec §4.A): the sole path between
// the benchmarking core and a Starknet JSON-RPC node. Every other
// component depends on the Client interface, never on net/http directly,
// so setup, the shooter runtime and the block watcher can all be tested
// against Fake instead of a live node.
package rpc

import (
	"context"
	"encoding/json"

	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// Client is the JSON-RPC facade every other component depends on.
type Client interface {
	// Call makes a single JSON-RPC call and returns the raw result payload.
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// BatchCall makes multiple JSON-RPC calls and returns one response per
	// call, in order; used by the setup orchestrator's readiness gate and
	// the read shooter. HTTPClient sends each call as its own request.
	BatchCall(ctx context.Context, calls []BatchRequest) ([]BatchResponse, error)

	// AddInvoke submits a signed INVOKE transaction and returns its hash.
	AddInvoke(ctx context.Context, tx InvokeTransaction) (felt.Element, error)

	// AddDeclare submits a signed DECLARE transaction and returns its
	// transaction hash and the resulting class hash.
	AddDeclare(ctx context.Context, tx DeclareTransaction) (txHash, classHash felt.Element, err error)

	// AddDeployAccount submits a signed DEPLOY_ACCOUNT transaction and
	// returns its transaction hash and the resulting contract address.
	AddDeployAccount(ctx context.Context, tx DeployAccountTransaction) (txHash, address felt.Element, err error)

	// GetReceipt fetches a transaction receipt. A not-found transaction is
	// reported through Receipt.Pending, not an error.
	GetReceipt(ctx context.Context, txHash felt.Element) (*Receipt, error)

	// GetNonce fetches the current nonce of an account, per spec's
	// "read-current-nonce" primitive; account.Account.Resync uses it to
	// refresh an account's local nonce from the chain.
	GetNonce(ctx context.Context, address felt.Element) (uint64, error)

	// GetClassHashAt returns the class hash currently deployed at address.
	// The setup orchestrator currently detects already-declared classes
	// from the node's rejection message instead (see isAlreadyDeclared in
	// internal/setup), so this is not yet exercised by production code;
	// kept on the facade as the primitive that detection should move to.
	GetClassHashAt(ctx context.Context, address felt.Element) (felt.Element, error)

	// GetBlockWithReceipts fetches a block by number together with every
	// transaction's receipt, used by the block watcher for per-block TPS
	// and execution resource (steps, gas) metrics.
	GetBlockWithReceipts(ctx context.Context, blockNumber uint64) (*Block, error)

	// BlockNumber returns the current chain head.
	BlockNumber(ctx context.Context) (uint64, error)

	// EstimateFee estimates the fee of a not-yet-submitted invoke. Setup
	// and the shooter runtime currently bound max_fee with a generous
	// literal instead (setupMaxFee, config.Run.MaxFeeHexOrDefault) rather than
	// a live estimate; this stays on the facade as spec.md §4.A's
	// mandated primitive for real fee sizing.
	EstimateFee(ctx context.Context, tx InvokeTransaction) (Fee, error)

	// RawRequest issues an arbitrary JSON-RPC method, backing the
	// configured read-only benches (spec §4.F's "raw_request" shooter).
	RawRequest(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// SubscribeNewHeads opens a low-latency block subscription, an
	// alternative to polling for the block watcher. HTTPClient returns an
	// errkind.Config error when no websocket endpoint is configured; the
	// block watcher falls back to polling on any error from this call.
	SubscribeNewHeads(ctx context.Context) (<-chan BlockHeader, func() error, error)
}
