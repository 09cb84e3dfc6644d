package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// Fake is an in-memory Client simulating a single-sequencer chain: every
// added transaction is immediately ACCEPTED_ON_L2 in the next block
// produced by AdvanceBlock. It exists so setup, the shooter runtime and
// the block watcher can be tested without a live Starknet node.
type Fake struct {
	mu sync.Mutex

	nonces     map[string]uint64
	classHash  map[string]felt.Element
	receipts   map[string]*Receipt
	pending    []felt.Element
	blocks     []*Block
	nextTxSeq  uint64
	headers    chan BlockHeader

	// RejectAfter, when non-zero, makes every AddInvoke call after the
	// first RejectAfter return an RPC rejection, for testing retry/backoff behaviour.
	RejectAfter  int
	invokeCalls  int
	RevertEveryN int // when > 0, every Nth accepted tx reverts instead of succeeding
}

// NewFake builds an empty Fake chain at block 0.
func NewFake() *Fake {
	return &Fake{
		nonces:    make(map[string]uint64),
		classHash: make(map[string]felt.Element),
		receipts:  make(map[string]*Receipt),
		headers:   make(chan BlockHeader, 64),
	}
}

// SetNonce seeds an account's current nonce, used by setup tests.
func (f *Fake) SetNonce(address felt.Element, nonce uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[address.Hex()] = nonce
}

// SetClassHash seeds a pre-declared class at address, used by setup tests
// exercising the "already declared" detection path.
func (f *Fake) SetClassHash(address, classHash felt.Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classHash[address.Hex()] = classHash
}

// AdvanceBlock seals every currently pending transaction into a new block
// and returns its number.
func (f *Fake) AdvanceBlock(timestamp uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	number := uint64(len(f.blocks))
	hashes := append([]felt.Element(nil), f.pending...)
	for _, h := range hashes {
		r := f.receipts[h.Hex()]
		r.FinalityStatus = FinalityAcceptedOnL2
		r.BlockNumber = number
	}
	f.blocks = append(f.blocks, &Block{BlockNumber: number, Timestamp: timestamp, TxHashes: hashes, L1GasPrice: 1})
	f.pending = nil

	select {
	case f.headers <- BlockHeader{BlockNumber: number, Timestamp: timestamp}:
	default:
	}
	return number
}

func (f *Fake) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return nil, errkind.New(errkind.Transport, fmt.Errorf("fake: raw Call not supported for %q", method))
}

func (f *Fake) BatchCall(ctx context.Context, calls []BatchRequest) ([]BatchResponse, error) {
	out := make([]BatchResponse, len(calls))
	for i := range calls {
		out[i] = BatchResponse{Err: errkind.New(errkind.Transport, fmt.Errorf("fake: batch call not supported"))}
	}
	return out, nil
}

func (f *Fake) AddInvoke(ctx context.Context, tx InvokeTransaction) (felt.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.invokeCalls++
	if f.RejectAfter > 0 && f.invokeCalls > f.RejectAfter {
		return felt.Element{}, errkind.New(errkind.RpcRejected, fmt.Errorf("fake: simulated rejection"))
	}
	if current := f.nonces[tx.SenderAddress.Hex()]; tx.Nonce != current {
		return felt.Element{}, errkind.New(errkind.RpcRejected, fmt.Errorf("fake: nonce mismatch: have %d want %d", tx.Nonce, current))
	}
	f.nonces[tx.SenderAddress.Hex()] = tx.Nonce + 1

	txHash := felt.FromUint64(f.nextTxSeq)
	f.nextTxSeq++

	execStatus := ExecutionSucceeded
	if f.RevertEveryN > 0 && int(f.nextTxSeq)%f.RevertEveryN == 0 {
		execStatus = ExecutionReverted
	}
	f.receipts[txHash.Hex()] = &Receipt{
		TransactionHash: txHash,
		FinalityStatus:  FinalityReceived,
		ExecutionStatus: execStatus,
		ActualFee:       tx.MaxFee,
	}
	f.pending = append(f.pending, txHash)
	return txHash, nil
}

func (f *Fake) AddDeclare(ctx context.Context, tx DeclareTransaction) (txHash, classHash felt.Element, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if current := f.nonces[tx.SenderAddress.Hex()]; tx.Nonce != current {
		return felt.Element{}, felt.Element{}, errkind.New(errkind.RpcRejected, fmt.Errorf("fake: nonce mismatch: have %d want %d", tx.Nonce, current))
	}
	f.nonces[tx.SenderAddress.Hex()] = tx.Nonce + 1

	txHash = felt.FromUint64(f.nextTxSeq)
	f.nextTxSeq++
	f.receipts[txHash.Hex()] = &Receipt{TransactionHash: txHash, FinalityStatus: FinalityReceived, ExecutionStatus: ExecutionSucceeded}
	f.pending = append(f.pending, txHash)
	return txHash, tx.ClassHash, nil
}

func (f *Fake) AddDeployAccount(ctx context.Context, tx DeployAccountTransaction) (txHash, address felt.Element, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	txHash = felt.FromUint64(f.nextTxSeq)
	f.nextTxSeq++
	address = tx.ContractAddressSalt
	f.receipts[txHash.Hex()] = &Receipt{TransactionHash: txHash, FinalityStatus: FinalityReceived, ExecutionStatus: ExecutionSucceeded}
	f.pending = append(f.pending, txHash)
	f.classHash[address.Hex()] = tx.ClassHash
	f.nonces[address.Hex()] = 1 // a deploy_account transaction's own execution bumps the nonce to 1
	return txHash, address, nil
}

func (f *Fake) GetReceipt(ctx context.Context, txHash felt.Element) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.receipts[txHash.Hex()]
	if !ok {
		return &Receipt{TransactionHash: txHash, FinalityStatus: FinalityNotReceived}, nil
	}
	cp := *r
	return &cp, nil
}

func (f *Fake) GetNonce(ctx context.Context, address felt.Element) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[address.Hex()], nil
}

func (f *Fake) GetClassHashAt(ctx context.Context, address felt.Element) (felt.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classHash[address.Hex()], nil
}

// fakeStepsPerTx is the synthetic per-transaction execution resource cost
// GetBlockWithReceipts reports, standing in for a real node's receipts.
const fakeStepsPerTx = 1000

func (f *Fake) GetBlockWithReceipts(ctx context.Context, blockNumber uint64) (*Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if blockNumber >= uint64(len(f.blocks)) {
		return nil, errkind.New(errkind.RpcRejected, fmt.Errorf("fake: block %d not found", blockNumber))
	}
	b := *f.blocks[blockNumber]
	b.Steps = uint64(len(b.TxHashes)) * fakeStepsPerTx
	return &b, nil
}

func (f *Fake) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.blocks) == 0 {
		return 0, nil
	}
	return uint64(len(f.blocks) - 1), nil
}

func (f *Fake) EstimateFee(ctx context.Context, tx InvokeTransaction) (Fee, error) {
	return Fee{OverallFee: felt.FromUint64(1000), GasPrice: felt.FromUint64(1), GasUsage: 1000}, nil
}

func (f *Fake) RawRequest(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"method": method})
}

func (f *Fake) SubscribeNewHeads(ctx context.Context) (<-chan BlockHeader, func() error, error) {
	out := make(chan BlockHeader, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case h, ok := <-f.headers:
				if !ok {
					return
				}
				select {
				case out <- h:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	closeFn := func() error {
		select {
		case <-done:
		default:
			close(done)
		}
		return nil
	}
	return out, closeFn, nil
}
