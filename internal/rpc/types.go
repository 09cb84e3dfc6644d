package rpc

import "github.com/gateway-fm/starknet-gatling/pkg/felt"

// FinalityStatus mirrors the Starknet JSON-RPC transaction finality states.
type FinalityStatus string

const (
	FinalityNotReceived  FinalityStatus = "NOT_RECEIVED"
	FinalityReceived     FinalityStatus = "RECEIVED"
	FinalityPending      FinalityStatus = "PENDING"
	FinalityAcceptedOnL2 FinalityStatus = "ACCEPTED_ON_L2"
	FinalityAcceptedOnL1 FinalityStatus = "ACCEPTED_ON_L1"
	FinalityRejected     FinalityStatus = "REJECTED"
)

// Accepted reports whether the status is ACCEPTED_ON_L2 or a status that
// implies it (ACCEPTED_ON_L1).
func (s FinalityStatus) Accepted() bool {
	return s == FinalityAcceptedOnL2 || s == FinalityAcceptedOnL1
}

// ExecutionStatus mirrors the Starknet JSON-RPC transaction execution result.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionReverted  ExecutionStatus = "REVERTED"
)

// Receipt is the subset of a Starknet transaction receipt the core needs.
type Receipt struct {
	TransactionHash felt.Element
	FinalityStatus  FinalityStatus
	ExecutionStatus ExecutionStatus
	BlockNumber     uint64
	ActualFee       felt.Element
	RevertReason    string
}

// Pending reports whether the receipt has not reached a terminal finality yet.
func (r *Receipt) Pending() bool {
	return r == nil || r.FinalityStatus == FinalityNotReceived || r.FinalityStatus == FinalityReceived || r.FinalityStatus == FinalityPending
}

// Block is the subset of a Starknet block the core needs for TPS/steps/gas
// metrics.
type Block struct {
	BlockNumber uint64
	Timestamp   uint64
	TxHashes    []felt.Element
	L1GasPrice  uint64 // wei, truncated from the RPC's u128 for report purposes
	Steps       uint64 // sum of every transaction receipt's execution_resources.steps
}

// Fee is a fee estimate returned by estimate_fee.
type Fee struct {
	OverallFee felt.Element
	GasPrice   felt.Element
	GasUsage   uint64
}

// InvokeTransaction is a signed INVOKE transaction ready for submission.
// Built by internal/account, submitted unmodified by the facade.
type InvokeTransaction struct {
	Version       string // "0x1" or "0x3"
	SenderAddress felt.Element
	Calldata      []felt.Element
	Signature     []felt.Element
	Nonce         uint64
	MaxFee        felt.Element
}

// DeclareTransaction is a signed DECLARE transaction ready for submission.
type DeclareTransaction struct {
	Version         string
	SenderAddress   felt.Element
	ClassHash       felt.Element
	CompiledClassHash felt.Element // Sierra only
	Signature       []felt.Element
	Nonce           uint64
	MaxFee          felt.Element
	ContractClass   any // opaque; contract artifact deserialisation is out of scope
}

// DeployAccountTransaction is a signed DEPLOY_ACCOUNT transaction ready for submission.
type DeployAccountTransaction struct {
	Version             string
	ClassHash           felt.Element
	ContractAddressSalt felt.Element
	ConstructorCalldata []felt.Element
	Signature           []felt.Element
	Nonce               uint64
	MaxFee              felt.Element
}

// BatchRequest is one call in a BatchCall invocation.
type BatchRequest struct {
	Method string
	Params []any
}

// BatchResponse is the outcome of one call within a BatchCall invocation.
type BatchResponse struct {
	Result []byte
	Err    error
}

// BlockHeader is the payload delivered by SubscribeNewHeads.
type BlockHeader struct {
	BlockNumber uint64
	Timestamp   uint64
}
