// Package account implements spec.md §4.B's in-scope half of "Signer &
// Account": nonce bookkeeping, transaction-hash domain-separation assembly,
// and address derivation. The raw STARK-curve signing and Pedersen hash
// primitives are the external collaborator spec.md §1 names; this package
// calls through starkcurve.Curve for those and owns everything else.
package account

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/internal/rpc"
	"github.com/gateway-fm/starknet-gatling/internal/starkcurve"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// contractAddressPrefix is the domain-separation label for address
// derivation, per Starknet's documented formula
// pedersen("STARKNET_CONTRACT_ADDRESS", deployer, salt, class_hash, ctor_args_hash) mod P.
var contractAddressPrefix = felt.Selector("STARKNET_CONTRACT_ADDRESS")

// Account holds one benchmark account's key material and nonce. Per
// spec.md §3, it is mutated only by the single task that submits on its
// behalf; ReserveNonce/Commit/Rollback is how that ownership is enforced
// even when that task itself fans out submit and verify work.
type Account struct {
	Address    felt.Element
	SigningKey felt.Element
	PublicKey  felt.Element
	Legacy     bool
	ChainID    felt.Element

	mu    sync.Mutex
	nonce uint64
}

// New constructs an account from a signing key, deriving its public key via curve.
func New(curve starkcurve.Curve, address, signingKey, chainID felt.Element, legacy bool) *Account {
	return &Account{
		Address:    address,
		SigningKey: signingKey,
		PublicKey:  curve.PublicKey(signingKey),
		Legacy:     legacy,
		ChainID:    chainID,
	}
}

// DeriveAddress computes a contract address per spec.md §4.B's formula.
// ctorCalldata is hashed with the same Pedersen chain used for transaction
// hashing, matching Starknet's documented ctor_args_hash construction.
func DeriveAddress(curve starkcurve.Curve, deployer, salt, classHash felt.Element, ctorCalldata []felt.Element) felt.Element {
	ctorHash := curve.Pedersen(ctorCalldata...)
	return curve.Pedersen(contractAddressPrefix, deployer, salt, classHash, ctorHash)
}

// Nonce is a reserved, not-yet-finalised nonce value. The caller must
// Commit on success or Rollback on failure so the next reservation does
// not leave a gap spec.md's per-account monotonic-nonce invariant forbids.
type Nonce struct {
	value     uint64
	account   *Account
	committed atomic.Bool
}

// Value returns the reserved nonce.
func (n *Nonce) Value() uint64 { return n.value }

// Commit marks the nonce as consumed; idempotent.
func (n *Nonce) Commit() { n.committed.Store(true) }

// Rollback returns the nonce to the account if it was the most recently
// issued one and was never committed; idempotent, intended for `defer`.
func (n *Nonce) Rollback() {
	if n.committed.Swap(true) {
		return
	}
	n.account.rollback(n.value)
}

// ReserveNonce allocates the next nonce in this account's monotonic
// sequence. The caller MUST Commit or Rollback the result.
func (a *Account) ReserveNonce() *Nonce {
	a.mu.Lock()
	v := a.nonce
	a.nonce++
	a.mu.Unlock()
	return &Nonce{value: v, account: a}
}

func (a *Account) rollback(nonce uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nonce == nonce+1 {
		a.nonce = nonce
	}
}

// SetNonce sets the nonce directly, used by setup after a fresh deploy.
func (a *Account) SetNonce(nonce uint64) {
	a.mu.Lock()
	a.nonce = nonce
	a.mu.Unlock()
}

// PeekNonce returns the current nonce without reserving it.
func (a *Account) PeekNonce() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonce
}

// Resync refreshes the local nonce from chain, never moving it backwards —
// concurrent reservations may have already advanced past the fetched value.
func (a *Account) Resync(ctx context.Context, client rpc.Client) error {
	n, err := client.GetNonce(ctx, a.Address)
	if err != nil {
		return fmt.Errorf("account: resync: %w", err)
	}
	a.mu.Lock()
	if n > a.nonce {
		a.nonce = n
	}
	a.mu.Unlock()
	return nil
}

// invokeHashPrefix and friends are the Starknet transaction-type domain
// separators used in hash assembly, grounded on spec.md §4.B's named
// versions (invoke v1/v3, declare v2/v3, deploy-account v1/v3).
var (
	invokeHashPrefix        = felt.Selector("invoke")
	declareHashPrefix       = felt.Selector("declare")
	deployAccountHashPrefix = felt.Selector("deploy_account")
)

// versionElement parses a transaction version literal ("0x1", "0x3"); these
// are fixed constants chosen by this package, never user input, so a parse
// failure indicates a programming error rather than a recoverable one.
func versionElement(version string) felt.Element {
	v, err := felt.FromHex(version)
	if err != nil {
		panic(fmt.Sprintf("account: invalid transaction version literal %q: %v", version, err))
	}
	return v
}

// SignInvoke builds and signs an invoke transaction against reservedNonce,
// following spec.md §4.B's domain separation: hash over the transaction
// type, version, sender, calldata hash, max fee, chain id, and nonce.
func (a *Account) SignInvoke(curve starkcurve.Curve, version string, calldata []felt.Element, maxFee felt.Element, reservedNonce uint64) (rpc.InvokeTransaction, error) {
	calldataHash := curve.Pedersen(calldata...)
	msgHash := curve.Pedersen(
		invokeHashPrefix,
		versionElement(version),
		a.Address,
		calldataHash,
		maxFee,
		a.ChainID,
		felt.FromUint64(reservedNonce),
	)
	r, s, err := curve.Sign(a.SigningKey, msgHash)
	if err != nil {
		return rpc.InvokeTransaction{}, errkind.New(errkind.Config, fmt.Errorf("account: signing invoke: %w", err))
	}
	return rpc.InvokeTransaction{
		Version:       version,
		SenderAddress: a.Address,
		Calldata:      calldata,
		Signature:     []felt.Element{r, s},
		Nonce:         reservedNonce,
		MaxFee:        maxFee,
	}, nil
}

// SignDeclare builds and signs a declare transaction for a loaded contract class.
func (a *Account) SignDeclare(curve starkcurve.Curve, version string, classHash, compiledClassHash, maxFee felt.Element, contractClass any, reservedNonce uint64) (rpc.DeclareTransaction, error) {
	msgHash := curve.Pedersen(
		declareHashPrefix,
		versionElement(version),
		a.Address,
		classHash,
		compiledClassHash,
		maxFee,
		a.ChainID,
		felt.FromUint64(reservedNonce),
	)
	r, s, err := curve.Sign(a.SigningKey, msgHash)
	if err != nil {
		return rpc.DeclareTransaction{}, errkind.New(errkind.Config, fmt.Errorf("account: signing declare: %w", err))
	}
	return rpc.DeclareTransaction{
		Version:           version,
		SenderAddress:     a.Address,
		ClassHash:         classHash,
		CompiledClassHash: compiledClassHash,
		Signature:         []felt.Element{r, s},
		Nonce:             reservedNonce,
		MaxFee:            maxFee,
		ContractClass:     contractClass,
	}, nil
}

// SignDeployAccount builds and signs a deploy-account transaction. Unlike
// invoke/declare, the signing account here is a not-yet-deployed account
// whose address is derived from (deployer-chosen) salt and class hash; the
// caller is responsible for deriving a.Address consistently beforehand via
// DeriveAddress.
func (a *Account) SignDeployAccount(curve starkcurve.Curve, version string, classHash, salt, maxFee felt.Element, constructorCalldata []felt.Element, reservedNonce uint64) (rpc.DeployAccountTransaction, error) {
	ctorHash := curve.Pedersen(constructorCalldata...)
	msgHash := curve.Pedersen(
		deployAccountHashPrefix,
		versionElement(version),
		a.Address,
		classHash,
		salt,
		ctorHash,
		maxFee,
		a.ChainID,
		felt.FromUint64(reservedNonce),
	)
	r, s, err := curve.Sign(a.SigningKey, msgHash)
	if err != nil {
		return rpc.DeployAccountTransaction{}, errkind.New(errkind.Config, fmt.Errorf("account: signing deploy_account: %w", err))
	}
	return rpc.DeployAccountTransaction{
		Version:             version,
		ClassHash:           classHash,
		ContractAddressSalt: salt,
		ConstructorCalldata: constructorCalldata,
		Signature:           []felt.Element{r, s},
		Nonce:               reservedNonce,
		MaxFee:              maxFee,
	}, nil
}
