package shooter

import (
	"github.com/gateway-fm/starknet-gatling/internal/account"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// transferSelector and mintSelector are the entrypoints the two built-in
// shooters invoke, matching spec.md's Non-goals list of exactly two
// built-in workloads (ERC20 transfer, ERC721 mint).
var (
	transferSelector = felt.Selector("transfer")
	mintSelector     = felt.Selector("mint")
)

// buildCall assembles one call's slice of the Starknet __execute__ multicall
// calldata convention: a single-call invoke is call-count 1, then
// to, selector, calldata_len, calldata...
func buildCall(to, selector felt.Element, calldata []felt.Element) []felt.Element {
	out := []felt.Element{felt.FromUint64(1), to, selector, felt.FromUint64(uint64(len(calldata)))}
	return append(out, calldata...)
}

// TransferBuilder returns a BuildFunc for the "transfer" shooter: each task
// moves amount of the ERC20 at erc20Address from acc to the next account in
// pool (round-robin over the recipient pool too, offset by one so an
// account never pays itself).
func TransferBuilder(pool *account.Pool, erc20Address felt.Element, amount felt.Element) BuildFunc {
	return func(acc *account.Account, localIndex uint64) ([]felt.Element, error) {
		recipient := recipientFor(pool, acc, localIndex)
		calldata := []felt.Element{recipient.Address, amount, felt.Zero}
		return buildCall(erc20Address, transferSelector, calldata), nil
	}
}

// MintBuilder returns a BuildFunc for the "mint" shooter: each task mints
// one fresh ERC721 token to acc itself, with a token id derived from the
// account's address and its local sequence position so concurrent minters
// across accounts never collide.
func MintBuilder(erc721Address felt.Element) BuildFunc {
	return func(acc *account.Account, localIndex uint64) ([]felt.Element, error) {
		tokenID := acc.Address.Xor(felt.FromUint64(localIndex))
		calldata := []felt.Element{acc.Address, tokenID, felt.Zero}
		return buildCall(erc721Address, mintSelector, calldata), nil
	}
}

// recipientFor picks the transfer shooter's counterparty: an account 1 to
// Len()-1 slots ahead of acc in pool order (wrapping around), the offset
// cycling with localIndex so it is never acc itself. When the pool holds
// only one account, the recipient is acc itself — spec.md's num_accounts=1
// boundary case still produces a well-formed (self-)transfer.
func recipientFor(pool *account.Pool, acc *account.Account, localIndex uint64) *account.Account {
	if pool.Len() == 1 {
		return acc
	}
	idx := indexOf(pool, acc)
	return pool.At(idx + 1 + int(localIndex%uint64(pool.Len()-1)))
}

func indexOf(pool *account.Pool, acc *account.Account) int {
	for i := 0; i < pool.Len(); i++ {
		if pool.At(i) == acc {
			return i
		}
	}
	return 0
}
