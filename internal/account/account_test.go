package account

import (
	"context"
	"testing"

	"github.com/gateway-fm/starknet-gatling/internal/rpc"
	"github.com/gateway-fm/starknet-gatling/internal/starkcurve"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

func testAccount() *Account {
	curve := starkcurve.NewReference()
	return New(curve, felt.FromUint64(0xA11CE), felt.FromUint64(42), felt.Selector("SN_GOERLI"), false)
}

func TestReserveNonceMonotonic(t *testing.T) {
	a := testAccount()
	for want := uint64(0); want < 5; want++ {
		n := a.ReserveNonce()
		if n.Value() != want {
			t.Fatalf("nonce %d: got %d", want, n.Value())
		}
		n.Commit()
	}
}

func TestRollbackReturnsNonceWhenMostRecent(t *testing.T) {
	a := testAccount()
	n0 := a.ReserveNonce()
	n0.Commit()

	n1 := a.ReserveNonce()
	n1.Rollback()

	n2 := a.ReserveNonce()
	if n2.Value() != 1 {
		t.Fatalf("expected rollback to free nonce 1 for reuse, got %d", n2.Value())
	}
}

func TestRollbackIsNoopWhenNotMostRecent(t *testing.T) {
	a := testAccount()
	n0 := a.ReserveNonce()
	n1 := a.ReserveNonce()
	n1.Commit()

	n0.Rollback() // stale: nonce has already advanced past n0+1

	n2 := a.ReserveNonce()
	if n2.Value() != 2 {
		t.Fatalf("expected nonce 2 after a stale rollback, got %d", n2.Value())
	}
}

func TestRollbackIsIdempotent(t *testing.T) {
	a := testAccount()
	n := a.ReserveNonce()
	n.Rollback()
	n.Rollback() // must not double-free

	next := a.ReserveNonce()
	if next.Value() != 0 {
		t.Fatalf("expected nonce 0 reused exactly once, got %d", next.Value())
	}
}

func TestResyncNeverMovesNonceBackwards(t *testing.T) {
	a := testAccount()
	a.ReserveNonce()
	a.ReserveNonce() // local nonce is now 2

	f := rpc.NewFake()
	f.SetNonce(a.Address, 0) // chain reports behind local reservations

	if err := a.Resync(context.Background(), f); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if a.PeekNonce() != 2 {
		t.Fatalf("Resync must not move nonce backwards, got %d", a.PeekNonce())
	}
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	curve := starkcurve.NewReference()
	deployer := felt.FromUint64(1)
	classHash := felt.FromUint64(2)
	salt0 := felt.FromUint64(100)
	salt1 := felt.FromUint64(101)
	ctor := []felt.Element{felt.FromUint64(7)}

	a0 := DeriveAddress(curve, deployer, salt0, classHash, ctor)
	a0Again := DeriveAddress(curve, deployer, salt0, classHash, ctor)
	a1 := DeriveAddress(curve, deployer, salt1, classHash, ctor)

	if !a0.Equal(a0Again) {
		t.Fatalf("expected deterministic address for identical inputs")
	}
	if a0.Equal(a1) {
		t.Fatalf("expected different addresses for different salts")
	}
}

func TestSignInvokeProducesVerifiableSignature(t *testing.T) {
	curve := starkcurve.NewReference()
	a := testAccount()

	n := a.ReserveNonce()
	tx, err := a.SignInvoke(curve, "0x3", []felt.Element{felt.FromUint64(9)}, felt.FromUint64(1000), n.Value())
	if err != nil {
		t.Fatalf("SignInvoke: %v", err)
	}
	n.Commit()

	if len(tx.Signature) != 2 {
		t.Fatalf("expected (r, s) signature, got %d elements", len(tx.Signature))
	}
	msgHash := curve.Pedersen(invokeHashPrefix, versionElement("0x3"), a.Address,
		curve.Pedersen(felt.FromUint64(9)), felt.FromUint64(1000), a.ChainID, felt.FromUint64(0))
	if !curve.Verify(a.PublicKey, msgHash, tx.Signature[0], tx.Signature[1]) {
		t.Fatalf("signature does not verify against the invoke hash")
	}
	if tx.Nonce != 0 {
		t.Fatalf("expected nonce 0 in built transaction, got %d", tx.Nonce)
	}
}
