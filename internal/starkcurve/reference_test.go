package starkcurve

import (
	"testing"

	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

func TestReferenceSignVerifyRoundTrip(t *testing.T) {
	c := NewReference()
	sk := felt.FromUint64(12345)
	pk := c.PublicKey(sk)
	msg := felt.FromUint64(999)

	r, s, err := c.Sign(sk, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !c.Verify(pk, msg, r, s) {
		t.Fatalf("expected signature to verify")
	}
}

func TestReferenceRejectsWrongMessage(t *testing.T) {
	c := NewReference()
	sk := felt.FromUint64(1)
	pk := c.PublicKey(sk)
	r, s, err := c.Sign(sk, felt.FromUint64(1))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if c.Verify(pk, felt.FromUint64(2), r, s) {
		t.Fatalf("expected verification to fail for a different message")
	}
}

func TestReferenceRejectsZeroSigningKey(t *testing.T) {
	c := NewReference()
	if _, _, err := c.Sign(felt.Zero, felt.FromUint64(1)); err == nil {
		t.Fatalf("expected error signing with zero key")
	}
}

func TestPedersenIsDeterministic(t *testing.T) {
	c := NewReference()
	a := c.Pedersen(felt.FromUint64(1), felt.FromUint64(2))
	b := c.Pedersen(felt.FromUint64(1), felt.FromUint64(2))
	if !a.Equal(b) {
		t.Fatalf("Pedersen should be deterministic")
	}
	if a.Equal(c.Pedersen(felt.FromUint64(2), felt.FromUint64(1))) {
		t.Fatalf("Pedersen should not be commutative")
	}
}
