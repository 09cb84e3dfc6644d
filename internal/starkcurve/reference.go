package starkcurve

import (
	"crypto/sha256"
	"fmt"

	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// Reference is a deterministic, non-cryptographic stand-in for a real
// STARK-curve implementation. It satisfies Curve's contract (a public key
// deterministic in the signing key, a signature that verifies against the
// hash it was produced from and no other) so the rest of the benchmarking
// core — nonce management, transaction hash assembly, the setup
// orchestrator, the shooter runtime — can be built and tested against a
// real interface boundary without depending on production Starknet
// cryptography, which spec.md §1 explicitly places outside this core.
//
// Do not use Reference against a real Starknet node: it does not implement
// STARK-curve ECDSA or the real Pedersen hash, and a node will reject every
// transaction it signs.
type Reference struct{}

// NewReference constructs the reference curve implementation.
func NewReference() Reference {
	return Reference{}
}

// PublicKey derives a deterministic "public key" from the signing key via
// domain-separated hashing.
func (Reference) PublicKey(signingKey felt.Element) felt.Element {
	return hashLabelled("stark_reference_pubkey", signingKey)
}

// Sign produces a deterministic (r, s) pair over msgHash, derived entirely
// from the signing key's public key and the message so Verify can
// recompute the same pair from the public key alone.
func (c Reference) Sign(signingKey, msgHash felt.Element) (r, s felt.Element, err error) {
	if signingKey.IsZero() {
		return felt.Element{}, felt.Element{}, fmt.Errorf("starkcurve: signing key must be non-zero")
	}
	publicKey := c.PublicKey(signingKey)
	r, s = c.signatureFor(publicKey, msgHash)
	return r, s, nil
}

// Verify recomputes the expected (r, s) pair from the public key and
// message and compares against the claimed signature.
func (c Reference) Verify(publicKey, msgHash, r, s felt.Element) bool {
	expectedR, expectedS := c.signatureFor(publicKey, msgHash)
	return r.Equal(expectedR) && s.Equal(expectedS)
}

func (Reference) signatureFor(publicKey, msgHash felt.Element) (r, s felt.Element) {
	r = hashLabelled("stark_reference_r", publicKey, msgHash)
	s = hashLabelled("stark_reference_s", r, publicKey, msgHash)
	return r, s
}

// Pedersen chains a SHA-256-based compression function over the inputs.
// It is not the real Starknet Pedersen hash; it exists only to give
// address derivation and transaction hashing a concrete, deterministic
// function to call through the Curve interface.
func (Reference) Pedersen(elements ...felt.Element) felt.Element {
	acc := felt.Zero
	for _, e := range elements {
		acc = hashLabelled("stark_reference_pedersen", acc, e)
	}
	return acc
}

func hashLabelled(label string, elements ...felt.Element) felt.Element {
	h := sha256.New()
	h.Write([]byte(label))
	for _, e := range elements {
		b := e.BigInt().Bytes()
		h.Write(b)
	}
	return felt.FromBytes(h.Sum(nil))
}
