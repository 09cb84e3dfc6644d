// Package starkcurve defines the boundary to "the Starknet signing/encoding
// library" that spec.md §1 names as an out-of-scope external collaborator:
// STARK-curve ECDSA signing and the Pedersen hash used for address
// derivation and transaction hashing. internal/account owns everything
// spec.md §4.B puts in scope (domain separation, nonce bookkeeping);
// this package owns only the raw curve arithmetic behind the Curve
// interface.
package starkcurve

import "github.com/gateway-fm/starknet-gatling/pkg/felt"

// Curve is the signing/hashing primitive supplied by an external
// STARK-curve implementation. Production deployments wire a real one;
// this repository ships only Reference (see reference.go), documented as
// a non-cryptographic stand-in for tests and local runs.
type Curve interface {
	// PublicKey derives the public key for a signing key.
	PublicKey(signingKey felt.Element) felt.Element

	// Sign produces an (r, s) signature over a message hash.
	Sign(signingKey, msgHash felt.Element) (r, s felt.Element, err error)

	// Verify checks an (r, s) signature against a public key and message hash.
	Verify(publicKey, msgHash, r, s felt.Element) bool

	// Pedersen computes the Pedersen hash chain over the given elements,
	// used for both address derivation and transaction hashing domain
	// separation.
	Pedersen(elements ...felt.Element) felt.Element
}
