// Package felt implements Starknet's field element: an integer modulo the
// Stark-curve prime, used for every chain identifier (addresses, hashes,
// nonces, selectors, signatures) in the benchmarking core.
package felt

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Prime is the Stark-curve field modulus: 2**251 + 17*2**192 + 1.
var Prime = mustPrime()

func mustPrime() *big.Int {
	p, ok := new(big.Int).SetString("800000000000011000000000000000000000000000000000000000000000001", 16)
	if !ok {
		panic("felt: failed to parse field prime")
	}
	return p
}

// Element is an opaque 252-bit unsigned integer modulo Prime.
// The zero value is the additive identity (felt 0).
type Element struct {
	v big.Int
}

// Zero is the additive identity.
var Zero = Element{}

// One is the multiplicative identity.
var One = FromUint64(1)

// FromUint64 builds an Element from a u64.
func FromUint64(v uint64) Element {
	var e Element
	e.v.SetUint64(v)
	return e
}

// FromBigInt reduces an arbitrary big.Int modulo Prime.
func FromBigInt(v *big.Int) Element {
	var e Element
	e.v.Mod(v, Prime)
	return e
}

// FromBytes interprets big-endian bytes as a field element, reducing mod Prime.
func FromBytes(b []byte) Element {
	return FromBigInt(new(big.Int).SetBytes(b))
}

// FromHex parses a "0x..." (or bare hex) string into an Element.
func FromHex(s string) (Element, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Element{}, fmt.Errorf("felt: empty hex string")
	}
	b, err := hexutil.Decode(normalizeHex(s))
	if err != nil {
		return Element{}, fmt.Errorf("felt: invalid hex %q: %w", s, err)
	}
	return FromBytes(b), nil
}

// normalizeHex pads an odd-length hex payload so hexutil.Decode accepts it.
func normalizeHex(s string) string {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	body := s[2:]
	if len(body)%2 == 1 {
		s = "0x0" + body
	}
	if body == "" {
		s = "0x00"
	}
	return s
}

// Hex returns the canonical lower-case "0x..." representation.
func (e Element) Hex() string {
	return hexutil.EncodeBig(&e.v)
}

// String implements fmt.Stringer with the canonical hex form.
func (e Element) String() string {
	return e.Hex()
}

// BigInt returns a copy of the underlying integer.
func (e Element) BigInt() *big.Int {
	return new(big.Int).Set(&e.v)
}

// Uint64 returns the element truncated to 64 bits (used for nonces).
func (e Element) Uint64() uint64 {
	return e.v.Uint64()
}

// Equal reports whether two elements represent the same residue.
func (e Element) Equal(other Element) bool {
	return e.v.Cmp(&other.v) == 0
}

// IsZero reports whether e is the additive identity.
func (e Element) IsZero() bool {
	return e.v.Sign() == 0
}

// Add returns (e + other) mod Prime.
func (e Element) Add(other Element) Element {
	var r big.Int
	r.Add(&e.v, &other.v)
	r.Mod(&r, Prime)
	return Element{v: r}
}

// Xor returns the bitwise XOR of e and other, reduced mod Prime.
// Used by the setup orchestrator's deterministic salt derivation
// (salt_i = base_salt XOR i).
func (e Element) Xor(other Element) Element {
	var r big.Int
	r.Xor(&e.v, &other.v)
	r.Mod(&r, Prime)
	return Element{v: r}
}

// MarshalJSON renders the element as its canonical hex string.
func (e Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Hex())
}

// UnmarshalJSON parses a JSON string holding a hex value (see FromHex) into
// the element; a JSON number is rejected.
func (e *Element) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := FromHex(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Selector computes a Starknet entrypoint selector: the truncated Keccak256
// of the ASCII function name, masked to fit the field (starknet_keccak).
func Selector(name string) Element {
	digest := crypto.Keccak256([]byte(name))
	// starknet_keccak masks off the top 6 bits (250-bit digest).
	mask := new(big.Int).Lsh(big.NewInt(1), 250)
	mask.Sub(mask, big.NewInt(1))
	v := new(big.Int).SetBytes(digest)
	v.And(v, mask)
	return FromBigInt(v)
}

// Slice is a convenience alias for ordered sequences of field elements
// (calldata, signatures, constructor arguments).
type Slice []Element

// Hex returns the hex representation of every element, in order.
func (s Slice) Hex() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.Hex()
	}
	return out
}
