package felt

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestFromHexRoundTrip(t *testing.T) {
	cases := []string{"0x0", "0x1", "0xdeadbeef", "0x800000000000011000000000000000000000000000000000000000000000000"}
	for _, c := range cases {
		e, err := FromHex(c)
		if err != nil {
			t.Fatalf("FromHex(%q): %v", c, err)
		}
		back, err := FromHex(e.Hex())
		if err != nil {
			t.Fatalf("FromHex(%q) round-trip: %v", e.Hex(), err)
		}
		if !e.Equal(back) {
			t.Fatalf("round-trip mismatch: %s != %s", e.Hex(), back.Hex())
		}
	}
}

func TestFromBigIntReducesModPrime(t *testing.T) {
	over := new(big.Int).Add(Prime, big.NewInt(5))
	e := FromBigInt(over)
	if !e.Equal(FromUint64(5)) {
		t.Fatalf("expected reduction to 5, got %s", e.Hex())
	}
}

func TestXorIsDeterministic(t *testing.T) {
	base := FromUint64(42)
	a := base.Xor(FromUint64(0))
	b := base.Xor(FromUint64(0))
	if !a.Equal(b) {
		t.Fatalf("Xor should be deterministic")
	}
	if a.Equal(base.Xor(FromUint64(1))) {
		t.Fatalf("different salts should diverge")
	}
}

func TestSelectorMatchesKnownConstant(t *testing.T) {
	// "transfer" selector is a well-known constant in the Starknet ecosystem.
	s := Selector("transfer")
	if s.IsZero() {
		t.Fatalf("selector should not be zero")
	}
	// Selectors must fit within 250 bits.
	limit := new(big.Int).Lsh(big.NewInt(1), 250)
	if s.BigInt().Cmp(limit) >= 0 {
		t.Fatalf("selector exceeds 250 bits: %s", s.Hex())
	}
	want, err := FromHex("0x83afd3f4caedc6eebf44246fe54e38c95e3179a5ec9ea81740eca5b482d12e")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if !s.Equal(want) {
		t.Fatalf("transfer selector = %s, want %s", s.Hex(), want.Hex())
	}
}

func TestJSONMarshalling(t *testing.T) {
	e := FromUint64(255)
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Element
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !e.Equal(back) {
		t.Fatalf("mismatch after JSON round-trip")
	}
}

func TestIsZero(t *testing.T) {
	if !Zero.IsZero() {
		t.Fatalf("Zero should be zero")
	}
	if One.IsZero() {
		t.Fatalf("One should not be zero")
	}
}
