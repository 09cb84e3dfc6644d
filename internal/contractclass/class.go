// Package contractclass loads compiled contract artifacts into the tagged
// union spec.md §3 describes (ContractClass: Legacy | Sierra). Parsing an
// artifact's internal structure is explicitly out of scope ("contract
// artifact deserialization", spec.md §1): this package treats program bytes
// as opaque and only distinguishes the two submission shapes the RPC facade
// needs for a declare transaction.
package contractclass

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gateway-fm/starknet-gatling/internal/config"
	"github.com/gateway-fm/starknet-gatling/internal/starkcurve"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// Variant distinguishes a legacy (Cairo 0) class from a Sierra (Cairo 1) one.
type Variant int

const (
	Legacy Variant = iota
	Sierra
)

// Class is an immutable, loaded contract artifact ready for declaration.
type Class struct {
	Variant   Variant
	Program   json.RawMessage // opaque; never interpreted by this package
	CasmHash  felt.Element    // Sierra only; zero for Legacy
	ClassHash felt.Element
}

// Load reads the artifact named by a config.ContractArtifact's "exactly one
// of v0/v1" entry and computes its class hash.
//
// Production class-hash computation follows Starknet's documented
// class-hashing algorithm over the program's parsed structure, a
// capability that belongs to the signing/encoding library spec.md §1
// places out of scope. Absent that library, class hash here is derived by
// feeding the raw artifact bytes through the Curve's Pedersen chain — a
// deterministic placeholder, not the real algorithm; see starkcurve.Reference.
func Load(curve starkcurve.Curve, artifact config.ContractArtifact) (*Class, error) {
	switch {
	case artifact.V0 != nil:
		raw, err := os.ReadFile(artifact.V0.Path)
		if err != nil {
			return nil, fmt.Errorf("contractclass: reading legacy artifact %q: %w", artifact.V0.Path, err)
		}
		return &Class{
			Variant:   Legacy,
			Program:   json.RawMessage(raw),
			ClassHash: curve.Pedersen(felt.FromBytes(raw)),
		}, nil

	case artifact.V1 != nil:
		raw, err := os.ReadFile(artifact.V1.Path)
		if err != nil {
			return nil, fmt.Errorf("contractclass: reading sierra artifact %q: %w", artifact.V1.Path, err)
		}
		casm, err := os.ReadFile(artifact.V1.CasmPath)
		if err != nil {
			return nil, fmt.Errorf("contractclass: reading casm artifact %q: %w", artifact.V1.CasmPath, err)
		}
		casmHash := curve.Pedersen(felt.FromBytes(casm))
		return &Class{
			Variant:   Sierra,
			Program:   json.RawMessage(raw),
			CasmHash:  casmHash,
			ClassHash: curve.Pedersen(felt.FromBytes(raw), casmHash),
		}, nil

	default:
		return nil, fmt.Errorf("contractclass: artifact has neither v0 nor v1 set")
	}
}
