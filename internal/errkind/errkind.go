// Package errkind defines the closed error taxonomy used across the
// benchmarking core so sample outcomes and fatal failures can be
// categorised uniformly (spec §7).
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the benchmark's error categories.
type Kind string

const (
	// Transport covers connection refused, TLS, and transport-layer timeouts.
	Transport Kind = "transport"
	// RpcRejected covers well-formed JSON-RPC errors returned by the node.
	RpcRejected Kind = "rpc_rejected"
	// Timeout covers submission or verification deadline exceeded.
	Timeout Kind = "timeout"
	// Cancelled covers tasks aborted by the caller.
	Cancelled Kind = "cancelled"
	// SetupFailed covers any failure during the setup orchestrator; fatal.
	SetupFailed Kind = "setup_failed"
	// Config covers structural configuration invariant violations; fatal.
	Config Kind = "config"
	// Reverted covers transactions accepted on-chain but executed with failure.
	Reverted Kind = "reverted"
)

// Error pairs a Kind with the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given Kind. A nil err is still wrapped, so the
// Kind survives even when there is no underlying cause (e.g. Timeout).
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Of extracts the Kind from err, if any component in the chain tagged one.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
