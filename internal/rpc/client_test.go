package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

func TestRPCErrorMessage(t *testing.T) {
	err := &RPCError{Code: -32000, Message: "nonce too low"}
	want := "RPC error -32000: nonce too low"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !isRPCError(err) {
		t.Fatalf("isRPCError should be true for *RPCError")
	}
}

func TestHTTPStatusErrorRetryable(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{429, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{500, false},
	}
	for _, tt := range tests {
		err := &HTTPStatusError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.retryable {
			t.Errorf("status %d: IsRetryable() = %v, want %v", tt.code, got, tt.retryable)
		}
	}
}

func TestHTTPClientCallRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x7"}`)
	}))
	defer srv.Close()

	cfg := DefaultHTTPClientConfig(srv.URL)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	client := NewHTTPClient(cfg, 10)

	raw, err := client.Call(context.Background(), "starknet_blockNumber", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(raw) != `"0x7"` {
		t.Fatalf("unexpected result: %s", raw)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestHTTPClientCallDoesNotRetryRPCRejection(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32003,"message":"invalid nonce"}}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(DefaultHTTPClientConfig(srv.URL), 10)
	_, err := client.Call(context.Background(), "starknet_addInvokeTransaction", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errkind.Is(err, errkind.RpcRejected) {
		t.Fatalf("expected RpcRejected, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a rejected rpc call, got %d", attempts)
	}
}

func TestHTTPClientAddInvokeDecodesTxHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Method != "starknet_addInvokeTransaction" {
			t.Fatalf("unexpected method: %s", req.Method)
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"transaction_hash":"0x2a"}}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(DefaultHTTPClientConfig(srv.URL), 10)
	hash, err := client.AddInvoke(context.Background(), InvokeTransaction{
		Version:       "0x3",
		SenderAddress: felt.FromUint64(1),
		Nonce:         0,
		MaxFee:        felt.FromUint64(1000),
	})
	if err != nil {
		t.Fatalf("AddInvoke: %v", err)
	}
	want := felt.FromUint64(0x2a)
	if !hash.Equal(want) {
		t.Fatalf("hash = %s, want %s", hash.Hex(), want.Hex())
	}
}

func TestFakeAddInvokeEnforcesNonceOrder(t *testing.T) {
	f := NewFake()
	addr := felt.FromUint64(1)

	if _, err := f.AddInvoke(context.Background(), InvokeTransaction{SenderAddress: addr, Nonce: 0}); err != nil {
		t.Fatalf("AddInvoke nonce 0: %v", err)
	}
	if _, err := f.AddInvoke(context.Background(), InvokeTransaction{SenderAddress: addr, Nonce: 0}); err == nil {
		t.Fatalf("expected rejection resubmitting nonce 0")
	}
	if _, err := f.AddInvoke(context.Background(), InvokeTransaction{SenderAddress: addr, Nonce: 1}); err != nil {
		t.Fatalf("AddInvoke nonce 1: %v", err)
	}
}

func TestFakeAdvanceBlockAcceptsPendingTransactions(t *testing.T) {
	f := NewFake()
	addr := felt.FromUint64(1)
	hash, err := f.AddInvoke(context.Background(), InvokeTransaction{SenderAddress: addr, Nonce: 0})
	if err != nil {
		t.Fatalf("AddInvoke: %v", err)
	}

	receipt, err := f.GetReceipt(context.Background(), hash)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if !receipt.Pending() {
		t.Fatalf("expected receipt to be pending before a block is sealed")
	}

	blockNum := f.AdvanceBlock(1000)

	receipt, err = f.GetReceipt(context.Background(), hash)
	if err != nil {
		t.Fatalf("GetReceipt after block: %v", err)
	}
	if receipt.Pending() {
		t.Fatalf("expected receipt to be accepted after AdvanceBlock")
	}
	if receipt.BlockNumber != blockNum {
		t.Fatalf("receipt.BlockNumber = %d, want %d", receipt.BlockNumber, blockNum)
	}

	block, err := f.GetBlockWithReceipts(context.Background(), blockNum)
	if err != nil {
		t.Fatalf("GetBlockWithReceipts: %v", err)
	}
	if len(block.TxHashes) != 1 || !block.TxHashes[0].Equal(hash) {
		t.Fatalf("unexpected block contents: %+v", block)
	}
	if block.Steps != fakeStepsPerTx {
		t.Fatalf("expected %d steps for one transaction, got %d", fakeStepsPerTx, block.Steps)
	}
}
