package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

// jsonrpcRequest is the wire envelope for a single JSON-RPC 2.0 call.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// jsonrpcResponse is the wire envelope for a single JSON-RPC 2.0 reply.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	URL            string
	WSURL          string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// DefaultHTTPClientConfig returns sane defaults for a benchmarking run: a
// short timeout so a stuck node surfaces as a Transport error quickly, and
// a couple of retries to absorb transient rate limiting without masking
// real rejections.
func DefaultHTTPClientConfig(url string) HTTPClientConfig {
	return HTTPClientConfig{
		URL:            url,
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// HTTPClient is the production Client, talking JSON-RPC over HTTP (and
// optionally a websocket sibling endpoint for SubscribeNewHeads).
type HTTPClient struct {
	url        string
	wsURL      string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
}

// NewHTTPClient builds an HTTPClient tuned for the shooter runtime's
// connection concurrency: the transport's pool sizes should track the
// configured submit/verify permits, not Go's conservative defaults.
func NewHTTPClient(cfg HTTPClientConfig, maxConnsPerHost int) *HTTPClient {
	if maxConnsPerHost < 1 {
		maxConnsPerHost = 100
	}
	transport := &http.Transport{
		MaxIdleConns:        maxConnsPerHost * 2,
		MaxIdleConnsPerHost: maxConnsPerHost,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		url:   cfg.URL,
		wsURL: cfg.WSURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		logger:     logger,
	}
}

// Call implements Client with the retry policy grounded on retryable HTTP
// status codes: RPC-level rejections (well-formed error objects) are never
// retried, since the node has already made its decision.
func (c *HTTPClient) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, errkind.New(errkind.Transport, fmt.Errorf("marshalling request: %w", err))
	}

	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errkind.New(errkind.Cancelled, ctx.Err())
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
		}

		result, err := c.doRequest(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, errkind.New(errkind.Cancelled, ctx.Err())
		}
		if isRetryableHTTPError(err) {
			backoff = getRetryDelay(err, backoff)
			c.logger.Debug("rpc call retrying transient http error",
				slog.String("method", method), slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
			continue
		}
		if isRPCError(err) {
			return nil, errkind.New(errkind.RpcRejected, err)
		}
		c.logger.Debug("rpc call failed, retrying",
			slog.String("method", method), slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
	}

	return nil, errkind.New(errkind.Transport, fmt.Errorf("all retries exhausted: %w", lastErr))
}

func (c *HTTPClient) doRequest(ctx context.Context, body []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.ParseFloat(ra, 64); err == nil {
				retryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, RetryAfter: retryAfter, Body: string(errBody)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshalling response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	return rpcResp.Result, nil
}

// BatchCall issues each call independently over the same client, since
// starknet nodes vary in JSON-RPC batch support; ordering of the returned
// slice matches calls.
func (c *HTTPClient) BatchCall(ctx context.Context, calls []BatchRequest) ([]BatchResponse, error) {
	out := make([]BatchResponse, len(calls))
	for i, call := range calls {
		result, err := c.Call(ctx, call.Method, call.Params)
		out[i] = BatchResponse{Result: result, Err: err}
	}
	return out, nil
}

func (c *HTTPClient) AddInvoke(ctx context.Context, tx InvokeTransaction) (felt.Element, error) {
	params := []any{map[string]any{
		"type":           "INVOKE",
		"version":        tx.Version,
		"sender_address": tx.SenderAddress.Hex(),
		"calldata":       felt.Slice(tx.Calldata).Hex(),
		"signature":      felt.Slice(tx.Signature).Hex(),
		"nonce":          fmt.Sprintf("0x%x", tx.Nonce),
		"max_fee":        tx.MaxFee.Hex(),
	}}
	raw, err := c.Call(ctx, "starknet_addInvokeTransaction", params)
	if err != nil {
		return felt.Element{}, err
	}
	var body struct {
		TransactionHash string `json:"transaction_hash"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return felt.Element{}, errkind.New(errkind.Transport, fmt.Errorf("decoding add_invoke result: %w", err))
	}
	return felt.FromHex(body.TransactionHash)
}

func (c *HTTPClient) AddDeclare(ctx context.Context, tx DeclareTransaction) (txHash, classHash felt.Element, err error) {
	params := []any{map[string]any{
		"type":                "DECLARE",
		"version":             tx.Version,
		"sender_address":      tx.SenderAddress.Hex(),
		"class_hash":          tx.ClassHash.Hex(),
		"compiled_class_hash": tx.CompiledClassHash.Hex(),
		"signature":           felt.Slice(tx.Signature).Hex(),
		"nonce":               fmt.Sprintf("0x%x", tx.Nonce),
		"max_fee":             tx.MaxFee.Hex(),
		"contract_class":      tx.ContractClass,
	}}
	raw, err := c.Call(ctx, "starknet_addDeclareTransaction", params)
	if err != nil {
		return felt.Element{}, felt.Element{}, err
	}
	var body struct {
		TransactionHash string `json:"transaction_hash"`
		ClassHash       string `json:"class_hash"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return felt.Element{}, felt.Element{}, errkind.New(errkind.Transport, fmt.Errorf("decoding add_declare result: %w", err))
	}
	txHash, err = felt.FromHex(body.TransactionHash)
	if err != nil {
		return felt.Element{}, felt.Element{}, errkind.New(errkind.Transport, err)
	}
	classHash, err = felt.FromHex(body.ClassHash)
	if err != nil {
		return felt.Element{}, felt.Element{}, errkind.New(errkind.Transport, err)
	}
	return txHash, classHash, nil
}

func (c *HTTPClient) AddDeployAccount(ctx context.Context, tx DeployAccountTransaction) (txHash, address felt.Element, err error) {
	params := []any{map[string]any{
		"type":                  "DEPLOY_ACCOUNT",
		"version":               tx.Version,
		"class_hash":            tx.ClassHash.Hex(),
		"contract_address_salt": tx.ContractAddressSalt.Hex(),
		"constructor_calldata":  felt.Slice(tx.ConstructorCalldata).Hex(),
		"signature":             felt.Slice(tx.Signature).Hex(),
		"nonce":                 fmt.Sprintf("0x%x", tx.Nonce),
		"max_fee":               tx.MaxFee.Hex(),
	}}
	raw, err := c.Call(ctx, "starknet_addDeployAccountTransaction", params)
	if err != nil {
		return felt.Element{}, felt.Element{}, err
	}
	var body struct {
		TransactionHash string `json:"transaction_hash"`
		ContractAddress string `json:"contract_address"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return felt.Element{}, felt.Element{}, errkind.New(errkind.Transport, fmt.Errorf("decoding add_deploy_account result: %w", err))
	}
	txHash, err = felt.FromHex(body.TransactionHash)
	if err != nil {
		return felt.Element{}, felt.Element{}, errkind.New(errkind.Transport, err)
	}
	address, err = felt.FromHex(body.ContractAddress)
	if err != nil {
		return felt.Element{}, felt.Element{}, errkind.New(errkind.Transport, err)
	}
	return txHash, address, nil
}

func (c *HTTPClient) GetReceipt(ctx context.Context, txHash felt.Element) (*Receipt, error) {
	raw, err := c.Call(ctx, "starknet_getTransactionReceipt", []any{txHash.Hex()})
	if err != nil {
		if errkind.Is(err, errkind.RpcRejected) {
			return &Receipt{TransactionHash: txHash, FinalityStatus: FinalityNotReceived}, nil
		}
		return nil, err
	}
	var body struct {
		TransactionHash string `json:"transaction_hash"`
		FinalityStatus  string `json:"finality_status"`
		ExecutionStatus string `json:"execution_status"`
		BlockNumber     uint64 `json:"block_number"`
		ActualFee       struct {
			Amount string `json:"amount"`
		} `json:"actual_fee"`
		RevertReason string `json:"revert_reason"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errkind.New(errkind.Transport, fmt.Errorf("decoding receipt: %w", err))
	}
	fee := felt.Zero
	if body.ActualFee.Amount != "" {
		if f, err := felt.FromHex(body.ActualFee.Amount); err == nil {
			fee = f
		}
	}
	return &Receipt{
		TransactionHash: txHash,
		FinalityStatus:  FinalityStatus(body.FinalityStatus),
		ExecutionStatus: ExecutionStatus(body.ExecutionStatus),
		BlockNumber:     body.BlockNumber,
		ActualFee:       fee,
		RevertReason:    body.RevertReason,
	}, nil
}

func (c *HTTPClient) GetNonce(ctx context.Context, address felt.Element) (uint64, error) {
	raw, err := c.Call(ctx, "starknet_getNonce", []any{"pending", address.Hex()})
	if err != nil {
		return 0, err
	}
	var nonceHex string
	if err := json.Unmarshal(raw, &nonceHex); err != nil {
		return 0, errkind.New(errkind.Transport, fmt.Errorf("decoding nonce: %w", err))
	}
	f, err := felt.FromHex(nonceHex)
	if err != nil {
		return 0, errkind.New(errkind.Transport, err)
	}
	return f.Uint64(), nil
}

func (c *HTTPClient) GetClassHashAt(ctx context.Context, address felt.Element) (felt.Element, error) {
	raw, err := c.Call(ctx, "starknet_getClassHashAt", []any{"pending", address.Hex()})
	if err != nil {
		if errkind.Is(err, errkind.RpcRejected) {
			return felt.Zero, nil
		}
		return felt.Element{}, err
	}
	var classHashHex string
	if err := json.Unmarshal(raw, &classHashHex); err != nil {
		return felt.Element{}, errkind.New(errkind.Transport, fmt.Errorf("decoding class hash: %w", err))
	}
	return felt.FromHex(classHashHex)
}

// GetBlockWithReceipts fetches a block together with each transaction's
// receipt, used by the block watcher to derive both TPS and the execution
// resource metrics (steps, gas) spec.md §3 carries per block.
func (c *HTTPClient) GetBlockWithReceipts(ctx context.Context, blockNumber uint64) (*Block, error) {
	raw, err := c.Call(ctx, "starknet_getBlockWithReceipts", []any{map[string]any{"block_number": blockNumber}})
	if err != nil {
		return nil, err
	}
	var body struct {
		BlockNumber  uint64 `json:"block_number"`
		Timestamp    uint64 `json:"timestamp"`
		L1GasPrice   struct {
			PriceInWei string `json:"price_in_wei"`
		} `json:"l1_gas_price"`
		Transactions []struct {
			Transaction struct {
				TransactionHash string `json:"transaction_hash"`
			} `json:"transaction"`
			Receipt struct {
				TransactionHash    string `json:"transaction_hash"`
				ExecutionResources struct {
					Steps uint64 `json:"steps"`
				} `json:"execution_resources"`
			} `json:"receipt"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errkind.New(errkind.Transport, fmt.Errorf("decoding block: %w", err))
	}

	hashes := make([]felt.Element, 0, len(body.Transactions))
	var steps uint64
	for _, tx := range body.Transactions {
		hashHex := tx.Transaction.TransactionHash
		if hashHex == "" {
			hashHex = tx.Receipt.TransactionHash
		}
		f, err := felt.FromHex(hashHex)
		if err != nil {
			return nil, errkind.New(errkind.Transport, fmt.Errorf("decoding block tx hash: %w", err))
		}
		hashes = append(hashes, f)
		steps += tx.Receipt.ExecutionResources.Steps
	}

	gasPrice := uint64(0)
	if body.L1GasPrice.PriceInWei != "" {
		if f, err := felt.FromHex(body.L1GasPrice.PriceInWei); err == nil {
			gasPrice = f.Uint64()
		}
	}
	return &Block{BlockNumber: body.BlockNumber, Timestamp: body.Timestamp, TxHashes: hashes, L1GasPrice: gasPrice, Steps: steps}, nil
}

func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.Call(ctx, "starknet_blockNumber", []any{})
	if err != nil {
		return 0, err
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errkind.New(errkind.Transport, fmt.Errorf("decoding block number: %w", err))
	}
	return n, nil
}

func (c *HTTPClient) EstimateFee(ctx context.Context, tx InvokeTransaction) (Fee, error) {
	params := []any{[]any{map[string]any{
		"type":           "INVOKE",
		"version":        tx.Version,
		"sender_address": tx.SenderAddress.Hex(),
		"calldata":       felt.Slice(tx.Calldata).Hex(),
		"signature":      felt.Slice(tx.Signature).Hex(),
		"nonce":          fmt.Sprintf("0x%x", tx.Nonce),
	}}, []any{}, "pending"}
	raw, err := c.Call(ctx, "starknet_estimateFee", params)
	if err != nil {
		return Fee{}, err
	}
	var body []struct {
		OverallFee string `json:"overall_fee"`
		GasPrice   string `json:"gas_price"`
		GasUsage   uint64 `json:"gas_consumed"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body) == 0 {
		return Fee{}, errkind.New(errkind.Transport, fmt.Errorf("decoding fee estimate: %w", err))
	}
	overall, err := felt.FromHex(body[0].OverallFee)
	if err != nil {
		return Fee{}, errkind.New(errkind.Transport, err)
	}
	gasPrice, err := felt.FromHex(body[0].GasPrice)
	if err != nil {
		return Fee{}, errkind.New(errkind.Transport, err)
	}
	return Fee{OverallFee: overall, GasPrice: gasPrice, GasUsage: body[0].GasUsage}, nil
}

func (c *HTTPClient) RawRequest(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return c.Call(ctx, method, params)
}
