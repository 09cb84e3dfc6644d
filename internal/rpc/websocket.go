package rpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
)

// SubscribeNewHeads implements the block watcher's low-latency mode
// (spec §4.E's "may poll or subscribe"): it dials the node's starknet_subscribeNewHeads
// websocket method and streams decoded headers until ctx is cancelled or the
// caller invokes the returned close function.
func (c *HTTPClient) SubscribeNewHeads(ctx context.Context) (<-chan BlockHeader, func() error, error) {
	if c.wsURL == "" {
		return nil, nil, errkind.New(errkind.Config, fmt.Errorf("rpc: no websocket endpoint configured"))
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, nil, errkind.New(errkind.Transport, fmt.Errorf("dialing websocket: %w", err))
	}

	sub := jsonrpcRequest{JSONRPC: "2.0", Method: "starknet_subscribeNewHeads", Params: []any{}, ID: 1}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, nil, errkind.New(errkind.Transport, fmt.Errorf("sending subscribe request: %w", err))
	}

	out := make(chan BlockHeader, 16)
	closed := make(chan struct{})
	closeFn := func() error {
		select {
		case <-closed:
		default:
			close(closed)
		}
		return conn.Close()
	}

	go func() {
		defer close(out)
		for {
			var msg struct {
				Params struct {
					Result struct {
						BlockNumber uint64 `json:"block_number"`
						Timestamp   uint64 `json:"timestamp"`
					} `json:"result"`
				} `json:"params"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case <-closed:
				default:
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						slog.Default().Debug("block subscription read failed", slog.String("error", err.Error()))
					}
				}
				return
			}
			select {
			case out <- BlockHeader{BlockNumber: msg.Params.Result.BlockNumber, Timestamp: msg.Params.Result.Timestamp}:
			case <-closed:
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		closeFn()
	}()

	return out, closeFn, nil
}
