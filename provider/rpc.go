package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCProvider is the terminal link of a chain. It answers every request by
// forwarding it to a node over JSON-RPC.
type RPCProvider struct {
	client *rpc.Client
}

// NewRPCProvider wraps an established RPC client.
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

// DialRPCProvider connects to the node at the given endpoint.
func DialRPCProvider(ctx context.Context, endpoint string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return NewRPCProvider(client), nil
}

func (p *RPCProvider) HandleRequest(ctx context.Context, req Request, _ NextFunc, end EndFunc) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, req.Method(), req.Params()...); err != nil {
		log.Trace("RPC request failed", "method", req.Method(), "err", err)
		end(nil, err)
		return
	}
	end(result, nil)
}

// Close tears down the underlying client.
func (p *RPCProvider) Close() {
	p.client.Close()
}

// Decode emits the request and unmarshals its result into out.
func Decode(ctx context.Context, e Emitter, req Request, out interface{}) error {
	raw, err := e.Emit(ctx, req)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%s: empty result", req.Method())
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", req.Method(), err)
	}
	return nil
}
