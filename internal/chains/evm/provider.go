package evm

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pendergraft/fhevmkit/internal/chains"
)

// RPCProvider is a chains.Provider backed by a persistent RPC connection.
// It lets native callers exercise the injected-provider code path, the same
// way a browser wallet would be used.
type RPCProvider struct {
	url    string
	client *rpc.Client
}

// NewRPCProvider dials rpcURL and returns a provider for it.
func NewRPCProvider(ctx context.Context, rpcURL string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", chains.ErrUnreachable, rpcURL, err)
	}
	return &RPCProvider{url: rpcURL, client: client}, nil
}

var _ chains.Provider = (*RPCProvider)(nil)

// Request forwards a JSON-RPC request to the node.
func (p *RPCProvider) Request(ctx context.Context, method string, params []any, result any) error {
	return p.client.CallContext(ctx, result, method, params...)
}

// URL returns the node URL the provider talks to.
func (p *RPCProvider) URL() string {
	return p.url
}

// Close closes the underlying connection.
func (p *RPCProvider) Close() {
	p.client.Close()
}

// WaitForNode polls web3_clientVersion until the node answers or the
// attempts are exhausted. It returns the reported client version.
func WaitForNode(ctx context.Context, probe chains.Probe, rpcURL string, attempts uint, delay time.Duration) (string, error) {
	if attempts == 0 {
		attempts = 1
	}
	version, err := retry.DoWithData(func() (string, error) {
		return probe.ClientVersion(ctx, rpcURL)
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("node at %s not ready after %d attempts: %w", rpcURL, attempts, err)
	}
	return version, nil
}
