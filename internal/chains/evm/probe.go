// Package evm provides the EVM JSON-RPC implementation of chains.Probe.
package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pendergraft/fhevmkit/internal/chains"
)

const (
	methodChainID         = "eth_chainId"
	methodClientVersion   = "web3_clientVersion"
	methodRelayerMetadata = "fhevm_relayer_metadata"
)

// Probe implements chains.Probe over go-ethereum's rpc client. Every call
// dials a fresh connection and closes it afterwards.
type Probe struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Probe
type Option func(*Probe)

// WithHTTPClient sets a custom HTTP client for RPC calls
func WithHTTPClient(c *http.Client) Option {
	return func(p *Probe) {
		p.httpClient = c
	}
}

// WithLogger sets the probe logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Probe) {
		p.logger = l
	}
}

// NewProbe creates a new EVM probe
func NewProbe(opts ...Option) *Probe {
	p := &Probe{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ chains.Probe = (*Probe)(nil)

// ChainID queries eth_chainId on a direct RPC URL.
func (p *Probe) ChainID(ctx context.Context, rpcURL string) (int64, error) {
	var id hexutil.Big
	if err := p.call(ctx, rpcURL, &id, methodChainID); err != nil {
		return 0, err
	}
	return chainIDFromBig((*big.Int)(&id))
}

// ProviderChainID queries eth_chainId through an injected provider.
func (p *Probe) ProviderChainID(ctx context.Context, provider chains.Provider) (int64, error) {
	var raw string
	if err := provider.Request(ctx, methodChainID, nil, &raw); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: provider %s: %v", chains.ErrUnreachable, methodChainID, err)
	}
	id, err := hexutil.DecodeBig(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s returned %q: %v", chains.ErrMalformedResult, methodChainID, raw, err)
	}
	return chainIDFromBig(id)
}

// ClientVersion queries web3_clientVersion.
func (p *Probe) ClientVersion(ctx context.Context, rpcURL string) (string, error) {
	var version string
	if err := p.call(ctx, rpcURL, &version, methodClientVersion); err != nil {
		return "", err
	}
	return version, nil
}

// RelayerMetadata queries fhevm_relayer_metadata. A null result yields nil
// metadata. Missing fields are left empty; callers validate the shape.
func (p *Probe) RelayerMetadata(ctx context.Context, rpcURL string) (*chains.RelayerMetadata, error) {
	var raw json.RawMessage
	if err := p.call(ctx, rpcURL, &raw, methodRelayerMetadata); err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var meta chains.RelayerMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", chains.ErrMalformedResult, methodRelayerMetadata, err)
	}
	return &meta, nil
}

func (p *Probe) call(ctx context.Context, rpcURL string, result any, method string, args ...any) error {
	client, err := p.dial(ctx, rpcURL)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.CallContext(ctx, result, method, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("rpc call failed", "url", rpcURL, "method", method, "error", err)
		return fmt.Errorf("%w: %s %s: %v", chains.ErrUnreachable, rpcURL, method, err)
	}
	return nil
}

func (p *Probe) dial(ctx context.Context, rpcURL string) (*rpc.Client, error) {
	var opts []rpc.ClientOption
	if p.httpClient != nil {
		opts = append(opts, rpc.WithHTTPClient(p.httpClient))
	}
	client, err := rpc.DialOptions(ctx, rpcURL, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dialing %s: %v", chains.ErrUnreachable, rpcURL, err)
	}
	return client, nil
}

func chainIDFromBig(id *big.Int) (int64, error) {
	if id == nil || !id.IsInt64() || id.Sign() < 0 {
		return 0, fmt.Errorf("%w: chain id %v out of range", chains.ErrMalformedResult, id)
	}
	return id.Int64(), nil
}
