// Package localtest builds instances for local FHE test chains, where the
// relayer contracts are announced by the node itself.
package localtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/fhe"
)

// Params are the inputs for a local test instance.
type Params struct {
	RPCURL   string
	ChainID  int64
	Metadata chains.RelayerMetadata
}

// Instance is an fhe.Instance bound to a local test node. Local nodes do not
// publish network key material, so the key accessors return empty strings.
type Instance struct {
	rpcURL   string
	chainID  int64
	metadata chains.RelayerMetadata
}

var _ fhe.Instance = (*Instance)(nil)

// New creates a local test instance.
func New(ctx context.Context, p Params) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.RPCURL == "" {
		return nil, errors.New("local test instance requires an RPC URL")
	}
	if err := p.Metadata.Validate(); err != nil {
		return nil, fmt.Errorf("local test instance: %w", err)
	}
	return &Instance{rpcURL: p.RPCURL, chainID: p.ChainID, metadata: p.Metadata}, nil
}

// Factory adapts New to a function returning the fhe.Instance interface.
func Factory(ctx context.Context, p Params) (fhe.Instance, error) {
	inst, err := New(ctx, p)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// PublicKey is always empty for local test instances.
func (i *Instance) PublicKey() string { return "" }

// PublicParams is always empty for local test instances.
func (i *Instance) PublicParams(bits int) string { return "" }

// ChainID returns the chain the instance was built for.
func (i *Instance) ChainID() int64 { return i.chainID }

// RPCURL returns the node URL.
func (i *Instance) RPCURL() string { return i.rpcURL }

// Metadata returns the relayer contract addresses.
func (i *Instance) Metadata() chains.RelayerMetadata { return i.metadata }
