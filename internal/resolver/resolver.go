// Package resolver determines which chain an endpoint points at and whether
// it is a local test chain.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/pendergraft/fhevmkit/internal/chains"
)

// ErrChainResolution is returned when the chain id cannot be obtained.
var ErrChainResolution = errors.New("cannot determine chain id")

// Resolve queries the endpoint for its chain id and classifies it against
// the merged mock chain table (built-in 31337 entry plus mockChains, with
// mockChains winning ties).
//
// If ctx is cancelled while querying, the context error is returned as is.
func Resolve(ctx context.Context, probe chains.Probe, endpoint chains.Endpoint, mockChains map[int64]string) (chains.ChainContext, error) {
	chainID, err := queryChainID(ctx, probe, endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return chains.ChainContext{}, ctxErr
		}
		return chains.ChainContext{}, fmt.Errorf("%w: %v", ErrChainResolution, err)
	}

	// Only direct URLs carry an RPC URL of their own
	rpcURL := endpoint.URL

	table := chains.MergeMockChains(mockChains)
	if tableURL, ok := table[chainID]; ok {
		if rpcURL == "" {
			rpcURL = tableURL
		}
		return chains.ChainContext{ChainID: chainID, IsLocalTest: true, RPCURL: rpcURL}, nil
	}

	return chains.ChainContext{ChainID: chainID, IsLocalTest: false, RPCURL: rpcURL}, nil
}

func queryChainID(ctx context.Context, probe chains.Probe, endpoint chains.Endpoint) (int64, error) {
	switch {
	case endpoint.URL != "":
		return probe.ChainID(ctx, endpoint.URL)
	case endpoint.Provider != nil:
		return probe.ProviderChainID(ctx, endpoint.Provider)
	default:
		return 0, errors.New("no endpoint given")
	}
}
