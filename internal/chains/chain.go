// Package chains provides the chain-facing types shared by the resolver,
// the instance builder and the probe implementations.
package chains

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Common probe errors
var (
	ErrUnreachable     = errors.New("endpoint unreachable")
	ErrMalformedResult = errors.New("malformed RPC result")
)

// Provider is an injected EIP-1193 style provider (a wallet, a browser
// extension, or anything else that can answer JSON-RPC requests itself).
type Provider interface {
	Request(ctx context.Context, method string, params []any, result any) error
}

// Probe is the network capability the core needs. Implementations live at
// the boundary (see chains/evm).
type Probe interface {
	// ChainID queries a direct RPC URL for its chain identifier.
	ChainID(ctx context.Context, rpcURL string) (int64, error)
	// ProviderChainID asks an injected provider for its chain identifier.
	ProviderChainID(ctx context.Context, p Provider) (int64, error)
	// ClientVersion returns the node's web3_clientVersion string.
	ClientVersion(ctx context.Context, rpcURL string) (string, error)
	// RelayerMetadata returns the chain-exposed relayer metadata, or nil when
	// the node answered without any.
	RelayerMetadata(ctx context.Context, rpcURL string) (*RelayerMetadata, error)
}

// Endpoint is either a direct RPC URL or an injected provider handle.
// Exactly one of the two is set; the zero value means "no endpoint".
type Endpoint struct {
	URL      string
	Provider Provider
}

// URLEndpoint returns an endpoint for a direct RPC URL.
func URLEndpoint(url string) Endpoint {
	return Endpoint{URL: url}
}

// ProviderEndpoint returns an endpoint for an injected provider.
func ProviderEndpoint(p Provider) Endpoint {
	return Endpoint{Provider: p}
}

// IsZero reports whether no endpoint is set.
func (e Endpoint) IsZero() bool {
	return e.URL == "" && e.Provider == nil
}

// Kind returns "url", "provider" or "none", for logging.
func (e Endpoint) Kind() string {
	switch {
	case e.URL != "":
		return "url"
	case e.Provider != nil:
		return "provider"
	default:
		return "none"
	}
}

// Equal reports whether two endpoints point at the same target. Providers
// are compared by identity.
func (e Endpoint) Equal(o Endpoint) bool {
	if e.URL != o.URL {
		return false
	}
	if e.Provider == nil || o.Provider == nil {
		return e.Provider == nil && o.Provider == nil
	}
	ta, tb := reflect.TypeOf(e.Provider), reflect.TypeOf(o.Provider)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return e.Provider == o.Provider
}

// String renders the endpoint without leaking provider internals.
func (e Endpoint) String() string {
	switch {
	case e.URL != "":
		return e.URL
	case e.Provider != nil:
		return fmt.Sprintf("provider(%T)", e.Provider)
	default:
		return "<none>"
	}
}

// ChainContext is the outcome of resolving an endpoint.
type ChainContext struct {
	ChainID     int64  `json:"chainId"`
	IsLocalTest bool   `json:"isLocalTest"`
	RPCURL      string `json:"rpcUrl,omitempty"` // empty when unknown
}

// RelayerMetadata holds the contract addresses a local FHE test chain
// exposes through fhevm_relayer_metadata.
type RelayerMetadata struct {
	ACLAddress           string `json:"ACLAddress"`
	InputVerifierAddress string `json:"InputVerifierAddress"`
	KMSVerifierAddress   string `json:"KMSVerifierAddress"`
}

// Validate checks that every address field is present and 0x-prefixed.
func (m *RelayerMetadata) Validate() error {
	if m == nil {
		return errors.New("relayer metadata is empty")
	}
	fields := []struct {
		name  string
		value string
	}{
		{"ACLAddress", m.ACLAddress},
		{"InputVerifierAddress", m.InputVerifierAddress},
		{"KMSVerifierAddress", m.KMSVerifierAddress},
	}
	for _, f := range fields {
		if !strings.HasPrefix(f.value, "0x") {
			return fmt.Errorf("relayer metadata field %s is missing or not 0x-prefixed: %q", f.name, f.value)
		}
	}
	return nil
}
