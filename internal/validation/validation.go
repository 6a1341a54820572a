// Package validation provides input validation for fhevmkit.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"

	"github.com/pendergraft/fhevmkit/internal/chains"
)

// ValidateAddress validates an Ethereum address (0x followed by 40 hex chars)
func ValidateAddress(addr string) error {
	if addr == "" {
		return errors.New("address cannot be empty")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: must be 0x followed by 40 hex characters")
	}
	return nil
}

// IsAddress reports whether addr is a well-formed Ethereum address
func IsAddress(addr string) bool {
	return ValidateAddress(addr) == nil
}

// ValidateRPCURL validates a JSON-RPC endpoint URL
func ValidateRPCURL(raw string) error {
	if raw == "" {
		return errors.New("RPC URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid RPC URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid RPC URL scheme %q: must be http, https, ws or wss", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("invalid RPC URL: missing host")
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidateMockChains validates every entry of a mock chain table
func ValidateMockChains(table map[int64]string) error {
	for id, rpcURL := range table {
		if err := ValidateChainID(id); err != nil {
			return fmt.Errorf("mock chain %d: %w", id, err)
		}
		if err := ValidateRPCURL(rpcURL); err != nil {
			return fmt.Errorf("mock chain %d: %w", id, err)
		}
	}
	return nil
}

// ValidateRelayerMetadata validates the relayer contract addresses reported
// by a local node, beyond the 0x prefix check the builder applies
func ValidateRelayerMetadata(m *chains.RelayerMetadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	fields := []struct{ name, addr string }{
		{"ACLAddress", m.ACLAddress},
		{"InputVerifierAddress", m.InputVerifierAddress},
		{"KMSVerifierAddress", m.KMSVerifierAddress},
	}
	for _, f := range fields {
		if err := ValidateAddress(f.addr); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}

// ValidateClientVersion checks that a web3_clientVersion string carries a
// semantic version, e.g. "HardhatNetwork/2.22.0/@ethereumjs/vm/7.0.0"
func ValidateClientVersion(raw string) error {
	v := chains.ParseClientVersion(raw)
	if v.Name == "" {
		return errors.New("client version cannot be empty")
	}
	if v.Version == "" || !semver.IsValid(v.Version) {
		return fmt.Errorf("client version %q carries no semantic version", raw)
	}
	return nil
}
