package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/pendergraft/fhevmkit/internal/resolver"
)

// Errors returned by Build. Match them with errors.Is.
var (
	ErrNetworkUnreachable     = errors.New("local node did not answer web3_clientVersion")
	ErrRelayerMetadataInvalid = errors.New("relayer metadata is malformed")
	ErrSDKInitialization      = errors.New("relayer SDK initialization failed")
	ErrAddressInvalid         = errors.New("ACL contract address is missing or invalid")
	ErrUnsupportedEnvironment = errors.New("production instances can only be built in a browser")
	ErrCancelled              = errors.New("build cancelled")
	// ErrNoInstance reports a collaborator that returned neither an instance
	// nor an error. It maps to INTERNAL_ERROR.
	ErrNoInstance = errors.New("no instance was returned")
)

// Error codes reported to callers
const (
	CodeChainResolution        = "CHAIN_RESOLUTION_ERROR"
	CodeNetworkUnreachable     = "WEB3_CLIENTVERSION_ERROR"
	CodeRelayerMetadataInvalid = "FHEVM_RELAYER_METADATA_ERROR"
	CodeSDKInitialization      = "SDK_INITIALIZATION_FAILED"
	CodeAddressInvalid         = "ADDRESS_INVALID"
	CodeUnsupportedEnvironment = "UNSUPPORTED_ENVIRONMENT"
	CodeCancelled              = "CANCELLED"
	CodeInternal               = "INTERNAL_ERROR"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrCancelled, CodeCancelled},
	{resolver.ErrChainResolution, CodeChainResolution},
	{ErrNetworkUnreachable, CodeNetworkUnreachable},
	{ErrRelayerMetadataInvalid, CodeRelayerMetadataInvalid},
	{ErrSDKInitialization, CodeSDKInitialization},
	{ErrAddressInvalid, CodeAddressInvalid},
	{ErrUnsupportedEnvironment, CodeUnsupportedEnvironment},
}

// Code returns the stable code for a Build error, or "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// cancelled returns ErrCancelled wrapping the context error once ctx is done.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}
