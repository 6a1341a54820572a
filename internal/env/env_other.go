//go:build !(js && wasm)

package env

import (
	"log/slog"

	"github.com/pendergraft/fhevmkit/internal/sdk"
)

// Detect reports Node for native builds: a server-side runtime without a DOM.
func Detect() Kind {
	return Node
}

// Native builds have no relayer SDK bundle.
func lookupSDK(logger *slog.Logger) *sdk.Handle {
	return nil
}
