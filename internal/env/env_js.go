//go:build js && wasm

package env

import (
	"log/slog"
	"syscall/js"

	"github.com/pendergraft/fhevmkit/internal/sdk"
	"github.com/pendergraft/fhevmkit/internal/sdk/jsbridge"
)

// Detect reports Browser when a DOM document is present.
func Detect() Kind {
	g := js.Global()
	if g.Get("document").Truthy() {
		return Browser
	}
	if p := g.Get("process"); p.Truthy() && p.Get("versions").Truthy() && p.Get("versions").Get("node").Truthy() {
		return Node
	}
	return Unknown
}

func lookupSDK(logger *slog.Logger) *sdk.Handle {
	bundle, err := jsbridge.LookupBundle()
	if err != nil {
		logger.Warn("relayer SDK not loaded", "error", err)
		return nil
	}
	return sdk.NewHandle(bundle)
}
