// Package env detects the runtime environment and assembles the
// capabilities the instance builder needs. Detection happens here, at the
// program boundary, and nowhere else.
package env

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/fhevmkit/internal/chains/evm"
	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/keycache"
	"github.com/pendergraft/fhevmkit/internal/sdk"
	"github.com/pendergraft/fhevmkit/internal/storage"
)

// Kind is the runtime environment a build runs in.
type Kind string

const (
	Browser Kind = "browser"
	Node    Kind = "node"
	Unknown Kind = "unknown"
)

// ParseKind parses an environment name. Unrecognized names map to Unknown.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case Browser:
		return Browser
	case Node:
		return Node
	default:
		return Unknown
	}
}

// Capabilities are the environment specific collaborators of a build.
type Capabilities struct {
	Environment Kind
	Probe       *evm.Probe
	Store       storage.Store
	KeyCache    *keycache.Cache
	// SDK is nil when no relayer SDK bundle is available.
	SDK *sdk.Handle
}

// Close releases the store.
func (c *Capabilities) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// Select detects the environment and opens the configured key cache.
func Select(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Capabilities, error) {
	kind := Detect()

	store, err := storage.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening key cache: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrating key cache: %w", err)
	}

	handle := lookupSDK(logger)

	logger.Debug("environment selected",
		"environment", kind,
		"keyCache", cfg.Type,
		"sdk", handle != nil,
	)

	return &Capabilities{
		Environment: kind,
		Probe:       evm.NewProbe(evm.WithLogger(logger)),
		Store:       store,
		KeyCache:    keycache.New(store),
		SDK:         handle,
	}, nil
}
