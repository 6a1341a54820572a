package domain

import (
	"context"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/fhe"
	"github.com/pendergraft/fhevmkit/internal/keycache"
	"github.com/pendergraft/fhevmkit/internal/localtest"
)

// Status is a progress notification emitted during a build.
type Status string

const (
	StatusSDKInitializing Status = "sdk-initializing"
	StatusSDKInitialized  Status = "sdk-initialized"
	StatusCreating        Status = "creating"
)

// BuildRequest describes one build attempt. Cancellation comes from the
// context passed to Build.
type BuildRequest struct {
	// ID identifies the build in logs. Generated when empty.
	ID       string
	Endpoint chains.Endpoint
	// ChainID is the chain the caller expects, if known. A mismatch with the
	// resolved chain is logged but does not fail the build.
	ChainID    *int64
	MockChains map[int64]string
	// OnStatus receives progress notifications in protocol order. It is
	// called synchronously; panics are recovered.
	OnStatus func(Status)
}

// Builder builds instances.
type Builder interface {
	Build(ctx context.Context, req BuildRequest) (fhe.Instance, error)
}

// KeyCache loads and saves public key material by ACL address.
type KeyCache interface {
	Load(ctx context.Context, acl string) (keycache.PublicKeyMaterial, error)
	Save(ctx context.Context, acl string, m keycache.PublicKeyMaterial) error
}

// LocalFactory constructs an instance for a local test chain.
type LocalFactory func(ctx context.Context, p localtest.Params) (fhe.Instance, error)

// Path names which branch of the protocol produced an instance.
type Path string

const (
	PathLocal      Path = "local"
	PathProduction Path = "production"
)

// PathOf reports the path an instance came from.
func PathOf(inst fhe.Instance) Path {
	if _, ok := inst.(*localtest.Instance); ok {
		return PathLocal
	}
	return PathProduction
}
