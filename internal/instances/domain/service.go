// Package domain contains the instance builder: it resolves the chain behind
// an endpoint and produces either a local test instance or a production
// instance through the relayer SDK.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/env"
	"github.com/pendergraft/fhevmkit/internal/fhe"
	"github.com/pendergraft/fhevmkit/internal/keycache"
	"github.com/pendergraft/fhevmkit/internal/localtest"
	"github.com/pendergraft/fhevmkit/internal/observability/metrics"
	"github.com/pendergraft/fhevmkit/internal/resolver"
	"github.com/pendergraft/fhevmkit/internal/sdk"
)

// Service builds instances. It never retries; retry policy belongs to the
// caller.
type Service struct {
	probe        chains.Probe
	cache        KeyCache
	environment  env.Kind
	sdk          *sdk.Handle
	localFactory LocalFactory
	localClients []string
	strict       bool
	logger       *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithEnvironment sets the runtime environment selected at the boundary.
func WithEnvironment(k env.Kind) Option {
	return func(s *Service) {
		s.environment = k
	}
}

// WithSDK sets the relayer SDK handle used on the production path.
func WithSDK(h *sdk.Handle) Option {
	return func(s *Service) {
		s.sdk = h
	}
}

// WithLocalFactory replaces the local test instance constructor.
func WithLocalFactory(f LocalFactory) Option {
	return func(s *Service) {
		s.localFactory = f
	}
}

// WithLocalClients sets the web3_clientVersion substrings that identify a
// local FHE test node.
func WithLocalClients(clients []string) Option {
	return func(s *Service) {
		s.localClients = clients
	}
}

// WithStrictRelayerMetadata makes a malformed relayer metadata payload on a
// recognized local node fail the build instead of falling through.
func WithStrictRelayerMetadata(strict bool) Option {
	return func(s *Service) {
		s.strict = strict
	}
}

// WithLogger sets the service logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a new instance builder.
func NewService(probe chains.Probe, cache KeyCache, opts ...Option) *Service {
	s := &Service{
		probe:        probe,
		cache:        cache,
		environment:  env.Unknown,
		localFactory: localtest.Factory,
		localClients: chains.DefaultLocalClients,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFor creates an instance builder from the capabilities selected
// at the program boundary.
func NewServiceFor(caps *env.Capabilities, opts ...Option) *Service {
	base := []Option{WithEnvironment(caps.Environment), WithSDK(caps.SDK)}
	// A nil *keycache.Cache must not become a non-nil KeyCache
	var cache KeyCache
	if caps.KeyCache != nil {
		cache = caps.KeyCache
	}
	return NewService(caps.Probe, cache, append(base, opts...)...)
}

var _ Builder = (*Service)(nil)

// Build runs one build to completion. Cancellation of ctx is checked at every
// suspension point and reported as ErrCancelled.
func (s *Service) Build(ctx context.Context, req BuildRequest) (fhe.Instance, error) {
	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	cc, err := resolver.Resolve(ctx, s.probe, req.Endpoint, req.MockChains)
	if err != nil {
		if cErr := cancelled(ctx); cErr != nil {
			return nil, cErr
		}
		return nil, err
	}
	if req.ChainID != nil && *req.ChainID != cc.ChainID {
		s.logger.Warn("resolved chain differs from expected chain",
			"build", req.ID,
			"expected", *req.ChainID,
			"resolved", cc.ChainID,
		)
	}

	if cc.IsLocalTest && cc.RPCURL != "" {
		inst, handled, err := s.buildLocal(ctx, req, cc)
		if handled {
			return inst, err
		}
	}

	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	return s.buildProduction(ctx, req)
}

// buildLocal handles a local test chain. handled is false when the node is
// not an FHE test node and the production path applies.
func (s *Service) buildLocal(ctx context.Context, req BuildRequest, cc chains.ChainContext) (inst fhe.Instance, handled bool, err error) {
	version, err := s.probe.ClientVersion(ctx, cc.RPCURL)
	if err != nil {
		if cErr := cancelled(ctx); cErr != nil {
			return nil, true, cErr
		}
		return nil, true, fmt.Errorf("%w: %s: %w", ErrNetworkUnreachable, cc.RPCURL, err)
	}
	if !chains.IsLocalTestClient(version, s.localClients) {
		s.logger.Debug("local chain is not an FHE test node", "build", req.ID, "clientVersion", version)
		return nil, false, nil
	}

	metadata, err := s.probe.RelayerMetadata(ctx, cc.RPCURL)
	if err != nil {
		if errors.Is(err, chains.ErrMalformedResult) && s.strict {
			return nil, true, fmt.Errorf("%w: %w", ErrRelayerMetadataInvalid, err)
		}
		s.logger.Debug("relayer metadata unavailable", "build", req.ID, "rpcUrl", cc.RPCURL, "error", err)
		return nil, false, nil
	}
	if metadata == nil {
		s.logger.Debug("node reports no relayer metadata", "build", req.ID, "rpcUrl", cc.RPCURL)
		return nil, false, nil
	}
	if err := metadata.Validate(); err != nil {
		if s.strict {
			return nil, true, fmt.Errorf("%w: %w", ErrRelayerMetadataInvalid, err)
		}
		s.logger.Warn("ignoring malformed relayer metadata", "build", req.ID, "rpcUrl", cc.RPCURL, "error", err)
		return nil, false, nil
	}

	notify(s.logger, req, StatusCreating)
	inst, err = s.localFactory(ctx, localtest.Params{
		RPCURL:   cc.RPCURL,
		ChainID:  cc.ChainID,
		Metadata: *metadata,
	})
	if cErr := cancelled(ctx); cErr != nil {
		return nil, true, cErr
	}
	if err != nil {
		return nil, true, fmt.Errorf("creating local test instance: %w", err)
	}
	if inst == nil {
		return nil, true, fmt.Errorf("creating local test instance: %w", ErrNoInstance)
	}
	return inst, true, nil
}

func (s *Service) buildProduction(ctx context.Context, req BuildRequest) (fhe.Instance, error) {
	if s.environment != env.Browser {
		return nil, fmt.Errorf("%w: running in %s", ErrUnsupportedEnvironment, s.environment)
	}

	if s.sdk == nil {
		return nil, fmt.Errorf("%w: relayer SDK is not available", ErrSDKInitialization)
	}
	if !s.sdk.Initialized() {
		notify(s.logger, req, StatusSDKInitializing)
		if err := s.sdk.Init(ctx); err != nil {
			if cErr := cancelled(ctx); cErr != nil {
				return nil, cErr
			}
			return nil, fmt.Errorf("%w: %w", ErrSDKInitialization, err)
		}
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		notify(s.logger, req, StatusSDKInitialized)
	}

	cfg := s.sdk.DefaultConfig()
	acl := cfg.ACLContractAddress
	if acl == "" || !common.IsHexAddress(acl) {
		return nil, fmt.Errorf("%w: %q", ErrAddressInvalid, acl)
	}

	material := s.loadKeyMaterial(ctx, req, acl)
	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	notify(s.logger, req, StatusCreating)
	cfg.Network = req.Endpoint
	cfg.PublicKey = material.PublicKey
	cfg.PublicParams = material.PublicParams
	inst, err := s.sdk.CreateInstance(ctx, cfg)
	if err != nil {
		if cErr := cancelled(ctx); cErr != nil {
			return nil, cErr
		}
		return nil, fmt.Errorf("%w: creating instance: %w", ErrSDKInitialization, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: SDK returned no instance: %w", ErrSDKInitialization, ErrNoInstance)
	}

	// The built instance's key material is worth keeping even if this build
	// has been superseded in the meantime.
	s.saveKeyMaterial(context.WithoutCancel(ctx), req, acl, keycache.PublicKeyMaterial{
		PublicKey:    inst.PublicKey(),
		PublicParams: inst.PublicParams(fhe.DefaultPublicParamsBits),
	})

	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	return inst, nil
}

// loadKeyMaterial reads cached key material. Read failures count as a miss.
func (s *Service) loadKeyMaterial(ctx context.Context, req BuildRequest, acl string) keycache.PublicKeyMaterial {
	if s.cache == nil {
		return keycache.PublicKeyMaterial{}
	}
	m, err := s.cache.Load(ctx, acl)
	switch {
	case err != nil:
		metrics.KeyCache("load", "error")
		s.logger.Warn("reading key cache failed", "build", req.ID, "acl", acl, "error", err)
		return keycache.PublicKeyMaterial{}
	case m.IsZero():
		metrics.KeyCache("load", "miss")
	default:
		metrics.KeyCache("load", "hit")
	}
	return m
}

func (s *Service) saveKeyMaterial(ctx context.Context, req BuildRequest, acl string, m keycache.PublicKeyMaterial) {
	if s.cache == nil {
		return
	}
	err := s.cache.Save(ctx, acl, m)
	if errors.Is(err, keycache.ErrIncompleteMaterial) {
		metrics.KeyCache("save", "skipped")
		s.logger.Warn("instance reported incomplete key material, cache left unchanged", "build", req.ID, "acl", acl)
		return
	}
	if err != nil {
		metrics.KeyCache("save", "error")
		s.logger.Warn("writing key cache failed", "build", req.ID, "acl", acl, "error", err)
		return
	}
	metrics.KeyCache("save", "ok")
}

// notify delivers a status to the request's observer. Observer panics are
// logged and swallowed.
func notify(logger *slog.Logger, req BuildRequest, st Status) {
	if req.OnStatus == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("status observer panicked", "build", req.ID, "status", st, "panic", r)
		}
	}()
	req.OnStatus(st)
}
