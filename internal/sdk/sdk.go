// Package sdk wraps the externally loaded relayer SDK behind an explicit
// handle with its own initialization state.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/fhe"
)

// ErrInitFailed is returned when the bundle's init entry point reports failure.
var ErrInitFailed = errors.New("relayer SDK initialization failed")

// Config is the network configuration handed to CreateInstance. The default
// config comes from the bundle; the builder fills in Network and key material.
type Config struct {
	ACLContractAddress           string
	KMSContractAddress           string
	InputVerifierContractAddress string
	ChainID                      int64
	GatewayChainID               int64
	RelayerURL                   string

	Network      chains.Endpoint
	PublicKey    string
	PublicParams string
}

// Bundle is the external SDK itself.
type Bundle interface {
	// InitSDK runs the bundle's async init entry point.
	InitSDK(ctx context.Context) (bool, error)
	// DefaultConfig returns the bundle's default network configuration.
	DefaultConfig() Config
	// CreateInstance builds a production instance.
	CreateInstance(ctx context.Context, cfg Config) (fhe.Instance, error)
}

// State is the handle's initialization state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle is a process-wide, injected handle to a Bundle. Init is
// single-flight: concurrent callers share one in-flight initialization.
type Handle struct {
	bundle Bundle

	mu    sync.Mutex
	state State
	done  chan struct{} // closed when the in-flight init finishes
	err   error         // result of the last finished init
}

// NewHandle creates a handle for a bundle that has not been initialized yet.
func NewHandle(b Bundle) *Handle {
	return &Handle{bundle: b}
}

// State returns the current initialization state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Initialized reports whether Init has completed successfully.
func (h *Handle) Initialized() bool {
	return h.State() == StateReady
}

// Init initializes the bundle once. A failed init returns the handle to
// the uninitialized state so a later caller can try again. If ctx ends while
// another caller's init is in flight, Init returns the context error and the
// init keeps running.
func (h *Handle) Init(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case StateReady:
		h.mu.Unlock()
		return nil
	case StateInitializing:
		done := h.done
		h.mu.Unlock()
		select {
		case <-done:
			h.mu.Lock()
			err := h.err
			h.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.state = StateInitializing
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	ok, err := h.bundle.InitSDK(ctx)
	if err == nil && !ok {
		err = ErrInitFailed
	} else if err != nil {
		err = fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	h.mu.Lock()
	h.err = err
	if err != nil {
		h.state = StateUninitialized
	} else {
		h.state = StateReady
	}
	close(done)
	h.mu.Unlock()

	return err
}

// DefaultConfig returns the bundle's default configuration.
func (h *Handle) DefaultConfig() Config {
	return h.bundle.DefaultConfig()
}

// CreateInstance builds a production instance. The handle must be initialized.
func (h *Handle) CreateInstance(ctx context.Context, cfg Config) (fhe.Instance, error) {
	if !h.Initialized() {
		return nil, errors.New("relayer SDK is not initialized")
	}
	return h.bundle.CreateInstance(ctx, cfg)
}
