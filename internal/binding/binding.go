// Package binding keeps an instance in step with a changing endpoint
// configuration. It owns at most one in-flight build and never lets a
// superseded build overwrite newer state.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/fhe"
	"github.com/pendergraft/fhevmkit/internal/instances/domain"
	"github.com/pendergraft/fhevmkit/internal/observability/metrics"
)

// Status is the binding's lifecycle status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// State is a snapshot of the binding. Instance is set only when ready and
// Err only on error.
type State struct {
	Instance fhe.Instance
	Status   Status
	Err      error
}

// settledTo reports whether s is already the empty state with status st.
// Ready and error states always count as new.
func (s State) settledTo(st Status) bool {
	return s.Status == st && (st == StatusIdle || st == StatusLoading)
}

// Config is the live configuration a binding follows.
type Config struct {
	Endpoint chains.Endpoint
	ChainID  *int64
	Enabled  bool
}

func (c Config) equal(o Config) bool {
	if c.Enabled != o.Enabled || !c.Endpoint.Equal(o.Endpoint) {
		return false
	}
	switch {
	case c.ChainID == nil && o.ChainID == nil:
		return true
	case c.ChainID == nil || o.ChainID == nil:
		return false
	default:
		return *c.ChainID == *o.ChainID
	}
}

// Options configure a Binding.
type Options struct {
	MockChains map[int64]string
	// OnBuildStatus receives the progress notifications of the current build.
	OnBuildStatus func(domain.Status)
	Logger        *slog.Logger
}

// Binding is the framework-agnostic state machine shared by every flavor:
// callbacks (Subscribe), channels (Watch) and HTTP.
//
// Listeners are called synchronously, one at a time, in the order the
// transitions happened. They must not call back into the Binding.
type Binding struct {
	builder domain.Builder
	opts    Options
	logger  *slog.Logger

	mu        sync.Mutex
	cfg       Config
	state     State
	cancel    context.CancelFunc
	closed    bool
	done      chan struct{}
	listeners map[int]func(State)
	nextID    int

	notifyMu sync.Mutex
	wg       sync.WaitGroup
}

// New creates an idle, unconfigured binding.
func New(builder domain.Builder, opts Options) *Binding {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Binding{
		builder:   builder,
		opts:      opts,
		logger:    logger,
		state:     State{Status: StatusIdle},
		done:      make(chan struct{}),
		listeners: make(map[int]func(State)),
	}
}

// State returns the current state.
func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Config returns the configuration the binding currently follows.
func (b *Binding) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Update applies a new configuration. An unchanged configuration is a
// no-op; any change restarts the binding as Refresh does.
func (b *Binding) Update(cfg Config) {
	b.mu.Lock()
	if b.closed || b.cfg.equal(cfg) {
		b.mu.Unlock()
		return
	}
	b.cfg = cfg
	b.restartLocked()
}

// Refresh cancels any in-flight build, resets to idle and, when enabled
// with an endpoint, starts a new build.
func (b *Binding) Refresh() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.restartLocked()
}

// restartLocked must be called with mu held; it releases it.
func (b *Binding) restartLocked() {
	b.cancelLocked()

	var pending []State
	pending = b.setLocked(pending, State{Status: StatusIdle})
	if b.cfg.Enabled && !b.cfg.Endpoint.IsZero() {
		pending = b.setLocked(pending, State{Status: StatusLoading})
		b.startLocked()
	}
	b.unlockAndNotify(pending)
}

// Close cancels any in-flight build and freezes the state. Later calls to
// Update, Refresh and Close do nothing.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cancelLocked()
	close(b.done)
}

// Wait blocks until every build goroutine has returned.
func (b *Binding) Wait() {
	b.wg.Wait()
}

// Subscribe registers fn for every subsequent state transition. The current
// state is not replayed. The returned function unsubscribes.
func (b *Binding) Subscribe(fn func(State)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Watch returns a channel carrying the current state followed by every
// transition. Only the latest undelivered state is kept, so a slow reader
// skips intermediate states but always sees the newest one. The channel is
// closed when ctx ends or the binding is closed.
func (b *Binding) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)
	send := func(s State) {
		select {
		case ch <- s:
		default:
			// Replace the stale undelivered state
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = send
	current := b.state
	b.notifyMu.Lock()
	b.mu.Unlock()
	send(current)
	b.notifyMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
		// No delivery can be in progress once notifyMu is held
		b.notifyMu.Lock()
		close(ch)
		b.notifyMu.Unlock()
	}()
	return ch
}

func (b *Binding) cancelLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// setLocked moves to s and queues a notification if anything changed.
func (b *Binding) setLocked(pending []State, s State) []State {
	if b.state.settledTo(s.Status) {
		return pending
	}
	b.logger.Debug("binding transition", "from", b.state.Status, "to", s.Status, "error", s.Err)
	metrics.BindingTransition(string(s.Status))
	b.state = s
	return append(pending, s)
}

// unlockAndNotify releases mu and delivers pending states. notifyMu is taken
// before mu is released so deliveries keep mutation order.
func (b *Binding) unlockAndNotify(pending []State) {
	if len(pending) == 0 {
		b.mu.Unlock()
		return
	}
	listeners := make([]func(State), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()

	for _, s := range pending {
		for _, fn := range listeners {
			b.deliver(fn, s)
		}
	}
}

func (b *Binding) deliver(fn func(State), s State) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("binding listener panicked", "status", s.Status, "panic", r)
		}
	}()
	fn(s)
}

// startLocked launches a build for the current configuration.
func (b *Binding) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	endpoint := b.cfg.Endpoint
	req := domain.BuildRequest{
		Endpoint:   endpoint,
		ChainID:    b.cfg.ChainID,
		MockChains: b.opts.MockChains,
		OnStatus:   b.opts.OnBuildStatus,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		inst, err := b.builder.Build(ctx, req)
		b.finish(ctx, cancel, endpoint, inst, err)
	}()
}

// finish applies a build outcome if the build is still current.
func (b *Binding) finish(ctx context.Context, cancel context.CancelFunc, endpoint chains.Endpoint, inst fhe.Instance, err error) {
	b.mu.Lock()
	stale := b.closed || ctx.Err() != nil || !endpoint.Equal(b.cfg.Endpoint)
	if stale || errors.Is(err, domain.ErrCancelled) {
		b.mu.Unlock()
		cancel()
		b.logger.Debug("discarding superseded build", "endpoint", endpoint.Kind(), "error", err)
		return
	}

	// The build is current: it owns b.cancel
	b.cancel = nil
	cancel()

	// Ready always carries an instance
	if err == nil && inst == nil {
		err = fmt.Errorf("builder returned no instance: %w", domain.ErrNoInstance)
	}

	var pending []State
	if err != nil {
		pending = b.setLocked(pending, State{Status: StatusError, Err: err})
	} else {
		pending = b.setLocked(pending, State{Status: StatusReady, Instance: inst})
	}
	b.unlockAndNotify(pending)
}
