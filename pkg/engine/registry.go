// Package engine keeps track of the child engines started by a session.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/registry"
)

// DefaultStartupTimeout bounds how long an engine may take to become ready.
const DefaultStartupTimeout = 60 * time.Second

// Handle is the session's record of a started engine.
type Handle struct {
	Name string

	// InitStatements are run once per handle by the switcher.
	InitStatements string

	transport ports.Handle
	initDone  bool
}

// Transport returns the transport-level handle.
func (h *Handle) Transport() ports.Handle {
	return h.transport
}

// NeedsInit reports whether the init statements still have to run.
func (h *Handle) NeedsInit() bool {
	return !h.initDone && h.InitStatements != ""
}

// MarkInitialized records that the init statements ran.
func (h *Handle) MarkInitialized() {
	h.initDone = true
}

// WarnFunc reports a problem to the user without failing the cell.
type WarnFunc func(ctx context.Context, msg string)

// Registry maps engine names to handles. A handle is created at most once per
// name and only replaced by Restart or Revive. Safe for concurrent use: changes
// are serialized by lifeMu and lookups only wait for mu.
type Registry struct {
	lifeMu sync.Mutex
	mu     sync.RWMutex

	transport      ports.Transport
	adapters       *registry.Registry
	handles        map[string]*Handle
	startupTimeout time.Duration
	logger         *slog.Logger
	warn           WarnFunc
	metrics        *metrics.Collectors
}

// Option configures the Registry.
type Option func(*Registry)

// WithStartupTimeout overrides DefaultStartupTimeout.
func WithStartupTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.startupTimeout = d
	}
}

// WithAdapters lets the registry attach init statements to new handles.
func WithAdapters(adapters *registry.Registry) Option {
	return func(r *Registry) {
		r.adapters = adapters
	}
}

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithWarnFunc routes user-facing warnings (e.g. to the session's stderr stream).
func WithWarnFunc(fn WarnFunc) Option {
	return func(r *Registry) {
		r.warn = fn
	}
}

// WithMetrics records engine starts.
func WithMetrics(m *metrics.Collectors) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry on top of transport.
func NewRegistry(transport ports.Transport, opts ...Option) *Registry {
	r := &Registry{
		transport:      transport,
		handles:        make(map[string]*Handle),
		startupTimeout: DefaultStartupTimeout,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.warn == nil {
		r.warn = func(ctx context.Context, msg string) {
			r.logger.WarnContext(ctx, msg)
		}
	}
	return r
}

// SetWarnFunc replaces the warning sink after construction.
func (r *Registry) SetWarnFunc(fn WarnFunc) {
	r.warn = fn
}

// Transport returns the underlying transport.
func (r *Registry) Transport() ports.Transport {
	return r.transport
}

// Ensure returns the handle for name, starting the engine if needed.
// A failed start registers nothing.
func (r *Registry) Ensure(ctx context.Context, name string) (*Handle, error) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	return r.ensure(ctx, name)
}

func (r *Registry) ensure(ctx context.Context, name string) (*Handle, error) {
	if h, ok := r.Get(name); ok {
		return h, nil
	}
	h, err := r.start(ctx, name)
	if err != nil {
		return nil, err
	}
	r.set(name, h)
	return h, nil
}

// Get returns the handle for name without starting anything.
func (r *Registry) Get(name string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	return h, ok
}

func (r *Registry) set(name string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.handles, name)
		return
	}
	r.handles[name] = h
}

// IsAlive reports whether the engine behind h accepts requests.
func (r *Registry) IsAlive(h *Handle) bool {
	return h != nil && r.transport.IsAlive(h.transport)
}

// Restart shuts down the engine (if started) and starts a fresh one.
// A failed shutdown is warned and does not prevent the new start.
func (r *Registry) Restart(ctx context.Context, name string) (*Handle, error) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if old, ok := r.Get(name); ok {
		if err := r.transport.Shutdown(ctx, old.transport); err != nil {
			r.warn(ctx, fmt.Sprintf("Failed to shut down engine %s: %v", name, err))
		}
		r.set(name, nil)
	}
	h, err := r.start(ctx, name)
	if err != nil {
		return nil, err
	}
	r.set(name, h)
	return h, nil
}

// Revive restarts a dead engine in place through the transport.
func (r *Registry) Revive(ctx context.Context, name string) (*Handle, error) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	old, ok := r.Get(name)
	if !ok {
		return r.ensure(ctx, name)
	}

	startCtx, cancel := context.WithTimeout(ctx, r.startupTimeout)
	defer cancel()

	th, err := r.transport.Restart(startCtx, old.transport)
	r.metrics.EngineStarted(name, err)
	if err != nil {
		r.set(name, nil)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEngineStart, name, err)
	}
	h := r.newHandle(name, th)
	r.set(name, h)
	r.logger.Info("Engine revived", "engine", name)
	return h, nil
}

// ShutdownAll stops every started engine. Failures are warned per engine.
func (r *Registry) ShutdownAll(ctx context.Context) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	for _, name := range r.Names() {
		h, _ := r.Get(name)
		if err := r.transport.Shutdown(ctx, h.transport); err != nil {
			r.warn(ctx, fmt.Sprintf("Failed to shut down engine %s: %v", name, err))
		}
		r.set(name, nil)
	}
}

// Names returns the names of the started engines, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) start(ctx context.Context, name string) (*Handle, error) {
	startCtx, cancel := context.WithTimeout(ctx, r.startupTimeout)
	defer cancel()

	r.logger.Debug("Starting engine", "engine", name, "timeout", r.startupTimeout)
	th, err := r.transport.Start(startCtx, name)
	r.metrics.EngineStarted(name, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEngineStart, name, err)
	}
	r.logger.Info("Engine started", "engine", name)
	return r.newHandle(name, th), nil
}

func (r *Registry) newHandle(name string, th ports.Handle) *Handle {
	h := &Handle{Name: name, transport: th}
	if r.adapters != nil {
		if a, ok := r.adapters.Lookup(name); ok {
			h.InitStatements = a.InitStatements()
		}
	}
	return h
}
