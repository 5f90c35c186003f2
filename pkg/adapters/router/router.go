// Package router combines several transports behind one ports.Transport,
// choosing the transport by engine name.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Router dispatches engine names to transports.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]ports.Transport
	fallback ports.Transport
}

// Option configures the Router.
type Option func(*Router)

// WithRoute sends engine name to t.
func WithRoute(name string, t ports.Transport) Option {
	return func(r *Router) {
		r.routes[name] = t
	}
}

// WithFallback sends every unrouted engine to t.
func WithFallback(t ports.Transport) Option {
	return func(r *Router) {
		r.fallback = t
	}
}

// New creates a router.
func New(opts ...Option) *Router {
	r := &Router{routes: make(map[string]ports.Transport)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route sends engine name to t, replacing an earlier route.
func (r *Router) Route(name string, t ports.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[name] = t
}

// Engines returns the routed engine names, sorted.
func (r *Router) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) lookup(name string) (ports.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.routes[name]; ok {
		return t, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrEngineNotFound, name)
}

// Start starts name on its transport.
func (r *Router) Start(ctx context.Context, name string) (ports.Handle, error) {
	t, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return t.Start(ctx, name)
}

// IsAlive asks the transport of h.
func (r *Router) IsAlive(h ports.Handle) bool {
	t, err := r.lookup(h.Engine())
	return err == nil && t.IsAlive(h)
}

// Restart restarts h on its transport.
func (r *Router) Restart(ctx context.Context, h ports.Handle) (ports.Handle, error) {
	t, err := r.lookup(h.Engine())
	if err != nil {
		return nil, err
	}
	return t.Restart(ctx, h)
}

// Shutdown stops h on its transport.
func (r *Router) Shutdown(ctx context.Context, h ports.Handle) error {
	t, err := r.lookup(h.Engine())
	if err != nil {
		return err
	}
	return t.Shutdown(ctx, h)
}

// Execute submits code on the transport of h.
func (r *Router) Execute(ctx context.Context, h ports.Handle, code string, silent bool) (string, error) {
	t, err := r.lookup(h.Engine())
	if err != nil {
		return "", err
	}
	return t.Execute(ctx, h, code, silent)
}

// PollEvent polls the transport of h.
func (r *Router) PollEvent(ctx context.Context, h ports.Handle, wait time.Duration) (domain.Event, bool, error) {
	t, err := r.lookup(h.Engine())
	if err != nil {
		return domain.Event{}, false, err
	}
	return t.PollEvent(ctx, h, wait)
}

// Reply waits on the transport of h.
func (r *Router) Reply(ctx context.Context, h ports.Handle, timeout time.Duration) (domain.Result, error) {
	t, err := r.lookup(h.Engine())
	if err != nil {
		return domain.Result{}, err
	}
	return t.Reply(ctx, h, timeout)
}

var _ ports.Transport = (*Router)(nil)
