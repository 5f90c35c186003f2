package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/google/uuid"
)

// Request is one execute request as seen by an in-process engine.
type Request struct {
	ID     string
	Code   string
	Silent bool

	// ExecutionCount is the engine's own counter, already incremented for
	// non-silent requests.
	ExecutionCount int
}

// Engine executes requests in-process. Events are published through emit in
// the order the engine produces them; the returned Result becomes the reply.
type Engine interface {
	Execute(ctx context.Context, req Request, emit func(domain.Event)) domain.Result
	Close()
}

// EngineFunc adapts a function to a stateless Engine.
type EngineFunc func(ctx context.Context, req Request, emit func(domain.Event)) domain.Result

// Execute calls f.
func (f EngineFunc) Execute(ctx context.Context, req Request, emit func(domain.Event)) domain.Result {
	return f(ctx, req, emit)
}

// Close does nothing.
func (EngineFunc) Close() {}

// Factory creates a fresh engine instance every time the engine is started.
type Factory func() (Engine, error)

// Transport runs engines as goroutines of the current process.
// Safe for concurrent use.
type Transport struct {
	mu        sync.Mutex
	factories map[string]Factory
	requests  []Request
	logger    *slog.Logger
}

// Option configures the Transport.
type Option func(*Transport)

// WithLogger configures a logger for the Transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithEngine registers a factory under name.
func WithEngine(name string, f Factory) Option {
	return func(t *Transport) {
		t.factories[name] = f
	}
}

// NewTransport creates a transport without engines.
func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		factories: make(map[string]Factory),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds (or replaces) the factory for name.
func (t *Transport) Register(name string, f Factory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factories[name] = f
}

// RegisterFunc registers a stateless engine.
func (t *Transport) RegisterFunc(name string, fn EngineFunc) {
	t.Register(name, func() (Engine, error) { return fn, nil })
}

// Has reports whether an engine named name is registered.
func (t *Transport) Has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.factories[name]
	return ok
}

// Engines returns the registered engine names, sorted.
func (t *Transport) Engines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.factories))
	for name := range t.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Requests returns every request submitted so far, in order.
func (t *Transport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// Start creates a new engine instance.
func (t *Transport) Start(ctx context.Context, name string) (ports.Handle, error) {
	t.mu.Lock()
	f, ok := t.factories[name]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEngineNotFound, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	engine, err := f()
	if err != nil {
		return nil, err
	}
	t.logger.Debug("memory engine started", "engine", name)
	return newHandle(name, engine), nil
}

// IsAlive reports whether h was neither killed nor shut down.
func (t *Transport) IsAlive(h ports.Handle) bool {
	mh, ok := h.(*Handle)
	return ok && !mh.isDead()
}

// Restart shuts h down and starts a new instance of the same engine.
func (t *Transport) Restart(ctx context.Context, h ports.Handle) (ports.Handle, error) {
	_ = t.Shutdown(ctx, h)
	return t.Start(ctx, h.Engine())
}

// Shutdown closes the engine. Calling it twice is harmless.
func (t *Transport) Shutdown(_ context.Context, h ports.Handle) error {
	mh, err := asHandle(h)
	if err != nil {
		return err
	}
	mh.kill()
	return nil
}

// Kill marks h dead without closing it cleanly, as if the engine crashed.
func (t *Transport) Kill(h ports.Handle) {
	if mh, ok := h.(*Handle); ok {
		mh.kill()
	}
}

// Execute runs code on a goroutine and returns its request ID.
func (t *Transport) Execute(ctx context.Context, h ports.Handle, code string, silent bool) (string, error) {
	mh, err := asHandle(h)
	if err != nil {
		return "", err
	}
	if mh.isDead() {
		return "", fmt.Errorf("%w: %s", domain.ErrChildDead, mh.name)
	}

	req := Request{ID: uuid.NewString(), Code: code, Silent: silent}
	// A reply nobody fetched belongs to an earlier request.
	select {
	case <-mh.replies:
	default:
	}

	mh.mu.Lock()
	if !silent {
		mh.count++
	}
	req.ExecutionCount = mh.count
	mh.lastID = req.ID
	mh.mu.Unlock()

	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	mh.mu.Lock()
	mh.cancel = cancel
	mh.mu.Unlock()
	go func() {
		defer cancel()
		mh.run(runCtx, req)
	}()
	return req.ID, nil
}

// PollEvent returns the next queued event, waiting at most wait.
func (t *Transport) PollEvent(ctx context.Context, h ports.Handle, wait time.Duration) (domain.Event, bool, error) {
	mh, err := asHandle(h)
	if err != nil {
		return domain.Event{}, false, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		if ev, ok := mh.pop(); ok {
			return ev, true, nil
		}
		if mh.isDead() {
			return domain.Event{}, false, fmt.Errorf("%w: %s", domain.ErrChildDead, mh.name)
		}
		select {
		case <-ctx.Done():
			return domain.Event{}, false, ctx.Err()
		case <-timer.C:
			return domain.Event{}, false, nil
		case <-mh.notify:
		}
	}
}

// Reply waits for the reply of the last request.
func (t *Transport) Reply(ctx context.Context, h ports.Handle, timeout time.Duration) (domain.Result, error) {
	mh, err := asHandle(h)
	if err != nil {
		return domain.Result{}, err
	}
	select {
	case res := <-mh.replies:
		return res, nil
	case <-mh.done:
		return domain.Result{}, fmt.Errorf("%w: %s", domain.ErrChildDead, mh.name)
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	case <-time.After(timeout):
		return domain.Result{}, fmt.Errorf("%w: %s after %s", domain.ErrRelayTimeout, mh.name, timeout)
	}
}

// Handle is the memory transport's engine handle.
type Handle struct {
	name   string
	engine Engine

	mu      sync.Mutex
	queue   []domain.Event
	count   int
	lastID  string
	dead    bool
	cancel  context.CancelFunc
	notify  chan struct{}
	replies chan domain.Result
	done    chan struct{}
}

func newHandle(name string, engine Engine) *Handle {
	return &Handle{
		name:    name,
		engine:  engine,
		notify:  make(chan struct{}, 1),
		replies: make(chan domain.Result, 1),
		done:    make(chan struct{}),
	}
}

// Engine returns the engine name.
func (h *Handle) Engine() string { return h.name }

func (h *Handle) run(ctx context.Context, req Request) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			h.push(domain.Event{Kind: domain.EventError, ErrorName: "Panic", ErrorValue: msg, RequestID: req.ID})
			h.push(domain.Event{Kind: domain.EventStatus, State: domain.StateIdle, RequestID: req.ID})
			h.reply(req.ID, domain.Result{Status: domain.StatusError, ExecutionCount: req.ExecutionCount, ErrorName: "Panic", ErrorValue: msg})
		}
	}()

	h.push(domain.Event{Kind: domain.EventStatus, State: domain.StateBusy, RequestID: req.ID})
	res := h.engine.Execute(ctx, req, func(ev domain.Event) {
		ev.RequestID = req.ID
		h.push(ev)
	})
	if res.ExecutionCount == 0 {
		res.ExecutionCount = req.ExecutionCount
	}
	h.push(domain.Event{Kind: domain.EventStatus, State: domain.StateIdle, RequestID: req.ID})
	h.reply(req.ID, res)
}

func (h *Handle) push(ev domain.Event) {
	h.mu.Lock()
	if h.dead {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, ev)
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Handle) pop() (domain.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return domain.Event{}, false
	}
	ev := h.queue[0]
	h.queue = h.queue[1:]
	return ev, true
}

func (h *Handle) reply(id string, res domain.Result) {
	h.mu.Lock()
	stale := h.dead || id != h.lastID
	h.mu.Unlock()
	if stale {
		return
	}
	// Only the latest reply is kept.
	select {
	case <-h.replies:
	default:
	}
	h.replies <- res
}

func (h *Handle) isDead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead
}

func (h *Handle) kill() {
	h.mu.Lock()
	if h.dead {
		h.mu.Unlock()
		return
	}
	h.dead = true
	h.queue = nil
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	close(h.done)
	h.engine.Close()
}

func asHandle(h ports.Handle) (*Handle, error) {
	mh, ok := h.(*Handle)
	if !ok || mh == nil {
		return nil, fmt.Errorf("memory transport: foreign handle %T", h)
	}
	return mh, nil
}

var _ ports.Transport = (*Transport)(nil)
