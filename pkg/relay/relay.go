// Package relay drives one request/response cycle with a child engine and
// forwards its events to the session's output sink in arrival order.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/engine"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/aretw0/switchboard/pkg/ports"
)

const (
	// DefaultPollWait is how long a single poll waits for the next event.
	DefaultPollWait = 100 * time.Millisecond
	// DefaultReplyTimeout bounds the reply fetch after the engine went idle.
	DefaultReplyTimeout = 5 * time.Second
)

// Loop relays requests to engines of a registry.
type Loop struct {
	engines      *engine.Registry
	sink         ports.OutputSink
	counter      func() int
	pollWait     time.Duration
	replyTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Collectors
}

// Option configures the Loop.
type Option func(*Loop)

// WithPollWait overrides DefaultPollWait.
func WithPollWait(d time.Duration) Option {
	return func(l *Loop) {
		l.pollWait = d
	}
}

// WithReplyTimeout overrides DefaultReplyTimeout.
func WithReplyTimeout(d time.Duration) Option {
	return func(l *Loop) {
		l.replyTimeout = d
	}
}

// WithLogger configures a logger for the Loop.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithMetrics records relayed events and relay durations.
func WithMetrics(m *metrics.Collectors) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// New creates a Loop. counter returns the session execution counter that
// replaces the engines' own counters.
func New(engines *engine.Registry, sink ports.OutputSink, counter func() int, opts ...Option) *Loop {
	l := &Loop{
		engines:      engines,
		sink:         sink,
		counter:      counter,
		pollWait:     DefaultPollWait,
		replyTimeout: DefaultReplyTimeout,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes code in the named engine, forwarding its events.
func (l *Loop) Run(ctx context.Context, name, code string) (domain.Result, error) {
	return l.relay(ctx, name, code, false, l.forward)
}

// RunSilent executes code without increasing the engine's counter.
// Events are still forwarded so that failures are visible.
func (l *Loop) RunSilent(ctx context.Context, name, code string) (domain.Result, error) {
	return l.relay(ctx, name, code, true, l.forward)
}

// Query executes code silently and returns what the engine printed on stdout.
// Other events are forwarded; an engine error fails the query.
func (l *Loop) Query(ctx context.Context, name, code string) (string, error) {
	var out strings.Builder
	res, err := l.relay(ctx, name, code, true, func(ctx context.Context, ev domain.Event) {
		if ev.Kind == domain.EventStream && ev.Name == domain.StreamStdout {
			out.WriteString(ev.Text)
			return
		}
		l.forward(ctx, ev)
	})
	if err != nil {
		return "", err
	}
	if res.Status != domain.StatusOK {
		return out.String(), fmt.Errorf("%s: %s", res.ErrorName, res.ErrorValue)
	}
	return out.String(), nil
}

// Querier binds Query to one engine.
func (l *Loop) Querier(name string) ports.Querier {
	return querier{loop: l, name: name}
}

type querier struct {
	loop *Loop
	name string
}

func (q querier) Query(ctx context.Context, code string) (string, error) {
	return q.loop.Query(ctx, q.name, code)
}

func (l *Loop) relay(ctx context.Context, name, code string, silent bool, forward func(context.Context, domain.Event)) (domain.Result, error) {
	start := time.Now()
	defer func() {
		l.metrics.ObserveRelay(name, time.Since(start))
	}()

	h, err := l.handle(ctx, name)
	if err != nil {
		return domain.Result{}, err
	}
	tr := l.engines.Transport()

	if err := l.drain(ctx, h); err != nil {
		return domain.Result{}, err
	}

	reqID, err := tr.Execute(ctx, h.Transport(), code, silent)
	if err != nil {
		return domain.Result{}, l.wrap(ctx, name, err)
	}
	l.logger.Debug("Request submitted", "engine", name, "request", reqID, "silent", silent)

	seenBusy := false
	for {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrInterrupted, err)
		}
		ev, ok, err := tr.PollEvent(ctx, h.Transport(), l.pollWait)
		if err != nil {
			return domain.Result{}, l.wrap(ctx, name, err)
		}
		if !ok {
			continue
		}
		if ev.Kind == domain.EventStatus {
			switch ev.State {
			case domain.StateBusy:
				seenBusy = seenBusy || ev.RequestID == "" || ev.RequestID == reqID
			case domain.StateIdle:
				if ev.RequestID == reqID || (ev.RequestID == "" && seenBusy) {
					return l.reply(ctx, h, name)
				}
			}
			continue
		}
		if ev.RequestID != "" && ev.RequestID != reqID {
			l.logger.Debug("Dropping event of another request", "engine", name, "kind", ev.Kind, "request", ev.RequestID)
			continue
		}
		if ev.ExecutionCount != nil {
			count := l.counter()
			ev.ExecutionCount = &count
		}
		l.metrics.RelayEvent(name, string(ev.Kind))
		forward(ctx, ev)
	}
}

// handle resolves the engine, reviving it when its transport died.
func (l *Loop) handle(ctx context.Context, name string) (*engine.Handle, error) {
	h, err := l.engines.Ensure(ctx, name)
	if err != nil {
		return nil, err
	}
	if l.engines.IsAlive(h) {
		return h, nil
	}
	l.forward(ctx, domain.StreamEvent(domain.StreamStdout, fmt.Sprintf("Restarting engine %s ...\n", name)))
	l.logger.Warn("Engine is dead, restarting", "engine", name)
	h, err = l.engines.Revive(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := l.Initialize(ctx, h); err != nil {
		l.forward(ctx, domain.StreamEvent(domain.StreamStderr, fmt.Sprintf("Failed to initialize engine %s: %v\n", name, err)))
	}
	return h, nil
}

// Initialize runs the init statements of h once. Handles without pending
// init statements are left alone.
func (l *Loop) Initialize(ctx context.Context, h *engine.Handle) error {
	if !h.NeedsInit() {
		return nil
	}
	h.MarkInitialized()
	_, err := l.relay(ctx, h.Name, h.InitStatements, true, l.forward)
	return err
}

// drain discards events queued before this request.
func (l *Loop) drain(ctx context.Context, h *engine.Handle) error {
	tr := l.engines.Transport()
	for {
		ev, ok, err := tr.PollEvent(ctx, h.Transport(), 0)
		if err != nil {
			return l.wrap(ctx, h.Name, err)
		}
		if !ok {
			return nil
		}
		l.logger.Debug("Discarding stale event", "engine", h.Name, "kind", ev.Kind)
	}
}

func (l *Loop) reply(ctx context.Context, h *engine.Handle, name string) (domain.Result, error) {
	res, err := l.engines.Transport().Reply(ctx, h.Transport(), l.replyTimeout)
	if err != nil {
		return domain.Result{}, l.wrap(ctx, name, err)
	}
	res.ExecutionCount = l.counter()
	return res, nil
}

func (l *Loop) forward(ctx context.Context, ev domain.Event) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Send(ctx, ev); err != nil {
		l.logger.Warn("Failed to forward event", "kind", ev.Kind, "error", err)
	}
}

func (l *Loop) wrap(ctx context.Context, name string, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())
	case errors.Is(err, domain.ErrChildDead), errors.Is(err, domain.ErrRelayTimeout):
		return err
	}
	return fmt.Errorf("relay %s: %w", name, err)
}
