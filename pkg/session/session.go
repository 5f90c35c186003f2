package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/engine"
	"github.com/aretw0/switchboard/pkg/exchange"
	"github.com/aretw0/switchboard/pkg/host"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/preview"
	"github.com/aretw0/switchboard/pkg/registry"
	"github.com/aretw0/switchboard/pkg/relay"
	"github.com/aretw0/switchboard/pkg/sink"
)

// Persister saves the Host dictionary of a session.
type Persister interface {
	Save(ctx context.Context, dict domain.Dict) error
}

// Cell is one unit of input.
type Cell struct {
	Code string

	// Silent cells produce no result events and no output preview.
	Silent bool

	// CellIndex identifies the cell in a frontend; it is echoed in frontend messages.
	CellIndex *string

	// UserExpressions are evaluated in Host after the cell; values land in Result.UserExpr.
	UserExpressions map[string]string

	// Sink receives the events of this cell instead of the session's default sink.
	Sink ports.OutputSink
}

// Session is the orchestrator. All state is mutated by the dispatch loop
// while the cell lock is held. current, options and counter are also read by
// other goroutines through the accessors, so writes to them take stateMu.
type Session struct {
	cellMu  sync.Mutex
	stateMu sync.RWMutex

	engines   *engine.Registry
	relay     *relay.Loop
	exchange  *exchange.Exchanger
	adapters  *registry.Registry
	host      ports.HostRuntime
	previews  *preview.Registry
	clipboard ports.Clipboard
	persister Persister
	logger    *slog.Logger
	metrics   *metrics.Collectors

	defaultSink ports.OutputSink
	out         ports.OutputSink

	startupTimeout time.Duration
	replyTimeout   time.Duration
	pollWait       time.Duration
	prefix         string
	shell          []string

	current        string
	options        string
	lastCode       string
	previewEnabled bool
	sandboxDepth   int
	cellIndex      *string
	counter        int
	silent         bool
	hardSwitch     bool
	retVars        []string
	dict           domain.Dict
	initial        domain.Dict
	originalKeys   map[string]bool
}

// New creates a session whose engines are started through transport.
func New(transport ports.Transport, opts ...Option) *Session {
	s := &Session{
		logger:         logging.NewNop(),
		defaultSink:    sink.Discard,
		startupTimeout: engine.DefaultStartupTimeout,
		replyTimeout:   relay.DefaultReplyTimeout,
		pollWait:       relay.DefaultPollWait,
		prefix:         domain.DefaultExchangePrefix,
		shell:          []string{"sh", "-c"},
		current:        domain.HostEngine,
		previewEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.adapters == nil {
		s.adapters = registry.NewRegistry(lang.Defaults()...)
	}
	if s.host == nil {
		s.host = host.New(host.WithLogger(s.logger))
	}
	if s.previews == nil {
		s.previews = preview.NewRegistry(preview.Defaults()...)
	}
	if s.dict == nil {
		s.dict = domain.Dict{}
	}
	s.initial = s.dict.Clone()
	s.originalKeys = make(map[string]bool, len(s.dict))
	for k := range s.dict {
		s.originalKeys[k] = true
	}
	s.out = s.defaultSink

	s.engines = engine.NewRegistry(transport,
		engine.WithStartupTimeout(s.startupTimeout),
		engine.WithAdapters(s.adapters),
		engine.WithLogger(s.logger),
		engine.WithMetrics(s.metrics),
		engine.WithWarnFunc(s.warn),
	)
	s.relay = relay.New(s.engines, ports.SinkFunc(s.send), s.Counter,
		relay.WithPollWait(s.pollWait),
		relay.WithReplyTimeout(s.replyTimeout),
		relay.WithLogger(s.logger),
		relay.WithMetrics(s.metrics),
	)
	reserved := make([]string, 0, len(s.originalKeys))
	for k := range s.originalKeys {
		reserved = append(reserved, k)
	}
	s.exchange = exchange.New(s.adapters, s.relay,
		exchange.WithPrefix(s.prefix),
		exchange.WithReserved(reserved...),
		exchange.WithWarnFunc(s.warn),
		exchange.WithLogger(s.logger),
		exchange.WithMetrics(s.metrics),
	)
	return s
}

// Execute runs a top-level cell and returns its result.
func (s *Session) Execute(ctx context.Context, cell Cell) domain.Result {
	s.cellMu.Lock()
	defer s.cellMu.Unlock()

	if cell.Sink != nil {
		s.out = cell.Sink
		defer func() { s.out = s.defaultSink }()
	}
	s.stateMu.Lock()
	s.counter++
	s.stateMu.Unlock()
	s.silent = cell.Silent
	s.hardSwitch = false
	if cell.CellIndex != nil {
		s.cellIndex = cell.CellIndex
	}

	s.logger.Debug("Executing cell", "count", s.counter, "engine", s.current)
	res := s.dispatch(ctx, cell.Code)
	res.ExecutionCount = s.counter

	// Everything below must run even when the cell was interrupted.
	ctx = context.WithoutCancel(ctx)
	if len(cell.UserExpressions) > 0 {
		res.UserExpr = s.evalUserExpressions(ctx, cell.UserExpressions)
	}
	s.send(ctx, domain.FrontendEvent(nil, s.current))
	s.persist(ctx)
	s.logger.Debug("Cell done", "count", s.counter, "status", res.Status)
	s.metrics.CellDone(string(res.Status))
	return res
}

// Close shuts down every engine and the native runtime.
func (s *Session) Close(ctx context.Context) error {
	s.cellMu.Lock()
	defer s.cellMu.Unlock()

	s.engines.ShutdownAll(ctx)
	if c, ok := s.host.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

// Current returns the name of the current engine.
func (s *Session) Current() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.current
}

// Counter returns the execution counter.
func (s *Session) Counter() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.counter
}

// Options returns the persistent session options.
func (s *Session) Options() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.options
}

func (s *Session) setCurrent(name string) {
	s.stateMu.Lock()
	s.current = name
	s.stateMu.Unlock()
}

func (s *Session) setOptions(opts string) {
	s.stateMu.Lock()
	s.options = opts
	s.stateMu.Unlock()
}

// Dict returns a copy of the Host dictionary without values that have no
// data representation.
func (s *Session) Dict() domain.Dict {
	s.cellMu.Lock()
	defer s.cellMu.Unlock()

	out := make(domain.Dict, len(s.dict))
	for k, v := range s.dict {
		if n, err := lang.Normalize(v); err == nil {
			out[k] = n
		}
	}
	return out
}

// Engines returns the names of the started engines.
func (s *Session) Engines() []string {
	return s.engines.Names()
}

// Adapters returns the language adapters known to the session.
func (s *Session) Adapters() []ports.Adapter {
	return s.adapters.Adapters()
}

// Kernels lists Host and every known engine as [engine, language] pairs.
func (s *Session) Kernels() [][]string {
	seen := map[string]bool{domain.HostEngine: true}
	out := [][]string{{domain.HostEngine, domain.HostEngine}}
	for _, a := range s.adapters.Adapters() {
		seen[a.KernelName()] = true
		out = append(out, []string{a.KernelName(), a.Name()})
	}
	names := s.engines.Names()
	sort.Strings(names)
	for _, name := range names {
		if !seen[name] {
			out = append(out, []string{name, name})
		}
	}
	return out
}

// send forwards ev to the sink of the running cell.
func (s *Session) send(ctx context.Context, ev domain.Event) error {
	if err := s.out.Send(ctx, ev); err != nil {
		s.logger.Warn("Failed to send event", "kind", ev.Kind, "error", err)
	}
	return nil
}

func (s *Session) stdout(ctx context.Context, text string) {
	s.send(ctx, domain.StreamEvent(domain.StreamStdout, text))
}

// warn reports a problem to the user on the stderr stream.
func (s *Session) warn(ctx context.Context, msg string) {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	s.logger.Debug("Warning", "msg", strings.TrimSpace(msg))
	s.send(ctx, domain.StreamEvent(domain.StreamStderr, msg))
}

// fail reports err as the error of the current cell.
func (s *Session) fail(ctx context.Context, err error) domain.Result {
	res := domain.Failure(s.counter, err)
	s.send(ctx, domain.Event{
		Kind:       domain.EventError,
		ErrorName:  res.ErrorName,
		ErrorValue: res.ErrorValue,
		Traceback:  res.Traceback,
	})
	return res
}

// interrupted turns an interruption into an abort result.
func (s *Session) interrupted(ctx context.Context) domain.Result {
	s.warn(context.WithoutCancel(ctx), "Interrupted")
	return domain.Abort(s.counter)
}

func (s *Session) result(ctx context.Context, v any) {
	if s.silent || v == nil {
		return
	}
	count := s.counter
	data := map[string]any{domain.MIMEText: host.Format(v)}
	if n, err := lang.Normalize(v); err == nil {
		data[domain.MIMEJSON] = n
	}
	s.send(ctx, domain.Event{Kind: domain.EventResult, Data: data, ExecutionCount: &count})
}

func (s *Session) evalUserExpressions(ctx context.Context, exprs map[string]string) map[string]any {
	out := make(map[string]any, len(exprs))
	for key, expr := range exprs {
		v, err := s.host.Eval(ctx, expr, s.dict)
		if err != nil {
			s.warn(ctx, fmt.Sprintf("Failed to evaluate user expression %s: %v", expr, err))
			out[key] = map[string]any{"status": "error", "evalue": err.Error()}
			continue
		}
		out[key] = map[string]any{"status": "ok", "data": map[string]any{domain.MIMEText: host.Format(v)}}
	}
	return out
}

func (s *Session) persist(ctx context.Context) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, s.dict); err != nil {
		s.warn(ctx, fmt.Sprintf("Failed to save session: %v", err))
	}
}

// isInterrupt reports whether err comes from a cancelled cell.
func isInterrupt(ctx context.Context, err error) bool {
	return errors.Is(err, domain.ErrInterrupted) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}
