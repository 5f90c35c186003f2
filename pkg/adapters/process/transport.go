package process

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/switchboard/internal/eventq"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/google/uuid"
)

// DefaultGracePeriod is how long Shutdown waits between SIGTERM and SIGKILL.
const DefaultGracePeriod = 3 * time.Second

// DefaultShutdownWait is how long a child may take to exit on its own after
// the shutdown message before it gets SIGTERM.
const DefaultShutdownWait = time.Second

// maxLine bounds a single protocol line (large display bundles included).
const maxLine = 64 << 20

// Transport runs engines as child processes speaking line-delimited JSON
// over stdin and stdout. Lines on stdout that are not JSON objects, and
// everything the child writes to stderr, are relayed as stream output.
type Transport struct {
	mu           sync.Mutex
	configs      map[string]Config
	grace        time.Duration
	shutdownWait time.Duration
	logger       *slog.Logger
}

// Option configures the Transport.
type Option func(*Transport)

// WithLogger configures a logger for the Transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) Option {
	return func(t *Transport) {
		t.grace = d
	}
}

// WithShutdownWait overrides DefaultShutdownWait.
func WithShutdownWait(d time.Duration) Option {
	return func(t *Transport) {
		t.shutdownWait = d
	}
}

// WithEngine registers cfg under cfg.Name.
func WithEngine(cfg Config) Option {
	return func(t *Transport) {
		t.configs[cfg.Name] = cfg
	}
}

// NewTransport creates a transport for the given engines.
func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		configs:      make(map[string]Config),
		grace:        DefaultGracePeriod,
		shutdownWait: DefaultShutdownWait,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds (or replaces) an engine configuration.
func (t *Transport) Register(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.configs[cfg.Name] = cfg
	return nil
}

// Has reports whether an engine named name is configured.
func (t *Transport) Has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.configs[name]
	return ok
}

// Engines returns the configured engine names, sorted.
func (t *Transport) Engines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.configs))
	for name := range t.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches the child and waits for its ready message.
func (t *Transport) Start(ctx context.Context, name string) (ports.Handle, error) {
	t.mu.Lock()
	cfg, ok := t.configs[name]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEngineNotFound, name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineStart, err)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Environ()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEngineStart, name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEngineStart, name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEngineStart, name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEngineStart, name, err)
	}

	h := newHandle(name, cmd, stdin, t.logger.With("engine", name, "pid", cmd.Process.Pid))
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		h.readLoop(stdout)
	}()
	go func() {
		defer readers.Done()
		h.readStderr(stderr)
	}()
	go func() {
		readers.Wait()
		err := cmd.Wait()
		h.exited(err)
	}()

	select {
	case <-h.ready:
		h.logger.Debug("Engine ready")
		return h, nil
	case <-h.done:
		return nil, fmt.Errorf("%w: %s exited before ready: %v", domain.ErrEngineStart, name, h.exitErr())
	case <-ctx.Done():
		h.stop(context.Background(), 0, t.grace)
		return nil, fmt.Errorf("%w: %s not ready: %v", domain.ErrEngineStart, name, ctx.Err())
	}
}

// IsAlive reports whether the child is still running.
func (t *Transport) IsAlive(h ports.Handle) bool {
	ph, ok := h.(*Handle)
	return ok && !ph.isDead()
}

// Restart stops h and starts a new child for the same engine.
func (t *Transport) Restart(ctx context.Context, h ports.Handle) (ports.Handle, error) {
	_ = t.Shutdown(ctx, h)
	return t.Start(ctx, h.Engine())
}

// Shutdown asks the child to exit and waits for it, then escalates to SIGTERM
// and, after the grace period, SIGKILL. It returns once the child is gone.
func (t *Transport) Shutdown(ctx context.Context, h ports.Handle) error {
	ph, err := asHandle(h)
	if err != nil {
		return err
	}
	ph.stop(ctx, t.shutdownWait, t.grace)
	return nil
}

// Execute writes an execute request to the child.
func (t *Transport) Execute(_ context.Context, h ports.Handle, code string, silent bool) (string, error) {
	ph, err := asHandle(h)
	if err != nil {
		return "", err
	}
	if ph.isDead() {
		return "", fmt.Errorf("%w: %s", domain.ErrChildDead, ph.name)
	}

	id := uuid.NewString()
	// A reply nobody fetched belongs to an earlier request.
	ph.replies.Clear()
	ph.mu.Lock()
	ph.lastID = id
	ph.mu.Unlock()

	if err := ph.send(Message{Type: TypeExecute, ID: id, Code: code, Silent: silent}); err != nil {
		if ph.isDead() {
			return "", fmt.Errorf("%w: %s", domain.ErrChildDead, ph.name)
		}
		return "", err
	}
	return id, nil
}

// PollEvent returns the next queued event, waiting at most wait. A canceled
// ctx interrupts the child.
func (t *Transport) PollEvent(ctx context.Context, h ports.Handle, wait time.Duration) (domain.Event, bool, error) {
	ph, err := asHandle(h)
	if err != nil {
		return domain.Event{}, false, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		if ev, ok := ph.queue.Pop(); ok {
			return ev, true, nil
		}
		if ph.isDead() {
			return domain.Event{}, false, fmt.Errorf("%w: %s: %v", domain.ErrChildDead, ph.name, ph.exitErr())
		}
		select {
		case <-ctx.Done():
			ph.interrupt()
			return domain.Event{}, false, ctx.Err()
		case <-timer.C:
			return domain.Event{}, false, nil
		case <-ph.queue.Notify():
		case <-ph.done:
		}
	}
}

// Reply waits for the reply to the last request.
func (t *Transport) Reply(ctx context.Context, h ports.Handle, timeout time.Duration) (domain.Result, error) {
	ph, err := asHandle(h)
	if err != nil {
		return domain.Result{}, err
	}
	select {
	case res := <-ph.replies:
		return res, nil
	default:
	}
	select {
	case res := <-ph.replies:
		return res, nil
	case <-ph.done:
		return domain.Result{}, fmt.Errorf("%w: %s", domain.ErrChildDead, ph.name)
	case <-ctx.Done():
		ph.interrupt()
		return domain.Result{}, ctx.Err()
	case <-time.After(timeout):
		return domain.Result{}, fmt.Errorf("%w: %s after %s", domain.ErrRelayTimeout, ph.name, timeout)
	}
}

// Handle is a running child engine.
type Handle struct {
	name   string
	cmd    *exec.Cmd
	logger *slog.Logger

	writeMu sync.Mutex
	stdin   io.WriteCloser

	queue   *eventq.Queue
	replies eventq.Latest

	mu      sync.Mutex
	lastID  string
	dead    bool
	waitErr error

	ready     chan struct{}
	done      chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
}

func newHandle(name string, cmd *exec.Cmd, stdin io.WriteCloser, logger *slog.Logger) *Handle {
	return &Handle{
		name:    name,
		cmd:     cmd,
		logger:  logger,
		stdin:   stdin,
		queue:   eventq.New(),
		replies: eventq.NewLatest(),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Engine returns the engine name.
func (h *Handle) Engine() string { return h.name }

// Pid returns the child's process ID.
func (h *Handle) Pid() int { return h.cmd.Process.Pid }

func (h *Handle) send(msg Message) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err = h.stdin.Write(append(line, '\n'))
	return err
}

func (h *Handle) readLoop(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var msg Message
		if line[0] != '{' || json.Unmarshal(line, &msg) != nil || msg.Type == "" {
			h.queue.Push(domain.StreamEvent(domain.StreamStdout, string(line)+"\n"))
			continue
		}
		h.handle(msg)
	}
	if err := sc.Err(); err != nil {
		h.logger.Warn("Engine output unreadable", "error", err)
	}
}

func (h *Handle) handle(msg Message) {
	switch msg.Type {
	case TypeReady:
		h.readyOnce.Do(func() { close(h.ready) })
	case TypeReply:
		h.mu.Lock()
		current := msg.Parent == "" || msg.Parent == h.lastID
		h.mu.Unlock()
		if !current {
			h.logger.Debug("Discarding stale reply", "parent", msg.Parent)
			return
		}
		h.replies.Put(msg.Result())
	default:
		ev, ok := msg.Event()
		if !ok {
			h.logger.Debug("Ignoring unknown message", "type", msg.Type)
			return
		}
		h.queue.Push(ev)
	}
}

func (h *Handle) readStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		h.queue.Push(domain.StreamEvent(domain.StreamStderr, sc.Text()+"\n"))
	}
}

func (h *Handle) exited(err error) {
	h.mu.Lock()
	h.dead = true
	h.waitErr = err
	h.mu.Unlock()
	h.logger.Debug("Engine exited", "error", err)
	close(h.done)
}

func (h *Handle) isDead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead
}

func (h *Handle) exitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waitErr == nil {
		return errors.New("exit status 0")
	}
	return h.waitErr
}

func (h *Handle) interrupt() {
	if h.isDead() {
		return
	}
	if err := signalProcess(h.cmd.Process, os.Interrupt); err != nil {
		h.logger.Debug("Failed to interrupt engine", "error", err)
	}
}

// stop runs the shutdown sequence once and waits for the child to exit:
// shutdown message, wait, SIGTERM, grace period, SIGKILL.
func (h *Handle) stop(ctx context.Context, wait, grace time.Duration) {
	h.stopOnce.Do(func() {
		if !h.isDead() {
			_ = h.send(Message{Type: TypeShutdown})
		}
		_ = h.stdin.Close()

		select {
		case <-h.done:
			return
		case <-time.After(wait):
		case <-ctx.Done():
			_ = signalProcess(h.cmd.Process, os.Kill)
			return
		}

		if err := signalProcess(h.cmd.Process, syscall.SIGTERM); err != nil {
			h.logger.Debug("SIGTERM failed", "error", err)
		}

		select {
		case <-h.done:
		case <-time.After(grace):
			h.logger.Warn("Engine ignored SIGTERM, killing")
			_ = signalProcess(h.cmd.Process, os.Kill)
		case <-ctx.Done():
			_ = signalProcess(h.cmd.Process, os.Kill)
		}
	})
	<-h.done
}

// signalProcess sends sig, ignoring processes that already exited.
func signalProcess(p *os.Process, sig os.Signal) error {
	if err := p.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func asHandle(h ports.Handle) (*Handle, error) {
	ph, ok := h.(*Handle)
	if !ok || ph == nil {
		return nil, fmt.Errorf("process transport: foreign handle %T", h)
	}
	return ph, nil
}

var _ ports.Transport = (*Transport)(nil)
