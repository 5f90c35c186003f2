// Package socketio runs engines hosted by a remote Socket.IO server.
//
// Each engine is one namespace connection. Requests are emitted as "execute"
// events carrying the same message objects the process transport writes to a
// child's stdin; the server answers with "iopub" events for output and an
// "execute_reply" event for the reply.
package socketio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/switchboard/internal/eventq"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/adapters/process"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names of the remote protocol.
const (
	EventExecute   = "execute"
	EventInterrupt = "interrupt"
	EventShutdown  = "shutdown"
	EventIOPub     = "iopub"
	EventReply     = "execute_reply"
)

// Remote describes an engine served by a Socket.IO server.
type Remote struct {
	Name               string
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// Conn is the subset of a Socket.IO client connection the transport uses.
type Conn interface {
	On(event string, fn func(args ...any))
	Emit(event string, args ...any) error
	Close()
}

// Dialer connects to a remote engine. It must honour ctx.
type Dialer func(ctx context.Context, r Remote) (Conn, error)

// Transport runs remote engines.
type Transport struct {
	mu      sync.Mutex
	remotes map[string]Remote
	dial    Dialer
	logger  *slog.Logger
}

// Option configures the Transport.
type Option func(*Transport)

// WithLogger configures a logger for the Transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithRemote registers r under r.Name.
func WithRemote(r Remote) Option {
	return func(t *Transport) {
		t.remotes[r.Name] = r
	}
}

// WithDialer replaces the Socket.IO client, mostly for tests.
func WithDialer(d Dialer) Option {
	return func(t *Transport) {
		t.dial = d
	}
}

// NewTransport creates a transport for the given remotes.
func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		remotes: make(map[string]Remote),
		logger:  logging.NewNop(),
	}
	t.dial = t.connect
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Engines returns the configured engine names, sorted.
func (t *Transport) Engines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.remotes))
	for name := range t.remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start connects to the engine's namespace.
func (t *Transport) Start(ctx context.Context, name string) (ports.Handle, error) {
	t.mu.Lock()
	r, ok := t.remotes[name]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEngineNotFound, name)
	}

	conn, err := t.dial(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEngineStart, name, err)
	}
	h := &Handle{
		name:    name,
		conn:    conn,
		logger:  t.logger.With("engine", name, "url", r.URL),
		queue:   eventq.New(),
		replies: eventq.NewLatest(),
		done:    make(chan struct{}),
	}
	conn.On(EventIOPub, h.onIOPub)
	conn.On(EventReply, h.onReply)
	conn.On("disconnect", func(...any) { h.close() })
	h.logger.Debug("Remote engine connected")
	return h, nil
}

// IsAlive reports whether the connection is still open.
func (t *Transport) IsAlive(h ports.Handle) bool {
	sh, ok := h.(*Handle)
	return ok && !sh.isDead()
}

// Restart reconnects.
func (t *Transport) Restart(ctx context.Context, h ports.Handle) (ports.Handle, error) {
	_ = t.Shutdown(ctx, h)
	return t.Start(ctx, h.Engine())
}

// Shutdown asks the server to stop the engine and disconnects.
func (t *Transport) Shutdown(_ context.Context, h ports.Handle) error {
	sh, err := asHandle(h)
	if err != nil {
		return err
	}
	if !sh.isDead() {
		_ = sh.conn.Emit(EventShutdown)
	}
	sh.close()
	return nil
}

// Execute emits an execute request.
func (t *Transport) Execute(_ context.Context, h ports.Handle, code string, silent bool) (string, error) {
	sh, err := asHandle(h)
	if err != nil {
		return "", err
	}
	if sh.isDead() {
		return "", fmt.Errorf("%w: %s", domain.ErrChildDead, sh.name)
	}
	id := uuid.NewString()
	sh.replies.Clear()
	sh.mu.Lock()
	sh.lastID = id
	sh.mu.Unlock()

	req := map[string]any{"type": process.TypeExecute, "id": id, "code": code, "silent": silent}
	if err := sh.conn.Emit(EventExecute, req); err != nil {
		return "", fmt.Errorf("emit execute to %s: %w", sh.name, err)
	}
	return id, nil
}

// PollEvent returns the next received event, waiting at most wait.
func (t *Transport) PollEvent(ctx context.Context, h ports.Handle, wait time.Duration) (domain.Event, bool, error) {
	sh, err := asHandle(h)
	if err != nil {
		return domain.Event{}, false, err
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		if ev, ok := sh.queue.Pop(); ok {
			return ev, true, nil
		}
		if sh.isDead() {
			return domain.Event{}, false, fmt.Errorf("%w: %s disconnected", domain.ErrChildDead, sh.name)
		}
		select {
		case <-ctx.Done():
			_ = sh.conn.Emit(EventInterrupt)
			return domain.Event{}, false, ctx.Err()
		case <-timer.C:
			return domain.Event{}, false, nil
		case <-sh.queue.Notify():
		case <-sh.done:
		}
	}
}

// Reply waits for the reply to the last request.
func (t *Transport) Reply(ctx context.Context, h ports.Handle, timeout time.Duration) (domain.Result, error) {
	sh, err := asHandle(h)
	if err != nil {
		return domain.Result{}, err
	}
	select {
	case res := <-sh.replies:
		return res, nil
	case <-sh.done:
		return domain.Result{}, fmt.Errorf("%w: %s disconnected", domain.ErrChildDead, sh.name)
	case <-ctx.Done():
		_ = sh.conn.Emit(EventInterrupt)
		return domain.Result{}, ctx.Err()
	case <-time.After(timeout):
		return domain.Result{}, fmt.Errorf("%w: %s after %s", domain.ErrRelayTimeout, sh.name, timeout)
	}
}

// connect dials r with the Socket.IO client over websocket and waits for the
// connect handshake.
func (t *Transport) connect(ctx context.Context, r Remote) (Conn, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	opts := socket.DefaultOptions()
	if u.Path != "" && u.Path != "/" {
		opts.SetPath(u.Path)
	}
	if r.InsecureSkipVerify {
		t.logger.Warn("Skipping TLS certificate verification", "url", r.URL)
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(fmt.Sprintf("%s://%s", u.Scheme, u.Host), opts)
	io := manager.Socket(r.Namespace, opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &socketConn{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	}
}

type socketConn struct {
	io *socket.Socket
}

func (c *socketConn) On(event string, fn func(args ...any)) {
	c.io.On(types.EventName(event), func(args ...any) { fn(args...) })
}

func (c *socketConn) Emit(event string, args ...any) error {
	return c.io.Emit(event, args...)
}

func (c *socketConn) Close() {
	c.io.Disconnect()
}

// Handle is a connected remote engine.
type Handle struct {
	name   string
	conn   Conn
	logger *slog.Logger

	queue   *eventq.Queue
	replies eventq.Latest

	mu     sync.Mutex
	lastID string
	dead   bool
	done   chan struct{}
}

// Engine returns the engine name.
func (h *Handle) Engine() string { return h.name }

func (h *Handle) onIOPub(args ...any) {
	msg, err := decode(args)
	if err != nil {
		h.logger.Warn("Malformed iopub message", "error", err)
		return
	}
	ev, ok := msg.Event()
	if !ok {
		h.logger.Debug("Ignoring unknown message", "type", msg.Type)
		return
	}
	h.queue.Push(ev)
}

func (h *Handle) onReply(args ...any) {
	msg, err := decode(args)
	if err != nil {
		h.logger.Warn("Malformed reply", "error", err)
		return
	}
	h.mu.Lock()
	current := msg.Parent == "" || msg.Parent == h.lastID
	h.mu.Unlock()
	if current {
		h.replies.Put(msg.Result())
	}
}

// decode maps the first event argument onto a protocol message.
func decode(args []any) (process.Message, error) {
	var msg process.Message
	if len(args) == 0 {
		return msg, errors.New("empty payload")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &msg,
	})
	if err != nil {
		return msg, err
	}
	if err := dec.Decode(args[0]); err != nil {
		return msg, err
	}
	return msg, nil
}

func (h *Handle) isDead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead
}

func (h *Handle) close() {
	h.mu.Lock()
	if h.dead {
		h.mu.Unlock()
		return
	}
	h.dead = true
	h.mu.Unlock()
	close(h.done)
	h.conn.Close()
}

func asHandle(h ports.Handle) (*Handle, error) {
	sh, ok := h.(*Handle)
	if !ok || sh == nil {
		return nil, fmt.Errorf("socketio transport: foreign handle %T", h)
	}
	return sh, nil
}

var _ ports.Transport = (*Transport)(nil)
