package ports

import (
	"context"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Handle is the opaque reference a Transport returns for a started engine.
type Handle interface {
	// Engine returns the name the handle was started with.
	Engine() string
}

// Transport moves requests and events between the session and child engines.
// Implementations are free to run reader goroutines; the session only ever
// calls a Transport from its dispatch loop.
type Transport interface {
	// Start launches the named engine. It must honour ctx (the startup timeout).
	Start(ctx context.Context, name string) (Handle, error)

	// IsAlive reports whether the engine behind h can still accept requests.
	IsAlive(h Handle) bool

	// Restart replaces a dead or stuck engine in place and returns the new handle.
	Restart(ctx context.Context, h Handle) (Handle, error)

	// Shutdown stops the engine. It is safe to call on a dead handle.
	Shutdown(ctx context.Context, h Handle) error

	// Execute submits code and returns the request ID that correlates its events.
	// Silent requests do not increase the engine's own execution counter.
	Execute(ctx context.Context, h Handle, code string, silent bool) (string, error)

	// PollEvent waits up to wait for the next event. ok is false when none arrived.
	PollEvent(ctx context.Context, h Handle, wait time.Duration) (ev domain.Event, ok bool, err error)

	// Reply waits up to timeout for the reply to the last execute request.
	Reply(ctx context.Context, h Handle, timeout time.Duration) (domain.Result, error)
}
