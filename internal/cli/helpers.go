package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/switchboard/internal/logging"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-sc.Context.Done():
		}
		sc.stop.Do(func() {
			signal.Stop(sc.sigCh)
		})
	}()
	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// newTermContext is cancelled on SIGTERM only. The REPL handles SIGINT itself
// and uses it to abort cells rather than to quit.
func newTermContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGTERM)
}

// createLogger returns a stderr debug logger in the requested format when
// debug is on, and a no-op logger otherwise.
func createLogger(opts Options) *slog.Logger {
	if opts.Debug {
		return logging.NewWithFormat(os.Stderr, slog.LevelDebug, opts.LogFormat)
	}
	return logging.NewNop()
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func logSessionStatus(w io.Writer, logger *slog.Logger, sessionID string, resumed, quiet bool) {
	if sessionID == "" {
		return
	}
	if resumed {
		logger.Info("Session Resumed", "session_id", sessionID)
		if !quiet {
			printSystemMessage(w, "Session '%s' resumed.", sessionID)
		}
		return
	}
	logger.Info("Session Created", "session_id", sessionID)
	if !quiet {
		printSystemMessage(w, "Session '%s' active.", sessionID)
	}
}
