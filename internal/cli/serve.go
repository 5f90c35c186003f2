package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	httpadapter "github.com/aretw0/switchboard/pkg/adapters/http"
	mcpadapter "github.com/aretw0/switchboard/pkg/adapters/mcp"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 5 * time.Second

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// newRegistry returns a metrics registry with the process and runtime collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Serve exposes one session over HTTP on addr until ctx is cancelled or a
// termination signal arrives.
func Serve(ctx context.Context, opts Options, addr string, stdout io.Writer) (err error) {
	logger := createLogger(opts)
	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	reg := newRegistry()
	env, err := newEnvironment(sigCtx, opts, logger, metrics.New(reg))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()

	handler, err := httpadapter.NewHandler(env.session,
		httpadapter.WithLogger(logger),
		httpadapter.WithGatherer(reg),
	)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		printSystemMessage(stdout, "Switchboard server listening on %s", addr)
		logSessionStatus(stdout, logger, opts.SessionID, env.resumed, false)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-sigCtx.Done():
		if sig := sigCtx.Signal(); sig != nil {
			printSystemMessage(stdout, "Shutting down (signal: %v)", sig)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
			return srv.Close()
		}
		printSystemMessage(stdout, "Switchboard server stopped gracefully")
		return nil
	}
}

// ServeMCP exposes one session as an MCP server over stdio or SSE.
func ServeMCP(ctx context.Context, opts Options, transport string, port int) (err error) {
	logger := createLogger(opts)
	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	env, err := newEnvironment(sigCtx, opts, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()

	srv := mcpadapter.NewServer(env.session, mcpadapter.WithLogger(logger))
	switch transport {
	case TransportStdio:
		logger.Info("Starting MCP Server (Stdio)")
		return srv.ServeStdio()
	case TransportSSE:
		logger.Info("Starting MCP Server (SSE)", "port", port)
		return srv.ServeSSE(sigCtx, port)
	default:
		return fmt.Errorf("unknown transport: %s (supported: %s, %s)", transport, TransportStdio, TransportSSE)
	}
}
