// Package mcp exposes a session as a Model Context Protocol server: cells are
// executed through the execute_cell tool and the Host dictionary is readable
// as the switchboard://dict resource.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/runner"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/aretw0/switchboard/pkg/sink"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DictURI is the URI of the Host dictionary resource.
const DictURI = "switchboard://dict"

// Session is the part of *session.Session the server drives.
type Session interface {
	Execute(ctx context.Context, cell session.Cell) domain.Result
	Dict() domain.Dict
	Current() string
	Engines() []string
	Kernels() [][]string
}

// CellOutput is the structured result of execute_cell.
type CellOutput struct {
	Status         domain.Status `json:"status" jsonschema_description:"ok, error or abort"`
	ExecutionCount int           `json:"execution_count" jsonschema_description:"Execution counter of the cell"`
	Engine         string        `json:"engine" jsonschema_description:"Engine that is current after the cell"`
	Stdout         string        `json:"stdout,omitempty"`
	Stderr         string        `json:"stderr,omitempty"`
	Outputs        []string      `json:"outputs,omitempty" jsonschema_description:"Plain text of results and displays, in order"`
	Error          string        `json:"error,omitempty"`
}

// EngineList is the structured result of list_engines.
type EngineList struct {
	Current string     `json:"current"`
	Started []string   `json:"started"`
	Kernels [][]string `json:"kernels" jsonschema_description:"[engine, language] pairs"`
}

// Server wraps a session and exposes it as an MCP Server.
type Server struct {
	session   Session
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sess Session, opts ...Option) *Server {
	s := &Server{
		session:   sess,
		mcpServer: server.NewMCPServer("switchboard-mcp", strings.TrimSpace(switchboard.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	executeTool := mcp.NewTool("execute_cell",
		mcp.WithDescription("Execute a cell in the session. Directives such as %use R or %get x switch engines and move variables."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Cell source")),
		mcp.WithBoolean("silent", mcp.Description("Suppress results and the output preview")),
		mcp.WithOutputSchema[CellOutput](),
	)
	s.mcpServer.AddTool(executeTool, mcp.NewStructuredToolHandler(s.handleExecute))

	listTool := mcp.NewTool("list_engines",
		mcp.WithDescription("List the current engine, the started engines and every known engine with its language."),
		mcp.WithOutputSchema[EngineList](),
	)
	s.mcpServer.AddTool(listTool, mcp.NewStructuredToolHandler(s.handleListEngines))
}

func (s *Server) handleExecute(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (CellOutput, error) {
	code, _ := args["code"].(string)
	silent, _ := args["silent"].(bool)

	clean, err := runner.SanitizeInput(code)
	if err != nil {
		s.logger.Warn("MCP execute_cell: input rejected", "error", err, "size", len(code))
		return CellOutput{}, fmt.Errorf("input rejected: %w", err)
	}

	out := sink.NewCollector()
	res := s.session.Execute(ctx, session.Cell{Code: clean, Silent: silent, Sink: out})
	return summarize(res, out, s.session.Current()), nil
}

func summarize(res domain.Result, out *sink.Collector, engine string) CellOutput {
	co := CellOutput{
		Status:         res.Status,
		ExecutionCount: res.ExecutionCount,
		Engine:         engine,
		Stdout:         out.Stream(domain.StreamStdout),
		Stderr:         out.Stream(domain.StreamStderr),
	}
	for _, ev := range out.Events() {
		if ev.Kind != domain.EventResult && ev.Kind != domain.EventDisplay {
			continue
		}
		if text, ok := ev.Data[domain.MIMEText].(string); ok {
			co.Outputs = append(co.Outputs, text)
		}
	}
	if res.Status == domain.StatusError {
		co.Error = res.ErrorName + ": " + res.ErrorValue
	}
	return co
}

func (s *Server) handleListEngines(_ context.Context, _ mcp.CallToolRequest, _ map[string]any) (EngineList, error) {
	started := s.session.Engines()
	if started == nil {
		started = []string{}
	}
	return EngineList{
		Current: s.session.Current(),
		Started: started,
		Kernels: s.session.Kernels(),
	}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(DictURI, "Host dictionary",
		mcp.WithResourceDescription("Variables of the Host engine, as JSON"),
		mcp.WithMIMEType("application/json"),
	), s.readDict)
}

func (s *Server) readDict(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.session.Dict())
	if err != nil {
		return nil, fmt.Errorf("failed to encode dictionary: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DictURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
