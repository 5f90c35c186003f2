// Package http exposes a session over a JSON HTTP API described by an
// embedded OpenAPI document. Requests are validated against the document
// before they reach the handlers.
package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/runner"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/aretw0/switchboard/pkg/sink"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed openapi.yaml
var rawSpec []byte

// Session is the part of *session.Session the API drives.
type Session interface {
	Execute(ctx context.Context, cell session.Cell) domain.Result
	Dict() domain.Dict
	Current() string
	Engines() []string
	Kernels() [][]string
}

// Spec loads and validates the embedded OpenAPI document.
func Spec() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	return doc, nil
}

// Server serves one session.
type Server struct {
	session  Session
	spec     *openapi3.T
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer sets the metrics served on /metrics (default prometheus.DefaultGatherer).
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler for sess.
func NewHandler(sess Session, opts ...Option) (http.Handler, error) {
	s := &Server{
		session:  sess,
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	spec, err := Spec()
	if err != nil {
		return nil, err
	}
	s.spec = spec
	router, err := gorillamux.NewRouter(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI router: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(rawSpec)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(s.validate(router))
		r.Post("/execute", s.Execute)
		r.Get("/engines", s.ListEngines)
		r.Get("/dict", s.GetDict)
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
	})
	return enableCORS(r), nil
}

// validate rejects requests that do not match the OpenAPI document.
// Paths the document does not describe fall through to the router.
func (s *Server) validate(router routers.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, params, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: params,
				Route:      route,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				s.logger.Warn("Request rejected", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Execute handles POST /execute. The cell is aborted when the client goes away.
func (s *Server) Execute(w http.ResponseWriter, r *http.Request) {
	var body ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.logger.Warn("Execute: invalid request body", "error", err)
		return
	}
	code, err := runner.SanitizeInput(body.Code)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid code: %v", err))
		s.logger.Warn("Execute: input rejected", "error", err, "size", len(body.Code))
		return
	}

	out := sink.NewCollector()
	res := s.session.Execute(r.Context(), session.Cell{
		Code:            code,
		Silent:          body.Silent,
		CellIndex:       body.CellIndex,
		UserExpressions: body.UserExpressions,
		Sink:            out,
	})
	s.logger.Debug("Execute: done", "count", res.ExecutionCount, "status", res.Status)
	writeJSON(w, http.StatusOK, ExecuteResponse{Result: res, Events: out.Events()})
}

// ListEngines handles GET /engines.
func (s *Server) ListEngines(w http.ResponseWriter, r *http.Request) {
	started := s.session.Engines()
	if started == nil {
		started = []string{}
	}
	writeJSON(w, http.StatusOK, EnginesResponse{
		Current: s.session.Current(),
		Started: started,
		Kernels: s.session.Kernels(),
	})
}

// GetDict handles GET /dict.
func (s *Server) GetDict(w http.ResponseWriter, r *http.Request) {
	var keys []string
	if err := runtime.BindQueryParameter("form", false, false, "keys", r.URL.Query(), &keys); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid format for parameter keys: %v", err))
		return
	}
	dict := s.session.Dict()
	if len(keys) == 0 {
		writeJSON(w, http.StatusOK, dict)
		return
	}
	out := make(domain.Dict, len(keys))
	for _, k := range keys {
		if v, ok := dict[k]; ok {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if s.spec.Info != nil {
		apiVersion = s.spec.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "switchboard-http",
		"version":     strings.TrimSpace(switchboard.Version),
		"api_version": apiVersion,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
