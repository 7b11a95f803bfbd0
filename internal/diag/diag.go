// Package diag serves the local diagnostics endpoint: metrics, health,
// the active quirk table and a view of live input contexts. It never
// exposes typed text.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"bogoime/internal/health"
	"bogoime/internal/ibus"
	"bogoime/internal/ime"
	"bogoime/internal/metrics"
)

// SessionLister lists live input contexts. *ibus.Factory implements it.
type SessionLister interface {
	Sessions() []ibus.SessionInfo
}

// Options wires the router to the running components. Nil fields disable
// their routes.
type Options struct {
	Registry *metrics.Registry
	Health   *health.Checker
	Quirks   ime.QuirkSource
	Sessions SessionLister

	// Config returns the effective configuration.
	Config func() any
	Logger *slog.Logger
}

// NewRouter builds the diagnostics handler.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger(opts.Logger))

	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", opts.Registry.HTTPHandler())
	}
	if opts.Health != nil {
		r.Method(http.MethodGet, "/healthz", opts.Health.HealthHandler())
		r.Method(http.MethodGet, "/readyz", opts.Health.ReadinessHandler())
		r.Method(http.MethodGet, "/livez", opts.Health.LivenessHandler())
	}
	if opts.Quirks != nil {
		r.Get("/quirks", func(w http.ResponseWriter, req *http.Request) {
			table := opts.Quirks.Quirks()
			writeJSON(w, http.StatusOK, map[string]any{
				"count": table.Len(),
				"rules": table.Rules(),
			})
		})
		r.Get("/quirks/match/{app}", func(w http.ResponseWriter, req *http.Request) {
			app := chi.URLParam(req, "app")
			rule, ok := opts.Quirks.Quirks().Match(app)
			if !ok {
				writeJSON(w, http.StatusOK, map[string]any{"application": app, "matched": false})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"application": app, "matched": true, "rule": rule})
		})
	}
	if opts.Sessions != nil {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				sessions := opts.Sessions.Sessions()
				writeJSON(w, http.StatusOK, map[string]any{
					"count":    len(sessions),
					"sessions": sessions,
				})
			})
			r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
				path := ibus.EnginePathPrefix + chi.URLParam(req, "id")
				for _, s := range opts.Sessions.Sessions() {
					if s.Path == path {
						writeJSON(w, http.StatusOK, s)
						return
					}
				}
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such session"})
			})
		})
	}
	if opts.Config != nil {
		r.Get("/config", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, opts.Config())
		})
	}
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("diag request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", chiMiddleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Server is a running diagnostics listener.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log *slog.Logger
}

// Listen binds addr and serves h in the background.
func Listen(addr string, h http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		ln:  ln,
		log: logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("diagnostics server stopped", "error", err)
		}
	}()
	logger.Info("diagnostics listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for requests in flight until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
