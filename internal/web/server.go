// Package web serves the storewatch HTTP API, Prometheus metrics and health
// probes.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patrickspencer/storewatch/internal/metrics"
	"github.com/patrickspencer/storewatch/internal/web/api"
)

// Server is the HTTP server for the storewatch API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server that serves a on addr.
func NewServer(addr string, a *api.API, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if a.Logger == nil {
		a.Logger = logger
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           Handler(a, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler builds the full middleware-wrapped route tree.
func Handler(a *api.API, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("storewatch\n"))
			return
		}
		http.NotFound(w, r)
	})

	return corsMiddleware(requestIDMiddleware(loggingMiddleware(mux, logger)))
}

// Start begins listening and serving HTTP requests.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds permissive CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware echoes an incoming X-Request-ID or assigns a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)

		elapsed := time.Since(start)
		route := routeLabel(r.URL.Path)
		metrics.ObserveHTTP(r.Method, route, resp.status, elapsed)
		if route == "/api/v1/events" || route == "/metrics" {
			return
		}
		logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", resp.status,
			"duration", elapsed,
			"request_id", r.Header.Get(requestIDHeader),
		)
	})
}

// routeLabel collapses ids out of paths so metric label cardinality stays
// bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/reports/") && len(path) > len("/api/v1/reports/"):
		return "/api/v1/reports/{id}"
	case strings.HasPrefix(path, "/api/v1/debug/stores/"):
		return "/api/v1/debug/stores/{id}"
	}
	switch path {
	case "/", "/health", "/metrics",
		"/api/v1/trigger_report", "/api/v1/get_report", "/api/v1/reports",
		"/api/v1/debug/max_timestamp", "/api/v1/debug/status_counts", "/api/v1/debug/inactive_stores",
		"/api/v1/events", "/api/v1/config", "/api/v1/schedules", "/api/v1/health":
		return path
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps server-sent events working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
