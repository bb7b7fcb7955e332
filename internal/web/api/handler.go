// Package api implements the JSON and CSV endpoints under /api/v1.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickspencer/storewatch/internal/config"
	"github.com/patrickspencer/storewatch/internal/realtime"
	"github.com/patrickspencer/storewatch/internal/report"
	"github.com/patrickspencer/storewatch/internal/scheduler"
	"github.com/patrickspencer/storewatch/internal/store"
)

// Reports is the report orchestrator as seen by the handlers.
// *report.Service implements it.
type Reports interface {
	Trigger(ctx context.Context, trigger string) (string, error)
	Status(ctx context.Context, id string) (*store.ReportJob, error)
	Result(ctx context.Context, id string) (*report.Artifact, *store.ReportJob, error)
	Rows(a *report.Artifact) ([]report.Row, error)
	List(ctx context.Context, opts store.ListOpts) ([]*store.ReportJob, error)
	Reference(ctx context.Context) (time.Time, error)
	Breakdown(ctx context.Context, storeID string) (*report.Breakdown, error)
}

// Observations is the read-only data used by the debug endpoints.
type Observations interface {
	StatusCounts(ctx context.Context) (*store.StatusCounts, error)
	InactiveStores(ctx context.Context, since time.Time, limit int) ([]store.InactiveStore, error)
}

// API holds dependencies for all API handlers.
type API struct {
	Reports      Reports
	Observations Observations
	Events       *realtime.Broker
	GetConfig    func() *config.Config
	Schedules    func() []scheduler.Entry
	Logger       *slog.Logger
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/trigger_report", a.handleTriggerReport)
	mux.HandleFunc("/api/v1/get_report", a.handleGetReport)
	mux.HandleFunc("/api/v1/reports/", a.routeReports)
	mux.HandleFunc("/api/v1/reports", a.handleListReports)
	mux.HandleFunc("/api/v1/debug/max_timestamp", a.handleMaxTimestamp)
	mux.HandleFunc("/api/v1/debug/status_counts", a.handleStatusCounts)
	mux.HandleFunc("/api/v1/debug/inactive_stores", a.handleInactiveStores)
	mux.HandleFunc("/api/v1/debug/stores/", a.handleStoreBreakdown)
	mux.HandleFunc("/api/v1/events", a.handleEvents)
	mux.HandleFunc("/api/v1/config", a.handleConfig)
	mux.HandleFunc("/api/v1/schedules", a.handleSchedules)
	mux.HandleFunc("/api/v1/health", a.handleHealth)
}

// routeReports dispatches /api/v1/reports/{id}.
func (a *API) routeReports(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/reports/"), "/")
	if id == "" {
		a.handleListReports(w, r)
		return
	}
	if strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	a.handleGetReportJob(w, r, id)
}

func (a *API) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write json response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
