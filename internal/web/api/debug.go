package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickspencer/storewatch/internal/report"
	"github.com/patrickspencer/storewatch/internal/uptime"
)

func (a *API) handleMaxTimestamp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ref, err := a.Reports.Reference(r.Context())
	if err != nil {
		a.logger().Error("reference lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve reference time")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"max_timestamp": ref.UTC()})
}

func (a *API) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	counts, err := a.Observations.StatusCounts(r.Context())
	if err != nil {
		a.logger().Error("status counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count observations")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleInactiveStores lists stores that were inactive at least once since
// the start of the report lookback. since=all covers every observation and an
// RFC 3339 since sets the cutoff explicitly.
func (a *API) handleInactiveStores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var since time.Time
	switch v := q.Get("since"); v {
	case "all":
	case "":
		ref, err := a.Reports.Reference(r.Context())
		if err != nil {
			a.logger().Error("reference lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to resolve reference time")
			return
		}
		since = uptime.LookbackStart(ref)
	default:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339 or \"all\"")
			return
		}
		since = t.UTC()
	}

	stores, err := a.Observations.InactiveStores(r.Context(), since, limit)
	if err != nil {
		a.logger().Error("inactive stores failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list inactive stores")
		return
	}
	resp := map[string]any{"count": len(stores), "stores": stores}
	if !since.IsZero() {
		resp["since"] = since
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStoreBreakdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/debug/stores/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	b, err := a.Reports.Breakdown(r.Context(), id)
	if errors.Is(err, report.ErrNotFound) {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		var cfgErr *uptime.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		a.logger().Error("store breakdown failed", "store_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute store")
		return
	}
	writeJSON(w, http.StatusOK, b)
}
