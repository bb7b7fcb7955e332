package api

import (
	"net/http"

	"github.com/patrickspencer/storewatch/internal/scheduler"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if a.GetConfig == nil {
		writeError(w, http.StatusServiceUnavailable, "config provider unavailable")
		return
	}
	cfg := a.GetConfig()
	if cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "config unavailable")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handleSchedules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	entries := []scheduler.Entry{}
	if a.Schedules != nil {
		if got := a.Schedules(); got != nil {
			entries = got
		}
	}
	writeJSON(w, http.StatusOK, entries)
}
