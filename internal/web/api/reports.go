package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrickspencer/storewatch/internal/metrics"
	"github.com/patrickspencer/storewatch/internal/report"
	"github.com/patrickspencer/storewatch/internal/store"
)

type jobResponse struct {
	ReportID      string     `json:"report_id"`
	Status        string     `json:"status"`
	Trigger       string     `json:"trigger"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ReferenceAt   *time.Time `json:"reference_at,omitempty"`
	TotalStores   int        `json:"total_stores"`
	SkippedStores int        `json:"skipped_stores"`
	Reason        string     `json:"reason,omitempty"`
}

func jobToResponse(j *store.ReportJob) jobResponse {
	return jobResponse{
		ReportID:      j.ID,
		Status:        string(j.Status),
		Trigger:       j.Trigger,
		CreatedAt:     j.CreatedAt,
		CompletedAt:   j.CompletedAt,
		ReferenceAt:   j.ReferenceAt,
		TotalStores:   j.TotalStores,
		SkippedStores: j.SkippedStores,
		Reason:        j.Error,
	}
}

func (a *API) handleTriggerReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, err := a.Reports.Trigger(r.Context(), "manual")
	if err != nil {
		a.logger().Error("trigger report failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger report")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"report_id": id})
}

func (a *API) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("report_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "report_id is required")
		return
	}
	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if format == "" {
		format = report.FormatCSV
	}
	switch format {
	case report.FormatCSV, report.FormatXLSX, report.FormatPDF:
	default:
		writeError(w, http.StatusBadRequest, "unsupported format")
		return
	}

	artifact, job, err := a.Reports.Result(r.Context(), id)
	switch {
	case errors.Is(err, report.ErrPending):
		writeJSON(w, http.StatusOK, map[string]string{"status": string(store.JobRunning)})
		return
	case errors.Is(err, report.ErrFailed):
		writeJSON(w, http.StatusOK, map[string]string{"status": string(store.JobFailed), "reason": job.Error})
		return
	case errors.Is(err, report.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found")
		return
	case err != nil:
		a.logger().Error("get report failed", "report_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get report")
		return
	}

	if format == report.FormatCSV {
		a.serveCSV(w, artifact)
		return
	}
	a.serveRendered(w, format, artifact, job)
}

func (a *API) serveCSV(w http.ResponseWriter, artifact *report.Artifact) {
	f, err := os.Open(artifact.Path)
	if err != nil {
		a.logger().Error("open report artifact failed", "report_id", artifact.ReportID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read report")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", report.ContentType(report.FormatCSV))
	w.Header().Set("Content-Disposition", `attachment; filename="report_`+artifact.ReportID+`.csv"`)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		a.logger().Warn("stream report failed", "report_id", artifact.ReportID, "error", err)
		return
	}
	metrics.IncExport(report.FormatCSV, metrics.ResultSuccess)
}

func (a *API) serveRendered(w http.ResponseWriter, format string, artifact *report.Artifact, job *store.ReportJob) {
	rows, err := a.Reports.Rows(artifact)
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		a.logger().Error("read report rows failed", "report_id", artifact.ReportID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read report")
		return
	}

	meta := report.Meta{
		ReportID: job.ID,
		Stores:   job.TotalStores,
		Skipped:  job.SkippedStores,
	}
	if job.ReferenceAt != nil {
		meta.ReferenceAt = *job.ReferenceAt
	}
	if job.CompletedAt != nil {
		meta.CompletedAt = *job.CompletedAt
	}

	var body []byte
	switch format {
	case report.FormatXLSX:
		body, err = report.BuildXLSX(meta, rows)
	case report.FormatPDF:
		body, err = report.BuildPDF(meta, rows)
	}
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		a.logger().Error("render report failed", "report_id", job.ID, "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	metrics.IncExport(format, metrics.ResultSuccess)
	w.Header().Set("Content-Type", report.ContentType(format))
	w.Header().Set("Content-Disposition", `attachment; filename="report_`+job.ID+`.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (a *API) handleListReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	opts := store.ListOpts{
		Status: store.JobStatus(q.Get("status")),
		Limit:  50,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}

	jobs, err := a.Reports.List(r.Context(), opts)
	if err != nil {
		a.logger().Error("list reports failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	result := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		result = append(result, jobToResponse(j))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleGetReportJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := a.Reports.Status(r.Context(), id)
	if errors.Is(err, report.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		a.logger().Error("get report job failed", "report_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get report")
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(job))
}
