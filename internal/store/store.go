package store

import (
	"context"
	"errors"
	"time"

	"github.com/patrickspencer/storewatch/internal/uptime"
)

// ErrNotFound is returned when a report job does not exist.
var ErrNotFound = errors.New("store: not found")

// JobStatus is the lifecycle state of a report job.
type JobStatus string

const (
	JobRunning  JobStatus = "Running"
	JobComplete JobStatus = "Complete"
	JobFailed   JobStatus = "Failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed
}

// ReportJob is one report generation request.
type ReportJob struct {
	ID             string
	Status         JobStatus
	Trigger        string // "manual", "cli", "schedule:<name>"
	CreatedAt      time.Time
	CompletedAt    *time.Time
	ReferenceAt    *time.Time
	ResultLocation string
	TotalStores    int
	SkippedStores  int
	Error          string
}

// ListOpts controls filtering and pagination for job queries.
type ListOpts struct {
	Status JobStatus
	Limit  int
	Offset int
}

// StoreTimezone maps a store to its IANA timezone.
type StoreTimezone struct {
	StoreID  string
	Timezone string
}

// StatusCounts summarizes the observation table.
type StatusCounts struct {
	Observations int64 `json:"observations"`
	Active       int64 `json:"active"`
	Inactive     int64 `json:"inactive"`
	Stores       int64 `json:"stores"`
}

// InactiveStore summarizes the inactive observations of one store.
type InactiveStore struct {
	StoreID      string    `json:"store_id"`
	Observations int64     `json:"inactive_observations"`
	FirstSeen    time.Time `json:"first_inactive_utc"`
	LastSeen     time.Time `json:"last_inactive_utc"`
}

// ObservationStore is the read side used by report generation and the debug API.
type ObservationStore interface {
	ListStoreIDs(ctx context.Context) ([]string, error)
	MaxObservedTimestamp(ctx context.Context) (time.Time, bool, error)
	ObservationsForRange(ctx context.Context, storeID string, from, to time.Time) ([]uptime.Observation, error)
	BusinessHours(ctx context.Context, storeID string) ([]uptime.Rule, error)
	Timezone(ctx context.Context, storeID string) (string, bool, error)
	StatusCounts(ctx context.Context) (*StatusCounts, error)
	InactiveStores(ctx context.Context, since time.Time, limit int) ([]InactiveStore, error)
}

// JobStore persists report job state.
type JobStore interface {
	RecordJob(ctx context.Context, job *ReportJob) error
	GetJob(ctx context.Context, id string) (*ReportJob, error)
	ListJobs(ctx context.Context, opts ListOpts) ([]*ReportJob, error)
}

// Loader is the write side used by ingestion.
type Loader interface {
	InsertObservations(ctx context.Context, obs []uptime.Observation) error
	UpsertBusinessHours(ctx context.Context, rules []uptime.Rule) error
	UpsertTimezones(ctx context.Context, zones []StoreTimezone) error
}
