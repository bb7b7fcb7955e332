package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/patrickspencer/storewatch/internal/metrics"
	"github.com/patrickspencer/storewatch/internal/realtime"
	"github.com/patrickspencer/storewatch/internal/store"
	"github.com/patrickspencer/storewatch/internal/uptime"
)

// Defaults for Options.
const (
	DefaultBatchSize   = 10
	DefaultParallelism = 4
)

// Trigger labels.
const (
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
)

// ReferenceSource supplies the report anchor instant. *refcache.Cache
// implements it.
type ReferenceSource interface {
	Get(ctx context.Context) (time.Time, error)
}

// Options tunes a Service.
type Options struct {
	BatchSize       int
	Parallelism     int
	DefaultTimezone string
	Logger          *slog.Logger
	Events          realtime.Publisher
	Now             func() time.Time
}

// Service runs report jobs.
type Service struct {
	obs       store.ObservationStore
	jobs      store.JobStore
	ref       ReferenceSource
	artifacts *Artifacts
	locs      *uptime.LocationCache

	batchSize   int
	parallelism int
	logger      *slog.Logger
	events      realtime.Publisher
	now         func() time.Time

	wg sync.WaitGroup
}

// NewService wires a report service.
func NewService(obs store.ObservationStore, jobs store.JobStore, ref ReferenceSource, artifacts *Artifacts, opts Options) (*Service, error) {
	locs, err := uptime.NewLocationCache(256, opts.DefaultTimezone)
	if err != nil {
		return nil, err
	}

	s := &Service{
		obs:         obs,
		jobs:        jobs,
		ref:         ref,
		artifacts:   artifacts,
		locs:        locs,
		batchSize:   opts.BatchSize,
		parallelism: opts.Parallelism,
		logger:      opts.Logger,
		events:      opts.Events,
		now:         opts.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.parallelism <= 0 {
		s.parallelism = DefaultParallelism
	}
	if s.parallelism > s.batchSize {
		s.parallelism = s.batchSize
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Trigger records a new Running job and computes it in the background.
func (s *Service) Trigger(ctx context.Context, trigger string) (string, error) {
	job, err := s.begin(ctx, store.NewReportID(), trigger)
	if err != nil {
		return "", err
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(bg, job)
	}()
	return job.ID, nil
}

// Run computes a report synchronously. A job with id is created when it does
// not exist yet. The returned job is in its final state.
func (s *Service) Run(ctx context.Context, id, trigger string) (*store.ReportJob, error) {
	if id == "" {
		id = store.NewReportID()
	}
	job, err := s.jobs.GetJob(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if job, err = s.begin(ctx, id, trigger); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load job %s: %w", id, err)
	case job.Status.Terminal():
		return job, fmt.Errorf("job %s already %s", id, job.Status)
	}

	err = s.execute(ctx, job)
	return job, err
}

// Wait blocks until every background job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// FailInterrupted marks jobs a previous process left Running as Failed with
// ErrInterrupted. Call it at startup before any job is triggered.
func (s *Service) FailInterrupted(ctx context.Context) (int, error) {
	stale, err := s.jobs.ListJobs(ctx, store.ListOpts{Status: store.JobRunning})
	if err != nil {
		return 0, fmt.Errorf("list running jobs: %w", err)
	}
	for i, job := range stale {
		done := s.now().UTC()
		job.Status = store.JobFailed
		job.CompletedAt = &done
		job.Error = ErrInterrupted.Error()
		if err := s.jobs.RecordJob(ctx, job); err != nil {
			return i, fmt.Errorf("fail interrupted job %s: %w", job.ID, err)
		}
		s.logger.Warn("interrupted report marked failed", "report_id", job.ID, "created_at", job.CreatedAt)
	}
	return len(stale), nil
}

func (s *Service) begin(ctx context.Context, id, trigger string) (*store.ReportJob, error) {
	if trigger == "" {
		trigger = TriggerManual
	}
	job := &store.ReportJob{
		ID:        id,
		Status:    store.JobRunning,
		Trigger:   trigger,
		CreatedAt: s.now().UTC(),
	}
	if err := s.jobs.RecordJob(ctx, job); err != nil {
		return nil, fmt.Errorf("record job: %w", err)
	}
	s.logger.Info("report started", "report_id", job.ID, "trigger", trigger)
	s.publish(realtime.Event{
		Type:     realtime.EventReportStarted,
		ReportID: job.ID,
		Status:   string(store.JobRunning),
		Trigger:  trigger,
	})
	return job, nil
}

// execute moves job to Complete or Failed.
func (s *Service) execute(ctx context.Context, job *store.ReportJob) error {
	start := time.Now()

	ids, err := s.obs.ListStoreIDs(ctx)
	if err != nil {
		return s.fail(ctx, job, start, &OrchestrationError{Stage: StageEnumerate, Err: err})
	}
	ref, err := s.ref.Get(ctx)
	if err != nil {
		return s.fail(ctx, job, start, &OrchestrationError{Stage: StageReference, Err: err})
	}
	job.ReferenceAt = &ref
	job.TotalStores = len(ids)

	outcomes, err := s.computeAll(ctx, job.ID, ids, ref)
	if err != nil {
		return s.fail(ctx, job, start, err)
	}

	rows := make([]Row, 0, len(outcomes))
	skipped := 0
	for _, o := range outcomes {
		if o.Skipped() {
			skipped++
			continue
		}
		rows = append(rows, *o.Row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StoreID < rows[j].StoreID })
	job.SkippedStores = skipped
	metrics.AddReportStores(metrics.ResultSuccess, len(rows))
	metrics.AddReportStores(metrics.ResultSkipped, skipped)

	artifact, err := s.artifacts.Write(job.ID, rows)
	if err != nil {
		return s.fail(ctx, job, start, &OrchestrationError{Stage: StageSink, Err: err})
	}

	done := s.now().UTC()
	job.Status = store.JobComplete
	job.CompletedAt = &done
	job.ResultLocation = artifact.Path
	if err := s.jobs.RecordJob(context.WithoutCancel(ctx), job); err != nil {
		job.ResultLocation = ""
		return s.fail(ctx, job, start, &OrchestrationError{Stage: StagePersist, Err: err})
	}

	elapsed := time.Since(start)
	metrics.ObserveReport(triggerKind(job.Trigger), metrics.ResultSuccess, elapsed)
	s.logger.Info("report complete",
		"report_id", job.ID,
		"stores", len(ids),
		"rows", len(rows),
		"skipped", skipped,
		"reference", ref.Format(time.RFC3339),
		"size", humanize.Bytes(uint64(artifact.Size)),
		"duration", elapsed.Round(time.Millisecond).String(),
	)
	s.publish(realtime.Event{
		Type:     realtime.EventReportCompleted,
		ReportID: job.ID,
		Status:   string(store.JobComplete),
		Trigger:  job.Trigger,
		Stores:   len(ids),
		Skipped:  skipped,
	})
	return nil
}

func (s *Service) fail(ctx context.Context, job *store.ReportJob, start time.Time, cause error) error {
	done := s.now().UTC()
	job.Status = store.JobFailed
	job.CompletedAt = &done
	job.Error = cause.Error()
	if err := s.jobs.RecordJob(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("record failed job failed", "report_id", job.ID, "error", err)
	}

	metrics.ObserveReport(triggerKind(job.Trigger), metrics.ResultError, time.Since(start))
	s.logger.Error("report failed", "report_id", job.ID, "error", cause)
	s.publish(realtime.Event{
		Type:     realtime.EventReportFailed,
		ReportID: job.ID,
		Status:   string(store.JobFailed),
		Trigger:  job.Trigger,
		Reason:   job.Error,
	})
	return cause
}

// computeAll processes stores in fixed-size batches with bounded parallelism
// inside each batch. Outcomes keep the order of ids. It stops after a batch
// when ctx is done or when every store in the batch failed on the same
// non-configuration error.
func (s *Service) computeAll(ctx context.Context, reportID string, ids []string, ref time.Time) ([]Outcome, error) {
	outcomes := make([]Outcome, len(ids))
	for lo := 0; lo < len(ids); lo += s.batchSize {
		hi := lo + s.batchSize
		if hi > len(ids) {
			hi = len(ids)
		}

		var g errgroup.Group
		g.SetLimit(s.parallelism)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				outcomes[i] = s.computeOne(ctx, ids[i], ref)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, &OrchestrationError{Stage: StageCompute, Err: err}
		}
		if err := batchFailure(outcomes[lo:hi]); err != nil {
			return nil, &OrchestrationError{Stage: StageCompute, Err: err}
		}

		for _, o := range outcomes[lo:hi] {
			if o.Skipped() {
				level := slog.LevelError
				if errors.Is(o.Err, uptime.ErrConfiguration) {
					level = slog.LevelWarn
				}
				s.logger.Log(ctx, level, "store skipped", "report_id", reportID, "store_id", o.StoreID, "error", o.Err)
			}
		}
		s.logger.Debug("batch done", "report_id", reportID, "from", lo, "to", hi, "of", len(ids))
	}
	return outcomes, nil
}

// batchFailure returns the shared cause when a batch of two or more stores
// failed entirely on one non-configuration error, which points at the data
// source rather than at the stores.
func batchFailure(batch []Outcome) error {
	if len(batch) < 2 {
		return nil
	}
	var cause error
	for _, o := range batch {
		if !o.Skipped() || errors.Is(o.Err, uptime.ErrConfiguration) {
			return nil
		}
		root := rootCause(o.Err)
		if cause == nil {
			cause = root
			continue
		}
		if root.Error() != cause.Error() {
			return nil
		}
	}
	return fmt.Errorf("all %d stores in batch failed: %w", len(batch), cause)
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// computeOne never panics; any failure becomes a skipped outcome.
func (s *Service) computeOne(ctx context.Context, storeID string, ref time.Time) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{StoreID: storeID, Err: fmt.Errorf("panic: %v", r)}
		}
		result := metrics.ResultSuccess
		if out.Skipped() {
			result = metrics.ResultSkipped
		}
		metrics.ObserveStoreCompute(result, time.Since(start))
	}()

	in, err := s.loadInput(ctx, storeID, ref)
	if err != nil {
		return Outcome{StoreID: storeID, Err: err}
	}
	row := RowFromResult(uptime.ComputeStore(in.Input))
	return Outcome{StoreID: storeID, Row: &row}
}

type storeInput struct {
	uptime.Input
	Timezone        string
	DefaultTimezone bool
	Rules           []uptime.Rule
}

func (s *Service) loadInput(ctx context.Context, storeID string, ref time.Time) (*storeInput, error) {
	tz, ok, err := s.obs.Timezone(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(tz) == "" {
		tz = s.locs.Fallback()
		ok = false
	}
	loc, err := s.locs.Load(tz)
	if err != nil {
		return nil, &uptime.ConfigError{StoreID: storeID, Field: "timezone", Err: err}
	}

	rules, err := s.obs.BusinessHours(ctx, storeID)
	if err != nil {
		return nil, err
	}
	sched, err := uptime.NewSchedule(rules)
	if err != nil {
		return nil, err
	}

	observations, err := s.obs.ObservationsForRange(ctx, storeID, uptime.LookbackStart(ref), ref)
	if err != nil {
		return nil, err
	}

	return &storeInput{
		Input: uptime.Input{
			StoreID:      storeID,
			Reference:    ref,
			Location:     loc,
			Schedule:     sched,
			Observations: observations,
		},
		Timezone:        tz,
		DefaultTimezone: !ok,
		Rules:           sched.Rules(),
	}, nil
}

// Status returns the job record.
func (s *Service) Status(ctx context.Context, id string) (*store.ReportJob, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Result returns the artifact of a completed job, ErrPending while running and
// an error wrapping ErrFailed with the reason for failed jobs.
func (s *Service) Result(ctx context.Context, id string) (*Artifact, *store.ReportJob, error) {
	job, err := s.Status(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	switch job.Status {
	case store.JobRunning:
		return nil, job, ErrPending
	case store.JobFailed:
		return nil, job, fmt.Errorf("%w: %s", ErrFailed, job.Error)
	}

	a, err := s.artifacts.Stat(job.ID, job.ResultLocation)
	if errors.Is(err, os.ErrNotExist) {
		return nil, job, fmt.Errorf("%w: report file for %s", ErrNotFound, job.ID)
	}
	if err != nil {
		return nil, job, err
	}
	return a, job, nil
}

// Rows reads a completed job's rows.
func (s *Service) Rows(a *Artifact) ([]Row, error) {
	return s.artifacts.Rows(a)
}

// List returns recent jobs.
func (s *Service) List(ctx context.Context, opts store.ListOpts) ([]*store.ReportJob, error) {
	return s.jobs.ListJobs(ctx, opts)
}

// Reference returns the current report anchor.
func (s *Service) Reference(ctx context.Context) (time.Time, error) {
	return s.ref.Get(ctx)
}

func (s *Service) publish(evt realtime.Event) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}

// triggerKind strips the schedule name so metric labels stay bounded.
func triggerKind(trigger string) string {
	if kind, _, ok := strings.Cut(trigger, ":"); ok {
		return kind
	}
	return trigger
}
