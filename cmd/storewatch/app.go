package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/patrickspencer/storewatch/internal/config"
	"github.com/patrickspencer/storewatch/internal/metrics"
	"github.com/patrickspencer/storewatch/internal/realtime"
	"github.com/patrickspencer/storewatch/internal/refcache"
	"github.com/patrickspencer/storewatch/internal/report"
	"github.com/patrickspencer/storewatch/internal/store"
)

// app is the set of long-lived components shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.SQLStore
	refs      *refcache.Cache
	artifacts *report.Artifacts
	events    *realtime.Broker
	reports   *report.Service
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("store opened", "driver", st.Driver())

	metrics.Init(st.DB(), logger)

	ttl, err := cfg.ReferenceTTL()
	if err != nil {
		st.Close()
		return nil, err
	}
	refs := refcache.New(st, ttl)

	artifacts := report.NewArtifacts(cfg.Artifacts.Dir, cfg.Artifacts.RetentionDays, cfg.MaxArtifactBytes())
	if err := os.MkdirAll(artifacts.BaseDir(), 0755); err != nil {
		st.Close()
		return nil, fmt.Errorf("create reports directory %s: %w", artifacts.BaseDir(), err)
	}

	events := realtime.NewBroker()
	svc, err := report.NewService(st, st, refs, artifacts, report.Options{
		BatchSize:       cfg.Report.BatchSize,
		Parallelism:     cfg.Report.Parallelism,
		DefaultTimezone: cfg.Report.DefaultTimezone,
		Logger:          logger,
		Events:          events,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("report service: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		refs:      refs,
		artifacts: artifacts,
		events:    events,
		reports:   svc,
	}, nil
}

// Close waits for in-flight report jobs and then releases resources.
func (a *app) Close() error {
	a.reports.Wait()
	a.events.Close()
	return a.store.Close()
}
