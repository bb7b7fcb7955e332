package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickspencer/storewatch/internal/config"
	"github.com/patrickspencer/storewatch/internal/report"
	"github.com/patrickspencer/storewatch/internal/scheduler"
	"github.com/patrickspencer/storewatch/internal/web"
	"github.com/patrickspencer/storewatch/internal/web/api"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var listen string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, report scheduler and artifact cleanup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return runServe(cmd.Context(), root, cfg, watch)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override listen address")
	cmd.Flags().BoolVar(&watch, "watch-config", true, "reload schedules when the config file changes")
	return cmd
}

// scheduleExprs returns the enabled schedules as name to cron expression.
func scheduleExprs(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(cfg.Report.Schedules))
	for _, s := range cfg.Report.Schedules {
		if s.IsEnabled() {
			out[s.Name] = s.Cron
		}
	}
	return out
}

func runServe(parent context.Context, root *rootOptions, cfg *config.Config, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := newLogger(cfg, os.Stderr)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Jobs still Running here belong to a process that is gone.
	n, err := a.reports.FailInterrupted(parent)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warn("interrupted reports marked failed", "count", n)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfgMu sync.RWMutex
	current := cfg
	getConfig := func() *config.Config {
		cfgMu.RLock()
		defer cfgMu.RUnlock()
		cp := *current
		cp.Report.Schedules = append([]config.ScheduleConfig(nil), current.Report.Schedules...)
		return &cp
	}

	sched := scheduler.New(func(name string) {
		id, err := a.reports.Trigger(ctx, report.TriggerSchedule+":"+name)
		if err != nil {
			logger.Error("scheduled report failed to start", "schedule", name, "error", err)
			return
		}
		logger.Info("scheduled report started", "schedule", name, "report_id", id)
	})
	if err := sched.Replace(scheduleExprs(cfg)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()
	for _, e := range sched.Entries() {
		logger.Info("report schedule registered", "schedule", e.Name, "cron", e.Cron, "next_run", e.NextRun)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runCleanupLoop(ctx, a)
	}()

	if watch && root.ConfigPath != "" {
		if _, err := os.Stat(root.ConfigPath); err == nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := config.Watch(ctx, root.ConfigPath, logger, func(next *config.Config) {
					if err := sched.Replace(scheduleExprs(next)); err != nil {
						logger.Error("schedule reload failed", "error", err)
						return
					}
					cfgMu.Lock()
					// Only schedules apply live; everything else needs a restart.
					updated := *current
					updated.Report.Schedules = next.Report.Schedules
					current = &updated
					cfgMu.Unlock()
					logger.Info("report schedules reloaded", "count", len(sched.Entries()))
				})
				if err != nil {
					logger.Error("config watch stopped", "error", err)
				}
			}()
		}
	}

	srv := web.NewServer(cfg.Listen, &api.API{
		Reports:      a.reports,
		Observations: a.store,
		Events:       a.events,
		GetConfig:    getConfig,
		Schedules:    sched.Entries,
		Logger:       logger,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("storewatch started", "listen", cfg.Listen)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		stop()
	}
	logger.Info("shutting down")

	// Open event streams would otherwise hold Shutdown until its timeout.
	a.events.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	logger.Info("storewatch stopped")
	return serveErr
}

func runCleanupLoop(ctx context.Context, a *app) {
	every, err := a.cfg.CleanupInterval()
	if err != nil {
		a.logger.Error("artifact cleanup disabled", "error", err)
		return
	}

	cleanup := func() {
		removed, err := a.artifacts.Cleanup()
		if err != nil {
			a.logger.Warn("artifact cleanup failed", "error", err)
			return
		}
		if removed > 0 {
			a.logger.Info("artifact cleanup", "removed", removed)
		}
	}

	cleanup()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanup()
		}
	}
}
