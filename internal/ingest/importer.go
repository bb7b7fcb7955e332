package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/patrickspencer/storewatch/internal/metrics"
	"github.com/patrickspencer/storewatch/internal/store"
)

// DefaultChunkSize is the number of rows written per transaction.
const DefaultChunkSize = 5000

// Invalidator drops derived caches after new data lands.
type Invalidator interface {
	Invalidate()
}

// Stats counts the rows of one file.
type Stats struct {
	Dataset  string `json:"dataset"`
	Imported int    `json:"imported"`
	Rejected int    `json:"rejected"`
}

// Importer writes parsed CSV rows through a store.Loader.
type Importer struct {
	loader     store.Loader
	chunkSize  int
	logger     *slog.Logger
	invalidate Invalidator
}

// NewImporter creates an importer. inv may be nil.
func NewImporter(loader store.Loader, logger *slog.Logger, inv Invalidator) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{loader: loader, chunkSize: DefaultChunkSize, logger: logger, invalidate: inv}
}

// ImportStatus loads store_status rows.
func (im *Importer) ImportStatus(ctx context.Context, r io.Reader) (Stats, error) {
	obs, rejected, err := ReadStatus(r)
	if err != nil {
		return Stats{Dataset: StatusFile}, err
	}
	for lo := 0; lo < len(obs); lo += im.chunkSize {
		hi := min(lo+im.chunkSize, len(obs))
		if err := im.loader.InsertObservations(ctx, obs[lo:hi]); err != nil {
			return Stats{Dataset: StatusFile, Imported: lo}, fmt.Errorf("insert observations: %w", err)
		}
	}
	if im.invalidate != nil && len(obs) > 0 {
		im.invalidate.Invalidate()
	}
	return im.done(StatusFile, len(obs), rejected), nil
}

// ImportHours loads business-hours rows.
func (im *Importer) ImportHours(ctx context.Context, r io.Reader) (Stats, error) {
	rules, rejected, err := ReadHours(r)
	if err != nil {
		return Stats{Dataset: HoursFile}, err
	}
	for lo := 0; lo < len(rules); lo += im.chunkSize {
		hi := min(lo+im.chunkSize, len(rules))
		if err := im.loader.UpsertBusinessHours(ctx, rules[lo:hi]); err != nil {
			return Stats{Dataset: HoursFile, Imported: lo}, fmt.Errorf("upsert business hours: %w", err)
		}
	}
	return im.done(HoursFile, len(rules), rejected), nil
}

// ImportTimezones loads store timezone rows.
func (im *Importer) ImportTimezones(ctx context.Context, r io.Reader) (Stats, error) {
	zones, rejected, err := ReadTimezones(r)
	if err != nil {
		return Stats{Dataset: TimezoneFile}, err
	}
	for lo := 0; lo < len(zones); lo += im.chunkSize {
		hi := min(lo+im.chunkSize, len(zones))
		if err := im.loader.UpsertTimezones(ctx, zones[lo:hi]); err != nil {
			return Stats{Dataset: TimezoneFile, Imported: lo}, fmt.Errorf("upsert timezones: %w", err)
		}
	}
	return im.done(TimezoneFile, len(zones), rejected), nil
}

func (im *Importer) done(dataset string, imported int, rejected []*RowError) Stats {
	for i, re := range rejected {
		if i == 10 {
			im.logger.Warn("more rows rejected", "dataset", dataset, "count", len(rejected)-i)
			break
		}
		im.logger.Warn("row rejected", "dataset", dataset, "line", re.Line, "error", re.Err)
	}
	metrics.AddIngestRows(dataset, metrics.ResultSuccess, imported)
	metrics.AddIngestRows(dataset, metrics.ResultError, len(rejected))
	im.logger.Info("import done", "dataset", dataset, "imported", imported, "rejected", len(rejected))
	return Stats{Dataset: dataset, Imported: imported, Rejected: len(rejected)}
}

// ImportDir loads whichever of the three source files exist in dir.
func (im *Importer) ImportDir(ctx context.Context, dir string) ([]Stats, error) {
	steps := []struct {
		name string
		fn   func(context.Context, io.Reader) (Stats, error)
	}{
		{TimezoneFile, im.ImportTimezones},
		{HoursFile, im.ImportHours},
		{StatusFile, im.ImportStatus},
	}

	var all []Stats
	found := false
	for _, step := range steps {
		path := filepath.Join(dir, step.name)
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			im.logger.Debug("ingest file absent", "path", path)
			continue
		}
		if err != nil {
			return all, err
		}
		found = true
		st, err := step.fn(ctx, f)
		f.Close()
		if err != nil {
			return all, fmt.Errorf("%s: %w", step.name, err)
		}
		all = append(all, st)
	}
	if !found {
		return nil, fmt.Errorf("no source files in %s", dir)
	}
	return all, nil
}
