package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/patrickspencer/storewatch/internal/ingest"
	"github.com/patrickspencer/storewatch/internal/store"
)

type ingestOptions struct {
	status    string
	hours     string
	timezones string
}

func newIngestCommand(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Load source CSVs into the observation database",
		Long: `Load store_status.csv, menu_hours.csv and timezones.csv.

With a directory argument every file present in it is loaded. Individual files
can be given with --status, --hours and --timezones instead.

Example:
  storewatch ingest ./exports
  storewatch ingest --status ./store_status.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.status == "" && opts.hours == "" && opts.timezones == "" {
				return fmt.Errorf("give a directory or at least one of --status, --hours, --timezones")
			}
			cfg, err := root.loadConfig(cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return err
			}
			st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			im := ingest.NewImporter(st, logger, nil)
			var stats []ingest.Stats
			if len(args) == 1 {
				stats, err = im.ImportDir(cmd.Context(), args[0])
			} else {
				stats, err = opts.importFiles(cmd.Context(), im)
			}
			for _, s := range stats {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s imported=%d rejected=%d\n", s.Dataset, s.Imported, s.Rejected)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.status, "status", "", "path to store_status.csv")
	cmd.Flags().StringVar(&opts.hours, "hours", "", "path to menu_hours.csv")
	cmd.Flags().StringVar(&opts.timezones, "timezones", "", "path to timezones.csv")
	return cmd
}

func (o *ingestOptions) importFiles(ctx context.Context, im *ingest.Importer) ([]ingest.Stats, error) {
	steps := []struct {
		path string
		fn   func(context.Context, io.Reader) (ingest.Stats, error)
	}{
		{o.timezones, im.ImportTimezones},
		{o.hours, im.ImportHours},
		{o.status, im.ImportStatus},
	}

	var all []ingest.Stats
	for _, step := range steps {
		if step.path == "" {
			continue
		}
		f, err := os.Open(step.path)
		if err != nil {
			return all, err
		}
		s, err := step.fn(ctx, f)
		f.Close()
		if err != nil {
			return all, fmt.Errorf("%s: %w", step.path, err)
		}
		all = append(all, s)
	}
	return all, nil
}
