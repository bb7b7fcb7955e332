package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/patrickspencer/storewatch/internal/report"
	"github.com/patrickspencer/storewatch/internal/store"
)

func newReportCommand(root *rootOptions) *cobra.Command {
	var out, format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate one report synchronously",
		Long: `Generate a report from the current observation database and wait for it.

The CSV artifact is always stored under artifacts.dir. With --out the report
is also written to that path, rendered as csv, xlsx or pdf.

Example:
  storewatch report
  storewatch report --out weekly.xlsx --format xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if format == "" {
				format = formatFromPath(out)
			}
			switch format {
			case report.FormatCSV, report.FormatXLSX, report.FormatPDF:
			default:
				return fmt.Errorf("unsupported format %q", format)
			}

			a, err := newApp(cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.reports.Run(cmd.Context(), "", report.TriggerCLI)
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			if job.Status == store.JobFailed {
				return &exitError{code: 2, err: fmt.Errorf("report %s failed: %s", job.ID, job.Error)}
			}

			artifact, job, err := a.reports.Result(cmd.Context(), job.ID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "report %s complete: %d stores (%d skipped), %s\n",
				job.ID, job.TotalStores, job.SkippedStores, humanize.Bytes(uint64(artifact.Size)))
			fmt.Fprintf(w, "artifact: %s\n", artifact.Path)

			if out == "" {
				return nil
			}
			if err := exportTo(a, artifact, job, format, out); err != nil {
				return err
			}
			fmt.Fprintf(w, "wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the report to this path")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format for --out (csv|xlsx|pdf); default from extension")
	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return report.FormatXLSX
	case ".pdf":
		return report.FormatPDF
	default:
		return report.FormatCSV
	}
}

func exportTo(a *app, artifact *report.Artifact, job *store.ReportJob, format, path string) error {
	if format == report.FormatCSV {
		src, err := os.Open(artifact.Path)
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := os.Create(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return err
		}
		return dst.Close()
	}

	rows, err := a.reports.Rows(artifact)
	if err != nil {
		return err
	}
	meta := report.Meta{ReportID: job.ID, Stores: job.TotalStores, Skipped: job.SkippedStores}
	if job.ReferenceAt != nil {
		meta.ReferenceAt = *job.ReferenceAt
	}
	if job.CompletedAt != nil {
		meta.CompletedAt = *job.CompletedAt
	}

	var body []byte
	if format == report.FormatXLSX {
		body, err = report.BuildXLSX(meta, rows)
	} else {
		body, err = report.BuildPDF(meta, rows)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	return os.WriteFile(path, body, 0644)
}
