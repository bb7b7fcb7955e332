package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickspencer/storewatch/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIngestThenReport(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	dataDir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "storewatch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("data_dir: "+dataDir+"\nlog_level: error\n"), 0644))

	src := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(body), 0644))
	}
	write("store_status.csv", "store_id,status,timestamp_utc\n"+
		"s1,active,2023-01-25 10:00:00 UTC\n"+
		"s1,inactive,2023-01-25 12:00:00 UTC\n"+
		"s1,active,2023-01-25 14:00:00 UTC\n")
	write("timezones.csv", "store_id,timezone_str\ns1,UTC\n")

	out, err := runCLI(t, "--config", cfgPath, "ingest", src)
	require.NoError(t, err)
	assert.Contains(t, out, "store_status.csv")
	assert.Contains(t, out, "imported=3")

	target := filepath.Join(t.TempDir(), "out.csv")
	out, err = runCLI(t, "--config", cfgPath, "report", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "1 stores (0 skipped)")

	body, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "store_id,uptime_last_hour"))
	assert.True(t, strings.HasPrefix(lines[1], "s1,"))

	pdfPath := filepath.Join(t.TempDir(), "out.pdf")
	_, err = runCLI(t, "--config", cfgPath, "report", "--out", pdfPath)
	require.NoError(t, err)
	pdf, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestReportWithoutDataFails(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfgPath := filepath.Join(t.TempDir(), "storewatch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("data_dir: "+t.TempDir()+"\nlog_level: error\n"), 0644))

	_, err := runCLI(t, "--config", cfgPath, "report", "--format", "docx")
	assert.Error(t, err)

	_, err = runCLI(t, "--config", cfgPath, "ingest")
	assert.Error(t, err)
}

func TestExplicitMissingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "report")
	assert.Error(t, err)
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	out, err := runCLI(t, "healthcheck", "--api", ok.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	_, err = runCLI(t, "healthcheck", "--api", down.URL)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestScheduleExprs(t *testing.T) {
	t.Parallel()

	off := false
	cfg := &config.Config{Report: config.ReportConfig{Schedules: []config.ScheduleConfig{
		{Name: "nightly", Cron: "0 2 * * *"},
		{Name: "paused", Cron: "@hourly", Enabled: &off},
	}}}
	assert.Equal(t, map[string]string{"nightly": "0 2 * * *"}, scheduleExprs(cfg))
}

func TestFormatFromPathAndExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "xlsx", formatFromPath("a/b.XLSX"))
	assert.Equal(t, "pdf", formatFromPath("r.pdf"))
	assert.Equal(t, "csv", formatFromPath(""))

	assert.Equal(t, 2, exitCode(&exitError{code: 2, err: errors.New("x")}))
	assert.Equal(t, 1, exitCode(errors.New("plain")))
}
