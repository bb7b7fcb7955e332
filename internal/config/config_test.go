package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "storewatch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0644))
	return cfgPath
}

func TestLoadConfigDefaults(t *testing.T) {
	// Not parallel: reads DATABASE_URL, which other tests set.
	t.Setenv("DATABASE_URL", "")

	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, filepath.Join("./data", "storewatch.db"), cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Report.BatchSize)
	assert.Equal(t, 4, cfg.Report.Parallelism)
	assert.Equal(t, "America/Chicago", cfg.Report.DefaultTimezone)
	assert.Equal(t, filepath.Join("./data", "reports"), cfg.Artifacts.Dir)

	ttl, err := cfg.ReferenceTTL()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)
	assert.EqualValues(t, 512*1024*1024, cfg.MaxArtifactBytes())
}

func TestLoadConfigExpandsTildePaths(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	body := `
data_dir: "~/storewatch-data"
artifacts:
  dir: "~/storewatch-reports"
`
	cfg, err := LoadConfig(writeConfig(t, body))
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Fatalf("UserHomeDir unavailable for test: %v", err)
	}
	assert.Equal(t, filepath.Join(home, "storewatch-data"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, "storewatch-reports"), cfg.Artifacts.Dir)
	assert.Equal(t, filepath.Join(home, "storewatch-data", "storewatch.db"), cfg.Database.DSN)
}

func TestDatabaseURLSelectsPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost:5432/stores?sslmode=disable")

	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://user:pw@localhost:5432/stores?sslmode=disable", cfg.Database.DSN)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cases := map[string]string{
		"log level":     "log_level: loud\n",
		"log format":    "log_format: xml\n",
		"driver":        "database:\n  driver: oracle\n",
		"postgres dsn":  "database:\n  driver: postgres\n",
		"ttl":           "report:\n  reference_ttl: soon\n",
		"negative ttl":  "report:\n  reference_ttl: -1m\n",
		"timezone":      "report:\n  default_timezone: Mars/Base\n",
		"cron":          "report:\n  schedules:\n    - name: nightly\n      cron: \"not a cron\"\n",
		"schedule name": "report:\n  schedules:\n    - cron: \"@hourly\"\n",
		"duplicate": "report:\n  schedules:\n    - name: a\n      cron: \"@hourly\"\n" +
			"    - name: a\n      cron: \"@daily\"\n",
	}
	for name, body := range cases {
		_, err := LoadConfig(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestSchedulesParse(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	body := `
report:
  schedules:
    - name: nightly
      cron: "0 2 * * *"
    - name: hourly
      cron: "@hourly"
      enabled: false
`
	cfg, err := LoadConfig(writeConfig(t, body))
	require.NoError(t, err)
	require.Len(t, cfg.Report.Schedules, 2)
	assert.True(t, cfg.Report.Schedules[0].IsEnabled())
	assert.False(t, cfg.Report.Schedules[1].IsEnabled())
}

func TestWatchReloads(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	path := writeConfig(t, "report:\n  batch_size: 5\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("report:\n  batch_size: 20\n"), 0644))

	// Truncate and write can arrive as separate events; wait for the final content.
	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case c := <-got:
			reloaded = c.Report.BatchSize == 20
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	assert.NoError(t, <-errc)
}
