package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// NewReportID generates a new ULID-based report identifier.
func NewReportID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Supported values for the database driver setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	name     string
	sqlName  string
	serial   string
	numbered bool
}

var (
	sqliteDialect   = dialect{name: DriverSQLite, sqlName: "sqlite", serial: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{name: DriverPostgres, sqlName: "pgx", serial: "BIGSERIAL PRIMARY KEY", numbered: true}
)

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		return sqliteDialect, nil
	case DriverPostgres, "postgresql", "pgx":
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// rebind rewrites ? placeholders to $n for dialects that need it.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// SQLStore implements ObservationStore, JobStore and Loader over database/sql.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects with the named driver and runs migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.name == DriverSQLite && !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open(d.sqlName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}

	if d.name == DriverSQLite {
		// Enable WAL mode for better concurrent read performance.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	} else if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	if err := RunMigrations(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, d: d}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Driver returns the configured driver name.
func (s *SQLStore) Driver() string {
	return s.d.name
}

// TimeFormat is the fixed-width layout for stored timestamps; lexical order
// equals time order. Range and MAX queries compare the text directly, so every
// row must use it. Writers outside this package must format with TimeFormat.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseTime accepts TimeFormat only. A row in any other layout would sort
// wrongly against its neighbours, so it is rejected instead of normalized.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not in %s layout: %w", s, TimeFormat, err)
	}
	return t, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// RecordJob inserts or updates a report job.
func (s *SQLStore) RecordJob(ctx context.Context, job *ReportJob) error {
	if job.ID == "" {
		job.ID = NewReportID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = JobRunning
	}
	if job.Trigger == "" {
		job.Trigger = "manual"
	}

	_, err := s.db.ExecContext(ctx, s.d.rebind(`
		INSERT INTO report_jobs (
			id, status, trigger_type, created_at, completed_at, reference_at,
			result_location, total_stores, skipped_stores, error_msg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			reference_at = excluded.reference_at,
			result_location = excluded.result_location,
			total_stores = excluded.total_stores,
			skipped_stores = excluded.skipped_stores,
			error_msg = excluded.error_msg`),
		job.ID,
		string(job.Status),
		job.Trigger,
		formatTime(job.CreatedAt),
		formatTimePtr(job.CompletedAt),
		formatTimePtr(job.ReferenceAt),
		nullString(job.ResultLocation),
		job.TotalStores,
		job.SkippedStores,
		nullString(job.Error),
	)
	return err
}

func scanJob(row interface{ Scan(...any) error }) (*ReportJob, error) {
	var j ReportJob
	var status, createdAt string
	var completedAt, referenceAt, location, errMsg sql.NullString

	err := row.Scan(
		&j.ID,
		&status,
		&j.Trigger,
		&createdAt,
		&completedAt,
		&referenceAt,
		&location,
		&j.TotalStores,
		&j.SkippedStores,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)

	j.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	j.CompletedAt, err = parseTimePtr(completedAt)
	if err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	j.ReferenceAt, err = parseTimePtr(referenceAt)
	if err != nil {
		return nil, fmt.Errorf("parse reference_at: %w", err)
	}
	if location.Valid {
		j.ResultLocation = location.String
	}
	if errMsg.Valid {
		j.Error = errMsg.String
	}
	return &j, nil
}

const selectJobCols = `id, status, trigger_type, created_at, completed_at, reference_at,
	result_location, total_stores, skipped_stores, error_msg`

// GetJob retrieves a single report job by ID.
func (s *SQLStore) GetJob(ctx context.Context, id string) (*ReportJob, error) {
	row := s.db.QueryRowContext(ctx,
		s.d.rebind("SELECT "+selectJobCols+" FROM report_jobs WHERE id = ?"), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// ListJobs returns jobs matching opts, newest first.
func (s *SQLStore) ListJobs(ctx context.Context, opts ListOpts) ([]*ReportJob, error) {
	query := "SELECT " + selectJobCols + " FROM report_jobs"
	var args []any

	if opts.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 && s.d.numbered {
			query += " LIMIT ALL"
		} else if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ReportJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
