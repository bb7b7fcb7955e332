// Package ingest loads the store status, business hours and timezone CSV
// exports into the observation database.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/patrickspencer/storewatch/internal/store"
	"github.com/patrickspencer/storewatch/internal/uptime"
)

// Source file names inside an ingest directory.
const (
	StatusFile   = "store_status.csv"
	HoursFile    = "menu_hours.csv"
	TimezoneFile = "timezones.csv"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999 MST",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// ParseTimestamp accepts the export format ("2023-01-25 18:13:22.47922 UTC")
// and RFC 3339. Values without a zone are UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// RowError describes one rejected input line.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// table reads a CSV with a header row and resolves columns by name.
type table struct {
	r    *csv.Reader
	cols map[string]int
	line int
}

func newTable(r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(head))
	for i, name := range head {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		cols[name] = i
	}
	for _, name := range required {
		if _, ok := cols[strings.ToLower(name)]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return &table{r: cr, cols: cols, line: 1}, nil
}

// next returns the next record or io.EOF.
func (t *table) next() ([]string, error) {
	rec, err := t.r.Read()
	t.line++
	return rec, err
}

func (t *table) field(rec []string, name string) string {
	i, ok := t.cols[strings.ToLower(name)]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// readAll calls parse for every record. Unparseable records are collected as
// RowErrors; reader errors abort.
func readAll(t *table, parse func(rec []string) error) ([]*RowError, error) {
	var rejected []*RowError
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			return rejected, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rejected = append(rejected, &RowError{Line: t.line, Err: err})
				continue
			}
			return rejected, err
		}
		if err := parse(rec); err != nil {
			rejected = append(rejected, &RowError{Line: t.line, Err: err})
		}
	}
}

// ReadStatus parses store_status.csv.
func ReadStatus(r io.Reader) ([]uptime.Observation, []*RowError, error) {
	t, err := newTable(r, "store_id", "status", "timestamp_utc")
	if err != nil {
		return nil, nil, err
	}
	var out []uptime.Observation
	rejected, err := readAll(t, func(rec []string) error {
		id := t.field(rec, "store_id")
		if id == "" {
			return errors.New("empty store_id")
		}
		st, err := uptime.ParseStatus(t.field(rec, "status"))
		if err != nil {
			return err
		}
		ts, err := ParseTimestamp(t.field(rec, "timestamp_utc"))
		if err != nil {
			return err
		}
		out = append(out, uptime.Observation{StoreID: id, Timestamp: ts, Status: st})
		return nil
	})
	return out, rejected, err
}

// ReadHours parses menu_hours.csv. The day column may be named dayOfWeek or
// day_of_week.
func ReadHours(r io.Reader) ([]uptime.Rule, []*RowError, error) {
	t, err := newTable(r, "store_id", "start_time_local", "end_time_local")
	if err != nil {
		return nil, nil, err
	}
	dayCol := "dayofweek"
	if _, ok := t.cols[dayCol]; !ok {
		dayCol = "day_of_week"
		if _, ok := t.cols[dayCol]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", "dayOfWeek")
		}
	}

	var out []uptime.Rule
	rejected, err := readAll(t, func(rec []string) error {
		id := t.field(rec, "store_id")
		if id == "" {
			return errors.New("empty store_id")
		}
		day, err := strconv.Atoi(t.field(rec, dayCol))
		if err != nil || day < 0 || day > 6 {
			return fmt.Errorf("invalid day of week %q", t.field(rec, dayCol))
		}
		start, err := uptime.ParseTimeOfDay(t.field(rec, "start_time_local"))
		if err != nil {
			return err
		}
		end, err := uptime.ParseTimeOfDay(t.field(rec, "end_time_local"))
		if err != nil {
			return err
		}
		out = append(out, uptime.Rule{StoreID: id, DayOfWeek: day, Start: start, End: end})
		return nil
	})
	return out, rejected, err
}

// ReadTimezones parses timezones.csv. Zones are validated when reports run.
func ReadTimezones(r io.Reader) ([]store.StoreTimezone, []*RowError, error) {
	t, err := newTable(r, "store_id", "timezone_str")
	if err != nil {
		return nil, nil, err
	}
	var out []store.StoreTimezone
	rejected, err := readAll(t, func(rec []string) error {
		id := t.field(rec, "store_id")
		tz := t.field(rec, "timezone_str")
		if id == "" || tz == "" {
			return errors.New("empty store_id or timezone_str")
		}
		out = append(out, store.StoreTimezone{StoreID: id, Timezone: tz})
		return nil
	})
	return out, rejected, err
}
