package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickspencer/storewatch/internal/uptime"
)

// ListStoreIDs returns every store known to any source table, sorted.
func (s *SQLStore) ListStoreIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id FROM store_status
		UNION SELECT store_id FROM business_hours
		UNION SELECT store_id FROM store_timezones
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MaxObservedTimestamp returns the latest observation time. ok is false when
// there are no observations.
func (s *SQLStore) MaxObservedTimestamp(ctx context.Context) (time.Time, bool, error) {
	var ts sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(timestamp_utc) FROM store_status").Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("max timestamp: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	t, err := parseTime(ts.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse max timestamp: %w", err)
	}
	return t, true, nil
}

// ObservationsForRange returns a store's observations in [from, to) in write
// order per instant, preceded by the last observation before from if any.
func (s *SQLStore) ObservationsForRange(ctx context.Context, storeID string, from, to time.Time) ([]uptime.Observation, error) {
	var out []uptime.Observation

	var seedStatus, seedTS string
	err := s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT status, timestamp_utc FROM store_status
		WHERE store_id = ? AND timestamp_utc < ?
		ORDER BY timestamp_utc DESC, id DESC
		LIMIT 1`), storeID, formatTime(from)).Scan(&seedStatus, &seedTS)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("seed observation for %s: %w", storeID, err)
	default:
		o, err := toObservation(storeID, seedStatus, seedTS)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT status, timestamp_utc FROM store_status
		WHERE store_id = ? AND timestamp_utc >= ? AND timestamp_utc < ?
		ORDER BY timestamp_utc, id`), storeID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("observations for %s: %w", storeID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, ts string
		if err := rows.Scan(&status, &ts); err != nil {
			return nil, err
		}
		o, err := toObservation(storeID, status, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func toObservation(storeID, status, ts string) (uptime.Observation, error) {
	st, err := uptime.ParseStatus(status)
	if err != nil {
		return uptime.Observation{}, &uptime.ConfigError{StoreID: storeID, Field: "status", Err: err}
	}
	t, err := parseTime(ts)
	if err != nil {
		return uptime.Observation{}, &uptime.ConfigError{StoreID: storeID, Field: "timestamp", Err: err}
	}
	return uptime.Observation{StoreID: storeID, Timestamp: t, Status: st}, nil
}

// BusinessHours returns a store's weekly rules ordered by weekday. Malformed
// rows are reported as *uptime.ConfigError.
func (s *SQLStore) BusinessHours(ctx context.Context, storeID string) ([]uptime.Rule, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT day_of_week, start_time_local, end_time_local FROM business_hours
		WHERE store_id = ?
		ORDER BY day_of_week`), storeID)
	if err != nil {
		return nil, fmt.Errorf("business hours for %s: %w", storeID, err)
	}
	defer rows.Close()

	var rules []uptime.Rule
	for rows.Next() {
		var day int
		var start, end string
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		r := uptime.Rule{StoreID: storeID, DayOfWeek: day}
		if r.Start, err = uptime.ParseTimeOfDay(start); err != nil {
			return nil, &uptime.ConfigError{StoreID: storeID, Field: "start_time_local", Err: err}
		}
		if r.End, err = uptime.ParseTimeOfDay(end); err != nil {
			return nil, &uptime.ConfigError{StoreID: storeID, Field: "end_time_local", Err: err}
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// Timezone returns the store's timezone name; ok is false when none is set.
func (s *SQLStore) Timezone(ctx context.Context, storeID string) (string, bool, error) {
	var tz string
	err := s.db.QueryRowContext(ctx, s.d.rebind(
		"SELECT timezone_str FROM store_timezones WHERE store_id = ?"), storeID).Scan(&tz)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("timezone for %s: %w", storeID, err)
	}
	return tz, true, nil
}

// StatusCounts summarizes the observation table.
func (s *SQLStore) StatusCounts(ctx context.Context) (*StatusCounts, error) {
	var c StatusCounts
	var active, inactive sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'inactive' THEN 1 ELSE 0 END),
			COUNT(DISTINCT store_id)
		FROM store_status`).Scan(&c.Observations, &active, &inactive, &c.Stores)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	if active.Valid {
		c.Active = active.Int64
	}
	if inactive.Valid {
		c.Inactive = inactive.Int64
	}
	return &c, nil
}

// InactiveStores lists stores with at least one inactive observation at or
// after since. A zero since covers all history.
func (s *SQLStore) InactiveStores(ctx context.Context, since time.Time, limit int) ([]InactiveStore, error) {
	query := `
		SELECT store_id, COUNT(*), MIN(timestamp_utc), MAX(timestamp_utc) FROM store_status
		WHERE status = ?`
	args := []any{string(uptime.StatusInactive)}
	if !since.IsZero() {
		query += " AND timestamp_utc >= ?"
		args = append(args, formatTime(since))
	}
	query += " GROUP BY store_id ORDER BY store_id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("inactive stores: %w", err)
	}
	defer rows.Close()

	var out []InactiveStore
	for rows.Next() {
		var st InactiveStore
		var first, last string
		if err := rows.Scan(&st.StoreID, &st.Observations, &first, &last); err != nil {
			return nil, err
		}
		if st.FirstSeen, err = parseTime(first); err != nil {
			return nil, fmt.Errorf("parse timestamp for %s: %w", st.StoreID, err)
		}
		if st.LastSeen, err = parseTime(last); err != nil {
			return nil, fmt.Errorf("parse timestamp for %s: %w", st.StoreID, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// InsertObservations appends observations in one transaction.
func (s *SQLStore) InsertObservations(ctx context.Context, obs []uptime.Observation) error {
	return s.inTx(ctx, "INSERT INTO store_status (store_id, status, timestamp_utc) VALUES (?, ?, ?)",
		len(obs), func(stmt *sql.Stmt, i int) error {
			o := obs[i]
			_, err := stmt.ExecContext(ctx, o.StoreID, string(o.Status), formatTime(o.Timestamp))
			return err
		})
}

// UpsertBusinessHours writes rules, replacing any existing rule for the same
// store and weekday.
func (s *SQLStore) UpsertBusinessHours(ctx context.Context, rules []uptime.Rule) error {
	return s.inTx(ctx, `
		INSERT INTO business_hours (store_id, day_of_week, start_time_local, end_time_local)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_id, day_of_week) DO UPDATE SET
			start_time_local = excluded.start_time_local,
			end_time_local = excluded.end_time_local`,
		len(rules), func(stmt *sql.Stmt, i int) error {
			r := rules[i]
			_, err := stmt.ExecContext(ctx, r.StoreID, r.DayOfWeek, r.Start.String(), r.End.String())
			return err
		})
}

// UpsertTimezones writes store timezones, replacing existing ones.
func (s *SQLStore) UpsertTimezones(ctx context.Context, zones []StoreTimezone) error {
	return s.inTx(ctx, `
		INSERT INTO store_timezones (store_id, timezone_str) VALUES (?, ?)
		ON CONFLICT(store_id) DO UPDATE SET timezone_str = excluded.timezone_str`,
		len(zones), func(stmt *sql.Stmt, i int) error {
			_, err := stmt.ExecContext(ctx, zones[i].StoreID, zones[i].Timezone)
			return err
		})
}

func (s *SQLStore) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.d.rebind(query))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return tx.Commit()
}
