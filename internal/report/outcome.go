package report

import (
	"strconv"

	"github.com/patrickspencer/storewatch/internal/uptime"
)

// Row is one store's line in the report. Hour values are minutes; day and week
// values are hours.
type Row struct {
	StoreID          string  `json:"store_id"`
	UptimeLastHour   float64 `json:"uptime_last_hour"`
	DowntimeLastHour float64 `json:"downtime_last_hour"`
	UptimeLastDay    float64 `json:"uptime_last_day"`
	DowntimeLastDay  float64 `json:"downtime_last_day"`
	UptimeLastWeek   float64 `json:"uptime_last_week"`
	DowntimeLastWeek float64 `json:"downtime_last_week"`
}

// RowFromResult converts a computed store into report units.
func RowFromResult(res uptime.StoreResult) Row {
	row := Row{StoreID: res.StoreID}
	if p, ok := res.Period(uptime.PeriodLastHour); ok {
		row.UptimeLastHour = p.Uptime.Minutes()
		row.DowntimeLastHour = p.Downtime.Minutes()
	}
	if p, ok := res.Period(uptime.PeriodLastDay); ok {
		row.UptimeLastDay = p.Uptime.Hours()
		row.DowntimeLastDay = p.Downtime.Hours()
	}
	if p, ok := res.Period(uptime.PeriodLastWeek); ok {
		row.UptimeLastWeek = p.Uptime.Hours()
		row.DowntimeLastWeek = p.Downtime.Hours()
	}
	return row
}

// Values returns the numeric columns in header order.
func (r Row) Values() []float64 {
	return []float64{
		r.UptimeLastHour, r.DowntimeLastHour,
		r.UptimeLastDay, r.DowntimeLastDay,
		r.UptimeLastWeek, r.DowntimeLastWeek,
	}
}

// Record renders the row as CSV fields with two decimals.
func (r Row) Record() []string {
	rec := make([]string, 0, len(Header))
	rec = append(rec, r.StoreID)
	for _, v := range r.Values() {
		rec = append(rec, formatValue(v))
	}
	return rec
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Outcome is the per-store result of a report run: either a row or the reason
// the store was skipped.
type Outcome struct {
	StoreID string
	Row     *Row
	Err     error
}

// Skipped reports whether the store produced no row.
func (o Outcome) Skipped() bool {
	return o.Row == nil
}
