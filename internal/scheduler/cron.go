package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5-field cron expressions plus descriptors such as
// @hourly and @every 15m.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a report schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule expression")
	}
	return cronParser.Parse(expr)
}

// nextAfter returns the first fire time strictly after t. A schedule with no
// future occurrence returns the zero time.
func nextAfter(schedule cron.Schedule, t time.Time) time.Time {
	return schedule.Next(t)
}
