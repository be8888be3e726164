package scheduler

import (
	"fmt"
	"time"

	"github.com/autoclaim/autoclaim/internal/models"
)

// CronEntry is a UTC crontab line firing the claim run for one activity date.
type CronEntry struct {
	Date string
	Spec string
}

// CronEntries returns, for each date, the UTC cron spec matching 00:05 on
// that date in loc. Malformed dates are skipped.
func CronEntries(dates []string, loc *time.Location) []CronEntry {
	out := make([]CronEntry, 0, len(dates))
	for _, date := range dates {
		d, err := models.ParseDate(date)
		if err != nil {
			continue
		}
		fire := time.Date(d.Year(), d.Month(), d.Day(), 0, claimMinute, 0, 0, loc).UTC()
		out = append(out, CronEntry{
			Date: date,
			Spec: fmt.Sprintf("%d %d %d %d *", fire.Minute(), fire.Hour(), fire.Day(), int(fire.Month())),
		})
	}
	return out
}
