// Package report assembles the outcome of a run into one value that the
// Telegram message and the static page both render.
package report

import (
	"sort"
	"time"

	"github.com/autoclaim/autoclaim/internal/catalog"
	"github.com/autoclaim/autoclaim/internal/engine"
	"github.com/autoclaim/autoclaim/internal/models"
)

// Day groups the activities sharing one calendar date.
type Day struct {
	Date       string
	Activities []models.Activity
}

// RunReport is everything a run has to say.
type RunReport struct {
	RunID       string
	Mode        string
	GeneratedAt time.Time
	Today       string
	Period      models.Period

	Refresh *engine.RefreshResult  // nil when the run did not refresh
	Claims  *engine.ClaimRunResult // nil when the run did not claim

	Days            []Day // every day of the period with activities, ascending
	TotalActivities int
	StatusCounts    map[models.ClaimStatus]int

	Catalog  catalog.View
	PagesURL string
}

// Input carries the values a report is built from.
type Input struct {
	RunID    string
	Mode     string
	Now      time.Time
	Today    string
	Store    *models.Store
	Refresh  *engine.RefreshResult
	Claims   *engine.ClaimRunResult
	PagesURL string
}

// Build derives the report from the post-run store. It does not modify the store.
func Build(in Input) (RunReport, error) {
	period, err := models.PeriodForDate(in.Today)
	if err != nil {
		return RunReport{}, err
	}

	r := RunReport{
		RunID:        in.RunID,
		Mode:         in.Mode,
		GeneratedAt:  in.Now,
		Today:        in.Today,
		Period:       period,
		Refresh:      in.Refresh,
		Claims:       in.Claims,
		StatusCounts: make(map[models.ClaimStatus]int),
		Catalog:      catalog.Build(in.Store.Coupons, in.Today),
		PagesURL:     in.PagesURL,
	}

	byDate := make(map[string][]models.Activity)
	for _, a := range in.Store.Activities(period) {
		byDate[a.Date] = append(byDate[a.Date], a)
		r.StatusCounts[a.ClaimStatus]++
		r.TotalActivities++
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		r.Days = append(r.Days, Day{Date: d, Activities: byDate[d]})
	}

	return r, nil
}

// Upcoming returns the days dated today or later.
func (r RunReport) Upcoming() []Day {
	var out []Day
	for _, d := range r.Days {
		if d.Date >= r.Today {
			out = append(out, d)
		}
	}
	return out
}

// ActivityDates lists the dates that carry activities, ascending.
func (r RunReport) ActivityDates() []string {
	out := make([]string, 0, len(r.Days))
	for _, d := range r.Days {
		out = append(out, d.Date)
	}
	return out
}
