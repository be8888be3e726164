package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/autoclaim/autoclaim/internal/models"
)

const (
	refreshMinute = 1 // minutes after midnight on day 1
	claimMinute   = 5 // minutes after midnight every day

	defaultCheckInterval = time.Minute
	defaultRetryDelay    = 15 * time.Minute
)

// Jobs are the runs the daemon triggers. Each call is a complete
// load-mutate-save cycle.
type Jobs interface {
	RefreshCalendar(ctx context.Context) error
	ClaimToday(ctx context.Context) error
	HasCalendar(period models.Period) (bool, error)
}

// Daemon triggers the monthly refresh and the daily claim in-process. Jobs
// run one after another on the daemon goroutine and never overlap.
type Daemon struct {
	jobs          Jobs
	loc           *time.Location
	logger        *slog.Logger
	now           func() time.Time
	checkInterval time.Duration
	retryDelay    time.Duration

	stopOnce sync.Once
	stopChan chan struct{}

	mu            sync.Mutex
	lastRefresh   models.Period
	lastClaim     string
	nextRefreshAt time.Time
	nextClaimAt   time.Time
}

// NewDaemon creates a daemon evaluating its schedule in loc.
func NewDaemon(jobs Jobs, loc *time.Location, logger *slog.Logger) *Daemon {
	return &Daemon{
		jobs:          jobs,
		loc:           loc,
		logger:        logger,
		now:           time.Now,
		checkInterval: defaultCheckInterval,
		retryDelay:    defaultRetryDelay,
		stopChan:      make(chan struct{}),
	}
}

// Start runs the scheduler loop until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) {
	d.logger.Info("starting claim daemon", "check_interval", d.checkInterval, "timezone", d.loc.String())
	d.prime()

	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()

	d.tick(ctx)
	for {
		select {
		case <-ticker.C:
			d.tick(ctx)
		case <-d.stopChan:
			d.logger.Info("claim daemon stopped")
			return
		case <-ctx.Done():
			d.logger.Info("claim daemon stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler loop.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
}

// prime treats the current period as refreshed when the store already holds it.
func (d *Daemon) prime() {
	period := models.PeriodOf(d.now().In(d.loc))
	ok, err := d.jobs.HasCalendar(period)
	if err != nil {
		d.logger.Warn("could not inspect stored calendar, refreshing", "error", err)
		return
	}
	if ok {
		d.mu.Lock()
		d.lastRefresh = period
		d.mu.Unlock()
	}
}

func (d *Daemon) tick(ctx context.Context) {
	now := d.now().In(d.loc)

	d.mu.Lock()
	refreshDue := RefreshDue(now, d.lastRefresh) && !now.Before(d.nextRefreshAt)
	d.mu.Unlock()

	if refreshDue {
		period := models.PeriodOf(now)
		d.logger.Info("triggering calendar refresh", "period", period.String())
		err := d.jobs.RefreshCalendar(ctx)

		d.mu.Lock()
		if err != nil {
			d.nextRefreshAt = now.Add(d.retryDelay)
			d.logger.Error("scheduled refresh failed", "error", err, "retry_at", d.nextRefreshAt.Format(time.RFC3339))
		} else {
			d.lastRefresh = period
		}
		d.mu.Unlock()
	}

	d.mu.Lock()
	claimDue := ClaimDue(now, d.lastClaim) && !now.Before(d.nextClaimAt)
	d.mu.Unlock()

	if claimDue {
		date := now.Format(models.DateLayout)
		d.logger.Info("triggering daily claims", "date", date)
		err := d.jobs.ClaimToday(ctx)

		d.mu.Lock()
		if err != nil {
			d.nextClaimAt = now.Add(d.retryDelay)
			d.logger.Error("scheduled claim run failed", "error", err, "retry_at", d.nextClaimAt.Format(time.RFC3339))
		} else {
			d.lastClaim = date
		}
		d.mu.Unlock()
	}
}

// Status is a snapshot of the daemon's progress.
type Status struct {
	LastRefresh  string `json:"last_refresh,omitempty"`
	LastClaim    string `json:"last_claim,omitempty"`
	RefreshRetry string `json:"refresh_retry_at,omitempty"`
	ClaimRetry   string `json:"claim_retry_at,omitempty"`
}

// Status reports the last completed jobs and any pending retry.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	var s Status
	if d.lastRefresh != (models.Period{}) {
		s.LastRefresh = d.lastRefresh.String()
	}
	s.LastClaim = d.lastClaim
	now := d.now()
	if d.nextRefreshAt.After(now) {
		s.RefreshRetry = d.nextRefreshAt.Format(time.RFC3339)
	}
	if d.nextClaimAt.After(now) {
		s.ClaimRetry = d.nextClaimAt.Format(time.RFC3339)
	}
	return s
}

// RefreshDue reports whether the period containing now still needs its
// refresh. The first day only qualifies from 00:01 on.
func RefreshDue(now time.Time, last models.Period) bool {
	if models.PeriodOf(now) == last {
		return false
	}
	return now.Day() > 1 || minuteOfDay(now) >= refreshMinute
}

// ClaimDue reports whether today's claim run is still outstanding.
func ClaimDue(now time.Time, lastDate string) bool {
	return now.Format(models.DateLayout) != lastDate && minuteOfDay(now) >= claimMinute
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
