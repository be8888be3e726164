package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/autoclaim/autoclaim/internal/models"
)

type fakeJobs struct {
	stored     bool
	refreshErr error
	claimErr   error
	refreshes  int
	claims     int
}

func (f *fakeJobs) RefreshCalendar(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func (f *fakeJobs) ClaimToday(context.Context) error {
	f.claims++
	return f.claimErr
}

func (f *fakeJobs) HasCalendar(models.Period) (bool, error) {
	return f.stored, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestDaemon(jobs Jobs, start time.Time) (*Daemon, *clock) {
	c := &clock{t: start}
	d := NewDaemon(jobs, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.now = c.now
	return d, c
}

func TestRefreshDue(t *testing.T) {
	jan := models.Period{Year: 2026, Month: time.January}
	tests := []struct {
		name string
		now  time.Time
		last models.Period
		want bool
	}{
		{"day one before window", time.Date(2026, 2, 1, 0, 0, 30, 0, time.UTC), jan, false},
		{"day one in window", time.Date(2026, 2, 1, 0, 1, 0, 0, time.UTC), jan, true},
		{"mid month, missing", time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC), jan, true},
		{"already refreshed", time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC), jan, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RefreshDue(tt.now, tt.last); got != tt.want {
				t.Errorf("RefreshDue = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestClaimDue(t *testing.T) {
	if ClaimDue(time.Date(2026, 1, 17, 0, 4, 59, 0, time.UTC), "2026-01-16") {
		t.Error("claims must wait for 00:05")
	}
	if !ClaimDue(time.Date(2026, 1, 17, 0, 5, 0, 0, time.UTC), "2026-01-16") {
		t.Error("claims due at 00:05")
	}
	if ClaimDue(time.Date(2026, 1, 17, 23, 0, 0, 0, time.UTC), "2026-01-17") {
		t.Error("claims run once per date")
	}
}

func TestDaemonRunsEachJobOncePerWindow(t *testing.T) {
	jobs := &fakeJobs{stored: true}
	d, c := newTestDaemon(jobs, time.Date(2026, 1, 31, 23, 58, 0, 0, time.UTC))
	d.prime()
	ctx := context.Background()

	d.tick(ctx) // Jan 31 23:58: period stored, claim due
	if jobs.refreshes != 0 || jobs.claims != 1 {
		t.Fatalf("after first tick: refreshes=%d claims=%d", jobs.refreshes, jobs.claims)
	}

	for _, at := range []time.Time{
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 1, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 2, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 5, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 6, 0, 0, time.UTC),
	} {
		c.t = at
		d.tick(ctx)
	}
	if jobs.refreshes != 1 {
		t.Errorf("expected one refresh for February, got %d", jobs.refreshes)
	}
	if jobs.claims != 2 {
		t.Errorf("expected one claim run per date, got %d", jobs.claims)
	}
}

func TestDaemonRefreshesMissingPeriodAtStartup(t *testing.T) {
	jobs := &fakeJobs{}
	d, _ := newTestDaemon(jobs, time.Date(2026, 1, 17, 0, 2, 0, 0, time.UTC))
	d.prime()
	d.tick(context.Background())

	if jobs.refreshes != 1 {
		t.Errorf("expected startup refresh, got %d", jobs.refreshes)
	}
	if jobs.claims != 0 {
		t.Errorf("claims must wait for 00:05, got %d", jobs.claims)
	}
}

func TestDaemonBacksOffAfterFailure(t *testing.T) {
	jobs := &fakeJobs{claimErr: errors.New("store unwritable"), stored: true}
	d, c := newTestDaemon(jobs, time.Date(2026, 1, 17, 0, 5, 0, 0, time.UTC))
	d.prime()
	ctx := context.Background()

	d.tick(ctx)
	c.t = c.t.Add(time.Minute)
	d.tick(ctx)
	if jobs.claims != 1 {
		t.Fatalf("expected backoff after failure, got %d claim runs", jobs.claims)
	}

	jobs.claimErr = nil
	c.t = c.t.Add(defaultRetryDelay)
	d.tick(ctx)
	c.t = c.t.Add(time.Minute)
	d.tick(ctx)
	if jobs.claims != 2 {
		t.Errorf("expected a single retry after the delay, got %d claim runs", jobs.claims)
	}
}

func TestDaemonStopsOnContext(t *testing.T) {
	jobs := &fakeJobs{stored: true}
	d, _ := newTestDaemon(jobs, time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}
	d.Stop()
	d.Stop()
}

func TestCronEntries(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	got := CronEntries([]string{"2026-01-17", "bad", "2026-02-01"}, shanghai)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %+v", got)
	}
	if got[0].Spec != "5 16 16 1 *" {
		t.Errorf("unexpected spec for 2026-01-17: %q", got[0].Spec)
	}
	if got[1].Spec != "5 16 31 1 *" {
		t.Errorf("unexpected spec for 2026-02-01: %q", got[1].Spec)
	}
}

func TestDaemonStatusReportsRetry(t *testing.T) {
	jobs := &fakeJobs{stored: true, claimErr: errors.New("vendor down")}
	d, _ := newTestDaemon(jobs, time.Date(2026, 1, 17, 0, 5, 0, 0, time.UTC))
	d.prime()
	d.tick(context.Background())

	s := d.Status()
	if s.LastRefresh != "2026-01" {
		t.Errorf("LastRefresh = %q", s.LastRefresh)
	}
	if s.LastClaim != "" {
		t.Errorf("failed claim must not be recorded, got %q", s.LastClaim)
	}
	if s.ClaimRetry != "2026-01-17T00:20:00Z" {
		t.Errorf("ClaimRetry = %q", s.ClaimRetry)
	}
}
