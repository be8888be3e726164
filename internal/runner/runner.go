// Package runner wires one invocation together: load the store, let the
// engine mutate it, save once, then publish the report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/autoclaim/autoclaim/internal/config"
	"github.com/autoclaim/autoclaim/internal/engine"
	"github.com/autoclaim/autoclaim/internal/logging"
	"github.com/autoclaim/autoclaim/internal/metrics"
	"github.com/autoclaim/autoclaim/internal/models"
	"github.com/autoclaim/autoclaim/internal/notify"
	"github.com/autoclaim/autoclaim/internal/pages"
	"github.com/autoclaim/autoclaim/internal/report"
	"github.com/autoclaim/autoclaim/internal/scheduler"
	"github.com/autoclaim/autoclaim/internal/store"
)

// Gateway is the vendor surface the runner needs.
type Gateway interface {
	engine.Gateway
	ServerDate(ctx context.Context) (string, error)
}

// Mode names a kind of run.
type Mode string

const (
	ModeRefresh Mode = "refresh"
	ModeClaim   Mode = "claim"
	ModeFull    Mode = "full"
	ModeReport  Mode = "report"
	ModeSkip    Mode = "skip"
)

// Result is what a run did.
type Result struct {
	RunID        string
	Mode         Mode
	Refresh      *engine.RefreshResult
	Claims       *engine.ClaimRunResult
	WalletSynced int
	Report       report.RunReport
}

// Runner executes runs against one state file.
type Runner struct {
	cfg      config.Config
	gateway  Gateway
	notifier notify.Notifier
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a runner. gateway may be nil for modes that never call the vendor.
func New(cfg config.Config, gateway Gateway, notifier notify.Notifier, collector *metrics.Collector, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		gateway:  gateway,
		notifier: notifier,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}
}

// run is the state handed to a mode's body.
type run struct {
	id     string
	mode   Mode
	logger *slog.Logger
	engine *engine.Engine
	now    time.Time
	today  string
	store  *models.Store
	result Result
	dirty  bool
}

// Refresh merges the current period's vendor calendar into the store.
func (r *Runner) Refresh(ctx context.Context) (Result, error) {
	return r.execute(ctx, ModeRefresh, true, func(ctx context.Context, rn *run) error {
		return r.refresh(ctx, rn)
	})
}

// Claim claims every due activity dated today, then syncs the wallet.
func (r *Runner) Claim(ctx context.Context) (Result, error) {
	return r.execute(ctx, ModeClaim, true, func(ctx context.Context, rn *run) error {
		if err := r.claim(ctx, rn); err != nil {
			return err
		}
		r.syncWallet(ctx, rn)
		return nil
	})
}

// Full refreshes, claims, then syncs the wallet.
func (r *Runner) Full(ctx context.Context) (Result, error) {
	return r.execute(ctx, ModeFull, true, func(ctx context.Context, rn *run) error {
		if err := r.refresh(ctx, rn); err != nil {
			return err
		}
		if err := r.claim(ctx, rn); err != nil {
			return err
		}
		r.syncWallet(ctx, rn)
		return nil
	})
}

// Report re-renders the report from stored state without vendor calls.
func (r *Runner) Report(ctx context.Context) (Result, error) {
	return r.execute(ctx, ModeReport, false, func(context.Context, *run) error {
		return nil
	})
}

// Skip marks an activity as manually skipped.
func (r *Runner) Skip(ctx context.Context, activityID string) error {
	_, err := r.execute(ctx, ModeSkip, false, func(_ context.Context, rn *run) error {
		if err := rn.engine.MarkSkipped(rn.store, activityID); err != nil {
			return err
		}
		rn.dirty = true
		return nil
	})
	return err
}

// Schedule returns the UTC cron entries for every stored activity date.
func (r *Runner) Schedule() ([]scheduler.CronEntry, error) {
	st, err := store.Load(r.cfg.State.Path)
	if err != nil {
		return nil, err
	}

	var dates []string
	seen := make(map[string]bool)
	for _, key := range slices.Sorted(maps.Keys(st.Periods)) {
		p, err := models.ParsePeriod(key)
		if err != nil {
			continue
		}
		for _, a := range st.Activities(p) {
			if !seen[a.Date] {
				seen[a.Date] = true
				dates = append(dates, a.Date)
			}
		}
	}
	slices.Sort(dates)
	return scheduler.CronEntries(dates, r.cfg.Business.Location), nil
}

// RefreshCalendar, ClaimToday and HasCalendar let the daemon drive the runner.
func (r *Runner) RefreshCalendar(ctx context.Context) error {
	_, err := r.Refresh(ctx)
	return err
}

func (r *Runner) ClaimToday(ctx context.Context) error {
	_, err := r.Claim(ctx)
	return err
}

func (r *Runner) HasCalendar(period models.Period) (bool, error) {
	st, err := store.Load(r.cfg.State.Path)
	if err != nil {
		return false, err
	}
	return st.HasPeriod(period), nil
}

func (r *Runner) refresh(ctx context.Context, rn *run) error {
	period, err := models.PeriodForDate(rn.today)
	if err != nil {
		return err
	}
	res, err := rn.engine.RefreshCalendar(ctx, rn.store, period)
	if err != nil {
		return err
	}
	rn.result.Refresh = &res
	rn.dirty = true
	if r.metrics != nil {
		r.metrics.ObserveRefresh(res)
	}
	return nil
}

func (r *Runner) claim(ctx context.Context, rn *run) error {
	res, err := rn.engine.RunDailyClaims(ctx, rn.store, rn.today, rn.now)
	rn.result.Claims = &res
	if res.Due() > 0 {
		rn.dirty = true
	}
	if r.metrics != nil {
		r.metrics.ObserveClaims(res)
	}
	if err != nil {
		// Save the progress made before the interruption.
		if saveErr := store.Save(r.cfg.State.Path, rn.store); saveErr != nil {
			return errors.Join(err, saveErr)
		}
		rn.dirty = false
		return err
	}
	return nil
}

// syncWallet is best effort: on failure the report lists the stored coupons.
func (r *Runner) syncWallet(ctx context.Context, rn *run) {
	n, err := rn.engine.SyncWallet(ctx, rn.store)
	if err != nil {
		rn.logger.Warn("wallet sync failed, reporting stored coupons", "error", err)
		return
	}
	rn.result.WalletSynced = n
	rn.dirty = true
}

// execute runs body between a store load and a single save, then publishes.
func (r *Runner) execute(ctx context.Context, mode Mode, usesVendor bool, body func(context.Context, *run) error) (Result, error) {
	id := uuid.NewString()
	logger := logging.WithRun(r.logger, id, string(mode))
	started := r.now()

	res, err := r.executeRun(ctx, id, mode, usesVendor, logger, body)

	finished := r.now()
	if r.metrics != nil {
		r.metrics.ObserveRun(string(mode), finished.Sub(started), err, finished)
		if path := r.cfg.Metrics.TextfilePath; path != "" {
			if werr := r.metrics.WriteTextfile(path); werr != nil {
				logger.Warn("failed to write metrics textfile", "path", path, "error", werr)
			}
		}
	}

	if err != nil {
		logger.Error("run failed", "error", err)
		if mode != ModeSkip {
			if nerr := r.notifier.Notify(ctx, report.Alert(string(mode), err)); nerr != nil {
				logger.Warn("failed to send alert", "error", nerr)
			}
		}
		return res, err
	}

	logger.Info("run finished", "duration", finished.Sub(started).String())
	return res, nil
}

func (r *Runner) executeRun(ctx context.Context, id string, mode Mode, usesVendor bool, logger *slog.Logger, body func(context.Context, *run) error) (Result, error) {
	if usesVendor && r.gateway == nil {
		return Result{RunID: id, Mode: mode}, fmt.Errorf("%s run needs a vendor gateway", mode)
	}

	st, err := r.loadStore(logger)
	if err != nil {
		return Result{RunID: id, Mode: mode}, err
	}

	now := r.now().In(r.cfg.Business.Location)
	rn := &run{
		id:     id,
		mode:   mode,
		logger: logger,
		engine: engine.New(r.gateway, logger),
		now:    now,
		today:  r.businessDate(ctx, now, usesVendor, logger),
		store:  st,
		result: Result{RunID: id, Mode: mode},
	}

	if err := body(ctx, rn); err != nil {
		return rn.result, err
	}

	if rn.dirty {
		if err := store.Save(r.cfg.State.Path, rn.store); err != nil {
			return rn.result, err
		}
		logger.Info("state saved", "path", r.cfg.State.Path)
	}

	if mode == ModeSkip {
		return rn.result, nil
	}

	rep, err := report.Build(report.Input{
		RunID:    id,
		Mode:     string(mode),
		Now:      now,
		Today:    rn.today,
		Store:    rn.store,
		Refresh:  rn.result.Refresh,
		Claims:   rn.result.Claims,
		PagesURL: r.cfg.Pages.URL,
	})
	if err != nil {
		return rn.result, fmt.Errorf("building report: %w", err)
	}
	rn.result.Report = rep
	r.publish(ctx, mode, rep, logger)

	return rn.result, nil
}

// publish renders the report to its outputs. Delivery failures are logged;
// the state is already saved.
func (r *Runner) publish(ctx context.Context, mode Mode, rep report.RunReport, logger *slog.Logger) {
	if r.metrics != nil {
		r.metrics.ObserveReport(rep)
	}

	if path := r.cfg.Pages.OutputPath; path != "" {
		if err := pages.Write(path, rep); err != nil {
			logger.Warn("failed to write report page", "path", path, "error", err)
		} else {
			logger.Info("report page written", "path", path)
		}
	}

	text := report.Message(rep)
	if mode == ModeRefresh {
		text = report.CalendarUpdated(rep)
	}
	if err := r.notifier.Notify(ctx, text); err != nil {
		logger.Warn("failed to deliver report", "error", err)
	}
}

func (r *Runner) loadStore(logger *slog.Logger) (*models.Store, error) {
	path := r.cfg.State.Path
	st, err := store.Load(path)
	if err == nil {
		return st, nil
	}

	var corrupt *store.CorruptStateError
	if !errors.As(err, &corrupt) || r.cfg.State.OnCorrupt != config.CorruptFresh {
		return nil, err
	}

	moved, qerr := store.Quarantine(path, r.now())
	if qerr != nil {
		return nil, errors.Join(err, qerr)
	}
	logger.Warn("state file unreadable, starting from an empty store",
		"path", path,
		"moved_to", moved,
		"error", err)
	return models.NewStore(), nil
}

// businessDate prefers the vendor's date and falls back to the local clock.
func (r *Runner) businessDate(ctx context.Context, now time.Time, usesVendor bool, logger *slog.Logger) string {
	local := now.Format(models.DateLayout)
	if !usesVendor {
		return local
	}
	date, err := r.gateway.ServerDate(ctx)
	if err != nil {
		logger.Warn("server date unavailable, using local business date", "date", local, "error", err)
		return local
	}
	if date != local {
		logger.Info("server date differs from local clock", "server", date, "local", local)
	}
	return date
}
