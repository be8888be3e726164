// Package engine reconciles the vendor activity calendar with the persisted
// store and drives at-most-once coupon claims.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoclaim/autoclaim/internal/models"
)

// Gateway is the vendor API as seen by the engine. Implementations validate
// vendor payloads and return only fully typed records.
type Gateway interface {
	// FetchActivities returns the full activity list for a period.
	FetchActivities(ctx context.Context, period models.Period) ([]models.ActivityRecord, error)

	// Claim claims the coupon attached to an activity.
	Claim(ctx context.Context, activityID string) (models.Coupon, error)

	// ListCoupons returns the coupons currently held in the account wallet.
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
}

// Engine applies calendar refreshes and daily claims to a store value.
type Engine struct {
	gateway Gateway
	logger  *slog.Logger
}

// New creates an engine backed by the given gateway.
func New(gateway Gateway, logger *slog.Logger) *Engine {
	return &Engine{
		gateway: gateway,
		logger:  logger,
	}
}

// RefreshResult summarizes a calendar merge.
type RefreshResult struct {
	Period    models.Period
	Fetched   int
	Inserted  int
	Updated   int
	Unchanged int
	Retained  int // stored activities missing from the fetch, kept as-is
	Total     int
}

// RefreshCalendar merges the vendor calendar for period into st. New IDs are
// inserted as pending; known IDs get their display fields updated while their
// claim status is preserved; activities the vendor no longer lists are kept.
// On any fetch or validation failure st is not modified.
func (e *Engine) RefreshCalendar(ctx context.Context, st *models.Store, period models.Period) (RefreshResult, error) {
	result := RefreshResult{Period: period}

	records, err := e.gateway.FetchActivities(ctx, period)
	if err != nil {
		var fetchErr *models.FetchError
		if errors.As(err, &fetchErr) {
			return result, err
		}
		return result, &models.FetchError{Period: period, Err: err}
	}

	fetched, err := validateRecords(period, records)
	if err != nil {
		return result, &models.FetchError{Period: period, Err: err}
	}
	for _, r := range fetched {
		if a, ok := st.FindActivity(r.ID); ok && !period.Contains(a.Date) {
			return result, &models.FetchError{
				Period: period,
				Err:    fmt.Errorf("activity %s already stored under date %s", r.ID, a.Date),
			}
		}
	}
	result.Fetched = len(fetched)

	// Validation is complete; mutations start here.
	rec := st.Period(period)
	index := make(map[string]int, len(rec.Activities))
	for i, a := range rec.Activities {
		index[a.ID] = i
	}

	inFetch := make(map[string]struct{}, len(fetched))
	for _, r := range fetched {
		inFetch[r.ID] = struct{}{}

		i, known := index[r.ID]
		if !known {
			rec.Activities = append(rec.Activities, models.Activity{
				ID:          r.ID,
				Date:        r.Date,
				Title:       r.Title,
				Content:     r.Content,
				ImageURL:    r.ImageURL,
				ClaimStatus: models.ClaimStatusPending,
			})
			index[r.ID] = len(rec.Activities) - 1
			result.Inserted++
			continue
		}

		a := &rec.Activities[i]
		if a.Date == r.Date && a.Title == r.Title && a.Content == r.Content && a.ImageURL == r.ImageURL {
			result.Unchanged++
			continue
		}
		a.Date = r.Date
		a.Title = r.Title
		a.Content = r.Content
		a.ImageURL = r.ImageURL
		result.Updated++
	}

	for _, a := range rec.Activities {
		if _, ok := inFetch[a.ID]; !ok {
			result.Retained++
		}
	}

	models.SortActivities(rec.Activities)
	result.Total = len(rec.Activities)

	e.logger.Info("calendar refreshed",
		"period", period.String(),
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"retained", result.Retained,
		"total", result.Total,
	)

	return result, nil
}

// validateRecords checks every record before the store is touched and folds
// duplicate IDs within one fetch, the later record winning.
func validateRecords(period models.Period, records []models.ActivityRecord) ([]models.ActivityRecord, error) {
	out := make([]models.ActivityRecord, 0, len(records))
	pos := make(map[string]int, len(records))

	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if !period.Contains(r.Date) {
			return nil, fmt.Errorf("record %d (%s): date %s outside period %s", i, r.ID, r.Date, period)
		}
		if j, dup := pos[r.ID]; dup {
			out[j] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out, nil
}

// ClaimOutcome is the per-activity result of a claim run.
type ClaimOutcome string

const (
	OutcomeClaimed ClaimOutcome = "claimed"
	OutcomeFailed  ClaimOutcome = "failed"
	OutcomeSkipped ClaimOutcome = "skipped"
)

// ClaimAttempt records what happened to one activity dated today.
type ClaimAttempt struct {
	ActivityID string
	Title      string
	Outcome    ClaimOutcome
	CouponID   string
	Err        error
}

// ClaimRunResult summarizes one daily claim run.
type ClaimRunResult struct {
	Date     string
	Claimed  int
	Failed   int
	Skipped  int
	Attempts []ClaimAttempt
}

// Due reports whether any activity in the result was eligible for a claim call.
func (r ClaimRunResult) Due() int {
	return r.Claimed + r.Failed
}

// RunDailyClaims issues one claim per due activity dated today, in ascending
// ID order. Claimed and manually skipped activities are counted without a
// network call. A failed claim is recorded and the run moves on. now is the
// attempt timestamp; the engine never reads the clock itself.
//
// The returned error is non-nil only when today is malformed or ctx is
// cancelled; in the latter case the result holds the progress made so far.
func (e *Engine) RunDailyClaims(ctx context.Context, st *models.Store, today string, now time.Time) (ClaimRunResult, error) {
	result := ClaimRunResult{Date: today}

	period, err := models.PeriodForDate(today)
	if err != nil {
		return result, err
	}
	if !st.HasPeriod(period) {
		e.logger.Warn("no calendar stored for period, nothing to claim",
			"period", period.String(),
			"date", today)
		return result, nil
	}

	rec := st.Period(period)
	models.SortActivities(rec.Activities)

	for i := range rec.Activities {
		a := &rec.Activities[i]
		if a.Date != today {
			continue
		}

		if !a.ClaimStatus.Claimable() {
			result.Skipped++
			result.Attempts = append(result.Attempts, ClaimAttempt{
				ActivityID: a.ID,
				Title:      a.Title,
				Outcome:    OutcomeSkipped,
			})
			e.logger.Debug("activity not claimable, skipping",
				"activity_id", a.ID,
				"status", a.ClaimStatus)
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("claim run interrupted: %w", err)
		}

		attempt := e.claimOne(ctx, st, a, now)
		result.Attempts = append(result.Attempts, attempt)
		switch attempt.Outcome {
		case OutcomeClaimed:
			result.Claimed++
		case OutcomeFailed:
			result.Failed++
		}
	}

	e.logger.Info("daily claims finished",
		"date", today,
		"claimed", result.Claimed,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)

	return result, nil
}

func (e *Engine) claimOne(ctx context.Context, st *models.Store, a *models.Activity, now time.Time) ClaimAttempt {
	attempt := ClaimAttempt{ActivityID: a.ID, Title: a.Title}
	at := now

	coupon, err := e.gateway.Claim(ctx, a.ID)
	if err == nil {
		coupon.SourceActivityID = a.ID
		if verr := coupon.Validate(); verr != nil {
			err = verr
		}
	}
	if err != nil {
		var claimErr *models.ClaimError
		if !errors.As(err, &claimErr) {
			err = &models.ClaimError{ActivityID: a.ID, Err: err}
		}
		a.ClaimStatus = models.ClaimStatusFailed
		a.LastAttemptAt = &at

		attempt.Outcome = OutcomeFailed
		attempt.Err = err
		e.logger.Warn("claim failed",
			"activity_id", a.ID,
			"title", a.Title,
			"error", err)
		return attempt
	}

	a.ClaimStatus = models.ClaimStatusClaimed
	a.LastAttemptAt = &at
	st.UpsertCoupon(coupon)

	attempt.Outcome = OutcomeClaimed
	attempt.CouponID = coupon.CouponID
	e.logger.Info("coupon claimed",
		"activity_id", a.ID,
		"coupon_id", coupon.CouponID,
		"price", coupon.Price.String())
	return attempt
}

// ErrNotFound is returned when an activity ID is not in the store.
var ErrNotFound = errors.New("activity not found")

// MarkSkipped applies the manual skip override. Claimed activities are final.
func (e *Engine) MarkSkipped(st *models.Store, activityID string) error {
	a, ok := st.FindActivity(activityID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, activityID)
	}
	if a.ClaimStatus == models.ClaimStatusSkipped {
		return nil
	}
	if !a.ClaimStatus.CanTransition(models.ClaimStatusSkipped) {
		return fmt.Errorf("activity %s is %s and cannot be skipped", activityID, a.ClaimStatus)
	}
	a.ClaimStatus = models.ClaimStatusSkipped
	e.logger.Info("activity marked skipped", "activity_id", activityID)
	return nil
}

// SyncWallet upserts every coupon currently in the account wallet.
// Invalid wallet entries are logged and ignored.
func (e *Engine) SyncWallet(ctx context.Context, st *models.Store) (int, error) {
	coupons, err := e.gateway.ListCoupons(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing wallet coupons: %w", err)
	}

	synced := 0
	for _, c := range coupons {
		if err := c.Validate(); err != nil {
			e.logger.Warn("ignoring invalid wallet coupon", "coupon_id", c.CouponID, "error", err)
			continue
		}
		if existing, ok := findCoupon(st, c.CouponID); ok && c.SourceActivityID == "" {
			c.SourceActivityID = existing.SourceActivityID
		}
		st.UpsertCoupon(c)
		synced++
	}

	e.logger.Info("wallet synced", "coupons", synced)
	return synced, nil
}

func findCoupon(st *models.Store, id string) (models.Coupon, bool) {
	for _, c := range st.Coupons {
		if c.CouponID == id {
			return c, true
		}
	}
	return models.Coupon{}, false
}
