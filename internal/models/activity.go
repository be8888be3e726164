package models

import (
	"fmt"
	"time"
)

// Activity represents one promotional event on the vendor calendar.
type Activity struct {
	ID            string      `json:"id"`
	Date          string      `json:"date"` // vendor literal, YYYY-MM-DD
	Title         string      `json:"title"`
	Content       string      `json:"content,omitempty"`
	ImageURL      string      `json:"image_url,omitempty"`
	ClaimStatus   ClaimStatus `json:"claim_status"`
	LastAttemptAt *time.Time  `json:"last_attempt_at,omitempty"`
}

// ActivityRecord is the raw shape the vendor gateway supplies for an activity.
type ActivityRecord struct {
	ID       string
	Date     string
	Title    string
	Content  string
	ImageURL string
}

// ClaimStatus tracks where an activity is in the claim lifecycle.
type ClaimStatus string

const (
	ClaimStatusPending ClaimStatus = "pending" // Known, never attempted
	ClaimStatusClaimed ClaimStatus = "claimed" // Terminal success
	ClaimStatusFailed  ClaimStatus = "failed"  // Last attempt errored, retried on a later run
	ClaimStatusSkipped ClaimStatus = "skipped" // Manual override, ignored by automatic runs
)

// Valid reports whether s is one of the known statuses.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusPending, ClaimStatusClaimed, ClaimStatusFailed, ClaimStatusSkipped:
		return true
	default:
		return false
	}
}

// Claimable reports whether an automatic run may issue a claim for s.
func (s ClaimStatus) Claimable() bool {
	return s == ClaimStatusPending || s == ClaimStatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
// Statuses only move forward; nothing returns to pending and claimed is terminal.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	switch s {
	case ClaimStatusPending, ClaimStatusFailed:
		return next == ClaimStatusClaimed || next == ClaimStatusFailed || next == ClaimStatusSkipped
	default:
		return false
	}
}

// DateLayout is the vendor's calendar date format.
const DateLayout = "2006-01-02"

// ParseDate validates a vendor date literal.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return t, nil
}

// Validate checks that a fetched record carries every required field.
func (r ActivityRecord) Validate() error {
	switch {
	case r.ID == "":
		return missingField("id")
	case r.Date == "":
		return missingField("date")
	case r.Title == "":
		return missingField("title")
	}
	_, err := ParseDate(r.Date)
	return err
}
