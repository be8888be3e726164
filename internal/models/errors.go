package models

import (
	"fmt"
)

// FetchError reports that the vendor calendar for a period was unreachable
// or malformed. A refresh that fails this way leaves the store untouched.
type FetchError struct {
	Period Period
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch calendar %s: %v", e.Period, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClaimError reports that claiming a single activity failed. It is recorded
// on the activity and never aborts the rest of the run.
type ClaimError struct {
	ActivityID string
	Err        error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim activity %s: %v", e.ActivityID, e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}

// FieldError describes a structurally invalid vendor record.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

func missingField(name string) error {
	return &FieldError{Field: name, Reason: "missing"}
}
