package models

import (
	"fmt"
	"time"
)

// Period is a calendar month, the unit of calendar refresh.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses the YYYY-MM form produced by String.
func ParsePeriod(raw string) (Period, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: must be YYYY-MM", raw)
	}
	return PeriodOf(t), nil
}

// String formats the period as YYYY-MM, which is also its store key.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Contains reports whether the vendor date literal falls inside the period.
func (p Period) Contains(date string) bool {
	t, err := ParseDate(date)
	if err != nil {
		return false
	}
	return PeriodOf(t) == p
}

// PeriodForDate returns the period of a vendor date literal.
func PeriodForDate(date string) (Period, error) {
	t, err := ParseDate(date)
	if err != nil {
		return Period{}, err
	}
	return PeriodOf(t), nil
}
