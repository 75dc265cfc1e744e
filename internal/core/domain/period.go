package domain

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Billing Period
// =============================================================================

// ErrInvalidPeriod is returned for a year/month outside sane bounds. It is
// rejected at the setter boundary so no computation ever sees a bad period.
var ErrInvalidPeriod = errors.New("billing period out of range")

// Period selects the year and month all billing queries are computed for.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// CurrentPeriod returns the period containing now.
func CurrentPeriod(now time.Time) Period {
	return Period{Year: now.Year(), Month: int(now.Month())}
}

// Validate rejects months outside 1-12 and years outside 2000-2100.
func (p Period) Validate() error {
	if p.Year < 2000 || p.Year > 2100 || p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: %d/%d", ErrInvalidPeriod, p.Year, p.Month)
	}
	return nil
}

// Start returns the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last instant of the period: one second before the first
// instant of the following month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0).Add(-time.Second)
}

// Days returns the number of calendar days in the period.
func (p Period) Days() int {
	return p.Start().AddDate(0, 1, -1).Day()
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && int(t.Month()) == p.Month
}

// Before reports whether the period is strictly earlier than (year, month).
func (p Period) Before(other Period) bool {
	return p.Year < other.Year || (p.Year == other.Year && p.Month < other.Month)
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// String renders the period as YYYY/MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d/%02d", p.Year, p.Month)
}
