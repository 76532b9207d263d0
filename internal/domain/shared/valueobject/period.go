package valueobject

import (
	"fmt"
	"time"
)

// Period is a billing period identified by year and month.
// It is the key every accrual, penalty row and report range is scoped by.
type Period struct {
	year  int
	month time.Month
}

// NewPeriod creates a Period, validating the month
func NewPeriod(year int, month time.Month) (Period, error) {
	if year < 1970 || year > 9999 {
		return Period{}, fmt.Errorf("invalid period year: %d", year)
	}
	if month < time.January || month > time.December {
		return Period{}, fmt.Errorf("invalid period month: %d", int(month))
	}
	return Period{year: year, month: month}, nil
}

// PeriodOf returns the period containing the given time
func PeriodOf(t time.Time) Period {
	return Period{year: t.Year(), month: t.Month()}
}

// ParsePeriod parses a period in "YYYY-MM" form
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	return Period{year: t.Year(), month: t.Month()}, nil
}

// Year returns the period year
func (p Period) Year() int {
	return p.year
}

// Month returns the period month
func (p Period) Month() time.Month {
	return p.month
}

// IsZero returns true for the zero-value period
func (p Period) IsZero() bool {
	return p.year == 0
}

// Range returns the concrete [start, end) date range of the period in UTC
func (p Period) Range() (time.Time, time.Time) {
	start := time.Date(p.year, p.month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Start returns the first instant of the period
func (p Period) Start() time.Time {
	start, _ := p.Range()
	return start
}

// Key returns a sortable integer key (year*100 + month)
func (p Period) Key() int {
	return p.year*100 + int(p.month)
}

// Before reports whether p is an earlier period than other
func (p Period) Before(other Period) bool {
	return p.Key() < other.Key()
}

// Equal reports whether two periods are the same
func (p Period) Equal(other Period) bool {
	return p.Key() == other.Key()
}

// Next returns the following period
func (p Period) Next() Period {
	start, _ := p.Range()
	next := start.AddDate(0, 1, 0)
	return Period{year: next.Year(), month: next.Month()}
}

// String returns the canonical "YYYY-MM" form
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.year, int(p.month))
}
