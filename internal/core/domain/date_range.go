package domain

import (
	"fmt"
	"time"

	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
)

// DateLayout is the calendar date format used on the API and in logs.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of UTC calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day truncates t to midnight of its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds a range from two dates, ignoring their time of day.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("%w: end date %s is before start date %s", apperrors.ErrInvalidDateRange, r.End.Format(DateLayout), r.Start.Format(DateLayout))
	}
	return r, nil
}

// SingleDay returns a range covering only the day of t.
func SingleDay(t time.Time) DateRange {
	d := Day(t)
	return DateRange{Start: d, End: d}
}

// Yesterday returns the calendar day before now.
func Yesterday(now time.Time) DateRange {
	return SingleDay(Day(now).AddDate(0, 0, -1))
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start date %q is not YYYY-MM-DD", apperrors.ErrInvalidDateRange, start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end date %q is not YYYY-MM-DD", apperrors.ErrInvalidDateRange, end)
	}
	return NewDateRange(s, e)
}

// Window returns the instants sent to TestIT as the range filter:
// start of the first day through the last second of the last day.
func (r DateRange) Window() (from, to time.Time) {
	return r.Start, r.End.AddDate(0, 0, 1).Add(-time.Second)
}

// Contains reports whether the instant t falls on one of the range's days.
func (r DateRange) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.Start) && t.Before(r.End.AddDate(0, 0, 1))
}

// Days returns the number of calendar days in the range.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}
