// Package daterange turns symbolic history intervals ("this month", "last
// season") into concrete, closed time ranges.
package daterange

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvertedRange is returned when a range would end before it starts.
var ErrInvertedRange = errors.New("range end is before start")

// Range is a closed time range at one-second resolution: End is the last
// second included, e.g. 23:59:59 of the final day.
type Range struct {
	Start time.Time
	End   time.Time
}

// New builds a Range, rejecting end before start.
func New(start, end time.Time) (Range, error) {
	if end.Before(start) {
		return Range{}, fmt.Errorf("%w: %s > %s", ErrInvertedRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Range{Start: start, End: end}, nil
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days is the number of calendar days the range touches in its own location.
func (r Range) Days() int {
	first := startOfDay(r.Start)
	last := startOfDay(r.End)
	n := 1
	for d := first; d.Before(last); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

func (r Range) String() string {
	return r.Start.Format(time.DateTime) + " to " + r.End.Format(time.DateTime)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endOfDay is the last second of t's calendar day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Second)
}

// dayRange spans whole calendar days from first through last.
func dayRange(first, last time.Time) Range {
	return Range{Start: startOfDay(first), End: endOfDay(last)}
}

// monthsBack moves t back n months, clamping the day to the end of the
// target month so that Feb 29 minus a year is Feb 28, not Mar 1.
func monthsBack(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(d, last), t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}

func monthRange(year int, month time.Month, loc *time.Location) Range {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Range{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Second)}
}

func yearRange(year int, loc *time.Location) Range {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	return Range{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Second)}
}

// WeatherYear returns the twelve-month year beginning on the first of
// startMonth that contains t. With startMonth January it is the calendar year.
func WeatherYear(t time.Time, startMonth time.Month) Range {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.January
	}
	year := t.Year()
	if t.Month() < startMonth {
		year--
	}
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, t.Location())
	return Range{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Second)}
}

// ErrBadDate is returned for dates that are not YYYY-MM-DD.
var ErrBadDate = errors.New("invalid date")

// ParseDay reads a YYYY-MM-DD date as local midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: want YYYY-MM-DD", ErrBadDate, s)
	}
	return t, nil
}

// Span covers whole calendar days first through last.
func Span(first, last time.Time) (Range, error) {
	if startOfDay(last).Before(startOfDay(first)) {
		return Range{}, fmt.Errorf("%w: %s > %s", ErrInvertedRange, first.Format(time.DateOnly), last.Format(time.DateOnly))
	}
	return dayRange(first, last), nil
}
