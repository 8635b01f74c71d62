package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownInterval is returned for names or values outside the Interval enum.
var ErrUnknownInterval = errors.New("unknown interval")

// Interval names a period relative to now, such as ThisMonth or LastSeason.
type Interval int

const (
	Today Interval = iota
	Yesterday
	ThisMonth
	LastMonth
	Last30Days
	ThisSeason
	LastSeason
	ThisYear
	Last12Months
	LastYear
	ThisWeatherYear
	LastWeatherYear
	Custom
)

var intervalNames = [...]string{
	Today:           "today",
	Yesterday:       "yesterday",
	ThisMonth:       "this_month",
	LastMonth:       "last_month",
	Last30Days:      "last_30_days",
	ThisSeason:      "this_season",
	LastSeason:      "last_season",
	ThisYear:        "this_year",
	Last12Months:    "last_12_months",
	LastYear:        "last_year",
	ThisWeatherYear: "this_weather_year",
	LastWeatherYear: "last_weather_year",
	Custom:          "custom",
}

var intervalLabels = [...]string{
	Today:           "Today",
	Yesterday:       "Yesterday",
	ThisMonth:       "This Month",
	LastMonth:       "Last Month",
	Last30Days:      "Last 30 Days",
	ThisSeason:      "This Season",
	LastSeason:      "Last Season",
	ThisYear:        "This Year",
	Last12Months:    "Last 12 Months",
	LastYear:        "Last Year",
	ThisWeatherYear: "This Weather Year",
	LastWeatherYear: "Last Weather Year",
	Custom:          "Custom",
}

// Intervals lists every interval in display order.
func Intervals() []Interval {
	out := make([]Interval, 0, len(intervalNames))
	for i := range intervalNames {
		out = append(out, Interval(i))
	}
	return out
}

func (i Interval) valid() bool {
	return i >= Today && int(i) < len(intervalNames)
}

func (i Interval) String() string {
	if !i.valid() {
		return fmt.Sprintf("interval(%d)", int(i))
	}
	return intervalNames[i]
}

// Label is the human-readable name, e.g. "Last 30 Days".
func (i Interval) Label() string {
	if !i.valid() {
		return i.String()
	}
	return intervalLabels[i]
}

// ParseInterval accepts the snake_case name or the label, case-insensitively.
func ParseInterval(s string) (Interval, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for i, name := range intervalNames {
		if name == norm {
			return Interval(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, s)
}

func (i Interval) MarshalText() ([]byte, error) {
	if !i.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInterval, int(i))
	}
	return []byte(i.String()), nil
}

func (i *Interval) UnmarshalText(b []byte) error {
	v, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Resolver computes concrete ranges for intervals. The zero value resolves
// against the wall clock in UTC with meteorological seasons and calendar
// weather years.
type Resolver struct {
	Now              func() time.Time
	Location         *time.Location
	Seasons          SeasonPolicy
	WeatherYearStart time.Month

	// CustomStart and CustomEnd bound the Custom interval when both are set.
	CustomStart time.Time
	CustomEnd   time.Time
}

func (r Resolver) now() time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc)
}

func (r Resolver) seasons() SeasonPolicy {
	if r.Seasons == nil {
		return Meteorological(false)
	}
	return r.Seasons
}

// WithCustom returns a copy of r whose Custom interval spans start..end.
func (r Resolver) WithCustom(start, end time.Time) (Resolver, error) {
	if _, err := New(start, end); err != nil {
		return r, err
	}
	r.CustomStart, r.CustomEnd = start, end
	return r, nil
}

// Resolve returns the concrete range iv covers at the resolver's now.
func (r Resolver) Resolve(iv Interval) (Range, error) {
	now := r.now()
	loc := now.Location()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	yesterday := today.AddDate(0, 0, -1)

	switch iv {
	case Today:
		return dayRange(today, today), nil
	case Yesterday:
		return dayRange(yesterday, yesterday), nil
	case ThisMonth:
		return monthRange(y, m, loc), nil
	case LastMonth:
		first := time.Date(y, m-1, 1, 0, 0, 0, 0, loc)
		return monthRange(first.Year(), first.Month(), loc), nil
	case Last30Days:
		return dayRange(today.AddDate(0, 0, -30), yesterday), nil
	case ThisSeason:
		return r.seasons().Season(today), nil
	case LastSeason:
		return r.seasons().Previous(today), nil
	case ThisYear:
		return yearRange(y, loc), nil
	case Last12Months:
		return dayRange(monthsBack(today, 12), yesterday), nil
	case LastYear:
		return yearRange(y-1, loc), nil
	case ThisWeatherYear:
		return WeatherYear(today, r.WeatherYearStart), nil
	case LastWeatherYear:
		current := WeatherYear(today, r.WeatherYearStart)
		return WeatherYear(current.Start.AddDate(0, 0, -1), r.WeatherYearStart), nil
	case Custom:
		if r.CustomStart.IsZero() || r.CustomEnd.IsZero() {
			return Range{Start: now, End: now}, nil
		}
		return New(r.CustomStart.In(loc), r.CustomEnd.In(loc))
	}
	return Range{}, fmt.Errorf("%w: %d", ErrUnknownInterval, int(iv))
}
