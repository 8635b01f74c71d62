package daterange

import (
	"fmt"
	"time"
)

// SeasonPolicy maps any calendar date to its season. Implementations must be
// total: every date belongs to exactly one season.
type SeasonPolicy interface {
	Season(t time.Time) Range
	Previous(t time.Time) Range
	Name(t time.Time) string
}

// QuarterSeasons splits the year into four three-month seasons, the first
// starting on the first of StartMonth.
type QuarterSeasons struct {
	StartMonth time.Month
	Southern   bool
}

// Meteorological seasons start in December, March, June and September.
func Meteorological(southern bool) QuarterSeasons {
	return QuarterSeasons{StartMonth: time.December, Southern: southern}
}

func (q QuarterSeasons) start() time.Month {
	if q.StartMonth < time.January || q.StartMonth > time.December {
		return time.December
	}
	return q.StartMonth
}

func (q QuarterSeasons) Season(t time.Time) Range {
	offset := (int(t.Month()) - int(q.start()) + 12) % 12
	start := time.Date(t.Year(), t.Month()-time.Month(offset%3), 1, 0, 0, 0, 0, t.Location())
	return Range{Start: start, End: start.AddDate(0, 3, 0).Add(-time.Second)}
}

func (q QuarterSeasons) Previous(t time.Time) Range {
	return q.Season(q.Season(t).Start.AddDate(0, -3, 0))
}

var northernNames = [12]string{
	time.January - 1:   "winter",
	time.February - 1:  "winter",
	time.March - 1:     "spring",
	time.April - 1:     "spring",
	time.May - 1:       "spring",
	time.June - 1:      "summer",
	time.July - 1:      "summer",
	time.August - 1:    "summer",
	time.September - 1: "autumn",
	time.October - 1:   "autumn",
	time.November - 1:  "autumn",
	time.December - 1:  "winter",
}

var opposite = map[string]string{
	"winter": "summer",
	"summer": "winter",
	"spring": "autumn",
	"autumn": "spring",
}

// Name labels the season containing t by its middle month, e.g. "winter
// 2025/26" or "summer 2026".
func (q QuarterSeasons) Name(t time.Time) string {
	r := q.Season(t)
	middle := r.Start.AddDate(0, 1, 0).Month()
	name := northernNames[middle-1]
	if q.Southern {
		name = opposite[name]
	}
	if r.Start.Year() != r.End.Year() {
		return fmt.Sprintf("%s %d/%02d", name, r.Start.Year(), r.End.Year()%100)
	}
	return fmt.Sprintf("%s %d", name, r.Start.Year())
}
