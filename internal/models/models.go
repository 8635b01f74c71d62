package models

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Station struct {
	StationID string
	Name      string
	Latitude  float64
	Longitude float64
	Elevation float64
	IsPrimary bool
	Active    bool
}

// StationSettings carries the per-station configuration that the history
// views depend on. It is loaded from the store and passed explicitly.
type StationSettings struct {
	StationID        string
	Timezone         string
	SeasonStartMonth time.Month // first month of the first season, December for meteorological seasons
	SouthernSeasons  bool
	WeatherYearStart time.Month
}

func DefaultSettings(stationID string) StationSettings {
	return StationSettings{
		StationID:        stationID,
		Timezone:         "UTC",
		SeasonStartMonth: time.December,
		WeatherYearStart: time.January,
	}
}

const HoursPerDay = 24

// SummaryRecord is one station-day of aggregated readings.
type SummaryRecord struct {
	Date      time.Time // local calendar date, stored as midnight UTC
	StationID string

	TempMax     sql.NullFloat64
	TempMaxTime sql.NullTime
	TempMin     sql.NullFloat64
	TempMinTime sql.NullTime
	TempAvg     sql.NullFloat64

	PressureMax     sql.NullFloat64
	PressureMaxTime sql.NullTime
	PressureMin     sql.NullFloat64
	PressureMinTime sql.NullTime
	PressureAvg     sql.NullFloat64

	HumidityMax     sql.NullFloat64
	HumidityMaxTime sql.NullTime
	HumidityMin     sql.NullFloat64
	HumidityMinTime sql.NullTime
	HumidityAvg     sql.NullFloat64

	WindSpeedMax     sql.NullFloat64
	WindSpeedMaxTime sql.NullTime
	WindSpeedAvg     sql.NullFloat64
	WindGustMax      sql.NullFloat64
	WindGustMaxTime  sql.NullTime

	RainTotal       sql.NullFloat64
	RainRateMax     sql.NullFloat64
	RainRateMaxTime sql.NullTime

	HourlyRain [HoursPerDay]sql.NullFloat64
	HourlyTemp [HoursPerDay]sql.NullFloat64
}

// WeatherAverage is the climate normal for one calendar day, or for a whole
// month when Day is 0. A monthly Rain is the month's total.
type WeatherAverage struct {
	Month    time.Month
	Day      int
	TempHigh sql.NullFloat64
	TempLow  sql.NullFloat64
	TempMean sql.NullFloat64
	Rain     sql.NullFloat64
}

// WeatherAverages indexes normals by calendar day, with monthly normals as a
// fallback.
type WeatherAverages struct {
	byDay map[monthDay]WeatherAverage
}

type monthDay struct {
	month time.Month
	day   int
}

func NewWeatherAverages(avgs []WeatherAverage) *WeatherAverages {
	w := &WeatherAverages{byDay: make(map[monthDay]WeatherAverage, len(avgs))}
	for _, a := range avgs {
		w.byDay[monthDay{a.Month, a.Day}] = a
	}
	return w
}

// Lookup returns the normal for the calendar day of t. February 29 falls back
// to February 28 when no leap-day normal is present, and a day with no entry
// falls back to its month's normal.
func (w *WeatherAverages) Lookup(t time.Time) (WeatherAverage, bool) {
	if w == nil {
		return WeatherAverage{}, false
	}
	key := monthDay{t.Month(), t.Day()}
	if a, ok := w.byDay[key]; ok {
		return a, true
	}
	if key.month == time.February && key.day == 29 {
		if a, ok := w.byDay[monthDay{time.February, 28}]; ok {
			return a, true
		}
	}
	a, ok := w.byDay[monthDay{key.month, 0}]
	if !ok {
		return WeatherAverage{}, false
	}
	// Spread the monthly rain total evenly over the month's days.
	if a.Rain.Valid {
		days := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
		a.Rain.Float64 /= float64(days)
	}
	return a, true
}

func (w *WeatherAverages) Len() int {
	if w == nil {
		return 0
	}
	return len(w.byDay)
}

type SpeedBin struct {
	Name string
	Min  float64
	Max  float64 // exclusive; zero means open-ended
}

// Contains reports whether speed falls within [Min, Max).
func (b SpeedBin) Contains(speed float64) bool {
	if speed < b.Min {
		return false
	}
	return b.Max == 0 || speed < b.Max
}

type TempField string

const (
	FieldHigh TempField = "high"
	FieldLow  TempField = "low"
	FieldMean TempField = "mean"
)

type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

type ThresholdBin struct {
	Name      string
	Field     TempField
	Direction Direction
	Threshold float64
}

// Matches applies the bin's strict comparison to v.
func (b ThresholdBin) Matches(v float64) bool {
	if b.Direction == Below {
		return v < b.Threshold
	}
	return v > b.Threshold
}

// ParseSpeedBin reads "name:min:max". An empty max leaves the bin open-ended.
func ParseSpeedBin(s string) (SpeedBin, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" {
		return SpeedBin{}, fmt.Errorf("speed bin %q: want name:min:max", s)
	}
	b := SpeedBin{Name: parts[0]}
	var err error
	if b.Min, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return SpeedBin{}, fmt.Errorf("speed bin %q: min: %w", s, err)
	}
	if parts[2] != "" {
		if b.Max, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return SpeedBin{}, fmt.Errorf("speed bin %q: max: %w", s, err)
		}
		if b.Max <= b.Min {
			return SpeedBin{}, fmt.Errorf("speed bin %q: max must exceed min", s)
		}
	}
	return b, nil
}

// ParseThresholdBin reads "name:field:direction:value", e.g. "hot:high:above:30".
func ParseThresholdBin(s string) (ThresholdBin, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] == "" {
		return ThresholdBin{}, fmt.Errorf("threshold bin %q: want name:field:direction:value", s)
	}
	b := ThresholdBin{Name: parts[0], Field: TempField(parts[1]), Direction: Direction(parts[2])}
	switch b.Field {
	case FieldHigh, FieldLow, FieldMean:
	default:
		return ThresholdBin{}, fmt.Errorf("threshold bin %q: field must be high, low or mean", s)
	}
	if b.Direction != Above && b.Direction != Below {
		return ThresholdBin{}, fmt.Errorf("threshold bin %q: direction must be above or below", s)
	}
	v, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return ThresholdBin{}, fmt.Errorf("threshold bin %q: value: %w", s, err)
	}
	b.Threshold = v
	return b, nil
}

func DefaultSpeedBins() []SpeedBin {
	return []SpeedBin{
		{Name: "calm", Min: 0, Max: 2},
		{Name: "light", Min: 2, Max: 12},
		{Name: "moderate", Min: 12, Max: 29},
		{Name: "fresh", Min: 29, Max: 50},
		{Name: "strong", Min: 50},
	}
}

func DefaultThresholdBins() []ThresholdBin {
	return []ThresholdBin{
		{Name: "hot", Field: FieldHigh, Direction: Above, Threshold: 30},
		{Name: "warm", Field: FieldHigh, Direction: Above, Threshold: 25},
		{Name: "frost", Field: FieldLow, Direction: Below, Threshold: 0},
	}
}
