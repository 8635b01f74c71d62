// Package stats folds daily summary records into a rollup of extremes,
// averages, rainfall and threshold/speed bin counts.
//
// Every part of the rollup is a commutative sum or an order-aware extreme, so
// a sequence may be folded in chunks and merged in input order with the same
// result as a single sequential fold.
package stats

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/wandistats/internal/models"
)

// ErrIncompatible is returned by Merge when the two sides use different bins.
var ErrIncompatible = errors.New("statistics built with different bins")

// Aggregator holds the inputs shared by every rollup: the climate normals
// baseline and the bin definitions from the station configuration.
type Aggregator struct {
	Normals    *models.WeatherAverages
	SpeedBins  []models.SpeedBin
	Thresholds []models.ThresholdBin
	Location   *time.Location
}

// Statistics is a running rollup of summary records. Add folds one record
// in; Merge combines two rollups built by the same Aggregator.
type Statistics struct {
	agg   *Aggregator
	days  int
	first time.Time
	last  time.Time

	Temperature Metric
	Pressure    Metric
	Humidity    Metric
	WindSpeed   Metric
	WindGust    Metric
	Rain        Rainfall

	highDeviation Mean
	lowDeviation  Mean
	meanDeviation Mean

	thresholds []ThresholdCount
	speeds     []SpeedCount
}

func (a *Aggregator) loc() *time.Location {
	if a.Location == nil {
		return time.UTC
	}
	return a.Location
}

func (a *Aggregator) New() *Statistics {
	s := &Statistics{
		agg:         a,
		Temperature: newMetric(),
		Pressure:    newMetric(),
		Humidity:    newMetric(),
		WindSpeed:   newMetric(),
		WindGust:    newMetric(),
		Rain:        newRainfall(),
		thresholds:  make([]ThresholdCount, len(a.Thresholds)),
		speeds:      make([]SpeedCount, len(a.SpeedBins)),
	}
	for i, b := range a.Thresholds {
		s.thresholds[i].Bin = b
	}
	for i, b := range a.SpeedBins {
		s.speeds[i].Bin = b
	}
	return s
}

func (a *Aggregator) Aggregate(records []models.SummaryRecord) *Statistics {
	s := a.New()
	for _, rec := range records {
		s.Add(rec)
	}
	return s
}

// AggregateParallel folds contiguous chunks concurrently and merges them in
// input order. workers < 1 uses GOMAXPROCS.
func (a *Aggregator) AggregateParallel(ctx context.Context, records []models.SummaryRecord, workers int) (*Statistics, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || len(records) < 2*workers {
		return a.Aggregate(records), ctx.Err()
	}

	size := (len(records) + workers - 1) / workers
	chunks := slices.Collect(slices.Chunk(records, size))
	parts := make([]*Statistics, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			parts[i] = a.Aggregate(chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := a.New()
	for _, p := range parts {
		if err := out.Merge(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Add folds one day into the rollup.
func (s *Statistics) Add(rec models.SummaryRecord) {
	s.days++
	if s.first.IsZero() || rec.Date.Before(s.first) {
		s.first = rec.Date
	}
	if rec.Date.After(s.last) {
		s.last = rec.Date
	}

	s.Temperature.observe(daily{
		day: rec.Date,
		min: rec.TempMin, minAt: rec.TempMinTime,
		max: rec.TempMax, maxAt: rec.TempMaxTime,
		avg: rec.TempAvg,
	})
	s.Pressure.observe(daily{
		day: rec.Date,
		min: rec.PressureMin, minAt: rec.PressureMinTime,
		max: rec.PressureMax, maxAt: rec.PressureMaxTime,
		avg: rec.PressureAvg,
	})
	s.Humidity.observe(daily{
		day: rec.Date,
		min: rec.HumidityMin, minAt: rec.HumidityMinTime,
		max: rec.HumidityMax, maxAt: rec.HumidityMaxTime,
		avg: rec.HumidityAvg,
	})
	s.WindSpeed.observe(daily{
		day: rec.Date,
		max: rec.WindSpeedMax, maxAt: rec.WindSpeedMaxTime,
		avg: rec.WindSpeedAvg,
	})
	s.WindGust.observe(daily{
		day: rec.Date,
		max: rec.WindGustMax, maxAt: rec.WindGustMaxTime,
	})

	normal, hasNormal := s.agg.Normals.Lookup(rec.Date)
	s.Rain.observe(rec, s.agg.loc(), normal, hasNormal)
	if hasNormal {
		if rec.TempMax.Valid && normal.TempHigh.Valid {
			s.highDeviation.addValue(rec.TempMax.Float64 - normal.TempHigh.Float64)
		}
		if rec.TempMin.Valid && normal.TempLow.Valid {
			s.lowDeviation.addValue(rec.TempMin.Float64 - normal.TempLow.Float64)
		}
		if rec.TempAvg.Valid && normal.TempMean.Valid {
			s.meanDeviation.addValue(rec.TempAvg.Float64 - normal.TempMean.Float64)
		}
	}

	for i := range s.thresholds {
		s.thresholds[i].observe(rec)
	}
	for i := range s.speeds {
		s.speeds[i].observe(rec)
	}
}

// Merge folds in a rollup built from records that follow this one's in input
// order. Both must come from aggregators with identical bins.
func (s *Statistics) Merge(o *Statistics) error {
	if o == nil {
		return nil
	}
	if !slices.Equal(s.agg.SpeedBins, o.agg.SpeedBins) || !slices.Equal(s.agg.Thresholds, o.agg.Thresholds) {
		return ErrIncompatible
	}
	if o.days == 0 {
		return nil
	}

	if s.days == 0 || o.first.Before(s.first) {
		s.first = o.first
	}
	if o.last.After(s.last) {
		s.last = o.last
	}
	s.days += o.days

	s.Temperature.merge(o.Temperature)
	s.Pressure.merge(o.Pressure)
	s.Humidity.merge(o.Humidity)
	s.WindSpeed.merge(o.WindSpeed)
	s.WindGust.merge(o.WindGust)
	s.Rain.merge(o.Rain)
	s.highDeviation.merge(o.highDeviation)
	s.lowDeviation.merge(o.lowDeviation)
	s.meanDeviation.merge(o.meanDeviation)

	for i := range s.thresholds {
		s.thresholds[i].Days += o.thresholds[i].Days
		s.thresholds[i].Hours += o.thresholds[i].Hours
	}
	for i := range s.speeds {
		s.speeds[i].Days += o.speeds[i].Days
	}
	return nil
}

// Days is the number of records folded in.
func (s *Statistics) Days() int { return s.days }

// Span is the first and last record date; ok is false when empty.
func (s *Statistics) Span() (first, last time.Time, ok bool) {
	return s.first, s.last, s.days > 0
}

// HighDeviation is the mean departure of daily highs from normal.
func (s *Statistics) HighDeviation() (float64, bool) { return s.highDeviation.Value() }

func (s *Statistics) LowDeviation() (float64, bool) { return s.lowDeviation.Value() }

func (s *Statistics) MeanDeviation() (float64, bool) { return s.meanDeviation.Value() }

func (s *Statistics) Thresholds() []ThresholdCount { return slices.Clone(s.thresholds) }

func (s *Statistics) SpeedBins() []SpeedCount { return slices.Clone(s.speeds) }
