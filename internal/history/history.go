// Package history answers interval and statistics queries for a station by
// combining its stored settings with the date resolver and the aggregator.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/wandistats/internal/daterange"
	"github.com/lox/wandistats/internal/metrics"
	"github.com/lox/wandistats/internal/models"
	"github.com/lox/wandistats/internal/stats"
	"github.com/lox/wandistats/internal/store"
)

// Query selects a station and a period. Start and End (YYYY-MM-DD) are only
// read for the custom interval.
type Query struct {
	Station  string
	Interval daterange.Interval
	Start    string
	End      string
}

// IntervalFor picks the interval for a request: the named one when given,
// else custom when start or end is set, else today.
func IntervalFor(name, start, end string) (daterange.Interval, error) {
	switch {
	case name != "":
		return daterange.ParseInterval(name)
	case start != "" || end != "":
		return daterange.Custom, nil
	default:
		return daterange.Today, nil
	}
}

// Result is a resolved period with its rollup.
type Result struct {
	Station  string             `json:"station"`
	Interval daterange.Interval `json:"interval"`
	Label    string             `json:"label"`
	From     time.Time          `json:"from"`
	To       time.Time          `json:"to"`
	Records  int                `json:"records"`
	Report   stats.Report       `json:"report"`

	Range daterange.Range   `json:"-"`
	Stats *stats.Statistics `json:"-"`
}

type Service struct {
	store   *store.Store
	log     zerolog.Logger
	now     func() time.Time
	workers int
}

func NewService(store *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   logger.With().Str("component", "history").Logger(),
		now:   time.Now,
	}
}

// WithClock replaces the wall clock, for tests and reproducible reports.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithWorkers sets how many goroutines fold a rollup; 0 uses GOMAXPROCS.
func (s *Service) WithWorkers(n int) *Service {
	s.workers = n
	return s
}

// Resolver builds the date resolver for a station from its settings.
func (s *Service) Resolver(stationID string) (daterange.Resolver, models.StationSettings, error) {
	if _, err := s.store.RequireStation(stationID); err != nil {
		return daterange.Resolver{}, models.StationSettings{}, err
	}
	settings, err := s.store.GetSettings(stationID)
	if err != nil {
		return daterange.Resolver{}, settings, err
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return daterange.Resolver{}, settings, fmt.Errorf("station %s timezone %q: %w", stationID, settings.Timezone, err)
	}
	return daterange.Resolver{
		Now:              s.now,
		Location:         loc,
		Seasons:          daterange.QuarterSeasons{StartMonth: settings.SeasonStartMonth, Southern: settings.SouthernSeasons},
		WeatherYearStart: settings.WeatherYearStart,
	}, settings, nil
}

// Range resolves q to a concrete range in the station's time zone.
func (s *Service) Range(q Query) (daterange.Range, error) {
	r, _, err := s.Resolver(q.Station)
	if err != nil {
		return daterange.Range{}, err
	}
	return resolve(r, q)
}

func resolve(r daterange.Resolver, q Query) (daterange.Range, error) {
	if q.Interval == daterange.Custom && (q.Start != "" || q.End != "") {
		start, err := daterange.ParseDay(q.Start, r.Location)
		if err != nil {
			return daterange.Range{}, err
		}
		end, err := daterange.ParseDay(q.End, r.Location)
		if err != nil {
			return daterange.Range{}, err
		}
		span, err := daterange.Span(start, end)
		if err != nil {
			return daterange.Range{}, err
		}
		if r, err = r.WithCustom(span.Start, span.End); err != nil {
			return daterange.Range{}, err
		}
	}
	return r.Resolve(q.Interval)
}

// IntervalRange pairs an interval with its resolved range.
type IntervalRange struct {
	Interval daterange.Interval `json:"interval"`
	Label    string             `json:"label"`
	From     time.Time          `json:"from"`
	To       time.Time          `json:"to"`
}

// Intervals resolves every named interval for the station. Custom is left
// out since it has no bounds of its own.
func (s *Service) Intervals(stationID string) ([]IntervalRange, error) {
	r, _, err := s.Resolver(stationID)
	if err != nil {
		return nil, err
	}
	var out []IntervalRange
	for _, iv := range daterange.Intervals() {
		if iv == daterange.Custom {
			continue
		}
		rng, err := r.Resolve(iv)
		if err != nil {
			return nil, err
		}
		out = append(out, IntervalRange{Interval: iv, Label: iv.Label(), From: rng.Start, To: rng.End})
	}
	return out, nil
}

// Summaries returns the stored daily records for q.
func (s *Service) Summaries(q Query) (daterange.Range, []models.SummaryRecord, error) {
	rng, err := s.Range(q)
	if err != nil {
		return rng, nil, err
	}
	recs, err := s.store.GetSummaries(q.Station, rng.Start, rng.End)
	if err != nil {
		return rng, nil, fmt.Errorf("get summaries: %w", err)
	}
	return rng, recs, nil
}

// Bins returns the wind speed and temperature threshold bins a station's
// rollups use.
func (s *Service) Bins(stationID string) ([]models.SpeedBin, []models.ThresholdBin, error) {
	if _, err := s.store.RequireStation(stationID); err != nil {
		return nil, nil, err
	}
	speeds, err := s.store.GetSpeedBins(stationID)
	if err != nil {
		return nil, nil, fmt.Errorf("get speed bins: %w", err)
	}
	thresholds, err := s.store.GetThresholdBins(stationID)
	if err != nil {
		return nil, nil, fmt.Errorf("get threshold bins: %w", err)
	}
	return speeds, thresholds, nil
}

// SetBins replaces a station's bins. A nil slice leaves that kind as it is;
// an empty one restores the defaults.
func (s *Service) SetBins(stationID string, speeds []models.SpeedBin, thresholds []models.ThresholdBin) error {
	if _, err := s.store.RequireStation(stationID); err != nil {
		return err
	}
	if speeds != nil {
		if err := s.store.ReplaceSpeedBins(stationID, speeds); err != nil {
			return err
		}
	}
	if thresholds != nil {
		if err := s.store.ReplaceThresholdBins(stationID, thresholds); err != nil {
			return err
		}
	}
	s.log.Info().Str("station", stationID).Int("speed_bins", len(speeds)).Int("threshold_bins", len(thresholds)).Msg("updated bins")
	return nil
}

// Aggregator loads the normals and bins that a station's rollups use.
func (s *Service) Aggregator(stationID string, loc *time.Location) (*stats.Aggregator, error) {
	normals, err := s.store.GetAverages(stationID)
	if err != nil {
		return nil, fmt.Errorf("get averages: %w", err)
	}
	speeds, err := s.store.GetSpeedBins(stationID)
	if err != nil {
		return nil, fmt.Errorf("get speed bins: %w", err)
	}
	thresholds, err := s.store.GetThresholdBins(stationID)
	if err != nil {
		return nil, fmt.Errorf("get threshold bins: %w", err)
	}
	return &stats.Aggregator{
		Normals:    normals,
		SpeedBins:  speeds,
		Thresholds: thresholds,
		Location:   loc,
	}, nil
}

// Stats resolves q and folds the station's records for that range.
func (s *Service) Stats(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.StatsDuration.WithLabelValues(q.Interval.String()).Observe(time.Since(start).Seconds())
	}()

	r, _, err := s.Resolver(q.Station)
	if err != nil {
		return nil, err
	}
	rng, err := resolve(r, q)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.GetSummaries(q.Station, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("get summaries: %w", err)
	}
	agg, err := s.Aggregator(q.Station, r.Location)
	if err != nil {
		return nil, err
	}
	st, err := agg.AggregateParallel(ctx, recs, s.workers)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("station", q.Station).Str("interval", q.Interval.String()).Int("records", len(recs)).Msg("computed stats")
	return &Result{
		Station:  q.Station,
		Interval: q.Interval,
		Label:    q.Interval.Label(),
		Range:    rng,
		From:     rng.Start,
		To:       rng.End,
		Stats:    st,
		Report:   st.Report(),
		Records:  len(recs),
	}, nil
}
