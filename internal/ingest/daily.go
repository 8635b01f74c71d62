package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/wandistats/internal/metrics"
	"github.com/lox/wandistats/internal/store"
)

// HourlyFetcher is the upstream source of hourly station history.
type HourlyFetcher interface {
	FetchHourly(ctx context.Context, stationID string, day time.Time) ([]HourlyObservation, []byte, error)
}

type DailyJobs struct {
	store   *store.Store
	fetcher HourlyFetcher
	log     zerolog.Logger
}

func NewDailyJobs(store *store.Store, fetcher HourlyFetcher, logger zerolog.Logger) *DailyJobs {
	return &DailyJobs{
		store:   store,
		fetcher: fetcher,
		log:     logger.With().Str("component", "daily").Logger(),
	}
}

// IngestDay summarizes day for every active station. A station that fails is
// logged and skipped; the count of stored summaries is returned.
func (d *DailyJobs) IngestDay(ctx context.Context, day time.Time) (int, error) {
	stations, err := d.store.GetActiveStations()
	if err != nil {
		return 0, fmt.Errorf("get active stations: %w", err)
	}

	stored := 0
	for _, station := range stations {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if err := d.IngestStation(ctx, station.StationID, day); err != nil {
			metrics.IngestFailures.WithLabelValues(station.StationID).Inc()
			d.log.Error().Err(err).Str("station", station.StationID).Str("day", day.Format(time.DateOnly)).Msg("ingest failed")
			continue
		}
		stored++
	}

	d.log.Info().Int("stored", stored).Int("stations", len(stations)).Str("day", day.Format(time.DateOnly)).Msg("ingested summaries")
	return stored, nil
}

// IngestStation fetches, validates, summarizes and stores one station-day.
// The calendar date of day is read in the station's time zone.
func (d *DailyJobs) IngestStation(ctx context.Context, stationID string, day time.Time) (err error) {
	loc, err := d.store.StationLocation(stationID)
	if err != nil {
		return err
	}
	y, m, dd := day.Date()
	local := time.Date(y, m, dd, 0, 0, 0, 0, loc)

	run, err := d.store.StartIngestRun("pws", stationID, local)
	if err != nil {
		return fmt.Errorf("start ingest run: %w", err)
	}
	stored := 0
	defer func() {
		if cerr := d.store.CompleteIngestRun(run, stored, err); cerr != nil {
			d.log.Warn().Err(cerr).Int64("run", run.ID).Msg("failed to complete ingest run")
		}
	}()

	obs, body, err := d.fetcher.FetchHourly(ctx, stationID, local)
	if err != nil {
		return fmt.Errorf("fetch hourly %s: %w", stationID, err)
	}
	if len(body) > 0 {
		if _, perr := d.store.StoreRawPayload(run, "pws", stationID, local, body); perr != nil {
			d.log.Warn().Err(perr).Str("station", stationID).Msg("failed to archive payload")
		}
	}
	if len(obs) == 0 {
		d.log.Info().Str("station", stationID).Str("day", local.Format(time.DateOnly)).Msg("no observations")
		return nil
	}

	for i := range obs {
		if flags := ValidateHourly(&obs[i]); len(flags) > 0 {
			d.log.Warn().Str("station", stationID).Time("at", obs[i].ObservedAt).Strs("flags", flags).Msg("dropped implausible readings")
		}
	}

	rec := Summarize(stationID, local, loc, obs)
	if err := d.store.UpsertSummary(rec); err != nil {
		return err
	}
	stored = 1
	metrics.SummariesIngested.WithLabelValues(stationID).Inc()
	return nil
}

// Backfill ingests the days from start to end inclusive that have no stored
// summary yet, per active station, oldest first.
func (d *DailyJobs) Backfill(ctx context.Context, start, end time.Time) (int, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("backfill: end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	stations, err := d.store.GetActiveStations()
	if err != nil {
		return 0, fmt.Errorf("get active stations: %w", err)
	}

	total := 0
	for _, station := range stations {
		missing, err := d.MissingDays(station.StationID, start, end)
		if err != nil {
			return total, err
		}
		d.log.Info().Str("station", station.StationID).Int("days", len(missing)).Msg("backfilling")
		for _, day := range missing {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := d.IngestStation(ctx, station.StationID, day); err != nil {
				metrics.IngestFailures.WithLabelValues(station.StationID).Inc()
				d.log.Error().Err(err).Str("station", station.StationID).Str("day", day.Format(time.DateOnly)).Msg("backfill failed")
				continue
			}
			total++
		}
	}
	return total, nil
}

// MissingDays lists the days from start to end that have no stored summary.
func (d *DailyJobs) MissingDays(stationID string, start, end time.Time) ([]time.Time, error) {
	dates, err := d.store.GetSummaryDates(stationID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(dates))
	for _, date := range dates {
		have[date.Format(time.DateOnly)] = true
	}

	var missing []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !have[day.Format(time.DateOnly)] {
			missing = append(missing, day)
		}
	}
	return missing, nil
}

var _ HourlyFetcher = (*PWS)(nil)

// stationDay is the local midnight offset days from now in loc.
func stationDay(now time.Time, loc *time.Location, offset int) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
}
