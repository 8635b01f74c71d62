package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule runs at 06:30:00 local time, once the previous day is
// complete upstream.
const DefaultSchedule = "0 30 6 * * *"

type Scheduler struct {
	cron  *cron.Cron
	daily *DailyJobs
	loc   *time.Location
	log   zerolog.Logger
	now   func() time.Time
}

// cronLogger adapts zerolog to cron's logging interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NewScheduler builds a scheduler that ingests yesterday's summaries on spec,
// a six-field cron expression with seconds, evaluated in loc.
func NewScheduler(daily *DailyJobs, loc *time.Location, spec string, logger zerolog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	s := &Scheduler{
		daily: daily,
		loc:   loc,
		log:   logger.With().Str("component", "scheduler").Logger(),
		now:   time.Now,
	}

	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce ingests yesterday in the scheduler's time zone.
func (s *Scheduler) RunOnce(ctx context.Context) {
	yesterday := stationDay(s.now(), s.loc, -1)
	s.log.Info().Str("day", yesterday.Format(time.DateOnly)).Msg("running daily ingest")
	if _, err := s.daily.IngestDay(ctx, yesterday); err != nil {
		s.log.Error().Err(err).Msg("daily ingest failed")
	}
}

// Next reports when the job fires next.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(s.now().In(s.loc))
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.log.Info().Time("next", s.Next()).Msg("scheduler started")

	<-ctx.Done()
	s.log.Info().Msg("scheduler shutting down")
	<-s.cron.Stop().Done()
}
