package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/lox/wandistats/internal/api"
	"github.com/lox/wandistats/internal/daterange"
	"github.com/lox/wandistats/internal/history"
	"github.com/lox/wandistats/internal/ingest"
	"github.com/lox/wandistats/internal/models"
	"github.com/lox/wandistats/internal/narrative"
	"github.com/lox/wandistats/internal/normals"
	"github.com/lox/wandistats/internal/store"
)

type Globals struct {
	DB        string `help:"Path to SQLite database." default:"data/wandistats.db" env:"WANDISTATS_DB" type:"path"`
	Timezone  string `help:"Time zone for dates that are not tied to a station." default:"Australia/Melbourne" env:"WANDISTATS_TZ"`
	LogLevel  string `help:"Log level." default:"info" enum:"debug,info,warn,error" env:"LOG_LEVEL"`
	LogFormat string `help:"Log output format." default:"console" enum:"console,json" env:"LOG_FORMAT"`

	log zerolog.Logger
}

func (g *Globals) setupLogger() {
	level, err := zerolog.ParseLevel(g.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if g.LogFormat == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	g.log = logger.Level(level).With().Timestamp().Str("service", "wandistats").Logger()
}

func (g *Globals) location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		g.log.Warn().Err(err).Str("tz", g.Timezone).Msg("could not load time zone, using UTC")
		return time.UTC
	}
	return loc
}

// open opens and migrates the database. The returned func closes it.
func (g *Globals) open() (*store.Store, func(), error) {
	if dir := filepath.Dir(g.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, g.location(), g.log)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" help:"Serve the history API and run the daily ingest."`
	Ingest   IngestCmd   `cmd:"" help:"Ingest one day for every active station."`
	Backfill BackfillCmd `cmd:"" help:"Ingest missing days in a date range."`
	Prune    PruneCmd    `cmd:"" help:"Delete archived API responses older than the retention period."`
	Range    RangeCmd    `cmd:"" help:"Print the dates an interval covers for a station."`
	Stats    StatsCmd    `cmd:"" help:"Print statistics for a station and interval."`
	Normals  NormalsCmd  `cmd:"" help:"Import climate normals from a CSV file or FTP URL."`
	Station  StationCmd  `cmd:"" help:"Manage stations."`
}

type ServeCmd struct {
	Addr         string `help:"HTTP listen address." default:":8080" env:"WANDISTATS_ADDR"`
	PWSAPIKey    string `help:"Weather Underground PWS API key." env:"PWS_API_KEY"`
	OpenAIAPIKey string `help:"OpenAI API key for narratives." env:"OPENAI_API_KEY"`
	Schedule     string `help:"Cron schedule (with seconds) for the daily ingest." default:"${schedule}"`
	RateLimit    int    `help:"API requests per minute per client." default:"${rate_limit}"`
	NoIngest     bool   `help:"Serve only; do not schedule ingestion."`
}

func (c *ServeCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	opts := []api.Option{api.WithRateLimit(c.RateLimit)}
	if c.OpenAIAPIKey != "" {
		n, err := narrative.New(c.OpenAIAPIKey, g.log)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithNarrator(n))
	}
	server := api.NewServer(st, history.NewService(st, g.log), c.Addr, g.log, opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	if c.NoIngest {
		g.log.Info().Msg("ingestion disabled (--no-ingest)")
	} else {
		if c.PWSAPIKey == "" {
			return errors.New("PWS_API_KEY is required unless --no-ingest is set")
		}
		daily := ingest.NewDailyJobs(st, ingest.NewPWS(c.PWSAPIKey, g.log), g.log)
		sched, err := ingest.NewScheduler(daily, g.location(), c.Schedule, g.log)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			sched.Run(ctx)
			return nil
		})
	}
	eg.Go(func() error { return server.Run(ctx) })
	return eg.Wait()
}

type IngestCmd struct {
	PWSAPIKey string `help:"Weather Underground PWS API key." env:"PWS_API_KEY" required:""`
	Date      string `help:"Day to ingest (YYYY-MM-DD). Defaults to yesterday."`
	Station   string `help:"Only ingest this station."`
}

func (c *IngestCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	day := time.Now().In(g.location()).AddDate(0, 0, -1)
	if c.Date != "" {
		if day, err = daterange.ParseDay(c.Date, time.UTC); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	daily := ingest.NewDailyJobs(st, ingest.NewPWS(c.PWSAPIKey, g.log), g.log)
	if c.Station != "" {
		return daily.IngestStation(ctx, c.Station, day)
	}
	_, err = daily.IngestDay(ctx, day)
	return err
}

type BackfillCmd struct {
	PWSAPIKey string `help:"Weather Underground PWS API key." env:"PWS_API_KEY" required:""`
	From      string `help:"First day (YYYY-MM-DD)." required:""`
	To        string `help:"Last day (YYYY-MM-DD). Defaults to yesterday."`
}

func (c *BackfillCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	from, err := daterange.ParseDay(c.From, time.UTC)
	if err != nil {
		return err
	}
	y, m, d := time.Now().In(g.location()).AddDate(0, 0, -1).Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if c.To != "" {
		if to, err = daterange.ParseDay(c.To, time.UTC); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	daily := ingest.NewDailyJobs(st, ingest.NewPWS(c.PWSAPIKey, g.log), g.log)
	n, err := daily.Backfill(ctx, from, to)
	g.log.Info().Int("days", n).Msg("backfill finished")
	return err
}

type PruneCmd struct {
	Days int `help:"Retention in days." default:"90"`
}

func (c *PruneCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := st.CleanupOldRawPayloads(c.Days)
	if err != nil {
		return err
	}
	g.log.Info().Int64("deleted", n).Int("retention_days", c.Days).Msg("pruned raw payloads")
	return nil
}

// QueryFlags are shared by the commands that resolve a period.
type QueryFlags struct {
	Station  string `help:"Station ID. Defaults to the primary station."`
	Interval string `help:"Interval name, e.g. last_month or \"Last 30 Days\". Defaults to custom with --start/--end, else today."`
	Start    string `help:"Custom range start (YYYY-MM-DD)."`
	End      string `help:"Custom range end (YYYY-MM-DD)."`
}

func (f QueryFlags) query(st *store.Store) (history.Query, error) {
	q := history.Query{Station: f.Station, Start: f.Start, End: f.End}
	if q.Station == "" {
		primary, err := st.GetPrimaryStation()
		if err != nil {
			return q, err
		}
		if primary == nil {
			return q, errors.New("no primary station; pass --station")
		}
		q.Station = primary.StationID
	}
	iv, err := history.IntervalFor(f.Interval, f.Start, f.End)
	if err != nil {
		return q, err
	}
	q.Interval = iv
	return q, nil
}

type RangeCmd struct {
	QueryFlags `embed:""`
	All        bool `help:"List every named interval."`
}

func (c *RangeCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	q, err := c.query(st)
	if err != nil {
		return err
	}
	svc := history.NewService(st, g.log)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if c.All {
		ranges, err := svc.Intervals(q.Station)
		if err != nil {
			return err
		}
		for _, r := range ranges {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Label, r.From.Format(time.DateTime), r.To.Format(time.DateTime))
		}
		return nil
	}

	rng, err := svc.Range(q)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%d days\n", q.Interval.Label(), rng.Start.Format(time.DateTime), rng.End.Format(time.DateTime), rng.Days())
	return nil
}

type StatsCmd struct {
	QueryFlags   `embed:""`
	Narrate      bool   `help:"Add a plain-English summary."`
	OpenAIAPIKey string `help:"OpenAI API key for --narrate." env:"OPENAI_API_KEY"`
	Model        string `help:"Chat model for --narrate."`
}

func (c *StatsCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	q, err := c.query(st)
	if err != nil {
		return err
	}
	ctx := context.Background()
	res, err := history.NewService(st, g.log).Stats(ctx, q)
	if err != nil {
		return err
	}

	out := struct {
		*history.Result
		Narrative string `json:"narrative,omitempty"`
	}{Result: res}

	if c.Narrate {
		n, err := narrative.New(c.OpenAIAPIKey, g.log)
		if err != nil {
			return err
		}
		if out.Narrative, err = n.WithModel(c.Model).Describe(ctx, q.Station, q.Interval.Label(), res.Report); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type NormalsCmd struct {
	Import NormalsImportCmd `cmd:"" help:"Replace a station's normals."`
}

type NormalsImportCmd struct {
	Station string `arg:"" help:"Station ID."`
	Source  string `arg:"" help:"CSV path or ftp:// URL."`
}

func (c *NormalsImportCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	if _, err := st.RequireStation(c.Station); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	avgs, err := normals.Load(ctx, c.Source)
	if err != nil {
		return err
	}
	if err := st.ReplaceAverages(c.Station, avgs); err != nil {
		return err
	}
	g.log.Info().Str("station", c.Station).Int("days", len(avgs)).Msg("imported normals")
	return nil
}

type StationCmd struct {
	List   StationListCmd   `cmd:"" help:"List active stations."`
	Add    StationAddCmd    `cmd:"" help:"Add or update a station."`
	Config StationConfigCmd `cmd:"" help:"Set a station's time zone, seasons and weather year."`
	Bins   StationBinsCmd   `cmd:"" help:"Show or replace a station's wind speed and temperature threshold bins."`
}

type StationListCmd struct{}

func (c *StationListCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	stations, err := st.GetActiveStations()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, s := range stations {
		settings, err := st.GetSettings(s.StationID)
		if err != nil {
			return err
		}
		primary := ""
		if s.IsPrimary {
			primary = "primary"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.StationID, s.Name, settings.Timezone, primary)
	}
	return nil
}

type StationAddCmd struct {
	ID        string  `arg:"" help:"Station ID, e.g. IWANDI23."`
	Name      string  `help:"Display name."`
	Lat       float64 `help:"Latitude."`
	Lon       float64 `help:"Longitude."`
	Elevation float64 `help:"Elevation in metres."`
	Primary   bool    `help:"Make this the primary station."`
	Inactive  bool    `help:"Keep the station but skip it when ingesting."`
}

func (c *StationAddCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	return st.UpsertStation(models.Station{
		StationID: c.ID,
		Name:      c.Name,
		Latitude:  c.Lat,
		Longitude: c.Lon,
		Elevation: c.Elevation,
		IsPrimary: c.Primary,
		Active:    !c.Inactive,
	})
}

type StationConfigCmd struct {
	ID               string `arg:"" help:"Station ID."`
	Timezone         string `help:"IANA time zone, e.g. Australia/Melbourne."`
	SeasonStart      int    `help:"First month (1-12) of the first season. 12 gives meteorological seasons."`
	Hemisphere       string `help:"Hemisphere used to name seasons." enum:",north,south" default:""`
	WeatherYearStart int    `help:"First month (1-12) of the weather year."`
}

func (c *StationConfigCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	if _, err := st.RequireStation(c.ID); err != nil {
		return err
	}
	settings, err := st.GetSettings(c.ID)
	if err != nil {
		return err
	}
	if c.Timezone != "" {
		settings.Timezone = c.Timezone
	}
	if c.SeasonStart != 0 {
		settings.SeasonStartMonth = time.Month(c.SeasonStart)
	}
	if c.Hemisphere != "" {
		settings.SouthernSeasons = c.Hemisphere == "south"
	}
	if c.WeatherYearStart != 0 {
		settings.WeatherYearStart = time.Month(c.WeatherYearStart)
	}
	return st.UpsertSettings(settings)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wandistats"),
		kong.Description("Weather station history: daily summaries, period statistics and records."),
		kong.UsageOnError(),
		kong.Vars{
			"schedule":   ingest.DefaultSchedule,
			"rate_limit": fmt.Sprint(api.DefaultRateLimit),
		},
	)
	cli.setupLogger()
	if err := ctx.Run(&cli.Globals); err != nil {
		cli.log.Error().Err(err).Msg(ctx.Command() + " failed")
		os.Exit(1)
	}
}

type StationBinsCmd struct {
	ID        string   `arg:"" help:"Station ID."`
	SpeedBin  []string `help:"Wind speed bin name:min:max in km/h; leave max empty for open-ended. Repeat in order." sep:"none"`
	Threshold []string `help:"Temperature bin name:field:direction:value, e.g. hot:high:above:30. Repeat in order." sep:"none"`
	Reset     bool     `help:"Restore the default bins."`
}

func (c *StationBinsCmd) Run(g *Globals) error {
	st, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	svc := history.NewService(st, g.log)
	speeds, thresholds, err := c.parse()
	if err != nil {
		return err
	}
	if speeds != nil || thresholds != nil {
		if err := svc.SetBins(c.ID, speeds, thresholds); err != nil {
			return err
		}
	}

	gotSpeeds, gotThresholds, err := svc.Bins(c.ID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, b := range gotSpeeds {
		upper := "-"
		if b.Max != 0 {
			upper = fmt.Sprint(b.Max)
		}
		fmt.Fprintf(w, "speed\t%s\t%v\t%s\n", b.Name, b.Min, upper)
	}
	for _, b := range gotThresholds {
		fmt.Fprintf(w, "threshold\t%s\t%s %s\t%v\n", b.Name, b.Field, b.Direction, b.Threshold)
	}
	return nil
}

// parse returns nil for a kind that was not given, and empty slices for
// --reset.
func (c *StationBinsCmd) parse() ([]models.SpeedBin, []models.ThresholdBin, error) {
	if c.Reset {
		if len(c.SpeedBin) > 0 || len(c.Threshold) > 0 {
			return nil, nil, errors.New("--reset cannot be combined with bin flags")
		}
		return []models.SpeedBin{}, []models.ThresholdBin{}, nil
	}
	var speeds []models.SpeedBin
	for _, v := range c.SpeedBin {
		b, err := models.ParseSpeedBin(v)
		if err != nil {
			return nil, nil, err
		}
		speeds = append(speeds, b)
	}
	var thresholds []models.ThresholdBin
	for _, v := range c.Threshold {
		b, err := models.ParseThresholdBin(v)
		if err != nil {
			return nil, nil, err
		}
		thresholds = append(thresholds, b)
	}
	return speeds, thresholds, nil
}
