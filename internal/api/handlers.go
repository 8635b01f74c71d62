package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/wandistats/internal/daterange"
	"github.com/lox/wandistats/internal/history"
	"github.com/lox/wandistats/internal/models"
	"github.com/lox/wandistats/internal/store"
)

// staleAfter is how old the newest summary may be before a station is
// reported as stale. Yesterday's summary lands the next morning.
const staleAfter = 2 * 24 * time.Hour

var errStationRequired = errors.New("station is required")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrStationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, daterange.ErrUnknownInterval),
		errors.Is(err, daterange.ErrInvertedRange),
		errors.Is(err, daterange.ErrBadDate),
		errors.Is(err, errStationRequired):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// query reads station, interval, start and end. The station defaults to the
// primary station; the interval defaults to custom when dates are given and
// today otherwise.
func (s *Server) query(r *http.Request) (history.Query, error) {
	v := r.URL.Query()
	q := history.Query{
		Station: v.Get("station"),
		Start:   v.Get("start"),
		End:     v.Get("end"),
	}

	if q.Station == "" {
		primary, err := s.store.GetPrimaryStation()
		if err != nil {
			return q, err
		}
		if primary == nil {
			return q, errStationRequired
		}
		q.Station = primary.StationID
	}

	iv, err := history.IntervalFor(v.Get("interval"), q.Start, q.End)
	if err != nil {
		return q, err
	}
	q.Interval = iv
	return q, nil
}

type HealthStatus struct {
	Status         string          `json:"status"`
	Stations       []StationHealth `json:"stations"`
	RecentFailures []string        `json:"recent_failures,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
}

type StationHealth struct {
	StationID   string    `json:"station_id"`
	LastSummary time.Time `json:"last_summary,omitzero"`
	Stale       bool      `json:"stale"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetActiveStations()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	health := HealthStatus{
		Status:   "ok",
		Stations: make([]StationHealth, 0, len(stations)),
	}
	now := s.now()

	for _, st := range stations {
		today, err := s.store.StationDateKey(st.StationID, now)
		if err != nil {
			health.Errors = append(health.Errors, st.StationID+": "+err.Error())
			continue
		}
		latest, err := s.store.GetLatestSummaryDate(st.StationID)
		if err != nil {
			health.Errors = append(health.Errors, st.StationID+": "+err.Error())
			continue
		}
		sh := StationHealth{StationID: st.StationID, LastSummary: latest}
		sh.Stale = latest.IsZero() || today.Sub(latest) > staleAfter
		if sh.Stale {
			health.Status = "degraded"
		}
		health.Stations = append(health.Stations, sh)
	}

	failures, err := s.store.GetRecentIngestErrors(5)
	if err != nil {
		health.Errors = append(health.Errors, "ingest runs: "+err.Error())
	}
	for _, f := range failures {
		health.RecentFailures = append(health.RecentFailures, f.StationID.String+": "+f.ErrorMessage.String)
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

type stationView struct {
	StationID string  `json:"station_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
	IsPrimary bool    `json:"is_primary"`
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetActiveStations()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]stationView, 0, len(stations))
	for _, st := range stations {
		out = append(out, stationView{
			StationID: st.StationID,
			Name:      st.Name,
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			Elevation: st.Elevation,
			IsPrimary: st.IsPrimary,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIntervals(w http.ResponseWriter, r *http.Request) {
	q, err := s.query(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ranges, err := s.history.Intervals(q.Station)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranges)
}

type rangeResponse struct {
	Station  string             `json:"station"`
	Interval daterange.Interval `json:"interval"`
	Label    string             `json:"label"`
	From     time.Time          `json:"from"`
	To       time.Time          `json:"to"`
	Days     int                `json:"days"`
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	q, err := s.query(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rng, err := s.history.Range(q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse{
		Station:  q.Station,
		Interval: q.Interval,
		Label:    q.Interval.Label(),
		From:     rng.Start,
		To:       rng.End,
		Days:     rng.Days(),
	})
}

// reading is a nullable value with an optional time of day.
type reading struct {
	Value float64    `json:"value"`
	At    *time.Time `json:"at,omitempty"`
}

func readingOf(v sql.NullFloat64, at sql.NullTime) *reading {
	if !v.Valid {
		return nil
	}
	rd := &reading{Value: v.Float64}
	if at.Valid {
		t := at.Time
		rd.At = &t
	}
	return rd
}

func valueOf(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

type summaryView struct {
	Date         string     `json:"date"`
	TempMax      *reading   `json:"temp_max,omitempty"`
	TempMin      *reading   `json:"temp_min,omitempty"`
	TempAvg      *float64   `json:"temp_avg,omitempty"`
	PressureMax  *reading   `json:"pressure_max,omitempty"`
	PressureMin  *reading   `json:"pressure_min,omitempty"`
	PressureAvg  *float64   `json:"pressure_avg,omitempty"`
	HumidityMax  *reading   `json:"humidity_max,omitempty"`
	HumidityMin  *reading   `json:"humidity_min,omitempty"`
	HumidityAvg  *float64   `json:"humidity_avg,omitempty"`
	WindSpeedMax *reading   `json:"wind_speed_max,omitempty"`
	WindSpeedAvg *float64   `json:"wind_speed_avg,omitempty"`
	WindGustMax  *reading   `json:"wind_gust_max,omitempty"`
	RainTotal    *float64   `json:"rain_total,omitempty"`
	RainRateMax  *reading   `json:"rain_rate_max,omitempty"`
	HourlyRain   []*float64 `json:"hourly_rain,omitempty"`
	HourlyTemp   []*float64 `json:"hourly_temp,omitempty"`
}

func hourly(vs [models.HoursPerDay]sql.NullFloat64) []*float64 {
	out := make([]*float64, len(vs))
	found := false
	for h, v := range vs {
		out[h] = valueOf(v)
		found = found || v.Valid
	}
	if !found {
		return nil
	}
	return out
}

func viewSummary(rec models.SummaryRecord) summaryView {
	return summaryView{
		Date:         rec.Date.Format(time.DateOnly),
		TempMax:      readingOf(rec.TempMax, rec.TempMaxTime),
		TempMin:      readingOf(rec.TempMin, rec.TempMinTime),
		TempAvg:      valueOf(rec.TempAvg),
		PressureMax:  readingOf(rec.PressureMax, rec.PressureMaxTime),
		PressureMin:  readingOf(rec.PressureMin, rec.PressureMinTime),
		PressureAvg:  valueOf(rec.PressureAvg),
		HumidityMax:  readingOf(rec.HumidityMax, rec.HumidityMaxTime),
		HumidityMin:  readingOf(rec.HumidityMin, rec.HumidityMinTime),
		HumidityAvg:  valueOf(rec.HumidityAvg),
		WindSpeedMax: readingOf(rec.WindSpeedMax, rec.WindSpeedMaxTime),
		WindSpeedAvg: valueOf(rec.WindSpeedAvg),
		WindGustMax:  readingOf(rec.WindGustMax, rec.WindGustMaxTime),
		RainTotal:    valueOf(rec.RainTotal),
		RainRateMax:  readingOf(rec.RainRateMax, rec.RainRateMaxTime),
		HourlyRain:   hourly(rec.HourlyRain),
		HourlyTemp:   hourly(rec.HourlyTemp),
	}
}

type summariesResponse struct {
	Station   string        `json:"station"`
	From      time.Time     `json:"from"`
	To        time.Time     `json:"to"`
	Summaries []summaryView `json:"summaries"`
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	q, err := s.query(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rng, recs, err := s.history.Summaries(q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := summariesResponse{
		Station:   q.Station,
		From:      rng.Start,
		To:        rng.End,
		Summaries: make([]summaryView, 0, len(recs)),
	}
	for _, rec := range recs {
		resp.Summaries = append(resp.Summaries, viewSummary(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	*history.Result
	Narrative string `json:"narrative,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q, err := s.query(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.history.Stats(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := statsResponse{Result: res}
	if narrate, _ := strconv.ParseBool(r.URL.Query().Get("narrate")); narrate && s.narrator != nil {
		text, err := s.narrator.Describe(r.Context(), q.Station, q.Interval.Label(), res.Report)
		if err != nil {
			s.log.Warn().Err(err).Str("station", q.Station).Msg("narrative failed")
		} else {
			resp.Narrative = text
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
