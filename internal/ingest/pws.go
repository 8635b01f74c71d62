package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/lox/wandistats/internal/httputil"
	"github.com/lox/wandistats/internal/metrics"
)

const DefaultPWSBaseURL = "https://api.weather.com"

// ErrRateLimited marks responses that are worth retrying.
var ErrRateLimited = errors.New("rate limited")

// HourlyObservation is one hour of a station's history.
type HourlyObservation struct {
	StationID  string
	ObservedAt time.Time
	QCStatus   int

	TempHigh sql.NullFloat64
	TempLow  sql.NullFloat64
	TempAvg  sql.NullFloat64

	PressureMax sql.NullFloat64
	PressureMin sql.NullFloat64

	HumidityHigh sql.NullFloat64
	HumidityLow  sql.NullFloat64
	HumidityAvg  sql.NullFloat64

	WindSpeedHigh sql.NullFloat64
	WindSpeedAvg  sql.NullFloat64
	WindGustHigh  sql.NullFloat64

	PrecipRate  sql.NullFloat64
	PrecipTotal sql.NullFloat64 // cumulative since local midnight
}

type PWS struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	maxElapsed time.Duration
	log        zerolog.Logger
}

type PWSOption func(*PWS)

func WithBaseURL(u string) PWSOption {
	return func(p *PWS) { p.baseURL = u }
}

func WithHTTPClient(c *http.Client) PWSOption {
	return func(p *PWS) { p.client = c }
}

// WithMaxElapsed bounds the total time spent retrying one request.
func WithMaxElapsed(d time.Duration) PWSOption {
	return func(p *PWS) { p.maxElapsed = d }
}

func NewPWS(apiKey string, logger zerolog.Logger, opts ...PWSOption) *PWS {
	p := &PWS{
		apiKey:     apiKey,
		baseURL:    DefaultPWSBaseURL,
		client:     httputil.NewClient(0),
		maxElapsed: 2 * time.Minute,
		log:        logger.With().Str("component", "pws").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "pws",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Rate limiting is retried, not counted against the upstream.
			return err == nil || errors.Is(err, ErrRateLimited)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.PWSBreakerState.Set(float64(to))
			p.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("breaker state changed")
		},
	})
	return p
}

type historyResponse struct {
	Observations []historyObservation `json:"observations"`
}

type historyObservation struct {
	StationID    string   `json:"stationID"`
	ObsTimeUtc   string   `json:"obsTimeUtc"`
	Epoch        int64    `json:"epoch"`
	HumidityHigh *float64 `json:"humidityHigh"`
	HumidityLow  *float64 `json:"humidityLow"`
	HumidityAvg  *float64 `json:"humidityAvg"`
	QCStatus     int      `json:"qcStatus"`
	Metric       *struct {
		TempHigh      *float64 `json:"tempHigh"`
		TempLow       *float64 `json:"tempLow"`
		TempAvg       *float64 `json:"tempAvg"`
		WindspeedHigh *float64 `json:"windspeedHigh"`
		WindspeedAvg  *float64 `json:"windspeedAvg"`
		WindgustHigh  *float64 `json:"windgustHigh"`
		PressureMax   *float64 `json:"pressureMax"`
		PressureMin   *float64 `json:"pressureMin"`
		PrecipRate    *float64 `json:"precipRate"`
		PrecipTotal   *float64 `json:"precipTotal"`
	} `json:"metric"`
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// FetchHourly returns the station's hourly history for the local calendar
// date of day, along with the raw response body.
func (p *PWS) FetchHourly(ctx context.Context, stationID string, day time.Time) ([]HourlyObservation, []byte, error) {
	q := url.Values{}
	q.Set("stationId", stationID)
	q.Set("format", "json")
	q.Set("units", "m")
	q.Set("date", day.Format("20060102"))
	q.Set("apiKey", p.apiKey)
	endpoint := p.baseURL + "/v2/pws/history/hourly?" + q.Encode()

	start := time.Now()
	body, err := p.get(ctx, stationID, endpoint)
	metrics.PWSAPILatency.WithLabelValues(stationID).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, nil, err
	}

	obs, err := ParseHourly(body)
	if err != nil {
		return nil, body, err
	}
	return obs, body, nil
}

func (p *PWS) get(ctx context.Context, stationID, endpoint string) ([]byte, error) {
	var body []byte
	operation := func() error {
		b, err := p.breaker.Execute(func() ([]byte, error) {
			return p.do(ctx, stationID, endpoint)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("fetch hourly: %w", err))
		}
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = p.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *PWS) do(ctx context.Context, stationID, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.PWSAPICallsTotal.WithLabelValues(stationID, "error").Inc()
		return nil, backoff.Permanent(fmt.Errorf("fetch hourly: %w", err))
	}
	defer resp.Body.Close()

	metrics.PWSAPICallsTotal.WithLabelValues(stationID, strconv.Itoa(resp.StatusCode)).Inc()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		// The API answers 204 for days with no data.
		return []byte(`{"observations":[]}`), nil
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusUnauthorized:
		p.log.Debug().Str("station", stationID).Int("status", resp.StatusCode).Msg("rate limited, retrying")
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("fetch hourly: status %d: %s", resp.StatusCode, httputil.ReadErrorBody(resp.Body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("read body: %w", err))
	}
	return body, nil
}

// ParseHourly decodes a PWS hourly history response, oldest first.
func ParseHourly(body []byte) ([]HourlyObservation, error) {
	var data historyResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	results := make([]HourlyObservation, 0, len(data.Observations))
	for _, obs := range data.Observations {
		observedAt := time.Unix(obs.Epoch, 0).UTC()
		if obs.Epoch == 0 && obs.ObsTimeUtc != "" {
			t, err := time.Parse(time.RFC3339, obs.ObsTimeUtc)
			if err != nil {
				return nil, fmt.Errorf("parse time: %w", err)
			}
			observedAt = t.UTC()
		}

		result := HourlyObservation{
			StationID:    obs.StationID,
			ObservedAt:   observedAt,
			QCStatus:     obs.QCStatus,
			HumidityHigh: nullable(obs.HumidityHigh),
			HumidityLow:  nullable(obs.HumidityLow),
			HumidityAvg:  nullable(obs.HumidityAvg),
		}
		if m := obs.Metric; m != nil {
			result.TempHigh = nullable(m.TempHigh)
			result.TempLow = nullable(m.TempLow)
			result.TempAvg = nullable(m.TempAvg)
			result.PressureMax = nullable(m.PressureMax)
			result.PressureMin = nullable(m.PressureMin)
			result.WindSpeedHigh = nullable(m.WindspeedHigh)
			result.WindSpeedAvg = nullable(m.WindspeedAvg)
			result.WindGustHigh = nullable(m.WindgustHigh)
			result.PrecipRate = nullable(m.PrecipRate)
			result.PrecipTotal = nullable(m.PrecipTotal)
		}
		results = append(results, result)
	}
	return results, nil
}
