package ingest

import (
	"database/sql"
	"math"
	"testing"
	"time"
)

func approx(got sql.NullFloat64, want float64) bool {
	return got.Valid && math.Abs(got.Float64-want) < 1e-9
}

func TestSummarize(t *testing.T) {
	mel, err := time.LoadLocation("Australia/Melbourne")
	if err != nil {
		t.Fatal(err)
	}
	at := func(h int) time.Time { return time.Date(2025, 1, 15, h, 0, 0, 0, mel) }

	obs := []HourlyObservation{
		// Out of order on purpose.
		{ObservedAt: at(5), TempHigh: nf(30), TempLow: nf(27), TempAvg: nf(28), PrecipTotal: nf(1.0)},
		{ObservedAt: at(1), TempHigh: nf(18), TempLow: nf(14), TempAvg: nf(16), PrecipTotal: nf(0.4), PrecipRate: nf(2.0)},
		{ObservedAt: at(3), TempHigh: nf(30), TempLow: nf(14), TempAvg: nf(25), PrecipTotal: nf(1.0), PrecipRate: nf(2.0)},
		{ObservedAt: at(2), TempAvg: nf(20), PrecipTotal: nf(1.0), HumidityAvg: nf(60), HumidityHigh: nf(70), HumidityLow: nf(55)},
		{ObservedAt: at(7), TempAvg: nf(26), PrecipTotal: nf(0.2), PressureMax: nf(1016), PressureMin: nf(1012)},
		// Previous local day.
		{ObservedAt: at(0).Add(-time.Hour), TempHigh: nf(40), PrecipTotal: nf(9)},
	}

	rec := Summarize("IWANDI23", at(12), mel, obs)

	if !rec.Date.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v, want 2025-01-15 UTC midnight", rec.Date)
	}
	if rec.StationID != "IWANDI23" {
		t.Errorf("StationID = %q", rec.StationID)
	}

	if !approx(rec.TempMax, 30) || !rec.TempMaxTime.Time.Equal(at(3)) {
		t.Errorf("TempMax = %v at %v, want 30 at 03:00 (first of tie)", rec.TempMax, rec.TempMaxTime.Time)
	}
	if !approx(rec.TempMin, 14) || !rec.TempMinTime.Time.Equal(at(1)) {
		t.Errorf("TempMin = %v at %v, want 14 at 01:00", rec.TempMin, rec.TempMinTime.Time)
	}
	if !approx(rec.TempAvg, (28+16+25+20+26)/5.0) {
		t.Errorf("TempAvg = %v", rec.TempAvg)
	}

	if !approx(rec.HumidityMax, 70) || !approx(rec.HumidityMin, 55) || !approx(rec.HumidityAvg, 60) {
		t.Errorf("humidity = %v/%v/%v", rec.HumidityMax, rec.HumidityMin, rec.HumidityAvg)
	}
	if !approx(rec.PressureAvg, 1014) {
		t.Errorf("PressureAvg = %v, want 1014", rec.PressureAvg)
	}
	if rec.WindSpeedMax.Valid || rec.WindGustMax.Valid {
		t.Error("wind should be null without readings")
	}

	// Cumulative 0.4, 1.0, 1.0, 1.0, then a reset to 0.2.
	if !approx(rec.RainTotal, 1.2) {
		t.Errorf("RainTotal = %v, want 1.2", rec.RainTotal)
	}
	wantRain := map[int]float64{1: 0.4, 2: 0.6, 3: 0, 5: 0, 7: 0.2}
	for h := range rec.HourlyRain {
		want, ok := wantRain[h]
		if !ok {
			if rec.HourlyRain[h].Valid {
				t.Errorf("HourlyRain[%d] = %v, want null", h, rec.HourlyRain[h])
			}
			continue
		}
		if !approx(rec.HourlyRain[h], want) {
			t.Errorf("HourlyRain[%d] = %v, want %v", h, rec.HourlyRain[h], want)
		}
	}
	if !approx(rec.RainRateMax, 2.0) || !rec.RainRateMaxTime.Time.Equal(at(1)) {
		t.Errorf("RainRateMax = %v at %v, want 2.0 at 01:00", rec.RainRateMax, rec.RainRateMaxTime.Time)
	}

	if !approx(rec.HourlyTemp[5], 28) || !approx(rec.HourlyTemp[2], 20) {
		t.Errorf("HourlyTemp[5]=%v HourlyTemp[2]=%v", rec.HourlyTemp[5], rec.HourlyTemp[2])
	}
	if rec.HourlyTemp[0].Valid {
		t.Errorf("HourlyTemp[0] = %v, want null", rec.HourlyTemp[0])
	}
}

func TestSummarize_Empty(t *testing.T) {
	rec := Summarize("IWANDI23", time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), nil, nil)

	if !rec.Date.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", rec.Date)
	}
	if rec.TempMax.Valid || rec.RainTotal.Valid || rec.HumidityAvg.Valid {
		t.Errorf("empty summary should be all null: %+v", rec)
	}
}

func TestSummarize_HighFallsBackToAverage(t *testing.T) {
	day := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	obs := []HourlyObservation{
		{ObservedAt: day.Add(9 * time.Hour), TempAvg: nf(4)},
		{ObservedAt: day.Add(15 * time.Hour), TempAvg: nf(11), WindSpeedAvg: nf(12), WindGustHigh: nf(30)},
	}

	rec := Summarize("IWANDI23", day, time.UTC, obs)
	if !approx(rec.TempMax, 11) || !approx(rec.TempMin, 4) {
		t.Errorf("TempMax=%v TempMin=%v, want 11 and 4", rec.TempMax, rec.TempMin)
	}
	if !approx(rec.WindSpeedMax, 12) || !approx(rec.WindGustMax, 30) {
		t.Errorf("WindSpeedMax=%v WindGustMax=%v", rec.WindSpeedMax, rec.WindGustMax)
	}
}
