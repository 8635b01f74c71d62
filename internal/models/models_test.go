package models

import (
	"database/sql"
	"math"
	"testing"
	"time"
)

func TestParseSpeedBin(t *testing.T) {
	tests := []struct {
		in      string
		want    SpeedBin
		wantErr bool
	}{
		{"calm:0:2", SpeedBin{Name: "calm", Min: 0, Max: 2}, false},
		{"gale:62:", SpeedBin{Name: "gale", Min: 62}, false},
		{"calm:0", SpeedBin{}, true},
		{":0:2", SpeedBin{}, true},
		{"calm:x:2", SpeedBin{}, true},
		{"calm:5:2", SpeedBin{}, true},
	}

	for _, tt := range tests {
		got, err := ParseSpeedBin(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSpeedBin(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSpeedBin(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseThresholdBin(t *testing.T) {
	tests := []struct {
		in      string
		want    ThresholdBin
		wantErr bool
	}{
		{"hot:high:above:30", ThresholdBin{Name: "hot", Field: FieldHigh, Direction: Above, Threshold: 30}, false},
		{"frost:low:below:-2.5", ThresholdBin{Name: "frost", Field: FieldLow, Direction: Below, Threshold: -2.5}, false},
		{"hot:max:above:30", ThresholdBin{}, true},
		{"hot:high:over:30", ThresholdBin{}, true},
		{"hot:high:above", ThresholdBin{}, true},
		{"hot:high:above:warm", ThresholdBin{}, true},
	}

	for _, tt := range tests {
		got, err := ParseThresholdBin(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseThresholdBin(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseThresholdBin(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestWeatherAverages_MonthlyFallback(t *testing.T) {
	avgs := NewWeatherAverages([]WeatherAverage{
		{Month: time.April, Day: 0, TempHigh: sql.NullFloat64{Float64: 22, Valid: true}, Rain: sql.NullFloat64{Float64: 60, Valid: true}},
		{Month: time.April, Day: 10, TempHigh: sql.NullFloat64{Float64: 25, Valid: true}, Rain: sql.NullFloat64{Float64: 1.5, Valid: true}},
		{Month: time.February, Day: 0, Rain: sql.NullFloat64{Float64: 29, Valid: true}},
		{Month: time.May, Day: 0, TempHigh: sql.NullFloat64{Float64: 19, Valid: true}},
	})

	tests := []struct {
		name     string
		date     time.Time
		wantOK   bool
		wantHigh float64
		wantRain float64
		rainOK   bool
	}{
		{"exact day wins", time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), true, 25, 1.5, true},
		{"monthly rain spread over 30 days", time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC), true, 22, 2, true},
		{"leap february spreads over 29 days", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), true, 0, 1, true},
		{"monthly without rain", time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC), true, 19, 0, false},
		{"no entry for month", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), false, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := avgs.Lookup(tt.date)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%s) ok = %v, want %v", tt.date.Format(time.DateOnly), ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if a.TempHigh.Float64 != tt.wantHigh {
				t.Errorf("TempHigh = %v, want %v", a.TempHigh.Float64, tt.wantHigh)
			}
			if a.Rain.Valid != tt.rainOK {
				t.Fatalf("Rain.Valid = %v, want %v", a.Rain.Valid, tt.rainOK)
			}
			if math.Abs(a.Rain.Float64-tt.wantRain) > 1e-9 {
				t.Errorf("Rain = %v, want %v", a.Rain.Float64, tt.wantRain)
			}
		})
	}

	// Repeated lookups must not compound the scaling.
	a, _ := avgs.Lookup(time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC))
	if math.Abs(a.Rain.Float64-2) > 1e-9 {
		t.Errorf("second lookup Rain = %v, want 2", a.Rain.Float64)
	}
}
