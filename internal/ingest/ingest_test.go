package ingest

import (
	"database/sql"
	"sort"
	"testing"
	"time"
)

func nf(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func TestValidateHourly(t *testing.T) {
	tests := []struct {
		name      string
		obs       HourlyObservation
		wantFlags []string
	}{
		{
			name: "valid observation - no flags",
			obs: HourlyObservation{
				TempHigh:     nf(25.0),
				TempLow:      nf(20.0),
				TempAvg:      nf(22.5),
				HumidityAvg:  nf(60),
				WindSpeedAvg: nf(15.0),
				WindGustHigh: nf(40.0),
				PressureMax:  nf(1013.0),
				PrecipRate:   nf(0),
				PrecipTotal:  nf(5.0),
			},
			wantFlags: nil,
		},
		{
			name:      "temp too hot",
			obs:       HourlyObservation{TempHigh: nf(65.0), TempAvg: nf(30)},
			wantFlags: []string{FlagTempOutOfRange},
		},
		{
			name:      "temp at boundary - valid",
			obs:       HourlyObservation{TempLow: nf(-40.0)},
			wantFlags: nil,
		},
		{
			name:      "humidity over 100",
			obs:       HourlyObservation{HumidityHigh: nf(101)},
			wantFlags: []string{FlagHumidityInvalid},
		},
		{
			name:      "negative wind",
			obs:       HourlyObservation{WindSpeedAvg: nf(-1)},
			wantFlags: []string{FlagWindSpeedUnlikely},
		},
		{
			name:      "pressure too low",
			obs:       HourlyObservation{PressureMin: nf(850)},
			wantFlags: []string{FlagPressureOutOfRange},
		},
		{
			name:      "negative precip",
			obs:       HourlyObservation{PrecipTotal: nf(-0.2)},
			wantFlags: []string{FlagPrecipNegative},
		},
		{
			name:      "multiple flags",
			obs:       HourlyObservation{TempAvg: nf(99), HumidityAvg: nf(-5)},
			wantFlags: []string{FlagHumidityInvalid, FlagTempOutOfRange},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := tt.obs
			got := ValidateHourly(&obs)
			sort.Strings(got)
			want := append([]string(nil), tt.wantFlags...)
			sort.Strings(want)

			if len(got) != len(want) {
				t.Fatalf("ValidateHourly() = %v, want %v", got, want)
			}
			for i := range got {
				if got[i] != want[i] {
					t.Errorf("ValidateHourly()[%d] = %q, want %q", i, got[i], want[i])
				}
			}
		})
	}
}

func TestValidateHourly_NullsFlaggedFields(t *testing.T) {
	obs := HourlyObservation{TempHigh: nf(70), TempAvg: nf(25), HumidityAvg: nf(50)}
	ValidateHourly(&obs)

	if obs.TempHigh.Valid || obs.TempAvg.Valid {
		t.Errorf("temperature should be cleared, got high=%v avg=%v", obs.TempHigh, obs.TempAvg)
	}
	if !obs.HumidityAvg.Valid {
		t.Error("humidity should be kept")
	}
}

func TestParseHourly(t *testing.T) {
	jsonData := `{
		"observations": [
			{
				"stationID": "IWANDI23",
				"obsTimeUtc": "2025-01-15T00:00:00Z",
				"epoch": 1736899200,
				"humidityAvg": 70,
				"humidityHigh": 74.5,
				"metric": {
					"tempAvg": 22.5,
					"tempHigh": 25.0,
					"tempLow": 20.0,
					"windspeedAvg": 10.0,
					"windgustHigh": 20.0,
					"pressureMax": 1015.2,
					"precipTotal": 2.5
				}
			},
			{
				"stationID": "IWANDI23",
				"obsTimeUtc": "2025-01-15T01:00:00Z",
				"humidityAvg": 75,
				"metric": {
					"tempAvg": 21.0
				}
			}
		]
	}`

	obs, err := ParseHourly([]byte(jsonData))
	if err != nil {
		t.Fatalf("ParseHourly: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("len(obs) = %d, want 2", len(obs))
	}

	first := obs[0]
	if first.StationID != "IWANDI23" {
		t.Errorf("StationID = %q, want IWANDI23", first.StationID)
	}
	if !first.ObservedAt.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ObservedAt = %v", first.ObservedAt)
	}
	if first.HumidityHigh.Float64 != 74.5 {
		t.Errorf("HumidityHigh = %v, want 74.5", first.HumidityHigh)
	}
	if first.TempHigh.Float64 != 25.0 || first.PrecipTotal.Float64 != 2.5 {
		t.Errorf("metric block not parsed: %+v", first)
	}
	if first.PressureMin.Valid {
		t.Errorf("PressureMin = %v, want null", first.PressureMin)
	}

	// No epoch, so the UTC timestamp is used.
	if !obs[1].ObservedAt.Equal(time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("ObservedAt = %v, want 01:00 UTC", obs[1].ObservedAt)
	}
	if obs[1].TempHigh.Valid {
		t.Errorf("TempHigh = %v, want null", obs[1].TempHigh)
	}
}

func TestParseHourly_InvalidJSON(t *testing.T) {
	if _, err := ParseHourly([]byte(`{"observations": [`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}
