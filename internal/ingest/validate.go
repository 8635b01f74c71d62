package ingest

import (
	"database/sql"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagPrecipNegative     = "precip_negative"
)

func outside(v sql.NullFloat64, lo, hi float64) bool {
	return v.Valid && (v.Float64 < lo || v.Float64 > hi)
}

// ValidateHourly flags implausible readings in obs and nulls them out so they
// never reach a summary.
func ValidateHourly(obs *HourlyObservation) []string {
	var flags []string

	drop := func(flag string, fields ...*sql.NullFloat64) {
		flags = append(flags, flag)
		for _, f := range fields {
			*f = sql.NullFloat64{}
		}
	}

	if outside(obs.TempHigh, -40, 60) || outside(obs.TempLow, -40, 60) || outside(obs.TempAvg, -40, 60) {
		drop(FlagTempOutOfRange, &obs.TempHigh, &obs.TempLow, &obs.TempAvg)
	}
	if outside(obs.HumidityHigh, 0, 100) || outside(obs.HumidityLow, 0, 100) || outside(obs.HumidityAvg, 0, 100) {
		drop(FlagHumidityInvalid, &obs.HumidityHigh, &obs.HumidityLow, &obs.HumidityAvg)
	}
	if outside(obs.WindSpeedHigh, 0, 200) || outside(obs.WindSpeedAvg, 0, 200) || outside(obs.WindGustHigh, 0, 250) {
		drop(FlagWindSpeedUnlikely, &obs.WindSpeedHigh, &obs.WindSpeedAvg, &obs.WindGustHigh)
	}
	if outside(obs.PressureMax, 900, 1100) || outside(obs.PressureMin, 900, 1100) {
		drop(FlagPressureOutOfRange, &obs.PressureMax, &obs.PressureMin)
	}
	if (obs.PrecipRate.Valid && obs.PrecipRate.Float64 < 0) || (obs.PrecipTotal.Valid && obs.PrecipTotal.Float64 < 0) {
		drop(FlagPrecipNegative, &obs.PrecipRate, &obs.PrecipTotal)
	}

	return flags
}
