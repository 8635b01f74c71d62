package ingest

import (
	"database/sql"
	"slices"
	"time"

	"github.com/lox/wandistats/internal/models"
)

type peak struct {
	value sql.NullFloat64
	at    sql.NullTime
}

// offer keeps the first observation on ties.
func (p *peak) offer(v sql.NullFloat64, at time.Time, higher bool) {
	if !v.Valid {
		return
	}
	if p.value.Valid && (v.Float64 == p.value.Float64 || (v.Float64 > p.value.Float64) != higher) {
		return
	}
	p.value = v
	p.at = sql.NullTime{Time: at, Valid: true}
}

type average struct {
	sum float64
	n   int
}

func (a *average) add(v sql.NullFloat64) {
	if v.Valid {
		a.sum += v.Float64
		a.n++
	}
}

func (a average) value() sql.NullFloat64 {
	if a.n == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: a.sum / float64(a.n), Valid: true}
}

func firstValid(vs ...sql.NullFloat64) sql.NullFloat64 {
	for _, v := range vs {
		if v.Valid {
			return v
		}
	}
	return sql.NullFloat64{}
}

func midpoint(a, b sql.NullFloat64) sql.NullFloat64 {
	if a.Valid && b.Valid {
		return sql.NullFloat64{Float64: (a.Float64 + b.Float64) / 2, Valid: true}
	}
	return firstValid(a, b)
}

// Summarize folds one local day of hourly observations into a summary record.
// Observations outside the day are ignored.
func Summarize(stationID string, day time.Time, loc *time.Location, obs []HourlyObservation) models.SummaryRecord {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := time.Date(y, m, d+1, 0, 0, 0, 0, loc)

	rec := models.SummaryRecord{
		Date:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		StationID: stationID,
	}

	sorted := slices.Clone(obs)
	slices.SortStableFunc(sorted, func(a, b HourlyObservation) int {
		return a.ObservedAt.Compare(b.ObservedAt)
	})

	var tempMax, tempMin, pressMax, pressMin, humMax, humMin, windMax, gustMax, rateMax peak
	var tempAvg, pressAvg, humAvg, windAvg average
	var hourTemp [models.HoursPerDay]average
	var hourRain [models.HoursPerDay]sql.NullFloat64
	var lastTotal float64
	var rainTotal sql.NullFloat64

	for _, o := range sorted {
		if o.ObservedAt.Before(dayStart) || !o.ObservedAt.Before(dayEnd) {
			continue
		}
		at := o.ObservedAt
		hour := at.In(loc).Hour()

		tempMax.offer(firstValid(o.TempHigh, o.TempAvg), at, true)
		tempMin.offer(firstValid(o.TempLow, o.TempAvg), at, false)
		tempAvg.add(o.TempAvg)
		hourTemp[hour].add(firstValid(o.TempAvg, midpoint(o.TempHigh, o.TempLow)))

		pressMax.offer(o.PressureMax, at, true)
		pressMin.offer(o.PressureMin, at, false)
		pressAvg.add(midpoint(o.PressureMax, o.PressureMin))

		humMax.offer(firstValid(o.HumidityHigh, o.HumidityAvg), at, true)
		humMin.offer(firstValid(o.HumidityLow, o.HumidityAvg), at, false)
		humAvg.add(o.HumidityAvg)

		windMax.offer(firstValid(o.WindSpeedHigh, o.WindSpeedAvg), at, true)
		windAvg.add(o.WindSpeedAvg)
		gustMax.offer(o.WindGustHigh, at, true)

		rateMax.offer(o.PrecipRate, at, true)
		if o.PrecipTotal.Valid {
			fell := o.PrecipTotal.Float64 - lastTotal
			if fell < 0 {
				// The station's counter reset mid-day.
				fell = o.PrecipTotal.Float64
			}
			lastTotal = o.PrecipTotal.Float64
			hourRain[hour].Float64 += fell
			hourRain[hour].Valid = true
			rainTotal.Float64 += fell
			rainTotal.Valid = true
		}
	}

	rec.TempMax, rec.TempMaxTime = tempMax.value, tempMax.at
	rec.TempMin, rec.TempMinTime = tempMin.value, tempMin.at
	rec.TempAvg = tempAvg.value()
	rec.PressureMax, rec.PressureMaxTime = pressMax.value, pressMax.at
	rec.PressureMin, rec.PressureMinTime = pressMin.value, pressMin.at
	rec.PressureAvg = pressAvg.value()
	rec.HumidityMax, rec.HumidityMaxTime = humMax.value, humMax.at
	rec.HumidityMin, rec.HumidityMinTime = humMin.value, humMin.at
	rec.HumidityAvg = humAvg.value()
	rec.WindSpeedMax, rec.WindSpeedMaxTime = windMax.value, windMax.at
	rec.WindSpeedAvg = windAvg.value()
	rec.WindGustMax, rec.WindGustMaxTime = gustMax.value, gustMax.at
	rec.RainTotal = rainTotal
	rec.RainRateMax, rec.RainRateMaxTime = rateMax.value, rateMax.at
	rec.HourlyRain = hourRain
	for h := range hourTemp {
		rec.HourlyTemp[h] = hourTemp[h].value()
	}
	return rec
}
