package stats

import (
	"time"

	"github.com/lox/wandistats/internal/models"
)

type Rainfall struct {
	total    fixed
	days     int
	rainDays int
	wettest  tracker
	rate     tracker

	// Days with both a reading and a normal.
	pairs    int
	observed fixed
	normal   fixed
}

func newRainfall() Rainfall {
	return Rainfall{
		wettest: tracker{higher: true},
		rate:    tracker{higher: true},
	}
}

// dayAmount prefers the recorded daily total and falls back to the hourly
// breakdown.
func dayAmount(rec models.SummaryRecord) (float64, bool) {
	if rec.RainTotal.Valid {
		return rec.RainTotal.Float64, true
	}
	var sum fixed
	found := false
	for _, h := range rec.HourlyRain {
		if h.Valid {
			sum += toFixed(h.Float64)
			found = true
		}
	}
	return sum.float(), found
}

// wettestHour returns the first hour with the largest hourly amount.
func wettestHour(rec models.SummaryRecord) (int, float64, bool) {
	hour, amount, found := 0, 0.0, false
	for h, v := range rec.HourlyRain {
		if !v.Valid {
			continue
		}
		if !found || v.Float64 > amount {
			hour, amount, found = h, v.Float64, true
		}
	}
	return hour, amount, found
}

func (r *Rainfall) observe(rec models.SummaryRecord, loc *time.Location, normal models.WeatherAverage, hasNormal bool) {
	amount, ok := dayAmount(rec)
	if ok {
		r.days++
		r.total += toFixed(amount)
		if amount > 0 {
			r.rainDays++
		}
		r.wettest.offer(Extreme{Value: amount, At: rec.Date})
	}

	if rec.RainRateMax.Valid {
		r.rate.offer(Extreme{Value: rec.RainRateMax.Float64, At: stamp(rec.RainRateMaxTime, rec.Date)})
	} else if h, v, found := wettestHour(rec); found {
		y, m, d := rec.Date.Date()
		r.rate.offer(Extreme{Value: v, At: time.Date(y, m, d, h, 0, 0, 0, loc)})
	}

	if ok && hasNormal && normal.Rain.Valid {
		r.pairs++
		r.observed += toFixed(amount)
		r.normal += toFixed(normal.Rain.Float64)
	}
}

func (r *Rainfall) merge(o Rainfall) {
	r.total += o.total
	r.days += o.days
	r.rainDays += o.rainDays
	r.wettest.merge(o.wettest)
	r.rate.merge(o.rate)
	r.pairs += o.pairs
	r.observed += o.observed
	r.normal += o.normal
}

func (r Rainfall) Total() float64 { return r.total.float() }

// Days counts days that reported rainfall, wet or dry.
func (r Rainfall) Days() int { return r.days }

// RainDays counts days with more than zero rain.
func (r Rainfall) RainDays() int { return r.rainDays }

func (r Rainfall) WettestDay() *Extreme { return r.wettest.get() }

// MaxRate is the highest rate in mm/h.
func (r Rainfall) MaxRate() *Extreme { return r.rate.get() }

// Normal is the climate-normal rain summed over the days that have both a
// rainfall reading and a normal.
func (r Rainfall) Normal() (float64, bool) {
	if r.pairs == 0 {
		return 0, false
	}
	return r.normal.float(), true
}

// Anomaly is observed minus normal rain over the same days as Normal.
func (r Rainfall) Anomaly() (float64, bool) {
	if r.pairs == 0 {
		return 0, false
	}
	return (r.observed - r.normal).float(), true
}
