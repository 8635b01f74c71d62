package stats

import (
	"database/sql"
	"time"
)

// Metric accumulates one scalar reading (temperature, pressure, ...) across
// many days.
type Metric struct {
	low      tracker
	high     tracker
	narrow   tracker
	wide     tracker
	mean     Mean
	meanHigh Mean
	meanLow  Mean
	samples  int
}

func newMetric() Metric {
	return Metric{
		high: tracker{higher: true},
		wide: tracker{higher: true},
	}
}

// daily is one record's contribution to a Metric.
type daily struct {
	day   time.Time
	min   sql.NullFloat64
	minAt sql.NullTime
	max   sql.NullFloat64
	maxAt sql.NullTime
	avg   sql.NullFloat64
}

func stamp(at sql.NullTime, day time.Time) time.Time {
	if at.Valid {
		return at.Time
	}
	return day
}

func (m *Metric) observe(d daily) {
	if !d.min.Valid && !d.max.Valid && !d.avg.Valid {
		return
	}
	m.samples++

	if d.min.Valid {
		m.low.offer(Extreme{Value: d.min.Float64, At: stamp(d.minAt, d.day)})
		m.meanLow.Add(d.min)
	}
	if d.max.Valid {
		m.high.offer(Extreme{Value: d.max.Float64, At: stamp(d.maxAt, d.day)})
		m.meanHigh.Add(d.max)
	}
	m.mean.Add(d.avg)

	if d.min.Valid && d.max.Valid {
		spread := Extreme{Value: d.max.Float64 - d.min.Float64, At: d.day}
		m.narrow.offer(spread)
		m.wide.offer(spread)
	}
}

func (m *Metric) merge(o Metric) {
	m.low.merge(o.low)
	m.high.merge(o.high)
	m.narrow.merge(o.narrow)
	m.wide.merge(o.wide)
	m.mean.merge(o.mean)
	m.meanHigh.merge(o.meanHigh)
	m.meanLow.merge(o.meanLow)
	m.samples += o.samples
}

func (m Metric) Min() *Extreme { return m.low.get() }

func (m Metric) Max() *Extreme { return m.high.get() }

// Mean is the average of the daily means.
func (m Metric) Mean() (float64, bool) { return m.mean.Value() }

// MeanHigh is the average of the daily maxima.
func (m Metric) MeanHigh() (float64, bool) { return m.meanHigh.Value() }

// MeanLow is the average of the daily minima.
func (m Metric) MeanLow() (float64, bool) { return m.meanLow.Value() }

// SmallestRange is the day with the least spread between max and min.
func (m Metric) SmallestRange() *Extreme { return m.narrow.get() }

func (m Metric) LargestRange() *Extreme { return m.wide.get() }

// Samples counts days that reported any value for this metric.
func (m Metric) Samples() int { return m.samples }
