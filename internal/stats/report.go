package stats

import "time"

// Report is a flat, JSON-friendly view of a Statistics rollup. Absent values
// are nil.
type Report struct {
	From time.Time `json:"from,omitzero"`
	To   time.Time `json:"to,omitzero"`
	Days int       `json:"days"`

	Temperature MetricReport `json:"temperature"`
	Pressure    MetricReport `json:"pressure"`
	Humidity    MetricReport `json:"humidity"`
	WindSpeed   MetricReport `json:"wind_speed"`
	WindGust    MetricReport `json:"wind_gust"`
	Rain        RainReport   `json:"rain"`

	HighDeviation *float64 `json:"high_deviation,omitempty"`
	LowDeviation  *float64 `json:"low_deviation,omitempty"`
	MeanDeviation *float64 `json:"mean_deviation,omitempty"`

	Thresholds []ThresholdCount `json:"thresholds,omitempty"`
	SpeedBins  []SpeedCount     `json:"speed_bins,omitempty"`
}

type MetricReport struct {
	Min           *Extreme `json:"min,omitempty"`
	Max           *Extreme `json:"max,omitempty"`
	Mean          *float64 `json:"mean,omitempty"`
	MeanHigh      *float64 `json:"mean_high,omitempty"`
	MeanLow       *float64 `json:"mean_low,omitempty"`
	SmallestRange *Extreme `json:"smallest_range,omitempty"`
	LargestRange  *Extreme `json:"largest_range,omitempty"`
	Samples       int      `json:"samples"`
}

type RainReport struct {
	Total      float64  `json:"total"`
	Days       int      `json:"days"`
	RainDays   int      `json:"rain_days"`
	WettestDay *Extreme `json:"wettest_day,omitempty"`
	MaxRate    *Extreme `json:"max_rate,omitempty"`
	Normal     *float64 `json:"normal,omitempty"`
	Anomaly    *float64 `json:"anomaly,omitempty"`
}

func (m Metric) report() MetricReport {
	return MetricReport{
		Min:           m.Min(),
		Max:           m.Max(),
		Mean:          m.mean.ptr(),
		MeanHigh:      m.meanHigh.ptr(),
		MeanLow:       m.meanLow.ptr(),
		SmallestRange: m.SmallestRange(),
		LargestRange:  m.LargestRange(),
		Samples:       m.samples,
	}
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func (s *Statistics) Report() Report {
	r := Report{
		Days:          s.days,
		Temperature:   s.Temperature.report(),
		Pressure:      s.Pressure.report(),
		Humidity:      s.Humidity.report(),
		WindSpeed:     s.WindSpeed.report(),
		WindGust:      s.WindGust.report(),
		HighDeviation: s.highDeviation.ptr(),
		LowDeviation:  s.lowDeviation.ptr(),
		MeanDeviation: s.meanDeviation.ptr(),
		Thresholds:    s.Thresholds(),
		SpeedBins:     s.SpeedBins(),
		Rain: RainReport{
			Total:      s.Rain.Total(),
			Days:       s.Rain.Days(),
			RainDays:   s.Rain.RainDays(),
			WettestDay: s.Rain.WettestDay(),
			MaxRate:    s.Rain.MaxRate(),
			Normal:     optional(s.Rain.Normal()),
			Anomaly:    optional(s.Rain.Anomaly()),
		},
	}
	if first, last, ok := s.Span(); ok {
		r.From, r.To = first, last
	}
	return r
}
