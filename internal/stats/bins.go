package stats

import (
	"database/sql"
	"time"

	"github.com/lox/wandistats/internal/models"
)

// ThresholdCount tallies how often a temperature threshold was crossed.
type ThresholdCount struct {
	Bin   models.ThresholdBin `json:"bin"`
	Days  int                 `json:"days"`
	Hours int                 `json:"hours"`
}

// Duration is the cumulative time-in-state from the hourly breakdown.
func (c ThresholdCount) Duration() time.Duration {
	return time.Duration(c.Hours) * time.Hour
}

type SpeedCount struct {
	Bin  models.SpeedBin `json:"bin"`
	Days int             `json:"days"`
}

func fieldValue(rec models.SummaryRecord, f models.TempField) sql.NullFloat64 {
	switch f {
	case models.FieldLow:
		return rec.TempMin
	case models.FieldMean:
		return rec.TempAvg
	default:
		return rec.TempMax
	}
}

func (c *ThresholdCount) observe(rec models.SummaryRecord) {
	if v := fieldValue(rec, c.Bin.Field); v.Valid && c.Bin.Matches(v.Float64) {
		c.Days++
	}
	for _, h := range rec.HourlyTemp {
		if h.Valid && c.Bin.Matches(h.Float64) {
			c.Hours++
		}
	}
}

func (c *SpeedCount) observe(rec models.SummaryRecord) {
	if rec.WindSpeedAvg.Valid && c.Bin.Contains(rec.WindSpeedAvg.Float64) {
		c.Days++
	}
}
