package stats

import (
	"context"
	"database/sql"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/wandistats/internal/models"
)

func nf(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func nt(t time.Time) sql.NullTime { return sql.NullTime{Time: t, Valid: true} }

func day(n int) time.Time { return time.Date(2026, time.January, n, 0, 0, 0, 0, time.UTC) }

func TestAggregate_TemperatureExample(t *testing.T) {
	lows := []float64{19.0, 19.1, 18.9}
	highs := []float64{22.0, 22.2, 21.8}

	var recs []models.SummaryRecord
	for i := range lows {
		d := day(i + 1)
		recs = append(recs, models.SummaryRecord{
			Date:        d,
			TempMin:     nf(lows[i]),
			TempMinTime: nt(d.Add(5 * time.Hour)),
			TempMax:     nf(highs[i]),
			TempMaxTime: nt(d.Add(15 * time.Hour)),
		})
	}

	s := (&Aggregator{}).Aggregate(recs)

	low := s.Temperature.Min()
	require.NotNil(t, low)
	assert.Equal(t, 18.9, low.Value)
	assert.Equal(t, day(3).Add(5*time.Hour), low.At)
	require.NotNil(t, low.RunnerUp)
	assert.Equal(t, 19.0, low.RunnerUp.Value)

	high := s.Temperature.Max()
	require.NotNil(t, high)
	assert.Equal(t, 22.2, high.Value)
	assert.Equal(t, day(2).Add(15*time.Hour), high.At)

	avgLow, ok := s.Temperature.MeanLow()
	require.True(t, ok)
	assert.Equal(t, 19.0, avgLow)

	_, ok = s.Temperature.Mean()
	assert.False(t, ok, "no daily means were supplied")

	narrow := s.Temperature.SmallestRange()
	require.NotNil(t, narrow)
	assert.InDelta(t, 2.9, narrow.Value, 1e-9)
	assert.Equal(t, day(3), narrow.At)

	wide := s.Temperature.LargestRange()
	require.NotNil(t, wide)
	assert.InDelta(t, 3.1, wide.Value, 1e-9)
	assert.Equal(t, day(2), wide.At)
}

func TestAggregate_RainfallExample(t *testing.T) {
	amounts := []float64{3.0, 2.0, 0.0, 1.0}
	var recs []models.SummaryRecord
	for i, a := range amounts {
		recs = append(recs, models.SummaryRecord{Date: day(i + 1), RainTotal: nf(a)})
	}

	s := (&Aggregator{}).Aggregate(recs)

	assert.Equal(t, 6.0, s.Rain.Total())
	assert.Equal(t, 3, s.Rain.RainDays())
	assert.Equal(t, 4, s.Rain.Days())
	wettest := s.Rain.WettestDay()
	require.NotNil(t, wettest)
	assert.Equal(t, 3.0, wettest.Value)
	assert.Equal(t, day(1), wettest.At)
}

func TestAggregate_SkipsNulls(t *testing.T) {
	var recs []models.SummaryRecord
	for i := 0; i < 10; i++ {
		rec := models.SummaryRecord{Date: day(i + 1)}
		if i%2 == 0 {
			rec.HumidityAvg = nf(float64(60 + i))
		}
		recs = append(recs, rec)
	}

	s := (&Aggregator{}).Aggregate(recs)

	avg, ok := s.Humidity.Mean()
	require.True(t, ok)
	// 60, 62, 64, 66, 68
	assert.Equal(t, 64.0, avg)
	assert.Equal(t, 5, s.Humidity.mean.Count())
	assert.Equal(t, 5, s.Humidity.Samples())
	assert.Equal(t, 10, s.Days())
}

func TestAggregate_Empty(t *testing.T) {
	s := (&Aggregator{Thresholds: models.DefaultThresholdBins()}).Aggregate(nil)

	assert.Zero(t, s.Days())
	assert.Nil(t, s.Temperature.Min())
	assert.Nil(t, s.Temperature.Max())
	assert.Nil(t, s.Pressure.LargestRange())
	assert.Nil(t, s.Rain.WettestDay())
	assert.Nil(t, s.Rain.MaxRate())
	_, ok := s.Temperature.Mean()
	assert.False(t, ok)
	_, _, ok = s.Span()
	assert.False(t, ok)

	r := s.Report()
	assert.Nil(t, r.Temperature.Mean)
	assert.Len(t, r.Thresholds, 3)
}

func TestAggregate_TieKeepsFirst(t *testing.T) {
	recs := []models.SummaryRecord{
		{Date: day(1), WindGustMax: nf(40)},
		{Date: day(2), WindGustMax: nf(55)},
		{Date: day(3), WindGustMax: nf(55)},
		{Date: day(4), WindGustMax: nf(55)},
	}
	s := (&Aggregator{}).Aggregate(recs)

	gust := s.WindGust.Max()
	require.NotNil(t, gust)
	assert.Equal(t, day(2), gust.At, "first record wins the tie")
	require.NotNil(t, gust.RunnerUp)
	assert.Equal(t, day(3), gust.RunnerUp.At)

	for split := 0; split <= len(recs); split++ {
		left := (&Aggregator{}).Aggregate(recs[:split])
		right := (&Aggregator{}).Aggregate(recs[split:])
		require.NoError(t, left.Merge(right))
		assert.Equal(t, day(2), left.WindGust.Max().At, "split at %d", split)
	}
}

func TestAggregate_RainRateFallsBackToHourly(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Melbourne")
	require.NoError(t, err)

	rec := models.SummaryRecord{Date: day(5)}
	rec.HourlyRain[3] = nf(1.2)
	rec.HourlyRain[14] = nf(4.4)
	rec.HourlyRain[15] = nf(4.4)

	s := (&Aggregator{Location: loc}).Aggregate([]models.SummaryRecord{rec})

	rate := s.Rain.MaxRate()
	require.NotNil(t, rate)
	assert.Equal(t, 4.4, rate.Value)
	assert.Equal(t, time.Date(2026, 1, 5, 14, 0, 0, 0, loc), rate.At)
	assert.InDelta(t, 10.0, s.Rain.Total(), 1e-9, "total derived from hours")
}

func TestAggregate_Bins(t *testing.T) {
	agg := &Aggregator{
		Thresholds: []models.ThresholdBin{
			{Name: "hot", Field: models.FieldHigh, Direction: models.Above, Threshold: 30},
			{Name: "frost", Field: models.FieldLow, Direction: models.Below, Threshold: 0},
		},
		SpeedBins: []models.SpeedBin{
			{Name: "calm", Min: 0, Max: 5},
			{Name: "breezy", Min: 5},
		},
	}

	hot := models.SummaryRecord{Date: day(1), TempMax: nf(33), TempMin: nf(15), WindSpeedAvg: nf(5)}
	for h := 0; h < 24; h++ {
		hot.HourlyTemp[h] = nf(20)
	}
	for h := 12; h < 17; h++ {
		hot.HourlyTemp[h] = nf(31)
	}
	exactly := models.SummaryRecord{Date: day(2), TempMax: nf(30), TempMin: nf(0), WindSpeedAvg: nf(4.9)}
	frosty := models.SummaryRecord{Date: day(3), TempMax: nf(8), TempMin: nf(-2.5)}
	frosty.HourlyTemp[5] = nf(-1)
	frosty.HourlyTemp[6] = nf(-0.5)

	s := agg.Aggregate([]models.SummaryRecord{hot, exactly, frosty})

	th := s.Thresholds()
	require.Len(t, th, 2)
	assert.Equal(t, 1, th[0].Days, "threshold is strict")
	assert.Equal(t, 5*time.Hour, th[0].Duration())
	assert.Equal(t, 1, th[1].Days)
	assert.Equal(t, 2*time.Hour, th[1].Duration())

	sp := s.SpeedBins()
	require.Len(t, sp, 2)
	assert.Equal(t, 1, sp[0].Days)
	assert.Equal(t, 1, sp[1].Days)
}

func TestAggregate_Baseline(t *testing.T) {
	normals := models.NewWeatherAverages([]models.WeatherAverage{
		{Month: time.January, Day: 1, TempHigh: nf(25), TempLow: nf(10), Rain: nf(1.5)},
		{Month: time.January, Day: 2, TempHigh: nf(25), TempLow: nf(10), Rain: nf(1.5)},
	})
	agg := &Aggregator{Normals: normals}

	s := agg.Aggregate([]models.SummaryRecord{
		{Date: day(1), TempMax: nf(28), TempMin: nf(11), RainTotal: nf(0)},
		{Date: day(2), TempMax: nf(24), TempMin: nf(12), RainTotal: nf(5)},
		{Date: day(3), TempMax: nf(40), TempMin: nf(30), RainTotal: nf(1)},
	})

	hd, ok := s.HighDeviation()
	require.True(t, ok)
	assert.Equal(t, 1.0, hd)
	ld, ok := s.LowDeviation()
	require.True(t, ok)
	assert.Equal(t, 1.5, ld)
	_, ok = s.MeanDeviation()
	assert.False(t, ok)

	normal, ok := s.Rain.Normal()
	require.True(t, ok)
	assert.Equal(t, 3.0, normal)
	anomaly, ok := s.Rain.Anomaly()
	require.True(t, ok)
	assert.Equal(t, 2.0, anomaly, "day 3 has no normal")
}

func TestAggregate_RainAnomalyPairsDays(t *testing.T) {
	normals := models.NewWeatherAverages([]models.WeatherAverage{
		{Month: time.January, Day: 1, Rain: nf(2)},
		{Month: time.January, Day: 2, Rain: nf(2)},
	})
	agg := &Aggregator{Normals: normals}

	records := []models.SummaryRecord{
		{Date: day(1), RainTotal: nf(2)},
		{Date: day(2)},
		{Date: day(3), RainTotal: nf(10)},
	}
	s := agg.Aggregate(records)

	assert.Equal(t, 12.0, s.Rain.Total())
	normal, ok := s.Rain.Normal()
	require.True(t, ok)
	assert.Equal(t, 2.0, normal)
	anomaly, ok := s.Rain.Anomaly()
	require.True(t, ok)
	assert.Equal(t, 0.0, anomaly)

	merged := agg.Aggregate(records[:1])
	require.NoError(t, merged.Merge(agg.Aggregate(records[1:])))
	got, _ := merged.Rain.Anomaly()
	assert.Equal(t, anomaly, got)

	_, ok = agg.Aggregate(records[1:2]).Rain.Normal()
	assert.False(t, ok, "no reading, no normal")
}

func randomRecords(n int, seed uint64) []models.SummaryRecord {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	maybe := func(v float64) sql.NullFloat64 {
		if rng.IntN(5) == 0 {
			return sql.NullFloat64{}
		}
		return nf(float64(int(v*10)) / 10)
	}
	out := make([]models.SummaryRecord, n)
	for i := range out {
		d := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		low := rng.Float64()*20 - 5
		rec := models.SummaryRecord{
			Date:         d,
			TempMin:      maybe(low),
			TempMinTime:  nt(d.Add(time.Duration(rng.IntN(24)) * time.Hour)),
			TempMax:      maybe(low + rng.Float64()*15),
			TempAvg:      maybe(low + 5),
			PressureMin:  maybe(990 + rng.Float64()*10),
			PressureMax:  maybe(1005 + rng.Float64()*20),
			PressureAvg:  maybe(1008),
			HumidityMin:  maybe(30 + rng.Float64()*20),
			HumidityMax:  maybe(60 + rng.Float64()*40),
			HumidityAvg:  maybe(55 + rng.Float64()*10),
			WindSpeedMax: maybe(rng.Float64() * 40),
			WindSpeedAvg: maybe(rng.Float64() * 15),
			WindGustMax:  maybe(rng.Float64() * 80),
			RainTotal:    maybe(float64(rng.IntN(4)) * rng.Float64() * 10),
		}
		for h := range rec.HourlyTemp {
			rec.HourlyTemp[h] = maybe(low + float64(h)/2)
			rec.HourlyRain[h] = maybe(float64(rng.IntN(3)) * 0.2)
		}
		out[i] = rec
	}
	return out
}

func testAggregator() *Aggregator {
	return &Aggregator{
		Thresholds: models.DefaultThresholdBins(),
		SpeedBins:  models.DefaultSpeedBins(),
		Normals: models.NewWeatherAverages([]models.WeatherAverage{
			{Month: time.January, Day: 10, TempHigh: nf(20), TempLow: nf(5), TempMean: nf(12), Rain: nf(2)},
			{Month: time.March, Day: 3, TempHigh: nf(18), TempLow: nf(4), TempMean: nf(11), Rain: nf(1.1)},
		}),
	}
}

func TestMerge_MatchesSequentialFold(t *testing.T) {
	agg := testAggregator()
	recs := randomRecords(90, 7)
	want := agg.Aggregate(recs).Report()

	for _, split := range []int{0, 1, 17, 45, 89, 90} {
		left := agg.Aggregate(recs[:split])
		right := agg.Aggregate(recs[split:])
		require.NoError(t, left.Merge(right))
		assert.Equal(t, want, left.Report(), "split at %d", split)
	}

	// three-way grouping: (a+b)+c == a+(b+c)
	a, b, c := agg.Aggregate(recs[:30]), agg.Aggregate(recs[30:60]), agg.Aggregate(recs[60:])
	bc := agg.Aggregate(recs[30:60])
	require.NoError(t, bc.Merge(agg.Aggregate(recs[60:])))
	require.NoError(t, a.Merge(b))
	require.NoError(t, a.Merge(c))
	ab := a

	a2 := agg.Aggregate(recs[:30])
	require.NoError(t, a2.Merge(bc))
	assert.Equal(t, ab.Report(), a2.Report())
}

func TestAggregateParallel_Deterministic(t *testing.T) {
	agg := testAggregator()
	recs := randomRecords(365, 42)
	want := agg.Aggregate(recs).Report()

	for _, workers := range []int{0, 1, 2, 3, 7, 16} {
		got, err := agg.AggregateParallel(context.Background(), recs, workers)
		require.NoError(t, err)
		assert.Equal(t, want, got.Report(), "workers=%d", workers)
	}
}

func TestAggregateParallel_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testAggregator().AggregateParallel(ctx, randomRecords(100, 1), 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge_Incompatible(t *testing.T) {
	a := (&Aggregator{SpeedBins: models.DefaultSpeedBins()}).New()
	b := (&Aggregator{}).New()
	assert.ErrorIs(t, a.Merge(b), ErrIncompatible)
	assert.NoError(t, a.Merge(nil))
}
