package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/wandistats/internal/models"
)

// StationDateKey maps an instant to the summary date it belongs to for a
// station: the calendar date in the station's time zone, as midnight UTC.
func (s *Store) StationDateKey(stationID string, t time.Time) (time.Time, error) {
	loc, err := s.StationLocation(stationID)
	if err != nil {
		return time.Time{}, err
	}
	return dayKey(t.In(loc)), nil
}

// dayKey is the calendar date of t in its own location, as midnight UTC.
func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const summaryColumns = `date, station_id,
	temp_max, temp_max_time, temp_min, temp_min_time, temp_avg,
	pressure_max, pressure_max_time, pressure_min, pressure_min_time, pressure_avg,
	humidity_max, humidity_max_time, humidity_min, humidity_min_time, humidity_avg,
	wind_speed_max, wind_speed_max_time, wind_speed_avg, wind_gust_max, wind_gust_max_time,
	rain_total, rain_rate_max, rain_rate_max_time`

func (s *Store) UpsertSummary(rec models.SummaryRecord) error {
	date := dayKey(rec.Date)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO daily_summaries (`+summaryColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, station_id) DO UPDATE SET
			temp_max = excluded.temp_max,
			temp_max_time = excluded.temp_max_time,
			temp_min = excluded.temp_min,
			temp_min_time = excluded.temp_min_time,
			temp_avg = excluded.temp_avg,
			pressure_max = excluded.pressure_max,
			pressure_max_time = excluded.pressure_max_time,
			pressure_min = excluded.pressure_min,
			pressure_min_time = excluded.pressure_min_time,
			pressure_avg = excluded.pressure_avg,
			humidity_max = excluded.humidity_max,
			humidity_max_time = excluded.humidity_max_time,
			humidity_min = excluded.humidity_min,
			humidity_min_time = excluded.humidity_min_time,
			humidity_avg = excluded.humidity_avg,
			wind_speed_max = excluded.wind_speed_max,
			wind_speed_max_time = excluded.wind_speed_max_time,
			wind_speed_avg = excluded.wind_speed_avg,
			wind_gust_max = excluded.wind_gust_max,
			wind_gust_max_time = excluded.wind_gust_max_time,
			rain_total = excluded.rain_total,
			rain_rate_max = excluded.rain_rate_max,
			rain_rate_max_time = excluded.rain_rate_max_time,
			updated_at = excluded.updated_at
	`, date, rec.StationID,
		rec.TempMax, rec.TempMaxTime, rec.TempMin, rec.TempMinTime, rec.TempAvg,
		rec.PressureMax, rec.PressureMaxTime, rec.PressureMin, rec.PressureMinTime, rec.PressureAvg,
		rec.HumidityMax, rec.HumidityMaxTime, rec.HumidityMin, rec.HumidityMinTime, rec.HumidityAvg,
		rec.WindSpeedMax, rec.WindSpeedMaxTime, rec.WindSpeedAvg, rec.WindGustMax, rec.WindGustMaxTime,
		rec.RainTotal, rec.RainRateMax, rec.RainRateMaxTime, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert summary %s %s: %w", rec.StationID, date.Format(time.DateOnly), err)
	}

	if _, err := tx.Exec(`DELETE FROM summary_hours WHERE date = ? AND station_id = ?`, date, rec.StationID); err != nil {
		return fmt.Errorf("clear summary hours: %w", err)
	}
	for h := 0; h < models.HoursPerDay; h++ {
		temp, rain := rec.HourlyTemp[h], rec.HourlyRain[h]
		if !temp.Valid && !rain.Valid {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO summary_hours (date, station_id, hour, temp_avg, rain) VALUES (?, ?, ?, ?, ?)`,
			date, rec.StationID, h, temp, rain); err != nil {
			return fmt.Errorf("insert summary hour %d: %w", h, err)
		}
	}

	return tx.Commit()
}

// GetSummaries returns the station's records dated start..end, oldest first,
// with hourly breakdowns attached. The bounds are read as calendar dates in
// their own location, which is what a resolved range carries.
func (s *Store) GetSummaries(stationID string, start, end time.Time) ([]models.SummaryRecord, error) {
	from, to := dayKey(start), dayKey(end)

	rows, err := s.db.Query(`
		SELECT `+summaryColumns+`
		FROM daily_summaries
		WHERE station_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, stationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.SummaryRecord
	index := make(map[string]int)
	for rows.Next() {
		var r models.SummaryRecord
		if err := rows.Scan(&r.Date, &r.StationID,
			&r.TempMax, &r.TempMaxTime, &r.TempMin, &r.TempMinTime, &r.TempAvg,
			&r.PressureMax, &r.PressureMaxTime, &r.PressureMin, &r.PressureMinTime, &r.PressureAvg,
			&r.HumidityMax, &r.HumidityMaxTime, &r.HumidityMin, &r.HumidityMinTime, &r.HumidityAvg,
			&r.WindSpeedMax, &r.WindSpeedMaxTime, &r.WindSpeedAvg, &r.WindGustMax, &r.WindGustMaxTime,
			&r.RainTotal, &r.RainRateMax, &r.RainRateMaxTime); err != nil {
			return nil, err
		}
		r.Date = r.Date.UTC()
		index[r.Date.Format(time.DateOnly)] = len(records)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	hours, err := s.db.Query(`
		SELECT date, hour, temp_avg, rain
		FROM summary_hours
		WHERE station_id = ? AND date >= ? AND date <= ?
	`, stationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query summary hours: %w", err)
	}
	defer hours.Close()

	for hours.Next() {
		var date time.Time
		var hour int
		var temp, rain sql.NullFloat64
		if err := hours.Scan(&date, &hour, &temp, &rain); err != nil {
			return nil, err
		}
		i, ok := index[date.UTC().Format(time.DateOnly)]
		if !ok || hour < 0 || hour >= models.HoursPerDay {
			continue
		}
		records[i].HourlyTemp[hour] = temp
		records[i].HourlyRain[hour] = rain
	}
	return records, hours.Err()
}

// GetSummaryDates lists the dates that have a stored summary for the station.
func (s *Store) GetSummaryDates(stationID string) ([]time.Time, error) {
	rows, err := s.db.Query(`SELECT SUBSTR(date, 1, 10) FROM daily_summaries WHERE station_id = ? ORDER BY date ASC`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, err
		}
		date, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse summary date %q: %w", dateStr, err)
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}

// GetLatestSummaryDate returns the newest stored date for the station, or the
// zero time when there are none.
func (s *Store) GetLatestSummaryDate(stationID string) (time.Time, error) {
	var dateStr sql.NullString
	err := s.db.QueryRow(`SELECT MAX(SUBSTR(date, 1, 10)) FROM daily_summaries WHERE station_id = ?`, stationID).Scan(&dateStr)
	if err != nil || !dateStr.Valid {
		return time.Time{}, err
	}
	return time.Parse(time.DateOnly, dateStr.String)
}
