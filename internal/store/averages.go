package store

import (
	"fmt"
	"time"

	"github.com/lox/wandistats/internal/models"
)

// ReplaceAverages swaps the station's climate normals for avgs.
func (s *Store) ReplaceAverages(stationID string, avgs []models.WeatherAverage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM weather_averages WHERE station_id = ?`, stationID); err != nil {
		return fmt.Errorf("clear averages: %w", err)
	}
	for _, a := range avgs {
		if _, err := tx.Exec(`
			INSERT INTO weather_averages (station_id, month, day, temp_high, temp_low, temp_mean, rain)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(station_id, month, day) DO UPDATE SET
				temp_high = excluded.temp_high,
				temp_low = excluded.temp_low,
				temp_mean = excluded.temp_mean,
				rain = excluded.rain
		`, stationID, int(a.Month), a.Day, a.TempHigh, a.TempLow, a.TempMean, a.Rain); err != nil {
			return fmt.Errorf("insert average %02d-%02d: %w", a.Month, a.Day, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetAverages(stationID string) (*models.WeatherAverages, error) {
	rows, err := s.db.Query(`
		SELECT month, day, temp_high, temp_low, temp_mean, rain
		FROM weather_averages
		WHERE station_id = ?
		ORDER BY month, day
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var avgs []models.WeatherAverage
	for rows.Next() {
		var a models.WeatherAverage
		var month int
		if err := rows.Scan(&month, &a.Day, &a.TempHigh, &a.TempLow, &a.TempMean, &a.Rain); err != nil {
			return nil, err
		}
		a.Month = time.Month(month)
		avgs = append(avgs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return models.NewWeatherAverages(avgs), nil
}
