package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/wandistats/internal/models"
)

// ErrStationNotFound is returned by lookups that require a known station.
var ErrStationNotFound = errors.New("station not found")

type Store struct {
	db  *sql.DB
	loc *time.Location
	log zerolog.Logger
}

func New(db *sql.DB, loc *time.Location, logger zerolog.Logger) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc, log: logger.With().Str("component", "store").Logger()}
}

// Location is the zone that summary dates are interpreted in.
func (s *Store) Location() *time.Location {
	return s.loc
}

const stationColumns = `station_id, name, latitude, longitude, elevation, is_primary, active`

func scanStation(row interface{ Scan(...any) error }) (models.Station, error) {
	var st models.Station
	err := row.Scan(&st.StationID, &st.Name, &st.Latitude, &st.Longitude, &st.Elevation, &st.IsPrimary, &st.Active)
	return st, err
}

func (s *Store) UpsertStation(st models.Station) error {
	_, err := s.db.Exec(`
		INSERT INTO stations (station_id, name, latitude, longitude, elevation, is_primary, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			elevation = excluded.elevation,
			is_primary = excluded.is_primary,
			active = excluded.active
	`, st.StationID, st.Name, st.Latitude, st.Longitude, st.Elevation, st.IsPrimary, st.Active)
	return err
}

func (s *Store) GetActiveStations() ([]models.Station, error) {
	rows, err := s.db.Query(`SELECT ` + stationColumns + ` FROM stations WHERE active = TRUE ORDER BY is_primary DESC, station_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// GetStation returns nil when the station is unknown.
func (s *Store) GetStation(stationID string) (*models.Station, error) {
	st, err := scanStation(s.db.QueryRow(`SELECT `+stationColumns+` FROM stations WHERE station_id = ?`, stationID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// RequireStation is GetStation that treats an unknown station as an error.
func (s *Store) RequireStation(stationID string) (*models.Station, error) {
	st, err := s.GetStation(stationID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}
	return st, nil
}

func (s *Store) GetPrimaryStation() (*models.Station, error) {
	st, err := scanStation(s.db.QueryRow(`SELECT ` + stationColumns + ` FROM stations WHERE is_primary = TRUE AND active = TRUE LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetSettings returns the station's settings, or the defaults when none have
// been saved.
func (s *Store) GetSettings(stationID string) (models.StationSettings, error) {
	settings := models.DefaultSettings(stationID)
	var seasonStart, wyStart int
	err := s.db.QueryRow(`
		SELECT timezone, season_start_month, southern_seasons, weather_year_start
		FROM station_settings WHERE station_id = ?
	`, stationID).Scan(&settings.Timezone, &seasonStart, &settings.SouthernSeasons, &wyStart)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("get settings %s: %w", stationID, err)
	}
	settings.SeasonStartMonth = time.Month(seasonStart)
	settings.WeatherYearStart = time.Month(wyStart)
	return settings, nil
}

// StationLocation loads the time zone configured for the station.
func (s *Store) StationLocation(stationID string) (*time.Location, error) {
	settings, err := s.GetSettings(stationID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return nil, fmt.Errorf("station %s timezone %q: %w", stationID, settings.Timezone, err)
	}
	return loc, nil
}

func (s *Store) UpsertSettings(st models.StationSettings) error {
	if _, err := time.LoadLocation(st.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", st.Timezone, err)
	}
	for _, m := range []time.Month{st.SeasonStartMonth, st.WeatherYearStart} {
		if m < time.January || m > time.December {
			return fmt.Errorf("invalid month %d", m)
		}
	}
	_, err := s.db.Exec(`
		INSERT INTO station_settings (station_id, timezone, season_start_month, southern_seasons, weather_year_start)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			timezone = excluded.timezone,
			season_start_month = excluded.season_start_month,
			southern_seasons = excluded.southern_seasons,
			weather_year_start = excluded.weather_year_start
	`, st.StationID, st.Timezone, int(st.SeasonStartMonth), st.SouthernSeasons, int(st.WeatherYearStart))
	return err
}

// GetSpeedBins returns the station's wind speed bins in order, falling back
// to the defaults when none are configured.
func (s *Store) GetSpeedBins(stationID string) ([]models.SpeedBin, error) {
	rows, err := s.db.Query(`SELECT name, min_speed, max_speed FROM speed_bins WHERE station_id = ? ORDER BY position ASC`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bins []models.SpeedBin
	for rows.Next() {
		var b models.SpeedBin
		if err := rows.Scan(&b.Name, &b.Min, &b.Max); err != nil {
			return nil, err
		}
		bins = append(bins, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bins) == 0 {
		return models.DefaultSpeedBins(), nil
	}
	return bins, nil
}

func (s *Store) ReplaceSpeedBins(stationID string, bins []models.SpeedBin) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM speed_bins WHERE station_id = ?`, stationID); err != nil {
		return fmt.Errorf("clear speed bins: %w", err)
	}
	for i, b := range bins {
		if b.Max != 0 && b.Max <= b.Min {
			return fmt.Errorf("speed bin %q: max %.1f <= min %.1f", b.Name, b.Max, b.Min)
		}
		if _, err := tx.Exec(`INSERT INTO speed_bins (station_id, position, name, min_speed, max_speed) VALUES (?, ?, ?, ?, ?)`,
			stationID, i, b.Name, b.Min, b.Max); err != nil {
			return fmt.Errorf("insert speed bin %q: %w", b.Name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetThresholdBins(stationID string) ([]models.ThresholdBin, error) {
	rows, err := s.db.Query(`SELECT name, field, direction, threshold FROM threshold_bins WHERE station_id = ? ORDER BY position ASC`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bins []models.ThresholdBin
	for rows.Next() {
		var b models.ThresholdBin
		if err := rows.Scan(&b.Name, &b.Field, &b.Direction, &b.Threshold); err != nil {
			return nil, err
		}
		bins = append(bins, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bins) == 0 {
		return models.DefaultThresholdBins(), nil
	}
	return bins, nil
}

func (s *Store) ReplaceThresholdBins(stationID string, bins []models.ThresholdBin) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM threshold_bins WHERE station_id = ?`, stationID); err != nil {
		return fmt.Errorf("clear threshold bins: %w", err)
	}
	for i, b := range bins {
		switch b.Field {
		case models.FieldHigh, models.FieldLow, models.FieldMean:
		default:
			return fmt.Errorf("threshold bin %q: unknown field %q", b.Name, b.Field)
		}
		if b.Direction != models.Above && b.Direction != models.Below {
			return fmt.Errorf("threshold bin %q: unknown direction %q", b.Name, b.Direction)
		}
		if _, err := tx.Exec(`INSERT INTO threshold_bins (station_id, position, name, field, direction, threshold) VALUES (?, ?, ?, ?, ?, ?)`,
			stationID, i, b.Name, string(b.Field), string(b.Direction), b.Threshold); err != nil {
			return fmt.Errorf("insert threshold bin %q: %w", b.Name, err)
		}
	}
	return tx.Commit()
}
