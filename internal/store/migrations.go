package store

import (
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS stations (
    station_id TEXT PRIMARY KEY,
    name TEXT,
    latitude REAL,
    longitude REAL,
    elevation REAL,
    is_primary BOOLEAN DEFAULT FALSE,
    active BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS station_settings (
    station_id TEXT PRIMARY KEY REFERENCES stations(station_id),
    timezone TEXT NOT NULL DEFAULT 'UTC',
    season_start_month INTEGER NOT NULL DEFAULT 12,
    southern_seasons BOOLEAN NOT NULL DEFAULT FALSE,
    weather_year_start INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS daily_summaries (
    date DATE NOT NULL,
    station_id TEXT NOT NULL,
    temp_max REAL,
    temp_max_time DATETIME,
    temp_min REAL,
    temp_min_time DATETIME,
    temp_avg REAL,
    pressure_max REAL,
    pressure_max_time DATETIME,
    pressure_min REAL,
    pressure_min_time DATETIME,
    pressure_avg REAL,
    humidity_max REAL,
    humidity_max_time DATETIME,
    humidity_min REAL,
    humidity_min_time DATETIME,
    humidity_avg REAL,
    wind_speed_max REAL,
    wind_speed_max_time DATETIME,
    wind_speed_avg REAL,
    wind_gust_max REAL,
    wind_gust_max_time DATETIME,
    rain_total REAL,
    rain_rate_max REAL,
    rain_rate_max_time DATETIME,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (date, station_id)
);

CREATE TABLE IF NOT EXISTS summary_hours (
    date DATE NOT NULL,
    station_id TEXT NOT NULL,
    hour INTEGER NOT NULL,
    temp_avg REAL,
    rain REAL,
    PRIMARY KEY (date, station_id, hour)
);

CREATE INDEX IF NOT EXISTS idx_summaries_station_date ON daily_summaries(station_id, date);
`,
	},
	{
		Version:     2,
		Description: "Add climate normals",
		SQL: `
CREATE TABLE IF NOT EXISTS weather_averages (
    station_id TEXT NOT NULL,
    month INTEGER NOT NULL,
    day INTEGER NOT NULL,
    temp_high REAL,
    temp_low REAL,
    temp_mean REAL,
    rain REAL,
    PRIMARY KEY (station_id, month, day)
);
`,
	},
	{
		Version:     3,
		Description: "Add wind speed and temperature threshold bins",
		SQL: `
CREATE TABLE IF NOT EXISTS speed_bins (
    station_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    min_speed REAL NOT NULL,
    max_speed REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (station_id, position)
);

CREATE TABLE IF NOT EXISTS threshold_bins (
    station_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    field TEXT NOT NULL,
    direction TEXT NOT NULL,
    threshold REAL NOT NULL,
    PRIMARY KEY (station_id, position)
);
`,
	},
	{
		Version:     4,
		Description: "Add ingest_runs for fetch auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    source TEXT NOT NULL,
    station_id TEXT,
    day DATE,
    records_stored INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`,
	},
	{
		Version:     5,
		Description: "Archive raw PWS history responses",
		SQL: `
CREATE TABLE IF NOT EXISTS raw_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ingest_run_id INTEGER REFERENCES ingest_runs(id),
    fetched_at DATETIME NOT NULL,
    source TEXT NOT NULL,
    station_id TEXT NOT NULL,
    day DATE NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_raw_payloads_station_day ON raw_payloads(station_id, day);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("description", m.Description).Msg("migrations: applying")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
