package repository

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flybeeper/routecast/pkg/utils"
)

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS saved_routes (
			id           TEXT    NOT NULL PRIMARY KEY,
			user_id      INTEGER NOT NULL,
			name         TEXT    NOT NULL,
			display_name TEXT    NOT NULL,
			gpx          BLOB    NOT NULL,
			size_bytes   INTEGER NOT NULL,
			uploaded_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_saved_routes_user ON saved_routes (user_id, uploaded_at)`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id         INTEGER NOT NULL PRIMARY KEY,
			provider        TEXT    NOT NULL,
			speed_kmh       REAL    NOT NULL,
			max_calls       INTEGER NOT NULL,
			min_spacing_m   REAL    NOT NULL,
			min_spacing_min REAL    NOT NULL,
			max_rain_mm_hr  REAL    NOT NULL,
			max_wind_kmh    REAL    NOT NULL,
			max_gust_kmh    REAL    NOT NULL,
			max_temp_c      REAL    NOT NULL,
			min_temp_c      REAL    NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
	},
	upsertSettings: `
		INSERT INTO user_settings (user_id, provider, speed_kmh, max_calls, min_spacing_m, min_spacing_min,
			max_rain_mm_hr, max_wind_kmh, max_gust_kmh, max_temp_c, min_temp_c, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			provider = excluded.provider, speed_kmh = excluded.speed_kmh, max_calls = excluded.max_calls,
			min_spacing_m = excluded.min_spacing_m, min_spacing_min = excluded.min_spacing_min,
			max_rain_mm_hr = excluded.max_rain_mm_hr, max_wind_kmh = excluded.max_wind_kmh,
			max_gust_kmh = excluded.max_gust_kmh, max_temp_c = excluded.max_temp_c,
			min_temp_c = excluded.min_temp_c, updated_at = excluded.updated_at`,
}

// NewSQLiteRouteStore открывает встроенную базу SQLite (WAL, внешние ключи)
func NewSQLiteRouteStore(path string, logger *utils.Logger) (*SQLRouteStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path+"?_journal=WAL&_fk=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newSQLRouteStore(db, sqliteDialect, logger), nil
}
