package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/flybeeper/routecast/internal/config"
	"github.com/flybeeper/routecast/pkg/utils"
)

var mysqlDialect = dialect{
	driver: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS saved_routes (
			id           VARCHAR(36)  NOT NULL PRIMARY KEY,
			user_id      INT          NOT NULL,
			name         VARCHAR(255) NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			gpx          LONGBLOB     NOT NULL,
			size_bytes   INT          NOT NULL,
			uploaded_at  BIGINT       NOT NULL,
			INDEX idx_saved_routes_user (user_id, uploaded_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id         INT         NOT NULL PRIMARY KEY,
			provider        VARCHAR(32) NOT NULL,
			speed_kmh       DOUBLE      NOT NULL,
			max_calls       INT         NOT NULL,
			min_spacing_m   DOUBLE      NOT NULL,
			min_spacing_min DOUBLE      NOT NULL,
			max_rain_mm_hr  DOUBLE      NOT NULL,
			max_wind_kmh    DOUBLE      NOT NULL,
			max_gust_kmh    DOUBLE      NOT NULL,
			max_temp_c      DOUBLE      NOT NULL,
			min_temp_c      DOUBLE      NOT NULL,
			updated_at      BIGINT      NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	upsertSettings: `
		INSERT INTO user_settings (user_id, provider, speed_kmh, max_calls, min_spacing_m, min_spacing_min,
			max_rain_mm_hr, max_wind_kmh, max_gust_kmh, max_temp_c, min_temp_c, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			provider = VALUES(provider), speed_kmh = VALUES(speed_kmh), max_calls = VALUES(max_calls),
			min_spacing_m = VALUES(min_spacing_m), min_spacing_min = VALUES(min_spacing_min),
			max_rain_mm_hr = VALUES(max_rain_mm_hr), max_wind_kmh = VALUES(max_wind_kmh),
			max_gust_kmh = VALUES(max_gust_kmh), max_temp_c = VALUES(max_temp_c),
			min_temp_c = VALUES(min_temp_c), updated_at = VALUES(updated_at)`,
}

// NewMySQLRouteStore создает хранилище маршрутов в MySQL
func NewMySQLRouteStore(cfg *config.StoreConfig, logger *utils.Logger) (*SQLRouteStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}

	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	// Переименование в то же имя должно считаться найденной строкой
	dsn.ClientFoundRows = true

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	return newSQLRouteStore(db, mysqlDialect, logger), nil
}
