package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/pkg/utils"
)

// dialect различия SQL между драйверами
type dialect struct {
	driver         string
	schema         []string
	upsertSettings string
}

// SQLRouteStore маршруты и настройки пользователей в SQL базе.
// Времена хранятся как unix секунды, одинаково для MySQL и SQLite.
type SQLRouteStore struct {
	db      *sql.DB
	logger  *utils.Logger
	dialect dialect
	now     func() time.Time
}

func newSQLRouteStore(db *sql.DB, d dialect, logger *utils.Logger) *SQLRouteStore {
	return &SQLRouteStore{db: db, logger: logger, dialect: d, now: time.Now}
}

// EnsureSchema создает таблицы, если их нет
func (s *SQLRouteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %s schema: %w", s.dialect.driver, err)
		}
	}
	return nil
}

// Ping проверяет соединение
func (s *SQLRouteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает соединение
func (s *SQLRouteStore) Close() error {
	return s.db.Close()
}

// Driver имя драйвера
func (s *SQLRouteStore) Driver() string {
	return s.dialect.driver
}

func (s *SQLRouteStore) observe(op string, start time.Time, err error) {
	metrics.StoreOperationDuration.WithLabelValues(s.dialect.driver, op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.StoreOperationErrors.WithLabelValues(s.dialect.driver, op).Inc()
	}
}

// ListRoutes маршруты пользователя, новые первыми, без содержимого GPX
func (s *SQLRouteStore) ListRoutes(ctx context.Context, userID int) (routes []*models.SavedRoute, err error) {
	defer func(start time.Time) { s.observe("list_routes", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, display_name, size_bytes, uploaded_at
		FROM saved_routes
		WHERE user_id = ?
		ORDER BY uploaded_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r        models.SavedRoute
			uploaded int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.DisplayName, &r.SizeBytes, &uploaded); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		r.UploadedAt = time.Unix(uploaded, 0).UTC()
		routes = append(routes, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate routes: %w", err)
	}
	return routes, nil
}

// GetRoute маршрут пользователя вместе с GPX
func (s *SQLRouteStore) GetRoute(ctx context.Context, userID int, id string) (route *models.SavedRoute, err error) {
	defer func(start time.Time) { s.observe("get_route", start, err) }(time.Now())

	var (
		r        models.SavedRoute
		uploaded int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, display_name, gpx, size_bytes, uploaded_at
		FROM saved_routes
		WHERE user_id = ? AND id = ?`, userID, id).
		Scan(&r.ID, &r.UserID, &r.Name, &r.DisplayName, &r.GPX, &r.SizeBytes, &uploaded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	r.UploadedAt = time.Unix(uploaded, 0).UTC()
	return &r, nil
}

// CreateRoute сохраняет маршрут; пустой ID заменяется на UUID
func (s *SQLRouteStore) CreateRoute(ctx context.Context, route *models.SavedRoute) (err error) {
	defer func(start time.Time) { s.observe("create_route", start, err) }(time.Now())

	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	if route.UploadedAt.IsZero() {
		route.UploadedAt = s.now().UTC().Truncate(time.Second)
	}
	if strings.TrimSpace(route.DisplayName) == "" {
		route.DisplayName = route.Name
	}
	route.SizeBytes = len(route.GPX)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_routes (id, user_id, name, display_name, gpx, size_bytes, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		route.ID, route.UserID, route.Name, route.DisplayName, route.GPX, route.SizeBytes, route.UploadedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert route: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"route_id": route.ID,
		"user_id":  route.UserID,
		"bytes":    route.SizeBytes,
	}).Info("Saved user route")
	return nil
}

// RenameRoute меняет отображаемое имя
func (s *SQLRouteStore) RenameRoute(ctx context.Context, userID int, id, displayName string) (err error) {
	defer func(start time.Time) { s.observe("rename_route", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE saved_routes SET display_name = ? WHERE user_id = ? AND id = ?`,
		displayName, userID, id)
	if err != nil {
		return fmt.Errorf("failed to rename route: %w", err)
	}
	return requireAffected(res)
}

// DeleteRoute удаляет маршрут пользователя
func (s *SQLRouteStore) DeleteRoute(ctx context.Context, userID int, id string) (err error) {
	defer func(start time.Time) { s.observe("delete_route", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_routes WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	return requireAffected(res)
}

// GetSettings настройки пользователя или ErrNotFound
func (s *SQLRouteStore) GetSettings(ctx context.Context, userID int) (settings *models.UserSettings, err error) {
	defer func(start time.Time) { s.observe("get_settings", start, err) }(time.Now())

	var (
		st      models.UserSettings
		updated int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT user_id, provider, speed_kmh, max_calls, min_spacing_m, min_spacing_min,
		       max_rain_mm_hr, max_wind_kmh, max_gust_kmh, max_temp_c, min_temp_c, updated_at
		FROM user_settings
		WHERE user_id = ?`, userID).
		Scan(&st.UserID, &st.Provider, &st.SpeedKmh, &st.MaxCalls, &st.MinSpacingMeters, &st.MinSpacingMinutes,
			&st.MaxRainMmHr, &st.MaxWindKmh, &st.MaxGustKmh, &st.MaxTempC, &st.MinTempC, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return &st, nil
}

// SaveSettings создает или заменяет настройки пользователя
func (s *SQLRouteStore) SaveSettings(ctx context.Context, st *models.UserSettings) (err error) {
	defer func(start time.Time) { s.observe("save_settings", start, err) }(time.Now())

	st.UpdatedAt = s.now().UTC().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx, s.dialect.upsertSettings,
		st.UserID, st.Provider, st.SpeedKmh, st.MaxCalls, st.MinSpacingMeters, st.MinSpacingMinutes,
		st.MaxRainMmHr, st.MaxWindKmh, st.MaxGustKmh, st.MaxTempC, st.MinTempC, st.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
