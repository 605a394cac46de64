package repository

import (
	"context"
	"errors"

	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/models"
)

// ErrNotFound запись не найдена или принадлежит другому пользователю
var ErrNotFound = errors.New("not found")

// SessionStore хранилище сессий обработанных маршрутов
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.RouteSession) error
	LoadSession(ctx context.Context, id string) (*models.RouteSession, error)
	DeleteSession(ctx context.Context, id string) error
}

// RouteStore сохраненные маршруты и настройки пользователей
type RouteStore interface {
	// Проверка соединения
	Ping(ctx context.Context) error
	Close() error

	// Маршруты пользователя
	ListRoutes(ctx context.Context, userID int) ([]*models.SavedRoute, error)
	GetRoute(ctx context.Context, userID int, id string) (*models.SavedRoute, error)
	CreateRoute(ctx context.Context, route *models.SavedRoute) error
	RenameRoute(ctx context.Context, userID int, id, displayName string) error
	DeleteRoute(ctx context.Context, userID int, id string) error

	// Настройки
	GetSettings(ctx context.Context, userID int) (*models.UserSettings, error)
	SaveSettings(ctx context.Context, settings *models.UserSettings) error
}

// Ensure implementations
var _ SessionStore = (*RedisRepository)(nil)
var _ SessionStore = (*MemorySessionStore)(nil)
var _ RouteStore = (*SQLRouteStore)(nil)
var _ forecast.Cache = (*RedisForecastCache)(nil)
