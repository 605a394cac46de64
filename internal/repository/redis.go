package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flybeeper/routecast/internal/config"
	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/pkg/utils"
)

const (
	SessionPrefix  = "route:session:" // route:session:{id}
	ForecastPrefix = "forecast:"      // forecast:{provider}:{location}

	DefaultSessionTTL  = 24 * time.Hour
	DefaultForecastTTL = time.Hour
)

// RedisRepository сессии маршрутов и L2 кеш прогнозов в Redis
type RedisRepository struct {
	client     *redis.Client
	logger     *utils.Logger
	config     *config.RedisConfig
	sessionTTL time.Duration
}

// NewRedisRepository создает новый Redis репозиторий
func NewRedisRepository(cfg *config.RedisConfig, logger *utils.Logger) (*RedisRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &RedisRepository{
		client:     redis.NewClient(opt),
		logger:     logger,
		config:     cfg,
		sessionTTL: ttl,
	}, nil
}

// Ping проверяет соединение с Redis
func (r *RedisRepository) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// GetClient Redis клиент для кеша авторизации
func (r *RedisRepository) GetClient() *redis.Client {
	return r.client
}

// SaveSession сохраняет сессию маршрута с TTL
func (r *RedisRepository) SaveSession(ctx context.Context, session *models.RouteSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	start := time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.Set(ctx, SessionPrefix+session.ID, data, r.sessionTTL).Err(); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("save_session").Inc()
		return fmt.Errorf("failed to save session: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"route_id": session.ID,
		"samples":  len(session.Samples),
		"bytes":    len(data),
	}).Debug("Saved route session to Redis")

	metrics.RedisOperationDuration.WithLabelValues("save_session").Observe(time.Since(start).Seconds())
	return nil
}

// LoadSession загружает сессию маршрута; ErrNotFound, если она истекла или не существовала
func (r *RedisRepository) LoadSession(ctx context.Context, id string) (*models.RouteSession, error) {
	start := time.Now()
	data, err := r.client.Get(ctx, SessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("load_session").Inc()
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.RouteSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}

	metrics.RedisOperationDuration.WithLabelValues("load_session").Observe(time.Since(start).Seconds())
	return &session, nil
}

// DeleteSession удаляет сессию
func (r *RedisRepository) DeleteSession(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, SessionPrefix+id).Err(); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("delete_session").Inc()
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ForecastCache L2 кеш рядов прогноза поверх того же соединения
func (r *RedisRepository) ForecastCache(ttl time.Duration) *RedisForecastCache {
	if ttl <= 0 {
		ttl = DefaultForecastTTL
	}
	return &RedisForecastCache{client: r.client, logger: r.logger, ttl: ttl}
}

// RedisForecastCache ряды прогноза в Redis, ключ forecast:{key}
type RedisForecastCache struct {
	client *redis.Client
	logger *utils.Logger
	ttl    time.Duration
}

// Get возвращает ряд; ошибки Redis считаются промахом
func (c *RedisForecastCache) Get(ctx context.Context, key string) (*models.ForecastSeries, bool) {
	start := time.Now()
	data, err := c.client.Get(ctx, ForecastPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.RedisOperationErrors.WithLabelValues("get_forecast").Inc()
			c.logger.WithError(err).WithField("key", key).Warn("Failed to read forecast from Redis")
		}
		return nil, false
	}

	var series models.ForecastSeries
	if err := json.Unmarshal(data, &series); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Dropping undecodable cached forecast")
		return nil, false
	}

	metrics.RedisOperationDuration.WithLabelValues("get_forecast").Observe(time.Since(start).Seconds())
	return &series, true
}

// Set сохраняет ряд с TTL кеша
func (c *RedisForecastCache) Set(ctx context.Context, key string, series *models.ForecastSeries) {
	data, err := json.Marshal(series)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to encode forecast for cache")
		return
	}
	if err := c.client.Set(ctx, ForecastPrefix+key, data, c.ttl).Err(); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("set_forecast").Inc()
		c.logger.WithError(err).WithField("key", key).Warn("Failed to write forecast to Redis")
	}
}
