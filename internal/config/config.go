package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	Store       StoreConfig
	MQTT        MQTTConfig
	Auth        AuthConfig
	Forecast    ForecastConfig
	Route       RouteConfig
	Performance PerformanceConfig
	Monitoring  MonitoringConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address        string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	SessionTTL   time.Duration
}

// StoreConfig хранилище сохраненных маршрутов и настроек
type StoreConfig struct {
	Driver       string // mysql, sqlite или пусто
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
}

// MQTTConfig конфигурация MQTT
type MQTTConfig struct {
	URL         string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// AuthConfig конфигурация аутентификации
type AuthConfig struct {
	Endpoint string
	CacheTTL time.Duration
}

// ForecastConfig провайдеры прогноза
type ForecastConfig struct {
	DefaultProvider  string
	Timezone         string
	Concurrency      int
	RatePerSecond    float64
	RateBurst        int
	CacheTTL         time.Duration
	CacheSize        int
	CacheKeyMode     string // round или geohash
	GeohashPrecision int
	MeteoBlueKey     string
	RequestTimeout   time.Duration
	ForecastDays     int
}

// RouteConfig значения по умолчанию для обработки маршрута
type RouteConfig struct {
	DefaultSpeedKmh   float64
	DefaultMaxCalls   int
	MaxCallsLimit     int
	MinSpacingMeters  float64
	MinSpacingMinutes float64
}

// PerformanceConfig конфигурация производительности
type PerformanceConfig struct {
	RateLimitPerSecond    float64
	RateLimitBurst        int
	WebSocketPingInterval time.Duration
	WebSocketPongTimeout  time.Duration
	SessionCacheSize      int
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
	MetricsPort    string
}

// Load загружает конфигурацию из переменных окружения.
// Если рядом есть .env, его значения не перекрывают уже заданные переменные.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:        getEnv("SERVER_ADDRESS", ":8090"),
			Port:           getEnv("SERVER_PORT", "8090"),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:    getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxUploadBytes: int64(getInt("SERVER_MAX_UPLOAD_BYTES", 10<<20)),
			AllowedOrigins: getList("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			SessionTTL:   getDuration("REDIS_SESSION_TTL", 24*time.Hour),
		},
		Store: StoreConfig{
			Driver:       strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
			DSN:          getEnv("STORE_DSN", "routecast.db"),
			MaxIdleConns: getInt("STORE_MAX_IDLE_CONNS", 5),
			MaxOpenConns: getInt("STORE_MAX_OPEN_CONNS", 20),
		},
		MQTT: MQTTConfig{
			URL:         getEnv("MQTT_URL", ""),
			ClientID:    getEnv("MQTT_CLIENT_ID", "routecast-api"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "routecast/routes"),
		},
		Auth: AuthConfig{
			Endpoint: getEnv("AUTH_ENDPOINT", "https://api.flybeeper.com/api/v3/auth/verify"),
			CacheTTL: getDuration("AUTH_CACHE_TTL", 5*time.Minute),
		},
		Forecast: ForecastConfig{
			DefaultProvider:  getEnv("FORECAST_PROVIDER", "open-meteo"),
			Timezone:         getEnv("FORECAST_TIMEZONE", "Europe/Rome"),
			Concurrency:      getInt("FORECAST_CONCURRENCY", 8),
			RatePerSecond:    getFloat("FORECAST_RATE_PER_SECOND", 10),
			RateBurst:        getInt("FORECAST_RATE_BURST", 8),
			CacheTTL:         getDuration("FORECAST_CACHE_TTL", time.Hour),
			CacheSize:        getInt("FORECAST_CACHE_SIZE", 4096),
			CacheKeyMode:     strings.ToLower(getEnv("FORECAST_CACHE_KEY", "round")),
			GeohashPrecision: getInt("FORECAST_GEOHASH_PRECISION", 6),
			MeteoBlueKey:     getEnv("METEOBLUE_API_KEY", ""),
			RequestTimeout:   getDuration("FORECAST_REQUEST_TIMEOUT", 15*time.Second),
			ForecastDays:     getInt("FORECAST_DAYS", 7),
		},
		Route: RouteConfig{
			DefaultSpeedKmh:   getFloat("ROUTE_DEFAULT_SPEED_KMH", 20),
			DefaultMaxCalls:   getInt("ROUTE_DEFAULT_MAX_CALLS", 30),
			MaxCallsLimit:     getInt("ROUTE_MAX_CALLS_LIMIT", 200),
			MinSpacingMeters:  getFloat("ROUTE_MIN_SPACING_M", 1000),
			MinSpacingMinutes: getFloat("ROUTE_MIN_SPACING_MIN", 15),
		},
		Performance: PerformanceConfig{
			RateLimitPerSecond:    getFloat("RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:        getInt("RATE_LIMIT_BURST", 40),
			WebSocketPingInterval: getDuration("WEBSOCKET_PING_INTERVAL", 30*time.Second),
			WebSocketPongTimeout:  getDuration("WEBSOCKET_PONG_TIMEOUT", 60*time.Second),
			SessionCacheSize:      getInt("SESSION_CACHE_SIZE", 256),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			MetricsPort:    getEnv("METRICS_PORT", "9090"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Store.Driver {
	case "", "none", "sqlite":
	case "mysql":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("STORE_DSN is required for mysql driver")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of mysql, sqlite, none")
	}

	if _, err := time.LoadLocation(c.Forecast.Timezone); err != nil {
		return fmt.Errorf("FORECAST_TIMEZONE: %w", err)
	}
	if c.Forecast.Concurrency <= 0 {
		return fmt.Errorf("FORECAST_CONCURRENCY must be positive")
	}
	if c.Forecast.RatePerSecond <= 0 {
		return fmt.Errorf("FORECAST_RATE_PER_SECOND must be positive")
	}
	switch c.Forecast.CacheKeyMode {
	case "round", "geohash":
	default:
		return fmt.Errorf("FORECAST_CACHE_KEY must be round or geohash")
	}
	if c.Forecast.GeohashPrecision < 1 || c.Forecast.GeohashPrecision > 12 {
		return fmt.Errorf("FORECAST_GEOHASH_PRECISION must be between 1 and 12")
	}

	if c.Route.DefaultSpeedKmh <= 0 {
		return fmt.Errorf("ROUTE_DEFAULT_SPEED_KMH must be positive")
	}
	if c.Route.DefaultMaxCalls < 2 || c.Route.DefaultMaxCalls > c.Route.MaxCallsLimit {
		return fmt.Errorf("ROUTE_DEFAULT_MAX_CALLS must be between 2 and ROUTE_MAX_CALLS_LIMIT")
	}
	if c.Route.MinSpacingMinutes <= 0 {
		return fmt.Errorf("ROUTE_MIN_SPACING_MIN must be positive")
	}

	return nil
}

// Location часовой пояс провайдеров прогноза
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Forecast.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "json")
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func IsDevelopment() bool {
	return getEnv("APP_ENV", "production") == "development"
}
