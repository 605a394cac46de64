package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "open-meteo", cfg.Forecast.DefaultProvider)
	assert.Equal(t, 8, cfg.Forecast.Concurrency)
	assert.Equal(t, time.Hour, cfg.Forecast.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, "Europe/Rome", cfg.Location().String())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MySQL")
	t.Setenv("STORE_DSN", "user:pass@tcp(localhost:3306)/routecast")
	t.Setenv("FORECAST_CONCURRENCY", "3")
	t.Setenv("FORECAST_RATE_PER_SECOND", "2.5")
	t.Setenv("FORECAST_CACHE_KEY", "geohash")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Forecast.Concurrency)
	assert.Equal(t, 2.5, cfg.Forecast.RatePerSecond)
	assert.Equal(t, "geohash", cfg.Forecast.CacheKeyMode)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "postgres"}},
		{"mysql without dsn", map[string]string{"STORE_DRIVER": "mysql", "STORE_DSN": " "}},
		{"bad timezone", map[string]string{"FORECAST_TIMEZONE": "Mars/Olympus"}},
		{"bad cache key", map[string]string{"FORECAST_CACHE_KEY": "h3"}},
		{"max calls too low", map[string]string{"ROUTE_DEFAULT_MAX_CALLS": "1"}},
		{"zero speed", map[string]string{"ROUTE_DEFAULT_SPEED_KMH": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("FORECAST_CONCURRENCY", "many")
	t.Setenv("FORECAST_CACHE_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Forecast.Concurrency)
	assert.Equal(t, time.Hour, cfg.Forecast.CacheTTL)
}
