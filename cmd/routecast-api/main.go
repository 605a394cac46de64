package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/flybeeper/routecast/internal/auth"
	"github.com/flybeeper/routecast/internal/config"
	"github.com/flybeeper/routecast/internal/events"
	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/handler"
	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/repository"
	"github.com/flybeeper/routecast/internal/service"
	"github.com/flybeeper/routecast/pkg/utils"
)

var (
	// Устанавливаются при сборке через ldflags
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(config.LogLevel(), config.LogFormat())
	utils.SetDefaultLogger(logger)
	logger.WithField("version", Version).Info("Starting routecast API")
	metrics.SetAppInfo(Version, Commit, BuildTime)
	handler.Version = Version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handler.HealthCheck{}

	// Redis опционален: без него сессии и кеши живут в памяти процесса
	var (
		sessions  repository.SessionStore
		tokens    auth.TokenCache
		l2        forecast.Cache
		redisRepo *repository.RedisRepository
	)
	if cfg.Redis.URL != "" {
		redisRepo, err = repository.NewRedisRepository(&cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Redis repository")
		}
		defer redisRepo.Close()

		if err := redisRepo.Ping(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		logger.Info("Connected to Redis")
		metrics.SetStatus(metrics.RedisConnectionStatus, true)

		sessions = redisRepo
		tokens = auth.NewCache(redisRepo.GetClient(), cfg.Auth.CacheTTL)
		l2 = redisRepo.ForecastCache(cfg.Forecast.CacheTTL)
		checks["redis"] = tracked(redisRepo.Ping, func(up bool) { metrics.SetStatus(metrics.RedisConnectionStatus, up) })
	} else {
		logger.Warn("REDIS_URL not set, sessions are kept in memory")
		sessions = repository.NewMemorySessionStore(cfg.Performance.SessionCacheSize, cfg.Redis.SessionTTL)
		tokens = auth.NewMemoryCache(cfg.Auth.CacheTTL)
	}

	store := openStore(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
		checks["store"] = tracked(store.Ping, func(up bool) { metrics.SetStatus(metrics.StoreConnectionStatus, up) })
	}

	// Прогнозы: L1 в памяти, L2 в Redis
	memCache := forecast.NewMemoryCache(cfg.Forecast.CacheSize, cfg.Forecast.CacheTTL, nil)
	go cleanLoop(ctx, memCache, cfg.Forecast.CacheTTL, logger)

	var cache forecast.Cache = memCache
	if l2 != nil {
		cache = forecast.NewTieredCache(memCache, l2)
	}

	keyFunc := forecast.RoundedKey
	if cfg.Forecast.CacheKeyMode == "geohash" {
		keyFunc = forecast.GeohashKey(uint(cfg.Forecast.GeohashPrecision))
	}

	providerOpts := forecast.ProviderOptions{
		Client:       &http.Client{Timeout: cfg.Forecast.RequestTimeout},
		Location:     cfg.Location(),
		ForecastDays: cfg.Forecast.ForecastDays,
	}
	registry := forecast.NewRegistry(providerOpts, providerOpts, cfg.Forecast.MeteoBlueKey)

	fetcher := service.NewFetcher(cache, service.FetcherConfig{
		Workers:       cfg.Forecast.Concurrency,
		RatePerSecond: cfg.Forecast.RatePerSecond,
		RateBurst:     cfg.Forecast.RateBurst,
		Key:           keyFunc,
	}, logger)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.MQTT.URL != "" {
		mqttPub, err := events.NewMQTTPublisher(&cfg.MQTT, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize MQTT publisher")
		}
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		err = mqttPub.Connect(connectCtx)
		connectCancel()
		if err != nil {
			// Клиент переподключается сам, события до подключения пропускаются
			logger.WithError(err).Warn("MQTT broker unavailable, route events will be skipped until reconnect")
		}
		publisher = mqttPub
	}
	defer publisher.Close()

	var archiver service.Archiver
	var routeArchiver *service.RouteArchiver
	if store != nil {
		routeArchiver = service.NewRouteArchiver(store, logger, service.DefaultArchiverConfig())
		archiver = routeArchiver
	}

	routes := service.NewRouteService(sessions, registry, fetcher, publisher, archiver, logger)
	validator := service.NewRequestValidator(cfg.Route, cfg.Forecast.DefaultProvider, cfg.Location(), logger)
	progress := handler.NewProgressHub(logger, cfg.Server.AllowedOrigins,
		cfg.Performance.WebSocketPingInterval, cfg.Performance.WebSocketPongTimeout)

	deps := handler.Deps{
		Routes:    routes,
		Validator: validator,
		Progress:  progress,
		Auth:      auth.NewMiddleware(auth.NewValidator(cfg.Auth.Endpoint, tokens, logger), logger),
		Checks:    checks,
	}
	if store != nil {
		deps.Store = store
	}
	server := handler.NewServer(cfg, deps, logger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}
	if routeArchiver != nil {
		routeArchiver.Stop()
	}

	logger.Info("Server stopped gracefully")
}

// openStore открывает хранилище сохраненных маршрутов; nil если оно отключено или недоступно
func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) *repository.SQLRouteStore {
	var (
		store *repository.SQLRouteStore
		err   error
	)
	switch cfg.Store.Driver {
	case "mysql":
		store, err = repository.NewMySQLRouteStore(&cfg.Store, logger)
	case "sqlite":
		store, err = repository.NewSQLiteRouteStore(cfg.Store.DSN, logger)
	default:
		logger.Info("Route storage disabled")
		return nil
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to open route store, saved routes are disabled")
		return nil
	}

	if err := store.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Warn("Failed to prepare route store schema, saved routes are disabled")
		store.Close()
		return nil
	}

	logger.WithField("driver", store.Driver()).Info("Connected to route store")
	metrics.SetStatus(metrics.StoreConnectionStatus, true)
	return store
}

// tracked обновляет gauge состояния соединения при каждой проверке
func tracked(check handler.HealthCheck, status func(up bool)) handler.HealthCheck {
	return func(ctx context.Context) error {
		err := check(ctx)
		status(err == nil)
		return err
	}
}

func cleanLoop(ctx context.Context, cache *forecast.MemoryCache, interval time.Duration, logger *utils.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := cache.Clean(); n > 0 {
				logger.WithField("removed", n).Debug("Expired forecasts evicted")
			}
		}
	}
}
