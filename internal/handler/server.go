package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/flybeeper/routecast/internal/auth"
	"github.com/flybeeper/routecast/internal/config"
	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/repository"
	"github.com/flybeeper/routecast/internal/service"
	"github.com/flybeeper/routecast/pkg/utils"
)

// Version версия API в health check
var Version = "dev"

// HealthCheck проверка зависимости для /health
type HealthCheck func(ctx context.Context) error

// Deps зависимости HTTP сервера
type Deps struct {
	Routes    *service.RouteService
	Validator *service.RequestValidator
	Store     repository.RouteStore // может быть nil
	Progress  *ProgressHub
	Auth      *auth.Middleware // nil отключает маршруты /me
	Checks    map[string]HealthCheck
}

// Server HTTP сервер API
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	logger      *utils.Logger
	config      *config.Config
	restHandler *RESTHandler
	progress    *ProgressHub
	auth        *auth.Middleware
	checks      map[string]HealthCheck
}

// NewServer создает новый HTTP сервер
func NewServer(cfg *config.Config, deps Deps, logger *utils.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(RateLimitMiddleware(cfg.Performance.RateLimitPerSecond, cfg.Performance.RateLimitBurst))
	router.Use(SecurityHeadersMiddleware())
	if cfg.Monitoring.MetricsEnabled {
		router.Use(metrics.HTTPMetricsMiddleware())
	}

	restHandler := NewRESTHandler(RESTOptions{
		Routes:    deps.Routes,
		Validator: deps.Validator,
		Store:     deps.Store,
		Progress:  deps.Progress,
		Defaults:  DefaultSettings(cfg),
		MaxUpload: cfg.Server.MaxUploadBytes,
	}, logger)

	server := &Server{
		router:      router,
		logger:      logger,
		config:      cfg,
		restHandler: restHandler,
		progress:    deps.Progress,
		auth:        deps.Auth,
		checks:      deps.Checks,
	}

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.setupRoutes()

	return server
}

// DefaultSettings настройки пользователя, который еще ничего не сохранял
func DefaultSettings(cfg *config.Config) *models.UserSettings {
	return &models.UserSettings{
		Provider:          cfg.Forecast.DefaultProvider,
		SpeedKmh:          cfg.Route.DefaultSpeedKmh,
		MaxCalls:          cfg.Route.DefaultMaxCalls,
		MinSpacingMeters:  cfg.Route.MinSpacingMeters,
		MinSpacingMinutes: cfg.Route.MinSpacingMinutes,
		MaxRainMmHr:       1,
		MaxWindKmh:        30,
		MaxGustKmh:        50,
		MaxTempC:          32,
		MinTempC:          5,
	}
}

// Handler http.Handler сервера, используется в тестах
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		public := v1.Group("/")
		if s.auth != nil {
			public.Use(s.auth.OptionalAuthenticate())
		}
		public.POST("/routes", s.restHandler.CreateRoute)
		public.GET("/routes/:id", s.restHandler.GetRoute)
		public.DELETE("/routes/:id", s.restHandler.DeleteRoute)
		public.GET("/routes/:id/forecast", s.restHandler.GetForecast)
		public.GET("/routes/:id/geojson", s.restHandler.GetGeoJSON)
		public.GET("/routes/:id/best-start", s.restHandler.GetBestStart)
		public.GET("/routes/:id/snap", s.restHandler.Snap)

		if s.auth != nil {
			me := v1.Group("/me")
			me.Use(s.auth.Authenticate())
			{
				me.GET("/routes", s.restHandler.ListMyRoutes)
				me.POST("/routes", s.restHandler.UploadMyRoute)
				me.GET("/routes/:id", s.restHandler.GetMyRoute)
				me.PATCH("/routes/:id", s.restHandler.RenameMyRoute)
				me.DELETE("/routes/:id", s.restHandler.DeleteMyRoute)
				me.POST("/routes/:id/process", s.restHandler.ProcessMyRoute)
				me.GET("/settings", s.restHandler.GetSettings)
				me.PUT("/settings", s.restHandler.SaveSettings)
			}
		}
	}

	if s.progress != nil {
		s.router.GET("/ws/v1/progress", s.progress.HandleWebSocket)
	}

	if s.config.Monitoring.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"address": s.config.Server.Address,
		"mode":    gin.Mode(),
	}).Info("Starting HTTP server")

	return s.httpServer.ListenAndServe()
}

// Shutdown корректное завершение сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.progress != nil {
		s.progress.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.WithError(err).WithField("component", name).Warn("Health check failed")
			components[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     state,
		"timestamp":  time.Now().Unix(),
		"version":    Version,
		"components": components,
	})
}

// ==================== Middleware ====================

// RequestIDMiddleware кладет X-Request-ID в контекст запроса для логов
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), utils.RequestIDKey, id))
		c.Next()
	}
}

// LoggerMiddleware логирование запросов
func LoggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log := logger.WithContext(c.Request.Context())
		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.WithFields(fields).Warn("HTTP request failed")
			return
		}
		log.WithFields(fields).Debug("HTTP request completed")
	}
}

// CORSMiddleware настройка CORS
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Client-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// RateLimitMiddleware ограничение частоты запросов
func RateLimitMiddleware(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(perSecond) + 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			writeError(c, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests")
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware заголовки безопасности
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
