package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routecast_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routecast_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "routecast_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routecast_http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"endpoint"},
	)

	RouteUploadSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routecast_route_upload_size_bytes",
			Help:    "Size of uploaded GPX request bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// WebSocket метрики
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "routecast_websocket_connections_active",
			Help: "Number of active WebSocket progress connections",
		},
	)

	WebSocketMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routecast_websocket_messages_out_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	WebSocketErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routecast_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
	)

	// Прогноз
	ForecastFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routecast_forecast_fetch_duration_seconds",
			Help:    "Duration of forecast provider requests in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"provider"},
	)

	ForecastFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routecast_forecast_fetch_total",
			Help: "Total number of forecast fetches by result",
		},
		[]string{"provider", "status"}, // status: success/error/cached
	)

	ForecastCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routecast_forecast_cache_lookups_total",
			Help: "Forecast cache lookups",
		},
		[]string{"result"}, // hit/miss
	)

	ForecastWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "routecast_forecast_workers_active",
			Help: "Number of forecast fetch workers currently running",
		},
	)

	// Маршруты
	RouteProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routecast_route_processing_duration_seconds",
			Help:    "Duration of route processing stages in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"stage"}, // track/fetch/total
	)

	RouteSamples = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routecast_route_samples",
			Help:    "Number of sample points selected per route",
			Buckets: []float64{2, 5, 10, 20, 30, 50, 75, 100, 200},
		},
	)

	RoutesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routecast_routes_processed_total",
			Help: "Total number of route processing runs by result",
		},
		[]string{"status"}, // success/error/rejected/superseded
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "routecast_active_route_sessions",
			Help: "Number of route sessions held in memory",
		},
	)

	// MQTT метрики
	MQTTMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routecast_mqtt_messages_published_total",
			Help: "Total number of MQTT route events published",
		},
		[]string{"status"},
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "routecast_mqtt_connection_status",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	// Redis метрики
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routecast_redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	RedisOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routecast_redis_operation_errors_total",
			Help: "Total number of Redis operation errors",
		},
		[]string{"operation"},
	)

	// Хранилище маршрутов пользователей
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routecast_store_operation_duration_seconds",
			Help:    "Duration of route store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"driver", "operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routecast_store_operation_errors_total",
			Help: "Total number of route store errors",
		},
		[]string{"driver", "operation"},
	)

	// Общие метрики приложения
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "routecast_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_time"},
	)

	StoreConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "routecast_store_connection_status",
			Help: "Route store connection status (1 = connected, 0 = disconnected)",
		},
	)

	RedisConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "routecast_redis_connection_status",
			Help: "Redis connection status (1 = connected, 0 = disconnected)",
		},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version, commit, buildTime string) {
	AppInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// SetStatus переводит bool в значение статуса соединения
func SetStatus(g prometheus.Gauge, up bool) {
	if up {
		g.Set(1)
		return
	}
	g.Set(0)
}
