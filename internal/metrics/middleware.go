package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetricsMiddleware собирает метрики HTTP запросов, кроме /metrics и websocket
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "/metrics" || strings.HasPrefix(path, "/ws/") {
			c.Next()
			return
		}
		if path == "" {
			path = "unknown"
		}

		if isRouteUpload(c.Request.Method, path) && c.Request.ContentLength > 0 {
			RouteUploadSize.Observe(float64(c.Request.ContentLength))
		}

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		if size := c.Writer.Size(); size > 0 {
			HTTPResponseSize.WithLabelValues(path).Observe(float64(size))
		}
	}
}

// isRouteUpload запросы, несущие GPX в теле
func isRouteUpload(method, path string) bool {
	return method == http.MethodPost && strings.HasSuffix(path, "/routes")
}
