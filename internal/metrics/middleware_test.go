package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newMetricsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	r.POST("/api/v1/routes", func(c *gin.Context) { c.String(http.StatusCreated, "created") })
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "# metrics") })
	return r
}

func TestHTTPMetricsMiddleware_CountsRequests(t *testing.T) {
	r := newMetricsRouter()
	total := HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/routes", "201")
	before := testutil.ToFloat64(total)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader("<gpx/>"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(total))
	assert.Zero(t, testutil.ToFloat64(HTTPRequestsInFlight))
}

func TestHTTPMetricsMiddleware_SkipsMetricsEndpoint(t *testing.T) {
	r := newMetricsRouter()
	total := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/metrics", "200")
	before := testutil.ToFloat64(total)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before, testutil.ToFloat64(total))
}

func TestIsRouteUpload(t *testing.T) {
	assert.True(t, isRouteUpload(http.MethodPost, "/api/v1/routes"))
	assert.True(t, isRouteUpload(http.MethodPost, "/api/v1/me/routes"))
	assert.False(t, isRouteUpload(http.MethodGet, "/api/v1/routes"))
	assert.False(t, isRouteUpload(http.MethodPost, "/api/v1/me/routes/:id/process"))
}
