package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flybeeper/routecast/internal/auth"
	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/repository"
	"github.com/flybeeper/routecast/internal/service"
	"github.com/flybeeper/routecast/pkg/utils"
)

const (
	defaultBestStartSpan = 12 * time.Hour
	defaultBestStartStep = 30 * time.Minute
)

// RESTHandler обработчик REST API endpoints
type RESTHandler struct {
	routes         *service.RouteService
	validator      *service.RequestValidator
	store          repository.RouteStore
	progress       *ProgressHub
	defaults       *models.UserSettings
	logger         *utils.Logger
	timeout        time.Duration
	processTimeout time.Duration
	maxUpload      int64
}

// RESTOptions зависимости REST обработчика
type RESTOptions struct {
	Routes    *service.RouteService
	Validator *service.RequestValidator
	Store     repository.RouteStore // nil отключает маршруты пользователя
	Progress  *ProgressHub
	Defaults  *models.UserSettings
	MaxUpload int64
}

// NewRESTHandler создает новый REST handler
func NewRESTHandler(opts RESTOptions, logger *utils.Logger) *RESTHandler {
	maxUpload := opts.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	defaults := opts.Defaults
	if defaults == nil {
		defaults = &models.UserSettings{}
	}
	return &RESTHandler{
		routes:         opts.Routes,
		validator:      opts.Validator,
		store:          opts.Store,
		progress:       opts.Progress,
		defaults:       defaults,
		logger:         logger,
		timeout:        30 * time.Second,
		processTimeout: 2 * time.Minute,
		maxUpload:      maxUpload,
	}
}

// CreateRoute загружает GPX и обрабатывает маршрут
// POST /api/v1/routes (multipart с файлом gpx или JSON с полем gpx)
func (h *RESTHandler) CreateRoute(c *gin.Context) {
	req, data, err := h.readUpload(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.process(c, req, data)
}

func (h *RESTHandler) process(c *gin.Context, req service.RouteRequest, data []byte) {
	params, err := h.validator.Normalize(req)
	if err != nil {
		h.fail(c, err, "process route")
		return
	}

	clientID := clientIDFrom(c)
	in := service.ProcessInput{
		Owner:    ownerFrom(c, clientID),
		Name:     req.Name,
		GPX:      data,
		Params:   params,
		APIKey:   req.APIKey,
		Save:     req.Save,
		Progress: h.progressFunc(clientID),
	}
	if user, ok := auth.GetUser(c); ok {
		in.UserID = user.ID
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.processTimeout)
	defer cancel()

	view, err := h.routes.ProcessRoute(ctx, in)
	if err != nil {
		if h.progress != nil {
			h.progress.Fail(clientID, err.Error())
		}
		h.fail(c, err, "process route")
		return
	}
	if h.progress != nil {
		h.progress.Done(clientID, view.SessionID)
	}

	h.respond(c, http.StatusCreated, view)
}

func (h *RESTHandler) progressFunc(clientID string) service.ProgressFunc {
	if h.progress == nil {
		return nil
	}
	return h.progress.ProgressFunc(clientID)
}

// readUpload разбирает параметры и GPX из multipart формы или JSON тела
func (h *RESTHandler) readUpload(c *gin.Context) (service.RouteRequest, []byte, error) {
	var req service.RouteRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			return req, nil, fmt.Errorf("invalid form: %w", err)
		}
		if fh, err := c.FormFile("gpx"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return req, nil, fmt.Errorf("open upload: %w", err)
			}
			defer f.Close()
			data, err := io.ReadAll(io.LimitReader(f, h.maxUpload))
			if err != nil {
				return req, nil, fmt.Errorf("read upload: %w", err)
			}
			if req.Name == "" {
				req.Name = strings.TrimSuffix(fh.Filename, ".gpx")
			}
			return req, data, nil
		}
		if req.GPX == "" {
			return req, nil, fmt.Errorf("gpx file is required")
		}
		return req, []byte(req.GPX), nil
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		return req, nil, fmt.Errorf("invalid json: %w", err)
	}
	if strings.TrimSpace(req.GPX) == "" {
		return req, nil, fmt.Errorf("gpx is required")
	}
	return req, []byte(req.GPX), nil
}

// GetRoute возвращает сохраненную сессию маршрута без рядов прогноза
// GET /api/v1/routes/:id
func (h *RESTHandler) GetRoute(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	session, err := h.routes.GetSession(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "load route")
		return
	}

	h.respond(c, http.StatusOK, gin.H{
		"id":           session.ID,
		"name":         session.Name,
		"generation":   session.Generation,
		"created_at":   session.CreatedAt,
		"params":       session.Params,
		"distance_m":   session.TotalDistance(),
		"samples":      session.Samples,
		"breaks":       session.Breaks,
		"warnings":     session.Warnings,
		"fetch_errors": session.FetchErrors,
	})
}

// DeleteRoute удаляет сессию маршрута
// DELETE /api/v1/routes/:id
func (h *RESTHandler) DeleteRoute(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.routes.DeleteSession(ctx, c.Param("id")); err != nil {
		h.fail(c, err, "delete route")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetForecast выравнивает прогноз для нового времени старта
// GET /api/v1/routes/:id/forecast?start=2025-06-01T08:00:00Z
func (h *RESTHandler) GetForecast(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	start, ok := h.optionalStart(c, "start")
	if !ok {
		return
	}

	view, err := h.routes.AlignRoute(ctx, c.Param("id"), start)
	if err != nil {
		h.fail(c, err, "align forecast")
		return
	}
	h.respond(c, http.StatusOK, view)
}

// GetGeoJSON слой карты для времени старта
// GET /api/v1/routes/:id/geojson?start=
func (h *RESTHandler) GetGeoJSON(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	start, ok := h.optionalStart(c, "start")
	if !ok {
		return
	}

	fc, err := h.routes.GeoJSON(ctx, c.Param("id"), start)
	if err != nil {
		h.fail(c, err, "build geojson")
		return
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		h.fail(c, err, "encode geojson")
		return
	}
	c.Data(http.StatusOK, contentTypeGeoJSON, data)
}

// GetBestStart оценивает времена старта в окне
// GET /api/v1/routes/:id/best-start?from=&to=&step=30m&max_rain=&max_wind=&max_gust=&max_temp=&min_temp=
func (h *RESTHandler) GetBestStart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	id := c.Param("id")
	from, ok := h.optionalStart(c, "from")
	if !ok {
		return
	}
	if from.IsZero() {
		session, err := h.routes.GetSession(ctx, id)
		if err != nil {
			h.fail(c, err, "load route")
			return
		}
		from = session.Params.StartTime
	}

	to, ok := h.optionalStart(c, "to")
	if !ok {
		return
	}
	if to.IsZero() {
		to = from.Add(defaultBestStartSpan)
	}

	step := defaultBestStartStep
	if s := c.Query("step"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeError(c, http.StatusBadRequest, "invalid_step", "step must be a positive duration such as 30m")
			return
		}
		step = d
	}

	var limits forecast.Limits
	var err error
	if limits.MaxRainMmHr, err = queryFloat(c, "max_rain"); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	if limits.MaxWindAvgKmh, err = queryFloat(c, "max_wind"); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	if limits.MaxGustKmh, err = queryFloat(c, "max_gust"); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	if limits.MaxTempC, err = queryFloatPtr(c, "max_temp"); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	if limits.MinTempC, err = queryFloatPtr(c, "min_temp"); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}

	candidates, err := h.routes.BestStart(ctx, id, forecast.Window{From: from, To: to, Step: step}, limits)
	if err != nil {
		h.fail(c, err, "rank start times")
		return
	}

	var best interface{}
	if len(candidates) > 0 {
		best = candidates[0]
	}
	h.respond(c, http.StatusOK, gin.H{
		"best":       best,
		"candidates": candidates,
	})
}

// Snap ближайшая точка маршрута, используется для расстановки остановок на карте
// GET /api/v1/routes/:id/snap?lat=45.1&lon=7.2
func (h *RESTHandler) Snap(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(c, http.StatusBadRequest, "invalid_latitude", "Latitude must be between -90 and 90")
		return
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		writeError(c, http.StatusBadRequest, "invalid_longitude", "Longitude must be between -180 and 180")
		return
	}

	snap, err := h.routes.Snap(ctx, c.Param("id"), lat, lon)
	if err != nil {
		h.fail(c, err, "snap to route")
		return
	}
	h.respond(c, http.StatusOK, gin.H{
		"snap":   snap,
		"km":     snap.DistMeters / 1000,
		"offset": snap.OffsetM,
	})
}

func (h *RESTHandler) optionalStart(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := h.validator.ParseStart(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_"+key, err.Error())
		return time.Time{}, false
	}
	return t, true
}

func queryFloat(c *gin.Context, key string) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number", key)
	}
	return v, nil
}

func queryFloatPtr(c *gin.Context, key string) (*float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &v, nil
}

// clientIDFrom идентификатор клиента для потока прогресса
func clientIDFrom(c *gin.Context) string {
	if id := c.Query("client"); id != "" {
		return id
	}
	return c.GetHeader("X-Client-ID")
}

// ownerFrom владелец запуска: пользователь, клиент или адрес
func ownerFrom(c *gin.Context, clientID string) string {
	if user, ok := auth.GetUser(c); ok {
		return user.Owner()
	}
	if clientID != "" {
		return "client:" + clientID
	}
	return "ip:" + c.ClientIP()
}
