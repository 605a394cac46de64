package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flybeeper/routecast/internal/auth"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/repository"
	"github.com/flybeeper/routecast/internal/service"
	"github.com/flybeeper/routecast/internal/track"
)

// userID достает пользователя, установленного auth middleware
func (h *RESTHandler) userID(c *gin.Context) (int, bool) {
	if h.store == nil {
		writeError(c, http.StatusServiceUnavailable, "store_disabled", "Route storage is not configured")
		return 0, false
	}
	id, ok := auth.GetUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return 0, false
	}
	return id, true
}

// ListMyRoutes GET /api/v1/me/routes
func (h *RESTHandler) ListMyRoutes(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	routes, err := h.store.ListRoutes(ctx, userID)
	if err != nil {
		h.fail(c, err, "list routes")
		return
	}
	if routes == nil {
		routes = []*models.SavedRoute{}
	}
	h.respond(c, http.StatusOK, gin.H{"routes": routes, "count": len(routes)})
}

// UploadMyRoute сохраняет GPX без обработки
// POST /api/v1/me/routes
func (h *RESTHandler) UploadMyRoute(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	req, data, err := h.readUpload(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if _, err := track.ParseGPX(data); err != nil {
		h.fail(c, err, "parse gpx")
		return
	}

	name := req.Name
	if name == "" {
		name = track.TrackName(data)
	}
	route := &models.SavedRoute{UserID: userID, Name: name, GPX: data}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.store.CreateRoute(ctx, route); err != nil {
		h.fail(c, err, "save route")
		return
	}
	h.respond(c, http.StatusCreated, route)
}

// GetMyRoute метаданные маршрута или исходный файл при ?format=gpx
// GET /api/v1/me/routes/:id
func (h *RESTHandler) GetMyRoute(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	route, err := h.store.GetRoute(ctx, userID, c.Param("id"))
	if err != nil {
		h.fail(c, err, "load route")
		return
	}

	if c.Query("format") == "gpx" {
		filename := route.Name
		if !strings.HasSuffix(strings.ToLower(filename), ".gpx") {
			filename += ".gpx"
		}
		c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
		c.Data(http.StatusOK, "application/gpx+xml", route.GPX)
		return
	}
	h.respond(c, http.StatusOK, route)
}

type renameRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// RenameMyRoute PATCH /api/v1/me/routes/:id
func (h *RESTHandler) RenameMyRoute(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.DisplayName) == "" {
		writeError(c, http.StatusBadRequest, "invalid_request", "display_name is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.store.RenameRoute(ctx, userID, c.Param("id"), strings.TrimSpace(req.DisplayName)); err != nil {
		h.fail(c, err, "rename route")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMyRoute DELETE /api/v1/me/routes/:id
func (h *RESTHandler) DeleteMyRoute(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.store.DeleteRoute(ctx, userID, c.Param("id")); err != nil {
		h.fail(c, err, "delete route")
		return
	}
	c.Status(http.StatusNoContent)
}

// ProcessMyRoute обрабатывает сохраненный GPX с параметрами из тела запроса
// POST /api/v1/me/routes/:id/process
func (h *RESTHandler) ProcessMyRoute(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req service.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	route, err := h.store.GetRoute(ctx, userID, c.Param("id"))
	cancel()
	if err != nil {
		h.fail(c, err, "load route")
		return
	}

	if req.Name == "" {
		req.Name = route.DisplayName
	}
	// Файл уже сохранен
	req.Save = false
	h.process(c, req, route.GPX)
}

// GetSettings настройки пользователя; без сохраненных возвращает значения по умолчанию
// GET /api/v1/me/settings
func (h *RESTHandler) GetSettings(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	settings, err := h.store.GetSettings(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		defaults := *h.defaults
		defaults.UserID = userID
		h.respond(c, http.StatusOK, defaults)
		return
	}
	if err != nil {
		h.fail(c, err, "load settings")
		return
	}
	h.respond(c, http.StatusOK, settings)
}

// SaveSettings PUT /api/v1/me/settings
func (h *RESTHandler) SaveSettings(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var settings models.UserSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if msg := validateSettings(&settings); msg != "" {
		writeError(c, http.StatusBadRequest, "invalid_settings", msg)
		return
	}
	settings.UserID = userID

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.store.SaveSettings(ctx, &settings); err != nil {
		h.fail(c, err, "save settings")
		return
	}
	h.respond(c, http.StatusOK, settings)
}

func validateSettings(s *models.UserSettings) string {
	switch {
	case s.SpeedKmh < 0:
		return "speed_kmh must not be negative"
	case s.MaxCalls != 0 && s.MaxCalls < 2:
		return "max_calls must be at least 2"
	case s.MinSpacingMeters < 0, s.MinSpacingMinutes < 0:
		return "spacing must not be negative"
	case s.MaxRainMmHr < 0, s.MaxWindKmh < 0, s.MaxGustKmh < 0:
		return "limits must not be negative"
	case s.MinTempC > s.MaxTempC:
		return "min_temp_c must not exceed max_temp_c"
	}
	return ""
}
