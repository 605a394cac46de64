package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/repository"
	"github.com/flybeeper/routecast/internal/service"
	"github.com/flybeeper/routecast/internal/track"
	"github.com/flybeeper/routecast/pkg/pool"
)

const (
	contentTypeProtobuf = "application/x-protobuf"
	contentTypeGeoJSON  = "application/geo+json"
)

// errorBody ответ с ошибкой
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Code: code, Message: message})
}

// errorResponse статус и код для ошибки сервиса
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, track.ErrInvalidGPX):
		return http.StatusUnprocessableEntity, "invalid_gpx"
	case errors.Is(err, track.ErrNoTrackpoints):
		return http.StatusUnprocessableEntity, "no_trackpoints"
	case errors.Is(err, track.ErrEmptyTrack):
		return http.StatusUnprocessableEntity, "empty_track"
	case errors.Is(err, track.ErrInsufficientPoints):
		return http.StatusUnprocessableEntity, "insufficient_points"
	case errors.Is(err, track.ErrInvalidSpeed):
		return http.StatusUnprocessableEntity, "invalid_speed"
	case errors.Is(err, service.ErrInvalidStartTime):
		return http.StatusUnprocessableEntity, "invalid_start_time"
	case errors.Is(err, forecast.ErrMissingAPIKey):
		return http.StatusUnprocessableEntity, "missing_api_key"
	case errors.Is(err, forecast.ErrUnknownProvider):
		return http.StatusUnprocessableEntity, "unknown_provider"
	case errors.Is(err, forecast.ErrInvalidWindow):
		return http.StatusUnprocessableEntity, "invalid_window"
	case errors.Is(err, track.ErrInvalidParams):
		return http.StatusUnprocessableEntity, "invalid_params"
	case errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *RESTHandler) fail(c *gin.Context, err error, action string) {
	status, code := errorResponse(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.WithContext(c.Request.Context()).WithError(err).Error("Failed to " + action)
		message = "Failed to " + action
	}
	writeError(c, status, code, message)
}

func wantsProtobuf(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), contentTypeProtobuf)
}

// respond пишет JSON или, если клиент просит, protobuf google.protobuf.Value
func (h *RESTHandler) respond(c *gin.Context, status int, payload interface{}) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
		writeError(c, http.StatusInternalServerError, "marshal_error", "Failed to serialize response")
		return
	}

	if !wantsProtobuf(c) {
		c.Data(status, "application/json; charset=utf-8", buf.Bytes())
		return
	}

	data, err := toProtobuf(buf.Bytes())
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal protobuf")
		writeError(c, http.StatusInternalServerError, "marshal_error", "Failed to serialize response")
		return
	}
	c.Data(status, contentTypeProtobuf, data)
}

// toProtobuf перекодирует JSON документ в google.protobuf.Value
func toProtobuf(jsonDoc []byte) ([]byte, error) {
	var generic interface{}
	if err := json.Unmarshal(jsonDoc, &generic); err != nil {
		return nil, err
	}
	value, err := structpb.NewValue(generic)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(value)
}
