package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/flybeeper/routecast/internal/config"
	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/track"
	"github.com/flybeeper/routecast/pkg/utils"
)

const (
	// minMaxCalls нижняя граница числа запросов прогноза
	minMaxCalls = 5

	kmhToMps = 1 / 3.6
	mphToMps = 0.44704

	// localStartLayout формат поля datetime-local
	localStartLayout = "2006-01-02T15:04"
)

// RouteRequest параметры обработки маршрута в том виде, как их прислал клиент
type RouteRequest struct {
	Name              string  `json:"name" form:"name"`
	GPX               string  `json:"gpx" form:"gpx_text"`
	Start             string  `json:"start" form:"start"`
	Speed             float64 `json:"speed" form:"speed"`
	SpeedUnit         string  `json:"speed_unit" form:"speed_unit"` // kmh, mph, mps
	UphillSpeed       float64 `json:"uphill_speed" form:"uphill_speed"`
	DownhillSpeed     float64 `json:"downhill_speed" form:"downhill_speed"`
	MaxCalls          int     `json:"max_calls" form:"max_calls"`
	MinSpacingMeters  float64 `json:"min_spacing_m" form:"min_spacing_m"`
	MinSpacingMinutes float64 `json:"min_spacing_min" form:"min_spacing_min"`
	Breaks            string  `json:"breaks" form:"breaks"` // "км:минуты, ..."
	Provider          string  `json:"provider" form:"provider"`
	APIKey            string  `json:"api_key" form:"api_key"`
	Save              bool    `json:"save" form:"save"`
}

// RequestValidator проверяет запрос и подставляет значения по умолчанию
type RequestValidator struct {
	route           config.RouteConfig
	defaultProvider string
	location        *time.Location
	logger          *utils.Logger
}

// NewRequestValidator создает валидатор; loc используется для времени без зоны
func NewRequestValidator(route config.RouteConfig, defaultProvider string, loc *time.Location, logger *utils.Logger) *RequestValidator {
	if loc == nil {
		loc = time.UTC
	}
	return &RequestValidator{
		route:           route,
		defaultProvider: defaultProvider,
		location:        loc,
		logger:          logger,
	}
}

// Normalize превращает запрос в параметры обработки
func (v *RequestValidator) Normalize(req RouteRequest) (models.RouteParams, error) {
	start, err := v.ParseStart(req.Start)
	if err != nil {
		v.reject("start_time")
		return models.RouteParams{}, err
	}

	speed := req.Speed
	if speed == 0 {
		speed = v.route.DefaultSpeedKmh
		req.SpeedUnit = "kmh"
	}
	factor, err := speedFactor(req.SpeedUnit)
	if err != nil {
		v.reject("params")
		return models.RouteParams{}, err
	}
	if !isPositive(speed) {
		v.reject("params")
		return models.RouteParams{}, track.ErrInvalidSpeed
	}

	breaks, err := track.ParseBreakInputs(req.Breaks)
	if err != nil {
		v.reject("params")
		return models.RouteParams{}, fmt.Errorf("%w: %v", track.ErrInvalidParams, err)
	}

	params := models.RouteParams{
		StartTime:         start,
		FlatSpeedMps:      speed * factor,
		UphillSpeedMps:    req.UphillSpeed * factor,
		DownhillSpeedMps:  req.DownhillSpeed * factor,
		MaxCalls:          v.clampMaxCalls(req.MaxCalls),
		MinSpacingMeters:  req.MinSpacingMeters,
		MinSpacingMinutes: req.MinSpacingMinutes,
		Provider:          strings.ToLower(strings.TrimSpace(req.Provider)),
		Breaks:            breaks,
	}
	if params.MinSpacingMeters == 0 {
		params.MinSpacingMeters = v.route.MinSpacingMeters
	}
	if params.MinSpacingMinutes == 0 {
		params.MinSpacingMinutes = v.route.MinSpacingMinutes
	}
	if params.Provider == "" {
		params.Provider = v.defaultProvider
	}

	sp := SampleParams(params)
	if err := sp.Validate(); err != nil {
		v.reject("params")
		return models.RouteParams{}, err
	}
	return params, nil
}

// ParseStart разбирает время старта: RFC3339 или локальное время без зоны
func (v *RequestValidator) ParseStart(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidStartTime)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(localStartLayout, s, v.location); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidStartTime, s)
}

func (v *RequestValidator) clampMaxCalls(n int) int {
	if n == 0 {
		n = v.route.DefaultMaxCalls
	}
	upper := v.route.MaxCallsLimit
	if upper < minMaxCalls {
		upper = minMaxCalls
	}
	switch {
	case n < minMaxCalls:
		return minMaxCalls
	case n > upper:
		return upper
	}
	return n
}

func (v *RequestValidator) reject(reason string) {
	metrics.ValidationRejectedRoutes.WithLabelValues(reason).Inc()
	v.logger.WithField("reason", reason).Debug("Rejected route request")
}

// SampleParams параметры выборки из параметров маршрута
func SampleParams(p models.RouteParams) track.SampleParams {
	return track.SampleParams{
		MaxCalls:          p.MaxCalls,
		MinSpacingMeters:  p.MinSpacingMeters,
		MinSpacingMinutes: p.MinSpacingMinutes,
		FlatSpeedMps:      p.FlatSpeedMps,
		UphillSpeedMps:    p.UphillSpeedMps,
		DownhillSpeedMps:  p.DownhillSpeedMps,
		StartTime:         p.StartTime,
	}
}

// IsFatal ошибки входных данных, при которых сессия не создается
func IsFatal(err error) bool {
	for _, target := range []error{
		track.ErrInvalidGPX,
		track.ErrNoTrackpoints,
		track.ErrEmptyTrack,
		track.ErrInsufficientPoints,
		track.ErrInvalidSpeed,
		track.ErrInvalidParams,
		ErrInvalidStartTime,
		forecast.ErrUnknownProvider,
		forecast.ErrMissingAPIKey,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RejectReason метка метрики для фатальной ошибки
func RejectReason(err error) string {
	switch {
	case errors.Is(err, track.ErrInvalidGPX):
		return "gpx"
	case errors.Is(err, track.ErrNoTrackpoints):
		return "no_trackpoints"
	case errors.Is(err, track.ErrEmptyTrack), errors.Is(err, track.ErrInsufficientPoints):
		return "empty_track"
	case errors.Is(err, ErrInvalidStartTime):
		return "start_time"
	case errors.Is(err, forecast.ErrUnknownProvider), errors.Is(err, forecast.ErrMissingAPIKey):
		return "provider"
	default:
		return "params"
	}
}

func speedFactor(unit string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "kmh", "km/h", "kph":
		return kmhToMps, nil
	case "mph":
		return mphToMps, nil
	case "mps", "m/s":
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: unknown speed unit %q", track.ErrInvalidParams, unit)
	}
}

func isPositive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}
