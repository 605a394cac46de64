package models

import (
	"time"
)

// BreakInput остановка в том виде, как ее задал пользователь
type BreakInput struct {
	Km      float64 `json:"km"`
	Minutes float64 `json:"minutes"`
}

// RouteParams параметры обработки маршрута
type RouteParams struct {
	StartTime         time.Time    `json:"start_time"`
	FlatSpeedMps      float64      `json:"flat_speed_mps"`
	UphillSpeedMps    float64      `json:"uphill_speed_mps,omitempty"`
	DownhillSpeedMps  float64      `json:"downhill_speed_mps,omitempty"`
	MaxCalls          int          `json:"max_calls"`
	MinSpacingMeters  float64      `json:"min_spacing_m"`
	MinSpacingMinutes float64      `json:"min_spacing_min"`
	Provider          string       `json:"provider"`
	Breaks            []BreakInput `json:"breaks,omitempty"`
}

// RouteSession состояние обработанного маршрута между запросами.
// Содержит все входные данные выравнивания, повторная загрузка прогнозов не нужна.
type RouteSession struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner,omitempty"`
	Generation uint64    `json:"generation"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Params  RouteParams       `json:"params"`
	Track   []TrackPoint      `json:"track"`
	Breaks  []Break           `json:"breaks"`
	Samples []SamplePoint     `json:"samples"`
	Series  []*ForecastSeries `json:"series"` // Параллельно Samples, nil при ошибке загрузки

	Warnings    []string     `json:"warnings,omitempty"`
	FetchErrors []PointError `json:"fetch_errors,omitempty"`
}

// TotalDistance длина маршрута в метрах
func (s *RouteSession) TotalDistance() float64 {
	if len(s.Track) == 0 {
		return 0
	}
	return s.Track[len(s.Track)-1].DistMeters
}

// SavedRoute сохраненный пользователем GPX
type SavedRoute struct {
	ID          string    `json:"id"`
	UserID      int       `json:"user_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	GPX         []byte    `json:"-"`
	SizeBytes   int       `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// UserSettings сохраненные настройки пользователя
type UserSettings struct {
	UserID            int       `json:"user_id"`
	Provider          string    `json:"provider"`
	SpeedKmh          float64   `json:"speed_kmh"`
	MaxCalls          int       `json:"max_calls"`
	MinSpacingMeters  float64   `json:"min_spacing_m"`
	MinSpacingMinutes float64   `json:"min_spacing_min"`
	MaxRainMmHr       float64   `json:"max_rain_mm_hr"`
	MaxWindKmh        float64   `json:"max_wind_kmh"`
	MaxGustKmh        float64   `json:"max_gust_kmh"`
	MaxTempC          float64   `json:"max_temp_c"`
	MinTempC          float64   `json:"min_temp_c"`
	UpdatedAt         time.Time `json:"updated_at"`
}
