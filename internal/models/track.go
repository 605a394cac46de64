package models

import (
	"time"
)

// RawPoint точка, как она пришла из GPX
type RawPoint struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Ele *float64 `json:"ele,omitempty"`
}

// TrackPoint точка маршрута после дедупликации
type TrackPoint struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Ele        *float64 `json:"ele,omitempty"`     // Высота (м), может отсутствовать
	DistMeters float64  `json:"dist_m"`            // Накопленная дистанция от старта
	Bearing    *float64 `json:"bearing,omitempty"` // Азимут от предыдущей точки, у первой нет
}

// GeoPoint возвращает координаты точки
func (p TrackPoint) GeoPoint() GeoPoint {
	return GeoPoint{Latitude: p.Lat, Longitude: p.Lon}
}

// Break запланированная остановка на маршруте
type Break struct {
	DistMeters float64 `json:"dist_m"`
	DurSec     int     `json:"dur_sec"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Bearing    float64 `json:"bearing"`
}

// AugmentedPoint точка маршрута или синтетическая точка остановки
type AugmentedPoint struct {
	TrackPoint
	Idx         int  `json:"idx"` // Позиция в расширенном массиве
	IsBreak     bool `json:"is_break"`
	BreakIdx    int  `json:"break_idx"`              // Индекс остановки, -1 для реальных точек
	BreakSample int  `json:"break_sample,omitempty"` // Порядковый номер внутри остановки
}

// SamplePoint точка, для которой запрашивается прогноз
type SamplePoint struct {
	AugmentedPoint

	// Движение
	TravelBearing float64 `json:"travel_bearing"`
	AccumDist     float64 `json:"accum_dist_m"`
	AccumTime     float64 `json:"accum_time_s"` // Секунды от старта
	Slope         float64 `json:"slope"`
	SpeedMps      float64 `json:"speed_mps"`

	// Время
	ETA        time.Time `json:"eta"`
	ETAQuarter time.Time `json:"eta_quarter"` // ETA, округленное до 15 минут
}

// GeoPoint возвращает координаты точки выборки
func (s SamplePoint) GeoPoint() GeoPoint {
	return GeoPoint{Latitude: s.Lat, Longitude: s.Lon}
}
