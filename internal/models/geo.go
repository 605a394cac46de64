package models

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
)

// EarthRadiusMeters радиус Земли для формулы Haversine
const EarthRadiusMeters = 6371000.0

// GeoPoint представляет географическую точку
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Validate проверяет корректность координат
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Longitude)
	}
	return nil
}

// DistanceTo вычисляет расстояние до другой точки в метрах (формула Haversine)
func (p GeoPoint) DistanceTo(other GeoPoint) float64 {
	return HaversineMeters(p.Latitude, p.Longitude, other.Latitude, other.Longitude)
}

// BearingTo возвращает начальный азимут на другую точку, 0..360 по часовой от севера
func (p GeoPoint) BearingTo(other GeoPoint) float64 {
	return InitialBearing(p.Latitude, p.Longitude, other.Latitude, other.Longitude)
}

// Geohash возвращает geohash для точки с заданной точностью
func (p GeoPoint) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision))
}

// HaversineMeters расстояние по большому кругу между двумя парами координат
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// InitialBearing начальный азимут из (lat1, lon1) в (lat2, lon2)
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(deltaLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLon)

	return math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
}

// Bounds представляет географические границы
type Bounds struct {
	Southwest GeoPoint `json:"sw"`
	Northeast GeoPoint `json:"ne"`
}

// BoundsOf возвращает прямоугольник, покрывающий все точки
func BoundsOf(points []GeoPoint) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{Southwest: points[0], Northeast: points[0]}
	for _, p := range points[1:] {
		b.Southwest.Latitude = math.Min(b.Southwest.Latitude, p.Latitude)
		b.Southwest.Longitude = math.Min(b.Southwest.Longitude, p.Longitude)
		b.Northeast.Latitude = math.Max(b.Northeast.Latitude, p.Latitude)
		b.Northeast.Longitude = math.Max(b.Northeast.Longitude, p.Longitude)
	}
	return b
}

// Contains проверяет, содержится ли точка в границах
func (b Bounds) Contains(point GeoPoint) bool {
	return point.Latitude >= b.Southwest.Latitude && point.Latitude <= b.Northeast.Latitude &&
		point.Longitude >= b.Southwest.Longitude && point.Longitude <= b.Northeast.Longitude
}

// Center возвращает центральную точку границ
func (b Bounds) Center() GeoPoint {
	return GeoPoint{
		Latitude:  (b.Southwest.Latitude + b.Northeast.Latitude) / 2,
		Longitude: (b.Southwest.Longitude + b.Northeast.Longitude) / 2,
	}
}
