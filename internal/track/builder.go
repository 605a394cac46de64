package track

import (
	"math"

	"github.com/flybeeper/routecast/internal/models"
)

// dedupEpsilon минимальное отличие координат (в градусах) между соседними точками
const dedupEpsilon = 1e-7

// Track построенный маршрут
type Track struct {
	Points []models.TrackPoint
}

// TotalDistance длина маршрута в метрах
func (t *Track) TotalDistance() float64 {
	if len(t.Points) == 0 {
		return 0
	}
	return t.Points[len(t.Points)-1].DistMeters
}

// GeoPoints координаты всех точек маршрута
func (t *Track) GeoPoints() []models.GeoPoint {
	out := make([]models.GeoPoint, len(t.Points))
	for i, p := range t.Points {
		out[i] = p.GeoPoint()
	}
	return out
}

// Build строит маршрут из сырых точек: отбрасывает некорректные координаты,
// схлопывает повторы и считает накопленную дистанцию и азимуты.
func Build(raw []models.RawPoint) (*Track, error) {
	points := make([]models.TrackPoint, 0, len(raw))
	valid := 0

	for _, rp := range raw {
		if (models.GeoPoint{Latitude: rp.Lat, Longitude: rp.Lon}).Validate() != nil {
			continue
		}
		valid++

		tp := models.TrackPoint{Lat: rp.Lat, Lon: rp.Lon}
		if rp.Ele != nil && !math.IsNaN(*rp.Ele) && !math.IsInf(*rp.Ele, 0) {
			ele := *rp.Ele
			tp.Ele = &ele
		}

		if len(points) == 0 {
			points = append(points, tp)
			continue
		}

		prev := points[len(points)-1]
		if math.Abs(tp.Lat-prev.Lat) <= dedupEpsilon && math.Abs(tp.Lon-prev.Lon) <= dedupEpsilon {
			continue
		}

		tp.DistMeters = prev.DistMeters + models.HaversineMeters(prev.Lat, prev.Lon, tp.Lat, tp.Lon)
		bearing := models.InitialBearing(prev.Lat, prev.Lon, tp.Lat, tp.Lon)
		tp.Bearing = &bearing
		points = append(points, tp)
	}

	if valid == 0 {
		return nil, ErrEmptyTrack
	}
	if len(points) < 2 {
		return nil, ErrInsufficientPoints
	}

	return &Track{Points: points}, nil
}
