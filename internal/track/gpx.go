package track

import (
	"fmt"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/flybeeper/routecast/internal/models"
)

// ParseGPX извлекает точки трека из GPX документа.
// Если треков нет, используются точки маршрутов (rte).
func ParseGPX(data []byte) ([]models.RawPoint, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGPX, err)
	}

	var points []models.RawPoint
	add := func(p *gpx.GPXPoint) {
		rp := models.RawPoint{Lat: p.Latitude, Lon: p.Longitude}
		if p.Elevation.NotNull() {
			ele := p.Elevation.Value()
			rp.Ele = &ele
		}
		points = append(points, rp)
	}

	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for i := range seg.Points {
				add(&seg.Points[i])
			}
		}
	}

	if len(points) == 0 {
		for _, rte := range doc.Routes {
			for i := range rte.Points {
				add(&rte.Points[i])
			}
		}
	}

	if len(points) == 0 {
		return nil, ErrNoTrackpoints
	}

	return points, nil
}

// TrackName возвращает имя первого трека или метаданных GPX
func TrackName(data []byte) string {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return ""
	}
	for _, trk := range doc.Tracks {
		if trk.Name != "" {
			return trk.Name
		}
	}
	return doc.Name
}
