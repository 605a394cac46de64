package service

import (
	"context"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/track"
)

// GeoJSON слой карты для времени старта: линия маршрута, раскрашенная по
// интерполированной температуре, маркеры точек выборки и остановок
func (s *RouteService) GeoJSON(ctx context.Context, id string, start time.Time) (*geojson.FeatureCollection, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = session.Params.StartTime
	}
	view := align(session, start)
	return BuildFeatureCollection(session, view.Results), nil
}

// BuildFeatureCollection собирает GeoJSON по сессии и выровненным результатам
func BuildFeatureCollection(session *models.RouteSession, results []models.AlignedResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	augmented := track.InsertBreaks(session.Track, session.Breaks, session.Params.MinSpacingMinutes)
	temps := forecast.InterpolateDense(results, len(augmented), forecast.Temperature)
	domain := forecast.DomainOf(results, forecast.Temperature)

	for _, f := range routeSegments(augmented, temps, domain) {
		fc.Append(f)
	}

	for _, r := range results {
		f := geojson.NewFeature(orb.Point{r.Lon, r.Lat})
		f.Properties["kind"] = "sample"
		f.Properties["sample_idx"] = r.SampleIdx
		f.Properties["eta"] = r.ShiftedETA.Format(time.RFC3339)
		f.Properties["forecast_time"] = r.ForecastTime.Format(time.RFC3339)
		f.Properties["is_break"] = r.IsBreak
		f.Properties["dist_km"] = round(r.AccumDist/1000, 2)
		f.Properties["icon"] = forecast.WeatherIcon(r.Weather.TempC, r.Weather.PrecipMmHr)
		f.Properties["color"] = domain.Color(r.Weather.TempC)
		f.Properties["wind_dir"] = forecast.CompassPoint(r.Weather.WindFromDeg)
		setFinite(f.Properties, "temp_c", r.Weather.TempC)
		setFinite(f.Properties, "felt_temp_c", r.Weather.FeltTempC)
		setFinite(f.Properties, "wind_kmh", r.Weather.WindSpeedKmh)
		setFinite(f.Properties, "gust_kmh", r.Weather.WindGustsKmh)
		setFinite(f.Properties, "precip_mm_hr", r.Weather.PrecipMmHr)
		setFinite(f.Properties, "precip_prob", r.Weather.PrecipProb)
		if r.HeadwindKmh != nil {
			f.Properties["headwind_kmh"] = round(*r.HeadwindKmh, 1)
		}
		fc.Append(f)
	}

	for i, b := range session.Breaks {
		f := geojson.NewFeature(orb.Point{b.Lon, b.Lat})
		f.Properties["kind"] = "break"
		f.Properties["break_idx"] = i
		f.Properties["dist_km"] = round(b.DistMeters/1000, 2)
		f.Properties["minutes"] = round(float64(b.DurSec)/60, 1)
		fc.Append(f)
	}

	fc.ExtraMembers = geojson.Properties{
		"temp_domain": map[string]float64{"min": domain.Min, "max": domain.Max},
	}
	return fc
}

// routeSegments объединяет соседние отрезки одного цвета в одну линию
func routeSegments(points []models.AugmentedPoint, values []float64, domain forecast.Domain) []*geojson.Feature {
	var (
		features []*geojson.Feature
		line     orb.LineString
		color    string
	)
	flush := func() {
		if len(line) >= 2 {
			f := geojson.NewFeature(line)
			f.Properties["kind"] = "route"
			f.Properties["color"] = color
			features = append(features, f)
		}
		line = nil
	}

	for i, p := range points {
		if p.IsBreak {
			continue
		}
		c := domain.Color(values[i])
		pt := orb.Point{p.Lon, p.Lat}
		if c != color && len(line) > 0 {
			last := line[len(line)-1]
			flush()
			line = orb.LineString{last}
		}
		color = c
		line = append(line, pt)
	}
	flush()
	return features
}

func setFinite(props geojson.Properties, key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		props[key] = nil
		return
	}
	props[key] = round(v, 2)
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
