package track

import (
	"math"

	"github.com/flybeeper/routecast/internal/models"
)

// NumBreakSamples количество синтетических точек для остановки длительностью durSec
func NumBreakSamples(durSec int, spacingMinutes float64) int {
	spacingSec := spacingMinutes * 60
	if spacingSec <= 0 {
		return 2
	}
	n := int(math.Ceil(float64(durSec) / spacingSec))
	if n < 2 {
		n = 2
	}
	return n
}

// InsertBreaks вставляет в маршрут синтетические точки остановок.
// Остановка попадает в сегмент (i, i+1), если points[i].Dist <= dist < points[i+1].Dist;
// для последнего сегмента правая граница включена, поэтому остановка в конце маршрута
// оказывается перед финальной точкой.
func InsertBreaks(points []models.TrackPoint, breaks []models.Break, spacingMinutes float64) []models.AugmentedPoint {
	out := make([]models.AugmentedPoint, 0, len(points)+2*len(breaks))
	next := 0

	for i := range points {
		out = append(out, models.AugmentedPoint{TrackPoint: points[i], BreakIdx: -1})
		if i == len(points)-1 {
			break
		}

		a, b := points[i], points[i+1]
		lastSegment := i+1 == len(points)-1

		for next < len(breaks) {
			br := breaks[next]
			inSegment := br.DistMeters >= a.DistMeters &&
				(br.DistMeters < b.DistMeters || (lastSegment && br.DistMeters <= b.DistMeters))
			if !inSegment {
				break
			}

			loc := interpolate(a, b, br.DistMeters)
			n := NumBreakSamples(br.DurSec, spacingMinutes)
			for s := 0; s < n; s++ {
				out = append(out, models.AugmentedPoint{
					TrackPoint:  loc,
					IsBreak:     true,
					BreakIdx:    next,
					BreakSample: s,
				})
			}
			next++
		}
	}

	for i := range out {
		out[i].Idx = i
	}
	return out
}

// interpolate точка на сегменте a-b на накопленной дистанции dist
func interpolate(a, b models.TrackPoint, dist float64) models.TrackPoint {
	frac := 0.0
	if span := b.DistMeters - a.DistMeters; span > 0 {
		frac = (dist - a.DistMeters) / span
	}

	p := models.TrackPoint{
		Lat:        a.Lat + (b.Lat-a.Lat)*frac,
		Lon:        a.Lon + (b.Lon-a.Lon)*frac,
		DistMeters: dist,
	}

	switch {
	case a.Ele != nil && b.Ele != nil:
		ele := *a.Ele + (*b.Ele-*a.Ele)*frac
		p.Ele = &ele
	case a.Ele != nil:
		ele := *a.Ele
		p.Ele = &ele
	case b.Ele != nil:
		ele := *b.Ele
		p.Ele = &ele
	}

	if b.Bearing != nil {
		bearing := *b.Bearing
		p.Bearing = &bearing
	}
	return p
}
