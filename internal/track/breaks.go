package track

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/flybeeper/routecast/internal/models"
)

// PlanBreaks превращает пользовательские остановки в точки на маршруте.
// Некорректные строки и остановки за концом маршрута пропускаются,
// причины возвращаются списком предупреждений.
func PlanBreaks(inputs []models.BreakInput, t *Track) ([]models.Break, []string) {
	var (
		breaks   []models.Break
		warnings []string
	)
	total := t.TotalDistance()

	for i, in := range inputs {
		if !isFinite(in.Km) || in.Km < 0 || !isFinite(in.Minutes) || in.Minutes <= 0 {
			warnings = append(warnings, fmt.Sprintf("break #%d skipped: invalid distance or duration (km=%v, min=%v)", i+1, in.Km, in.Minutes))
			continue
		}

		distMeters := in.Km * 1000
		if distMeters > total {
			warnings = append(warnings, fmt.Sprintf("break #%d skipped: %.1f km exceeds route length %.1f km", i+1, in.Km, total/1000))
			continue
		}

		nearest := nearestByDistance(t.Points, distMeters)
		p := t.Points[nearest]
		b := models.Break{
			DistMeters: distMeters,
			DurSec:     int(math.Round(in.Minutes * 60)),
			Lat:        p.Lat,
			Lon:        p.Lon,
		}
		switch {
		case p.Bearing != nil:
			b.Bearing = *p.Bearing
		case len(t.Points) > 1 && t.Points[1].Bearing != nil:
			b.Bearing = *t.Points[1].Bearing
		}
		breaks = append(breaks, b)
	}

	sort.SliceStable(breaks, func(i, j int) bool {
		return breaks[i].DistMeters < breaks[j].DistMeters
	})

	return breaks, warnings
}

// nearestByDistance индекс точки с ближайшей накопленной дистанцией, при равенстве первая
func nearestByDistance(points []models.TrackPoint, distMeters float64) int {
	best := 0
	bestDiff := math.Inf(1)
	for i, p := range points {
		if d := math.Abs(p.DistMeters - distMeters); d < bestDiff {
			best = i
			bestDiff = d
		}
	}
	return best
}

// ParseBreakInputs разбирает строку вида "12.5:15, 40:30" (км:минуты)
func ParseBreakInputs(s string) ([]models.BreakInput, error) {
	var out []models.BreakInput
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kmStr, minStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("break %q: expected km:minutes", part)
		}
		km, err := strconv.ParseFloat(strings.TrimSpace(kmStr), 64)
		if err != nil {
			return nil, fmt.Errorf("break %q: invalid km: %w", part, err)
		}
		minutes, err := strconv.ParseFloat(strings.TrimSpace(minStr), 64)
		if err != nil {
			return nil, fmt.Errorf("break %q: invalid minutes: %w", part, err)
		}
		out = append(out, models.BreakInput{Km: km, Minutes: minutes})
	}
	return out, nil
}

// SnapResult ближайшая к произвольной координате точка маршрута
type SnapResult struct {
	Idx        int     `json:"idx"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistMeters float64 `json:"dist_m"`
	OffsetM    float64 `json:"offset_m"` // Расстояние от запрошенной координаты до точки
}

// SnapToRoute находит точку маршрута, ближайшую к (lat, lon)
func SnapToRoute(t *Track, lat, lon float64) SnapResult {
	res := SnapResult{OffsetM: math.Inf(1)}
	for i, p := range t.Points {
		d := models.HaversineMeters(lat, lon, p.Lat, p.Lon)
		if d < res.OffsetM {
			res = SnapResult{Idx: i, Lat: p.Lat, Lon: p.Lon, DistMeters: p.DistMeters, OffsetM: d}
		}
	}
	return res
}

// BreakWindow интервал остановки в секундах от старта
type BreakWindow struct {
	BreakIdx int     `json:"break_idx"`
	StartSec float64 `json:"start_s"`
	EndSec   float64 `json:"end_s"`
}

// BreakWindows возвращает интервалы остановок по размеченному маршруту
func BreakWindows(timeline []models.SamplePoint, breaks []models.Break) []BreakWindow {
	var windows []BreakWindow
	for _, s := range timeline {
		if !s.IsBreak || s.BreakSample != 0 {
			continue
		}
		dur := BreakDuration(breaks, s.DistMeters, s.BreakIdx)
		windows = append(windows, BreakWindow{
			BreakIdx: s.BreakIdx,
			StartSec: s.AccumTime,
			EndSec:   s.AccumTime + dur,
		})
	}
	return windows
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
