package track

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/flybeeper/routecast/internal/models"
)

const (
	// UphillSlope уклон, выше которого используется скорость в подъем
	UphillSlope = 0.05
	// DownhillSlope уклон, ниже которого используется скорость на спуске
	DownhillSlope = -0.04

	// breakMatchTolerance допуск поиска остановки по дистанции, м
	breakMatchTolerance = 1.0
)

// SampleParams параметры временной разметки и выборки
type SampleParams struct {
	MaxCalls          int
	MinSpacingMeters  float64
	MinSpacingMinutes float64
	FlatSpeedMps      float64
	UphillSpeedMps    float64 // 0 - как на равнине
	DownhillSpeedMps  float64 // 0 - как на равнине
	StartTime         time.Time
}

// Validate проверяет параметры и подставляет скорости по умолчанию
func (p *SampleParams) Validate() error {
	if !isFinite(p.FlatSpeedMps) || p.FlatSpeedMps <= 0 {
		return ErrInvalidSpeed
	}
	if !isFinite(p.UphillSpeedMps) || p.UphillSpeedMps <= 0 {
		p.UphillSpeedMps = p.FlatSpeedMps
	}
	if !isFinite(p.DownhillSpeedMps) || p.DownhillSpeedMps <= 0 {
		p.DownhillSpeedMps = p.FlatSpeedMps
	}
	if p.MaxCalls < 2 {
		return fmt.Errorf("%w: max calls must be at least 2, got %d", ErrInvalidParams, p.MaxCalls)
	}
	if !isFinite(p.MinSpacingMinutes) || p.MinSpacingMinutes <= 0 {
		return fmt.Errorf("%w: min spacing minutes must be positive", ErrInvalidParams)
	}
	if !isFinite(p.MinSpacingMeters) || p.MinSpacingMeters < 0 {
		return fmt.Errorf("%w: min spacing meters must be non-negative", ErrInvalidParams)
	}
	return nil
}

// SpeedForSlope выбирает скорость по уклону
func (p *SampleParams) SpeedForSlope(slope float64) float64 {
	switch {
	case slope > UphillSlope:
		return p.UphillSpeedMps
	case slope < DownhillSlope:
		return p.DownhillSpeedMps
	default:
		return p.FlatSpeedMps
	}
}

// Slope уклон между точками; 0 при нулевой дистанции или отсутствии высот
func Slope(a, b models.TrackPoint) float64 {
	dist := b.DistMeters - a.DistMeters
	if dist <= 0 || a.Ele == nil || b.Ele == nil {
		return 0
	}
	return (*b.Ele - *a.Ele) / dist
}

// dwell текущая остановка при проходе по маршруту
type dwell struct {
	active  bool
	dur     float64
	step    float64
	elapsed float64
}

// Timeline считает накопленные дистанцию и время для каждой точки (фаза A).
// Длительность каждой остановки соблюдается точно: время первой реальной точки
// после остановки минус время первой синтетической точки равно durSec.
func Timeline(points []models.AugmentedPoint, breaks []models.Break, params SampleParams) ([]models.SamplePoint, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}

	fixedStep := params.MinSpacingMinutes * 60
	counts := breakSampleCounts(points)

	out := make([]models.SamplePoint, len(points))
	out[0] = models.SamplePoint{AugmentedPoint: points[0]}

	var dw dwell
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		dist := math.Max(0, cur.DistMeters-prev.DistMeters)
		slope := Slope(prev.TrackPoint, cur.TrackPoint)
		speed := params.SpeedForSlope(slope)

		var segTime float64
		switch {
		case cur.IsBreak && cur.BreakSample == 0:
			segTime = dist / speed
			if dw.active {
				// остановка сразу после другой остановки: дожидаемся конца предыдущей
				segTime += math.Max(0, dw.dur-dw.elapsed)
			}
			dur := BreakDuration(breaks, cur.DistMeters, cur.BreakIdx)
			dw = dwell{active: true, dur: dur, step: fixedStep}
			if n := counts[cur.BreakIdx]; n > 1 {
				dw.step = math.Min(fixedStep, dur/float64(n-1))
			}

		case cur.IsBreak:
			segTime = dw.step
			dw.elapsed += dw.step
			slope, speed = 0, 0

		case dw.active:
			segTime = math.Max(0, dw.dur-dw.elapsed)
			dw = dwell{}

		default:
			segTime = dist / speed
		}

		out[i] = models.SamplePoint{
			AugmentedPoint: cur,
			AccumDist:      out[i-1].AccumDist + dist,
			AccumTime:      out[i-1].AccumTime + segTime,
			Slope:          slope,
			SpeedMps:       speed,
		}
	}

	fallback := firstBearing(points)
	for i := range out {
		if out[i].Bearing != nil {
			out[i].TravelBearing = *out[i].Bearing
		} else {
			out[i].TravelBearing = fallback
		}
		out[i].ETA = params.StartTime.Add(secondsToDuration(out[i].AccumTime))
		out[i].ETAQuarter = RoundToQuarter(out[i].ETA)
	}

	return out, nil
}

// Sample выполняет все три фазы: разметку временем, фильтр по шагу и
// равномерную по времени прореживающую выборку до MaxCalls точек.
func Sample(points []models.AugmentedPoint, breaks []models.Break, params SampleParams) ([]models.SamplePoint, error) {
	timeline, err := Timeline(points, breaks, params)
	if err != nil {
		return nil, err
	}

	return selectSamples(timeline, params), nil
}

func selectSamples(timeline []models.SamplePoint, params SampleParams) []models.SamplePoint {
	candidates := FilterBySpacing(timeline, params.MinSpacingMeters, params.MinSpacingMinutes)
	if len(candidates) > params.MaxCalls {
		candidates = ResampleByTime(timeline, candidates, params.MaxCalls)
	}

	samples := make([]models.SamplePoint, len(candidates))
	for i, idx := range candidates {
		samples[i] = timeline[idx]
	}
	return samples
}

// FilterBySpacing оставляет точки, отстоящие от предыдущей выбранной не меньше
// чем на minMeters по дистанции или minMinutes по времени (фаза B).
// Первая и последняя точки включаются всегда.
func FilterBySpacing(timeline []models.SamplePoint, minMeters, minMinutes float64) []int {
	if len(timeline) == 0 {
		return nil
	}
	minSec := minMinutes * 60
	keep := []int{0}
	last := 0
	for i := 1; i < len(timeline); i++ {
		if timeline[i].AccumDist-timeline[last].AccumDist >= minMeters ||
			timeline[i].AccumTime-timeline[last].AccumTime >= minSec {
			keep = append(keep, i)
			last = i
		}
	}
	if final := len(timeline) - 1; last != final {
		keep = append(keep, final)
	}
	return keep
}

// ResampleByTime прореживает кандидатов до maxCalls точек, равномерно по
// накопленному времени (фаза C). Для каждой целевой отметки берется ближайший
// по времени кандидат; если он уже выбран, берется ближайший свободный слева
// или справа. Первый и последний кандидаты входят всегда, результат содержит
// ровно maxCalls точек в порядке маршрута.
func ResampleByTime(timeline []models.SamplePoint, candidates []int, maxCalls int) []int {
	n := len(candidates)
	if n <= maxCalls || n < 2 {
		return candidates
	}
	if maxCalls < 2 {
		return []int{candidates[0], candidates[n-1]}
	}

	at := func(pos int) float64 { return timeline[candidates[pos]].AccumTime }
	t0 := at(0)
	total := at(n-1) - t0

	used := make([]bool, n)
	used[0], used[n-1] = true, true
	picked := make([]int, 0, maxCalls)
	picked = append(picked, 0)

	if total <= 0 {
		// Время не растет: равномерно по номеру кандидата
		for k := 1; k < maxCalls-1; k++ {
			picked = append(picked, k*(n-1)/(maxCalls-1))
		}
	} else {
		step := total / float64(maxCalls-1)
		p := 0
		for k := 1; k < maxCalls-1; k++ {
			target := t0 + float64(k)*step
			for p+1 < n && at(p+1) < target {
				p++
			}
			near := p
			if p+1 < n && at(p+1)-target < target-at(p) {
				near = p + 1
			}
			pos := nearestUnused(used, near, func(i int) float64 { return math.Abs(at(i) - target) })
			used[pos] = true
			picked = append(picked, pos)
		}
		sort.Ints(picked)
	}

	out := make([]int, 0, maxCalls)
	for _, pos := range picked {
		out = append(out, candidates[pos])
	}
	return append(out, candidates[n-1])
}

// nearestUnused ищет свободную позицию рядом с from; при равенстве
// расстояний выбирается левая
func nearestUnused(used []bool, from int, dist func(int) float64) int {
	l, r := from, from
	for l >= 0 && used[l] {
		l--
	}
	for r < len(used) && used[r] {
		r++
	}
	switch {
	case l < 0:
		return r
	case r >= len(used):
		return l
	case dist(r) < dist(l):
		return r
	}
	return l
}

// BreakDuration ищет длительность остановки по дистанции с допуском 1 м.
// При нескольких совпадениях предпочитается остановка с индексом breakIdx.
func BreakDuration(breaks []models.Break, distMeters float64, breakIdx int) float64 {
	found := -1
	for i, b := range breaks {
		if math.Abs(b.DistMeters-distMeters) > breakMatchTolerance {
			continue
		}
		if i == breakIdx {
			return float64(b.DurSec)
		}
		if found < 0 {
			found = i
		}
	}
	if found >= 0 {
		return float64(breaks[found].DurSec)
	}
	if breakIdx >= 0 && breakIdx < len(breaks) {
		return float64(breaks[breakIdx].DurSec)
	}
	return 0
}

// RoundToQuarter округляет время до ближайших 15 минут: остаток меньше 8 минут
// отбрасывается, иначе время округляется вверх. Секунды обнуляются.
func RoundToQuarter(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	rem := t.Minute() % 15
	if rem < 8 {
		return t.Add(-time.Duration(rem) * time.Minute)
	}
	return t.Add(time.Duration(15-rem) * time.Minute)
}

func breakSampleCounts(points []models.AugmentedPoint) map[int]int {
	counts := make(map[int]int)
	for _, p := range points {
		if p.IsBreak {
			counts[p.BreakIdx]++
		}
	}
	return counts
}

func firstBearing(points []models.AugmentedPoint) float64 {
	for _, p := range points {
		if p.Bearing != nil {
			return *p.Bearing
		}
	}
	return 0
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}
