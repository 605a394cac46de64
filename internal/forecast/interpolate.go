package forecast

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/flybeeper/routecast/internal/models"
)

// minDomainSpan минимальная ширина шкалы цвета
const minDomainSpan = 0.1

// Palette палитра температур от холодного к теплому
var Palette = []string{"#2c7bb6", "#abd9e9", "#ffffbf", "#fdae61", "#d7191c"}

// ValueFunc извлекает скалярное значение из результата
type ValueFunc func(r models.AlignedResult) float64

// Temperature значение температуры
func Temperature(r models.AlignedResult) float64 { return r.Weather.TempC }

// WindSpeed скорость ветра
func WindSpeed(r models.AlignedResult) float64 { return r.Weather.WindSpeedKmh }

// Precipitation осадки за час
func Precipitation(r models.AlignedResult) float64 { return r.Weather.PrecipMmHr }

// InterpolateDense раскладывает разреженные результаты на n плотных точек по индексу.
// Между двумя соседними результатами значение интерполируется линейно,
// за пределами - берется ближайший. Без данных возвращается NaN.
func InterpolateDense(results []models.AlignedResult, n int, value ValueFunc) []float64 {
	type anchor struct {
		idx int
		v   float64
	}
	anchors := make([]anchor, 0, len(results))
	for _, r := range results {
		if v := value(r); !math.IsNaN(v) {
			anchors = append(anchors, anchor{idx: r.Idx, v: v})
		}
	}
	sort.SliceStable(anchors, func(i, j int) bool { return anchors[i].idx < anchors[j].idx })

	out := make([]float64, n)
	if len(anchors) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	k := 0
	for i := 0; i < n; i++ {
		for k+1 < len(anchors) && anchors[k+1].idx <= i {
			k++
		}
		a := anchors[k]
		switch {
		case i <= a.idx || k+1 >= len(anchors):
			out[i] = a.v
		default:
			b := anchors[k+1]
			t := float64(i-a.idx) / float64(b.idx-a.idx)
			out[i] = a.v + (b.v-a.v)*t
		}
	}
	return out
}

// Domain диапазон значений для цветовой шкалы
type Domain struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Span ширина диапазона, не меньше 0.1
func (d Domain) Span() float64 {
	return math.Max(minDomainSpan, d.Max-d.Min)
}

// ColorDomain нормализует вырожденный диапазон до минимальной ширины
func ColorDomain(lo, hi float64) Domain {
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return Domain{Min: 0, Max: minDomainSpan}
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi-lo < minDomainSpan {
		hi = lo + minDomainSpan
	}
	return Domain{Min: lo, Max: hi}
}

// DomainOf диапазон значений по результатам
func DomainOf(results []models.AlignedResult, value ValueFunc) Domain {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range results {
		v := value(r)
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return ColorDomain(math.NaN(), math.NaN())
	}
	return ColorDomain(lo, hi)
}

// Color цвет значения в диапазоне
func (d Domain) Color(v float64) string {
	if math.IsNaN(v) {
		return "#999999"
	}
	v = math.Max(d.Min, math.Min(d.Max, v))
	return PaletteColor((v - d.Min) / d.Span())
}

// PaletteColor цвет палитры для доли t в [0, 1]
func PaletteColor(t float64) string {
	n := len(Palette) - 1
	if t <= 0 {
		return Palette[0]
	}
	if t >= 1 {
		return Palette[n]
	}
	pos := t * float64(n)
	i := int(math.Floor(pos))
	return lerpColor(Palette[i], Palette[i+1], pos-float64(i))
}

func lerpColor(c1, c2 string, t float64) string {
	r1, g1, b1 := hexToRGB(c1)
	r2, g2, b2 := hexToRGB(c2)
	return fmt.Sprintf("#%02x%02x%02x",
		clampByte(r1+(r2-r1)*t),
		clampByte(g1+(g2-g1)*t),
		clampByte(b1+(b2-b1)*t),
	)
}

func hexToRGB(hex string) (r, g, b float64) {
	parse := func(s string) float64 {
		v, _ := strconv.ParseUint(s, 16, 8)
		return float64(v)
	}
	return parse(hex[1:3]), parse(hex[3:5]), parse(hex[5:7])
}

func clampByte(x float64) int {
	return int(math.Max(0, math.Min(255, math.Round(x))))
}

// WeatherIcon значок погоды по температуре и осадкам
func WeatherIcon(tempC, precip float64) string {
	switch {
	case precip >= 4:
		return "⛈️"
	case precip >= 1:
		return "🌧️"
	case precip >= 0.1:
		return "🌦️"
	case tempC >= 28:
		return "☀️"
	case tempC >= 18:
		return "🌤️"
	case tempC >= 8:
		return "⛅"
	case tempC >= 0:
		return "☁️"
	default:
		return "❄️"
	}
}
