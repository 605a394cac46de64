package forecast

import (
	"math"
)

// Headwind эффективный ветер вдоль направления движения.
// windFromDeg - откуда дует ветер, bearing - куда едем.
// Положительное значение - встречный ветер, отрицательное - попутный.
func Headwind(windFromDeg, bearing, speed float64) float64 {
	if math.IsNaN(windFromDeg) || math.IsNaN(speed) {
		return math.NaN()
	}
	delta := (windFromDeg - bearing) * math.Pi / 180
	return speed * math.Cos(delta)
}

// Crosswind боковая составляющая ветра, знак показывает сторону (справа положительная)
func Crosswind(windFromDeg, bearing, speed float64) float64 {
	if math.IsNaN(windFromDeg) || math.IsNaN(speed) {
		return math.NaN()
	}
	delta := (windFromDeg - bearing) * math.Pi / 180
	return speed * math.Sin(delta)
}

var compass8 = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// CompassPoint восьмирумбовое обозначение направления
func CompassPoint(deg float64) string {
	if math.IsNaN(deg) {
		return ""
	}
	d := math.Mod(math.Mod(deg, 360)+360, 360)
	return compass8[int(math.Round(d/45))%8]
}
