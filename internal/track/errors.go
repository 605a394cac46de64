package track

import "errors"

var (
	// ErrInvalidGPX документ не разобран как GPX
	ErrInvalidGPX = errors.New("invalid gpx document")
	// ErrNoTrackpoints в GPX нет ни одной точки трека или маршрута
	ErrNoTrackpoints = errors.New("gpx contains no trackpoints")
	// ErrEmptyTrack ни одна точка не прошла проверку координат
	ErrEmptyTrack = errors.New("empty track: no valid points")
	// ErrInsufficientPoints после дедупликации осталось меньше двух точек
	ErrInsufficientPoints = errors.New("insufficient points: need at least 2 distinct points")
	// ErrInvalidSpeed скорость должна быть положительной
	ErrInvalidSpeed = errors.New("average speed must be positive")
	// ErrInvalidParams некорректные параметры выборки
	ErrInvalidParams = errors.New("invalid sampling parameters")
)
