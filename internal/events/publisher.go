package events

import (
	"context"
	"encoding/json"
	"time"
)

// RouteProcessed событие завершения обработки маршрута
type RouteProcessed struct {
	RouteID     string    `json:"route_id"`
	Owner       string    `json:"owner,omitempty"`
	Generation  uint64    `json:"generation"`
	Provider    string    `json:"provider"`
	Samples     int       `json:"samples"`
	Missing     int       `json:"missing"`
	DistanceM   float64   `json:"distance_m"`
	DurationSec float64   `json:"duration_s"`
	StartTime   time.Time `json:"start_time"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Payload JSON представление события
func (e RouteProcessed) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher отправляет события о маршрутах
type Publisher interface {
	PublishRouteProcessed(ctx context.Context, evt RouteProcessed) error
	Close()
}

// NopPublisher ничего не отправляет, используется без брокера
type NopPublisher struct{}

// PublishRouteProcessed ничего не делает
func (NopPublisher) PublishRouteProcessed(context.Context, RouteProcessed) error { return nil }

// Close ничего не делает
func (NopPublisher) Close() {}
