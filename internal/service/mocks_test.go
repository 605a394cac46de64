package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/flybeeper/routecast/internal/events"
	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/models"
)

var testStart = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

const testGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="routecast-test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Langhe loop</name>
    <trkseg>
      <trkpt lat="45.0" lon="7.0"><ele>300</ele></trkpt>
      <trkpt lat="45.0" lon="7.01"><ele>305</ele></trkpt>
      <trkpt lat="45.0" lon="7.02"><ele>310</ele></trkpt>
    </trkseg>
  </trk>
</gpx>`

// fakeProvider отдает ряд с шагом 15 минут на сутки вперед от testStart
type fakeProvider struct {
	name    string
	failLon map[float64]bool
	block   bool
	entered chan struct{}
	calls   atomic.Int64
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, failLon: map[float64]bool{}, entered: make(chan struct{}, 64)}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(ctx context.Context, lat, lon float64) (*models.ForecastSeries, error) {
	p.calls.Add(1)
	if p.block {
		select {
		case p.entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.failLon[math.Round(lon*100)/100] {
		return nil, fmt.Errorf("%s HTTP 503", p.name)
	}
	return testSeries(p.name, lat, lon, testStart.Add(-2*time.Hour), 24*4), nil
}

func testSeries(provider string, lat, lon float64, from time.Time, n int) *models.ForecastSeries {
	s := &models.ForecastSeries{Provider: provider, Lat: lat, Lon: lon}
	for i := 0; i < n; i++ {
		s.Times = append(s.Times, from.Add(time.Duration(i)*15*time.Minute))
		s.TempC = append(s.TempC, 10+float64(i%8))
		s.FeltTempC = append(s.FeltTempC, 9)
		s.WindSpeedKmh = append(s.WindSpeedKmh, 12)
		s.WindGustsKmh = append(s.WindGustsKmh, 20)
		s.WindFromDeg = append(s.WindFromDeg, 90)
		s.PrecipMmHr = append(s.PrecipMmHr, 0)
		s.PrecipProb = append(s.PrecipProb, 5)
		s.CloudCover = append(s.CloudCover, 30)
		s.CloudCoverLow = append(s.CloudCoverLow, 10)
		s.IsDay = append(s.IsDay, 1)
	}
	return s
}

// mapResolver провайдеры по имени
type mapResolver map[string]forecast.Provider

func (r mapResolver) Resolve(name, _ string) (forecast.Provider, error) {
	if p, ok := r[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", forecast.ErrUnknownProvider, name)
}

// MockPublisher мок издателя событий
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishRouteProcessed(ctx context.Context, evt events.RouteProcessed) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

// MockArchiver мок архиватора
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Queue(route *models.SavedRoute) error {
	args := m.Called(route)
	return args.Error(0)
}

// MockRouteStore мок хранилища маршрутов
type MockRouteStore struct {
	mock.Mock
	mu      sync.Mutex
	created []*models.SavedRoute
}

func (m *MockRouteStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRouteStore) Close() error {
	return m.Called().Error(0)
}

func (m *MockRouteStore) ListRoutes(ctx context.Context, userID int) ([]*models.SavedRoute, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SavedRoute), args.Error(1)
}

func (m *MockRouteStore) GetRoute(ctx context.Context, userID int, id string) (*models.SavedRoute, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SavedRoute), args.Error(1)
}

func (m *MockRouteStore) CreateRoute(ctx context.Context, route *models.SavedRoute) error {
	err := m.Called(ctx, route).Error(0)
	if err == nil {
		m.mu.Lock()
		m.created = append(m.created, route)
		m.mu.Unlock()
	}
	return err
}

func (m *MockRouteStore) RenameRoute(ctx context.Context, userID int, id, displayName string) error {
	return m.Called(ctx, userID, id, displayName).Error(0)
}

func (m *MockRouteStore) DeleteRoute(ctx context.Context, userID int, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *MockRouteStore) GetSettings(ctx context.Context, userID int) (*models.UserSettings, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserSettings), args.Error(1)
}

func (m *MockRouteStore) SaveSettings(ctx context.Context, settings *models.UserSettings) error {
	return m.Called(ctx, settings).Error(0)
}

func (m *MockRouteStore) Created() []*models.SavedRoute {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.SavedRoute(nil), m.created...)
}
