package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/flybeeper/routecast/internal/auth"
	"github.com/flybeeper/routecast/internal/config"
	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/repository"
	"github.com/flybeeper/routecast/internal/service"
	"github.com/flybeeper/routecast/internal/track"
	"github.com/flybeeper/routecast/pkg/utils"
)

const testGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="routecast-test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Roero hills</name>
    <trkseg>
      <trkpt lat="44.80" lon="7.90"><ele>250</ele></trkpt>
      <trkpt lat="44.80" lon="7.91"><ele>260</ele></trkpt>
      <trkpt lat="44.80" lon="7.92"><ele>270</ele></trkpt>
      <trkpt lat="44.80" lon="7.93"><ele>265</ele></trkpt>
    </trkseg>
  </trk>
</gpx>`

var testStart = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// stubProvider отдает ровный ряд на сутки вокруг testStart
type stubProvider struct{}

func (stubProvider) Name() string { return forecast.ProviderOpenMeteo }

func (stubProvider) Fetch(_ context.Context, lat, lon float64) (*models.ForecastSeries, error) {
	s := &models.ForecastSeries{Provider: forecast.ProviderOpenMeteo, Lat: lat, Lon: lon}
	from := testStart.Add(-3 * time.Hour)
	for i := 0; i < 48; i++ {
		s.Times = append(s.Times, from.Add(time.Duration(i)*30*time.Minute))
		s.TempC = append(s.TempC, 18)
		s.FeltTempC = append(s.FeltTempC, 17)
		s.WindSpeedKmh = append(s.WindSpeedKmh, 10)
		s.WindGustsKmh = append(s.WindGustsKmh, 18)
		s.WindFromDeg = append(s.WindFromDeg, 270)
		s.PrecipMmHr = append(s.PrecipMmHr, 0)
		s.PrecipProb = append(s.PrecipProb, 0)
		s.CloudCover = append(s.CloudCover, 20)
		s.CloudCoverLow = append(s.CloudCoverLow, 5)
		s.IsDay = append(s.IsDay, 1)
	}
	return s, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(name, _ string) (forecast.Provider, error) {
	if name != forecast.ProviderOpenMeteo {
		return nil, fmt.Errorf("%w: %q", forecast.ErrUnknownProvider, name)
	}
	return stubProvider{}, nil
}

// tokenValidator пускает только токены из карты
type tokenValidator map[string]*auth.User

func (v tokenValidator) ValidateToken(_ context.Context, token string) (*auth.User, error) {
	if u, ok := v[token]; ok {
		return u, nil
	}
	return nil, auth.ErrInvalidToken
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{MaxUploadBytes: 1 << 20},
		Forecast:    config.ForecastConfig{DefaultProvider: forecast.ProviderOpenMeteo},
		Route: config.RouteConfig{
			DefaultSpeedKmh:   20,
			DefaultMaxCalls:   30,
			MaxCallsLimit:     200,
			MinSpacingMeters:  200,
			MinSpacingMinutes: 1,
		},
	}
}

type testServer struct {
	handler http.Handler
	store   *repository.SQLRouteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := utils.NewNopLogger()
	cfg := testConfig()

	store, err := repository.NewSQLiteRouteStore(filepath.Join(t.TempDir(), "routes.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))

	fetcher := service.NewFetcher(nil, service.FetcherConfig{Workers: 2}, logger)
	routes := service.NewRouteService(repository.NewMemorySessionStore(16, time.Hour), stubResolver{}, fetcher, nil, nil, logger)
	validator := service.NewRequestValidator(cfg.Route, cfg.Forecast.DefaultProvider, time.UTC, logger)

	srv := NewServer(cfg, Deps{
		Routes:    routes,
		Validator: validator,
		Store:     store,
		Progress:  NewProgressHub(logger, nil, time.Second, 2*time.Second),
		Auth:      auth.NewMiddleware(tokenValidator{"alice": {ID: 7, Name: "Alice"}}, logger),
		Checks: map[string]HealthCheck{
			"store": store.Ping,
		},
	}, logger)

	return &testServer{handler: srv.Handler(), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func routeBody() map[string]interface{} {
	return map[string]interface{}{
		"gpx":   testGPX,
		"start": testStart.Format(time.RFC3339),
		"speed": 18,
	}
}

func (s *testServer) createRoute(t *testing.T) map[string]interface{} {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/routes", routeBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]interface{}{"store": "ok"}, body["components"])
}

func TestCreateRoute(t *testing.T) {
	s := newTestServer(t)
	view := s.createRoute(t)

	assert.NotEmpty(t, view["session_id"])
	assert.Equal(t, "Roero hills", view["name"])
	assert.Equal(t, forecast.ProviderOpenMeteo, view["provider"])
	results, ok := view["results"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, results)
	assert.NotNil(t, view["stats"])
}

func TestCreateRoute_Multipart(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("start", "2025-06-01T10:00"))
	require.NoError(t, mw.WriteField("speed", "12"))
	require.NoError(t, mw.WriteField("speed_unit", "mph"))
	require.NoError(t, mw.WriteField("breaks", "1.5:20"))
	fw, err := mw.CreateFormFile("gpx", "roero.gpx")
	require.NoError(t, err)
	_, err = fw.Write([]byte(testGPX))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/routes", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var view service.RouteView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "roero", view.Name)
	assert.True(t, view.Start.Equal(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)))
	assert.Len(t, view.Breaks, 1)
}

func TestCreateRoute_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		status int
		code   string
	}{
		{"missing gpx", func(b map[string]interface{}) { delete(b, "gpx") }, http.StatusBadRequest, "invalid_request"},
		{"broken gpx", func(b map[string]interface{}) { b["gpx"] = "<gpx><trk>" }, http.StatusUnprocessableEntity, "invalid_gpx"},
		{"no trackpoints", func(b map[string]interface{}) {
			b["gpx"] = `<gpx version="1.1" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg></trkseg></trk></gpx>`
		}, http.StatusUnprocessableEntity, "no_trackpoints"},
		{"missing start", func(b map[string]interface{}) { delete(b, "start") }, http.StatusUnprocessableEntity, "invalid_start_time"},
		{"negative speed", func(b map[string]interface{}) { b["speed"] = -5 }, http.StatusUnprocessableEntity, "invalid_speed"},
		{"unknown provider", func(b map[string]interface{}) { b["provider"] = "windy" }, http.StatusUnprocessableEntity, "unknown_provider"},
		{"bad breaks", func(b map[string]interface{}) { b["breaks"] = "abc" }, http.StatusUnprocessableEntity, "invalid_params"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := routeBody()
			tt.mutate(body)
			w := s.do(t, http.MethodPost, "/api/v1/routes", body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestRouteEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.createRoute(t)["session_id"].(string)

	t.Run("get route", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, id, body["id"])
		assert.Greater(t, body["distance_m"].(float64), 2000.0)
		assert.NotContains(t, body, "series")
	})

	t.Run("shift start", func(t *testing.T) {
		start := testStart.Add(2 * time.Hour).Format(time.RFC3339)
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/forecast?start="+start, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var view service.ForecastView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.True(t, view.Start.Equal(testStart.Add(2*time.Hour)))
		require.NotEmpty(t, view.Results)
		assert.Empty(t, view.Errors)
	})

	t.Run("start out of range", func(t *testing.T) {
		start := testStart.Add(72 * time.Hour).Format(time.RFC3339)
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/forecast?start="+start, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var view service.ForecastView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.NotEmpty(t, view.Errors)
	})

	t.Run("bad start", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/forecast?start=tomorrow", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("geojson", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/geojson", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, contentTypeGeoJSON, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), `"FeatureCollection"`)
	})

	t.Run("best start", func(t *testing.T) {
		from := testStart.Format(time.RFC3339)
		to := testStart.Add(3 * time.Hour).Format(time.RFC3339)
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/best-start?from="+from+"&to="+to+"&step=1h&max_wind=30", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body struct {
			Best       *forecast.Candidate  `json:"best"`
			Candidates []forecast.Candidate `json:"candidates"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Len(t, body.Candidates, 4)
		require.NotNil(t, body.Best)
		assert.Zero(t, body.Best.Violations)
	})

	t.Run("best start bad step", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/best-start?step=-5m", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_step", decodeError(t, w).Code)
	})

	t.Run("snap", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/snap?lat=44.801&lon=7.91", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Snap track.SnapResult `json:"snap"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Snap.Idx)
	})

	t.Run("snap invalid", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/snap?lat=95&lon=7.91", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_latitude", decodeError(t, w).Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := s.do(t, http.MethodDelete, "/api/v1/routes/"+id, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = s.do(t, http.MethodGet, "/api/v1/routes/"+id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeError(t, w).Code)
	})
}

func TestForecast_Protobuf(t *testing.T) {
	s := newTestServer(t)
	id := s.createRoute(t)["session_id"].(string)

	w := s.do(t, http.MethodGet, "/api/v1/routes/"+id+"/forecast", nil, "Accept", contentTypeProtobuf)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, contentTypeProtobuf, w.Header().Get("Content-Type"))

	var value structpb.Value
	require.NoError(t, proto.Unmarshal(w.Body.Bytes(), &value))
	fields := value.GetStructValue().GetFields()
	assert.Equal(t, id, fields["session_id"].GetStringValue())
	assert.NotEmpty(t, fields["results"].GetListValue().GetValues())
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrap: %w", service.ErrSuperseded), http.StatusConflict, "superseded"},
		{service.ErrSessionNotFound, http.StatusNotFound, "not_found"},
		{repository.ErrNotFound, http.StatusNotFound, "not_found"},
		{track.ErrEmptyTrack, http.StatusUnprocessableEntity, "empty_track"},
		{track.ErrInsufficientPoints, http.StatusUnprocessableEntity, "insufficient_points"},
		{forecast.ErrMissingAPIKey, http.StatusUnprocessableEntity, "missing_api_key"},
		{forecast.ErrInvalidWindow, http.StatusUnprocessableEntity, "invalid_window"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, code := errorResponse(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestMyRoutes(t *testing.T) {
	s := newTestServer(t)
	bearer := []string{"Authorization", "Bearer alice"}

	t.Run("requires auth", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/me/routes", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	w := s.do(t, http.MethodPost, "/api/v1/me/routes", map[string]interface{}{"gpx": testGPX}, bearer...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved models.SavedRoute
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 7, saved.UserID)
	assert.Equal(t, "Roero hills", saved.Name)

	t.Run("rejects broken gpx", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/me/routes", map[string]interface{}{"gpx": "<nope"}, bearer...)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/me/routes", nil, bearer...)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Routes []models.SavedRoute `json:"routes"`
			Count  int                 `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
	})

	t.Run("download gpx", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/me/routes/"+saved.ID+"?format=gpx", nil, bearer...)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, testGPX, w.Body.String())
		assert.True(t, strings.HasSuffix(w.Header().Get("Content-Disposition"), `.gpx"`))
	})

	t.Run("rename", func(t *testing.T) {
		w := s.do(t, http.MethodPatch, "/api/v1/me/routes/"+saved.ID, map[string]string{"display_name": "Sunday ride"}, bearer...)
		require.Equal(t, http.StatusNoContent, w.Code)
		got, err := s.store.GetRoute(context.Background(), 7, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "Sunday ride", got.DisplayName)
	})

	t.Run("process saved", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/me/routes/"+saved.ID+"/process",
			map[string]interface{}{"start": testStart.Format(time.RFC3339)}, bearer...)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var view service.RouteView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, "Sunday ride", view.Name)
		assert.NotEmpty(t, view.Results)
	})

	t.Run("delete", func(t *testing.T) {
		w := s.do(t, http.MethodDelete, "/api/v1/me/routes/"+saved.ID, nil, bearer...)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = s.do(t, http.MethodDelete, "/api/v1/me/routes/"+saved.ID, nil, bearer...)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMySettings(t *testing.T) {
	s := newTestServer(t)
	bearer := []string{"Authorization", "Bearer alice"}

	w := s.do(t, http.MethodGet, "/api/v1/me/settings", nil, bearer...)
	require.Equal(t, http.StatusOK, w.Code)
	var settings models.UserSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, 7, settings.UserID)
	assert.Equal(t, forecast.ProviderOpenMeteo, settings.Provider)
	assert.Equal(t, 20.0, settings.SpeedKmh)

	settings.SpeedKmh = 24
	settings.MaxGustKmh = 45
	w = s.do(t, http.MethodPut, "/api/v1/me/settings", settings, bearer...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/me/settings", nil, bearer...)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, 24.0, settings.SpeedKmh)
	assert.Equal(t, 45.0, settings.MaxGustKmh)

	settings.MinTempC = 40
	w = s.do(t, http.MethodPut, "/api/v1/me/settings", settings, bearer...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_settings", decodeError(t, w).Code)
}
