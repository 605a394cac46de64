package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/routecast/internal/models"
)

func TestRouteService_GeoJSON(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	params := testParams()
	params.Breaks = nil
	view, err := fx.svc.ProcessRoute(ctx, ProcessInput{Owner: "c", GPX: []byte(testGPX), Params: params})
	require.NoError(t, err)

	fc, err := fx.svc.GeoJSON(ctx, view.SessionID, testStart)
	require.NoError(t, err)

	kinds := map[string]int{}
	for _, f := range fc.Features {
		kinds[f.Properties.MustString("kind")]++
	}
	assert.GreaterOrEqual(t, kinds["route"], 1)
	assert.Equal(t, len(view.Results), kinds["sample"])
	assert.Zero(t, kinds["break"])

	for _, f := range fc.Features {
		if f.Properties.MustString("kind") != "sample" {
			continue
		}
		assert.NotEmpty(t, f.Properties.MustString("icon"))
		assert.Regexp(t, `^#[0-9a-f]{6}$`, f.Properties.MustString("color"))
		assert.Equal(t, "E", f.Properties.MustString("wind_dir"))
	}

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"temp_domain"`)
}

func TestRouteService_GeoJSONBreaks(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	params := testParams()
	params.Breaks = []models.BreakInput{{Km: 0.8, Minutes: 20}}
	view, err := fx.svc.ProcessRoute(ctx, ProcessInput{Owner: "c", GPX: []byte(testGPX), Params: params})
	require.NoError(t, err)
	require.Len(t, view.Breaks, 1)
	require.Len(t, view.BreakWindows, 1)

	fc, err := fx.svc.GeoJSON(ctx, view.SessionID, testStart)
	require.NoError(t, err)

	var breaks int
	for _, f := range fc.Features {
		if f.Properties.MustString("kind") == "break" {
			breaks++
			assert.Equal(t, 20.0, f.Properties.MustFloat64("minutes"))
		}
	}
	assert.Equal(t, 1, breaks)
}
