package render

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/protomaps/go-maptiles/maptile/classify"
	"github.com/protomaps/go-maptiles/maptile/geo"
	"github.com/protomaps/go-maptiles/maptile/layout"
	"github.com/protomaps/go-maptiles/maptile/store"
)

type fakeStore struct {
	features []store.FeatureData
	err      error
}

func (f *fakeStore) ForEachFeature(box geo.Box, visitor store.Visitor) error {
	if f.err != nil {
		return f.err
	}
	for _, fd := range f.features {
		if !visitor(fd) {
			return nil
		}
	}
	return nil
}

func TestRenderEmptyQueryYieldsWhiteImage(t *testing.T) {
	r := New(&fakeStore{}, nil)
	data, err := r.Render(context.Background(), Query{
		Box:    geo.Box{MinLat: -1, MinLon: -1, MaxLat: 1, MaxLon: 1},
		Width:  16,
		Height: 16,
	})
	assert.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestRenderRejectsZeroSize(t *testing.T) {
	r := New(&fakeStore{}, nil)
	_, err := r.Render(context.Background(), Query{Box: geo.Box{}, Width: 0, Height: 16})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestRenderPropagatesStoreError(t *testing.T) {
	r := New(&fakeStore{err: assertError("boom")}, nil)
	_, err := r.Render(context.Background(), Query{
		Box:    geo.Box{MinLat: -1, MinLon: -1, MaxLat: 1, MaxLon: 1},
		Width:  8,
		Height: 8,
	})
	assert.Error(t, err)
}

func TestRenderDrawsARoadFeature(t *testing.T) {
	features := []store.FeatureData{
		{
			ID:           1,
			GeometryType: layout.GeometryPolyline,
			Coordinates:  []geo.Coordinate{{Lat: -1, Lon: -1}, {Lat: 1, Lon: 1}},
			RenderType:   classify.H__PRIMARY,
		},
	}
	r := New(&fakeStore{features: features}, nil)
	data, err := r.Render(context.Background(), Query{
		Box:    geo.Box{MinLat: -2, MinLon: -2, MaxLat: 2, MaxLon: 2},
		Width:  32,
		Height: 32,
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestRenderAppliesRegionMask(t *testing.T) {
	features := []store.FeatureData{
		{
			ID:           1,
			GeometryType: layout.GeometryPoint,
			Coordinates:  []geo.Coordinate{{Lat: 50, Lon: 50}}, // outside the mask below
			RenderType:   classify.PLACE_NAME,
		},
	}
	r := New(&fakeStore{features: features}, nil)
	mask := []byte(`{"type":"Polygon","coordinates":[[[-1,-1],[1,-1],[1,1],[-1,1],[-1,-1]]]}`)
	data, err := r.Render(context.Background(), Query{
		Box:           geo.Box{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180},
		Width:         16,
		Height:        16,
		RegionGeoJSON: mask,
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestRenderRejectsInvalidRegionMask(t *testing.T) {
	r := New(&fakeStore{}, nil)
	_, err := r.Render(context.Background(), Query{
		Box:           geo.Box{MinLat: -1, MinLon: -1, MaxLat: 1, MaxLon: 1},
		Width:         8,
		Height:        8,
		RegionGeoJSON: []byte(`not json`),
	})
	assert.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
