package tessellate

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/protomaps/go-maptiles/maptile/classify"
	"github.com/protomaps/go-maptiles/maptile/geo"
)

func TestAddRoadPrimary(t *testing.T) {
	tt := New(nil)
	ok := tt.Add(Input{
		RenderType:   classify.H__PRIMARY,
		GeometryType: classify.GeometryPolyline,
		Coordinates:  []geo.Coordinate{{Lat: 52.0, Lon: 4.0}, {Lat: 52.1, Lon: 4.1}},
	})
	assert.True(t, ok)
	assert.Equal(t, 1, tt.Queue.Len())
	shape := heap.Pop(&tt.Queue).(*Shape)
	assert.Equal(t, ShapeRoad, shape.Kind)
	assert.Equal(t, 50, shape.Z)
	assert.Equal(t, RoadPrimary, shape.RoadKind)
}

func TestAddUnknownDropsSilentlyNoDiagnostic(t *testing.T) {
	called := false
	tt := New(func(classify.RenderType) { called = true })
	ok := tt.Add(Input{RenderType: classify.UNKNOWN, GeometryType: classify.GeometryPolyline})
	assert.False(t, ok)
	assert.False(t, called)
	assert.Equal(t, 0, tt.Queue.Len())
}

func TestAddUnhandledGeneralEmitsDiagnostic(t *testing.T) {
	var got classify.RenderType
	tt := New(func(r classify.RenderType) { got = r })
	ok := tt.Add(Input{RenderType: classify.BUILDING, GeometryType: classify.GeometryPolygon})
	assert.False(t, ok)
	assert.Equal(t, classify.BUILDING, got)
}

func TestQueueOrderingAscendingZStableOnTies(t *testing.T) {
	tt := New(nil)
	tt.Add(Input{RenderType: classify.PLACE_NAME, Coordinates: []geo.Coordinate{{Lat: 1, Lon: 1}}}) // z 60
	tt.Add(Input{RenderType: classify.BORDER, Coordinates: []geo.Coordinate{{Lat: 1, Lon: 1}}})      // z 30
	tt.Add(Input{RenderType: classify.RAILWAY, Coordinates: []geo.Coordinate{{Lat: 1, Lon: 1}}})     // z 45

	var order []int
	for tt.Queue.Len() > 0 {
		s := heap.Pop(&tt.Queue).(*Shape)
		order = append(order, s.Z)
	}
	assert.Equal(t, []int{30, 45, 60}, order)

	// Equal z-index: shapes come out in insertion order.
	ties := New(nil)
	for _, label := range []string{"first", "second", "third"} {
		ties.Add(Input{RenderType: classify.BORDER, Label: label, Coordinates: []geo.Coordinate{{Lat: 1, Lon: 1}}}) // z 30
	}
	var labels []string
	for ties.Queue.Len() > 0 {
		labels = append(labels, heap.Pop(&ties.Queue).(*Shape).Label)
	}
	assert.Equal(t, []string{"first", "second", "third"}, labels)
}

func TestBoundingBoxAccumulates(t *testing.T) {
	tt := New(nil)
	tt.Add(Input{
		RenderType:   classify.BORDER,
		GeometryType: classify.GeometryPolyline,
		Coordinates:  []geo.Coordinate{{Lat: 10, Lon: 10}, {Lat: -10, Lon: -10}},
	})
	assert.False(t, tt.BBox.Empty())
	assert.InDelta(t, -10, tt.BBox.MinX, 1e-9)
	assert.InDelta(t, 10, tt.BBox.MaxX, 1e-9)
}

func TestLeisureDispatchesAtSubcategory(t *testing.T) {
	tt := New(nil)
	ok := tt.Add(Input{
		RenderType:   classify.LU__LEISURE,
		GeometryType: classify.GeometryPolygon,
		Coordinates:  []geo.Coordinate{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}, {Lat: 1, Lon: 2}},
	})
	assert.True(t, ok)
	shape := heap.Pop(&tt.Queue).(*Shape)
	assert.Equal(t, FeatureLeisure, shape.GeoKind)
	assert.Equal(t, 41, shape.Z)
}

func TestFountainGetsDedicatedLeaf(t *testing.T) {
	tt := New(nil)
	tt.Add(Input{
		RenderType:   classify.LU_R__FOUNTAIN,
		GeometryType: classify.GeometryPolygon,
		Coordinates:  []geo.Coordinate{{Lat: 1, Lon: 1}},
	})
	shape := heap.Pop(&tt.Queue).(*Shape)
	assert.Equal(t, FeatureFountain, shape.GeoKind)
}
