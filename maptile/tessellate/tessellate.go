// Package tessellate converts a classified feature into exactly one
// typed, z-indexed drawable shape and pushes it onto an ascending
// min-heap, following the dispatch table of spec.md section 4.3. The
// heap discipline ("binary min-heap over (z_index, insertion_sequence)")
// is the one spec.md's design notes name directly; it is implemented
// here with container/heap the way any ordered-compositor queue would
// be, since nothing in the retrieval pack builds a back-to-front
// renderer of its own.
package tessellate

import (
	"container/heap"

	"github.com/protomaps/go-maptiles/maptile/classify"
	"github.com/protomaps/go-maptiles/maptile/geo"
)

// Point is a projected (world-unit) coordinate.
type Point struct {
	X, Y float64
}

// ShapeKind tags the drawable variant a Shape holds, replacing interface
// dispatch with a single tagged struct per spec.md's design notes
// ("Polymorphic shapes... avoids boxing and keeps the queue
// cache-friendly").
type ShapeKind int

const (
	ShapeGeoFeature ShapeKind = iota
	ShapeRoad
	ShapeRailway
	ShapeWaterway
	ShapeBorder
	ShapeLabel
)

// GeoFeatureKind distinguishes the landuse/natural styles a GeoFeature
// shape can carry.
type GeoFeatureKind int

const (
	FeatureForest GeoFeatureKind = iota
	FeaturePlain
	FeatureHills
	FeatureMountains
	FeatureDesert
	FeatureWater
	FeatureLeisure
	FeatureResidential
	FeatureFountain
	FeatureUnknown
)

// RoadKind distinguishes the highway sub-type a Road shape carries,
// independent of which dispatch level matched it — every highway leaf
// dispatches at the General level (see dispatch below), but the
// compositor still needs the original leaf to pick a color/width tuple.
type RoadKind int

const (
	RoadMotorway RoadKind = iota
	RoadTrunk
	RoadPrimary
	RoadSecondary
	RoadTertiary
	RoadResidential
	RoadService
	RoadTrack
	RoadUnknown
)

// Shape is one drawable, queued for the compositor.
type Shape struct {
	Kind         ShapeKind
	Z            int
	Seq          int
	GeometryType classify.GeometryType
	Coordinates  []Point
	Label        string
	GeoKind      GeoFeatureKind
	RoadKind     RoadKind
}

// Input is what the tile store hands the tessellator per feature.
type Input struct {
	ID           int64
	GeometryType classify.GeometryType
	Coordinates  []geo.Coordinate
	Label        string
	RenderType   classify.RenderType
}

// Queue is an ascending min-heap of Shapes ordered by (Z, Seq); ties in
// Z retain insertion order.
type Queue struct {
	items []*Shape
}

func (q Queue) Len() int { return len(q.items) }
func (q Queue) Less(i, j int) bool {
	if q.items[i].Z != q.items[j].Z {
		return q.items[i].Z < q.items[j].Z
	}
	return q.items[i].Seq < q.items[j].Seq
}
func (q Queue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *Queue) Push(x any)   { q.items = append(q.items, x.(*Shape)) }
func (q *Queue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// Diagnostic is called once per feature whose render type has no
// handler at any hierarchy level (spec.md section 6: "emit one textual
// warning per occurrence").
type Diagnostic func(renderType classify.RenderType)

// Tessellator accumulates shapes into a z-ordered Queue and tracks the
// running projected bounding box of every shape actually constructed.
type Tessellator struct {
	Queue      Queue
	BBox       geo.BoundingBox
	Diagnostic Diagnostic
	seq        int
}

// New returns a Tessellator with an empty queue and a bounding box
// seeded to +/- infinity, per the rendering facade's step (a).
func New(diag Diagnostic) *Tessellator {
	return &Tessellator{BBox: geo.NewBoundingBox(), Diagnostic: diag}
}

// Add classifies-and-dispatches one feature, projecting its coordinates
// to world units, pushing the resulting Shape onto Queue, and extending
// BBox. It reports whether a shape was produced (false for UNKNOWN or
// an unhandled general-fallback render type).
func (t *Tessellator) Add(in Input) bool {
	kind, z, geoKind, outcome := dispatch(in.RenderType)
	if outcome == matchUnhandled && t.Diagnostic != nil {
		t.Diagnostic(in.RenderType)
	}
	if outcome != matchShape {
		return false
	}

	coords := make([]Point, len(in.Coordinates))
	for i, c := range in.Coordinates {
		x, y := geo.Project(c)
		coords[i] = Point{X: x, Y: y}
		t.BBox.Extend(x, y)
	}

	shape := &Shape{
		Kind:         kind,
		Z:            z,
		Seq:          t.seq,
		GeometryType: in.GeometryType,
		Coordinates:  coords,
		Label:        in.Label,
		GeoKind:      geoKind,
	}
	if kind == ShapeRoad {
		shape.RoadKind = roadKindOf(in.RenderType)
	}
	t.seq++

	heap.Push(&t.Queue, shape)
	return true
}

type matchOutcome int

const (
	matchDropped matchOutcome = iota // explicit UNKNOWN: silent drop, no diagnostic
	matchShape
	matchUnhandled // general fall-through: dropped, diagnostic emitted
)

// dispatch walks the leaf -> subcategory -> category -> general
// hierarchy of spec.md section 4.3's table, returning the first level
// at which a handler is registered.
func dispatch(r classify.RenderType) (ShapeKind, int, GeoFeatureKind, matchOutcome) {
	switch r {
	case classify.PLACE_NAME:
		return ShapeLabel, 60, FeatureUnknown, matchShape
	case classify.WATERWAY:
		return ShapeWaterway, 40, FeatureUnknown, matchShape
	case classify.LU__N_FOREST:
		return ShapeGeoFeature, 11, FeatureForest, matchShape
	case classify.LU__N_PLAIN:
		return ShapeGeoFeature, 10, FeaturePlain, matchShape
	case classify.LU__N_HILLS:
		return ShapeGeoFeature, 12, FeatureHills, matchShape
	case classify.LU__N_MOUNTAINS:
		return ShapeGeoFeature, 13, FeatureMountains, matchShape
	case classify.LU__N_DESERT:
		return ShapeGeoFeature, 9, FeatureDesert, matchShape
	case classify.LU__N_WATER:
		return ShapeGeoFeature, 40, FeatureWater, matchShape
	case classify.LU_R__FOUNTAIN:
		return ShapeGeoFeature, 41, FeatureFountain, matchShape
	}

	switch r.Subcategory() {
	case classify.LU__LEISURE:
		return ShapeGeoFeature, 41, FeatureLeisure, matchShape
	}

	switch r.Category() {
	case classify.LU_RESIDENTIAL:
		return ShapeGeoFeature, 41, FeatureResidential, matchShape
	}

	switch r.General() {
	case classify.UNKNOWN:
		return 0, 0, 0, matchDropped
	case classify.HIGHWAY:
		return ShapeRoad, 50, FeatureUnknown, matchShape
	case classify.RAILWAY:
		return ShapeRailway, 45, FeatureUnknown, matchShape
	case classify.BORDER:
		return ShapeBorder, 30, FeatureUnknown, matchShape
	case classify.LANDUSE:
		return ShapeGeoFeature, 7, FeatureUnknown, matchShape
	}

	return 0, 0, 0, matchUnhandled
}

func roadKindOf(r classify.RenderType) RoadKind {
	switch r {
	case classify.H__MOTORWAY:
		return RoadMotorway
	case classify.H__TRUNK:
		return RoadTrunk
	case classify.H__PRIMARY:
		return RoadPrimary
	case classify.H__SECONDARY:
		return RoadSecondary
	case classify.H__TERTIARY:
		return RoadTertiary
	case classify.H__RESIDENTIAL:
		return RoadResidential
	case classify.H__SERVICE:
		return RoadService
	case classify.H__TRACK:
		return RoadTrack
	default:
		return RoadUnknown
	}
}
