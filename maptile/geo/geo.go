// Package geo holds the geodetic primitives shared by every other
// maptile package: coordinate equality, the Mercator projection, and
// the bounding-box-to-tile-id planner consumed by maptile/store.
package geo

import "math"

// Epsilon is the absolute-difference tolerance used by CoordinateEqual.
const Epsilon = 2.220446049250313e-16 // machine epsilon for float64

// Coordinate is a (latitude, longitude) pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// CoordinateEqual reports whether a and b are equal within machine epsilon.
func CoordinateEqual(a, b Coordinate) bool {
	return math.Abs(a.Lat-b.Lat) <= Epsilon && math.Abs(a.Lon-b.Lon) <= Epsilon
}

// MercatorX projects a longitude in degrees to a world X unit.
func MercatorX(lon float64) float64 {
	return lon
}

// MercatorY projects a latitude in degrees to a world Y unit via the
// spherical Mercator formula Y = ln(tan(pi/4 + latRad/2)).
func MercatorY(lat float64) float64 {
	latRad := lat * math.Pi / 180.0
	return math.Log(math.Tan(math.Pi/4 + latRad/2))
}

// Project converts a Coordinate to world units (X, Y).
func Project(c Coordinate) (x, y float64) {
	return MercatorX(c.Lon), MercatorY(c.Lat)
}

// Box is a geographic query rectangle, min/max inclusive.
type Box struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// Contains reports whether c falls inside the box, edges inclusive.
func (b Box) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat &&
		c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// BoundingBox accumulates a running projected (world-unit) bounding box,
// used by maptile/tessellate while shapes are built.
type BoundingBox struct {
	MinX, MinY, MaxX, MaxY float64
	seen                   bool
}

// NewBoundingBox returns a bounding box seeded to +/- infinity, per
// the rendering facade's step (a).
func NewBoundingBox() BoundingBox {
	return BoundingBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// Extend grows the box to include (x, y).
func (b *BoundingBox) Extend(x, y float64) {
	b.seen = true
	if x < b.MinX {
		b.MinX = x
	}
	if x > b.MaxX {
		b.MaxX = x
	}
	if y < b.MinY {
		b.MinY = y
	}
	if y > b.MaxY {
		b.MaxY = y
	}
}

// Empty reports whether Extend was never called.
func (b BoundingBox) Empty() bool {
	return !b.seen
}

// gridCols and gridRows fix the one-degree lon/lat tile grid described
// in DESIGN.md's "Tile-id scheme" open-question decision.
// Unlike the teacher's Hilbert-curve ZxyToID (pmtiles/tile_id.go), which
// numbers an externally defined XYZ pyramid that this map file's
// producer does not use, tiles here are addressed by a simple row-major
// id over a fixed-size lon/lat grid: deterministic, pure, and replicable
// without reference to any specific tiling scheme's quadtree order.
const (
	gridCols = 360
	gridRows = 180
)

// TileID returns the row-major id of the grid cell containing c.
func TileID(c Coordinate) int32 {
	col := int32(math.Floor(c.Lon)) + 180
	row := int32(math.Floor(c.Lat)) + 90
	if col < 0 {
		col = 0
	}
	if col >= gridCols {
		col = gridCols - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= gridRows {
		row = gridRows - 1
	}
	return row*gridCols + col
}

// GetTilesForBoundingBox returns the ordered list of tile ids whose grid
// cell intersects the query box, in ascending row-major order. The
// scheme is opaque-but-pure per spec.md section 4.1: this implementation
// fixes what the (out-of-scope) file producer leaves unspecified.
func GetTilesForBoundingBox(minLat, minLon, maxLat, maxLon float64) []int32 {
	minCol := int32(math.Floor(minLon)) + 180
	maxCol := int32(math.Floor(maxLon)) + 180
	minRow := int32(math.Floor(minLat)) + 90
	maxRow := int32(math.Floor(maxLat)) + 90

	minCol = clamp(minCol, 0, gridCols-1)
	maxCol = clamp(maxCol, 0, gridCols-1)
	minRow = clamp(minRow, 0, gridRows-1)
	maxRow = clamp(maxRow, 0, gridRows-1)

	ids := make([]int32, 0, (maxRow-minRow+1)*(maxCol-minCol+1))
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			ids = append(ids, row*gridCols+col)
		}
	}
	return ids
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
