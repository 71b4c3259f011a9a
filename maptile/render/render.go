// Package render is the rendering facade of spec.md section 5: given a
// tile store and a geographic query box it drives
// store -> classify (inside store) -> tessellate -> raster and returns
// a PNG. Structured as a thin facade plus a metrics registry, the same
// shape pmtiles/server.go uses to wrap pmtiles.Loop behind HTTP: a
// small orchestration type with a *log.Logger and a *metrics field.
package render

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/protomaps/go-maptiles/maptile/classify"
	"github.com/protomaps/go-maptiles/maptile/geo"
	"github.com/protomaps/go-maptiles/maptile/raster"
	"github.com/protomaps/go-maptiles/maptile/store"
	"github.com/protomaps/go-maptiles/maptile/tessellate"
)

// Store is the subset of *store.Store the facade depends on, so tests
// can exercise Render against a fake without mapping a real file.
type Store interface {
	ForEachFeature(box geo.Box, visitor store.Visitor) error
}

// Query is one render request: a geographic box, an output size, and
// an optional region mask (spec.md's "Open Questions" left the shape
// of a request unspecified; this is the narrowest shape the facade's
// five pipeline stages need).
type Query struct {
	Box           geo.Box
	Width         uint32
	Height        uint32
	RegionGeoJSON []byte // optional GeoJSON polygon/multipolygon/FeatureCollection mask
}

// ErrInvalidSize reports a zero width or height.
var ErrInvalidSize = errors.New("render: width and height must be positive")

// Renderer drives one tile store through the full pipeline.
type Renderer struct {
	store   Store
	logger  *log.Logger
	metrics *metrics
}

// New wraps store behind the rendering facade, registering its own
// Prometheus metrics under the "maptile" namespace. A nil logger
// defaults to log.Default(), mirroring maptile/store.OpenWithLogger.
func New(s Store, logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.Default()
	}
	return &Renderer{store: s, logger: logger, metrics: createMetrics(logger)}
}

// Render executes one Query end to end and returns an encoded PNG.
// A failed region mask parse, or a store iteration failure classified
// as IoError or FormatError, is fatal; an empty result set (no feature
// anywhere in the box) is not an error and yields a plain white image.
func (r *Renderer) Render(ctx context.Context, q Query) ([]byte, error) {
	if q.Width == 0 || q.Height == 0 {
		return nil, ErrInvalidSize
	}

	tracker := r.metrics.startRender()
	status := "ok"
	defer func() { tracker.finish(status) }()

	var mask orb.MultiPolygon
	if len(q.RegionGeoJSON) > 0 {
		m, err := unmarshalRegion(q.RegionGeoJSON)
		if err != nil {
			status = "bad_region"
			return nil, fmt.Errorf("render: invalid region mask: %w", err)
		}
		mask = m
	}

	tess := tessellate.New(func(rt classify.RenderType) {
		r.logger.Printf("render: unhandled render type %d", rt)
	})

	err := r.store.ForEachFeature(q.Box, func(fd store.FeatureData) bool {
		if ctx.Err() != nil {
			return false
		}
		if mask != nil && !featureIntersectsMask(fd, mask) {
			return true
		}
		tess.Add(tessellate.Input{
			ID:           fd.ID,
			GeometryType: store.GeometryKind(fd.GeometryType),
			Coordinates:  fd.Coordinates,
			Label:        fd.Label,
			RenderType:   fd.RenderType,
		})
		return true
	})
	if err != nil {
		status = "io_error"
		return nil, fmt.Errorf("render: %w", err)
	}
	if ctx.Err() != nil {
		status = "canceled"
		return nil, ctx.Err()
	}

	img := raster.Composite(int(q.Width), int(q.Height), tess.BBox, func(visit func(*tessellate.Shape)) {
		for tess.Queue.Len() > 0 {
			visit(heap.Pop(&tess.Queue).(*tessellate.Shape))
		}
	})

	png, err := raster.EncodePNG(img)
	if err != nil {
		status = "encode_error"
		return nil, fmt.Errorf("render: %w", err)
	}
	return png, nil
}

func unmarshalRegion(data []byte) (orb.MultiPolygon, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		fc, ferr := geojson.UnmarshalFeatureCollection(data)
		if ferr != nil {
			return nil, err
		}
		var polys orb.MultiPolygon
		for _, f := range fc.Features {
			switch v := f.Geometry.(type) {
			case orb.Polygon:
				polys = append(polys, v)
			case orb.MultiPolygon:
				polys = append(polys, v...)
			}
		}
		if len(polys) == 0 {
			return nil, fmt.Errorf("render: no polygon geometry in region mask")
		}
		return polys, nil
	}
	switch v := g.Geometry().(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		return v, nil
	default:
		return nil, fmt.Errorf("render: region mask geometry must be a polygon")
	}
}

// featureIntersectsMask reports whether any coordinate of fd falls
// inside one of mask's polygons, the same coarse "any point inside"
// test spec.md section 4.1 mandates for the tile bounding-box check.
func featureIntersectsMask(fd store.FeatureData, mask orb.MultiPolygon) bool {
	for _, c := range fd.Coordinates {
		pt := orb.Point{c.Lon, c.Lat} // region masks are WGS84 GeoJSON, not Mercator
		for _, poly := range mask {
			if planar.PolygonContains(poly, pt) {
				return true
			}
		}
	}
	return false
}
