// Package raster is the compositor/rasterizer of spec.md section 4.4:
// it computes a uniform world-to-canvas scale, drains a tessellated
// shape queue in ascending z-index, and rasterizes each shape onto a
// canvas that is finally encoded to PNG.
//
// The teacher repo rasterizes only flat, already-decoded tile images
// (pmtiles/bitmap.go's writeImage sets single pixels into an
// image.NRGBA and calls image/png.Encode) — it never strokes or fills
// vector paths. For antialiased strokes, dashed lines, and polygon
// fills this package reaches for golang.org/x/image/vector, the same
// module WoozyMasta-dzmap already depends on for pixel-level image
// work (there used for resizing via golang.org/x/image/draw); here it
// is generalized from raster-to-raster scaling to vector rasterization.
package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f32"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/protomaps/go-maptiles/maptile/geo"
	"github.com/protomaps/go-maptiles/maptile/tessellate"
)

// Symbolic CSS colors used by the per-shape rendering rules below.
var (
	colorWhite     = color.NRGBA{255, 255, 255, 255}
	colorBlack     = color.NRGBA{0, 0, 0, 255}
	colorLightBlue = color.NRGBA{173, 216, 230, 255}
	colorGray      = color.NRGBA{128, 128, 128, 255}
	colorLightGray = color.NRGBA{211, 211, 211, 255}
	colorDarkGray  = color.NRGBA{169, 169, 169, 255}
	colorDarkRed   = color.NRGBA{139, 0, 0, 255}
	colorRed       = color.NRGBA{255, 0, 0, 255}
	colorOrange    = color.NRGBA{255, 165, 0, 255}
	colorYellow    = color.NRGBA{255, 255, 0, 255}
	colorRosyBrown = color.NRGBA{188, 143, 143, 255}
	colorBrown     = color.NRGBA{165, 42, 42, 255}
	colorCoral     = color.NRGBA{255, 127, 80, 255}
	colorForest    = color.NRGBA{34, 139, 34, 255}
	colorPlain     = color.NRGBA{154, 205, 50, 255}
	colorHills     = color.NRGBA{143, 188, 143, 255}
	colorMountains = color.NRGBA{169, 169, 169, 255}
	colorDesert    = color.NRGBA{240, 230, 140, 255}
	colorLeisure   = color.NRGBA{144, 238, 144, 255}
	colorWheat     = color.NRGBA{245, 222, 179, 255}
)

func withAlpha(c color.NRGBA, alpha uint8) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: alpha}
}

// geoFeatureColor returns the category fill/stroke color for a
// GeoFeature shape.
func geoFeatureColor(kind tessellate.GeoFeatureKind) color.NRGBA {
	switch kind {
	case tessellate.FeatureForest:
		return colorForest
	case tessellate.FeaturePlain:
		return colorPlain
	case tessellate.FeatureHills:
		return colorHills
	case tessellate.FeatureMountains:
		return colorMountains
	case tessellate.FeatureDesert:
		return colorDesert
	case tessellate.FeatureWater:
		return colorLightBlue
	case tessellate.FeatureLeisure:
		return colorLeisure
	case tessellate.FeatureResidential:
		return colorLightGray
	case tessellate.FeatureFountain:
		return withAlpha(colorLightBlue, 160)
	default:
		return colorWheat
	}
}

type roadStyle struct {
	fg      color.NRGBA
	fgWidth float64
	bg      color.NRGBA
	bgWidth float64
}

func roadStyleFor(kind tessellate.RoadKind) roadStyle {
	switch kind {
	case tessellate.RoadMotorway:
		return roadStyle{colorDarkRed, 2.0, colorYellow, 2.2}
	case tessellate.RoadTrunk:
		return roadStyle{colorRed, 1.8, colorYellow, 2.0}
	case tessellate.RoadPrimary:
		return roadStyle{colorOrange, 1.8, colorYellow, 2.0}
	case tessellate.RoadSecondary:
		return roadStyle{colorOrange, 1.6, colorYellow, 1.8}
	case tessellate.RoadTertiary:
		return roadStyle{colorYellow, 1.6, colorYellow, 1.8}
	case tessellate.RoadResidential:
		return roadStyle{colorWhite, 1.6, colorDarkGray, 1.8}
	case tessellate.RoadTrack:
		return roadStyle{colorRosyBrown, 1.4, colorBrown, 1.5}
	default:
		return roadStyle{colorCoral, 0.2, colorYellow, 0.4}
	}
}

// Canvas is a request-local raster target plus the world-to-canvas
// transform derived from a Tessellator's final bounding box.
type Canvas struct {
	img     *image.NRGBA
	width   int
	height  int
	scale   float64
	originX float64
	originY float64
}

// NewCanvas fills a width x height canvas with opaque white (spec.md
// section 4.4: "Fill the canvas background with opaque white before
// any shape is drawn") and computes the uniform scale that fits bbox
// into it, preserving aspect ratio.
func NewCanvas(width, height int, bbox geo.BoundingBox) *Canvas {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	fillWhite(img)

	c := &Canvas{img: img, width: width, height: height}
	if bbox.Empty() {
		c.scale = 1
		return c
	}

	spanX := bbox.MaxX - bbox.MinX
	spanY := bbox.MaxY - bbox.MinY
	var sx, sy float64
	if spanX > 0 {
		sx = float64(width) / spanX
	}
	if spanY > 0 {
		sy = float64(height) / spanY
	}
	switch {
	case spanX > 0 && spanY > 0:
		c.scale = math.Min(sx, sy)
	case spanX > 0:
		c.scale = sx
	case spanY > 0:
		c.scale = sy
	default:
		c.scale = 1
	}
	if c.scale == 0 {
		c.scale = 1
	}
	c.originX, c.originY = bbox.MinX, bbox.MinY
	return c
}

func fillWhite(img *image.NRGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetNRGBA(x, y, colorWhite)
		}
	}
}

// toCanvas translates by (-originX, -originY), scales, then flips
// vertically: y' = height - y.
func (c *Canvas) toCanvas(p tessellate.Point) f32.Vec2 {
	x := (p.X - c.originX) * c.scale
	y := (p.Y - c.originY) * c.scale
	y = float64(c.height) - y
	return f32.Vec2{float32(x), float32(y)}
}

// Image returns the rendered canvas.
func (c *Canvas) Image() *image.NRGBA { return c.img }

// Composite renders the shapes in queue, draining it in ascending
// z-index (the Queue already provides that order via heap.Pop), and
// returns the finished canvas.
func Composite(width, height int, bbox geo.BoundingBox, drain func(func(*tessellate.Shape))) *image.NRGBA {
	c := NewCanvas(width, height, bbox)
	drain(func(shape *tessellate.Shape) {
		if len(shape.Coordinates) < 2 {
			return // DegenerateShape: dropped silently
		}
		c.drawShape(shape)
	})
	return c.img
}

func (c *Canvas) drawShape(s *tessellate.Shape) {
	switch s.Kind {
	case tessellate.ShapeGeoFeature:
		c.drawGeoFeature(s)
	case tessellate.ShapeWaterway:
		c.drawWaterway(s)
	case tessellate.ShapeRailway:
		c.strokePolyline(s.Coordinates, colorDarkGray, 2.0)
		c.strokePolylineDashed(s.Coordinates, colorLightGray, 1.2, [3]float64{2, 4, 2})
	case tessellate.ShapeBorder:
		c.strokePolyline(s.Coordinates, colorGray, 2.0)
	case tessellate.ShapeRoad:
		if s.GeometryType == 1 /* classify.GeometryPolygon */ {
			return // "Polygon roads are not drawn."
		}
		style := roadStyleFor(s.RoadKind)
		c.strokePolyline(s.Coordinates, style.bg, style.bgWidth)
		c.strokePolyline(s.Coordinates, style.fg, style.fgWidth)
	case tessellate.ShapeLabel:
		c.drawLabel(s.Coordinates[0], s.Label)
	}
}

func (c *Canvas) drawGeoFeature(s *tessellate.Shape) {
	col := geoFeatureColor(s.GeoKind)
	isPolygon := s.GeometryType == 1 // classify.GeometryPolygon
	switch {
	case !isPolygon:
		c.strokePolyline(s.Coordinates, col, 1.2)
	case s.GeoKind == tessellate.FeatureLeisure:
		c.fillPolygon(s.Coordinates, withAlpha(col, 51)) // 20% alpha
		c.strokePolyline(closeRing(s.Coordinates), col, 1.2)
	default:
		c.fillPolygon(s.Coordinates, col)
	}
}

func (c *Canvas) drawWaterway(s *tessellate.Shape) {
	isPolygon := s.GeometryType == 1
	if isPolygon {
		c.fillPolygon(s.Coordinates, colorLightBlue)
		return
	}
	c.strokePolyline(s.Coordinates, colorLightBlue, 1.2)
}

func closeRing(pts []tessellate.Point) []tessellate.Point {
	if len(pts) == 0 || pts[0] == pts[len(pts)-1] {
		return pts
	}
	out := make([]tessellate.Point, len(pts)+1)
	copy(out, pts)
	out[len(pts)] = pts[0]
	return out
}

// strokePolyline draws a solid stroke of the given width, in world
// coordinates converted to canvas pixels, by building a quad per
// segment and filling every quad in a single rasterizer pass.
func (c *Canvas) strokePolyline(pts []tessellate.Point, col color.NRGBA, width float64) {
	if len(pts) < 2 {
		return
	}
	z := vector.NewRasterizer(c.width, c.height)
	for i := 0; i+1 < len(pts); i++ {
		addSegmentQuad(z, c.toCanvas(pts[i]), c.toCanvas(pts[i+1]), float32(width))
	}
	draw(z, c.img, col)
}

// strokePolylineDashed breaks pts into "on" runs per a (on, off, on)
// style dash pattern measured in canvas pixels, and strokes each run.
func (c *Canvas) strokePolylineDashed(pts []tessellate.Point, col color.NRGBA, width float64, pattern [3]float64) {
	if len(pts) < 2 {
		return
	}
	z := vector.NewRasterizer(c.width, c.height)
	dash := []float64{pattern[0], pattern[1], pattern[2]}
	if len(dash)%2 == 1 {
		dash = append(dash, dash...)
	}

	canvasPts := make([]f32.Vec2, len(pts))
	for i, p := range pts {
		canvasPts[i] = c.toCanvas(p)
	}

	dashIndex := 0
	remaining := dash[0]
	on := true
	for i := 0; i+1 < len(canvasPts); i++ {
		a, b := canvasPts[i], canvasPts[i+1]
		segLen := float64(math.Hypot(float64(b[0]-a[0]), float64(b[1]-a[1])))
		pos := 0.0
		for pos < segLen {
			step := math.Min(remaining, segLen-pos)
			t0 := pos / segLen
			t1 := (pos + step) / segLen
			if on {
				addSegmentQuad(z, lerp(a, b, t0), lerp(a, b, t1), float32(width))
			}
			pos += step
			remaining -= step
			if remaining <= 1e-9 {
				dashIndex = (dashIndex + 1) % len(dash)
				remaining = dash[dashIndex]
				on = !on
			}
		}
	}
	draw(z, c.img, col)
}

func lerp(a, b f32.Vec2, t float64) f32.Vec2 {
	return f32.Vec2{
		a[0] + float32(t)*(b[0]-a[0]),
		a[1] + float32(t)*(b[1]-a[1]),
	}
}

// addSegmentQuad adds a width-wide rectangle covering segment a-b to z
// as a closed subpath.
func addSegmentQuad(z *vector.Rasterizer, a, b f32.Vec2, width float32) {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return
	}
	nx := -dy / length * width / 2
	ny := dx / length * width / 2

	p0 := f32.Vec2{a[0] + nx, a[1] + ny}
	p1 := f32.Vec2{b[0] + nx, b[1] + ny}
	p2 := f32.Vec2{b[0] - nx, b[1] - ny}
	p3 := f32.Vec2{a[0] - nx, a[1] - ny}

	z.MoveTo(p0[0], p0[1])
	z.LineTo(p1[0], p1[1])
	z.LineTo(p2[0], p2[1])
	z.LineTo(p3[0], p3[1])
	z.ClosePath()
}

// fillPolygon fills the closed path defined by pts with col.
func (c *Canvas) fillPolygon(pts []tessellate.Point, col color.NRGBA) {
	if len(pts) < 3 {
		return
	}
	z := vector.NewRasterizer(c.width, c.height)
	m0 := c.toCanvas(pts[0])
	z.MoveTo(m0[0], m0[1])
	for _, p := range pts[1:] {
		lt := c.toCanvas(p)
		z.LineTo(lt[0], lt[1])
	}
	z.ClosePath()
	draw(z, c.img, col)
}

func draw(z *vector.Rasterizer, dst *image.NRGBA, col color.NRGBA) {
	src := image.NewUniform(col)
	z.Draw(dst, dst.Bounds(), src, image.Point{})
}

// drawLabel draws text at the first coordinate in black, using
// golang.org/x/image/font/basicfont's fixed 7x13 face; the text is not
// drawn at a 12-point size. basicfont has no bold face, so boldness is
// approximated with a one-pixel double strike — the same cheap trick
// bitmap-font renderers have used for decades.
func (c *Canvas) drawLabel(at tessellate.Point, text string) {
	if text == "" {
		return
	}
	p := c.toCanvas(at)
	face := basicfont.Face7x13
	for _, offset := range []fixed.Point26_6{{}, {X: fixed.I(1)}} {
		d := &font.Drawer{
			Dst:  c.img,
			Src:  image.NewUniform(colorBlack),
			Face: face,
			Dot: fixed.Point26_6{
				X: fixed.I(int(p[0])) + offset.X,
				Y: fixed.I(int(p[1])) + offset.Y,
			},
		}
		d.DrawString(text)
	}
}

// EncodePNG encodes img as a PNG byte stream, the rendering facade's
// final step. Grounded on pmtiles/bitmap.go's writeImage, which is the
// only place in the teacher's own dependency tree that calls
// image/png.Encode.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
