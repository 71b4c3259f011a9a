// Package classify maps a feature's property bag and geometry type to a
// single RenderType, following the fourteen-rule decision tree of
// spec.md section 4.2. The source repo this scheme is modeled on builds
// a per-feature hash map at the hot inner loop; here Properties stays
// an ordered slice and every rule short-circuits on the first matching
// key, so no map is ever built on the classification path.
package classify

import "strings"

// GeometryType mirrors layout.GeometryType without importing it, so
// this package has no dependency on the binary layout.
type GeometryType int

const (
	GeometryPolyline GeometryType = iota
	GeometryPolygon
	GeometryPoint
)

// KV is one property key/value pair.
type KV struct {
	Key   string
	Value string
}

// Properties is an ordered property bag. Every lookup is a linear scan
// that stops at the first match, matching the teacher's "read the first
// property whose key matches" decision order.
type Properties []KV

// First returns the value of the first pair whose key equals key.
func (p Properties) First(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// FirstPrefix returns the value of the first pair whose key starts with
// prefix.
func (p Properties) FirstPrefix(prefix string) (string, bool) {
	for _, kv := range p {
		if strings.HasPrefix(kv.Key, prefix) {
			return kv.Value, true
		}
	}
	return "", false
}

// RenderType is the hierarchical four-digit taxonomy code of spec.md
// section 3: General*1000 + Category*100 + Subcategory*10 + Feature.
type RenderType int32

// Non-hierarchical codes.
const (
	UNKNOWN    RenderType = 0
	WATERWAY   RenderType = 1
	PLACE_NAME RenderType = 2
)

// General classes.
const (
	HIGHWAY  RenderType = 1000
	RAILWAY  RenderType = 2000
	BORDER   RenderType = 3000
	BUILDING RenderType = 4000
	LANDUSE  RenderType = 5000
)

// Highway features.
const (
	H__MOTORWAY    RenderType = 1001
	H__TRUNK       RenderType = 1002
	H__PRIMARY     RenderType = 1003
	H__SECONDARY   RenderType = 1004
	H__TERTIARY    RenderType = 1005
	H__RESIDENTIAL RenderType = 1006
	H__SERVICE     RenderType = 1007
	H__TRACK       RenderType = 1008
)

// Railway features.
const (
	R__MAINLINE     RenderType = 2001
	R__SUBWAY       RenderType = 2002
	R__LIGHT_RAIL   RenderType = 2003
	R__TRAM         RenderType = 2004
	R__NARROW_GAUGE RenderType = 2005
	R__MONORAIL     RenderType = 2006
	R__PRESERVED    RenderType = 2007
	R__MINIATURE    RenderType = 2008
	R__FUNICULAR    RenderType = 2009
)

// Landuse category/subcategory/feature codes.
const (
	LU_RESIDENTIAL RenderType = 5200
	// LU_R__FOUNTAIN is the dedicated subcategory this implementation
	// gives to amenity=fountain areas; see DESIGN.md "LU_R__FOUNTAIN"
	// for the open-question decision this resolves.
	LU_R__FOUNTAIN RenderType = 5210

	LU__NATURAL     RenderType = 5110
	LU__N_FOREST    RenderType = 5111
	LU__N_PLAIN     RenderType = 5112
	LU__N_HILLS     RenderType = 5113
	LU__N_MOUNTAINS RenderType = 5114
	LU__N_DESERT    RenderType = 5115
	LU__N_WATER     RenderType = 5116

	LU__LEISURE RenderType = 5120
)

// Subcategory rounds r down to the nearest 10.
func (r RenderType) Subcategory() RenderType { return (r / 10) * 10 }

// Category rounds r down to the nearest 100.
func (r RenderType) Category() RenderType { return (r / 100) * 100 }

// General rounds r down to the nearest 1000.
func (r RenderType) General() RenderType { return (r / 1000) * 1000 }

// Classify implements spec.md section 4.2's decision tree: the first
// matching rule wins.
func Classify(props Properties, geomType GeometryType) RenderType {
	if v, ok := props.First("highway"); ok {
		return classifyHighway(v)
	}

	if _, ok := props.FirstPrefix("water"); ok && geomType != GeometryPoint {
		return WATERWAY
	}

	if v, ok := props.First("railway"); ok {
		return classifyRailway(v)
	}

	if boundary, ok := props.FirstPrefix("boundary"); ok && strings.HasPrefix(boundary, "administrative") {
		if level, ok := props.FirstPrefix("admin_level"); ok && level == "2" {
			return BORDER
		}
	}

	if geomType != GeometryPoint {
		if place, ok := props.FirstPrefix("place"); ok && isOneOf(place, "city", "town", "locality", "hamlet") {
			return PLACE_NAME
		}
	}

	if boundary, ok := props.FirstPrefix("boundary"); ok && strings.HasPrefix(boundary, "forest") {
		return LU__N_FOREST
	}

	if landuse, ok := props.FirstPrefix("landuse"); ok &&
		(strings.HasPrefix(landuse, "forest") || strings.HasPrefix(landuse, "orchard")) {
		return LU__N_FOREST
	}

	if landuse, ok := props.FirstPrefix("landuse"); ok &&
		isOneOf(landuse, "residential", "cemetery", "industrial", "commercial", "square", "construction", "military", "quarry", "brownfield") {
		return LU_RESIDENTIAL
	}

	if geomType == GeometryPolygon {
		if landuse, ok := props.FirstPrefix("landuse"); ok &&
			isOneOf(landuse, "form", "meadow", "grass", "greenfield", "recreation_ground", "winter_sports", "allotments") {
			return LU__N_PLAIN
		}

		if landuse, ok := props.FirstPrefix("landuse"); ok && isOneOf(landuse, "reservoir", "basin") {
			return LU__N_WATER
		}

		if _, ok := props.FirstPrefix("building"); ok {
			return LU_RESIDENTIAL
		}

		if amenity, ok := props.FirstPrefix("amenity"); ok {
			if amenity == "fountain" {
				return LU_R__FOUNTAIN
			}
			return LU_RESIDENTIAL
		}

		if _, ok := props.FirstPrefix("leisure"); ok {
			return LU__LEISURE
		}

		if natural, ok := props.FirstPrefix("natural"); ok {
			return classifyNatural(natural)
		}
	}

	return UNKNOWN
}

func classifyHighway(v string) RenderType {
	switch v {
	case "motorway":
		return H__MOTORWAY
	case "trunk":
		return H__TRUNK
	case "primary":
		return H__PRIMARY
	case "secondary":
		return H__SECONDARY
	case "tertiary":
		return H__TERTIARY
	case "residential", "living_street":
		return H__RESIDENTIAL
	case "service":
		return H__SERVICE
	case "track":
		return H__TRACK
	default:
		return HIGHWAY
	}
}

func classifyRailway(v string) RenderType {
	switch v {
	case "rail":
		return R__MAINLINE
	case "subway":
		return R__SUBWAY
	case "light_rail":
		return R__LIGHT_RAIL
	case "tram":
		return R__TRAM
	case "narrow_gauge":
		return R__NARROW_GAUGE
	case "monorail":
		return R__MONORAIL
	case "preserved":
		return R__PRESERVED
	case "miniature":
		return R__MINIATURE
	case "funicular":
		return R__FUNICULAR
	default:
		return RAILWAY
	}
}

func classifyNatural(v string) RenderType {
	switch {
	case isOneOf(v, "fell", "grassland", "heath", "moor", "scrub", "wetland"):
		return LU__N_PLAIN
	case isOneOf(v, "wood", "tree_row"):
		return LU__N_FOREST
	case isOneOf(v, "bare_rock", "rock", "scree"):
		return LU__N_MOUNTAINS
	case isOneOf(v, "beach", "sand"):
		return LU__N_DESERT
	case v == "water":
		return LU__N_WATER
	default:
		return LU__NATURAL
	}
}

func isOneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
