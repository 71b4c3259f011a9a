package store

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"

	"github.com/protomaps/go-maptiles/maptile/classify"
	"github.com/protomaps/go-maptiles/maptile/geo"
	"github.com/protomaps/go-maptiles/maptile/layout"
)

// buildMapFile assembles one synthetic map file, byte for byte, matching
// maptile/layout's packed record formats. It mirrors what a real
// producer would emit for one tile holding one "highway=primary"
// polyline feature labeled "Main St".
func buildMapFile(t *testing.T, tileID int32) []byte {
	t.Helper()

	const (
		fileHeaderSize  = layout.FileHeaderSize
		entrySize       = layout.TileHeaderEntrySize
		blockHeaderSize = layout.TileBlockHeaderSize
		featureSize     = layout.FeatureRecordSize
		coordSize       = layout.CoordinateRecordSize
		stringSize      = layout.StringEntrySize
	)

	tileOffset := uint64(fileHeaderSize + entrySize) // one tile index entry

	pool := utf16.Encode([]rune("highwayprimaryMain St"))

	buf := new(bytes.Buffer)

	// FileHeader
	binary.Write(buf, binary.LittleEndian, int64(1)) // Version
	binary.Write(buf, binary.LittleEndian, int32(1)) // TileCount

	// TileHeaderEntry
	binary.Write(buf, binary.LittleEndian, tileID)
	binary.Write(buf, binary.LittleEndian, tileOffset)

	// TileBlockHeader
	coordsRel := uint64(blockHeaderSize + featureSize)
	stringsRel := coordsRel + uint64(2*coordSize)
	charsRel := stringsRel + uint64(3*stringSize)
	binary.Write(buf, binary.LittleEndian, int32(1))  // FeaturesCount
	binary.Write(buf, binary.LittleEndian, int32(2))  // CoordinatesCount
	binary.Write(buf, binary.LittleEndian, int32(3))  // StringCount
	binary.Write(buf, binary.LittleEndian, int32(len(pool))) // CharactersCount
	binary.Write(buf, binary.LittleEndian, coordsRel)
	binary.Write(buf, binary.LittleEndian, stringsRel)
	binary.Write(buf, binary.LittleEndian, charsRel)

	// FeatureRecord
	binary.Write(buf, binary.LittleEndian, int64(5))                        // ID
	binary.Write(buf, binary.LittleEndian, int32(2))                        // LabelOffset (string entry index 2)
	buf.WriteByte(byte(layout.GeometryPolyline))                            // GeometryType
	binary.Write(buf, binary.LittleEndian, int32(0))                        // CoordinateOffset
	binary.Write(buf, binary.LittleEndian, int32(2))                        // CoordinateCount
	binary.Write(buf, binary.LittleEndian, int32(0))                        // PropertiesOffset
	binary.Write(buf, binary.LittleEndian, int32(1))                        // PropertyCount

	// CoordinateRecords
	writeCoord(buf, 10.0, 20.0)
	writeCoord(buf, 11.0, 21.0)

	// StringEntries: key "highway"(0,7), value "primary"(7,7), label "Main St"(14,7)
	binary.Write(buf, binary.LittleEndian, int32(0))
	binary.Write(buf, binary.LittleEndian, int32(7))
	binary.Write(buf, binary.LittleEndian, int32(7))
	binary.Write(buf, binary.LittleEndian, int32(7))
	binary.Write(buf, binary.LittleEndian, int32(14))
	binary.Write(buf, binary.LittleEndian, int32(7))

	// Character pool
	for _, u := range pool {
		binary.Write(buf, binary.LittleEndian, u)
	}

	return buf.Bytes()
}

func writeCoord(buf *bytes.Buffer, lat, lon float64) {
	binary.Write(buf, binary.LittleEndian, math.Float64bits(lat))
	binary.Write(buf, binary.LittleEndian, math.Float64bits(lon))
}

func openTestStore(t *testing.T, data []byte) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "map.bin")
	assert.NoError(t, os.WriteFile(path, data, 0o644))
	s, err := Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndForEachFeatureFindsMatch(t *testing.T) {
	// tile id for the grid cell containing (lat=10, lon=20)
	tileID := geo.TileID(geo.Coordinate{Lat: 10, Lon: 20})
	s := openTestStore(t, buildMapFile(t, tileID))

	box := geo.Box{MinLat: 10, MinLon: 20, MaxLat: 10.5, MaxLon: 20.5}

	var got []FeatureData
	err := s.ForEachFeature(box, func(fd FeatureData) bool {
		got = append(got, fd)
		return true
	})
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].ID)
	assert.Equal(t, "Main St", got[0].Label)
	assert.Equal(t, classify.H__PRIMARY, got[0].RenderType)
	assert.Len(t, got[0].Coordinates, 2)
}

func TestForEachFeatureOutsideBoxFindsNothing(t *testing.T) {
	tileID := geo.TileID(geo.Coordinate{Lat: 10, Lon: 20})
	s := openTestStore(t, buildMapFile(t, tileID))

	box := geo.Box{MinLat: -50, MinLon: -50, MaxLat: -49, MaxLon: -49}

	var got []FeatureData
	err := s.ForEachFeature(box, func(fd FeatureData) bool {
		got = append(got, fd)
		return true
	})
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestForEachFeatureVisitorCanCancel(t *testing.T) {
	tileID := geo.TileID(geo.Coordinate{Lat: 10, Lon: 20})
	s := openTestStore(t, buildMapFile(t, tileID))

	box := geo.Box{MinLat: 10, MinLon: 20, MaxLat: 10.5, MaxLon: 20.5}

	calls := 0
	err := s.ForEachFeature(box, func(fd FeatureData) bool {
		calls++
		return false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestOpenRejectsUnsupportedVersion(t *testing.T) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, int64(99)) // unsupported Version
	binary.Write(buf, binary.LittleEndian, int32(0))   // TileCount

	path := filepath.Join(t.TempDir(), "bad.bin")
	assert.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.bin")
	assert.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrFormat)
}
