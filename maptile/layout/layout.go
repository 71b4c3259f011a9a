// Package layout defines the packed, bit-exact binary records that make
// up a map file, and a bounds-checked reader over a mapped byte region.
//
// Every record is 1-byte packed, little-endian, with no implicit
// padding, so this package never overlays a Go struct on raw bytes
// (Go's own struct layout is not guaranteed to match); instead each
// Parse function reads individual fields at their documented byte
// offset the way pmtiles/reader.go reads readUint24/readUint48 out of
// a directory entry.
package layout

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// FileHeaderSize is the fixed byte size of FileHeader.
const FileHeaderSize = 8 + 4

// FileHeader is the first record in the map file.
type FileHeader struct {
	Version   int64
	TileCount int32
}

// ParseFileHeader reads a FileHeader from the start of b.
func ParseFileHeader(b []byte) (FileHeader, error) {
	if len(b) < FileHeaderSize {
		return FileHeader{}, fmt.Errorf("layout: file header needs %d bytes, got %d", FileHeaderSize, len(b))
	}
	return FileHeader{
		Version:   int64(binary.LittleEndian.Uint64(b[0:8])),
		TileCount: int32(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// TileHeaderEntrySize is the fixed byte size of TileHeaderEntry.
const TileHeaderEntrySize = 4 + 8

// TileHeaderEntry locates one tile's block within the mapped region.
type TileHeaderEntry struct {
	ID            int32
	OffsetInBytes uint64
}

// ParseTileHeaderEntry reads the i'th TileHeaderEntry from the tile
// index, which begins at base; it fails when entry i runs past the end
// of b.
func ParseTileHeaderEntry(b []byte, base int, i int) (TileHeaderEntry, error) {
	off := base + i*TileHeaderEntrySize
	if off+TileHeaderEntrySize > len(b) {
		return TileHeaderEntry{}, fmt.Errorf("layout: tile header entry %d out of range", i)
	}
	return TileHeaderEntry{
		ID:            int32(binary.LittleEndian.Uint32(b[off : off+4])),
		OffsetInBytes: binary.LittleEndian.Uint64(b[off+4 : off+12]),
	}, nil
}

// TileBlockHeaderSize is the fixed byte size of TileBlockHeader.
const TileBlockHeaderSize = 4*4 + 8*3

// TileBlockHeader describes the feature, coordinate, string, and
// character-pool sections of one tile.
type TileBlockHeader struct {
	FeaturesCount            int32
	CoordinatesCount         int32
	StringCount              int32
	CharactersCount          int32
	CoordinatesOffsetInBytes uint64
	StringsOffsetInBytes     uint64
	CharactersOffsetInBytes  uint64
}

// ParseTileBlockHeader reads a TileBlockHeader starting at byte offset
// base within b.
func ParseTileBlockHeader(b []byte, base int) (TileBlockHeader, error) {
	if base < 0 || base+TileBlockHeaderSize > len(b) {
		return TileBlockHeader{}, fmt.Errorf("layout: tile block header at %d out of range", base)
	}
	r := b[base:]
	return TileBlockHeader{
		FeaturesCount:            int32(binary.LittleEndian.Uint32(r[0:4])),
		CoordinatesCount:         int32(binary.LittleEndian.Uint32(r[4:8])),
		StringCount:              int32(binary.LittleEndian.Uint32(r[8:12])),
		CharactersCount:          int32(binary.LittleEndian.Uint32(r[12:16])),
		CoordinatesOffsetInBytes: binary.LittleEndian.Uint64(r[16:24]),
		StringsOffsetInBytes:     binary.LittleEndian.Uint64(r[24:32]),
		CharactersOffsetInBytes:  binary.LittleEndian.Uint64(r[32:40]),
	}, nil
}

// GeometryType enumerates a feature's geometry kind.
type GeometryType uint8

const (
	GeometryPolyline GeometryType = 0
	GeometryPolygon  GeometryType = 1
	GeometryPoint    GeometryType = 2
)

// FeatureRecordSize is the fixed byte size of FeatureRecord.
const FeatureRecordSize = 8 + 4 + 1 + 4 + 4 + 4 + 4

// FeatureRecord is one feature's packed header; coordinates, label, and
// properties are materialized separately via the offsets here.
type FeatureRecord struct {
	ID               int64
	LabelOffset      int32 // -1 = none
	GeometryType     GeometryType
	CoordinateOffset int32
	CoordinateCount  int32
	PropertiesOffset int32
	PropertyCount    int32
}

// ParseFeatureRecord reads the i'th FeatureRecord from a feature array
// beginning at base.
func ParseFeatureRecord(b []byte, base int, i int) (FeatureRecord, error) {
	off := base + i*FeatureRecordSize
	if off+FeatureRecordSize > len(b) {
		return FeatureRecord{}, fmt.Errorf("layout: feature record %d out of range", i)
	}
	r := b[off : off+FeatureRecordSize]
	return FeatureRecord{
		ID:               int64(binary.LittleEndian.Uint64(r[0:8])),
		LabelOffset:      int32(binary.LittleEndian.Uint32(r[8:12])),
		GeometryType:     GeometryType(r[12]),
		CoordinateOffset: int32(binary.LittleEndian.Uint32(r[13:17])),
		CoordinateCount:  int32(binary.LittleEndian.Uint32(r[17:21])),
		PropertiesOffset: int32(binary.LittleEndian.Uint32(r[21:25])),
		PropertyCount:    int32(binary.LittleEndian.Uint32(r[25:29])),
	}, nil
}

// CoordinateRecordSize is the fixed byte size of CoordinateRecord.
const CoordinateRecordSize = 8 + 8

// CoordinateRecord is one packed (latitude, longitude) pair.
type CoordinateRecord struct {
	Latitude  float64
	Longitude float64
}

// ParseCoordinateRecord reads the i'th CoordinateRecord from a
// coordinate array beginning at base.
func ParseCoordinateRecord(b []byte, base int, i int) (CoordinateRecord, error) {
	off := base + i*CoordinateRecordSize
	if off+CoordinateRecordSize > len(b) {
		return CoordinateRecord{}, fmt.Errorf("layout: coordinate record %d out of range", i)
	}
	r := b[off : off+CoordinateRecordSize]
	return CoordinateRecord{
		Latitude:  math.Float64frombits(binary.LittleEndian.Uint64(r[0:8])),
		Longitude: math.Float64frombits(binary.LittleEndian.Uint64(r[8:16])),
	}, nil
}

// StringEntrySize is the fixed byte size of StringEntry.
const StringEntrySize = 4 + 4

// StringEntry points into the character pool; Offset is in UTF-16 code
// units, so the effective byte offset is Offset*2.
type StringEntry struct {
	Offset int32
	Length int32
}

// ParseStringEntry reads the i'th StringEntry from a string table
// beginning at base.
func ParseStringEntry(b []byte, base int, i int) (StringEntry, error) {
	off := base + i*StringEntrySize
	if off+StringEntrySize > len(b) {
		return StringEntry{}, fmt.Errorf("layout: string entry %d out of range", i)
	}
	r := b[off : off+StringEntrySize]
	return StringEntry{
		Offset: int32(binary.LittleEndian.Uint32(r[0:4])),
		Length: int32(binary.LittleEndian.Uint32(r[4:8])),
	}, nil
}

// DecodeUTF16 reads length UTF-16 code units starting at the
// character-pool byte offset offset*2 and transcodes them to a Go
// (UTF-8) string. This is the boundary transcode called out in
// DESIGN.md: the wire format's native string is UTF-16, Go's is UTF-8.
func DecodeUTF16(pool []byte, entry StringEntry) (string, error) {
	byteOff := int(entry.Offset) * 2
	byteLen := int(entry.Length) * 2
	if byteOff < 0 || byteOff+byteLen > len(pool) {
		return "", fmt.Errorf("layout: string entry out of range (off=%d len=%d pool=%d)", byteOff, byteLen, len(pool))
	}
	units := make([]uint16, entry.Length)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(pool[byteOff+i*2 : byteOff+i*2+2])
	}
	return string(utf16.Decode(units)), nil
}
