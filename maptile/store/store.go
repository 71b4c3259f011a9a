// Package store opens a memory-mapped map file and iterates the
// features of a geographic query box. It is grounded on
// pmtiles/reader.go's directory parsing (teacher) for the header/index
// walk, and on atlasdatatech-gotiler/menfile.go for the actual mmap
// call — the teacher itself reads its archives through gocloud.dev's
// blob abstraction, never through a real mmap, so the mapping primitive
// is adopted from the pack's other mmap user instead.
package store

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/tysonmote/gommap"

	"github.com/protomaps/go-maptiles/maptile/classify"
	"github.com/protomaps/go-maptiles/maptile/geo"
	"github.com/protomaps/go-maptiles/maptile/layout"
)

// SupportedVersion is the only FileHeader.Version this store accepts.
const SupportedVersion = int64(1)

// ErrIO reports that mapping the file failed.
var ErrIO = errors.New("store: io error")

// ErrFormat reports a header version mismatch, or declared sizes that
// don't fit the mapped region.
var ErrFormat = errors.New("store: format error")

// Store is a handle on a mapped map file. The mapped region lives for
// the Store's lifetime and is released on Close. The coordinates and
// strings handed to a ForEachFeature visitor are copied out of the
// region, so they stay valid after that call and after Close.
type Store struct {
	file   *os.File
	region gommap.MMap
	header layout.FileHeader

	// residentTiles is a bitmap negative cache of tile ids actually
	// present in the index, populated once at Open. It never changes
	// the result of a lookup, only lets GetTilesForBoundingBox's
	// planner-returned ids skip the spec-mandated linear scan when
	// they plainly cannot be in the file (see SPEC_FULL.md section 6).
	residentTiles *roaring64.Bitmap

	logger *log.Logger
}

// Open maps path into memory and validates its header.
func Open(path string) (*Store, error) {
	return OpenWithLogger(path, nil)
}

// OpenWithLogger is Open with an explicit diagnostic sink; a nil logger
// defaults to log.Default(), mirroring pmtiles.NewServer's logger
// parameter.
func OpenWithLogger(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	region, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	header, err := layout.ParseFileHeader(region)
	if err != nil {
		region.UnsafeUnmap()
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if header.Version != SupportedVersion {
		region.UnsafeUnmap()
		f.Close()
		return nil, fmt.Errorf("%w: unrecognized version %d", ErrFormat, header.Version)
	}

	indexBase := layout.FileHeaderSize
	indexEnd := indexBase + int(header.TileCount)*layout.TileHeaderEntrySize
	if header.TileCount < 0 || indexEnd > len(region) {
		size := humanize.Bytes(uint64(len(region)))
		region.UnsafeUnmap()
		f.Close()
		return nil, fmt.Errorf("%w: declared tile count %d exceeds mapped bytes (%s)", ErrFormat, header.TileCount, size)
	}

	resident := roaring64.New()
	seenBlockHashes := make(map[uint64]int32, header.TileCount)
	for i := 0; i < int(header.TileCount); i++ {
		entry, err := layout.ParseTileHeaderEntry(region, indexBase, i)
		if err != nil {
			region.UnsafeUnmap()
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if entry.OffsetInBytes >= uint64(len(region)) {
			region.UnsafeUnmap()
			f.Close()
			return nil, fmt.Errorf("%w: tile %d offset %d outside mapped region", ErrFormat, entry.ID, entry.OffsetInBytes)
		}
		resident.Add(uint64(uint32(entry.ID)))

		// Diagnostic only: flag two distinct tile ids whose block header
		// bytes are byte-for-byte identical, a likely producer bug. This
		// never changes which tile a lookup returns.
		blockEnd := entry.OffsetInBytes + uint64(layout.TileBlockHeaderSize)
		if blockEnd <= uint64(len(region)) {
			h := xxhash.Sum64(region[entry.OffsetInBytes:blockEnd])
			if other, ok := seenBlockHashes[h]; ok && other != entry.ID {
				logger.Printf("store: tile %d and tile %d have identical block headers", other, entry.ID)
			}
			seenBlockHashes[h] = entry.ID
		}
	}

	return &Store{
		file:          f,
		region:        region,
		header:        header,
		residentTiles: resident,
		logger:        logger,
	}, nil
}

// Close releases the mapped region and the underlying file descriptor.
func (s *Store) Close() error {
	if err := s.region.UnsafeUnmap(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return s.file.Close()
}

// lookupTile linearly scans the tile index and returns the block header
// for id plus its absolute byte offset, as mandated by spec.md section
// 4.1 ("a linear scan is acceptable because tileCount... is small").
// The residentTiles bitmap is consulted first purely to skip scanning
// for ids that cannot exist; when it reports presence the scan below is
// still the sole source of truth for the header and offset returned.
func (s *Store) lookupTile(id int32) (layout.TileBlockHeader, uint64, bool) {
	if !s.residentTiles.Contains(uint64(uint32(id))) {
		return layout.TileBlockHeader{}, 0, false
	}

	indexBase := layout.FileHeaderSize
	for i := 0; i < int(s.header.TileCount); i++ {
		entry, err := layout.ParseTileHeaderEntry(s.region, indexBase, i)
		if err != nil {
			return layout.TileBlockHeader{}, 0, false
		}
		if entry.ID != id {
			continue
		}
		blockHeader, err := layout.ParseTileBlockHeader(s.region, int(entry.OffsetInBytes))
		if err != nil {
			return layout.TileBlockHeader{}, 0, false
		}
		return blockHeader, entry.OffsetInBytes, true
	}
	return layout.TileBlockHeader{}, 0, false
}

// FeatureData is the per-feature value handed to a ForEachFeature
// visitor; its coordinates and strings are copies, not views into the
// mapped region.
type FeatureData struct {
	ID           int64
	GeometryType layout.GeometryType
	Coordinates  []geo.Coordinate
	Label        string
	RenderType   classify.RenderType
}

// Visitor receives one FeatureData per visited feature and returns
// whether iteration should continue.
type Visitor func(FeatureData) bool

// ForEachFeature plans tiles for box via geo.GetTilesForBoundingBox,
// then visits every feature of every planned tile (in planner order,
// then storage order within a tile) whose coordinates include at least
// one point inside box (edges inclusive). Returning false from visitor
// halts iteration entirely, not just within the current tile.
func (s *Store) ForEachFeature(box geo.Box, visitor Visitor) error {
	tileIDs := geo.GetTilesForBoundingBox(box.MinLat, box.MinLon, box.MaxLat, box.MaxLon)

	for _, id := range tileIDs {
		blockHeader, tileOffset, ok := s.lookupTile(id)
		if !ok {
			continue // missing tiles are non-errors
		}

		cont, err := s.forEachFeatureInTile(blockHeader, tileOffset, box, visitor)
		if err != nil {
			s.logger.Printf("store: skipping tile %d: %v", id, err)
			continue
		}
		if !cont {
			return nil // CancelledByVisitor: normal termination
		}
	}
	return nil
}

func (s *Store) forEachFeatureInTile(bh layout.TileBlockHeader, tileOffset uint64, box geo.Box, visitor Visitor) (bool, error) {
	featuresBase := int(tileOffset) + layout.TileBlockHeaderSize
	coordsBase := int(tileOffset) + int(bh.CoordinatesOffsetInBytes)
	stringsBase := int(tileOffset) + int(bh.StringsOffsetInBytes)
	poolBase := int(tileOffset) + int(bh.CharactersOffsetInBytes)
	poolEnd := poolBase + int(bh.CharactersCount)*2
	if poolEnd > len(s.region) {
		return true, fmt.Errorf("character pool out of range")
	}
	pool := s.region[poolBase:poolEnd]

	for i := 0; i < int(bh.FeaturesCount); i++ {
		rec, err := layout.ParseFeatureRecord(s.region, featuresBase, i)
		if err != nil {
			s.logger.Printf("store: skipping feature %d: %v", i, err)
			continue
		}
		if rec.CoordinateOffset+rec.CoordinateCount > bh.CoordinatesCount {
			s.logger.Printf("store: skipping feature %d: coordinate range exceeds tile", rec.ID)
			continue
		}

		coords, inBox, err := s.readCoordinates(coordsBase, rec, box)
		if err != nil {
			s.logger.Printf("store: skipping feature %d: %v", rec.ID, err)
			continue
		}
		if !inBox {
			continue
		}

		props, err := s.readProperties(stringsBase, pool, rec, bh)
		if err != nil {
			s.logger.Printf("store: skipping feature %d: %v", rec.ID, err)
			continue
		}

		label := ""
		if v, ok := props.First("name"); ok {
			label = v
		} else if rec.LabelOffset >= 0 {
			entry, err := layout.ParseStringEntry(s.region, stringsBase, int(rec.LabelOffset))
			if err == nil {
				if decoded, err := layout.DecodeUTF16(pool, entry); err == nil {
					label = decoded
				}
			}
		}

		renderType := classify.Classify(props, GeometryKind(rec.GeometryType))

		fd := FeatureData{
			ID:           rec.ID,
			GeometryType: rec.GeometryType,
			Coordinates:  coords,
			Label:        label,
			RenderType:   renderType,
		}
		if !visitor(fd) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) readCoordinates(coordsBase int, rec layout.FeatureRecord, box geo.Box) ([]geo.Coordinate, bool, error) {
	coords := make([]geo.Coordinate, rec.CoordinateCount)
	inBox := false
	for j := 0; j < int(rec.CoordinateCount); j++ {
		cr, err := layout.ParseCoordinateRecord(s.region, coordsBase, int(rec.CoordinateOffset)+j)
		if err != nil {
			return nil, false, err
		}
		c := geo.Coordinate{Lat: cr.Latitude, Lon: cr.Longitude}
		coords[j] = c
		if box.Contains(c) {
			inBox = true
		}
	}
	return coords, inBox, nil
}

func (s *Store) readProperties(stringsBase int, pool []byte, rec layout.FeatureRecord, bh layout.TileBlockHeader) (classify.Properties, error) {
	if rec.PropertiesOffset+rec.PropertyCount*2 > bh.StringCount {
		return nil, fmt.Errorf("feature %d property range exceeds tile", rec.ID)
	}
	props := make(classify.Properties, rec.PropertyCount)
	for j := 0; j < int(rec.PropertyCount); j++ {
		keyEntry, err := layout.ParseStringEntry(s.region, stringsBase, int(rec.PropertiesOffset)+j*2)
		if err != nil {
			return nil, err
		}
		valEntry, err := layout.ParseStringEntry(s.region, stringsBase, int(rec.PropertiesOffset)+j*2+1)
		if err != nil {
			return nil, err
		}
		key, err := layout.DecodeUTF16(pool, keyEntry)
		if err != nil {
			return nil, err
		}
		val, err := layout.DecodeUTF16(pool, valEntry)
		if err != nil {
			return nil, err
		}
		props[j] = classify.KV{Key: key, Value: val}
	}
	return props, nil
}

// GeometryKind maps a binary-layout geometry tag to the classifier's
// own GeometryType, the one place those two independent enums meet.
func GeometryKind(g layout.GeometryType) classify.GeometryType {
	switch g {
	case layout.GeometryPolygon:
		return classify.GeometryPolygon
	case layout.GeometryPoint:
		return classify.GeometryPoint
	default:
		return classify.GeometryPolyline
	}
}
