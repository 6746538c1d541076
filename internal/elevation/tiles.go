// Package elevation resolves geographic positions to terrain elevations.
//
// Elevations come from SRTM .hgt tiles on local disk. Because hotspot owners
// may offset their asserted position for privacy, the Resolver searches a
// hexagonal-cell neighborhood around the asserted position and uses the
// highest terrain found, which is the conservative worst case for path
// obstruction.
package elevation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/edgewatch/edgewatch/pkg/geo"
)

// ErrCoverageMissing indicates that no elevation data covers the requested
// position: either no tile exists or the tile holds a void sample there.
var ErrCoverageMissing = errors.New("no elevation coverage for position")

// SRTM void marker
const voidSample = -32768

// Tile sizes: 1-arc-second tiles are 3601x3601 samples, 3-arc-second tiles
// are 1201x1201. Each sample is a big-endian int16.
const (
	srtm1Side = 3601
	srtm3Side = 1201
)

// Sampler reads terrain elevation at a position.
type Sampler interface {
	Elevation(p geo.Point) (float64, error)
}

// TileStore reads SRTM .hgt tiles from a directory, caching loaded tiles for
// the duration of a run. Safe for concurrent use; a run only ever reads.
type TileStore struct {
	dir string

	mu    sync.RWMutex
	tiles map[string]*tile // keyed by tile name, nil entry = known missing
}

type tile struct {
	side    int
	samples []int16
}

// NewTileStore opens a tile directory. The directory must exist; individual
// tiles are loaded lazily on first touch.
func NewTileStore(dir string) (*TileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening tile directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tile path %s is not a directory", dir)
	}
	return &TileStore{
		dir:   dir,
		tiles: make(map[string]*tile),
	}, nil
}

// tileName returns the SRTM tile filename stem covering the position, e.g.
// N39W105 for (39.7, -104.9). Tiles are named for their southwest corner.
func tileName(p geo.Point) string {
	latFloor := int(math.Floor(p.Lat))
	lonFloor := int(math.Floor(p.Lon))

	ns, lat := "N", latFloor
	if latFloor < 0 {
		ns, lat = "S", -latFloor
	}
	ew, lon := "E", lonFloor
	if lonFloor < 0 {
		ew, lon = "W", -lonFloor
	}
	return fmt.Sprintf("%s%02d%s%03d", ns, lat, ew, lon)
}

// Elevation returns the terrain elevation in meters at p, from the nearest
// sample of the covering tile. Returns ErrCoverageMissing when no tile
// covers p or the sample is an SRTM void.
func (s *TileStore) Elevation(p geo.Point) (float64, error) {
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return 0, fmt.Errorf("position %v,%v out of range: %w", p.Lat, p.Lon, ErrCoverageMissing)
	}

	t, err := s.load(tileName(p))
	if err != nil {
		return 0, err
	}

	// Fractional position within the one-degree tile. Rows run north to
	// south, so row 0 is the tile's north edge.
	fracLat := p.Lat - math.Floor(p.Lat)
	fracLon := p.Lon - math.Floor(p.Lon)

	n := t.side
	row := int(math.Round((1.0 - fracLat) * float64(n-1)))
	col := int(math.Round(fracLon * float64(n-1)))

	v := t.samples[row*n+col]
	if v == voidSample {
		return 0, fmt.Errorf("void sample at %v,%v: %w", p.Lat, p.Lon, ErrCoverageMissing)
	}
	return float64(v), nil
}

func (s *TileStore) load(name string) (*tile, error) {
	s.mu.RLock()
	t, seen := s.tiles[name]
	s.mu.RUnlock()
	if seen {
		if t == nil {
			return nil, fmt.Errorf("tile %s: %w", name, ErrCoverageMissing)
		}
		return t, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, seen := s.tiles[name]; seen {
		if t == nil {
			return nil, fmt.Errorf("tile %s: %w", name, ErrCoverageMissing)
		}
		return t, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, name+".hgt"))
	if err != nil {
		if os.IsNotExist(err) {
			s.tiles[name] = nil // remember the miss
			return nil, fmt.Errorf("tile %s: %w", name, ErrCoverageMissing)
		}
		return nil, fmt.Errorf("reading tile %s: %w", name, err)
	}

	var side int
	switch len(raw) {
	case srtm1Side * srtm1Side * 2:
		side = srtm1Side
	case srtm3Side * srtm3Side * 2:
		side = srtm3Side
	default:
		return nil, fmt.Errorf("tile %s has unexpected size %d bytes", name, len(raw))
	}

	samples := make([]int16, side*side)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(raw[i*2:]))
	}

	t = &tile{side: side, samples: samples}
	s.tiles[name] = t
	return t, nil
}
