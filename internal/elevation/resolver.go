package elevation

import (
	"fmt"
	"sort"
	"sync"

	h3 "github.com/uber/h3-go/v4"

	"github.com/edgewatch/edgewatch/pkg/geo"
)

// CellResolution is the H3 resolution of the neighborhood search. Res-8
// cells are ~460 m across, on the order of the allowed assertion offset.
const CellResolution = 8

// Resolved is the outcome of resolving an asserted position: the elevation
// used for modeling and the position it was actually read at, which differs
// from the asserted position whenever higher terrain sits nearby.
type Resolved struct {
	Elevation float64
	Position  geo.Point
}

// Resolver resolves asserted positions to worst-case terrain elevations.
// Results are memoized per unique raw input position for the life of the
// Resolver, since many pairs share a beaconer or witness.
type Resolver struct {
	sampler Sampler
	radius  int

	mu   sync.Mutex
	memo map[geo.Point]memoEntry
}

type memoEntry struct {
	res Resolved
	err error
}

// NewResolver builds a Resolver over the given terrain sampler. radius is
// the H3 grid-disk radius searched around the asserted cell; 0 disables the
// neighborhood search and reads the asserted position directly.
func NewResolver(sampler Sampler, radius int) *Resolver {
	return &Resolver{
		sampler: sampler,
		radius:  radius,
		memo:    make(map[geo.Point]memoEntry),
	}
}

// Resolve returns the maximum terrain elevation across the asserted
// position's cell and all cells within the configured radius, along with the
// cell-center position of that maximum. Cells are visited in ascending cell
// index order so elevation ties always resolve to the same position.
//
// Returns ErrCoverageMissing when no searched cell has elevation data.
func (r *Resolver) Resolve(p geo.Point) (Resolved, error) {
	r.mu.Lock()
	if e, ok := r.memo[p]; ok {
		r.mu.Unlock()
		return e.res, e.err
	}
	r.mu.Unlock()

	res, err := r.resolve(p)

	r.mu.Lock()
	r.memo[p] = memoEntry{res: res, err: err}
	r.mu.Unlock()
	return res, err
}

func (r *Resolver) resolve(p geo.Point) (Resolved, error) {
	if r.radius == 0 {
		elev, err := r.sampler.Elevation(p)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Elevation: elev, Position: p}, nil
	}

	origin, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), CellResolution)
	if err != nil {
		return Resolved{}, fmt.Errorf("indexing position %v,%v: %w", p.Lat, p.Lon, err)
	}

	cells, err := h3.GridDisk(origin, r.radius)
	if err != nil {
		return Resolved{}, fmt.Errorf("building cell neighborhood: %w", err)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

	var (
		best   Resolved
		found  bool
		misses int
	)
	for _, cell := range cells {
		center, err := h3.CellToLatLng(cell)
		if err != nil {
			continue
		}
		cp := geo.Point{Lat: center.Lat, Lon: center.Lng}
		elev, err := r.sampler.Elevation(cp)
		if err != nil {
			misses++
			continue
		}
		if !found || elev > best.Elevation {
			best = Resolved{Elevation: elev, Position: cp}
			found = true
		}
	}

	if !found {
		return Resolved{}, fmt.Errorf("all %d neighborhood cells uncovered at %v,%v: %w",
			misses, p.Lat, p.Lon, ErrCoverageMissing)
	}
	return best, nil
}
