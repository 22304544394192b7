package city

import (
	"sort"

	"github.com/tidwall/rtree"

	"github.com/talgya/gridcity/internal/world"
)

// Location is a building standing at its anchor coordinate.
type Location struct {
	Coord    world.Coord `json:"coord"`
	Building *Building   `json:"building"`
}

// Blocks returns every coordinate the building occupies.
func (l Location) Blocks() []world.Coord { return l.Building.Blocks(l.Coord) }

// Entity returns the location as a trade entity.
func (l Location) Entity() CityTradeEntity { return CityTradeEntity{At: l.Coord, B: l.Building} }

// spatialIndex is an immutable snapshot of building placement. Writers build
// a fresh one under the map's write lock and publish it atomically, so
// readers never block on placement changes.
type spatialIndex struct {
	tree  rtree.RTreeG[Location]
	cells map[world.Coord]Location
	all   []Location
}

func buildIndex(layer map[world.Coord]*Building) *spatialIndex {
	ix := &spatialIndex{
		cells: make(map[world.Coord]Location, len(layer)),
		all:   make([]Location, 0, len(layer)),
	}
	for c, b := range layer {
		loc := Location{Coord: c, Building: b}
		ix.all = append(ix.all, loc)
		min, max := bounds(loc)
		ix.tree.Insert(min, max, loc)
		for _, cell := range loc.Blocks() {
			ix.cells[cell] = loc
		}
	}
	sort.Slice(ix.all, func(i, j int) bool { return coordLess(ix.all[i].Coord, ix.all[j].Coord) })
	return ix
}

func bounds(l Location) (min, max [2]float64) {
	min = [2]float64{float64(l.Coord.X), float64(l.Coord.Y)}
	max = [2]float64{float64(l.Coord.X + l.Building.Width - 1), float64(l.Coord.Y + l.Building.Height - 1)}
	return min, max
}

func (ix *spatialIndex) at(c world.Coord) (Location, bool) {
	loc, ok := ix.cells[c]
	return loc, ok
}

// within returns buildings whose footprint comes within radius (Chebyshev)
// of c, ordered by distance and then by coordinate.
func (ix *spatialIndex) within(c world.Coord, radius int) []Location {
	min := [2]float64{float64(c.X - radius), float64(c.Y - radius)}
	max := [2]float64{float64(c.X + radius), float64(c.Y + radius)}
	type hit struct {
		loc  Location
		dist int
	}
	var hits []hit
	ix.tree.Search(min, max, func(_, _ [2]float64, loc Location) bool {
		hits = append(hits, hit{loc, footprintDistance(c, loc)})
		return true
	})
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return coordLess(hits[i].loc.Coord, hits[j].loc.Coord)
	})
	out := make([]Location, len(hits))
	for i, h := range hits {
		out[i] = h.loc
	}
	return out
}

// footprintDistance is the Manhattan distance from c to the nearest cell of loc.
func footprintDistance(c world.Coord, loc Location) int {
	nearest := world.Coord{
		X: clampInt(c.X, loc.Coord.X, loc.Coord.X+loc.Building.Width-1),
		Y: clampInt(c.Y, loc.Coord.Y, loc.Coord.Y+loc.Building.Height-1),
	}
	return world.Manhattan(c, nearest)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func coordLess(a, b world.Coord) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}
