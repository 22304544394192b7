package city

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/talgya/gridcity/internal/world"
)

// Placement errors.
var (
	ErrOverlap     = errors.New("building overlaps an existing building")
	ErrOutOfBounds = errors.New("building does not fit on the map")
	ErrWater       = errors.New("cannot build on water")
)

// CityMap is the shared simulation state. Building placement is guarded by an
// RWMutex and mirrored into an atomically published spatial index; each
// scalar layer carries its own coarse lock.
type CityMap struct {
	Name   string
	Width  int
	Height int

	// Ground is fixed at creation and read without locking.
	Ground world.GroundLayer

	Nation *Nation

	Traffic      *Layer
	Pollution    *Layer
	LandValue    *Layer
	Desirability map[Zone]*Layer

	// PowerMu serializes power coverage updates.
	PowerMu sync.Mutex

	mu        sync.RWMutex
	buildings map[world.Coord]*Building
	zones     map[world.Coord]Zone
	outside   []world.Coord

	index atomic.Pointer[spatialIndex]

	bulldozedMu sync.Mutex
	bulldozed   map[Zone]int
}

// NewCityMap creates an empty map over the given ground. A nil ground means
// flat dry land everywhere.
func NewCityMap(width, height int, ground world.GroundLayer) *CityMap {
	if ground == nil {
		ground = world.FlatGround(width, height)
	}
	m := &CityMap{
		Name:         "Gridcity",
		Width:        width,
		Height:       height,
		Ground:       ground,
		Nation:       NewNation(),
		Traffic:      NewLayer(),
		Pollution:    NewLayer(),
		LandValue:    NewLayer(),
		Desirability: make(map[Zone]*Layer, len(Zones)),
		buildings:    make(map[world.Coord]*Building),
		zones:        make(map[world.Coord]Zone),
		bulldozed:    make(map[Zone]int),
	}
	for _, z := range Zones {
		m.Desirability[z] = NewLayer()
	}
	m.index.Store(buildIndex(m.buildings))
	return m
}

// InBounds reports whether c lies on the map.
func (m *CityMap) InBounds(c world.Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < m.Width && c.Y < m.Height
}

func (m *CityMap) onBorder(c world.Coord) bool {
	return c.X == 0 || c.Y == 0 || c.X == m.Width-1 || c.Y == m.Height-1
}

// CanBuildAt checks placement of b anchored at c against bounds, water, and
// existing buildings.
func (m *CityMap) CanBuildAt(b *Building, c world.Coord) error {
	return m.canBuildAt(m.index.Load(), b, c)
}

func (m *CityMap) canBuildAt(ix *spatialIndex, b *Building, c world.Coord) error {
	for _, cell := range b.Blocks(c) {
		if !m.InBounds(cell) {
			return fmt.Errorf("%w: %s at %s", ErrOutOfBounds, b.Kind, cell)
		}
		if m.Ground.IsWater(cell) {
			return fmt.Errorf("%w: %s at %s", ErrWater, b.Kind, cell)
		}
		if other, ok := ix.at(cell); ok {
			return fmt.Errorf("%w: %s at %s is taken by %s", ErrOverlap, b.Kind, cell, other.Building)
		}
	}
	return nil
}

// Build places b with its anchor at c. Non-zoned buildings clear the zoning
// under their footprint.
func (m *CityMap) Build(b *Building, c world.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.canBuildAt(m.index.Load(), b, c); err != nil {
		return err
	}
	m.buildings[c] = b
	if b.Zone() == ZoneNone {
		for _, cell := range b.Blocks(c) {
			delete(m.zones, cell)
		}
	}
	m.republishLocked()
	return nil
}

// Restore places many buildings at once, as when loading a saved city. It
// stops at the first placement that fails.
func (m *CityMap) Restore(locs []Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := make(map[world.Coord]*Building)
	for c, b := range m.buildings {
		for _, cell := range b.Blocks(c) {
			taken[cell] = b
		}
	}
	defer m.republishLocked()
	for _, loc := range locs {
		for _, cell := range loc.Blocks() {
			if !m.InBounds(cell) {
				return fmt.Errorf("%w: %s at %s", ErrOutOfBounds, loc.Building.Kind, cell)
			}
			if m.Ground.IsWater(cell) {
				return fmt.Errorf("%w: %s at %s", ErrWater, loc.Building.Kind, cell)
			}
			if other, ok := taken[cell]; ok {
				return fmt.Errorf("%w: %s at %s is taken by %s", ErrOverlap, loc.Building.Kind, cell, other)
			}
		}
		for _, cell := range loc.Blocks() {
			taken[cell] = loc.Building
		}
		m.buildings[loc.Coord] = loc.Building
	}
	return nil
}

// BuildLine lays 1x1 buildings of kind along the straight line from a to b,
// skipping occupied or unbuildable cells, and returns how many were placed.
func (m *CityMap) BuildLine(kind Kind, a, b world.Coord) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ix := m.index.Load()
	placed := 0
	world.Rect(a, b, func(c world.Coord) {
		if a.X != b.X && a.Y != b.Y && c.Y != a.Y && c.X != b.X {
			// Non-straight drags follow an L: along a's row, then down b's column.
			return
		}
		nb := NewBuilding(kind)
		if m.canBuildAt(ix, nb, c) != nil {
			return
		}
		if _, taken := m.buildings[c]; taken {
			return
		}
		m.buildings[c] = nb
		delete(m.zones, c)
		placed++
	})
	if placed > 0 {
		m.republishLocked()
	}
	return placed
}

// republishLocked rebuilds the spatial index and outside connections from
// the building layer. Callers hold mu for writing.
func (m *CityMap) republishLocked() {
	ix := buildIndex(m.buildings)
	m.outside = m.outside[:0]
	for _, loc := range ix.all {
		if !loc.Building.Kind.Drivable() {
			continue
		}
		for _, cell := range loc.Blocks() {
			if m.onBorder(cell) {
				m.outside = append(m.outside, cell)
			}
		}
	}
	m.index.Store(ix)
}

// Bulldoze removes every building whose footprint intersects the rectangle
// from a to b and voids their contracts on both sides. Zoning is untouched.
func (m *CityMap) Bulldoze(a, b world.Coord) []Location {
	m.mu.Lock()
	ix := m.index.Load()
	seen := make(map[*Building]bool)
	var removed []Location
	world.Rect(a, b, func(c world.Coord) {
		loc, ok := ix.at(c)
		if !ok || seen[loc.Building] {
			return
		}
		seen[loc.Building] = true
		delete(m.buildings, loc.Coord)
		removed = append(removed, loc)
	})
	if len(removed) > 0 {
		m.republishLocked()
	}
	m.mu.Unlock()

	for _, loc := range removed {
		VoidAll(loc.Entity())
	}
	return removed
}

// Remove bulldozes a single building wherever it stands.
func (m *CityMap) Remove(b *Building) bool {
	m.mu.Lock()
	var at world.Coord
	found := false
	for c, other := range m.buildings {
		if other == b {
			at, found = c, true
			break
		}
	}
	if found {
		delete(m.buildings, at)
		m.republishLocked()
	}
	m.mu.Unlock()
	if found {
		VoidAll(Entity(at, b))
	}
	return found
}

// Stands reports whether b is still anchored at c.
func (m *CityMap) Stands(b *Building, c world.Coord) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buildings[c] == b
}

// Locations returns every building, ordered by anchor coordinate.
func (m *CityMap) Locations() []Location {
	all := m.index.Load().all
	out := make([]Location, len(all))
	copy(out, all)
	return out
}

// BuildingCount returns the number of standing buildings.
func (m *CityMap) BuildingCount() int {
	return len(m.index.Load().all)
}

// LocationsAt returns the building covering c, if any.
func (m *CityMap) LocationsAt(c world.Coord) []Location {
	if loc, ok := m.index.Load().at(c); ok {
		return []Location{loc}
	}
	return nil
}

// FindBuilding looks a building up by ID.
func (m *CityMap) FindBuilding(id string) (Location, bool) {
	for _, loc := range m.index.Load().all {
		if loc.Building.ID == id {
			return loc, true
		}
	}
	return Location{}, false
}

// NearestBuildings returns buildings within radius of c, nearest first with
// ties broken by coordinate.
func (m *CityMap) NearestBuildings(c world.Coord, radius int) []Location {
	return m.index.Load().within(c, radius)
}

// IsDrivable reports whether c holds a road, railroad, or crossing.
func (m *CityMap) IsDrivable(c world.Coord) bool {
	loc, ok := m.index.Load().at(c)
	return ok && loc.Building.Kind.Drivable()
}

// Occupied reports whether any building covers c.
func (m *CityMap) Occupied(c world.Coord) bool {
	_, ok := m.index.Load().at(c)
	return ok
}

// OutsideConnections returns the drivable border cells that lead out of the city.
func (m *CityMap) OutsideConnections() []world.Coord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]world.Coord, len(m.outside))
	copy(out, m.outside)
	return out
}

// HasOutsideConnection reports whether any road reaches the map edge.
func (m *CityMap) HasOutsideConnection() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.outside) > 0
}

// SetZone zones every empty, dry cell in the rectangle. ZoneNone dezones.
func (m *CityMap) SetZone(a, b world.Coord, z Zone) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ix := m.index.Load()
	n := 0
	world.Rect(a, b, func(c world.Coord) {
		if !m.InBounds(c) || m.Ground.IsWater(c) {
			return
		}
		if z == ZoneNone {
			delete(m.zones, c)
			return
		}
		if _, taken := ix.at(c); taken {
			return
		}
		m.zones[c] = z
		n++
	})
	return n
}

// ZoneAt returns the zoning of c.
func (m *CityMap) ZoneAt(c world.Coord) Zone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zones[c]
}

// ZonedCells returns every cell zoned z, ordered by coordinate.
func (m *CityMap) ZonedCells(z Zone) []world.Coord {
	m.mu.RLock()
	out := make([]world.Coord, 0)
	for c, cz := range m.zones {
		if cz == z {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return coordLess(out[i], out[j]) })
	return out
}

// ZoneLayer returns a copy of the zone layer.
func (m *CityMap) ZoneLayer() map[world.Coord]Zone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[world.Coord]Zone, len(m.zones))
	for c, z := range m.zones {
		out[c] = z
	}
	return out
}

// RecordBulldozed counts a building removed from zone z.
func (m *CityMap) RecordBulldozed(z Zone, n int) {
	m.bulldozedMu.Lock()
	defer m.bulldozedMu.Unlock()
	m.bulldozed[z] += n
}

// BulldozedCounts returns removals per zone since the last reset.
func (m *CityMap) BulldozedCounts() map[Zone]int {
	m.bulldozedMu.Lock()
	defer m.bulldozedMu.Unlock()
	out := make(map[Zone]int, len(m.bulldozed))
	for z, n := range m.bulldozed {
		out[z] = n
	}
	return out
}

// ResetBulldozed clears the removal counts.
func (m *CityMap) ResetBulldozed() {
	m.bulldozedMu.Lock()
	defer m.bulldozedMu.Unlock()
	clear(m.bulldozed)
}
