// Package power computes which buildings receive electricity. Each power
// plant floods outward over nearby buildings until its capacity runs out;
// plants whose floods touch merge into one grid and pool their capacity.
package power

import (
	"log/slog"
	"sort"
	"time"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/world"
)

// DefaultRadius is how far power jumps between buildings.
const DefaultRadius = 3

// Automaton is one plant's expanding reach for a single update. It is Active
// while it has both frontier and budget, and inert once exhausted, depleted,
// or absorbed by another automaton.
type Automaton struct {
	Plant  city.Location
	budget int

	frontier []world.Coord
	queued   map[world.Coord]bool
	owned    []world.Coord
	absorbed bool
}

func newAutomaton(plant city.Location) *Automaton {
	a := &Automaton{
		Plant:  plant,
		budget: plant.Building.PowerPlant.Capacity,
		queued: make(map[world.Coord]bool),
	}
	a.push(plant.Coord)
	return a
}

// Active reports whether the automaton can still claim cells.
func (a *Automaton) Active() bool {
	return !a.absorbed && a.budget > 0 && len(a.frontier) > 0
}

// Budget returns the remaining capacity.
func (a *Automaton) Budget() int { return a.budget }

// Owned returns the cells this automaton has claimed, including absorbed ones.
func (a *Automaton) Owned() []world.Coord { return a.owned }

func (a *Automaton) push(c world.Coord) {
	if a.queued[c] {
		return
	}
	a.queued[c] = true
	a.frontier = append(a.frontier, c)
}

func (a *Automaton) pop() world.Coord {
	c := a.frontier[0]
	a.frontier = a.frontier[1:]
	delete(a.queued, c)
	return c
}

// grid records which automaton owns each claimed cell.
type grid struct {
	m      *city.CityMap
	radius int
	owner  map[world.Coord]*Automaton
}

func (g *grid) claim(a *Automaton, c world.Coord) {
	g.owner[c] = a
	a.owned = append(a.owned, c)
	a.budget--
}

// absorb folds b into a: frontiers union, budgets add, and every cell b owned
// now belongs to a. Absorbing an inert or identical automaton is a no-op.
func (g *grid) absorb(a, b *Automaton) {
	if a == b || b.absorbed {
		return
	}
	for _, c := range b.frontier {
		a.push(c)
	}
	a.budget += b.budget
	for _, c := range b.owned {
		g.owner[c] = a
	}
	a.owned = append(a.owned, b.owned...)

	b.frontier = nil
	b.queued = nil
	b.owned = nil
	b.budget = 0
	b.absorbed = true
}

// step advances a by one frontier cell.
func (g *grid) step(a *Automaton) {
	c := a.pop()
	switch owner := g.owner[c]; {
	case owner == nil:
		g.claim(a, c)
	case owner != a:
		g.absorb(a, owner)
	}
	for _, n := range c.Neighbors(g.radius) {
		owner := g.owner[n]
		if owner != nil {
			g.absorb(a, owner)
			continue
		}
		if !a.queued[n] && g.m.Occupied(n) {
			a.push(n)
		}
	}
}

// Result summarizes a power update.
type Result struct {
	Claimed int // Cells energized
	Regions int // Independent grids after merging
	Powered int // Buildings marked powered
	Plants  int
}

// Update recomputes power coverage from scratch. It runs every plant's
// automaton round-robin until none is active, then marks each building
// powered iff some cell of its footprint was claimed.
func Update(m *city.CityMap, radius int) Result {
	if radius <= 0 {
		radius = DefaultRadius
	}
	m.PowerMu.Lock()
	defer m.PowerMu.Unlock()
	start := time.Now()

	locs := m.Locations()
	var automata []*Automaton
	for _, loc := range locs {
		if loc.Building.Kind == city.KindPowerPlant && loc.Building.PowerPlant != nil {
			automata = append(automata, newAutomaton(loc))
		}
	}

	g := &grid{m: m, radius: radius, owner: make(map[world.Coord]*Automaton)}
	for {
		progressed := false
		for _, a := range automata {
			if a.Active() {
				g.step(a)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	res := Result{Claimed: len(g.owner), Plants: len(automata)}
	for _, a := range automata {
		if !a.absorbed && len(a.owned) > 0 {
			res.Regions++
		}
	}
	for _, loc := range locs {
		powered := false
		for _, c := range loc.Blocks() {
			if g.owner[c] != nil {
				powered = true
				break
			}
		}
		loc.Building.SetPowered(powered)
		if powered {
			res.Powered++
		}
	}
	slog.Debug("power updated",
		"plants", res.Plants, "regions", res.Regions, "claimed", res.Claimed,
		"powered", res.Powered, "took", time.Since(start))
	return res
}

// PoweredIDs lists the IDs of powered buildings in sorted order.
func PoweredIDs(m *city.CityMap) []string {
	var ids []string
	for _, loc := range m.Locations() {
		if loc.Building.Powered() {
			ids = append(ids, loc.Building.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
