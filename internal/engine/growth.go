// Desirability and construction: how zoned land fills with buildings.
package engine

import (
	"log/slog"
	"slices"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

const (
	roadRadius       = 3   // How far a zoned cell may be from a road
	baseDesirability = 1.0 // Any cell with road access is worth something
	candidateSpots   = 10  // Construction picks among this many best cells
	oversupplyLimit  = 5
	maxBuildsPerZone = 5
	buildShare       = 0.05
)

// updateDesirability rescores every empty zoned cell. Cells without road
// access score zero and are left out of the layer.
func (s *Simulation) updateDesirability() {
	for _, z := range city.Zones {
		cells := s.City.ZonedCells(z)
		s.City.Desirability[z].Update(func(values map[world.Coord]float64) {
			clear(values)
			for _, c := range cells {
				if s.City.Occupied(c) {
					continue
				}
				if score := s.desirability(z, c); score > 0 {
					values[c] = score
				}
			}
		})
	}
}

// desirability scores a cell for zone z. Homes want jobs and shops nearby,
// shops want customers and workers, industry wants workers.
func (s *Simulation) desirability(z city.Zone, c world.Coord) float64 {
	blocks := []world.Coord{c}
	if !s.pathfinder.NearbyRoad(blocks, roadRadius) {
		return 0
	}
	score := baseDesirability
	add := func(t economy.Tradeable, wanted bool, weight float64) {
		for _, o := range s.finder.NearbyOffers(blocks, t, wanted) {
			score += weight * float64(o.Quantity) / float64(max(o.Distance, 1))
		}
	}
	switch z {
	case city.ZoneResidential:
		add(economy.Labor, true, 10)
		add(economy.Goods, false, 1)
	case city.ZoneCommercial:
		add(economy.Goods, true, 1)
		add(economy.Labor, false, 1)
	case city.ZoneIndustrial:
		add(economy.Labor, false, 10)
	}
	return score
}

// oversupplied reports whether the city already makes more of what zone z
// produces than it uses.
func oversupplied(z city.Zone, st Stats) bool {
	switch z {
	case city.ZoneResidential:
		return st.TradeBalance(economy.Labor) > oversupplyLimit
	case city.ZoneCommercial:
		return st.TradeBalance(economy.Goods) > oversupplyLimit
	case city.ZoneIndustrial:
		return st.TradeBalance(economy.WholesaleGoods) > oversupplyLimit
	}
	return true
}

// construct places level-1 catalog buildings on the most desirable cells of
// each zone, skipping zones that are oversupplied or just lost buildings to
// liquidation. It returns the number of buildings placed.
func (s *Simulation) construct() int {
	st := s.Stats()
	bulldozed := s.City.BulldozedCounts()
	built := 0
	for _, z := range [...]city.Zone{city.ZoneIndustrial, city.ZoneCommercial, city.ZoneResidential} {
		if bulldozed[z] > 0 {
			slog.Debug("zone lost buildings recently, not building", "zone", z)
			continue
		}
		if oversupplied(z, st) {
			slog.Debug("zone oversupplied, not building", "zone", z)
			continue
		}
		layer := s.City.Desirability[z].Snapshot()
		spots := bestSpots(layer, candidateSpots)
		n := min(max(int(float64(len(layer))*buildShare), 1), maxBuildsPerZone)
		for range n {
			if len(spots) == 0 {
				break
			}
			i := s.rng.Intn(len(spots))
			at := spots[i]
			spots = slices.Delete(spots, i, i+1)

			b := s.Catalog.Find(z, 1, s.rng.Intn)
			if b == nil {
				slog.Debug("no building in catalog", "zone", z)
				break
			}
			if !s.zonedFor(b, at, z) {
				continue
			}
			if err := s.City.Build(b, at); err != nil {
				slog.Debug("construction failed", "building", b.String(), "at", at, "error", err)
				continue
			}
			built++
			slog.Debug("constructed building", "building", b.String(), "at", at, "score", layer[at])
		}
	}
	return built
}

// zonedFor reports whether every cell of b's footprint at c is zoned z.
func (s *Simulation) zonedFor(b *city.Building, c world.Coord, z city.Zone) bool {
	for _, blk := range b.Blocks(c) {
		if s.City.ZoneAt(blk) != z {
			return false
		}
	}
	return true
}

// bestSpots returns up to n cells with the highest positive scores, ties
// broken by coordinate.
func bestSpots(layer map[world.Coord]float64, n int) []world.Coord {
	out := make([]world.Coord, 0, len(layer))
	for c, v := range layer {
		if v > 0 {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b world.Coord) int {
		switch {
		case layer[a] > layer[b]:
			return -1
		case layer[a] < layer[b]:
			return 1
		case a.Y != b.Y:
			return a.Y - b.Y
		}
		return a.X - b.X
	})
	return out[:min(n, len(out))]
}
