// Daily layer passes: power coverage, pollution, land value.
package engine

import (
	"log/slog"
	"slices"

	"github.com/talgya/gridcity/internal/power"
	"github.com/talgya/gridcity/internal/world"
)

const (
	pollutionDiffusion   = 0.90
	pollutionEvaporation = 0.90
	pollutionFloor       = 0.01
	trafficPollution     = 0.01 // Pollution per unit of traffic on a road

	landValueRadius = 10
	maxLandValue    = 1.0
)

func (s *Simulation) updatePower() {
	res := power.Update(s.City, s.Config.Power.Radius)
	slog.Debug("power coverage", "plants", res.Plants, "regions", res.Regions,
		"claimed", res.Claimed, "powered", res.Powered)
}

// updatePollution adds each building's emissions, spreads them to
// neighbors, and lets everything decay. Roads emit in proportion to traffic.
func (s *Simulation) updatePollution() {
	traffic := s.City.Traffic.Snapshot()
	locs := s.City.Locations()
	s.City.Pollution.Update(func(p map[world.Coord]float64) {
		for _, loc := range locs {
			for _, blk := range loc.Blocks() {
				gen := loc.Building.Pollution
				if loc.Building.Kind.Drivable() {
					gen = traffic[blk] * trafficPollution
				}
				if gen > 0 {
					p[blk] += gen
				}
			}
		}

		sources := make([]world.Coord, 0, len(p))
		for c, v := range p {
			if v > 0 {
				sources = append(sources, c)
			}
		}
		slices.SortFunc(sources, func(a, b world.Coord) int {
			if a.Y != b.Y {
				return a.Y - b.Y
			}
			return a.X - b.X
		})
		spread := make(map[world.Coord]float64)
		for _, c := range sources {
			v := p[c] * pollutionDiffusion
			for _, n := range c.Neighbors(1) {
				if !s.City.InBounds(n) || p[n] >= v {
					continue
				}
				spread[n] = max(spread[n], (p[n]+v)/2)
			}
		}
		for c, v := range spread {
			p[c] = v
		}

		for c, v := range p {
			v *= pollutionEvaporation
			if v < pollutionFloor {
				delete(p, c)
				continue
			}
			p[c] = v
		}
	})
}

// updateLandValue scores every zoned cell by the money held nearby, scaled
// so the wealthiest cell is worth maxLandValue.
func (s *Simulation) updateLandValue() {
	zones := s.City.ZoneLayer()
	s.City.LandValue.Update(func(values map[world.Coord]float64) {
		clear(values)
		wealth := make(map[world.Coord]int, len(zones))
		richest := 0
		for c := range zones {
			w := 0
			for _, loc := range s.City.NearestBuildings(c, landValueRadius) {
				w += loc.Building.Balance()
			}
			w = max(w, 0)
			wealth[c] = w
			richest = max(richest, w)
		}
		if richest == 0 {
			return
		}
		for c, w := range wealth {
			if w > 0 {
				values[c] = float64(w) / float64(richest) * maxLandValue
			}
		}
	})
}
