// Package market matches buildings with unmet demand to the path-nearest
// buildings that can supply them, and signs the resulting contracts.
package market

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/pathfinding"
	"github.com/talgya/gridcity/internal/world"
)

// DefaultMaxDistance is how far (in blocks) a building looks for partners.
const DefaultMaxDistance = 100

// PathMemo caches trips by counterparty key for the duration of one search.
// A stored nil means the counterparty is unreachable.
type PathMemo map[string]*world.Path

// Finder locates trading partners for a building.
type Finder struct {
	m           *city.CityMap
	pf          *pathfinding.Pathfinder
	maxDistance int

	// outsideBackoff suppresses path-to-outside searches for a while after
	// one fails, since a city without an exit fails every time.
	outsideBackoff  time.Duration
	lastOutsideMiss atomic.Int64

	now func() time.Time
}

// NewFinder returns a finder over m.
func NewFinder(m *city.CityMap, pf *pathfinding.Pathfinder, maxDistance int, outsideBackoff time.Duration) *Finder {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Finder{
		m:              m,
		pf:             pf,
		maxDistance:    maxDistance,
		outsideBackoff: outsideBackoff,
		now:            time.Now,
	}
}

type candidate struct {
	loc    city.Location
	blocks []world.Coord
	bound  int // Manhattan lower bound on the trip cost
}

// candidates returns buildings other than selfKey within the search radius
// that pass keep, ordered by lower-bound distance then coordinate.
func (f *Finder) candidates(blocks []world.Coord, selfKey string, keep func(b *city.Building) bool) []candidate {
	if len(blocks) == 0 {
		return nil
	}
	anchor := blocks[0]
	last := blocks[len(blocks)-1]
	reach := f.maxDistance + max(last.X-anchor.X, last.Y-anchor.Y)

	var out []candidate
	for _, loc := range f.m.NearestBuildings(anchor, reach) {
		b := loc.Building
		if b.ID == selfKey || b.Kind.Drivable() || !keep(b) {
			continue
		}
		cb := loc.Blocks()
		bound := world.MinManhattan(blocks, cb)
		if bound > f.maxDistance {
			continue
		}
		out = append(out, candidate{loc: loc, blocks: cb, bound: bound})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].bound < out[j].bound })
	return out
}

// nearest picks the candidate with the cheapest trip. Candidates are scanned
// in lower-bound order and the scan stops once no remaining candidate could
// beat the best trip found. On equal cost the first one found wins.
func (f *Finder) nearest(blocks []world.Coord, cands []candidate, memo PathMemo) (city.Location, *world.Path) {
	var (
		best     city.Location
		bestPath *world.Path
	)
	for _, c := range cands {
		if bestPath != nil && c.bound >= bestPath.Distance() {
			break
		}
		key := c.loc.Building.ID
		path, ok := memo[key]
		if !ok {
			path = f.pf.TripTo(blocks, c.blocks)
			if memo != nil {
				memo[key] = path
			}
		}
		if path == nil {
			continue
		}
		if bestPath == nil || path.Distance() < bestPath.Distance() {
			best, bestPath = c.loc, path
		}
	}
	return best, bestPath
}

// FindSource returns the path-nearest entity with at least quantity of t for
// sale, or nil. In-city sellers are preferred; the nation is the fallback.
func (f *Finder) FindSource(blocks []world.Coord, selfKey string, t economy.Tradeable, quantity int, memo PathMemo) (city.TradeEntity, *world.Path) {
	cands := f.candidates(blocks, selfKey, func(b *city.Building) bool {
		return b.QuantityForSale(t) >= quantity
	})
	if loc, path := f.nearest(blocks, cands, memo); path != nil {
		return loc.Entity(), path
	}
	if t == economy.Money {
		return nil, nil
	}
	return f.outside(blocks, memo, func(n *city.Nation) bool {
		return n.Entity(world.Coord{}).QuantityForSale(t) >= quantity
	})
}

// NearestBuyer returns the path-nearest entity that still wants t, skipping
// keys in exclude, or nil. The nation is the fallback buyer.
func (f *Finder) NearestBuyer(blocks []world.Coord, selfKey string, t economy.Tradeable, exclude map[string]bool, memo PathMemo) (city.TradeEntity, *world.Path) {
	cands := f.candidates(blocks, selfKey, func(b *city.Building) bool {
		return !exclude[b.ID] && b.QuantityWanted(t) > 0
	})
	if loc, path := f.nearest(blocks, cands, memo); path != nil {
		return loc.Entity(), path
	}
	if exclude[city.OutsideKey] {
		return nil, nil
	}
	return f.outside(blocks, memo, func(n *city.Nation) bool {
		return n.Entity(world.Coord{}).QuantityWanted(t) > 0
	})
}

func (f *Finder) outside(blocks []world.Coord, memo PathMemo, ok func(n *city.Nation) bool) (city.TradeEntity, *world.Path) {
	if !ok(f.m.Nation) || !f.m.HasOutsideConnection() {
		return nil, nil
	}
	if f.outsideBackoff > 0 {
		if last := f.lastOutsideMiss.Load(); last != 0 && f.now().Sub(time.Unix(0, last)) < f.outsideBackoff {
			return nil, nil
		}
	}
	path, seen := memo[city.OutsideKey]
	if !seen {
		path = f.pf.PathToOutside(blocks)
		if memo != nil {
			memo[city.OutsideKey] = path
		}
	}
	if path == nil {
		f.lastOutsideMiss.Store(f.now().UnixNano())
		slog.Debug("no path to outside", "from", blocks[0])
		return nil, nil
	}
	exit, _ := path.Last()
	return f.m.Nation.Entity(exit), path
}

// QuantityForSaleNearby totals what every reachable-by-distance seller
// (including the nation, when the city has an exit) could still sell.
func (f *Finder) QuantityForSaleNearby(blocks []world.Coord, selfKey string, t economy.Tradeable) int {
	total := 0
	for _, c := range f.candidates(blocks, selfKey, func(*city.Building) bool { return true }) {
		total += max(c.loc.Building.QuantityForSale(t), 0)
	}
	if f.m.HasOutsideConnection() {
		total += max(f.m.Nation.Entity(world.Coord{}).QuantityForSale(t), 0)
	}
	return total
}

// QuantityWantedNearby totals the residual demand of nearby buyers.
func (f *Finder) QuantityWantedNearby(blocks []world.Coord, selfKey string, t economy.Tradeable) int {
	total := 0
	for _, c := range f.candidates(blocks, selfKey, func(*city.Building) bool { return true }) {
		total += max(c.loc.Building.QuantityWanted(t), 0)
	}
	if f.m.HasOutsideConnection() {
		total += max(f.m.Nation.Entity(world.Coord{}).QuantityWanted(t), 0)
	}
	return total
}

// MaxAvailableNearby is the most any single nearby seller, or the nation,
// could sell in one contract. It bounds how much a buyer asks for.
func (f *Finder) MaxAvailableNearby(blocks []world.Coord, selfKey string, t economy.Tradeable) int {
	best := 0
	for _, c := range f.candidates(blocks, selfKey, func(*city.Building) bool { return true }) {
		best = max(best, c.loc.Building.QuantityForSale(t))
	}
	if f.m.HasOutsideConnection() && t != economy.Money {
		best = max(best, f.m.Nation.Entity(world.Coord{}).QuantityForSale(t))
	}
	return best
}

// Offer is a trading opportunity near some blocks.
type Offer struct {
	Location city.Location
	Distance int // Manhattan lower bound
	Quantity int
}

// NearbyOffers lists buildings within range that have t for sale, or with
// wanted set, that still want t. Nearest come first.
func (f *Finder) NearbyOffers(blocks []world.Coord, t economy.Tradeable, wanted bool) []Offer {
	var out []Offer
	for _, c := range f.candidates(blocks, "", func(*city.Building) bool { return true }) {
		q := c.loc.Building.QuantityForSale(t)
		if wanted {
			q = c.loc.Building.QuantityWanted(t)
		}
		if q > 0 {
			out = append(out, Offer{Location: c.loc, Distance: c.bound, Quantity: q})
		}
	}
	return out
}
