// Package pathfinding routes trips between building footprints over the
// road network.
package pathfinding

import (
	"container/heap"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/world"
)

// DefaultMaxExpansions bounds a single search.
const DefaultMaxExpansions = 20000

// Pathfinder computes road trips over a city map. It holds no mutable state
// and is safe for concurrent use.
type Pathfinder struct {
	m             *city.CityMap
	maxExpansions int
}

// New returns a pathfinder for m. A non-positive maxExpansions uses the default.
func New(m *city.CityMap, maxExpansions int) *Pathfinder {
	if maxExpansions <= 0 {
		maxExpansions = DefaultMaxExpansions
	}
	return &Pathfinder{m: m, maxExpansions: maxExpansions}
}

// TripTo finds the cheapest route from any block in from to any block in to.
// Every step costs one block. A trip leaves its origin onto a road, stays on
// drivable tiles, and steps off a road into the destination. Overlapping sets
// yield a single-node, zero-cost path. It returns nil when no route exists.
func (p *Pathfinder) TripTo(from, to []world.Coord) *world.Path {
	if len(from) == 0 || len(to) == 0 {
		return nil
	}
	goal := make(map[world.Coord]bool, len(to))
	for _, c := range to {
		goal[c] = true
	}
	for _, c := range from {
		if goal[c] {
			return world.NewPath([]world.Coord{c})
		}
	}
	box := boundsOf(to)

	open := &frontier{}
	cost := make(map[world.Coord]int, 256)
	prev := make(map[world.Coord]world.Coord, 256)
	closed := make(map[world.Coord]bool, 256)
	for _, c := range from {
		if _, seen := cost[c]; seen {
			continue
		}
		cost[c] = 0
		heap.Push(open, &node{c: c, g: 0, f: box.distance(c)})
	}

	expansions := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if closed[cur.c] {
			continue
		}
		if goal[cur.c] {
			return world.NewPath(reconstruct(prev, cost, cur.c))
		}
		closed[cur.c] = true
		expansions++
		if expansions > p.maxExpansions {
			return nil
		}

		onRoad := p.m.IsDrivable(cur.c)
		for _, n := range cur.c.Adjacent() {
			if closed[n] || !p.m.InBounds(n) {
				continue
			}
			if !p.m.IsDrivable(n) && !(goal[n] && onRoad) {
				continue
			}
			g := cur.g + 1
			if old, seen := cost[n]; seen && old <= g {
				continue
			}
			cost[n] = g
			prev[n] = cur.c
			heap.Push(open, &node{c: n, g: g, f: g + box.distance(n)})
		}
	}
	return nil
}

// PathToOutside routes from the given blocks to the nearest road leaving the map.
func (p *Pathfinder) PathToOutside(from []world.Coord) *world.Path {
	conns := p.m.OutsideConnections()
	if len(conns) == 0 {
		return nil
	}
	return p.TripTo(from, conns)
}

// NearbyRoad reports whether any drivable tile lies within radius
// (Manhattan) of the given blocks, including the blocks themselves.
func (p *Pathfinder) NearbyRoad(blocks []world.Coord, radius int) bool {
	for _, b := range blocks {
		if p.m.IsDrivable(b) {
			return true
		}
		for _, n := range b.Neighbors4(radius) {
			if p.m.IsDrivable(n) {
				return true
			}
		}
	}
	return false
}

func reconstruct(prev map[world.Coord]world.Coord, cost map[world.Coord]int, end world.Coord) []world.Coord {
	nodes := []world.Coord{end}
	for cost[end] > 0 {
		end = prev[end]
		nodes = append(nodes, end)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}

// rect is the bounding box of a destination set. Manhattan distance to it
// never overestimates the remaining cost, which keeps the search optimal.
type rect struct{ minX, minY, maxX, maxY int }

func boundsOf(cs []world.Coord) rect {
	r := rect{cs[0].X, cs[0].Y, cs[0].X, cs[0].Y}
	for _, c := range cs[1:] {
		r.minX = min(r.minX, c.X)
		r.minY = min(r.minY, c.Y)
		r.maxX = max(r.maxX, c.X)
		r.maxY = max(r.maxY, c.Y)
	}
	return r
}

func (r rect) distance(c world.Coord) int {
	dx, dy := 0, 0
	if c.X < r.minX {
		dx = r.minX - c.X
	} else if c.X > r.maxX {
		dx = c.X - r.maxX
	}
	if c.Y < r.minY {
		dy = r.minY - c.Y
	} else if c.Y > r.maxY {
		dy = c.Y - r.maxY
	}
	return dx + dy
}

type node struct {
	c world.Coord
	g int
	f int
}

// frontier is a min-heap on f, then g descending, then coordinate, so equal
// searches always expand in the same order.
type frontier []*node

func (h frontier) Len() int { return len(h) }
func (h frontier) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.g != b.g {
		return a.g > b.g
	}
	if a.c.Y != b.c.Y {
		return a.c.Y < b.c.Y
	}
	return a.c.X < b.c.X
}
func (h frontier) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *frontier) Push(x any)   { *h = append(*h, x.(*node)) }
func (h *frontier) Pop() any {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}
