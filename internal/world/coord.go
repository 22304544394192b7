// Package world provides the city grid: coordinates, paths, and ground tiles.
// Coordinates are plain (x, y) integer pairs; y grows downward.
package world

import (
	"fmt"
	"math"
)

// Coord is a position on the city grid. It is a value type and safe to use as a map key.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String renders the coordinate as "(x,y)".
func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Plus translates c by the offset o.
func (c Coord) Plus(o Coord) Coord {
	return Coord{X: c.X + o.X, Y: c.Y + o.Y}
}

// CardinalDirections are the four unit offsets (north, south, east, west).
var CardinalDirections = [4]Coord{
	{X: 0, Y: -1},
	{X: 0, Y: 1},
	{X: 1, Y: 0},
	{X: -1, Y: 0},
}

// Adjacent returns the four orthogonally adjacent coordinates.
func (c Coord) Adjacent() [4]Coord {
	var result [4]Coord
	for i, dir := range CardinalDirections {
		result[i] = c.Plus(dir)
	}
	return result
}

// Neighbors returns the 8-neighborhood generalized to radius: every coordinate
// within Chebyshev distance radius, excluding c itself.
func (c Coord) Neighbors(radius int) []Coord {
	if radius <= 0 {
		return nil
	}
	side := 2*radius + 1
	result := make([]Coord, 0, side*side-1)
	for y := c.Y - radius; y <= c.Y+radius; y++ {
		for x := c.X - radius; x <= c.X+radius; x++ {
			if x == c.X && y == c.Y {
				continue
			}
			result = append(result, Coord{X: x, Y: y})
		}
	}
	return result
}

// Neighbors4 returns the 4-neighborhood generalized to radius: every coordinate
// within Manhattan distance radius, excluding c itself.
func (c Coord) Neighbors4(radius int) []Coord {
	if radius <= 0 {
		return nil
	}
	var result []Coord
	for dy := -radius; dy <= radius; dy++ {
		span := radius - abs(dy)
		for dx := -span; dx <= span; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			result = append(result, Coord{X: c.X + dx, Y: c.Y + dy})
		}
	}
	return result
}

// Circle returns every coordinate inside the disc of the given radius centred on c,
// including c.
func (c Coord) Circle(radius int) []Coord {
	var result []Coord
	r2 := radius * radius
	for y := c.Y - radius; y <= c.Y+radius; y++ {
		dy2 := (y - c.Y) * (y - c.Y)
		for x := c.X - radius; x <= c.X+radius; x++ {
			if (x-c.X)*(x-c.X)+dy2 <= r2 {
				result = append(result, Coord{X: x, Y: y})
			}
		}
	}
	return result
}

// DistanceTo returns the Euclidean distance between two coordinates.
func (c Coord) DistanceTo(o Coord) float64 {
	dx := float64(c.X - o.X)
	dy := float64(c.Y - o.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Manhattan returns the taxicab distance between two coordinates.
func Manhattan(a, b Coord) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// MinManhattan returns the smallest Manhattan distance between any pair drawn
// from the two sets, or -1 when either set is empty.
func MinManhattan(from, to []Coord) int {
	best := -1
	for _, a := range from {
		for _, b := range to {
			d := Manhattan(a, b)
			if best < 0 || d < best {
				best = d
			}
		}
	}
	return best
}

// Rect calls fn for every coordinate in the rectangle spanned by a and b,
// regardless of which corner is given first.
func Rect(a, b Coord, fn func(Coord)) {
	x0, x1 := a.X, b.X
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	y0, y1 := a.Y, b.Y
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			fn(Coord{X: x, Y: y})
		}
	}
}

// Footprint returns the blocks covered by a width×height rectangle anchored
// (top-left) at c.
func Footprint(c Coord, width, height int) []Coord {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	blocks := make([]Coord, 0, width*height)
	for y := c.Y; y < c.Y+height; y++ {
		for x := c.X; x < c.X+width; x++ {
			blocks = append(blocks, Coord{X: x, Y: y})
		}
	}
	return blocks
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
