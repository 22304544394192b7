package city

import (
	"sync"

	"github.com/talgya/gridcity/internal/world"
)

// Layer is a sparse scalar field over the map (traffic, pollution, land
// value, desirability). Whole-layer passes run under its single lock.
type Layer struct {
	mu     sync.RWMutex
	values map[world.Coord]float64
}

// NewLayer returns an empty layer.
func NewLayer() *Layer {
	return &Layer{values: make(map[world.Coord]float64)}
}

// Get returns the value at c, or 0.
func (l *Layer) Get(c world.Coord) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.values[c]
}

// Set stores v at c; zero removes the entry.
func (l *Layer) Set(c world.Coord, v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v == 0 {
		delete(l.values, c)
		return
	}
	l.values[c] = v
}

// Replace swaps in a freshly computed field.
func (l *Layer) Replace(values map[world.Coord]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = values
}

// Update runs fn with exclusive access to the raw values.
func (l *Layer) Update(fn func(values map[world.Coord]float64)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.values)
}

// Snapshot copies the layer.
func (l *Layer) Snapshot() map[world.Coord]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[world.Coord]float64, len(l.values))
	for c, v := range l.values {
		out[c] = v
	}
	return out
}

// Max returns the largest value in the layer, or 0 when empty.
func (l *Layer) Max() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	max := 0.0
	for _, v := range l.values {
		if v > max {
			max = v
		}
	}
	return max
}
