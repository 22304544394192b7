// Ground generation using layered simplex noise.
// Produces an elevation field and marks everything below the water line as water.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// TileType classifies a ground tile.
type TileType uint8

const (
	TileGround TileType = iota // Buildable land
	TileWater                  // Lakes and rivers; nothing may be built here
)

// String returns the tile type name.
func (t TileType) String() string {
	if t == TileWater {
		return "water"
	}
	return "ground"
}

// Tile is one block of the ground layer.
type Tile struct {
	Type      TileType `json:"type"`
	Elevation float64  `json:"elevation"` // 0.0 to 1.0
}

// GroundLayer maps every coordinate of the city to its tile.
type GroundLayer map[Coord]Tile

// IsWater reports whether the tile at c is water. Unknown tiles are treated as ground.
func (g GroundLayer) IsWater(c Coord) bool {
	t, ok := g[c]
	return ok && t.Type == TileWater
}

// Elevations returns the lowest and highest elevation in the layer.
func (g GroundLayer) Elevations() (lo, hi float64) {
	first := true
	for _, t := range g {
		if first {
			lo, hi = t.Elevation, t.Elevation
			first = false
			continue
		}
		if t.Elevation < lo {
			lo = t.Elevation
		}
		if t.Elevation > hi {
			hi = t.Elevation
		}
	}
	return lo, hi
}

// GenConfig holds ground generation parameters.
type GenConfig struct {
	Width     int
	Height    int
	Seed      int64   // 0 = random
	WaterLine float64 // Elevation below which a tile becomes water (0.0–1.0)
}

// DefaultGenConfig returns a medium-sized city with a few lakes.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:     128,
		Height:    128,
		Seed:      0,
		WaterLine: 0.22,
	}
}

// FlatGround returns an all-ground layer of the given size at elevation 0.1.
func FlatGround(width, height int) GroundLayer {
	g := make(GroundLayer, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g[Coord{X: x, Y: y}] = Tile{Type: TileGround, Elevation: 0.1}
		}
	}
	return g
}

// GenerateTerrain creates a ground layer from multi-octave simplex noise.
func GenerateTerrain(cfg GenConfig) GroundLayer {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	elevNoise := opensimplex.NewNormalized(seed)

	g := make(GroundLayer, cfg.Width*cfg.Height)
	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			elev := octaveNoise(elevNoise, float64(x), float64(y), 4, 0.03, 0.5)
			tile := Tile{Type: TileGround, Elevation: elev}
			if elev < cfg.WaterLine {
				tile.Type = TileWater
			}
			g[Coord{X: x, Y: y}] = tile
		}
	}
	return g
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// TileCounts returns the number of tiles of each type.
func TileCounts(g GroundLayer) map[TileType]int {
	counts := make(map[TileType]int)
	for _, t := range g {
		counts[t.Type]++
	}
	return counts
}
