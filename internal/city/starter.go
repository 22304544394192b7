// Starter layout for a brand-new city: a road cross reaching the map edges,
// a block grid around the center, three zoned quarters, and a coal plant.
package city

import (
	"errors"
	"log/slog"

	"github.com/talgya/gridcity/internal/world"
)

// ErrNoPlantSite is returned when the starter layout finds nowhere dry to put
// its power plant.
var ErrNoPlantSite = errors.New("no site for the starter power plant")

const blockSpacing = 6

// NewStarterCity lays out a small playable city on ground. The main cross
// runs the full width and height so the city trades with the outside from
// the first hour; BuildLine skips water, so a lake may cut a road short.
func NewStarterCity(width, height int, ground world.GroundLayer) (*CityMap, error) {
	m := NewCityMap(width, height, ground)
	cx, cy := width/2, height/2

	roads := m.BuildLine(KindRoad, world.Coord{X: 0, Y: cy}, world.Coord{X: width - 1, Y: cy})
	roads += m.BuildLine(KindRoad, world.Coord{X: cx, Y: 0}, world.Coord{X: cx, Y: height - 1})

	// Side streets within the central district.
	x0, x1 := max(cx-width/4, 0), min(cx+width/4, width-1)
	y0, y1 := max(cy-height/4, 0), min(cy+height/4, height-1)
	for y := y0; y <= y1; y += blockSpacing {
		roads += m.BuildLine(KindRoad, world.Coord{X: x0, Y: y}, world.Coord{X: x1, Y: y})
	}
	for x := x0; x <= x1; x += blockSpacing {
		roads += m.BuildLine(KindRoad, world.Coord{X: x, Y: y0}, world.Coord{X: x, Y: y1})
	}

	zoned := m.SetZone(world.Coord{X: x0, Y: y0}, world.Coord{X: cx - 1, Y: cy - 1}, ZoneResidential)
	zoned += m.SetZone(world.Coord{X: cx + 1, Y: y0}, world.Coord{X: x1, Y: cy - 1}, ZoneCommercial)
	zoned += m.SetZone(world.Coord{X: cx + 1, Y: cy + 1}, world.Coord{X: x1, Y: y1}, ZoneIndustrial)

	plant, err := NewPowerPlant(VarietyCoal)
	if err != nil {
		return nil, err
	}
	site, ok := m.plantSite(plant, world.Coord{X: x0, Y: cy + 1}, world.Coord{X: cx - 1, Y: y1})
	if !ok {
		return nil, ErrNoPlantSite
	}
	if err := m.Build(plant, site); err != nil {
		return nil, err
	}

	slog.Info("starter city laid out",
		"width", width, "height", height, "roads", roads, "zoned", zoned,
		"plant", site, "connected", m.HasOutsideConnection())
	return m, nil
}

// plantSite scans the rectangle from a to b for the first anchor where b
// fits, trying the whole map if the rectangle has none.
func (m *CityMap) plantSite(b *Building, from, to world.Coord) (world.Coord, bool) {
	try := func(a, z world.Coord) (site world.Coord, found bool) {
		world.Rect(a, z, func(c world.Coord) {
			if found || m.CanBuildAt(b, c) != nil {
				return
			}
			site, found = c, true
		})
		return site, found
	}
	if c, ok := try(from, to); ok {
		return c, true
	}
	return try(world.Coord{}, world.Coord{X: m.Width - 1, Y: m.Height - 1})
}
