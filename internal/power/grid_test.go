package power

import (
	"slices"
	"testing"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/world"
)

func coalPlant(t *testing.T, m *city.CityMap, at world.Coord) *city.Building {
	t.Helper()
	p, err := city.NewPowerPlant(city.VarietyCoal)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Build(p, at); err != nil {
		t.Fatal(err)
	}
	return p
}

// houseRow places 1x1 houses every third block along y from x0 to x1.
func houseRow(t *testing.T, m *city.CityMap, y, x0, x1 int) []*city.Building {
	t.Helper()
	var out []*city.Building
	for x := x0; x <= x1; x += 3 {
		b := city.NewBuilding(city.KindResidential)
		if err := m.Build(b, world.Coord{X: x, Y: y}); err != nil {
			t.Fatal(err)
		}
		out = append(out, b)
	}
	return out
}

func TestTwoPlantsMergeIntoOneGrid(t *testing.T) {
	m := city.NewCityMap(60, 20, nil)
	a := coalPlant(t, m, world.Coord{X: 2, Y: 2})
	b := coalPlant(t, m, world.Coord{X: 40, Y: 2})
	houses := houseRow(t, m, 3, 8, 38)

	res := Update(m, DefaultRadius)
	if res.Plants != 2 {
		t.Fatalf("expected 2 plants, got %d", res.Plants)
	}
	if res.Regions != 1 {
		t.Errorf("touching floods should merge into one grid, got %d regions", res.Regions)
	}
	if !a.Powered() || !b.Powered() {
		t.Errorf("both plants should be powered")
	}
	for _, h := range houses {
		if !h.Powered() {
			t.Errorf("house %s between the plants is dark", h)
		}
	}
	if res.Powered != len(houses)+2 {
		t.Errorf("powered %d buildings, want %d", res.Powered, len(houses)+2)
	}
	// Every footprint cell and house is claimed exactly once.
	if want := 16*2 + len(houses); res.Claimed != want {
		t.Errorf("claimed %d cells, want %d", res.Claimed, want)
	}
}

func TestMergedCoverageIsUnionOfEach(t *testing.T) {
	build := func(plants ...world.Coord) *city.CityMap {
		m := city.NewCityMap(60, 20, nil)
		for _, p := range plants {
			coalPlant(t, m, p)
		}
		houseRow(t, m, 3, 8, 20)
		houseRow(t, m, 16, 30, 50)
		return m
	}
	positions := func(m *city.CityMap) []world.Coord {
		var out []world.Coord
		for _, loc := range m.Locations() {
			if loc.Building.Powered() {
				out = append(out, loc.Coord)
			}
		}
		return out
	}

	left, right := world.Coord{X: 2, Y: 2}, world.Coord{X: 40, Y: 10}
	both := build(left, right)
	onlyLeft := build(left)
	onlyRight := build(right)
	Update(both, 0)
	Update(onlyLeft, 0)
	Update(onlyRight, 0)

	union := append(positions(onlyLeft), positions(onlyRight)...)
	slices.SortFunc(union, cmpCoord)
	union = slices.Compact(union)
	got := positions(both)
	slices.SortFunc(got, cmpCoord)
	if !slices.Equal(got, union) {
		t.Errorf("merged coverage %v differs from union %v", got, union)
	}
}

func cmpCoord(a, b world.Coord) int {
	if a.Y != b.Y {
		return a.Y - b.Y
	}
	return a.X - b.X
}

func TestUpdateIsIdempotent(t *testing.T) {
	m := city.NewCityMap(40, 40, nil)
	coalPlant(t, m, world.Coord{X: 5, Y: 5})
	houseRow(t, m, 6, 11, 35)
	houseRow(t, m, 30, 2, 20)

	first := Update(m, 0)
	ids := PoweredIDs(m)
	second := Update(m, 0)
	if first != second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if !slices.Equal(ids, PoweredIDs(m)) {
		t.Errorf("powered set changed between identical updates")
	}
}

func TestBudgetLimitsCoverage(t *testing.T) {
	m := city.NewCityMap(60, 10, nil)
	p := coalPlant(t, m, world.Coord{X: 0, Y: 0})
	p.PowerPlant.Capacity = 20
	houses := houseRow(t, m, 1, 6, 57)

	res := Update(m, 0)
	if res.Claimed != 20 {
		t.Errorf("a plant with capacity 20 should claim 20 cells, claimed %d", res.Claimed)
	}
	if houses[len(houses)-1].Powered() {
		t.Errorf("the far end of the row should be dark")
	}
	if !houses[0].Powered() {
		t.Errorf("the nearest house should be powered")
	}
}

func TestPowerRecomputedFromScratch(t *testing.T) {
	m := city.NewCityMap(30, 10, nil)
	coalPlant(t, m, world.Coord{X: 0, Y: 0})
	h := houseRow(t, m, 1, 6, 6)[0]
	Update(m, 0)
	if !h.Powered() {
		t.Fatal("house next to the plant should be powered")
	}

	m.Bulldoze(world.Coord{X: 0, Y: 0}, world.Coord{X: 3, Y: 3})
	res := Update(m, 0)
	if h.Powered() || res.Powered != 0 {
		t.Errorf("without a plant nothing should stay powered")
	}
}
