package pathfinding

import (
	"testing"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/world"
)

func TestPathToOutside(t *testing.T) {
	m := city.NewCityMap(100, 100, nil)
	pf := New(m, 0)
	start := []world.Coord{{X: 50, Y: 50}}
	if p := pf.PathToOutside(start); p != nil {
		t.Fatalf("no roads should mean no way out, got %v", p.Nodes)
	}

	m.BuildLine(city.KindRoad, world.Coord{X: 0, Y: 50}, world.Coord{X: 99, Y: 50})
	p := pf.PathToOutside(start)
	if p == nil {
		t.Fatal("expected a path to the edge")
	}
	if p.Len() != 50 || p.Distance() != 49 {
		t.Errorf("expected 50 nodes costing 49, got %d nodes cost %d", p.Len(), p.Distance())
	}
}

func TestTripBetweenBuildings(t *testing.T) {
	m := city.NewCityMap(20, 20, nil)
	m.BuildLine(city.KindRoad, world.Coord{X: 0, Y: 5}, world.Coord{X: 19, Y: 5})

	shop := city.NewBuilding(city.KindCommercial)
	m.Build(shop, world.Coord{X: 2, Y: 6})
	factory := city.NewBuilding(city.KindIndustrial)
	factory.Width, factory.Height = 2, 2
	m.Build(factory, world.Coord{X: 10, Y: 6})

	p := New(m, 0).TripTo(shop.Blocks(world.Coord{X: 2, Y: 6}), factory.Blocks(world.Coord{X: 10, Y: 6}))
	if p == nil {
		t.Fatal("buildings on the same road should be connected")
	}
	// Up onto the road, eight blocks east, down into the factory.
	if p.Distance() != 10 {
		t.Errorf("expected cost 10, got %d: %v", p.Distance(), p.Nodes)
	}
	first, _ := p.First()
	last, _ := p.Last()
	if first != (world.Coord{X: 2, Y: 6}) || last != (world.Coord{X: 10, Y: 6}) {
		t.Errorf("unexpected endpoints %v -> %v", first, last)
	}
	for _, c := range p.Nodes[1 : p.Len()-1] {
		if !m.IsDrivable(c) {
			t.Errorf("interior node %v is off-road", c)
		}
	}
}

func TestNoRouteWithoutRoad(t *testing.T) {
	m := city.NewCityMap(10, 10, nil)
	a := city.NewBuilding(city.KindResidential)
	b := city.NewBuilding(city.KindCommercial)
	m.Build(a, world.Coord{X: 1, Y: 1})
	m.Build(b, world.Coord{X: 2, Y: 1})

	pf := New(m, 0)
	if p := pf.TripTo(a.Blocks(world.Coord{X: 1, Y: 1}), b.Blocks(world.Coord{X: 2, Y: 1})); p != nil {
		t.Errorf("adjacent buildings without a road must not connect, got %v", p.Nodes)
	}
	if pf.NearbyRoad(a.Blocks(world.Coord{X: 1, Y: 1}), 1) {
		t.Errorf("no road nearby")
	}
	m.BuildLine(city.KindRoad, world.Coord{X: 0, Y: 2}, world.Coord{X: 5, Y: 2})
	if !pf.NearbyRoad(a.Blocks(world.Coord{X: 1, Y: 1}), 1) {
		t.Errorf("road directly below should count as nearby")
	}
	if p := pf.TripTo(a.Blocks(world.Coord{X: 1, Y: 1}), b.Blocks(world.Coord{X: 2, Y: 1})); p == nil || p.Distance() != 3 {
		t.Errorf("expected a 3-step trip via the road, got %v", p)
	}
}

func TestOverlappingSetsAreFree(t *testing.T) {
	m := city.NewCityMap(5, 5, nil)
	c := world.Coord{X: 2, Y: 2}
	p := New(m, 0).TripTo([]world.Coord{c}, []world.Coord{{X: 0, Y: 0}, c})
	if p == nil || p.Distance() != 0 || p.Len() != 1 {
		t.Errorf("overlap should be a zero-cost single node path, got %v", p)
	}
}

func TestExpansionLimit(t *testing.T) {
	m := city.NewCityMap(100, 1, nil)
	m.BuildLine(city.KindRoad, world.Coord{X: 0, Y: 0}, world.Coord{X: 99, Y: 0})
	pf := New(m, 10)
	if p := pf.TripTo([]world.Coord{{X: 0, Y: 0}}, []world.Coord{{X: 99, Y: 0}}); p != nil {
		t.Errorf("search should give up after 10 expansions")
	}
}
