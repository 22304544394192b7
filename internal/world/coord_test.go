package world

import "testing"

func TestNeighborsExcludesCenter(t *testing.T) {
	c := Coord{X: 5, Y: 5}
	got := c.Neighbors(1)
	if len(got) != 8 {
		t.Fatalf("expected 8 neighbors at radius 1, got %d", len(got))
	}
	for _, n := range got {
		if n == c {
			t.Fatalf("neighbors should not contain the center")
		}
	}
	if n := len(c.Neighbors(3)); n != 48 {
		t.Errorf("expected 48 neighbors at radius 3, got %d", n)
	}
}

func TestNeighbors4(t *testing.T) {
	c := Coord{X: 0, Y: 0}
	if n := len(c.Neighbors4(1)); n != 4 {
		t.Errorf("expected 4 neighbors at radius 1, got %d", n)
	}
	if n := len(c.Neighbors4(2)); n != 12 {
		t.Errorf("expected 12 neighbors at radius 2, got %d", n)
	}
	for _, n := range c.Neighbors4(3) {
		if Manhattan(c, n) > 3 {
			t.Errorf("%v is outside manhattan radius 3", n)
		}
	}
}

func TestCircle(t *testing.T) {
	c := Coord{X: 2, Y: 2}
	if n := len(c.Circle(0)); n != 1 {
		t.Errorf("radius 0 circle should be the center only, got %d", n)
	}
	if n := len(c.Circle(1)); n != 5 {
		t.Errorf("radius 1 circle should have 5 blocks, got %d", n)
	}
	for _, p := range c.Circle(4) {
		if c.DistanceTo(p) > 4 {
			t.Errorf("%v is outside the circle", p)
		}
	}
}

func TestDistances(t *testing.T) {
	a := Coord{X: 0, Y: 0}
	b := Coord{X: 3, Y: 4}
	if d := a.DistanceTo(b); d != 5 {
		t.Errorf("euclidean distance = %v, want 5", d)
	}
	if d := Manhattan(a, b); d != 7 {
		t.Errorf("manhattan distance = %d, want 7", d)
	}
	if d := MinManhattan([]Coord{a, {X: 3, Y: 3}}, []Coord{b}); d != 1 {
		t.Errorf("min manhattan = %d, want 1", d)
	}
	if d := MinManhattan(nil, []Coord{b}); d != -1 {
		t.Errorf("min manhattan of empty set = %d, want -1", d)
	}
}

func TestFootprintAndRect(t *testing.T) {
	blocks := Footprint(Coord{X: 1, Y: 1}, 2, 3)
	if len(blocks) != 6 {
		t.Fatalf("expected 6 blocks, got %d", len(blocks))
	}
	if blocks[0] != (Coord{X: 1, Y: 1}) || blocks[5] != (Coord{X: 2, Y: 3}) {
		t.Errorf("unexpected footprint %v", blocks)
	}

	count := 0
	Rect(Coord{X: 3, Y: 3}, Coord{X: 1, Y: 2}, func(Coord) { count++ })
	if count != 6 {
		t.Errorf("reversed rect visited %d blocks, want 6", count)
	}
}

func TestPathConcatDropsJoint(t *testing.T) {
	a := NewPath([]Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}})
	b := NewPath([]Coord{{X: 2, Y: 0}, {X: 2, Y: 1}})
	joined := a.Concat(b)
	if joined.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d: %v", joined.Len(), joined.Nodes)
	}
	if joined.Distance() != 3 {
		t.Errorf("expected cost 3, got %d", joined.Distance())
	}
	if last, _ := joined.Last(); last != (Coord{X: 2, Y: 1}) {
		t.Errorf("unexpected last node %v", last)
	}
	if a.Concat(nil) != a {
		t.Errorf("concat with nil should return the receiver")
	}
	var none *Path
	if none.Blocks() != nil || none.Len() != 0 {
		t.Errorf("nil path should have no blocks")
	}
}

func TestGenerateTerrainDeterministic(t *testing.T) {
	cfg := GenConfig{Width: 16, Height: 16, Seed: 7, WaterLine: 0.3}
	a := GenerateTerrain(cfg)
	b := GenerateTerrain(cfg)
	if len(a) != 256 {
		t.Fatalf("expected 256 tiles, got %d", len(a))
	}
	for c, tile := range a {
		if b[c] != tile {
			t.Fatalf("tile %v differs between runs", c)
		}
	}
	counts := TileCounts(FlatGround(4, 4))
	if counts[TileGround] != 16 || counts[TileWater] != 0 {
		t.Errorf("flat ground counts = %v", counts)
	}
}
