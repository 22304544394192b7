package world

// Path is an ordered route of grid nodes with a cumulative cost.
// A nil *Path means no route exists.
type Path struct {
	Nodes []Coord `json:"nodes"`
	Cost  int     `json:"cost"`
}

// NewPath builds a path whose cost is one per step between consecutive nodes.
func NewPath(nodes []Coord) *Path {
	cost := 0
	if len(nodes) > 1 {
		cost = len(nodes) - 1
	}
	return &Path{Nodes: nodes, Cost: cost}
}

// Distance returns the path cost. Costs are additive, so shorter is nearer.
func (p *Path) Distance() int {
	if p == nil {
		return 0
	}
	return p.Cost
}

// Len returns the number of nodes.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Nodes)
}

// Blocks returns a copy of the visited coordinates, start first.
func (p *Path) Blocks() []Coord {
	if p == nil {
		return nil
	}
	out := make([]Coord, len(p.Nodes))
	copy(out, p.Nodes)
	return out
}

// First returns the starting node.
func (p *Path) First() (Coord, bool) {
	if p.Len() == 0 {
		return Coord{}, false
	}
	return p.Nodes[0], true
}

// Last returns the final node.
func (p *Path) Last() (Coord, bool) {
	if p.Len() == 0 {
		return Coord{}, false
	}
	return p.Nodes[len(p.Nodes)-1], true
}

// Concat appends other to p. When other starts where p ends, the shared joint
// node appears once. Concatenating with nil returns p unchanged.
func (p *Path) Concat(other *Path) *Path {
	if other.Len() == 0 {
		return p
	}
	if p.Len() == 0 {
		return other
	}
	nodes := make([]Coord, 0, len(p.Nodes)+len(other.Nodes))
	nodes = append(nodes, p.Nodes...)
	rest := other.Nodes
	cost := p.Cost + other.Cost
	if last, _ := p.Last(); rest[0] == last {
		rest = rest[1:]
	} else {
		// Joining two disjoint routes costs the hop between them.
		first, _ := other.First()
		cost += Manhattan(last, first)
	}
	nodes = append(nodes, rest...)
	return &Path{Nodes: nodes, Cost: cost}
}
