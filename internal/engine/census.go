// Census, traffic, and contract upkeep.
package engine

import (
	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// takeCensus recounts population, money, and city-wide supply and demand.
// Population is the labor homes have contracted out.
func (s *Simulation) takeCensus() {
	st := Stats{
		Supply: make(map[economy.Tradeable]int),
		Demand: make(map[economy.Tradeable]int),
	}
	for _, loc := range s.City.Locations() {
		b := loc.Building
		if b.Kind.Drivable() {
			continue
		}
		st.Buildings++
		if b.Kind == city.KindResidential {
			st.Population += b.TotalBeingSold(economy.Labor)
		}
		if b.Powered() {
			st.Powered++
		}
		st.TotalMoney += b.Balance()
		for t, q := range b.Produces {
			st.Supply[t] += q
		}
		for t, q := range b.Consumes {
			st.Demand[t] += q
		}
	}
	st.Contracts = len(s.allContracts())

	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
}

// allContracts returns every distinct contract in the city, including
// those with the nation.
func (s *Simulation) allContracts() []*city.Contract {
	seen := make(map[*city.Contract]bool)
	var out []*city.Contract
	add := func(cs []*city.Contract) {
		for _, c := range cs {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	for _, loc := range s.City.Locations() {
		add(loc.Building.Ledger.Snapshot())
	}
	add(s.City.Nation.Ledger.Snapshot())
	return out
}

// updateTraffic rebuilds the traffic layer: every block on a contract's
// route carries that contract's quantity.
func (s *Simulation) updateTraffic() {
	values := make(map[world.Coord]float64)
	for _, c := range s.allContracts() {
		for _, blk := range c.Path.Blocks() {
			values[blk] += float64(c.Quantity)
		}
	}
	s.City.Traffic.Replace(values)
}

// sweepContracts voids contracts whose city counterparty no longer stands
// where it signed. It returns how many were dropped.
func (s *Simulation) sweepContracts() int {
	voided := 0
	for _, c := range s.allContracts() {
		for _, e := range [...]city.TradeEntity{c.From, c.To} {
			b := e.Building()
			if b == nil || s.City.Stands(b, e.Coord()) {
				continue
			}
			if city.VoidContract(c) {
				voided++
			}
			break
		}
	}
	return voided
}
