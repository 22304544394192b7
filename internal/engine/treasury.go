// Taxes, liquidation of failed businesses, and the national market's
// daily reset.
package engine

import (
	"log/slog"
	"math"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
)

// collectTaxes takes a flat share of every zoned building's money, at least
// the minimum tax. Balances may go negative. It returns the total collected.
func (s *Simulation) collectTaxes() int {
	rate := s.Config.Economy.TaxRate
	minTax := s.Config.Economy.MinTax
	total := 0
	for _, loc := range s.City.Locations() {
		b := loc.Building
		if b.Zone() == city.ZoneNone {
			continue
		}
		money := b.Balance()
		tax := max(int(math.Floor(float64(money)*rate)), minTax)
		b.Inventory.Set(economy.Money, money-tax)
		total += tax
	}
	return total
}

// bankrupt reports whether a zoned building should be liquidated.
func bankrupt(b *city.Building) bool {
	if b.Zone() == city.ZoneNone {
		return false
	}
	return b.Balance() <= 0 || b.Goodwill() < goodwillFloor
}

// liquidate bulldozes a random share of bankrupt buildings, voiding their
// contracts on both sides, and records the removals per zone for the
// constructor. It returns how many buildings were removed.
func (s *Simulation) liquidate() int {
	var failed []city.Location
	for _, loc := range s.City.Locations() {
		if bankrupt(loc.Building) {
			failed = append(failed, loc)
		}
	}
	s.City.ResetBulldozed()
	if len(failed) == 0 {
		return 0
	}

	eco := s.Config.Economy
	n := int(math.Floor(float64(len(failed)) * eco.LiquidationFraction))
	n = min(max(n, eco.LiquidationMin), eco.LiquidationMax, len(failed))
	s.rng.Shuffle(len(failed), func(i, j int) { failed[i], failed[j] = failed[j], failed[i] })

	removed := 0
	for _, loc := range failed[:n] {
		b := loc.Building
		if !s.City.Remove(b) {
			continue
		}
		s.City.RecordBulldozed(b.Zone(), 1)
		removed++
		slog.Debug("liquidated building", "building", b.String(), "at", loc.Coord,
			"money", b.Balance(), "goodwill", b.Goodwill())
	}
	return removed
}

// resetNation sizes the national market to the current population.
func (s *Simulation) resetNation() {
	s.City.Nation.Reset(s.Stats().Population, s.Config.Economy.NationalRate)
}
