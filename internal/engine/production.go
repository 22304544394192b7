// Manufacturing, shipping, and household consumption: the parts of the
// hourly step that move inventory along signed contracts.
package engine

import (
	"log/slog"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
)

// goodsPerWorker is how many wholesale goods one contracted worker can turn
// into retail goods per cycle.
const goodsPerWorker = 10

// goodwillFloor is the goodwill below which a building is considered failed.
const goodwillFloor = -99

// manufacture converts contracted labor into products.
func (s *Simulation) manufacture() {
	for _, loc := range s.City.Locations() {
		switch loc.Building.Kind {
		case city.KindIndustrial:
			manufactureIndustrial(loc.Building)
		case city.KindCommercial:
			manufactureCommercial(loc.Building)
		}
	}
}

// manufactureIndustrial makes one unit of each product per contracted
// worker, keeping at most two cycles of output in stock.
func manufactureIndustrial(b *city.Building) {
	labor := b.TotalBeingBought(economy.Labor)
	if labor <= 0 {
		return
	}
	for _, t := range b.ProductList() {
		room := 2*b.Produces[t] - b.Inventory.Quantity(t)
		if room > 0 {
			b.Inventory.Add(t, min(labor, room))
		}
	}
	payWorkers(b)
}

// manufactureCommercial turns wholesale goods on hand into retail goods.
func manufactureCommercial(b *city.Building) {
	capacity := b.TotalBeingBought(economy.Labor) * goodsPerWorker
	wholesale := b.Inventory.Quantity(economy.WholesaleGoods)
	if capacity <= 0 || wholesale <= 0 {
		return
	}
	limit := 2*b.Consumes[economy.WholesaleGoods] - b.Inventory.Quantity(economy.Goods)
	if n := min(capacity, wholesale, limit); n > 0 {
		b.Inventory.Subtract(economy.WholesaleGoods, n)
		b.Inventory.Add(economy.Goods, n)
	}
	payWorkers(b)
}

// payWorkers pays every labor contract the building is buying. A building
// that cannot cover a contract is wiped out to zero money.
func payWorkers(b *city.Building) {
	for _, c := range b.Ledger.Snapshot() {
		if c.ToKey() != b.ID || c.Tradeable != economy.Labor {
			continue
		}
		if b.Inventory.Subtract(economy.Money, c.Quantity) == 0 {
			b.Inventory.Set(economy.Money, 0)
			continue
		}
		if worker := c.From.Building(); worker != nil {
			worker.Inventory.Add(economy.Money, c.Quantity)
		}
	}
}

// ship has every buyer pull what its contracts promise. A seller that cannot
// deliver loses the contract. Sellers also push exports to the nation.
// It returns the number of contracts voided.
func (s *Simulation) ship() int {
	voided := 0
	for _, loc := range s.City.Locations() {
		b := loc.Building
		for _, c := range b.Ledger.Snapshot() {
			switch {
			case c.ToKey() == b.ID && c.Tradeable.Shippable():
				if !s.deliver(c, b) && city.VoidContract(c) {
					voided++
					slog.Debug("voided undeliverable contract", "contract", c.String())
				}
			case c.FromKey() == b.ID && c.ToKey() == city.OutsideKey:
				s.export(c, b)
			}
		}
	}
	return voided
}

// deliver moves one contract's quantity to buyer and settles payment.
func (s *Simulation) deliver(c *city.Contract, buyer *city.Building) bool {
	var got int
	if seller := c.From.Building(); seller != nil {
		got = seller.Inventory.Subtract(c.Tradeable, c.Quantity)
		if got == 0 {
			return false
		}
		seller.Inventory.Add(economy.Money, economy.PriceFor(c.Tradeable, got))
	} else {
		got = s.City.Nation.Import(c.Tradeable, c.Quantity)
		if got == 0 {
			return false
		}
	}
	buyer.Inventory.Add(c.Tradeable, got)
	buyer.Inventory.Add(economy.Money, -economy.PriceFor(c.Tradeable, got))
	return true
}

// export sends a contract's quantity out of the city for money. Labor is
// paid without anything being shipped.
func (s *Simulation) export(c *city.Contract, seller *city.Building) {
	nation := s.City.Nation
	if c.Tradeable == economy.Labor {
		seller.Inventory.Add(economy.Money, c.Quantity)
		nation.Export(economy.Labor, c.Quantity)
		return
	}
	if !c.Tradeable.Shippable() {
		return
	}
	got := seller.Inventory.Subtract(c.Tradeable, c.Quantity)
	if got == 0 {
		return
	}
	seller.Inventory.Add(economy.Money, economy.PriceFor(c.Tradeable, got))
	nation.Export(c.Tradeable, got)
}

// consumeGoods has every home eat its goods. Homes that go short lose goodwill.
func (s *Simulation) consumeGoods() {
	for _, loc := range s.City.Locations() {
		b := loc.Building
		need := b.Consumes[economy.Goods]
		if b.Kind != city.KindResidential || need <= 0 {
			continue
		}
		if b.Inventory.Subtract(economy.Goods, need) == need {
			if b.Goodwill() < 0 {
				b.AdjustGoodwill(1)
			}
			continue
		}
		b.Inventory.Set(economy.Goods, 0)
		b.AdjustGoodwill(-1)
	}
}
