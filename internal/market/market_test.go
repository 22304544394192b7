package market

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/pathfinding"
	"github.com/talgya/gridcity/internal/world"
)

// newStreet returns a 30x10 map with an interior road along y=5 that does
// not reach the map edge.
func newStreet() *city.CityMap {
	m := city.NewCityMap(30, 10, nil)
	m.BuildLine(city.KindRoad, world.Coord{X: 1, Y: 5}, world.Coord{X: 28, Y: 5})
	return m
}

func newTestFulfiller(m *city.CityMap, opts Options) *Fulfiller {
	pf := pathfinding.New(m, 0)
	return NewFulfiller(m, NewFinder(m, pf, 0, 0), entropy.New(1), opts)
}

func place(t *testing.T, m *city.CityMap, b *city.Building, x, y int) city.CityTradeEntity {
	t.Helper()
	at := world.Coord{X: x, Y: y}
	if err := m.Build(b, at); err != nil {
		t.Fatal(err)
	}
	return city.Entity(at, b)
}

func home(consumesGoods int) *city.Building {
	b := city.NewBuilding(city.KindResidential)
	b.Consumes[economy.Goods] = consumesGoods
	return b
}

func producer(kind city.Kind, t economy.Tradeable, q int) *city.Building {
	b := city.NewBuilding(kind)
	b.Produces[t] = q
	return b
}

func TestUnsuppliedDemandPersists(t *testing.T) {
	m := newStreet()
	shop := city.NewBuilding(city.KindCommercial)
	shop.Consumes[economy.Goods] = 2
	buyers := []struct {
		name   string
		e      city.CityTradeEntity
		wanted int
	}{
		{"home", place(t, m, home(2), 5, 6), 3}, // floor(2 * 1.5)
		{"shop", place(t, m, shop, 12, 6), 2},
	}
	for _, b := range buyers {
		if got := b.e.QuantityWanted(economy.Goods); got != b.wanted {
			t.Fatalf("%s wants %d goods before matching, want %d", b.name, got, b.wanted)
		}
	}

	res := newTestFulfiller(m, Options{}).SignContracts(context.Background())
	if res.Signed != 0 {
		t.Errorf("nothing to buy from, yet %d contracts signed", res.Signed)
	}
	for _, b := range buyers {
		if got := b.e.QuantityWanted(economy.Goods); got != b.wanted {
			t.Errorf("%s: wanted goods changed from %d to %d", b.name, b.wanted, got)
		}
		if b.e.B.ConsumesQuantity(economy.Goods) != 2 {
			t.Errorf("%s: consumption target must be untouched", b.name)
		}
	}
	if res.Pending != 2 || res.TimedOut {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestNearerBuyerServedFirst(t *testing.T) {
	m := newStreet()
	factory := place(t, m, producer(city.KindIndustrial, economy.Goods, 10), 2, 6)
	near := place(t, m, home(3), 5, 6)
	far := place(t, m, home(3), 20, 6)

	f := newTestFulfiller(m, Options{})
	f.handleProduces(context.Background(), factory, economy.Goods)

	contracts := factory.Contracts()
	if len(contracts) != 2 {
		t.Fatalf("expected one contract per buyer, got %d", len(contracts))
	}
	if contracts[0].ToKey() != near.Key() || contracts[1].ToKey() != far.Key() {
		t.Errorf("nearer home should be served first")
	}
	for _, c := range contracts {
		if c.Quantity != 3 {
			t.Errorf("a single buyer should get at most a third of output, got %d", c.Quantity)
		}
	}
}

func TestFullPassNeverOversells(t *testing.T) {
	m := newStreet()
	factory := place(t, m, producer(city.KindIndustrial, economy.Goods, 10), 2, 6)
	near := place(t, m, home(3), 5, 6)
	far := place(t, m, home(3), 20, 6)

	res := newTestFulfiller(m, Options{}).SignContracts(context.Background())
	if res.Signed == 0 {
		t.Fatal("expected contracts")
	}
	if sold := factory.B.TotalBeingSold(economy.Goods); sold > 10 {
		t.Errorf("factory sold %d goods, produces 10", sold)
	}
	if got := near.QuantityWanted(economy.Goods); got != 0 {
		t.Errorf("near home still wants %d", got)
	}
	if got := far.QuantityWanted(economy.Goods); got != 0 {
		t.Errorf("far home still wants %d", got)
	}
	assertLedgerInvariants(t, m)
}

func TestPartialContractsAccumulate(t *testing.T) {
	m := newStreet()
	shop := city.NewBuilding(city.KindCommercial)
	shop.Consumes[economy.WholesaleGoods] = 5
	buyer := place(t, m, shop, 10, 6)
	small := place(t, m, producer(city.KindIndustrial, economy.WholesaleGoods, 2), 11, 6)
	big := place(t, m, producer(city.KindIndustrial, economy.WholesaleGoods, 3), 20, 6)

	f := newTestFulfiller(m, Options{})
	f.handleConsumes(context.Background(), buyer, economy.WholesaleGoods)

	if got := buyer.QuantityWanted(economy.WholesaleGoods); got != 0 {
		t.Fatalf("shop should be fully supplied, still wants %d", got)
	}
	if small.QuantityForSale(economy.WholesaleGoods) != 0 || big.QuantityForSale(economy.WholesaleGoods) != 0 {
		t.Errorf("both sellers should be used up")
	}
	if n := len(buyer.Contracts()); n != 2 {
		t.Errorf("expected two partial contracts, got %d", n)
	}
	for _, c := range buyer.Contracts() {
		if c.Path == nil || c.Path.Len() == 0 {
			t.Errorf("contract without a route: %v", c)
		}
	}
}

func TestOutsideFallback(t *testing.T) {
	m := city.NewCityMap(20, 10, nil)
	m.BuildLine(city.KindRoad, world.Coord{X: 0, Y: 5}, world.Coord{X: 19, Y: 5})
	m.Nation.Reset(100, city.DefaultNationalRate)
	h := place(t, m, home(2), 8, 6)

	f := newTestFulfiller(m, Options{})
	f.handleConsumes(context.Background(), h, economy.Goods)

	contracts := h.Contracts()
	if len(contracts) != 1 {
		t.Fatalf("expected one import contract, got %d", len(contracts))
	}
	c := contracts[0]
	if c.FromKey() != city.OutsideKey || c.Quantity != 3 {
		t.Errorf("expected 3 goods from outside, got %v", c)
	}
	if exit, _ := c.Path.Last(); exit.X != 0 && exit.X != 19 {
		t.Errorf("import route should end at the map edge, ends at %v", exit)
	}
	if n := len(m.Nation.Ledger.Snapshot()); n != 1 {
		t.Errorf("nation should hold the contract too, has %d", n)
	}
}

func TestTinyTimeoutKeepsInvariants(t *testing.T) {
	m := city.NewCityMap(60, 60, nil)
	for y := 2; y < 60; y += 4 {
		m.BuildLine(city.KindRoad, world.Coord{X: 1, Y: y}, world.Coord{X: 58, Y: y})
	}
	for y := 3; y < 60; y += 4 {
		for x := 1; x < 59; x++ {
			var b *city.Building
			switch {
			case x%10 == 0:
				b = producer(city.KindIndustrial, economy.Goods, 12)
				b.Consumes[economy.Labor] = 4
			case x%10 == 5:
				b = city.NewBuilding(city.KindCommercial)
				b.Consumes[economy.Goods] = 6
				b.Consumes[economy.Labor] = 2
			default:
				b = home(3)
				b.Produces[economy.Labor] = 2
			}
			place(t, m, b, x, y)
		}
	}

	f := newTestFulfiller(m, Options{Timeout: time.Millisecond, Workers: 4})
	res := f.SignContracts(context.Background())
	if !res.TimedOut && res.Pending > 0 && res.Passes == 0 {
		t.Errorf("run neither progressed nor timed out: %+v", res)
	}
	assertLedgerInvariants(t, m)
}

func TestTerminateRandomContract(t *testing.T) {
	m := newStreet()
	factory := place(t, m, producer(city.KindIndustrial, economy.Goods, 10), 2, 6)
	h := place(t, m, home(3), 5, 6)
	if _, err := city.Sign(h, factory, economy.Goods, 2, nil); err != nil {
		t.Fatal(err)
	}
	f := newTestFulfiller(m, Options{})
	if c := f.TerminateRandomContract(2); c != nil {
		t.Errorf("below threshold nothing should be voided")
	}
	if c := f.TerminateRandomContract(1); c == nil {
		t.Fatal("expected a contract voided")
	}
	if factory.B.HasAnyContracts() || h.B.HasAnyContracts() {
		t.Errorf("voided contract must leave both sides")
	}
}

// assertLedgerInvariants checks that nobody oversells or overbuys and that
// every contract is recorded by both parties.
func assertLedgerInvariants(t *testing.T, m *city.CityMap) {
	t.Helper()
	for _, loc := range m.Locations() {
		b := loc.Building
		for _, tr := range economy.AllTradeables {
			if sold := b.TotalBeingSold(tr); sold > b.Produces[tr] {
				t.Errorf("%s sells %d %s but produces %d", b, sold, tr, b.Produces[tr])
			}
			limit := int(math.Floor(float64(b.Consumes[tr]) * b.DemandBuffer))
			if bought := b.TotalBeingBought(tr); bought > limit {
				t.Errorf("%s buys %d %s, limit %d", b, bought, tr, limit)
			}
		}
		for _, c := range b.Ledger.Snapshot() {
			other := c.Counterparty(b.ID)
			found := false
			for _, oc := range other.Contracts() {
				if oc == c {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("contract %v missing from counterparty ledger", c)
			}
		}
	}
}
