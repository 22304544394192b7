package city

import (
	"math"
	"sync"

	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// OutsideKey is the contract key shared by every outside connection.
const OutsideKey = "outside"

// NationBalance is the notional money the nation always has.
const NationBalance = 10000

// DefaultNationalRate scales city population into daily national supply and demand.
const DefaultNationalRate = 0.05

// Nation is the market beyond the city limits. All outside connections share
// its single contract ledger and its supply and demand counters.
type Nation struct {
	Ledger ContractLedger

	mu       sync.Mutex
	provides map[economy.Tradeable]int
	wants    map[economy.Tradeable]int
	exported map[economy.Tradeable]int
	imported map[economy.Tradeable]int
}

// NewNation returns a nation with empty counters.
func NewNation() *Nation {
	return &Nation{
		provides: make(map[economy.Tradeable]int),
		wants:    make(map[economy.Tradeable]int),
		exported: make(map[economy.Tradeable]int),
		imported: make(map[economy.Tradeable]int),
	}
}

// Reset sets the daily supply and demand of every tradeable to
// floor(population * rate) and clears the trade tallies.
func (n *Nation) Reset(population int, rate float64) {
	q := int(math.Floor(float64(population) * rate))
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range economy.AllTradeables {
		n.provides[t] = q
		n.wants[t] = q
	}
	clear(n.exported)
	clear(n.imported)
}

// Provides returns the remaining daily supply counter for t.
func (n *Nation) Provides(t economy.Tradeable) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.provides[t]
}

// Wants returns the daily demand counter for t.
func (n *Nation) Wants(t economy.Tradeable) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.wants[t]
}

// Import draws quantity from the supply counter. It returns the amount
// delivered, which is 0 when the nation has run out for the day.
func (n *Nation) Import(t economy.Tradeable, quantity int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if quantity <= 0 || n.provides[t] < quantity {
		return 0
	}
	n.provides[t] -= quantity
	n.imported[t] += quantity
	return quantity
}

// Export records goods shipped out of the city.
func (n *Nation) Export(t economy.Tradeable, quantity int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.exported[t] += quantity
}

// TradeTotals returns today's exported and imported quantities.
func (n *Nation) TradeTotals() (exported, imported map[economy.Tradeable]int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	exported = make(map[economy.Tradeable]int, len(n.exported))
	imported = make(map[economy.Tradeable]int, len(n.imported))
	for t, q := range n.exported {
		exported[t] = q
	}
	for t, q := range n.imported {
		imported[t] = q
	}
	return exported, imported
}

func (n *Nation) forSaleLocked(t economy.Tradeable) int {
	n.mu.Lock()
	p := n.provides[t]
	n.mu.Unlock()
	return p - n.Ledger.outgoingLocked(OutsideKey, t)
}

func (n *Nation) wantedLocked(t economy.Tradeable) int {
	n.mu.Lock()
	w := n.wants[t]
	n.mu.Unlock()
	return w - n.Ledger.incomingLocked(OutsideKey, t)
}

// Entity returns the outside trade entity seen through the connection at c.
func (n *Nation) Entity(c world.Coord) OutsideTradeEntity {
	return OutsideTradeEntity{nation: n, at: c}
}

// OutsideTradeEntity is a view of the nation through one outside connection.
type OutsideTradeEntity struct {
	nation *Nation
	at     world.Coord
}

func (e OutsideTradeEntity) Key() string            { return OutsideKey }
func (e OutsideTradeEntity) Description() string    { return "Outside the city" }
func (e OutsideTradeEntity) Building() *Building    { return nil }
func (e OutsideTradeEntity) Coord() world.Coord     { return e.at }
func (e OutsideTradeEntity) Contracts() []*Contract { return e.nation.Ledger.Snapshot() }

// Nation returns the shared national market behind this connection.
func (e OutsideTradeEntity) Nation() *Nation { return e.nation }

func (e OutsideTradeEntity) QuantityForSale(t economy.Tradeable) int {
	e.nation.Ledger.mu.Lock()
	defer e.nation.Ledger.mu.Unlock()
	return e.nation.forSaleLocked(t)
}

func (e OutsideTradeEntity) QuantityWanted(t economy.Tradeable) int {
	e.nation.Ledger.mu.Lock()
	defer e.nation.Ledger.mu.Unlock()
	return e.nation.wantedLocked(t)
}

func (e OutsideTradeEntity) VoidContractsWith(other TradeEntity) int {
	e.nation.Ledger.mu.Lock()
	defer e.nation.Ledger.mu.Unlock()
	return len(e.nation.Ledger.removeWithLocked(other.Key()))
}

func (e OutsideTradeEntity) ledger() *ContractLedger               { return &e.nation.Ledger }
func (e OutsideTradeEntity) forSaleLocked(t economy.Tradeable) int { return e.nation.forSaleLocked(t) }
func (e OutsideTradeEntity) wantedLocked(t economy.Tradeable) int  { return e.nation.wantedLocked(t) }
