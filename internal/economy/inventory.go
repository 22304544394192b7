package economy

import (
	"fmt"
	"strings"
	"sync"
)

// Inventory is a building's stock of each tradeable. It is safe for concurrent use.
type Inventory struct {
	mu    sync.Mutex
	items map[Tradeable]int
}

// NewInventory returns an inventory seeded with the given quantities.
func NewInventory(seed map[Tradeable]int) *Inventory {
	inv := &Inventory{items: make(map[Tradeable]int, len(seed))}
	for t, q := range seed {
		inv.items[t] = q
	}
	return inv
}

func (inv *Inventory) ensure() {
	if inv.items == nil {
		inv.items = make(map[Tradeable]int)
	}
}

// Quantity returns the amount on hand.
func (inv *Inventory) Quantity(t Tradeable) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.items[t]
}

// Has reports whether at least quantity units are on hand.
func (inv *Inventory) Has(t Tradeable, quantity int) bool {
	return inv.Quantity(t) >= quantity
}

// Add increases stock and returns the new amount.
func (inv *Inventory) Add(t Tradeable, quantity int) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.ensure()
	inv.items[t] += quantity
	return inv.items[t]
}

// Subtract removes quantity units when enough stock exists and returns the
// amount removed. With insufficient stock nothing changes and it returns 0.
func (inv *Inventory) Subtract(t Tradeable, quantity int) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if quantity <= 0 || inv.items[t] < quantity {
		return 0
	}
	inv.items[t] -= quantity
	return quantity
}

// Set forces the stock to quantity, which may be negative (tax collection
// relies on this), and returns the previous amount.
func (inv *Inventory) Set(t Tradeable, quantity int) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.ensure()
	prev := inv.items[t]
	inv.items[t] = quantity
	return prev
}

// Snapshot returns a copy of all stock.
func (inv *Inventory) Snapshot() map[Tradeable]int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make(map[Tradeable]int, len(inv.items))
	for t, q := range inv.items {
		out[t] = q
	}
	return out
}

// Summary renders the inventory one tradeable per line, in declaration order.
func (inv *Inventory) Summary() string {
	snap := inv.Snapshot()
	var b strings.Builder
	for _, t := range AllTradeables {
		if q, ok := snap[t]; ok {
			fmt.Fprintf(&b, "Has %d %s\n", q, t)
		}
	}
	return b.String()
}
