package city

import (
	"fmt"

	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// TradeEntity is anything that can be party to a contract: a building at a
// specific coordinate, or the nation outside the city.
type TradeEntity interface {
	// Key uniquely identifies the entity; two entities with the same key are one party.
	Key() string
	Description() string
	// Building returns the underlying building, or nil for the outside.
	Building() *Building
	Coord() world.Coord
	QuantityForSale(t economy.Tradeable) int
	QuantityWanted(t economy.Tradeable) int
	Contracts() []*Contract
	// VoidContractsWith drops contracts involving other from this entity's
	// own ledger only. Use Void to remove them from both sides.
	VoidContractsWith(other TradeEntity) int

	ledger() *ContractLedger
	forSaleLocked(t economy.Tradeable) int
	wantedLocked(t economy.Tradeable) int
}

// CityTradeEntity is a building standing at a coordinate.
type CityTradeEntity struct {
	At world.Coord
	B  *Building
}

// Entity wraps a building at its anchor coordinate.
func Entity(at world.Coord, b *Building) CityTradeEntity {
	return CityTradeEntity{At: at, B: b}
}

func (e CityTradeEntity) Key() string            { return e.B.ID }
func (e CityTradeEntity) Building() *Building    { return e.B }
func (e CityTradeEntity) Coord() world.Coord     { return e.At }
func (e CityTradeEntity) Contracts() []*Contract { return e.B.Ledger.Snapshot() }

func (e CityTradeEntity) Description() string {
	return fmt.Sprintf("%s at %s", e.B.Description, e.At)
}

// Blocks returns the building's footprint.
func (e CityTradeEntity) Blocks() []world.Coord { return e.B.Blocks(e.At) }

func (e CityTradeEntity) QuantityForSale(t economy.Tradeable) int { return e.B.QuantityForSale(t) }
func (e CityTradeEntity) QuantityWanted(t economy.Tradeable) int  { return e.B.QuantityWanted(t) }

func (e CityTradeEntity) VoidContractsWith(other TradeEntity) int {
	e.B.Ledger.mu.Lock()
	defer e.B.Ledger.mu.Unlock()
	return len(e.B.Ledger.removeWithLocked(other.Key()))
}

func (e CityTradeEntity) ledger() *ContractLedger               { return &e.B.Ledger }
func (e CityTradeEntity) forSaleLocked(t economy.Tradeable) int { return e.B.forSaleLocked(t) }
func (e CityTradeEntity) wantedLocked(t economy.Tradeable) int  { return e.B.wantedLocked(t) }
