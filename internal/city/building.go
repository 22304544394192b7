// Package city holds the simulation's shared state: buildings, the contract
// ledger between them, the national market outside the city, and the city
// map with its building, zone, ground, and scalar layers.
package city

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// Kind is the building variant.
type Kind uint8

const (
	KindRoad Kind = iota
	KindPowerLine
	KindPowerPlant
	KindResidential
	KindCommercial
	KindIndustrial
	KindCivic
	KindFireStation
	KindPoliceStation
	KindTrainStation
	KindRailDepot
	KindRailroad
	KindRailroadCrossing
)

var kindNames = [...]string{
	"Road", "PowerLine", "PowerPlant", "Residential", "Commercial", "Industrial",
	"Civic", "FireStation", "PoliceStation", "TrainStation", "RailDepot",
	"Railroad", "RailroadCrossing",
}

// String returns the variant name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a variant name (case-insensitive) to its Kind.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown building kind %q", s)
}

// Drivable reports whether vehicles can travel over this kind.
func (k Kind) Drivable() bool {
	return k == KindRoad || k == KindRailroad || k == KindRailroadCrossing
}

// Zone is a zoning designation.
type Zone uint8

const (
	ZoneNone Zone = iota
	ZoneResidential
	ZoneCommercial
	ZoneIndustrial
)

// Zones lists the buildable zone designations.
var Zones = [...]Zone{ZoneResidential, ZoneCommercial, ZoneIndustrial}

// String returns the zone name.
func (z Zone) String() string {
	switch z {
	case ZoneResidential:
		return "residential"
	case ZoneCommercial:
		return "commercial"
	case ZoneIndustrial:
		return "industrial"
	}
	return "none"
}

// ParseZone maps a zone name to its Zone.
func ParseZone(s string) (Zone, error) {
	for _, z := range Zones {
		if strings.EqualFold(z.String(), s) {
			return z, nil
		}
	}
	return ZoneNone, fmt.Errorf("unknown zone %q", s)
}

// Power plant varieties and their generation capacity in blocks.
const (
	VarietyCoal    = "coal"
	VarietyNuclear = "nuclear"
)

var plantCapacity = map[string]int{
	VarietyCoal:    2000,
	VarietyNuclear: 5000,
}

// DefaultMoney is what every new building starts with.
const DefaultMoney = 10

// DefaultResidentialBuffer lets homes contract for more goods than they
// strictly consume, keeping spares on hand.
const DefaultResidentialBuffer = 1.5

// PowerPlantInfo is the payload carried only by KindPowerPlant buildings.
type PowerPlantInfo struct {
	Capacity int `json:"capacity"` // Blocks this plant can energize
}

// Building is the simulation's core entity. Every variant shares the same
// inventory and contract ledger; variant-specific data hangs off payload fields.
type Building struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Variety     string `json:"variety,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Level       int    `json:"level"`

	Consumes map[economy.Tradeable]int `json:"consumes"`
	Produces map[economy.Tradeable]int `json:"produces"`

	// DemandBuffer scales Consumes when computing how much to contract for.
	DemandBuffer float64 `json:"demand_buffer"`

	Inventory *economy.Inventory `json:"-"`
	Ledger    ContractLedger     `json:"-"`

	Pollution float64 `json:"pollution"`
	Upkeep    int     `json:"upkeep"`

	PowerPlant *PowerPlantInfo `json:"power_plant,omitempty"`

	powered  atomic.Bool
	goodwill atomic.Int64
}

// NewBuilding creates a building of the given kind with default footprint and
// starting money. Callers fill in produces/consumes.
func NewBuilding(kind Kind) *Building {
	b := &Building{
		ID:           uuid.NewString(),
		Kind:         kind,
		Description:  kind.String(),
		Width:        1,
		Height:       1,
		Level:        1,
		Consumes:     make(map[economy.Tradeable]int),
		Produces:     make(map[economy.Tradeable]int),
		DemandBuffer: 1,
		Inventory:    economy.NewInventory(map[economy.Tradeable]int{economy.Money: DefaultMoney}),
	}
	switch kind {
	case KindResidential:
		b.DemandBuffer = DefaultResidentialBuffer
	case KindFireStation, KindPoliceStation, KindTrainStation, KindRailDepot:
		b.Width, b.Height = 3, 3
	case KindPowerPlant:
		b.Width, b.Height = 4, 4
	}
	return b
}

// NewPowerPlant creates a coal or nuclear plant. Plants need workers to run.
func NewPowerPlant(variety string) (*Building, error) {
	capacity, ok := plantCapacity[variety]
	if !ok {
		return nil, fmt.Errorf("invalid power plant variety %q", variety)
	}
	b := NewBuilding(KindPowerPlant)
	b.Variety = variety
	b.Description = strings.ToUpper(variety[:1]) + variety[1:] + " Power Plant"
	b.PowerPlant = &PowerPlantInfo{Capacity: capacity}
	b.Consumes[economy.Labor] = 10
	return b, nil
}

// String identifies the building in logs.
func (b *Building) String() string {
	name := b.Name
	if name == "" {
		name = b.Description
	}
	return fmt.Sprintf("%s(%s %s)", b.Kind, name, shortID(b.ID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Blocks returns the footprint of the building when anchored at c.
func (b *Building) Blocks(c world.Coord) []world.Coord {
	return world.Footprint(c, b.Width, b.Height)
}

// Zone returns the zone a building belongs to, or ZoneNone for civic/infrastructure.
func (b *Building) Zone() Zone {
	switch b.Kind {
	case KindResidential:
		return ZoneResidential
	case KindCommercial:
		return ZoneCommercial
	case KindIndustrial:
		return ZoneIndustrial
	}
	return ZoneNone
}

// Powered reports whether the last power update reached this building.
func (b *Building) Powered() bool { return b.powered.Load() }

// SetPowered records the result of a power update.
func (b *Building) SetPowered(v bool) { b.powered.Store(v) }

// Goodwill is a running sentiment score; large negatives are a liquidation signal.
func (b *Building) Goodwill() int64 { return b.goodwill.Load() }

// AdjustGoodwill adds delta to the goodwill score.
func (b *Building) AdjustGoodwill(delta int64) int64 { return b.goodwill.Add(delta) }

// Balance returns the money on hand.
func (b *Building) Balance() int {
	return b.Inventory.Quantity(economy.Money)
}

// ConsumesQuantity returns the per-cycle consumption target for t.
func (b *Building) ConsumesQuantity(t economy.Tradeable) int { return b.Consumes[t] }

// ProducesQuantity returns the per-cycle production target for t.
func (b *Building) ProducesQuantity(t economy.Tradeable) int { return b.Produces[t] }

// ProductList returns the produced tradeables in declaration order.
func (b *Building) ProductList() []economy.Tradeable { return sortedKeys(b.Produces) }

// ConsumedList returns the consumed tradeables in declaration order.
func (b *Building) ConsumedList() []economy.Tradeable { return sortedKeys(b.Consumes) }

func sortedKeys(m map[economy.Tradeable]int) []economy.Tradeable {
	out := make([]economy.Tradeable, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// demandTarget is Consumes[t] scaled by the demand buffer.
func (b *Building) demandTarget(t economy.Tradeable) int {
	c := b.Consumes[t]
	if b.DemandBuffer <= 0 || b.DemandBuffer == 1 {
		return c
	}
	return int(math.Floor(float64(c) * b.DemandBuffer))
}

// QuantityForSale is production minus everything already promised to buyers.
func (b *Building) QuantityForSale(t economy.Tradeable) int {
	b.Ledger.mu.Lock()
	defer b.Ledger.mu.Unlock()
	return b.forSaleLocked(t)
}

func (b *Building) forSaleLocked(t economy.Tradeable) int {
	return b.Produces[t] - b.Ledger.outgoingLocked(b.ID, t)
}

// QuantityWanted is the (buffered) consumption minus everything already
// contracted in. It can be negative; callers clamp.
func (b *Building) QuantityWanted(t economy.Tradeable) int {
	b.Ledger.mu.Lock()
	defer b.Ledger.mu.Unlock()
	return b.wantedLocked(t)
}

func (b *Building) wantedLocked(t economy.Tradeable) int {
	return b.demandTarget(t) - b.Ledger.incomingLocked(b.ID, t)
}

// TotalBeingSold sums outgoing contract quantities for t.
func (b *Building) TotalBeingSold(t economy.Tradeable) int {
	return b.Ledger.Outgoing(b.ID, t)
}

// TotalBeingBought sums incoming contract quantities for t.
func (b *Building) TotalBeingBought(t economy.Tradeable) int {
	return b.Ledger.Incoming(b.ID, t)
}

// NeedsAnyContracts reports whether any consumed tradeable still has
// residual demand. Only such buildings take part in a matching pass.
func (b *Building) NeedsAnyContracts() bool {
	b.Ledger.mu.Lock()
	defer b.Ledger.mu.Unlock()
	for t := range b.Consumes {
		if b.wantedLocked(t) > 0 {
			return true
		}
	}
	return false
}

// HasAnyContracts reports whether the building is party to any contract.
func (b *Building) HasAnyContracts() bool {
	return b.Ledger.Len() > 0
}

// SummarizeContracts renders consumption, production, and contracts for inspection.
func (b *Building) SummarizeContracts() string {
	var sb strings.Builder
	for _, t := range b.ConsumedList() {
		fmt.Fprintf(&sb, "Consumes: %d %s\n", b.Consumes[t], t)
	}
	for _, t := range b.ProductList() {
		fmt.Fprintf(&sb, "Produces: %d %s\n", b.Produces[t], t)
	}
	for _, c := range b.Ledger.Snapshot() {
		if c.toKey == b.ID {
			fmt.Fprintf(&sb, "Receiving %d %s from %s\n", c.Quantity, c.Tradeable, c.From.Description())
		}
		if c.fromKey == b.ID {
			fmt.Fprintf(&sb, "Sending %d %s to %s\n", c.Quantity, c.Tradeable, c.To.Description())
		}
	}
	return sb.String()
}
