// Package economy provides the tradeable resource kinds, per-building
// inventories, and the price table used when goods change hands.
package economy

import (
	"fmt"
	"strings"
)

// Tradeable is a kind of resource exchanged between buildings.
type Tradeable uint8

const (
	Money          Tradeable = iota // Paid for shipped goods and labor
	Goods                           // Retail goods bought by residents
	Labor                           // Workers; contracted but never shipped
	RawMaterials                    // Extracted inputs for industry
	WholesaleGoods                  // Factory output bought by commercial
)

// AllTradeables lists every tradeable in declaration order.
var AllTradeables = [...]Tradeable{Money, Goods, Labor, RawMaterials, WholesaleGoods}

var tradeableNames = [...]string{"MONEY", "GOODS", "LABOR", "RAW_MATERIALS", "WHOLESALE_GOODS"}

// String returns the canonical upper-case name.
func (t Tradeable) String() string {
	if int(t) < len(tradeableNames) {
		return tradeableNames[t]
	}
	return fmt.Sprintf("Tradeable(%d)", uint8(t))
}

// ParseTradeable accepts the canonical name, case-insensitively.
func ParseTradeable(s string) (Tradeable, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range tradeableNames {
		if n == name {
			return Tradeable(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tradeable %q", s)
}

// MarshalText implements encoding.TextMarshaler so tradeables can key JSON/YAML maps.
func (t Tradeable) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tradeable) UnmarshalText(b []byte) error {
	v, err := ParseTradeable(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Shippable reports whether the tradeable physically moves between buildings.
// Labor is contracted like anything else but workers commute instead.
func (t Tradeable) Shippable() bool {
	return t != Labor && t != Money
}

// basePrices is the money paid per unit shipped.
var basePrices = map[Tradeable]int{
	Money:          1,
	Goods:          3,
	Labor:          1,
	RawMaterials:   1,
	WholesaleGoods: 2,
}

// PriceFor returns what quantity units of t are worth.
func PriceFor(t Tradeable, quantity int) int {
	if quantity <= 0 {
		return 0
	}
	unit, ok := basePrices[t]
	if !ok {
		unit = 1
	}
	return unit * quantity
}
