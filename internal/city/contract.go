package city

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// Signing and placement errors.
var (
	ErrInvalidQuantity    = errors.New("contract quantity must be positive")
	ErrSelfContract       = errors.New("an entity cannot contract with itself")
	ErrInsufficientSupply = errors.New("seller does not have enough for sale")
	ErrInsufficientDemand = errors.New("buyer does not want that much")
)

// Contract is a standing per-cycle agreement: From sends Quantity units of
// Tradeable to To along Path. Contracts are immutable once signed; the only
// way to change one is to void it.
type Contract struct {
	ID        string            `json:"id"`
	From      TradeEntity       `json:"-"`
	To        TradeEntity       `json:"-"`
	Tradeable economy.Tradeable `json:"tradeable"`
	Quantity  int               `json:"quantity"`
	Path      *world.Path       `json:"path,omitempty"`

	fromKey string
	toKey   string
}

// FromKey identifies the seller.
func (c *Contract) FromKey() string { return c.fromKey }

// ToKey identifies the buyer.
func (c *Contract) ToKey() string { return c.toKey }

// Involves reports whether the entity with the given key is a party.
func (c *Contract) Involves(key string) bool {
	return c.fromKey == key || c.toKey == key
}

// Counterparty returns the other side of the contract from key's point of view.
func (c *Contract) Counterparty(key string) TradeEntity {
	if c.fromKey == key {
		return c.To
	}
	return c.From
}

func (c *Contract) String() string {
	return fmt.Sprintf("%s: %d %s from %s to %s", shortID(c.ID), c.Quantity, c.Tradeable,
		c.From.Description(), c.To.Description())
}

// ContractLedger is the list of contracts an entity is party to. The same
// contract value is held by both parties' ledgers.
type ContractLedger struct {
	mu        sync.Mutex
	contracts []*Contract
}

// Snapshot returns a copy of the contract list.
func (l *ContractLedger) Snapshot() []*Contract {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Contract, len(l.contracts))
	copy(out, l.contracts)
	return out
}

// Len returns the number of contracts.
func (l *ContractLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.contracts)
}

// Outgoing sums quantities of t that self is selling.
func (l *ContractLedger) Outgoing(self string, t economy.Tradeable) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outgoingLocked(self, t)
}

// Incoming sums quantities of t that self is buying.
func (l *ContractLedger) Incoming(self string, t economy.Tradeable) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.incomingLocked(self, t)
}

func (l *ContractLedger) outgoingLocked(self string, t economy.Tradeable) int {
	sum := 0
	for _, c := range l.contracts {
		if c.fromKey == self && c.Tradeable == t {
			sum += c.Quantity
		}
	}
	return sum
}

func (l *ContractLedger) incomingLocked(self string, t economy.Tradeable) int {
	sum := 0
	for _, c := range l.contracts {
		if c.toKey == self && c.Tradeable == t {
			sum += c.Quantity
		}
	}
	return sum
}

// removeWithLocked drops every contract involving key and returns them.
func (l *ContractLedger) removeWithLocked(key string) []*Contract {
	var removed []*Contract
	kept := l.contracts[:0]
	for _, c := range l.contracts {
		if c.Involves(key) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	clear(l.contracts[len(kept):])
	l.contracts = kept
	return removed
}

func (l *ContractLedger) removeLocked(target *Contract) bool {
	for i, c := range l.contracts {
		if c == target {
			l.contracts = append(l.contracts[:i], l.contracts[i+1:]...)
			return true
		}
	}
	return false
}

// lockPair locks two ledgers in a global order (by entity key) so concurrent
// signers never deadlock. Entities sharing one ledger lock it once.
func lockPair(a, b TradeEntity) func() {
	la, lb := a.ledger(), b.ledger()
	if la == lb {
		la.mu.Lock()
		return la.mu.Unlock
	}
	if b.Key() < a.Key() {
		la, lb = lb, la
	}
	la.mu.Lock()
	lb.mu.Lock()
	return func() {
		lb.mu.Unlock()
		la.mu.Unlock()
	}
}

// Sign records a contract in both parties' ledgers. Both ledgers stay locked
// while the seller's remaining supply and the buyer's residual demand are
// re-checked, so two concurrent signers can never oversell or overbuy.
func Sign(buyer, seller TradeEntity, t economy.Tradeable, quantity int, path *world.Path) (*Contract, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if buyer.Key() == seller.Key() {
		return nil, fmt.Errorf("%w: %s", ErrSelfContract, buyer.Description())
	}

	unlock := lockPair(buyer, seller)
	defer unlock()

	if avail := seller.forSaleLocked(t); avail < quantity {
		return nil, fmt.Errorf("%w: %s has %d %s, asked for %d",
			ErrInsufficientSupply, seller.Description(), avail, t, quantity)
	}
	if want := buyer.wantedLocked(t); want < quantity {
		return nil, fmt.Errorf("%w: %s wants %d %s, offered %d",
			ErrInsufficientDemand, buyer.Description(), want, t, quantity)
	}

	c := &Contract{
		ID:        uuid.NewString(),
		From:      seller,
		To:        buyer,
		Tradeable: t,
		Quantity:  quantity,
		Path:      path,
		fromKey:   seller.Key(),
		toKey:     buyer.Key(),
	}
	bl, sl := buyer.ledger(), seller.ledger()
	bl.contracts = append(bl.contracts, c)
	if sl != bl {
		sl.contracts = append(sl.contracts, c)
	}
	return c, nil
}

// Void removes every contract between a and b from both ledgers and returns
// how many distinct contracts were dropped.
func Void(a, b TradeEntity) int {
	unlock := lockPair(a, b)
	defer unlock()
	removed := a.ledger().removeWithLocked(b.Key())
	if a.ledger() != b.ledger() {
		b.ledger().removeWithLocked(a.Key())
	}
	return len(removed)
}

// VoidContract removes one contract from both parties' ledgers.
func VoidContract(c *Contract) bool {
	unlock := lockPair(c.From, c.To)
	defer unlock()
	ok := c.From.ledger().removeLocked(c)
	if c.To.ledger() != c.From.ledger() {
		ok = c.To.ledger().removeLocked(c) || ok
	}
	return ok
}

// VoidAll removes every contract the entity is party to, on both sides.
func VoidAll(e TradeEntity) int {
	n := 0
	for _, c := range e.ledger().Snapshot() {
		if VoidContract(c) {
			n++
		}
	}
	return n
}

// VoidRandomContract drops one of e's contracts chosen by pick, which
// receives the number of contracts and returns an index. It returns the
// voided contract or nil when e has none.
func VoidRandomContract(e TradeEntity, pick func(n int) int) *Contract {
	contracts := e.ledger().Snapshot()
	if len(contracts) == 0 {
		return nil
	}
	c := contracts[pick(len(contracts))]
	if !VoidContract(c) {
		return nil
	}
	return c
}
