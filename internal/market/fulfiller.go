package market

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/world"
)

// Options tune the matching engine.
type Options struct {
	Workers     int           // Concurrent building tasks per pass
	Timeout     time.Duration // Wall-clock budget for the whole run
	MaxAttempts int           // Contracts attempted per tradeable per building per pass
	SellerShare int           // A seller offers at most 1/SellerShare of its output to one buyer
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		Workers:     8,
		Timeout:     5 * time.Second,
		MaxAttempts: 5,
		SellerShare: 3,
	}
}

// Result summarizes a matching run.
type Result struct {
	Processed int  // Building tasks that ran to completion
	Signed    int  // Contracts signed
	Rejected  int  // Contract attempts rejected at signing
	Pending   int  // Buildings still needing contracts afterwards
	Passes    int  // Passes started
	TimedOut  bool // The deadline cut the run short
}

// Fulfiller runs the matching passes over a city.
type Fulfiller struct {
	m      *city.CityMap
	finder *Finder
	rng    *entropy.Source
	opts   Options

	signed   atomic.Int64
	rejected atomic.Int64
}

// NewFulfiller returns a fulfiller. Zero option fields take their defaults.
func NewFulfiller(m *city.CityMap, finder *Finder, rng *entropy.Source, opts Options) *Fulfiller {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.SellerShare <= 0 {
		opts.SellerShare = def.SellerShare
	}
	return &Fulfiller{m: m, finder: finder, rng: rng, opts: opts}
}

// Pending returns the buildings with residual demand.
func (f *Fulfiller) Pending() []city.Location {
	var out []city.Location
	for _, loc := range f.m.Locations() {
		if loc.Building.NeedsAnyContracts() {
			out = append(out, loc)
		}
	}
	return out
}

// SignContracts runs matching passes until the set of buildings needing
// contracts stops shrinking, or the deadline passes. Each pass handles every
// pending building on a bounded worker pool in shuffled order. Running out of
// time is a normal outcome; whatever was signed stays signed.
func (f *Fulfiller) SignContracts(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	f.signed.Store(0)
	f.rejected.Store(0)

	var res Result
	var processed atomic.Int64
	pending := f.Pending()
	for len(pending) > 0 {
		if ctx.Err() != nil {
			res.TimedOut = true
			break
		}
		res.Passes++
		f.rng.Shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.opts.Workers)
		for _, loc := range pending {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if f.handleBuilding(gctx, loc) {
					processed.Add(1)
				}
				return nil
			})
		}
		g.Wait()

		before := len(pending)
		pending = f.Pending()
		if len(pending) >= before {
			break
		}
	}
	if ctx.Err() != nil {
		res.TimedOut = true
	}

	res.Processed = int(processed.Load())
	res.Signed = int(f.signed.Load())
	res.Rejected = int(f.rejected.Load())
	res.Pending = len(pending)
	slog.Debug("matching finished",
		"passes", res.Passes, "processed", res.Processed, "signed", res.Signed,
		"pending", res.Pending, "timed_out", res.TimedOut)
	return res
}

// handleBuilding buys before it sells. It reports whether it finished
// without being cancelled.
func (f *Fulfiller) handleBuilding(ctx context.Context, loc city.Location) bool {
	e := loc.Entity()
	for _, t := range loc.Building.ConsumedList() {
		if ctx.Err() != nil {
			return false
		}
		f.handleConsumes(ctx, e, t)
	}
	for _, t := range loc.Building.ProductList() {
		if ctx.Err() != nil {
			return false
		}
		f.handleProduces(ctx, e, t)
	}
	return ctx.Err() == nil
}

func (f *Fulfiller) handleConsumes(ctx context.Context, e city.CityTradeEntity, t economy.Tradeable) {
	blocks := e.Blocks()
	memo := make(PathMemo)
	for attempt := 0; attempt < f.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		want := e.QuantityWanted(t)
		if want <= 0 {
			return
		}
		avail := f.finder.MaxAvailableNearby(blocks, e.Key(), t)
		if avail <= 0 {
			return
		}
		needs := min(want, avail)

		seller, path := f.findDecreasing(ctx, e, t, needs, memo)
		if seller == nil {
			return
		}
		qty := min(e.QuantityWanted(t), seller.QuantityForSale(t))
		if qty <= 0 {
			return
		}
		f.sign(e, seller, t, qty, path)
	}
}

// findDecreasing asks for needs units, then one fewer, down to one, and
// returns the first source found. Trips are memoized across the attempts.
func (f *Fulfiller) findDecreasing(ctx context.Context, e city.CityTradeEntity, t economy.Tradeable, needs int, memo PathMemo) (city.TradeEntity, *world.Path) {
	blocks := e.Blocks()
	for q := needs; q >= 1; q-- {
		if ctx.Err() != nil {
			return nil, nil
		}
		if seller, path := f.finder.FindSource(blocks, e.Key(), t, q, memo); seller != nil {
			return seller, path
		}
	}
	return nil, nil
}

func (f *Fulfiller) handleProduces(ctx context.Context, e city.CityTradeEntity, t economy.Tradeable) {
	blocks := e.Blocks()
	share := max(e.B.ProducesQuantity(t)/f.opts.SellerShare, 1)
	served := make(map[string]bool)
	memo := make(PathMemo)
	for attempt := 0; attempt < f.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		forSale := e.QuantityForSale(t)
		if forSale <= 0 {
			return
		}
		if f.finder.QuantityWantedNearby(blocks, e.Key(), t) <= 0 {
			return
		}
		buyer, path := f.finder.NearestBuyer(blocks, e.Key(), t, served, memo)
		if buyer == nil {
			return
		}
		served[buyer.Key()] = true
		qty := min(buyer.QuantityWanted(t), forSale, share)
		if qty <= 0 {
			continue
		}
		f.sign(buyer, e, t, qty, path)
	}
}

func (f *Fulfiller) sign(buyer, seller city.TradeEntity, t economy.Tradeable, qty int, path *world.Path) {
	c, err := city.Sign(buyer, seller, t, qty, path)
	if err != nil {
		f.rejected.Add(1)
		slog.Warn("invalid contract attempt",
			"buyer", buyer.Description(), "seller", seller.Description(),
			"tradeable", t, "quantity", qty, "error", err)
		return
	}
	f.signed.Add(1)
	slog.Debug("contract signed", "contract", c.String())
}

// TerminateRandomContract voids one random contract, on both sides, once more
// than threshold buildings hold contracts. It keeps the market from freezing
// into its first arrangement.
func (f *Fulfiller) TerminateRandomContract(threshold int) *city.Contract {
	locs := f.m.Locations()
	contracted := locs[:0:0]
	for _, loc := range locs {
		if loc.Building.HasAnyContracts() {
			contracted = append(contracted, loc)
		}
	}
	if len(contracted) <= threshold {
		return nil
	}
	loc := contracted[f.rng.Intn(len(contracted))]
	c := city.VoidRandomContract(loc.Entity(), f.rng.Intn)
	if c != nil {
		slog.Debug("terminated contract", "contract", c.String())
	}
	return c
}
