// Simulation ties together the city systems and runs them on the hour.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/gridcity/internal/catalog"
	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/config"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/market"
	"github.com/talgya/gridcity/internal/pathfinding"
)

// ErrTickInProgress is returned when an hourly step is requested while the
// previous one is still running.
var ErrTickInProgress = errors.New("hourly step already in progress")

// Simulation holds the city and the automata that advance it.
type Simulation struct {
	City    *city.CityMap
	Catalog *catalog.Catalog
	Config  config.Config

	rng        *entropy.Source
	pathfinder *pathfinding.Pathfinder
	finder     *market.Finder
	fulfiller  *market.Fulfiller

	// OnReport, if set, receives every finished hourly report.
	OnReport func(Report)

	// beforeStep runs ahead of each named step; tests use it to inject
	// failures and delays.
	beforeStep func(name string)

	busy     atomic.Bool
	dropped  atomic.Int64
	lastTick atomic.Uint64
	wg       sync.WaitGroup

	mu     sync.RWMutex
	stats  Stats
	report Report
}

// Stats tracks aggregate city statistics, refreshed by the census.
type Stats struct {
	Population int                       `json:"population"`
	Buildings  int                       `json:"buildings"`
	Contracts  int                       `json:"contracts"`
	TotalMoney int                       `json:"total_money"`
	Powered    int                       `json:"powered"`
	Supply     map[economy.Tradeable]int `json:"supply"`
	Demand     map[economy.Tradeable]int `json:"demand"`
}

// TradeBalance is supply minus demand for t; positive means a surplus.
func (s Stats) TradeBalance(t economy.Tradeable) int {
	return s.Supply[t] - s.Demand[t]
}

// Report summarizes one hourly step.
type Report struct {
	Tick     uint64        `json:"tick"`
	Time     string        `json:"time"`
	Hour     int           `json:"hour"`
	Took     time.Duration `json:"took"`
	Steps    []string      `json:"steps"`
	Err      string        `json:"error,omitempty"`
	Stats    Stats         `json:"stats"`
	Matching market.Result `json:"matching"`

	Built      int `json:"built"`
	Liquidated int `json:"liquidated"`
	Taxed      int `json:"taxed"`
	Voided     int `json:"voided"`
	Dropped    int `json:"dropped_ticks"`
}

// NewSimulation wires the automata over m.
func NewSimulation(m *city.CityMap, cfg config.Config, cat *catalog.Catalog, rng *entropy.Source) *Simulation {
	if cat == nil {
		cat = catalog.Default()
	}
	if rng == nil {
		rng = entropy.New(cfg.Simulation.Seed)
	}
	// The caller keeps its catalog as loaded; the override lives on a copy.
	own := *cat
	own.ResidentialBuffer = cfg.Economy.ResidentialBuffer
	cat = &own

	pf := pathfinding.New(m, cfg.Market.MaxPathExpansions)
	finder := market.NewFinder(m, pf, cfg.Market.MaxResourceDistance, cfg.Market.OutsideBackoff)
	ful := market.NewFulfiller(m, finder, rng, market.Options{
		Workers:     cfg.Market.Workers,
		Timeout:     cfg.Market.Timeout,
		MaxAttempts: cfg.Market.MaxAttempts,
		SellerShare: cfg.Market.SellerShare,
	})
	s := &Simulation{
		City:       m,
		Catalog:    cat,
		Config:     cfg,
		rng:        rng,
		pathfinder: pf,
		finder:     finder,
		fulfiller:  ful,
	}
	s.takeCensus()
	return s
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 { return s.lastTick.Load() }

// SetTick restores the clock position after a load.
func (s *Simulation) SetTick(tick uint64) { s.lastTick.Store(tick) }

// Busy reports whether an hourly step is running.
func (s *Simulation) Busy() bool { return s.busy.Load() }

// Dropped returns how many hour boundaries were skipped because the
// previous step was still running.
func (s *Simulation) Dropped() int { return int(s.dropped.Load()) }

// Stats returns the latest census.
func (s *Simulation) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// LastReport returns the most recent hourly report.
func (s *Simulation) LastReport() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// TickHour is the engine's OnHour callback. It starts the hourly step in the
// background so the clock keeps moving; a boundary that arrives while a step
// is still running is dropped.
func (s *Simulation) TickHour(ctx context.Context, tick uint64) bool {
	if !s.acquire(tick) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runHour(ctx, tick)
	}()
	return true
}

// RunHour runs the hourly step for tick synchronously. It returns
// ErrTickInProgress when another step holds the flag, and the recovered
// failure, if any, of the step itself.
func (s *Simulation) RunHour(ctx context.Context, tick uint64) (Report, error) {
	if !s.acquire(tick) {
		return Report{}, ErrTickInProgress
	}
	return s.runHour(ctx, tick)
}

// Wait blocks until background hourly steps have finished.
func (s *Simulation) Wait() { s.wg.Wait() }

func (s *Simulation) acquire(tick uint64) bool {
	if s.busy.CompareAndSwap(false, true) {
		return true
	}
	s.dropped.Add(1)
	slog.Warn("hourly step still in progress, dropping tick", "tick", tick, "time", SimTime(tick))
	return false
}

// runHour executes the steps due at tick's hour. A failure anywhere aborts
// the remaining steps, is logged, and never escapes; the single-flight flag
// is always released.
func (s *Simulation) runHour(ctx context.Context, tick uint64) (rep Report, err error) {
	start := time.Now()
	hour := HourOf(tick)
	rep = Report{Tick: tick, Time: SimTime(tick), Hour: hour}

	defer s.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hourly step panicked: %v", r)
			slog.Error("hourly step failed", "tick", tick, "error", err, "stack", string(debug.Stack()))
		}
		if err != nil {
			rep.Err = err.Error()
		}
		rep.Took = time.Since(start)
		rep.Dropped = s.Dropped()
		rep.Stats = s.Stats()
		s.mu.Lock()
		s.report = rep
		s.mu.Unlock()
		if s.OnReport != nil {
			s.OnReport(rep)
		}
	}()

	s.advanceTo(tick)
	for _, st := range s.steps(hour, &rep) {
		if s.beforeStep != nil {
			s.beforeStep(st.name)
		}
		stepStart := time.Now()
		st.run(ctx)
		rep.Steps = append(rep.Steps, st.name)
		slog.Debug("step finished", "step", st.name, "tick", tick, "took", time.Since(stepStart))
	}
	return rep, nil
}

// advanceTo moves the clock forward to tick. A late or manual step for an
// earlier boundary never rewinds it.
func (s *Simulation) advanceTo(tick uint64) {
	for {
		cur := s.lastTick.Load()
		if tick <= cur || s.lastTick.CompareAndSwap(cur, tick) {
			return
		}
	}
}

type step struct {
	name string
	run  func(ctx context.Context)
}

// steps returns the work due at hour, in order.
func (s *Simulation) steps(hour int, rep *Report) []step {
	var out []step
	if hour%3 == 0 {
		out = append(out,
			step{"desirability", func(context.Context) { s.updateDesirability() }},
			step{"construction", func(context.Context) { rep.Built = s.construct() }},
			step{"terminate random contract", func(context.Context) {
				if s.fulfiller.TerminateRandomContract(s.Config.Market.ChaosThreshold) != nil {
					rep.Voided++
				}
			}},
			step{"sign contracts", func(ctx context.Context) { rep.Matching = s.fulfiller.SignContracts(ctx) }},
			step{"manufacturing", func(context.Context) { s.manufacture() }},
			step{"shipping", func(context.Context) { rep.Voided += s.ship() }},
			step{"consume goods", func(context.Context) { s.consumeGoods() }},
			step{"traffic", func(context.Context) { s.updateTraffic() }},
			step{"census", func(context.Context) { s.takeCensus() }},
		)
	}
	if hour%6 == 0 {
		out = append(out, step{"contract sweep", func(context.Context) { rep.Voided += s.sweepContracts() }})
	}
	if hour == 0 {
		out = append(out,
			step{"power", func(context.Context) { s.updatePower() }},
			step{"taxes", func(context.Context) { rep.Taxed = s.collectTaxes() }},
			step{"liquidation", func(context.Context) { rep.Liquidated = s.liquidate() }},
			step{"daily census", func(context.Context) { s.takeCensus() }},
			step{"daily report", func(context.Context) { s.dailyReport(rep) }},
			step{"national trade", func(context.Context) { s.resetNation() }},
			step{"pollution", func(context.Context) { s.updatePollution() }},
			step{"land value", func(context.Context) { s.updateLandValue() }},
		)
	}
	return out
}

// dailyReport logs the day's summary before the national counters reset.
func (s *Simulation) dailyReport(rep *Report) {
	st := s.Stats()
	exported, imported := s.City.Nation.TradeTotals()
	slog.Info("daily report",
		"tick", rep.Tick,
		"time", rep.Time,
		"population", humanize.Comma(int64(st.Population)),
		"buildings", st.Buildings,
		"contracts", st.Contracts,
		"powered", st.Powered,
		"money", humanize.Comma(int64(st.TotalMoney)),
		"taxed", humanize.Comma(int64(rep.Taxed)),
		"liquidated", rep.Liquidated,
		"exported_goods", exported[economy.Goods],
		"imported_goods", imported[economy.Goods],
		"dropped_ticks", s.Dropped(),
	)
}
