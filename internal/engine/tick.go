// Package engine provides the clock loop and the hourly and daily city
// automata it drives.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// TickSchedule defines when each layer runs relative to the tick counter.
const (
	TicksPerSimHour = 60   // 60 ticks = 1 sim-hour
	TicksPerSimDay  = 1440 // 24 hours × 60
)

// Engine drives the simulation clock forward one sim-minute per tick.
type Engine struct {
	Interval time.Duration // Base tick interval

	// Callbacks for each tick layer, populated during setup. They run on the
	// clock goroutine and must return quickly.
	OnTick func(tick uint64) // Every tick (sim-minute)
	OnHour func(tick uint64) // Every 60 ticks
	OnDay  func(tick uint64) // Every 1440 ticks, after OnHour

	speed   atomic.Uint64 // float64 bits; multiplier, 1.0 = real-time, 0 = paused
	tick    atomic.Uint64
	running atomic.Bool
	stop    chan struct{}
}

// NewEngine creates a clock starting at tick.
func NewEngine(tick uint64) *Engine {
	e := &Engine{
		Interval: time.Second,
		stop:     make(chan struct{}),
	}
	e.tick.Store(tick)
	e.SetSpeed(1)
	return e
}

// Speed returns the clock multiplier.
func (e *Engine) Speed() float64 { return math.Float64frombits(e.speed.Load()) }

// SetSpeed changes the clock multiplier; 0 pauses. Safe while Run loops.
func (e *Engine) SetSpeed(v float64) { e.speed.Store(math.Float64bits(v)) }

// Tick returns the current tick counter.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// Running reports whether Run is looping.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick(), "time", SimTime(e.Tick()), "speed", e.Speed())

	for {
		speed := e.Speed()
		if speed <= 0 {
			// Paused; check again shortly.
			if e.sleep(100 * time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()
		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if e.sleep(target - elapsed) {
			break
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick())
}

// sleep waits for d and reports whether Stop was called meanwhile.
func (e *Engine) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-e.stop:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.stop:
		return true
	case <-t.C:
		return false
	}
}

// Stop halts the simulation loop. It is safe to call more than once.
func (e *Engine) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// Step advances the simulation by one tick and fires the callbacks whose
// boundary the new tick lands on.
func (e *Engine) Step() uint64 {
	tick := e.tick.Add(1)

	if e.OnTick != nil {
		e.OnTick(tick)
	}
	if tick%TicksPerSimHour == 0 && e.OnHour != nil {
		e.OnHour(tick)
	}
	if tick%TicksPerSimDay == 0 && e.OnDay != nil {
		e.OnDay(tick)
	}
	return tick
}

// HourOf returns the hour of day (0-23) for a tick.
func HourOf(tick uint64) int {
	return int(tick / TicksPerSimHour % 24)
}

// SimTime returns a human-readable simulation time string from a tick number.
func SimTime(tick uint64) string {
	minutes := tick % 60
	totalHours := tick / 60
	hours := totalHours % 24
	days := totalHours/24 + 1
	return fmt.Sprintf("Day %d, %d:%02d", days, hours, minutes)
}
