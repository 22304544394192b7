package engine

import (
	"testing"
	"time"
)

func TestStepFiresCallbacksOnBoundaries(t *testing.T) {
	e := NewEngine(0)
	var ticks, hours, days int
	e.OnTick = func(uint64) { ticks++ }
	e.OnHour = func(uint64) { hours++ }
	e.OnDay = func(uint64) { days++ }
	for range TicksPerSimDay {
		e.Step()
	}
	if ticks != TicksPerSimDay || hours != 24 || days != 1 {
		t.Errorf("ticks=%d hours=%d days=%d", ticks, hours, days)
	}
}

func TestHourOf(t *testing.T) {
	tests := []struct {
		tick uint64
		want int
	}{
		{0, 0},
		{59, 0},
		{60, 1},
		{TicksPerSimDay - 1, 23},
		{TicksPerSimDay + 3*TicksPerSimHour, 3},
	}
	for _, tt := range tests {
		if got := HourOf(tt.tick); got != tt.want {
			t.Errorf("HourOf(%d) = %d, want %d", tt.tick, got, tt.want)
		}
	}
	if got := SimTime(TicksPerSimDay + 90); got != "Day 2, 1:30" {
		t.Errorf("SimTime = %q", got)
	}
}

func TestRunStops(t *testing.T) {
	e := NewEngine(100)
	e.Interval = time.Millisecond
	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	for e.Tick() < 105 {
		time.Sleep(time.Millisecond)
	}
	e.Stop()
	e.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if e.Running() {
		t.Error("engine still marked running")
	}
}

func TestSpeedChangesWhileRunning(t *testing.T) {
	e := NewEngine(0)
	e.Interval = time.Millisecond
	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	for i := range 200 {
		e.SetSpeed(float64(i%5 + 1))
		_ = e.Speed()
	}
	e.SetSpeed(0)
	paused := e.Tick()
	time.Sleep(20 * time.Millisecond)
	if got := e.Tick(); got > paused+1 {
		t.Errorf("clock advanced from %d to %d while paused", paused, got)
	}
	e.SetSpeed(2)
	deadline := time.Now().Add(2 * time.Second)
	for e.Tick() <= paused+1 {
		if time.Now().After(deadline) {
			t.Fatal("clock did not resume")
		}
		time.Sleep(time.Millisecond)
	}
	e.Stop()
	<-done
	if e.Speed() != 2 {
		t.Errorf("speed = %v, want 2", e.Speed())
	}
}
