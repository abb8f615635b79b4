package engine

import (
	"sync"
	"time"
)

// IntervalTicker drives a loop at a fixed wall-clock interval.
type IntervalTicker struct {
	ticker *time.Ticker
}

// NewIntervalTicker creates a tick source firing every interval.
func NewIntervalTicker(interval time.Duration) *IntervalTicker {
	return &IntervalTicker{ticker: time.NewTicker(interval)}
}

func (t *IntervalTicker) Ticks() <-chan time.Time { return t.ticker.C }
func (t *IntervalTicker) Stop()                   { t.ticker.Stop() }

// ManualTicker is a test tick source driven by explicit Tick calls, so cycles
// run synchronously without wall-clock timers.
type ManualTicker struct {
	ch   chan time.Time
	once sync.Once
}

// NewManualTicker creates an unbuffered manual tick source.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time)}
}

// Tick fires one tick, blocking until the loop consumes it.
func (t *ManualTicker) Tick() { t.ch <- time.Now() }

func (t *ManualTicker) Ticks() <-chan time.Time { return t.ch }
func (t *ManualTicker) Stop()                   { t.once.Do(func() { close(t.ch) }) }
