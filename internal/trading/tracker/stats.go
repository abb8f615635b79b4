// Package tracker polls tracked orders for fills, classifies them as wash or
// real by realized spread, and accumulates volume and profit statistics.
package tracker

import (
	"sync"

	"volume_maker/internal/core"

	"github.com/shopspring/decimal"
)

// Stats accumulates fill statistics. It is owned by the Tracker and safe for
// concurrent snapshots from reporting loops.
type Stats struct {
	mu sync.RWMutex

	totalVolume decimal.Decimal
	buyVolume   decimal.Decimal
	sellVolume  decimal.Decimal

	realFills int64
	washFills int64

	totalProfit decimal.Decimal
	bestProfit  decimal.Decimal
}

// StatsSnapshot is a point-in-time copy of the accumulated statistics.
type StatsSnapshot struct {
	TotalVolume decimal.Decimal `json:"total_volume"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
	RealFills   int64           `json:"real_fills"`
	WashFills   int64           `json:"wash_fills"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	BestProfit  decimal.Decimal `json:"best_profit"`
}

// NewStats creates zeroed statistics.
func NewStats() *Stats {
	return &Stats{
		totalVolume: decimal.Zero,
		buyVolume:   decimal.Zero,
		sellVolume:  decimal.Zero,
		totalProfit: decimal.Zero,
		bestProfit:  decimal.Zero,
	}
}

func (s *Stats) applyFill(f Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalVolume = s.totalVolume.Add(f.Notional)
	if f.Side == core.SideBuy {
		s.buyVolume = s.buyVolume.Add(f.Notional)
	} else {
		s.sellVolume = s.sellVolume.Add(f.Notional)
	}

	if f.Wash {
		s.washFills++
	} else {
		s.realFills++
	}

	s.totalProfit = s.totalProfit.Add(f.Profit)
	if f.Profit.GreaterThan(s.bestProfit) {
		s.bestProfit = f.Profit
	}
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{
		TotalVolume: s.totalVolume,
		BuyVolume:   s.buyVolume,
		SellVolume:  s.sellVolume,
		RealFills:   s.realFills,
		WashFills:   s.washFills,
		TotalProfit: s.totalProfit,
		BestProfit:  s.bestProfit,
	}
}
