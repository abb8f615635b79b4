// Package book maintains the resting order book: staggered limit orders on
// both sides of a reference price, trimmed to a ceiling, plus matched
// wash-trade pairs once the book is full.
package book

import (
	"sort"
	"sync"

	"volume_maker/internal/core"

	"github.com/shopspring/decimal"
)

// RecordSet is the local cache of orders this process has placed. It is a
// snapshot of exchange truth, reconciled when a terminal status or a
// not-found response is observed. Mutex-guarded even though cycles never
// overlap, so the tracker loop can read it concurrently.
type RecordSet struct {
	mu      sync.RWMutex
	records map[int64]*core.OrderRecord
}

// NewRecordSet creates an empty record set.
func NewRecordSet() *RecordSet {
	return &RecordSet{records: make(map[int64]*core.OrderRecord)}
}

// Add inserts or replaces a record.
func (s *RecordSet) Add(r *core.OrderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.OrderID] = r
}

// Remove deletes a record and returns it, or nil when the id is unknown.
func (s *RecordSet) Remove(orderID int64) *core.OrderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[orderID]
	delete(s.records, orderID)
	return r
}

// Get returns the record for an order id.
func (s *RecordSet) Get(orderID int64) (*core.OrderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[orderID]
	return r, ok
}

// Len returns the number of tracked orders.
func (s *RecordSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// CountBySide returns the tracked buy and sell counts.
func (s *RecordSet) CountBySide() (buys, sells int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.Side == core.SideBuy {
			buys++
		} else {
			sells++
		}
	}
	return buys, sells
}

// ReservedQuote returns the quote notional committed to tracked open BUY
// orders (intended price × quantity). SELL orders lock base inventory, not
// quote, and are not counted here.
func (s *RecordSet) ReservedQuote() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reserved := decimal.Zero
	for _, r := range s.records {
		if r.Side == core.SideBuy {
			reserved = reserved.Add(r.IntendedPrice.Mul(r.Quantity))
		}
	}
	return reserved
}

// All returns every record sorted by order id ascending, giving the tracker a
// stable rotation order.
func (s *RecordSet) All() []*core.OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.OrderRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}
