package book

import (
	"testing"
	"time"

	"volume_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func record(id int64, side core.Side, price, qty string) *core.OrderRecord {
	return &core.OrderRecord{
		OrderID:       id,
		Side:          side,
		IntendedPrice: d(price),
		Quantity:      d(qty),
		PlacedAt:      time.Date(2025, 1, 1, 0, 0, int(id), 0, time.UTC),
	}
}

func TestRecordSetReservedQuoteCountsBuysOnly(t *testing.T) {
	s := NewRecordSet()
	s.Add(record(1, core.SideBuy, "100", "0.5"))  // 50
	s.Add(record(2, core.SideBuy, "100", "0.25")) // 25
	s.Add(record(3, core.SideSell, "100", "2"))   // ignored

	assert.True(t, s.ReservedQuote().Equal(d("75")))

	s.Remove(1)
	assert.True(t, s.ReservedQuote().Equal(d("25")))
}

func TestRecordSetAllSortedByOrderID(t *testing.T) {
	s := NewRecordSet()
	s.Add(record(30, core.SideBuy, "1", "1"))
	s.Add(record(10, core.SideSell, "1", "1"))
	s.Add(record(20, core.SideBuy, "1", "1"))

	all := s.All()
	assert.Equal(t, []int64{10, 20, 30}, []int64{all[0].OrderID, all[1].OrderID, all[2].OrderID})
}

func TestRecordSetRemoveUnknownReturnsNil(t *testing.T) {
	s := NewRecordSet()
	assert.Nil(t, s.Remove(42))
}

func TestRecordSetCountBySide(t *testing.T) {
	s := NewRecordSet()
	s.Add(record(1, core.SideBuy, "1", "1"))
	s.Add(record(2, core.SideSell, "1", "1"))
	s.Add(record(3, core.SideSell, "1", "1"))

	buys, sells := s.CountBySide()
	assert.Equal(t, 1, buys)
	assert.Equal(t, 2, sells)
}

func TestRandomJitterStaysInRange(t *testing.T) {
	j := NewRandomJitter(0.001, 0.05)
	for i := 0; i < 100; i++ {
		p, s := j()
		assert.LessOrEqual(t, p, 0.001)
		assert.GreaterOrEqual(t, p, -0.001)
		assert.LessOrEqual(t, s, 0.05)
		assert.GreaterOrEqual(t, s, -0.05)
	}
}

func TestNoJitterIsZero(t *testing.T) {
	p, s := NoJitter()
	assert.Zero(t, p)
	assert.Zero(t, s)
}
