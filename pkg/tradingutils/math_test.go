package tradingutils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFloorQuantityTruncates(t *testing.T) {
	assert.True(t, FloorQuantity(d("1.2399"), 2).Equal(d("1.23")))
	assert.True(t, FloorQuantity(d("0.009"), 2).Equal(decimal.Zero))
}

func TestStaggeredPricesStepAwayFromReference(t *testing.T) {
	ref := d("100")
	buys := StaggeredBuyPrices(ref, d("0.003"), d("0.001"), 3)
	sells := StaggeredSellPrices(ref, d("0.003"), d("0.001"), 3)
	require.Len(t, buys, 3)
	require.Len(t, sells, 3)

	assert.True(t, buys[0].Equal(d("99.7")), "got %s", buys[0])
	assert.True(t, buys[2].Equal(d("99.5")), "got %s", buys[2])
	assert.True(t, sells[0].Equal(d("100.3")), "got %s", sells[0])
	assert.True(t, sells[2].Equal(d("100.5")), "got %s", sells[2])
}

func TestRelativeSpread(t *testing.T) {
	assert.True(t, RelativeSpread(d("100.3"), d("100")).Equal(d("0.003")))
	assert.True(t, RelativeSpread(d("99.7"), d("100")).Equal(d("0.003")))
	assert.True(t, RelativeSpread(d("100"), decimal.Zero).IsZero())
}

func TestClientOrderIDRoundTrip(t *testing.T) {
	id := NewClientOrderID(d("100.3"), "BUY", 4)
	assert.LessOrEqual(t, len(id), 26)

	price, side, sec, ok := ParseClientOrderID(id, 4)
	require.True(t, ok)
	assert.True(t, price.Equal(d("100.3")), "got %s", price)
	assert.Equal(t, "BUY", side)
	assert.Positive(t, sec)
}

func TestClientOrderIDUniqueWithinSecond(t *testing.T) {
	a := NewClientOrderID(d("1"), "SELL", 2)
	b := NewClientOrderID(d("1"), "SELL", 2)
	assert.NotEqual(t, a, b)
}

func TestParseClientOrderIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "abc", "x_B_1702468800001", "100_Q_1702468800001", "100_B_12"} {
		_, _, _, ok := ParseClientOrderID(id, 2)
		assert.False(t, ok, "id %q", id)
	}
}
