package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseInput() GuardInput {
	return GuardInput{
		FreeQuoteBalance:     d("1000"),
		OrdersToPlaceCount:   10,
		ReservedQuoteBalance: d("0"),
		FeeBufferAmount:      d("10"),
		MinFreeThreshold:     d("50"),
		OrderSizePercent:     d("0.8"),
		MaxPerOrderCap:       d("100"),
		MinOrderNotional:     d("5"),
	}
}

func TestEvaluateAllows(t *testing.T) {
	res := Evaluate(baseInput())
	require.True(t, res.Allowed)
	assert.Empty(t, res.Reason)

	// usable = 1000 - 10 = 990, per order = 990 * 0.8 / 10 = 79.2
	assert.True(t, res.UsableNotional.Equal(d("990")), "usable = %s", res.UsableNotional)
	assert.True(t, res.PerOrderNotional.Equal(d("79.2")), "per order = %s", res.PerOrderNotional)
}

func TestEvaluateBelowFreeThreshold(t *testing.T) {
	in := baseInput()
	in.FreeQuoteBalance = d("50") // equal to threshold rejects too
	res := Evaluate(in)

	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonInsufficientFree, res.Reason)
	assert.True(t, res.PerOrderNotional.IsZero())
}

func TestEvaluateReservationsConsumeEverything(t *testing.T) {
	in := baseInput()
	in.ReservedQuoteBalance = d("995")
	res := Evaluate(in)

	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonInsufficientAfterReservations, res.Reason)
	// usable clamps at zero, never negative
	assert.True(t, res.UsableNotional.IsZero(), "usable = %s", res.UsableNotional)
}

func TestEvaluatePerOrderCap(t *testing.T) {
	in := baseInput()
	in.OrdersToPlaceCount = 2
	res := Evaluate(in)

	require.True(t, res.Allowed)
	// uncapped would be 990 * 0.8 / 2 = 396
	assert.True(t, res.PerOrderNotional.Equal(d("100")))
}

func TestEvaluateLargeBatchHitsCap(t *testing.T) {
	res := Evaluate(GuardInput{
		FreeQuoteBalance:   d("5000"),
		OrdersToPlaceCount: 60,
		OrderSizePercent:   d("0.8"),
		MaxPerOrderCap:     d("20"),
		MinOrderNotional:   d("5"),
	})

	require.True(t, res.Allowed)
	// uncapped 5000 * 0.8 / 60 ≈ 66.67, cap wins
	assert.True(t, res.PerOrderNotional.Equal(d("20")))
}

func TestEvaluateBelowMinOrderSize(t *testing.T) {
	in := baseInput()
	in.FreeQuoteBalance = d("70")
	in.OrdersToPlaceCount = 20
	// usable = 60, per order = 60 * 0.8 / 20 = 2.4 < 5
	res := Evaluate(in)

	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonBelowMinOrderSize, res.Reason)
}

func TestEvaluateZeroCountTreatedAsOne(t *testing.T) {
	in := baseInput()
	in.OrdersToPlaceCount = 0
	res := Evaluate(in)

	require.True(t, res.Allowed)
	// divisor clamps to 1: 990 * 0.8 = 792, capped at 100
	assert.True(t, res.PerOrderNotional.Equal(d("100")))
}

func TestEvaluateDeterministic(t *testing.T) {
	in := baseInput()
	first := Evaluate(in)
	for i := 0; i < 5; i++ {
		again := Evaluate(in)
		assert.Equal(t, first.Allowed, again.Allowed)
		assert.True(t, first.PerOrderNotional.Equal(again.PerOrderNotional))
	}
}
