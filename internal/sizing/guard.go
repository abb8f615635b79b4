// Package sizing implements the order sizing guard: a pure decision function
// that determines whether a batch of new orders can be safely funded from the
// free quote balance, and how large each order may be.
package sizing

import "github.com/shopspring/decimal"

// Reason codes for a rejected sizing request. Rejection is a first-class
// result, not an error.
type Reason string

const (
	ReasonInsufficientFree              Reason = "insufficient_free"
	ReasonInsufficientAfterReservations Reason = "insufficient_after_reservations"
	ReasonBelowMinOrderSize             Reason = "below_min_order_size"
)

// GuardInput carries everything the guard needs for one decision. All values
// are denominated in the quote currency.
type GuardInput struct {
	FreeQuoteBalance     decimal.Decimal
	OrdersToPlaceCount   int
	ReservedQuoteBalance decimal.Decimal
	FeeBufferAmount      decimal.Decimal
	MinFreeThreshold     decimal.Decimal
	OrderSizePercent     decimal.Decimal
	MaxPerOrderCap       decimal.Decimal
	MinOrderNotional     decimal.Decimal
}

// GuardResult is the guard's decision. When Allowed is false, Reason explains
// why and PerOrderNotional is zero.
type GuardResult struct {
	Allowed          bool
	PerOrderNotional decimal.Decimal
	UsableNotional   decimal.Decimal
	Reason           Reason
}

// Evaluate decides whether the requested orders can be funded. It is
// deterministic and side-effect free: identical inputs always produce
// identical results.
func Evaluate(in GuardInput) GuardResult {
	if in.FreeQuoteBalance.LessThanOrEqual(in.MinFreeThreshold) {
		return GuardResult{Reason: ReasonInsufficientFree}
	}

	usable := in.FreeQuoteBalance.Sub(in.FeeBufferAmount).Sub(in.ReservedQuoteBalance)
	if usable.IsNegative() {
		usable = decimal.Zero
	}
	if !usable.IsPositive() {
		return GuardResult{Reason: ReasonInsufficientAfterReservations, UsableNotional: usable}
	}

	count := int64(in.OrdersToPlaceCount)
	if count < 1 {
		count = 1
	}

	perOrder := usable.Mul(in.OrderSizePercent).Div(decimal.NewFromInt(count))
	if in.MaxPerOrderCap.IsPositive() && perOrder.GreaterThan(in.MaxPerOrderCap) {
		perOrder = in.MaxPerOrderCap
	}

	if perOrder.LessThan(in.MinOrderNotional) {
		return GuardResult{Reason: ReasonBelowMinOrderSize, UsableNotional: usable}
	}

	return GuardResult{
		Allowed:          true,
		PerOrderNotional: perOrder,
		UsableNotional:   usable,
	}
}
