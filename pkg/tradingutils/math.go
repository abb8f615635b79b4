// Package tradingutils provides shared price/quantity math helpers.
package tradingutils

import (
	"github.com/shopspring/decimal"
)

// RoundPrice rounds a price to the exchange's price decimals.
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// FloorQuantity truncates a quantity to the exchange's quantity decimals.
// Truncation, not rounding: a quantity must never round up past the funded
// amount.
func FloorQuantity(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Truncate(int32(qtyDecimals))
}

// Notional returns price × quantity in quote currency.
func Notional(price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty)
}

// StaggeredBuyPrices returns count buy prices stepping away below the
// reference: ref × (1 − base − i×step) for i in [0, count).
func StaggeredBuyPrices(ref, baseSpread, step decimal.Decimal, count int) []decimal.Decimal {
	return staggeredPrices(ref, baseSpread.Neg(), step.Neg(), count)
}

// StaggeredSellPrices returns count sell prices stepping away above the
// reference: ref × (1 + base + i×step) for i in [0, count).
func StaggeredSellPrices(ref, baseSpread, step decimal.Decimal, count int) []decimal.Decimal {
	return staggeredPrices(ref, baseSpread, step, count)
}

func staggeredPrices(ref, base, step decimal.Decimal, count int) []decimal.Decimal {
	one := decimal.NewFromInt(1)
	prices := make([]decimal.Decimal, 0, count)
	for i := 0; i < count; i++ {
		offset := base.Add(step.Mul(decimal.NewFromInt(int64(i))))
		prices = append(prices, ref.Mul(one.Add(offset)))
	}
	return prices
}

// RelativeSpread returns |price − ref| / ref, the realized spread of a fill
// relative to its reference price. Zero when ref is not positive.
func RelativeSpread(price, ref decimal.Decimal) decimal.Decimal {
	if !ref.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(ref).Abs().Div(ref)
}
