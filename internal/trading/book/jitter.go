package book

import "math/rand"

// Jitter produces per-pair price and size variance fractions for wash trades.
// Pluggable so tests can pin the variance to zero or a fixed value.
type Jitter func() (priceFrac, sizeFrac float64)

// NoJitter returns zero variance. Wash pairs land exactly at
// ref × (1 + baseSpread) with the nominal size.
func NoJitter() (priceFrac, sizeFrac float64) {
	return 0, 0
}

// NewRandomJitter returns uniform variance in [-priceRange, +priceRange] and
// [-sizeRange, +sizeRange].
func NewRandomJitter(priceRange, sizeRange float64) Jitter {
	return func() (float64, float64) {
		return uniform(priceRange), uniform(sizeRange)
	}
}

func uniform(r float64) float64 {
	if r <= 0 {
		return 0
	}
	return (rand.Float64()*2 - 1) * r
}
