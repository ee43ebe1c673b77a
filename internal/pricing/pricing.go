// Package pricing computes order prices from quantity. Prices are fixed at
// order creation and never recomputed, so both functions must stay pure.
package pricing

import "math"

// Calculator converts a star quantity into the two settlement amounts using
// fixed per-unit rates.
type Calculator struct {
	rubPerUnit  float64
	usdtPerUnit float64
}

// NewCalculator returns a Calculator with the configured rates,
// e.g. 1.80 RUB and 0.02 USDT per star.
func NewCalculator(rubPerUnit, usdtPerUnit float64) *Calculator {
	return &Calculator{rubPerUnit: rubPerUnit, usdtPerUnit: usdtPerUnit}
}

// RubKopecks returns the primary price in kopecks for the given quantity.
func (c *Calculator) RubKopecks(quantity int64) int64 {
	return int64(math.Round(float64(quantity) * c.rubPerUnit * 100))
}

// UsdtMicro returns the secondary price in micro-USDT for the given quantity.
func (c *Calculator) UsdtMicro(quantity int64) int64 {
	return int64(math.Round(float64(quantity) * c.usdtPerUnit * 1e6))
}
