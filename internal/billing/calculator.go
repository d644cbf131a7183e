// Package billing derives monetary cost from metered water volume.
//
// All amounts are int64 micro currency units. Volume is rounded once to
// millilitres on the way in; everything after that is integer arithmetic,
// so repeated small charges never drift the way float accumulation would.
package billing

import (
	"fmt"
	"math"

	"github.com/tidewatch/aquameter/internal/config"
	"go.uber.org/fx"
)

// Calculator maps consumption volume to cost at a fixed per-liter rate.
// The rate is loaded once at startup and immutable thereafter.
type Calculator struct {
	ratePerLiterMicros int64
}

func NewCalculator(cfg config.Config) *Calculator {
	return &Calculator{ratePerLiterMicros: cfg.Billing.RatePerLiterMicros}
}

// RatePerLiterMicros returns the configured rate.
func (c *Calculator) RatePerLiterMicros() int64 { return c.ratePerLiterMicros }

// CostMicros returns the cost of the given volume in micro units.
// The volume is quantized to millilitres, rounding half away from zero.
func (c *Calculator) CostMicros(liters float64) int64 {
	if math.IsNaN(liters) || math.IsInf(liters, 0) {
		return 0
	}
	milliliters := int64(math.Round(liters * 1000))
	return roundedDiv(milliliters*c.ratePerLiterMicros, 1000)
}

// CostForMilliliters is the integer-only form used where volume is
// already held in millilitres.
func (c *Calculator) CostForMilliliters(milliliters int64) int64 {
	return roundedDiv(milliliters*c.ratePerLiterMicros, 1000)
}

func roundedDiv(n, d int64) int64 {
	if n >= 0 {
		return (n + d/2) / d
	}
	return (n - d/2) / d
}

// FormatMicros renders a micro-unit amount as a decimal string with two
// fractional digits, e.g. 1234500 -> "1.23".
func FormatMicros(micros int64) string {
	cents := roundedDiv(micros, 10000)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

var Module = fx.Module("billing",
	fx.Provide(NewCalculator),
)
