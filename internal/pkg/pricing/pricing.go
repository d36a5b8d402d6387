// Package pricing holds the side-aware trigger arithmetic shared by the
// rule, trailing-stop and scaled-exit engines. All comparisons go
// through shopspring/decimal so float noise near a threshold cannot
// flip a trigger decision.
package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	SideLong  = "long"
	SideShort = "short"
)

// NormalizeSide maps loose user input ("LONG", "buy", "sell", ...) to
// the canonical side constants. Unknown input yields "".
func NormalizeSide(side string) string {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "long", "buy":
		return SideLong
	case "short", "sell":
		return SideShort
	default:
		return ""
	}
}

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func Compare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func LTE(a, b float64) bool { return Compare(a, b) <= 0 }
func GTE(a, b float64) bool { return Compare(a, b) >= 0 }
func LT(a, b float64) bool  { return Compare(a, b) < 0 }
func GT(a, b float64) bool  { return Compare(a, b) > 0 }

// FavorableTarget returns entry shifted pct percent in the profitable
// direction for side.
func FavorableTarget(entry, pct float64, side string) float64 {
	if entry <= 0 {
		return 0
	}
	base := decFromFloat(entry)
	step := decFromFloat(pct).Div(decHundred)
	var factor decimal.Decimal
	switch side {
	case SideShort:
		factor = decOne.Sub(step)
	default:
		factor = decOne.Add(step)
	}
	return decToFloat(base.Mul(factor))
}

// AdverseTarget returns entry shifted pct percent in the losing
// direction for side.
func AdverseTarget(entry, pct float64, side string) float64 {
	if entry <= 0 {
		return 0
	}
	base := decFromFloat(entry)
	step := decFromFloat(pct).Div(decHundred)
	var factor decimal.Decimal
	switch side {
	case SideShort:
		factor = decOne.Add(step)
	default:
		factor = decOne.Sub(step)
	}
	return decToFloat(base.Mul(factor))
}

// FavorableExcursionPct returns how far price has moved from entry in
// the profitable direction for side, in percent. Adverse moves come
// back negative.
func FavorableExcursionPct(entry, price float64, side string) float64 {
	if entry <= 0 || price <= 0 {
		return 0
	}
	e := decFromFloat(entry)
	p := decFromFloat(price)
	var move decimal.Decimal
	switch side {
	case SideShort:
		move = e.Sub(p)
	default:
		move = p.Sub(e)
	}
	return decToFloat(move.Div(e).Mul(decHundred))
}

// TrailStopFromPercent derives the trailing stop from the watermark and
// a trail distance in percent: below the watermark for longs, above it
// for shorts.
func TrailStopFromPercent(watermark, trailPct float64, side string) float64 {
	if watermark <= 0 || trailPct <= 0 {
		return 0
	}
	base := decFromFloat(watermark)
	step := decFromFloat(trailPct).Div(decHundred)
	var factor decimal.Decimal
	switch side {
	case SideShort:
		factor = decOne.Add(step)
	default:
		factor = decOne.Sub(step)
	}
	return decToFloat(base.Mul(factor))
}

// TrailStopFromAmount derives the trailing stop from the watermark and
// an absolute trail distance.
func TrailStopFromAmount(watermark, amount float64, side string) float64 {
	if watermark <= 0 || amount <= 0 {
		return 0
	}
	base := decFromFloat(watermark)
	amt := decFromFloat(amount)
	switch side {
	case SideShort:
		return decToFloat(base.Add(amt))
	default:
		return decToFloat(base.Sub(amt))
	}
}

// BreachedStop reports whether price has crossed the stop in the
// adverse direction for side (inclusive).
func BreachedStop(price, stop float64, side string) bool {
	if price <= 0 || stop <= 0 {
		return false
	}
	switch side {
	case SideShort:
		return GTE(price, stop)
	default:
		return LTE(price, stop)
	}
}

// ReachedTarget reports whether price has crossed the target in the
// favorable direction for side (inclusive).
func ReachedTarget(price, target float64, side string) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	switch side {
	case SideShort:
		return LTE(price, target)
	default:
		return GTE(price, target)
	}
}

// BetterWatermark reports whether price improves on the current
// watermark for side: higher for longs, lower for shorts.
func BetterWatermark(price, watermark float64, side string) bool {
	if price <= 0 {
		return false
	}
	if watermark <= 0 {
		return true
	}
	switch side {
	case SideShort:
		return LT(price, watermark)
	default:
		return GT(price, watermark)
	}
}

// ChangePct returns the absolute percentage move of price from base.
func ChangePct(base, price float64) float64 {
	if base <= 0 || price <= 0 {
		return 0
	}
	b := decFromFloat(base)
	p := decFromFloat(price)
	return decToFloat(p.Sub(b).Div(b).Mul(decHundred).Abs())
}
