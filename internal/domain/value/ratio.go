package value

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale tells how the raw number of a Ratio is expressed.
type Scale uint8

const (
	ScaleFraction Scale = iota // 0.15 means 15%
	ScalePercent               // 15 means 15%
)

var hundred = decimal.NewFromInt(100) //nolint:gochecknoglobals

// Ratio is a percentage input whose scale is known explicitly. Values are
// never clamped: a fraction of 1.2 is a 120% multiplier.
type Ratio struct {
	raw   decimal.Decimal
	scale Scale
}

// Fraction wraps a ratio written as a fraction, 0.15 for 15%.
func Fraction(v float64) Ratio {
	return Ratio{raw: decimal.NewFromFloat(v), scale: ScaleFraction}
}

// Percent wraps a ratio written as a whole percentage, 15 for 15%.
func Percent(v float64) Ratio {
	return Ratio{raw: decimal.NewFromFloat(v), scale: ScalePercent}
}

// FractionFromDecimal is Fraction for a value already held as a decimal.
func FractionFromDecimal(v decimal.Decimal) Ratio {
	return Ratio{raw: v, scale: ScaleFraction}
}

// InferRatio resolves a stored value of unknown scale: anything above 1 is
// read as a whole percentage. Only fields known to be discounts in [0, 100]
// may go through here; multipliers such as pct_ctv must use Fraction.
func InferRatio(v decimal.Decimal) Ratio {
	if v.GreaterThan(decimal.NewFromInt(1)) {
		return Ratio{raw: v, scale: ScalePercent}
	}

	return Ratio{raw: v, scale: ScaleFraction}
}

// Decimal returns the ratio as a fraction.
func (r Ratio) Decimal() decimal.Decimal {
	if r.scale == ScalePercent {
		return r.raw.Div(hundred)
	}

	return r.raw
}

// Scale reports how the raw value was written.
func (r Ratio) Scale() Scale {
	return r.scale
}

// IsZero reports whether the ratio is 0 in either scale.
func (r Ratio) IsZero() bool {
	return r.raw.IsZero()
}

func (r Ratio) String() string {
	if r.scale == ScalePercent {
		return r.raw.String() + "%"
	}

	return r.raw.String()
}

// MarshalJSON renders the normalized fraction.
func (r Ratio) MarshalJSON() ([]byte, error) {
	return []byte(r.Decimal().String()), nil
}

func (s Scale) String() string {
	switch s {
	case ScaleFraction:
		return "fraction"
	case ScalePercent:
		return "percent"
	default:
		return fmt.Sprintf("Scale(%d)", uint8(s))
	}
}
