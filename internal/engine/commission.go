package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Commission computes the platform commission for an execution:
// value × rate / 100. A zero rate yields a zero commission; an unset
// session rate must stay zero, never a historical fallback constant.
func Commission(value, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return value.Mul(rate).Div(hundred)
}

// ConvenienceFee computes the per-pledge convenience fee from the session's
// fee configuration: a flat amount, or a percentage of the pledge value.
func ConvenienceFee(feeType string, feeAmount, pledgeValue decimal.Decimal) decimal.Decimal {
	switch feeType {
	case "percent":
		return pledgeValue.Mul(feeAmount).Div(hundred)
	case "flat":
		return feeAmount
	default:
		return decimal.Zero
	}
}
