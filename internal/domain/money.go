package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// BillingIncrementSeconds is the granularity stopped sessions are rounded up to.
	BillingIncrementSeconds int64 = 900
	secondsPerHour          int64 = 3600
)

var hundred = decimal.NewFromInt(100)

// RoundUpToIncrement rounds elapsed seconds up to the next billing increment.
func RoundUpToIncrement(elapsedSeconds int64) int64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return (elapsedSeconds + BillingIncrementSeconds - 1) / BillingIncrementSeconds * BillingIncrementSeconds
}

// ProrateCents returns round(seconds / 3600 * rateCents), half up.
func ProrateCents(seconds, rateCents int64) int64 {
	if seconds <= 0 || rateCents <= 0 {
		return 0
	}
	return (seconds*rateCents + secondsPerHour/2) / secondsPerHour
}

// AverageRateCents returns round(amountCents / hours) for a span of seconds.
func AverageRateCents(amountCents, seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return (amountCents*secondsPerHour*2 + seconds) / (2 * seconds)
}

// HoursFromSeconds converts seconds to hours with four decimal places.
func HoursFromSeconds(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).DivRound(decimal.NewFromInt(secondsPerHour), 4)
}

// LineTotalCents returns round(quantity * unitPriceCents).
func LineTotalCents(quantity decimal.Decimal, unitPriceCents int64) int64 {
	return quantity.Mul(decimal.NewFromInt(unitPriceCents)).Round(0).IntPart()
}

// TaxCents returns round(subtotal * rate / 100) where rate is a percentage.
func TaxCents(subtotalCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotalCents).Mul(rate).Div(hundred).Round(0).IntPart()
}

// ValidateTaxRate checks a percentage is within 0-100 with at most two decimals.
func ValidateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return BadRequestf("tax rate must be between 0 and 100")
	}
	if !rate.Equal(rate.Round(2)) {
		return BadRequestf("tax rate allows at most two decimal places")
	}
	return nil
}

// FormatCents renders cents as a plain two-decimal amount, e.g. 12345 -> "123.45".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseCents parses a decimal amount such as "123.45" into cents.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, BadRequestf("invalid amount %q", s)
	}
	if !d.Equal(d.Round(2)) {
		return 0, BadRequestf("amount %q has more than two decimal places", s)
	}
	return d.Shift(2).IntPart(), nil
}
