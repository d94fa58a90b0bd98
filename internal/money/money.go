// Package money converts between display amounts and stored minor units.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of decimal places stored for every currency.
const MinorUnits = 2

var (
	ErrEmptyAmount   = errors.New("empty_amount")
	ErrInvalidAmount = errors.New("invalid_amount")
)

var amountNoise = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "", "\u00a0", "")

// Parse reads a display amount such as "$1,250.50" or "(20.00)" into minor
// units, rounding half away from zero past the second decimal place.
func Parse(raw string) (int64, error) {
	cleaned := amountNoise.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, ErrEmptyAmount
	}
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if negative {
		value = value.Neg()
	}
	minor := value.Shift(MinorUnits).Round(0)
	if !minor.IsInteger() || minor.Abs().GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// Format renders minor units as "USD 1,250.50".
func Format(minor int64, currency string) string {
	value := decimal.New(minor, -MinorUnits).StringFixed(MinorUnits)
	sign := ""
	if strings.HasPrefix(value, "-") {
		sign = "-"
		value = value[1:]
	}
	whole, frac, _ := strings.Cut(value, ".")
	formatted := sign + groupThousands(whole) + "." + frac
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return formatted
	}
	return currency + " " + formatted
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
