package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses an upstream numeric string. Empty strings are rejected
// so that missing fields surface as malformed responses.
func ParseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("field %q is empty", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %q: %w", field, err)
	}
	return d, nil
}

// Hundred is used to turn fractional changes into percentages.
var Hundred = decimal.NewFromInt(100)
