package tron

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// scaleAmount converts an integer base-unit string into human units
func scaleAmount(raw string, decimals int32) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if !v.IsInteger() || v.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid base-unit amount %q", raw)
	}
	return v.Shift(-decimals), nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
