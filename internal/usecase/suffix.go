// internal/usecase/suffix.go
package usecase

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places the ledger match is performed at
const AmountScale = 4

// RandomSource draws integers uniformly from [0, n)
type RandomSource interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// SuffixAllocator draws the sub-cent discriminator appended to a base amount
type SuffixAllocator struct {
	digits int
	rnd    RandomSource
}

func NewSuffixAllocator(digits int, rnd RandomSource) *SuffixAllocator {
	if rnd == nil {
		rnd = globalRand{}
	}
	return &SuffixAllocator{digits: digits, rnd: rnd}
}

// Draw returns a discriminator in [1, 10^digits-1] and the resulting expected amount
func (a *SuffixAllocator) Draw(base decimal.Decimal) (int, decimal.Decimal) {
	span := pow10(a.digits) - 1
	d := 1 + a.rnd.IntN(span)
	return d, ExpectedAmount(base, d, a.digits)
}

// ExpectedAmount is truncate(base + d/10^digits, 4). Truncation, never rounding.
func ExpectedAmount(base decimal.Decimal, d, digits int) decimal.Decimal {
	return base.Add(decimal.New(int64(d), -int32(digits))).Truncate(AmountScale)
}

// TruncateAmount truncates an observed amount to the match scale
func TruncateAmount(v decimal.Decimal) decimal.Decimal {
	return v.Truncate(AmountScale)
}

func pow10(n int) int {
	p := 1
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
