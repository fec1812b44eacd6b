// internal/usecase/matcher.go
package usecase

import (
	"time"

	"deposit-service/internal/chains/tron"
	"deposit-service/internal/domain"
)

// Matcher decides whether an observed transfer pays a given order
type Matcher struct {
	tolerance time.Duration
}

func NewMatcher(tolerance time.Duration) *Matcher {
	return &Matcher{tolerance: tolerance}
}

// Match returns the first transfer in newest-first order that pays the order.
// Transfers whose tx id is in exclude are skipped.
func (m *Matcher) Match(order *domain.DepositOrder, transfers []domain.Transfer, now time.Time, exclude map[string]struct{}) (domain.Transfer, bool) {
	if !order.IsOpen(now) {
		return domain.Transfer{}, false
	}

	earliest := order.CreatedAt.Add(-m.tolerance)
	expected := order.ExpectedAmount.Truncate(AmountScale)

	for _, t := range transfers {
		if _, skip := exclude[t.TxID]; skip {
			continue
		}
		if !tron.SameAddress(t.To, order.ReceiveAddress) {
			continue
		}
		if !TruncateAmount(t.Amount).Equal(expected) {
			continue
		}
		if t.Timestamp.Before(earliest) {
			continue
		}
		return t, true
	}
	return domain.Transfer{}, false
}
