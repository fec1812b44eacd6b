// internal/usecase/settlement.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"deposit-service/internal/domain"
	"deposit-service/internal/id"
	"deposit-service/internal/metrics"
	"deposit-service/internal/repository"

	"go.uber.org/zap"
)

// Notifier delivers best-effort messages to users and the operations channel
type Notifier interface {
	NotifyUser(ctx context.Context, n domain.Notification) error
	NotifyOps(ctx context.Context, n domain.Notification) error
}

// SettlementEngine applies the pending -> paid transition and the balance
// credit exactly once per order
type SettlementEngine struct {
	repo     repository.OrderRepository
	notifier Notifier
	now      func() time.Time
	logger   *zap.Logger
}

func NewSettlementEngine(repo repository.OrderRepository, notifier Notifier, logger *zap.Logger) *SettlementEngine {
	return &SettlementEngine{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

// Settle marks the order paid by transfer t. Losing a race to another settler,
// or arriving after expiry, yields SettleAlreadySettled with a nil error.
func (s *SettlementEngine) Settle(ctx context.Context, order *domain.DepositOrder, t domain.Transfer, trigger domain.Trigger) (domain.SettleOutcome, error) {
	paidAt := s.now().UTC()

	settled, err := s.repo.MarkPaid(ctx, domain.Settlement{
		OrderID:     order.OrderID,
		TxID:        t.TxID,
		FromAddress: t.From,
		PaidAt:      paidAt,
	})
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues(string(trigger), "error").Inc()
		return "", fmt.Errorf("failed to settle order %s: %w", order.OrderID, err)
	}
	if !settled {
		metrics.SettlementsTotal.WithLabelValues(string(trigger), string(domain.SettleAlreadySettled)).Inc()
		s.logger.Info("settlement skipped, order no longer pending",
			zap.String("order_id", order.OrderID),
			zap.String("tx_id", t.TxID),
			zap.String("trigger", string(trigger)))
		return domain.SettleAlreadySettled, nil
	}

	metrics.SettlementsTotal.WithLabelValues(string(trigger), string(domain.SettleSettled)).Inc()
	s.logger.Info("deposit settled",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", order.UserID),
		zap.String("tx_id", t.TxID),
		zap.String("provider", t.Provider),
		zap.String("credited", order.BaseAmount.StringFixed(2)),
		zap.String("trigger", string(trigger)))

	s.notifySettled(ctx, order, t, paidAt)
	return domain.SettleSettled, nil
}

func (s *SettlementEngine) notifySettled(ctx context.Context, order *domain.DepositOrder, t domain.Transfer, paidAt time.Time) {
	if s.notifier == nil {
		return
	}

	meta := map[string]string{
		"tx_id":           t.TxID,
		"from_address":    t.From,
		"base_amount":     order.BaseAmount.StringFixed(2),
		"expected_amount": order.ExpectedAmount.StringFixed(AmountScale),
		"token":           order.Token,
		"network":         order.Network,
	}

	userMsg := domain.Notification{
		EventID:   id.NewEventID(),
		Type:      domain.EventDepositCredited,
		UserID:    order.UserID,
		OrderID:   order.OrderID,
		Title:     "Deposit credited",
		Body:      fmt.Sprintf("%s %s has been credited to your balance.", order.BaseAmount.StringFixed(2), order.Token),
		Metadata:  meta,
		CreatedAt: paidAt,
	}
	if err := s.notifier.NotifyUser(ctx, userMsg); err != nil {
		s.logger.Warn("failed to notify user of settlement",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}

	opsMsg := userMsg
	opsMsg.EventID = id.NewEventID()
	opsMsg.Type = domain.EventDepositSettled
	opsMsg.Title = "Deposit settled"
	opsMsg.Body = fmt.Sprintf("user %s paid %s %s for order %s (tx %s)",
		order.UserID, order.ExpectedAmount.StringFixed(AmountScale), order.Token, order.OrderID, t.TxID)
	if err := s.notifier.NotifyOps(ctx, opsMsg); err != nil {
		s.logger.Warn("failed to notify ops of settlement",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}
}
