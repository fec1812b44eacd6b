// internal/usecase/order_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deposit-service/internal/domain"
	"deposit-service/internal/id"
	"deposit-service/internal/metrics"
	"deposit-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxAllocationAttempts = 5

	defaultListLimit = 10
	maxListLimit     = 100
)

// OrderSettings are the deposit parameters shared by every new order
type OrderSettings struct {
	ReceiveAddress string
	Network        string
	Token          string
	MinAmount      decimal.Decimal
	Validity       time.Duration
}

type OrderUsecase struct {
	repo      repository.OrderRepository
	allocator *SuffixAllocator
	settings  OrderSettings
	now       func() time.Time
	logger    *zap.Logger
}

func NewOrderUsecase(
	repo repository.OrderRepository,
	allocator *SuffixAllocator,
	settings OrderSettings,
	logger *zap.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		repo:      repo,
		allocator: allocator,
		settings:  settings,
		now:       time.Now,
		logger:    logger,
	}
}

// CreateOrder opens a pending deposit with a discriminator that is unique
// among pending orders on the receiving address
func (uc *OrderUsecase) CreateOrder(ctx context.Context, userID string, baseAmount decimal.Decimal) (*domain.DepositOrder, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if uc.settings.ReceiveAddress == "" {
		uc.logger.Error("refusing deposit order, receiving address not configured")
		return nil, domain.ErrAddressNotConfigured
	}

	base := baseAmount.Truncate(2)
	if !base.IsPositive() {
		if uc.settings.MinAmount.IsPositive() {
			return nil, domain.ErrBelowMinimum
		}
		return nil, domain.ErrInvalidAmount
	}
	if base.LessThan(uc.settings.MinAmount) {
		return nil, domain.ErrBelowMinimum
	}

	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		d, expected := uc.allocator.Draw(base)

		taken, err := uc.repo.PendingAmountExists(ctx, uc.settings.ReceiveAddress, expected)
		if err != nil {
			return nil, fmt.Errorf("failed to check amount availability: %w", err)
		}
		if taken {
			metrics.AllocationCollisionsTotal.Inc()
			uc.logger.Debug("discriminator collision",
				zap.Int("attempt", attempt),
				zap.String("expected_amount", expected.StringFixed(AmountScale)))
			continue
		}

		now := uc.now().UTC()
		order := &domain.DepositOrder{
			OrderID:        id.GenerateID("dep"),
			UserID:         userID,
			Network:        uc.settings.Network,
			Token:          uc.settings.Token,
			ReceiveAddress: uc.settings.ReceiveAddress,
			BaseAmount:     base,
			Discriminator:  d,
			ExpectedAmount: expected,
			Status:         domain.OrderStatusPending,
			CreatedAt:      now,
			ExpireAt:       now.Add(uc.settings.Validity),
		}

		if err := uc.repo.Create(ctx, order); err != nil {
			// another instance took the same amount between check and insert
			if errors.Is(err, domain.ErrDuplicateAmount) {
				metrics.AllocationCollisionsTotal.Inc()
				continue
			}
			return nil, fmt.Errorf("failed to create deposit order: %w", err)
		}

		metrics.OrdersCreatedTotal.Inc()
		uc.logger.Info("deposit order created",
			zap.String("order_id", order.OrderID),
			zap.String("user_id", userID),
			zap.String("base_amount", base.StringFixed(2)),
			zap.String("expected_amount", expected.StringFixed(AmountScale)),
			zap.Time("expire_at", order.ExpireAt))

		return order, nil
	}

	uc.logger.Warn("discriminator allocation exhausted",
		zap.String("user_id", userID),
		zap.String("base_amount", base.StringFixed(2)))
	return nil, domain.ErrAllocationExhausted
}

// GetOrder returns an order by id
func (uc *OrderUsecase) GetOrder(ctx context.Context, orderID string) (*domain.DepositOrder, error) {
	return uc.repo.GetByID(ctx, orderID)
}

// ListOrders returns the user's most recent orders, newest first
func (uc *OrderUsecase) ListOrders(ctx context.Context, filter domain.ListFilter) ([]*domain.DepositOrder, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return nil, domain.ErrInvalidUserID
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return uc.repo.ListByUser(ctx, filter)
}

// CancelOrder moves a pending order to canceled. When userID is set the order
// must belong to that user.
func (uc *OrderUsecase) CancelOrder(ctx context.Context, orderID, userID string) (domain.CancelOutcome, error) {
	order, err := uc.repo.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if userID != "" && order.UserID != userID {
		return "", domain.ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return domain.CancelNotPending, nil
	}

	// the window already closed; record that instead of a cancel
	if now := uc.now(); !now.Before(order.ExpireAt) {
		expired, err := uc.repo.MarkExpired(ctx, orderID, now)
		if err != nil {
			return "", err
		}
		if expired {
			metrics.ExpiredTotal.Inc()
			uc.logger.Info("deposit order expired on cancel",
				zap.String("order_id", orderID),
				zap.String("user_id", order.UserID))
		}
		return domain.CancelNotPending, nil
	}

	canceled, err := uc.repo.Cancel(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !canceled {
		return domain.CancelNotPending, nil
	}

	uc.logger.Info("deposit order canceled",
		zap.String("order_id", orderID),
		zap.String("user_id", order.UserID))
	return domain.CancelCanceled, nil
}
