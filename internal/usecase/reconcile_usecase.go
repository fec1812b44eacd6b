// internal/usecase/reconcile_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deposit-service/internal/domain"
	"deposit-service/internal/id"
	"deposit-service/internal/metrics"
	"deposit-service/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TransferSource lists recent incoming transfers for an address, newest first
type TransferSource interface {
	FetchRecentTransfers(ctx context.Context, address string, limit int) []domain.Transfer
}

type ReconcileSettings struct {
	FetchLimit  int
	SweepBatch  int
	Concurrency int
}

// ReconcileUsecase drives verification of pending orders against the ledger,
// on demand and from the periodic sweep
type ReconcileUsecase struct {
	repo     repository.OrderRepository
	source   TransferSource
	matcher  *Matcher
	settler  *SettlementEngine
	notifier Notifier
	settings ReconcileSettings
	now      func() time.Time
	logger   *zap.Logger
}

func NewReconcileUsecase(
	repo repository.OrderRepository,
	source TransferSource,
	matcher *Matcher,
	settler *SettlementEngine,
	notifier Notifier,
	settings ReconcileSettings,
	logger *zap.Logger,
) *ReconcileUsecase {
	if settings.SweepBatch <= 0 {
		settings.SweepBatch = 50
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.FetchLimit <= 0 {
		settings.FetchLimit = 50
	}
	return &ReconcileUsecase{
		repo:     repo,
		source:   source,
		matcher:  matcher,
		settler:  settler,
		notifier: notifier,
		settings: settings,
		now:      time.Now,
		logger:   logger,
	}
}

// VerifyOrder checks one order against the ledger right now
func (uc *ReconcileUsecase) VerifyOrder(ctx context.Context, orderID string) (domain.VerifyResult, error) {
	order, err := uc.repo.GetByID(ctx, orderID)
	if err != nil {
		return domain.VerifyResult{}, err
	}

	if res, done := terminalResult(order); done {
		return res, nil
	}

	if !uc.now().Before(order.ExpireAt) {
		return uc.currentResult(ctx, orderID)
	}

	transfers := uc.source.FetchRecentTransfers(ctx, order.ReceiveAddress, uc.settings.FetchLimit)

	outcome, txID, err := uc.matchAndSettle(ctx, order, transfers, domain.TriggerVerify)
	if err != nil {
		return domain.VerifyResult{}, err
	}

	switch outcome {
	case domain.SettleSettled:
		return domain.VerifyResult{Outcome: domain.VerifySettled, TxID: txID}, nil
	case domain.SettleAlreadySettled:
		return uc.currentResult(ctx, orderID)
	default:
		return domain.VerifyResult{Outcome: domain.VerifyNoMatch}, nil
	}
}

// ReconcilePending sweeps a bounded batch of open orders. Transfers are
// fetched once per receiving address; per-order failures are logged and the
// sweep continues.
func (uc *ReconcileUsecase) ReconcilePending(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	orders, err := uc.repo.ListOpenPending(ctx, uc.now(), uc.settings.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending orders: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	byAddress := make(map[string][]*domain.DepositOrder)
	for _, o := range orders {
		byAddress[o.ReceiveAddress] = append(byAddress[o.ReceiveAddress], o)
	}

	transfers := make(map[string][]domain.Transfer, len(byAddress))
	for address := range byAddress {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		transfers[address] = uc.source.FetchRecentTransfers(ctx, address, uc.settings.FetchLimit)
	}

	results := make([]domain.SettleOutcome, len(orders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.settings.Concurrency)
	for i, order := range orders {
		g.Go(func() error {
			outcome, _, err := uc.matchAndSettle(gctx, order, transfers[order.ReceiveAddress], domain.TriggerScheduler)
			if err != nil {
				uc.logger.Error("failed to reconcile order",
					zap.String("order_id", order.OrderID),
					zap.Error(err))
				return nil
			}
			results[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	settled := 0
	for _, r := range results {
		if r == domain.SettleSettled {
			settled++
		}
	}

	uc.logger.Info("reconciliation sweep finished",
		zap.Int("orders", len(orders)),
		zap.Int("addresses", len(byAddress)),
		zap.Int("settled", settled),
		zap.Duration("took", time.Since(start)))

	return settled, nil
}

// ExpireDue moves pending orders past their validity window to expired and
// tells their owners
func (uc *ReconcileUsecase) ExpireDue(ctx context.Context) (int, error) {
	expired, err := uc.repo.ExpireDue(ctx, uc.now(), uc.settings.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to expire due orders: %w", err)
	}

	for _, order := range expired {
		metrics.ExpiredTotal.Inc()
		uc.logger.Info("deposit order expired",
			zap.String("order_id", order.OrderID),
			zap.String("user_id", order.UserID))
		uc.notifyExpired(ctx, order)
	}
	return len(expired), nil
}

// matchAndSettle settles the order with the first matching transfer. A
// transfer already consumed by another order is excluded and matching retried.
// Returns an empty outcome when nothing matches.
func (uc *ReconcileUsecase) matchAndSettle(ctx context.Context, order *domain.DepositOrder, transfers []domain.Transfer, trigger domain.Trigger) (domain.SettleOutcome, string, error) {
	exclude := map[string]struct{}{}

	for {
		t, ok := uc.matcher.Match(order, transfers, uc.now(), exclude)
		if !ok {
			return "", "", nil
		}

		outcome, err := uc.settler.Settle(ctx, order, t, trigger)
		if errors.Is(err, domain.ErrTransferAlreadyUsed) {
			uc.logger.Warn("matched transfer already settled another order",
				zap.String("order_id", order.OrderID),
				zap.String("tx_id", t.TxID))
			exclude[t.TxID] = struct{}{}
			continue
		}
		if err != nil {
			return "", "", err
		}
		return outcome, t.TxID, nil
	}
}

func (uc *ReconcileUsecase) expireOne(ctx context.Context, order *domain.DepositOrder, now time.Time) error {
	expired, err := uc.repo.MarkExpired(ctx, order.OrderID, now)
	if err != nil {
		return err
	}
	if expired {
		metrics.ExpiredTotal.Inc()
		order.Status = domain.OrderStatusExpired
		uc.notifyExpired(ctx, order)
	}
	return nil
}

// currentResult re-reads the order after a lost race and reports its final state
func (uc *ReconcileUsecase) currentResult(ctx context.Context, orderID string) (domain.VerifyResult, error) {
	order, err := uc.repo.GetByID(ctx, orderID)
	if err != nil {
		return domain.VerifyResult{}, err
	}
	if res, done := terminalResult(order); done {
		return res, nil
	}

	// still pending: settlement was refused because the window closed
	if now := uc.now(); !now.Before(order.ExpireAt) {
		if err := uc.expireOne(ctx, order, now); err != nil {
			return domain.VerifyResult{}, err
		}
		if order.Status == domain.OrderStatusExpired {
			return domain.VerifyResult{Outcome: domain.VerifyAlreadyExpired}, nil
		}
		// lost the expiry race to a settler or canceler
		latest, err := uc.repo.GetByID(ctx, orderID)
		if err != nil {
			return domain.VerifyResult{}, err
		}
		if res, done := terminalResult(latest); done {
			return res, nil
		}
	}
	return domain.VerifyResult{Outcome: domain.VerifyNoMatch}, nil
}

func terminalResult(order *domain.DepositOrder) (domain.VerifyResult, bool) {
	switch order.Status {
	case domain.OrderStatusPaid:
		res := domain.VerifyResult{Outcome: domain.VerifyAlreadySettled}
		if order.TxID != nil {
			res.TxID = *order.TxID
		}
		return res, true
	case domain.OrderStatusExpired:
		return domain.VerifyResult{Outcome: domain.VerifyAlreadyExpired}, true
	case domain.OrderStatusCanceled:
		return domain.VerifyResult{Outcome: domain.VerifyNotPending}, true
	}
	return domain.VerifyResult{}, false
}

func (uc *ReconcileUsecase) notifyExpired(ctx context.Context, order *domain.DepositOrder) {
	if uc.notifier == nil {
		return
	}
	n := domain.Notification{
		EventID:   id.NewEventID(),
		Type:      domain.EventDepositExpired,
		UserID:    order.UserID,
		OrderID:   order.OrderID,
		Title:     "Deposit order expired",
		Body:      fmt.Sprintf("Order %s for %s %s expired before payment was seen. Please create a new order.", order.OrderID, order.ExpectedAmount.StringFixed(AmountScale), order.Token),
		CreatedAt: uc.now().UTC(),
	}
	if err := uc.notifier.NotifyUser(ctx, n); err != nil {
		uc.logger.Warn("failed to notify user of expiry",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}
}
