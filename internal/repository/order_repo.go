// internal/repository/order_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deposit-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepository interface {
	// Create inserts a pending order. Returns domain.ErrDuplicateAmount when the
	// expected amount is already pending on the same address.
	Create(ctx context.Context, order *domain.DepositOrder) error
	PendingAmountExists(ctx context.Context, address string, expected decimal.Decimal) (bool, error)
	GetByID(ctx context.Context, orderID string) (*domain.DepositOrder, error)
	ListByUser(ctx context.Context, filter domain.ListFilter) ([]*domain.DepositOrder, error)
	ListOpenPending(ctx context.Context, now time.Time, limit int) ([]*domain.DepositOrder, error)

	// MarkPaid moves a pending, unexpired order to paid and credits the owner's
	// balance in one transaction. Returns false when the order was no longer
	// pending or had expired.
	MarkPaid(ctx context.Context, s domain.Settlement) (bool, error)
	MarkExpired(ctx context.Context, orderID string, now time.Time) (bool, error)
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]*domain.DepositOrder, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
}

type orderRepo struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) OrderRepository {
	return &orderRepo{db: db}
}

const orderColumns = `
	order_id, user_id, network, token, receive_address,
	base_amount::text, discriminator, expected_amount::text,
	status, created_at, expire_at, paid_at, tx_id, from_address`

func (r *orderRepo) Create(ctx context.Context, order *domain.DepositOrder) error {
	query := `
		INSERT INTO deposit_orders (
			order_id, user_id, network, token, receive_address,
			base_amount, discriminator, expected_amount,
			status, created_at, expire_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		order.OrderID,
		order.UserID,
		order.Network,
		order.Token,
		order.ReceiveAddress,
		order.BaseAmount.StringFixed(2),
		order.Discriminator,
		order.ExpectedAmount.StringFixed(4),
		string(order.Status),
		order.CreatedAt,
		order.ExpireAt,
	)
	if err != nil {
		if uniqueViolationOn(err, pendingAmountIndex) {
			return domain.ErrDuplicateAmount
		}
		return fmt.Errorf("failed to create deposit order: %w", err)
	}
	return nil
}

func (r *orderRepo) PendingAmountExists(ctx context.Context, address string, expected decimal.Decimal) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM deposit_orders
			WHERE receive_address = $1 AND expected_amount = $2 AND status = 'pending'
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, address, expected.StringFixed(4)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending amount: %w", err)
	}
	return exists, nil
}

func (r *orderRepo) GetByID(ctx context.Context, orderID string) (*domain.DepositOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM deposit_orders WHERE order_id = $1`

	order, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get deposit order: %w", err)
	}
	return order, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, filter domain.ListFilter) ([]*domain.DepositOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM deposit_orders
		WHERE user_id = $1 AND ($2 OR status <> 'canceled')
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, filter.UserID, filter.IncludeCanceled, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *orderRepo) ListOpenPending(ctx context.Context, now time.Time, limit int) ([]*domain.DepositOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM deposit_orders
		WHERE status = 'pending' AND expire_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *orderRepo) MarkPaid(ctx context.Context, s domain.Settlement) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE deposit_orders
		SET status = 'paid', tx_id = $2, from_address = $3, paid_at = $4
		WHERE order_id = $1 AND status = 'pending' AND expire_at > $4
		RETURNING user_id, base_amount::text
	`

	var userID, baseText string
	err = tx.QueryRow(ctx, query, s.OrderID, s.TxID, s.FromAddress, s.PaidAt).Scan(&userID, &baseText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if uniqueViolationOn(err, txIDIndex) {
			return false, domain.ErrTransferAlreadyUsed
		}
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}

	base, err := decimal.NewFromString(baseText)
	if err != nil {
		return false, fmt.Errorf("invalid base amount %q: %w", baseText, err)
	}

	if err := creditBalance(ctx, tx, userID, base, s.PaidAt); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}

func (r *orderRepo) MarkExpired(ctx context.Context, orderID string, now time.Time) (bool, error) {
	query := `
		UPDATE deposit_orders
		SET status = 'expired'
		WHERE order_id = $1 AND status = 'pending' AND expire_at <= $2
	`

	result, err := r.db.Exec(ctx, query, orderID, now)
	if err != nil {
		return false, fmt.Errorf("failed to expire order: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *orderRepo) ExpireDue(ctx context.Context, now time.Time, limit int) ([]*domain.DepositOrder, error) {
	query := `
		UPDATE deposit_orders
		SET status = 'expired'
		WHERE order_id IN (
			SELECT order_id FROM deposit_orders
			WHERE status = 'pending' AND expire_at <= $1
			ORDER BY expire_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING ` + orderColumns

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to expire due orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *orderRepo) Cancel(ctx context.Context, orderID string) (bool, error) {
	query := `
		UPDATE deposit_orders
		SET status = 'canceled'
		WHERE order_id = $1 AND status = 'pending'
	`

	result, err := r.db.Exec(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func collectOrders(rows pgx.Rows) ([]*domain.DepositOrder, error) {
	defer rows.Close()

	var orders []*domain.DepositOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deposit orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*domain.DepositOrder, error) {
	var (
		o                    domain.DepositOrder
		status               string
		baseText, expectText string
	)

	err := row.Scan(
		&o.OrderID,
		&o.UserID,
		&o.Network,
		&o.Token,
		&o.ReceiveAddress,
		&baseText,
		&o.Discriminator,
		&expectText,
		&status,
		&o.CreatedAt,
		&o.ExpireAt,
		&o.PaidAt,
		&o.TxID,
		&o.FromAddress,
	)
	if err != nil {
		return nil, err
	}

	if o.BaseAmount, err = decimal.NewFromString(baseText); err != nil {
		return nil, fmt.Errorf("invalid base amount %q: %w", baseText, err)
	}
	if o.ExpectedAmount, err = decimal.NewFromString(expectText); err != nil {
		return nil, fmt.Errorf("invalid expected amount %q: %w", expectText, err)
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
