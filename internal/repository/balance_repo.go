// internal/repository/balance_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type BalanceRepository interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

type balanceRepo struct {
	db *pgxpool.Pool
}

func NewBalanceRepository(db *pgxpool.Pool) BalanceRepository {
	return &balanceRepo{db: db}
}

// GetBalance returns zero for users never credited
func (r *balanceRepo) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var text string
	err := r.db.QueryRow(ctx, `SELECT balance::text FROM user_balances WHERE user_id = $1`, userID).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	balance, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q: %w", text, err)
	}
	return balance, nil
}

// creditBalance increments the balance in SQL so concurrent credits never lose updates
func creditBalance(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal, at time.Time) error {
	query := `
		INSERT INTO user_balances (user_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = user_balances.balance + EXCLUDED.balance,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := tx.Exec(ctx, query, userID, amount.StringFixed(2), at); err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}
