package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation = "23505"

	pendingAmountIndex = "ux_deposit_orders_pending_amount"
	txIDIndex          = "ux_deposit_orders_tx_id"
)

// uniqueViolationOn reports whether err is a unique violation of the named index
func uniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
	}
	return false
}
