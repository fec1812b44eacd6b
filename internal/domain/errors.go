package domain

import "errors"

// Order creation
var (
	ErrBelowMinimum         = errors.New("amount below minimum deposit")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrAddressNotConfigured = errors.New("receiving address not configured")
	ErrAllocationExhausted  = errors.New("could not allocate a unique amount, system busy")
)

// Lookup and persistence
var (
	ErrOrderNotFound   = errors.New("deposit order not found")
	ErrDuplicateAmount = errors.New("expected amount already pending on address")
	ErrInvalidUserID   = errors.New("user ID required")
)

// Settlement
var (
	ErrTransferAlreadyUsed = errors.New("transfer already settled another order")
)
