// internal/domain/order.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of a deposit order
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusCanceled OrderStatus = "canceled"
)

// IsTerminal reports whether no further transition is allowed from s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusExpired || s == OrderStatusCanceled
}

// DepositOrder is a pending request by a user to add funds
type DepositOrder struct {
	OrderID        string
	UserID         string
	Network        string
	Token          string
	ReceiveAddress string

	// Amounts
	BaseAmount     decimal.Decimal // credited on settlement, 2dp
	Discriminator  int
	ExpectedAmount decimal.Decimal // exact amount the payer must send, 4dp

	Status OrderStatus

	// Timestamps
	CreatedAt time.Time
	ExpireAt  time.Time
	PaidAt    *time.Time

	// Settlement
	TxID        *string
	FromAddress *string
}

// IsOpen reports whether the order is pending and still inside its validity window
func (o *DepositOrder) IsOpen(now time.Time) bool {
	return o.Status == OrderStatusPending && now.Before(o.ExpireAt)
}

// Settlement carries the facts recorded when an order is marked paid
type Settlement struct {
	OrderID     string
	TxID        string
	FromAddress string
	PaidAt      time.Time
}

// ListFilter narrows order listings for a single user
type ListFilter struct {
	UserID          string
	Limit           int
	IncludeCanceled bool
}
