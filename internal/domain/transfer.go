// internal/domain/transfer.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is a token movement observed on the ledger, normalized across providers
type Transfer struct {
	To        string
	From      string
	Amount    decimal.Decimal // human units
	Timestamp time.Time
	TxID      string
	Provider  string
}

// TransferQuery describes a provider lookup of recent incoming transfers
type TransferQuery struct {
	Address  string
	Contract string
	Limit    int
	APIKey   string
}
