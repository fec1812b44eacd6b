// internal/domain/result.go
package domain

// VerifyOutcome is the result of checking one order against the ledger
type VerifyOutcome string

const (
	VerifySettled        VerifyOutcome = "settled"
	VerifyNoMatch        VerifyOutcome = "no_match"
	VerifyAlreadyExpired VerifyOutcome = "already_expired"
	VerifyAlreadySettled VerifyOutcome = "already_settled"
	VerifyNotPending     VerifyOutcome = "not_pending"
)

// VerifyResult is returned by on-demand verification
type VerifyResult struct {
	Outcome VerifyOutcome `json:"result"`
	TxID    string        `json:"tx_id,omitempty"`
}

// SettleOutcome is the result of a settlement attempt
type SettleOutcome string

const (
	SettleSettled        SettleOutcome = "settled"
	SettleAlreadySettled SettleOutcome = "already_settled"
)

// CancelOutcome is the result of a cancellation attempt
type CancelOutcome string

const (
	CancelCanceled   CancelOutcome = "canceled"
	CancelNotPending CancelOutcome = "not_pending"
)

// Trigger identifies who initiated a settlement
type Trigger string

const (
	TriggerScheduler Trigger = "scheduler"
	TriggerVerify    Trigger = "verify"
)
