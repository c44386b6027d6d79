package domain

import "time"

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalConfirmed WithdrawalStatus = "confirmed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

const (
	TriggerProfitClose = "profit_close"
	TriggerManual      = "manual"
	TriggerStrategy    = "strategy"
)

// Withdrawal is a queued profit transfer. Once confirmed, Amount and
// TxReference are immutable.
type Withdrawal struct {
	ID             string
	WalletRef      string
	TargetAddress  string
	Asset          string
	Amount         float64
	Network        string
	DestinationTag string
	Status         WithdrawalStatus
	TriggerType    string
	TxReference    string
	Attempts       int
	NextAttemptAt  time.Time // zero means eligible immediately
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AuditRecord is one entry in the append-only transfer audit trail. Every
// transfer attempt, successful or not, produces one. Records are never edited.
type AuditRecord struct {
	ID           string
	WithdrawalID string
	Method       string
	Asset        string
	Amount       float64
	Source       string
	Success      bool
	Reference    string
	Detail       string
	CreatedAt    time.Time
}
