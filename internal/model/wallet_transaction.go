package model

import (
	"time"
)

const (
	TransactionTypeCommission = "commission"
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypeRefund     = "refund"
	TransactionTypeBonus      = "bonus"
)

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
)

const (
	ReferenceTypeCommission = "commission"
	ReferenceTypeWithdrawal = "withdrawal"
)

// WalletTransaction is an append-only ledger entry. Rows are never updated except for
// the pending -> completed settlement of a withdrawal. BalanceBefore and BalanceAfter
// are read from the locked wallet row at write time, never taken from the caller.
type WalletTransaction struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	WalletID      int64      `gorm:"index:idx_wallet_created,priority:1;not null" json:"wallet_id"`
	UserID        int64      `gorm:"index;not null" json:"user_id"`
	Type          string     `gorm:"type:varchar(20);not null" json:"type"`
	Direction     string     `gorm:"type:varchar(10);not null" json:"direction"`
	Amount        int64      `gorm:"not null" json:"amount"` // always positive
	BalanceBefore int64      `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64      `gorm:"not null" json:"balance_after"`
	ReferenceType string     `gorm:"type:varchar(32);index:idx_reference,priority:1" json:"reference_type,omitempty"`
	ReferenceID   string     `gorm:"type:varchar(64);index:idx_reference,priority:2" json:"reference_id,omitempty"`
	Description   string     `gorm:"type:varchar(256)" json:"description"`
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index:idx_wallet_created,priority:2" json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}

// SignedAmount is the transaction's effect on the wallet balance.
func (t *WalletTransaction) SignedAmount() int64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}
