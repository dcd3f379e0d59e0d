package model

import (
	"time"
)

// Wallet holds one user's earned, withdrawable funds in minor units.
//
// Balance equals the sum of credit amounts minus the sum of debit amounts in the
// wallet's transaction log and never goes negative. PendingBalance tracks debits
// still waiting for payout settlement. TotalEarned and TotalWithdrawn only grow.
type Wallet struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance        int64     `gorm:"not null;default:0" json:"balance"`
	PendingBalance int64     `gorm:"not null;default:0" json:"pending_balance"`
	TotalEarned    int64     `gorm:"not null;default:0" json:"total_earned"`
	TotalWithdrawn int64     `gorm:"not null;default:0" json:"total_withdrawn"`
	Version        int       `gorm:"not null;default:0" json:"version"` // optimistic lock counter
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}
