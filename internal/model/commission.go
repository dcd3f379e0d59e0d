package model

import (
	"time"
)

const CommissionStatusApproved = "approved"

const (
	Tier1 = 1
	Tier2 = 2
)

// Commission is the immutable proof of one tier's payout for an order. At most one
// row exists per (order, tier, affiliate).
type Commission struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CommissionNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"commission_no"`
	OrderID             int64     `gorm:"uniqueIndex:uk_order_tier_affiliate,priority:1;not null" json:"order_id"`
	Tier                int       `gorm:"uniqueIndex:uk_order_tier_affiliate,priority:2;not null" json:"tier"`
	AffiliateID         int64     `gorm:"uniqueIndex:uk_order_tier_affiliate,priority:3;index;not null" json:"affiliate_id"`
	SourceUserID        int64     `gorm:"index;not null" json:"source_user_id"`
	OrderAmount         int64     `gorm:"not null" json:"order_amount"`
	CommissionRateBps   int64     `gorm:"not null" json:"commission_rate_bps"` // percentage x100, 10% = 1000
	CommissionAmount    int64     `gorm:"not null" json:"commission_amount"`
	Status              string    `gorm:"type:varchar(20);not null" json:"status"`
	WalletTransactionID *int64    `json:"wallet_transaction_id,omitempty"`
	ApprovedAt          time.Time `gorm:"not null" json:"approved_at"`
	CreatedAt           time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Commission) TableName() string {
	return "commission"
}
