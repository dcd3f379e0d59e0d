package model

import (
	"time"
)

// Order is the slice of a rental order this service reads and writes. Amounts are
// minor currency units. ReferrerID is the renter's referrer captured when the order
// was created and is never re-resolved. CommissionFailedAt is set when the commission
// job was given up on; such orders wait for an operator and are not swept again.
type Order struct {
	ID                    int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo               string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	SourceUserID          int64      `gorm:"index;not null" json:"source_user_id"`
	ReferrerID            *int64     `gorm:"index" json:"referrer_id,omitempty"`
	TotalAmount           int64      `gorm:"not null" json:"total_amount"`
	PaidAt                *time.Time `gorm:"index" json:"paid_at,omitempty"`
	CommissionProcessed   bool       `gorm:"not null;default:false;index" json:"commission_processed"`
	CommissionProcessedAt *time.Time `json:"commission_processed_at,omitempty"`
	CommissionFailedAt    *time.Time `gorm:"index" json:"commission_failed_at,omitempty"`
	CommissionFailure     string     `gorm:"type:varchar(512);not null;default:''" json:"commission_failure,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
