package model

import "time"

// User is a read-only view of the identity service's users. ReferrerID is a weak
// back-reference forming a forest; this service only ever reads it.
type User struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferrerID  *int64    `gorm:"index" json:"referrer_id,omitempty"`
	DisplayName string    `gorm:"type:varchar(128);not null;default:''" json:"display_name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}
