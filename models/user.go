package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is the local player record. GoblinPoints is the account balance and only grows through box claims.
type User struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	XUsername      string          `gorm:"size:64;uniqueIndex;not null" json:"xUsername"`
	FollowersCount int64           `gorm:"not null;default:0" json:"followersCount"`
	GoblinPoints   decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0;index" json:"goblinPoints"`
	ProfileImage   *string         `gorm:"type:text" json:"profileImage,omitempty"`
	ReferralCode   *string         `gorm:"size:64;uniqueIndex" json:"referralCode,omitempty"`
	ReferralPoints decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"referralPoints"`
	Timestamps
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
