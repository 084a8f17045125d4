package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PrizeType is decided once, when mining starts
type PrizeType string

const (
	PrizeTypeNormal PrizeType = "NORMAL"
	PrizeTypeGolden PrizeType = "GOLDEN"
)

// MiningCooldown is the fixed delay between start and readiness.
const MiningCooldown = 24 * time.Hour

// UserBox is one mining attempt by one user against one template.
// Rows are kept as history once opened.
type UserBox struct {
	ID               string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID           string          `gorm:"type:varchar(36);not null;index" json:"userId"`
	TemplateID       string          `gorm:"type:varchar(36);not null;index" json:"templateId"`
	Opened           bool            `gorm:"not null;default:false" json:"opened"`
	MissionCompleted bool            `gorm:"not null;default:false" json:"missionCompleted"`
	StartTime        time.Time       `gorm:"not null" json:"startTime"`
	ReadyAt          time.Time       `gorm:"not null" json:"readyAt"`
	PrizeType        PrizeType       `gorm:"type:varchar(16);not null" json:"prizeType"`
	PrizeAmount      decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"prizeAmount"`
	OpenedAt         *time.Time      `json:"openedAt,omitempty"`
	PromoValid       bool            `gorm:"not null;default:false" json:"promoValid"`
	PromoCodeUsed    *string         `json:"promoCodeUsed,omitempty"`
	Timestamps
}

func (b *UserBox) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// IsReady reports whether the cooldown has elapsed at now.
func (b *UserBox) IsReady(now time.Time) bool {
	return !now.Before(b.ReadyAt)
}

// Validate rejects rows that could not have been written by the engine.
func (b *UserBox) Validate() error {
	switch {
	case b.ID == "" || b.UserID == "" || b.TemplateID == "":
		return fmt.Errorf("user box: missing identifiers")
	case b.PrizeType != PrizeTypeNormal && b.PrizeType != PrizeTypeGolden:
		return fmt.Errorf("user box %s: unknown prize type %q", b.ID, b.PrizeType)
	case b.PrizeAmount.IsNegative():
		return fmt.Errorf("user box %s: negative prize amount %s", b.ID, b.PrizeAmount)
	case b.ReadyAt.Before(b.StartTime):
		return fmt.Errorf("user box %s: readyAt precedes startTime", b.ID)
	case b.Opened && b.OpenedAt == nil:
		return fmt.Errorf("user box %s: opened without openedAt", b.ID)
	}
	return nil
}
