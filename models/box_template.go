package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BoxType separates house boxes from partner-sponsored ones
type BoxType string

const (
	BoxTypeNormal  BoxType = "normal"
	BoxTypePartner BoxType = "partner"
)

// BoxTemplate is a catalog entry users can start mining. Read-only at runtime.
type BoxTemplate struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string          `gorm:"not null" json:"name"`
	Slug         string          `gorm:"size:128;uniqueIndex;not null" json:"slug"`
	ImageURL     string          `gorm:"type:text;not null" json:"imageUrl"` // absolute URL or R2 object key
	NormalPrize  decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"normalPrize"`
	GoldenPrize  decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"goldenPrize"`
	GoldenChance float64         `gorm:"not null" json:"goldenChance"`
	Active       bool            `gorm:"not null;index" json:"active"`
	MissionURL   string          `gorm:"type:text;not null" json:"missionUrl"`
	MissionDesc  string          `gorm:"type:text;not null" json:"missionDesc"`
	BoxType      BoxType         `gorm:"type:varchar(16);not null" json:"boxType"`
	PromoCode    *string         `json:"-"`
	Timestamps
}

func (t *BoxTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Slug == "" {
		t.Slug = slug.Make(t.Name)
	}
	if t.BoxType == "" {
		t.BoxType = BoxTypeNormal
	}
	return nil
}

// Validate checks the catalog invariants. Rows failing it are never served.
func (t *BoxTemplate) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("box template: missing id")
	case t.NormalPrize.IsNegative():
		return fmt.Errorf("box template %s: negative normal prize %s", t.ID, t.NormalPrize)
	case t.GoldenPrize.LessThan(t.NormalPrize):
		return fmt.Errorf("box template %s: golden prize %s below normal prize %s", t.ID, t.GoldenPrize, t.NormalPrize)
	case t.GoldenChance < 0 || t.GoldenChance > 1 || t.GoldenChance != t.GoldenChance:
		return fmt.Errorf("box template %s: golden chance %v outside [0,1]", t.ID, t.GoldenChance)
	case t.BoxType != BoxTypeNormal && t.BoxType != BoxTypePartner:
		return fmt.Errorf("box template %s: unknown box type %q", t.ID, t.BoxType)
	}
	return nil
}
