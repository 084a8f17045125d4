package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Points and prizes go over the wire as JSON numbers, like the web client expects.
	decimal.MarshalJSONWithoutQuotes = true
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}
