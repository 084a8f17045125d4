package services

import (
	"context"
	"errors"

	"box-mining-service/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountLedger owns users.goblin_points. The only writer is Credit.
type AccountLedger struct {
	DB *gorm.DB
}

func NewAccountLedger(db *gorm.DB) *AccountLedger {
	return &AccountLedger{DB: db}
}

func (l *AccountLedger) WithTx(tx *gorm.DB) *AccountLedger {
	return &AccountLedger{DB: tx}
}

// Credit adds a non-negative amount to the user's balance and returns the new balance.
// The increment is a single UPDATE so either all of it applies or none of it does.
func (l *AccountLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}

	var balance decimal.Decimal
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("goblin_points", gorm.Expr("goblin_points + ?", amount))
		if res.Error != nil {
			return internalError("credit points", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNoActiveUser
		}

		var u models.User
		if err := tx.Select("id", "goblin_points").Where("id = ?", userID).First(&u).Error; err != nil {
			return internalError("read balance", err)
		}
		balance = u.GoblinPoints
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Balance reads the current balance.
func (l *AccountLedger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var u models.User
	if err := l.DB.WithContext(ctx).Select("id", "goblin_points").Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrNoActiveUser
		}
		return decimal.Zero, internalError("read balance", err)
	}
	return u.GoblinPoints, nil
}
