package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"box-mining-service/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BoxLedger reads and writes user_boxes rows. Every mutation is conditional on opened = false,
// so an opened box never changes again.
type BoxLedger struct {
	DB *gorm.DB
}

func NewBoxLedger(db *gorm.DB) *BoxLedger {
	return &BoxLedger{DB: db}
}

// WithTx scopes the ledger to a transaction.
func (l *BoxLedger) WithTx(tx *gorm.DB) *BoxLedger {
	return &BoxLedger{DB: tx}
}

// FindOpen returns the user's unopened box, or nil when there is none.
func (l *BoxLedger) FindOpen(ctx context.Context, userID string) (*models.UserBox, error) {
	return l.findOne(ctx, l.DB.Where("user_id = ? AND opened = ?", userID, false))
}

// FindOpenForTemplate narrows FindOpen to one template.
func (l *BoxLedger) FindOpenForTemplate(ctx context.Context, userID, templateID string) (*models.UserBox, error) {
	return l.findOne(ctx, l.DB.Where("user_id = ? AND template_id = ? AND opened = ?", userID, templateID, false))
}

func (l *BoxLedger) findOne(ctx context.Context, scope *gorm.DB) (*models.UserBox, error) {
	var box models.UserBox
	if err := scope.WithContext(ctx).Order("start_time DESC").First(&box).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, internalError("load user box", err)
	}
	if err := box.Validate(); err != nil {
		return nil, internalError("validate user box", err)
	}
	return &box, nil
}

// Create inserts a new box. A second unopened box for the same user trips the partial
// unique index and is reported as ErrDuplicateActiveInstance.
func (l *BoxLedger) Create(ctx context.Context, box *models.UserBox) error {
	if err := l.DB.WithContext(ctx).Create(box).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActiveInstance
		}
		return internalError("create user box", err)
	}
	return nil
}

// MarkMissionCompleted flips missionCompleted on an unopened box and reports rows touched.
func (l *BoxLedger) MarkMissionCompleted(ctx context.Context, boxID string) (int64, error) {
	res := l.DB.WithContext(ctx).Model(&models.UserBox{}).
		Where("id = ? AND opened = ?", boxID, false).
		Update("mission_completed", true)
	if res.Error != nil {
		return 0, internalError("complete mission", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkOpened is the terminal opened=false→true transition. Exactly one concurrent caller sees 1 row.
func (l *BoxLedger) MarkOpened(ctx context.Context, boxID string, openedAt time.Time, finalPrize decimal.Decimal) (int64, error) {
	res := l.DB.WithContext(ctx).Model(&models.UserBox{}).
		Where("id = ? AND opened = ?", boxID, false).
		Updates(map[string]any{
			"opened":       true,
			"opened_at":    openedAt,
			"prize_amount": finalPrize,
		})
	if res.Error != nil {
		return 0, internalError("open user box", res.Error)
	}
	return res.RowsAffected, nil
}

// countOpen counts unopened boxes for a user. The index keeps it at 0 or 1.
func (l *BoxLedger) countOpen(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := l.DB.WithContext(ctx).Model(&models.UserBox{}).
		Where("user_id = ? AND opened = ?", userID, false).
		Count(&n).Error; err != nil {
		return 0, internalError("count open boxes", err)
	}
	return n, nil
}

// history lists every box of a user, newest first.
func (l *BoxLedger) history(ctx context.Context, userID string) ([]models.UserBox, error) {
	var boxes []models.UserBox
	if err := l.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Find(&boxes).Error; err != nil {
		return nil, internalError("list user boxes", err)
	}
	return boxes, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
