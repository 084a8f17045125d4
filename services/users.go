// services/users.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"box-mining-service/models"

	"gorm.io/gorm"
)

// UserDirectory maps authenticated usernames to local user rows.
type UserDirectory struct {
	DB      *gorm.DB
	Timeout time.Duration
}

func NewUserDirectory(db *gorm.DB, timeout time.Duration) *UserDirectory {
	return &UserDirectory{DB: db, Timeout: timeout}
}

// FindByUsername returns ErrUserNotFound for unknown or blank usernames.
func (d *UserDirectory) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}
	ctx, cancel := withStoreTimeout(ctx, d.Timeout)
	defer cancel()

	var user models.User
	if err := d.DB.WithContext(ctx).Where("x_username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("load user", err)
	}
	return &user, nil
}
