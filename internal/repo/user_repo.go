// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for registered
// users, their role assignments, and role permissions.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// GetUserByChatID returns the registered user of chatID or ErrNotFound.
func GetUserByChatID(ctx context.Context, db *gorm.DB, chatID int64) (*domain.TelegramUser, error) {
	var u domain.TelegramUser
	err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser registers a chat and assigns it the given roles in one
// transaction. It returns ErrDuplicate when the chat is already registered.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.TelegramUser, roles ...string) (*domain.TelegramUser, error) {
	row := *u
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, r := range roles {
			if err := tx.Create(&domain.UserRole{ChatID: row.ChatID, RoleID: r}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &row, nil
}

// ListUserRoles returns the role ids assigned to chatID.
func ListUserRoles(ctx context.Context, db *gorm.DB, chatID int64) ([]string, error) {
	out := []string{}
	err := db.WithContext(ctx).
		Model(&domain.UserRole{}).
		Where("chat_id = ?", chatID).
		Order("role_id asc").
		Pluck("role_id", &out).Error
	return out, err
}

// AssignRole gives chatID the role; assigning an existing role is a no-op.
func AssignRole(ctx context.Context, db *gorm.DB, chatID int64, roleID string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.UserRole{ChatID: chatID, RoleID: roleID}).Error
}

// GrantPermission adds permission to roleID; granting twice is a no-op.
func GrantPermission(ctx context.Context, db *gorm.DB, roleID, permission string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.RolePermission{RoleID: roleID, Permission: permission}).Error
}

// RolesHavePermission reports whether any of roleIDs grants permission.
func RolesHavePermission(ctx context.Context, db *gorm.DB, permission string, roleIDs []string) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.RolePermission{}).
		Where("permission = ? AND role_id IN ?", permission, roleIDs).
		Count(&n).Error
	return n > 0, err
}
