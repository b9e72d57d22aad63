// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ConversationState model: one row per chat, written with upsert semantics.
//
// Error semantics:
//   - A missing row is reported as ErrNotFound.
//   - Every other failure is the raw gorm error.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetConversation returns the pending conversation of chatID or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, chatID int64) (*domain.ConversationState, error) {
	var st domain.ConversationState
	err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// PutConversation inserts or replaces the conversation row of chatID in a
// single statement, so two writers never produce two rows for one chat.
func PutConversation(ctx context.Context, db *gorm.DB, chatID int64, command string, state []byte) error {
	row := &domain.ConversationState{
		ChatID:    chatID,
		Command:   command,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"command", "state", "updated_at"}),
	}).Create(row).Error
}

// DeleteConversation removes the conversation row of chatID. Deleting a
// missing row is not an error.
func DeleteConversation(ctx context.Context, db *gorm.DB, chatID int64) error {
	return db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&domain.ConversationState{}).Error
}
