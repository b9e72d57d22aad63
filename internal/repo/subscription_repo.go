// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Subscription model.
//
// Duplicate subscriptions (same chat_id, topic) rely on the database unique
// index; the violation is mapped to ErrDuplicate so that detection and insert
// are one atomic operation.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// CreateSubscription inserts (chatID, topic) and returns ErrDuplicate on
// unique violation.
func CreateSubscription(ctx context.Context, db *gorm.DB, chatID int64, topic string) (*domain.Subscription, error) {
	sub := &domain.Subscription{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(sub).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return sub, nil
}

// ListSubscribers returns the chat ids subscribed to topic, oldest first.
func ListSubscribers(ctx context.Context, db *gorm.DB, topic string) ([]int64, error) {
	out := []int64{}
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("topic = ?", topic).
		Order("created_at asc").
		Pluck("chat_id", &out).Error
	return out, err
}

// ListTopics returns the topics chatID is subscribed to, oldest first.
func ListTopics(ctx context.Context, db *gorm.DB, chatID int64) ([]string, error) {
	out := []string{}
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("chat_id = ?", chatID).
		Order("created_at asc").
		Pluck("topic", &out).Error
	return out, err
}

// CountSubscriptions returns how many rows exist for (chatID, topic); the
// unique index keeps the answer at 0 or 1.
func CountSubscriptions(ctx context.Context, db *gorm.DB, chatID int64, topic string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("chat_id = ? AND topic = ?", chatID, topic).
		Count(&n).Error
	return n, err
}

// DeleteSubscription removes (chatID, topic). It returns ErrNotFound when no
// row was removed.
func DeleteSubscription(ctx context.Context, db *gorm.DB, chatID int64, topic string) error {
	res := db.WithContext(ctx).
		Where("chat_id = ? AND topic = ?", chatID, topic).
		Delete(&domain.Subscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
