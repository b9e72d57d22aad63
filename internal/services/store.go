// Package services – persistence contracts and their GORM implementation
//
// The engine depends on narrow interfaces (ConversationStateStore,
// SubscriptionStore, UserDirectory, RoleRegistry, Settings). Store implements
// all of them over the repo package. Every raw persistence failure is wrapped
// in ErrStore; "not found" is reported as an absent value, never as an error.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/repo"
)

// ConversationStateStore persists the pending conversation of each chat.
// Get returns (nil, nil) when no conversation is pending; Put is an upsert.
type ConversationStateStore interface {
	Get(ctx context.Context, chatID int64) (*domain.ConversationState, error)
	Put(ctx context.Context, chatID int64, command string, state []byte) error
	Delete(ctx context.Context, chatID int64) error
}

// SubscriptionStore persists (chat, topic) memberships. Insert reports
// created=false when the pair already existed; detection is atomic with the
// insert.
type SubscriptionStore interface {
	Insert(ctx context.Context, chatID int64, topic string) (created bool, err error)
	Remove(ctx context.Context, chatID int64, topic string) (removed bool, err error)
	Subscribers(ctx context.Context, topic string) ([]int64, error)
	Topics(ctx context.Context, chatID int64) ([]string, error)
}

// Settings is a small key/value store. Get returns ok=false for missing keys.
type Settings interface {
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
	PutSetting(ctx context.Context, key, value string) error
}

// Store is the GORM-backed implementation of every persistence contract.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStore, err)
}

// Get implements ConversationStateStore.
func (s *Store) Get(ctx context.Context, chatID int64) (*domain.ConversationState, error) {
	st, err := repo.GetConversation(ctx, s.DB, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	return st, nil
}

// Put implements ConversationStateStore.
func (s *Store) Put(ctx context.Context, chatID int64, command string, state []byte) error {
	if err := repo.PutConversation(ctx, s.DB, chatID, command, state); err != nil {
		return storeErr("put conversation", err)
	}
	return nil
}

// Delete implements ConversationStateStore.
func (s *Store) Delete(ctx context.Context, chatID int64) error {
	if err := repo.DeleteConversation(ctx, s.DB, chatID); err != nil {
		return storeErr("delete conversation", err)
	}
	return nil
}

// Insert implements SubscriptionStore.
func (s *Store) Insert(ctx context.Context, chatID int64, topic string) (bool, error) {
	_, err := repo.CreateSubscription(ctx, s.DB, chatID, topic)
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return false, nil
	case err != nil:
		return false, storeErr("insert subscription", err)
	}
	return true, nil
}

// Remove implements SubscriptionStore.
func (s *Store) Remove(ctx context.Context, chatID int64, topic string) (bool, error) {
	err := repo.DeleteSubscription(ctx, s.DB, chatID, topic)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	case err != nil:
		return false, storeErr("remove subscription", err)
	}
	return true, nil
}

// Subscribers implements SubscriptionStore.
func (s *Store) Subscribers(ctx context.Context, topic string) ([]int64, error) {
	ids, err := repo.ListSubscribers(ctx, s.DB, topic)
	if err != nil {
		return nil, storeErr("list subscribers", err)
	}
	return ids, nil
}

// Topics implements SubscriptionStore.
func (s *Store) Topics(ctx context.Context, chatID int64) ([]string, error) {
	ts, err := repo.ListTopics(ctx, s.DB, chatID)
	if err != nil {
		return nil, storeErr("list topics", err)
	}
	return ts, nil
}

// ResolveByChatID implements UserDirectory.
func (s *Store) ResolveByChatID(ctx context.Context, chatID int64) (*Subject, error) {
	if _, err := repo.GetUserByChatID(ctx, s.DB, chatID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, storeErr("get user", err)
	}
	roles, err := repo.ListUserRoles(ctx, s.DB, chatID)
	if err != nil {
		return nil, storeErr("list roles", err)
	}
	return &Subject{ChatID: chatID, Roles: roles}, nil
}

// HasPermission implements RoleRegistry.
func (s *Store) HasPermission(ctx context.Context, permission string, roles []string) (bool, error) {
	ok, err := repo.RolesHavePermission(ctx, s.DB, permission, roles)
	if err != nil {
		return false, storeErr("role permissions", err)
	}
	return ok, nil
}

// Register creates a user for the chat holding roles. It returns
// created=false when the chat was already registered.
func (s *Store) Register(ctx context.Context, u *domain.TelegramUser, roles ...string) (bool, error) {
	_, err := repo.CreateUser(ctx, s.DB, u, roles...)
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return false, nil
	case err != nil:
		return false, storeErr("create user", err)
	}
	return true, nil
}

// GrantPermissions makes sure role holds every listed permission.
func (s *Store) GrantPermissions(ctx context.Context, role string, perms ...string) error {
	for _, p := range perms {
		if p == "" {
			continue
		}
		if err := repo.GrantPermission(ctx, s.DB, role, p); err != nil {
			return storeErr("grant permission", err)
		}
	}
	return nil
}

// GetSetting implements Settings.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	v, err := repo.GetSetting(ctx, s.DB, key)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get setting", err)
	}
	return v, true, nil
}

// PutSetting implements Settings.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	if err := repo.PutSetting(ctx, s.DB, key, value); err != nil {
		return storeErr("put setting", err)
	}
	return nil
}
