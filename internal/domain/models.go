// Package domain defines the persistence models for conversation state,
// notification subscriptions, registered bot users and their roles. These
// types are mapped with GORM and form the core data layer of the dispatcher.
package domain

import (
	"time"
)

// ConversationState marks a chat that is midway through a multi-step
// command. At most one row exists per chat: the primary key is the chat id.
//
// Fields:
//   - ChatID: chat identity owning the conversation (primary key).
//   - Command: id of the command that should receive the next plain update.
//   - State: opaque handler-defined payload; never interpreted by the engine.
//   - UpdatedAt: last time the row was written.
type ConversationState struct {
	ChatID    int64     `json:"chat_id"    gorm:"primaryKey;autoIncrement:false"`
	Command   string    `json:"command"    gorm:"type:varchar(64);not null"`
	State     []byte    `json:"-"          gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ConversationState.
func (ConversationState) TableName() string { return "conversation_states" }

// Subscription records that a chat receives broadcasts of one notifier.
// The (chat_id, topic) pair is unique; duplicates are rejected by the index.
type Subscription struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    int64     `json:"chat_id"    gorm:"not null;uniqueIndex:ux_subscription_chat_topic,priority:1"`
	Topic     string    `json:"topic"      gorm:"type:varchar(64);not null;index;uniqueIndex:ux_subscription_chat_topic,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// TelegramUser is a chat that registered itself with the bot. A registered
// user is resolved to its assigned roles; unknown chats fall back to the
// anonymous role.
type TelegramUser struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    int64     `json:"chat_id"    gorm:"not null;uniqueIndex:ux_telegram_users_chat"`
	Username  string    `json:"username"   gorm:"type:varchar(255)"`
	FirstName string    `json:"first_name" gorm:"type:varchar(255)"`
	LastName  string    `json:"last_name"  gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for TelegramUser.
func (TelegramUser) TableName() string { return "telegram_users" }

// UserRole assigns a role to a registered chat.
type UserRole struct {
	ChatID int64  `gorm:"primaryKey;autoIncrement:false"`
	RoleID string `gorm:"type:varchar(64);primaryKey"`
}

// TableName returns the database table name for UserRole.
func (UserRole) TableName() string { return "telegram_user_roles" }

// RolePermission grants a permission to every holder of a role.
type RolePermission struct {
	RoleID     string `gorm:"type:varchar(64);primaryKey"`
	Permission string `gorm:"type:varchar(128);primaryKey"`
}

// TableName returns the database table name for RolePermission.
func (RolePermission) TableName() string { return "role_permissions" }

// Setting is a single key/value pair of process-wide settings, such as the
// last acknowledged poll sequence number.
type Setting struct {
	Key       string `gorm:"type:varchar(128);primaryKey"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName returns the database table name for Setting.
func (Setting) TableName() string { return "settings" }
