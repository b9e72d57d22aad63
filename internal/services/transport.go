// Package services – transport capabilities consumed by the engine.
//
// The bot network is reached only through these interfaces; the concrete
// adapter lives in internal/telegram. Transport failures are returned to the
// caller, which logs them and moves on.
package services

import (
	"context"
	"time"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// Sender delivers one outbound message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, msg domain.OutboundMessage) error
}

// CallbackAnswerer acknowledges a callback query so the client stops its
// progress indicator.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID string) error
}

// UpdateSource is the poll side of the transport. FetchUpdates returns the
// updates with sequence number >= since, waiting up to timeout for the first
// one. AckUpdates confirms every update up to and including upto.
type UpdateSource interface {
	FetchUpdates(ctx context.Context, since int64, timeout time.Duration) ([]domain.Update, error)
	AckUpdates(ctx context.Context, upto int64) error
}

// WebhookDecoder converts a pushed payload into an Update.
type WebhookDecoder interface {
	DecodeWebhookUpdate(raw []byte) (*domain.Update, error)
}

// BotTransport is the full transport surface.
type BotTransport interface {
	Sender
	CallbackAnswerer
	UpdateSource
	WebhookDecoder
}
