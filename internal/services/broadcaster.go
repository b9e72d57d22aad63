package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// Broadcaster sends one message to many chats, paced by a token bucket so a
// large audience does not trip the platform's flood limits. A failed send is
// logged and counted; the fan-out continues with the next chat.
type Broadcaster struct {
	Sender  Sender
	Limiter *rate.Limiter
}

// NewBroadcaster paces sends at rps with the given burst. rps <= 0 disables
// pacing.
func NewBroadcaster(sender Sender, rps float64, burst int) *Broadcaster {
	b := &Broadcaster{Sender: sender}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		b.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return b
}

// Broadcast sends msg to every chat in order and returns how many sends
// succeeded. The only error is ctx cancellation while waiting for the pacer.
func (b *Broadcaster) Broadcast(ctx context.Context, notifierID string, chats []int64, msg domain.OutboundMessage) (int, error) {
	sent := 0
	for _, chatID := range chats {
		if b.Limiter != nil {
			if err := b.Limiter.Wait(ctx); err != nil {
				return sent, err
			}
		}
		if err := b.Sender.Send(ctx, chatID, msg); err != nil {
			notificationsSent.WithLabelValues(notifierID, "error").Inc()
			log.Warn().Err(err).Int64("chat_id", chatID).Str("notifier", notifierID).Msg("broadcast send failed")
			continue
		}
		notificationsSent.WithLabelValues(notifierID, "ok").Inc()
		sent++
	}
	return sent, nil
}
