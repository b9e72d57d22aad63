package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
	"github.com/tbourn/go-chat-dispatch/internal/utils"
)

// Unsubscribe mirrors Notify over the chat's current subscriptions.
func Unsubscribe(d Deps) services.HandlerFactory {
	return func() services.Handler {
		return services.HandlerFunc(func(ctx context.Context, u *domain.Update, state []byte) ([]byte, error) {
			st := decodeStep(state)
			switch {
			case st.Choice != "":
				return nil, unsubscribeChoice(ctx, d, u.ChatID, st.Choice)
			case st.Step == stepWaiting:
				return nil, unsubscribeChoice(ctx, d, u.ChatID, u.Text)
			default:
				return askSubscription(ctx, d, u.ChatID)
			}
		})
	}
}

func askSubscription(ctx context.Context, d Deps, chatID int64) ([]byte, error) {
	subs, err := d.Subscriptions.SubscribedTo(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, send(ctx, d.Sender, chatID, domain.OutboundMessage{Text: "You have no subscriptions."})
	}

	var b strings.Builder
	b.WriteString("Which subscription should be cancelled?\n\n")
	for i, n := range subs {
		fmt.Fprintf(&b, "%d. <b>%s</b>\n", i+1, html.EscapeString(n.Label))
	}
	msg := domain.OutboundMessage{Text: b.String(), HTML: true, Keyboard: numberedKeyboard(len(subs))}
	if err := send(ctx, d.Sender, chatID, msg); err != nil {
		return nil, err
	}
	return encodeStep(stepState{Step: stepWaiting}), nil
}

func unsubscribeChoice(ctx context.Context, d Deps, chatID int64, answer string) error {
	subs, err := d.Subscriptions.SubscribedTo(ctx, chatID)
	if err != nil {
		return err
	}
	idx, ok := utils.ParseChoice(answer, len(subs))
	if !ok {
		return send(ctx, d.Sender, chatID, domain.OutboundMessage{Text: "No such subscription.", Keyboard: removeKeyboard})
	}
	n := subs[idx]
	label := html.EscapeString(n.Label)

	text := fmt.Sprintf("Unsubscribed from <b>%s</b>.", label)
	if err := d.Subscriptions.Unsubscribe(ctx, chatID, n.ID); err != nil {
		if !errors.Is(err, services.ErrNotSubscribed) {
			return err
		}
		text = fmt.Sprintf("You are not subscribed to <b>%s</b>.", label)
	}
	return send(ctx, d.Sender, chatID, domain.OutboundMessage{Text: text, HTML: true, Keyboard: removeKeyboard})
}
