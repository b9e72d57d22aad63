package commands

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
	"github.com/tbourn/go-chat-dispatch/internal/utils"
)

// Notify is the two-step subscription command. The first step replies with
// the numbered notifier list; the second resolves the answer and subscribes.
func Notify(d Deps) services.HandlerFactory {
	return func() services.Handler {
		return services.HandlerFunc(func(ctx context.Context, u *domain.Update, state []byte) ([]byte, error) {
			st := decodeStep(state)
			switch {
			case st.Choice != "":
				return nil, subscribeChoice(ctx, d, u.ChatID, st.Choice)
			case st.Step == stepWaiting:
				return nil, subscribeChoice(ctx, d, u.ChatID, u.Text)
			default:
				return askNotifier(ctx, d, u.ChatID)
			}
		})
	}
}

func askNotifier(ctx context.Context, d Deps, chatID int64) ([]byte, error) {
	all := d.Notifiers.All()
	if len(all) == 0 {
		return nil, send(ctx, d.Sender, chatID, domain.OutboundMessage{Text: "No subscriptions available."})
	}

	var b strings.Builder
	b.WriteString("What would you like to subscribe to?\n\n")
	for i, n := range all {
		fmt.Fprintf(&b, "%d. <b>%s</b> - %s\n", i+1, html.EscapeString(n.Label), html.EscapeString(n.Description))
	}
	msg := domain.OutboundMessage{Text: b.String(), HTML: true, Keyboard: numberedKeyboard(len(all))}
	if err := send(ctx, d.Sender, chatID, msg); err != nil {
		return nil, err
	}
	return encodeStep(stepState{Step: stepWaiting}), nil
}

func subscribeChoice(ctx context.Context, d Deps, chatID int64, answer string) error {
	all := d.Notifiers.All()
	idx, ok := utils.ParseChoice(answer, len(all))
	if !ok {
		return send(ctx, d.Sender, chatID, domain.OutboundMessage{Text: "No such subscription.", Keyboard: removeKeyboard})
	}
	n := all[idx]

	res, err := d.Subscriptions.Subscribe(ctx, chatID, n.ID)
	if err != nil {
		return err
	}

	label := html.EscapeString(n.Label)
	var text string
	switch res {
	case domain.SubscribeSuccess:
		text = fmt.Sprintf("You are now subscribed to <b>%s</b>.", label)
	case domain.SubscribeNoPermission:
		text = fmt.Sprintf("You are not allowed to subscribe to <b>%s</b>.", label)
	case domain.SubscribeAlreadySubscribed:
		text = fmt.Sprintf("You are already subscribed to <b>%s</b>.", label)
	}
	return send(ctx, d.Sender, chatID, domain.OutboundMessage{Text: text, HTML: true, Keyboard: removeKeyboard})
}
