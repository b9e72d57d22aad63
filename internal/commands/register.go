package commands

import (
	"context"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
)

// RegisterCmd stores the chat as a registered user. A second registration
// of the same chat is reported, not repeated.
func RegisterCmd(d Deps) services.HandlerFactory {
	role := d.RegisterRole
	if role == "" {
		role = domain.AnonymousRole
	}
	return func() services.Handler {
		return services.HandlerFunc(func(ctx context.Context, u *domain.Update, _ []byte) ([]byte, error) {
			created, err := d.Users.Register(ctx, &domain.TelegramUser{
				ChatID:    u.ChatID,
				Username:  u.Username,
				FirstName: u.FirstName,
				LastName:  u.LastName,
			}, role)
			if err != nil {
				return nil, err
			}

			text := "You are already registered."
			if created {
				text = "Registration complete."
			}
			return nil, send(ctx, d.Sender, u.ChatID, domain.OutboundMessage{Text: text})
		})
	}
}
