package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
)

// Start lists the commands the chat may run and, when a menu is configured,
// publishes them as the chat's command menu.
func Start(d Deps) services.HandlerFactory {
	return func() services.Handler {
		return services.HandlerFunc(func(ctx context.Context, u *domain.Update, _ []byte) ([]byte, error) {
			var visible []domain.CommandDescriptor
			for _, c := range d.Commands.All() {
				ok, err := d.Gate.Check(ctx, c.Permission, u.ChatID)
				if err != nil {
					return nil, err
				}
				if ok {
					visible = append(visible, c)
				}
			}

			if d.Menu != nil {
				if err := d.Menu.SetChatCommands(ctx, u.ChatID, visible); err != nil {
					log.Warn().Err(err).Int64("chat_id", u.ChatID).Msg("set chat command menu")
				}
			}

			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, c := range visible {
				fmt.Fprintf(&b, "/%s - %s\n", c.ID, c.Description)
			}
			return nil, send(ctx, d.Sender, u.ChatID, domain.OutboundMessage{Text: b.String()})
		})
	}
}
