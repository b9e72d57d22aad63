package telegram

import (
	"encoding/json"
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// ToDomain converts a platform update. Kinds the engine does not handle
// (edits, channel posts, inline queries) yield nil.
func ToDomain(u *models.Update) *domain.Update {
	if u == nil {
		return nil
	}
	switch {
	case u.Message != nil:
		out := &domain.Update{ID: u.ID}
		fillMessage(out, u.Message)
		if u.Message.From != nil {
			fillUser(out, *u.Message.From)
		}
		return out

	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		out := &domain.Update{ID: u.ID, CallbackID: q.ID, CallbackData: q.Data}
		fillUser(out, q.From)
		switch {
		case q.Message.Message != nil:
			out.ChatID = q.Message.Message.Chat.ID
			out.MessageID = q.Message.Message.ID
		case q.Message.InaccessibleMessage != nil:
			out.ChatID = q.Message.InaccessibleMessage.Chat.ID
			out.MessageID = q.Message.InaccessibleMessage.MessageID
		default:
			// Inline-mode callbacks have no message; answer in the user's
			// private chat.
			out.ChatID = q.From.ID
		}
		return out
	}
	return nil
}

func fillMessage(out *domain.Update, m *models.Message) {
	out.ChatID = m.Chat.ID
	out.MessageID = m.ID
	out.Text = m.Text
	for _, e := range m.Entities {
		out.Entities = append(out.Entities, domain.Entity{
			Type:   string(e.Type),
			Offset: e.Offset,
			Length: e.Length,
		})
	}
}

func fillUser(out *domain.Update, u models.User) {
	out.Username = u.Username
	out.FirstName = u.FirstName
	out.LastName = u.LastName
}

// DecodeWebhookUpdate parses a pushed update body. Kinds the engine does not
// handle decode to nil without error.
func (c *Client) DecodeWebhookUpdate(raw []byte) (*domain.Update, error) {
	return DecodeUpdate(raw)
}

// DecodeUpdate is DecodeWebhookUpdate without a Client.
func DecodeUpdate(raw []byte) (*domain.Update, error) {
	var u models.Update
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("telegram: decode update: %w", err)
	}
	return ToDomain(&u), nil
}
