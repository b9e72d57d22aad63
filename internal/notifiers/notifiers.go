// Package notifiers holds the built-in broadcast topics. A notifier is built
// per Notify call with the permitted subscriber list and the trigger's
// payload; its only effect is one outbound send per subscriber.
package notifiers

import (
	"context"
	"fmt"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
)

// Built-in notifier identifiers.
const (
	HelloID        = "hello_notifier"
	AnnouncementID = "announcement"
)

// Broadcaster fans one message out to many chats.
type Broadcaster interface {
	Broadcast(ctx context.Context, notifierID string, chats []int64, msg domain.OutboundMessage) (int, error)
}

// Register adds the built-in notifiers to cat in presentation order.
// announcePermission gates the announcement topic; empty leaves it public.
func Register(cat *services.NotifierCatalog, b Broadcaster, announcePermission string) error {
	if cat == nil || b == nil {
		return fmt.Errorf("notifiers: nil catalog or broadcaster")
	}
	if err := cat.Register(domain.NotifierDescriptor{
		ID:          HelloID,
		Label:       "Hello",
		Description: "A friendly hello from the bot",
	}, Hello(b)); err != nil {
		return err
	}
	return cat.Register(domain.NotifierDescriptor{
		ID:          AnnouncementID,
		Label:       "Announcements",
		Description: "News and service announcements",
		Permission:  announcePermission,
	}, Announcement(b))
}

// broadcast is the Notifier shared by the built-ins.
type broadcast struct {
	b    Broadcaster
	id   string
	subs []int64
	msg  domain.OutboundMessage
	err  error
}

func (n *broadcast) Execute(ctx context.Context) error {
	if n.err != nil {
		return n.err
	}
	if len(n.subs) == 0 {
		return nil
	}
	_, err := n.b.Broadcast(ctx, n.id, n.subs, n.msg)
	return err
}
