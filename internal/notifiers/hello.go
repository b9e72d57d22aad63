package notifiers

import (
	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
)

// Hello greets every subscriber; the payload is ignored.
func Hello(b Broadcaster) services.NotifierFactory {
	return func(subs []int64, _ any) services.Notifier {
		return &broadcast{b: b, id: HelloID, subs: subs, msg: domain.OutboundMessage{Text: "Hello"}}
	}
}
