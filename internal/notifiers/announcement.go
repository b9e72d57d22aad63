package notifiers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
)

// ErrEmptyAnnouncement is returned by Execute when the payload has no text.
var ErrEmptyAnnouncement = errors.New("announcement: empty text")

// announcementPayload is the structured form of an announcement trigger.
type announcementPayload struct {
	Text string `mapstructure:"text"`
	HTML bool   `mapstructure:"html"`
}

// Announcement relays the trigger's text to subscribers. The payload may be
// a string, raw JSON bytes, or a map with "text" and optional "html" keys.
func Announcement(b Broadcaster) services.NotifierFactory {
	return func(subs []int64, payload any) services.Notifier {
		p, err := decodeAnnouncement(payload)
		n := &broadcast{b: b, id: AnnouncementID, subs: subs, err: err}
		n.msg = domain.OutboundMessage{Text: p.Text, HTML: p.HTML}
		return n
	}
}

func decodeAnnouncement(payload any) (announcementPayload, error) {
	var p announcementPayload
	switch v := payload.(type) {
	case nil:
	case string:
		p.Text = v
	case []byte:
		var raw any
		if err := json.Unmarshal(v, &raw); err != nil {
			p.Text = string(v)
			break
		}
		return decodeAnnouncement(raw)
	case json.RawMessage:
		return decodeAnnouncement([]byte(v))
	default:
		if err := mapstructure.WeakDecode(v, &p); err != nil {
			return p, fmt.Errorf("announcement: decode payload: %w", err)
		}
	}
	if strings.TrimSpace(p.Text) == "" {
		return p, ErrEmptyAnnouncement
	}
	return p, nil
}
