package services

import (
	"encoding/json"
	"strings"
	"unicode/utf16"

	"github.com/mitchellh/mapstructure"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// ParseCommand extracts the command id named by a leading "/command" token.
// Only a bot_command entity starting at offset 0 counts; text without any
// entities falls back to its first word when it starts with "/". The "/"
// marker and any "@botname" suffix are stripped and the id is case folded.
func ParseCommand(u *domain.Update) (string, bool) {
	if u == nil || u.Text == "" {
		return "", false
	}

	var token string
	for _, e := range u.Entities {
		if e.Type == domain.EntityBotCommand && e.Offset == 0 {
			token = utf16Slice(u.Text, e.Offset, e.Length)
			break
		}
	}
	if token == "" && len(u.Entities) == 0 && strings.HasPrefix(u.Text, "/") {
		token = strings.Fields(u.Text)[0]
	}

	token = strings.TrimPrefix(strings.TrimSpace(token), "/")
	if i := strings.IndexByte(token, '@'); i >= 0 {
		token = token[:i]
	}
	id := normalizeID(token)
	return id, id != ""
}

// utf16Slice returns text[off:off+length] with offsets in UTF-16 code units.
func utf16Slice(text string, off, length int) string {
	units := utf16.Encode([]rune(text))
	if off < 0 || length <= 0 || off+length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[off : off+length]))
}

// CallbackPayload is the decoded form of a callback button's data. Buttons
// may carry additional keys; handlers read them from the raw state.
type CallbackPayload struct {
	Command string `mapstructure:"command"`
}

// DecodeCallback parses callback data as a JSON object. Undecodable data
// yields ok=false and is ignored by the dispatcher.
func DecodeCallback(data string) (CallbackPayload, bool) {
	var p CallbackPayload
	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil || raw == nil {
		return p, false
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p, false
	}
	if err := dec.Decode(raw); err != nil {
		return p, false
	}
	p.Command = strings.TrimPrefix(strings.TrimSpace(p.Command), "/")
	return p, true
}
