// Package domain – transport-neutral update and descriptor types.
//
// Updates are converted from the wire format by the transport adapter and are
// immutable once received. Descriptors are registration metadata for commands
// and notifiers; they are built once at process start.
package domain

// EntityBotCommand is the entity type marking a "/command" token in text.
const EntityBotCommand = "bot_command"

// AnonymousRole is the default role of chats that never registered.
const AnonymousRole = "anonymous_telegram_user"

// Entity annotates a span of message text. Offset and Length are measured in
// UTF-16 code units, as delivered by the bot platform.
type Entity struct {
	Type   string
	Offset int
	Length int
}

// Update is one inbound event: a message or a callback query.
type Update struct {
	// ID is the platform sequence number used for poll checkpointing.
	ID     int64
	ChatID int64

	Username  string
	FirstName string
	LastName  string

	MessageID int
	Text      string
	Entities  []Entity

	// CallbackID identifies a callback query; empty for plain messages.
	CallbackID string
	// CallbackData is the raw callback payload, normally a JSON object.
	CallbackData string
}

// HasCallback reports whether the update originates from a callback button.
func (u *Update) HasCallback() bool {
	return u != nil && (u.CallbackID != "" || u.CallbackData != "")
}

// CommandDescriptor is the registration metadata of a command.
type CommandDescriptor struct {
	ID          string
	Description string
	// Permission required to run the command; empty means public.
	Permission string
}

// NotifierDescriptor is the registration metadata of a notifier (topic).
type NotifierDescriptor struct {
	ID          string
	Label       string
	Description string
	Permission  string
}

// SubscribeResult is the outcome of a subscribe attempt.
type SubscribeResult string

const (
	SubscribeSuccess           SubscribeResult = "success"
	SubscribeNoPermission      SubscribeResult = "noPermission"
	SubscribeAlreadySubscribed SubscribeResult = "alreadySubscribed"
)

// Keyboard describes an optional reply keyboard attached to an outbound
// message. Rows of plain button labels; Remove asks the client to hide any
// keyboard currently shown.
type Keyboard struct {
	Rows    [][]string
	OneTime bool
	Remove  bool
}

// OutboundMessage is one text message sent through the transport.
type OutboundMessage struct {
	Text     string
	HTML     bool
	Keyboard *Keyboard
}
