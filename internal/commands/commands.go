// Package commands implements the built-in bot commands: start, register,
// notify and unsubscribe. Every command is a services.Handler built by a
// factory that closes over explicit dependencies; nothing is looked up
// globally.
//
// Multi-step commands keep their progress in a small JSON document returned
// as continuation state. A document that fails to decode is treated as no
// state, so the conversation restarts from its first step.
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/services"
)

// Built-in command identifiers.
const (
	StartID       = "start"
	RegisterID    = "register"
	NotifyID      = "notify"
	UnsubscribeID = "unsubscribe"
)

// stepWaiting marks a command waiting for the user's numbered answer.
const stepWaiting = "waiting-for-answer"

// Subscriptions is the part of NotificationService used by commands.
type Subscriptions interface {
	Subscribe(ctx context.Context, chatID int64, notifierID string) (domain.SubscribeResult, error)
	Unsubscribe(ctx context.Context, chatID int64, notifierID string) error
	SubscribedTo(ctx context.Context, chatID int64) ([]domain.NotifierDescriptor, error)
}

// Registrar creates users. It reports created=false for known chats.
type Registrar interface {
	Register(ctx context.Context, u *domain.TelegramUser, roles ...string) (bool, error)
}

// CommandMenu publishes the command list shown by the client for one chat.
type CommandMenu interface {
	SetChatCommands(ctx context.Context, chatID int64, cmds []domain.CommandDescriptor) error
}

// Deps are the collaborators of the built-in commands.
type Deps struct {
	Sender        services.Sender
	Commands      *services.CommandCatalog
	Notifiers     *services.NotifierCatalog
	Gate          services.Authorizer
	Subscriptions Subscriptions
	Users         Registrar

	// Menu is optional; when set, start publishes the chat's command menu.
	Menu CommandMenu
	// RegisterRole is assigned to newly registered chats. Defaults to
	// domain.AnonymousRole.
	RegisterRole string
}

// Register adds every built-in command to d.Commands.
func Register(d Deps) error {
	if d.Commands == nil {
		return fmt.Errorf("commands: nil catalog")
	}
	builtins := []struct {
		desc domain.CommandDescriptor
		f    services.HandlerFactory
	}{
		{domain.CommandDescriptor{ID: StartID, Description: "Show available commands"}, Start(d)},
		{domain.CommandDescriptor{ID: RegisterID, Description: "Register with the bot"}, RegisterCmd(d)},
		{domain.CommandDescriptor{ID: NotifyID, Description: "Subscribe to notifications"}, Notify(d)},
		{domain.CommandDescriptor{ID: UnsubscribeID, Description: "Unsubscribe from notifications"}, Unsubscribe(d)},
	}
	for _, b := range builtins {
		if err := d.Commands.Register(b.desc, b.f); err != nil {
			return err
		}
	}
	return nil
}

// stepState is the continuation document of the numbered-menu commands.
// Choice is set when the answer arrives as a callback button payload, e.g.
// {"command":"notify","choice":2}.
type stepState struct {
	Command string `json:"command,omitempty" mapstructure:"command"`
	Step    string `json:"step,omitempty"    mapstructure:"step"`
	Choice  string `json:"choice,omitempty"  mapstructure:"choice"`
}

// decodeStep is lenient about value types (numbers for choice) and returns
// the zero state for anything it cannot read.
func decodeStep(state []byte) stepState {
	var st stepState
	if len(state) == 0 {
		return st
	}
	var raw map[string]any
	if err := json.Unmarshal(state, &raw); err != nil {
		return stepState{}
	}
	if err := mapstructure.WeakDecode(raw, &st); err != nil {
		return stepState{}
	}
	return st
}

func encodeStep(st stepState) []byte {
	b, _ := json.Marshal(st)
	return b
}

func send(ctx context.Context, s services.Sender, chatID int64, msg domain.OutboundMessage) error {
	if err := s.Send(ctx, chatID, msg); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// numberedKeyboard returns one button per entry labelled 1..n.
func numberedKeyboard(n int) *domain.Keyboard {
	rows := make([][]string, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, []string{fmt.Sprint(i)})
	}
	return &domain.Keyboard{Rows: rows, OneTime: true}
}

var removeKeyboard = &domain.Keyboard{Remove: true}
