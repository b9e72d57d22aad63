// Package services – CommandDispatcher
//
// This file implements the dispatch state machine. For each inbound update the
// dispatcher resolves a (command, carried-in state) pair, first match wins:
//
//  1. a callback payload naming a command routes there with the payload as state;
//  2. a leading "/command" token routes there with empty state, overriding any
//     pending conversation;
//  3. a stored ConversationState routes back to its command with its state;
//  4. otherwise nothing runs.
//
// A resolved pair is checked against the catalog and the permission gate, the
// handler runs, and its continuation state is upserted (non-empty) or deleted
// (empty). The whole read → execute → write sequence runs under the chat's
// lock so two updates of one chat never interleave.
//
// Only ErrStore escapes ProcessUpdate. Unknown commands, denied permissions,
// transport failures, malformed callbacks and handler errors are recovered
// here and logged.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// Replies holds the canned texts sent by the dispatcher itself.
type Replies struct {
	UnknownCommand   string
	PermissionDenied string
}

// DefaultReplies returns the built-in canned texts.
func DefaultReplies() Replies {
	return Replies{
		UnknownCommand:   "Command not found.",
		PermissionDenied: "You do not have permission to run this command.",
	}
}

// CommandDispatcher routes updates to command handlers.
type CommandDispatcher struct {
	Commands *CommandCatalog
	Gate     Authorizer
	States   ConversationStateStore
	Sender   Sender

	// Optional collaborators.
	Callbacks CallbackAnswerer
	Locker    ChatLocker
	Replies   Replies
}

// NewCommandDispatcher wires a dispatcher with an in-process locker and the
// default replies.
func NewCommandDispatcher(cmds *CommandCatalog, gate Authorizer, states ConversationStateStore, sender Sender) *CommandDispatcher {
	return &CommandDispatcher{
		Commands: cmds,
		Gate:     gate,
		States:   states,
		Sender:   sender,
		Locker:   NewLocalLocker(),
		Replies:  DefaultReplies(),
	}
}

// resolution is the outcome of routing: an empty command means no-op.
type resolution struct {
	route   string
	command string
	state   []byte
}

// ProcessUpdate dispatches one update. It returns an error wrapping ErrStore
// when persistence failed; every other failure is logged and swallowed.
func (d *CommandDispatcher) ProcessUpdate(ctx context.Context, u *domain.Update) error {
	start := time.Now()
	defer func() { dispatchDuration.Observe(time.Since(start).Seconds()) }()

	if u == nil || u.ChatID == 0 {
		updatesTotal.WithLabelValues(routeNone, outcomeIgnored).Inc()
		return nil
	}

	tr := otel.Tracer("services/CommandDispatcher")
	ctx, span := tr.Start(ctx, "ProcessUpdate",
		trace.WithAttributes(
			attribute.Int64("chat.id", u.ChatID),
			attribute.Int64("update.id", u.ID),
		),
	)
	defer span.End()

	lg := log.With().Int64("chat_id", u.ChatID).Int64("update_id", u.ID).Logger()

	if u.HasCallback() {
		d.answerCallback(ctx, u, lg)
	}

	unlock, err := d.lock(ctx, u.ChatID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		updatesTotal.WithLabelValues(routeNone, outcomeStoreError).Inc()
		lg.Error().Err(err).Msg("acquire chat lock")
		return fmt.Errorf("lock chat %d: %w: %v", u.ChatID, ErrStore, err)
	}
	defer unlock()

	res, err := d.resolve(ctx, u)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve")
		updatesTotal.WithLabelValues(routeState, outcomeStoreError).Inc()
		lg.Error().Err(err).Msg("read conversation state")
		return err
	}
	if res.command == "" {
		updatesTotal.WithLabelValues(res.route, outcomeIgnored).Inc()
		lg.Debug().Str("route", res.route).Msg("no handler for update")
		return nil
	}

	span.SetAttributes(
		attribute.String("command", res.command),
		attribute.String("route", res.route),
	)
	lg = lg.With().Str("command", res.command).Str("route", res.route).Logger()

	outcome, err := d.run(ctx, u, res, lg)
	updatesTotal.WithLabelValues(res.route, outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return err
}

func (d *CommandDispatcher) lock(ctx context.Context, chatID int64) (func(), error) {
	if d.Locker == nil {
		return func() {}, nil
	}
	return d.Locker.Lock(ctx, chatID)
}

func (d *CommandDispatcher) resolve(ctx context.Context, u *domain.Update) (resolution, error) {
	if u.HasCallback() {
		p, ok := DecodeCallback(u.CallbackData)
		if !ok || p.Command == "" {
			return resolution{route: routeCallback}, nil
		}
		return resolution{route: routeCallback, command: normalizeID(p.Command), state: []byte(u.CallbackData)}, nil
	}

	if id, ok := ParseCommand(u); ok {
		return resolution{route: routeCommand, command: id}, nil
	}

	st, err := d.States.Get(ctx, u.ChatID)
	if err != nil {
		return resolution{route: routeState}, err
	}
	if st == nil {
		return resolution{route: routeNone}, nil
	}
	return resolution{route: routeState, command: st.Command, state: st.State}, nil
}

func (d *CommandDispatcher) run(ctx context.Context, u *domain.Update, res resolution, lg zerolog.Logger) (string, error) {
	desc, ok := d.Commands.Get(res.command)
	if !ok {
		d.reply(ctx, u.ChatID, d.Replies.UnknownCommand, lg)
		return outcomeUnknown, nil
	}

	allowed, err := d.Gate.Check(ctx, desc.Permission, u.ChatID)
	if err != nil {
		lg.Error().Err(err).Str("permission", desc.Permission).Msg("permission check")
		return outcomeStoreError, err
	}
	if !allowed {
		d.reply(ctx, u.ChatID, d.Replies.PermissionDenied, lg)
		return outcomeDenied, nil
	}

	factory, _ := d.Commands.Factory(desc.ID)
	next, err := execute(ctx, factory, u, res.state)
	if err != nil {
		lg.Error().Err(err).Msg("handler failed; conversation state unchanged")
		if errors.Is(err, ErrStore) {
			return outcomeStoreError, err
		}
		return outcomeHandlerError, nil
	}

	if len(next) > 0 {
		err = d.States.Put(ctx, u.ChatID, desc.ID, next)
	} else {
		err = d.States.Delete(ctx, u.ChatID)
	}
	if err != nil {
		lg.Error().Err(err).Msg("write conversation state")
		return outcomeStoreError, err
	}
	return outcomeHandled, nil
}

// execute runs one handler step, converting a panic into an error so a
// faulty handler cannot take the ingestion loop down.
func execute(ctx context.Context, f HandlerFactory, u *domain.Update, state []byte) (next []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	h := f()
	if h == nil {
		return nil, errors.New("handler factory returned nil")
	}
	return h.Execute(ctx, u, state)
}

func (d *CommandDispatcher) reply(ctx context.Context, chatID int64, text string, lg zerolog.Logger) {
	if d.Sender == nil || text == "" {
		return
	}
	if err := d.Sender.Send(ctx, chatID, domain.OutboundMessage{Text: text}); err != nil {
		lg.Warn().Err(err).Msg("send canned reply")
	}
}

func (d *CommandDispatcher) answerCallback(ctx context.Context, u *domain.Update, lg zerolog.Logger) {
	if d.Callbacks == nil || u.CallbackID == "" {
		return
	}
	if err := d.Callbacks.AnswerCallback(ctx, u.CallbackID); err != nil {
		lg.Warn().Err(err).Msg("answer callback query")
	}
}
