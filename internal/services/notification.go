// Package services – NotificationService
//
// NotificationService owns topic subscriptions and out-of-band broadcasts.
// Subscribe consults the permission gate before touching storage and relies
// on the store's atomic insert-if-absent to report alreadySubscribed. Notify
// resolves the subscriber list, drops chats that lost the notifier's
// permission since subscribing, and hands the rest to the notifier built by
// the catalog factory.
//
// Observability: public methods are OpenTelemetry-instrumented with chat and
// notifier identifiers.
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// NotificationService coordinates subscriptions and broadcasts.
type NotificationService struct {
	Notifiers     *NotifierCatalog
	Subscriptions SubscriptionStore
	Gate          Authorizer
}

// NewNotificationService wires the service.
func NewNotificationService(n *NotifierCatalog, subs SubscriptionStore, gate Authorizer) *NotificationService {
	return &NotificationService{Notifiers: n, Subscriptions: subs, Gate: gate}
}

// Notify broadcasts payload through the notifier registered as notifierID.
// Unknown notifiers are a silent no-op: callers are internal triggers with no
// reply channel.
func (s *NotificationService) Notify(ctx context.Context, notifierID string, payload any) error {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Notify",
		trace.WithAttributes(attribute.String("notifier.id", notifierID)),
	)
	defer span.End()

	desc, ok := s.Notifiers.Get(notifierID)
	if !ok {
		log.Debug().Str("notifier", notifierID).Msg("notify: unknown notifier ignored")
		return nil
	}
	factory, _ := s.Notifiers.Factory(desc.ID)

	subs, err := s.Subscriptions.Subscribers(ctx, desc.ID)
	if err != nil {
		return err
	}
	allowed, err := s.permitted(ctx, desc, subs)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Int("subscribers", len(subs)),
		attribute.Int("recipients", len(allowed)),
	)

	n := factory(allowed, payload)
	if n == nil {
		return fmt.Errorf("notifier %q: factory returned nil", desc.ID)
	}
	return n.Execute(ctx)
}

// permitted filters subs down to the chats that still hold the notifier's
// permission.
func (s *NotificationService) permitted(ctx context.Context, desc domain.NotifierDescriptor, subs []int64) ([]int64, error) {
	if desc.Permission == "" {
		return subs, nil
	}
	out := make([]int64, 0, len(subs))
	for _, chatID := range subs {
		ok, err := s.Gate.Check(ctx, desc.Permission, chatID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, chatID)
		}
	}
	return out, nil
}

// Subscribe adds chatID to the notifier's audience. It returns
// ErrUnknownNotifier for unregistered ids and an ErrStore-wrapped error when
// persistence fails; every other outcome is a SubscribeResult.
func (s *NotificationService) Subscribe(ctx context.Context, chatID int64, notifierID string) (domain.SubscribeResult, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Subscribe",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.String("notifier.id", notifierID),
		),
	)
	defer span.End()

	desc, ok := s.Notifiers.Get(notifierID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownNotifier, notifierID)
	}

	allowed, err := s.Gate.Check(ctx, desc.Permission, chatID)
	if err != nil {
		return "", err
	}
	if !allowed {
		return domain.SubscribeNoPermission, nil
	}

	created, err := s.Subscriptions.Insert(ctx, chatID, desc.ID)
	if err != nil {
		return "", err
	}
	if !created {
		return domain.SubscribeAlreadySubscribed, nil
	}
	return domain.SubscribeSuccess, nil
}

// Unsubscribe removes chatID from the notifier's audience. It returns
// ErrNotSubscribed when there was nothing to remove.
func (s *NotificationService) Unsubscribe(ctx context.Context, chatID int64, notifierID string) error {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Unsubscribe",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.String("notifier.id", notifierID),
		),
	)
	defer span.End()

	desc, ok := s.Notifiers.Get(notifierID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNotifier, notifierID)
	}
	removed, err := s.Subscriptions.Remove(ctx, chatID, desc.ID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotSubscribed
	}
	return nil
}

// SubscribedTo lists the registered notifiers chatID is subscribed to, in
// subscription order. Topics no longer in the catalog are skipped.
func (s *NotificationService) SubscribedTo(ctx context.Context, chatID int64) ([]domain.NotifierDescriptor, error) {
	topics, err := s.Subscriptions.Topics(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.NotifierDescriptor, 0, len(topics))
	for _, t := range topics {
		if d, ok := s.Notifiers.Get(t); ok {
			out = append(out, d)
		}
	}
	return out, nil
}
