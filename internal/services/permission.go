// Package services – PermissionGate
//
// The gate answers "may this chat run something that requires permission P".
// Chats are resolved to a Subject through a UserDirectory; chats that never
// registered are treated as the anonymous subject holding a single default
// role. The answer is then delegated to a RoleRegistry.
//
// The gate holds no cache and no mutable state, so it is safe to call
// concurrently for any number of chats.
package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// Subject is the authorization view of a chat.
type Subject struct {
	ChatID    int64
	Roles     []string
	Anonymous bool
}

// UserDirectory resolves chats to registered subjects. A chat that is not
// registered yields (nil, nil).
type UserDirectory interface {
	ResolveByChatID(ctx context.Context, chatID int64) (*Subject, error)
}

// RoleRegistry answers whether any of roles grants permission.
type RoleRegistry interface {
	HasPermission(ctx context.Context, permission string, roles []string) (bool, error)
}

// Authorizer is the capability the dispatcher and notification service need.
type Authorizer interface {
	Check(ctx context.Context, permission string, chatID int64) (bool, error)
}

// PermissionGate implements Authorizer on top of a directory and registry.
type PermissionGate struct {
	Users UserDirectory
	Roles RoleRegistry
	// AnonymousRole is granted to unregistered chats. Defaults to
	// domain.AnonymousRole.
	AnonymousRole string
}

// Check returns true when permission is empty or the chat's role set grants
// it. Directory failures are wrapped in ErrStore and deny access.
func (g *PermissionGate) Check(ctx context.Context, permission string, chatID int64) (bool, error) {
	if permission == "" {
		return true, nil
	}

	tr := otel.Tracer("services/PermissionGate")
	ctx, span := tr.Start(ctx, "Check",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.String("permission", permission),
		),
	)
	defer span.End()

	subj, err := g.subject(ctx, chatID)
	if err != nil {
		return false, err
	}
	ok, err := g.Roles.HasPermission(ctx, permission, subj.Roles)
	if err != nil {
		return false, fmt.Errorf("has permission %q: %w: %v", permission, ErrStore, err)
	}
	span.SetAttributes(attribute.Bool("granted", ok))
	return ok, nil
}

func (g *PermissionGate) subject(ctx context.Context, chatID int64) (*Subject, error) {
	subj, err := g.Users.ResolveByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("resolve chat %d: %w: %v", chatID, ErrStore, err)
	}
	if subj != nil {
		return subj, nil
	}
	role := g.AnonymousRole
	if role == "" {
		role = domain.AnonymousRole
	}
	return &Subject{ChatID: chatID, Roles: []string{role}, Anonymous: true}, nil
}
