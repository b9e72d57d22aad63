// Package services – command and notifier catalogs
//
// Catalogs map an identifier to its descriptor and factory. They are filled by
// explicit Register calls during process start and only read afterwards, so
// lookups take no lock. Registration order is preserved by All, which the
// numbered-choice commands rely on.
package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// Handler runs one step of a command. state is the carried-in payload: the
// stored continuation, the raw callback payload, or nil for a fresh start.
// A non-empty return value becomes the chat's new continuation state; an
// empty one ends the conversation.
type Handler interface {
	Execute(ctx context.Context, u *domain.Update, state []byte) ([]byte, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, u *domain.Update, state []byte) ([]byte, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, u *domain.Update, state []byte) ([]byte, error) {
	return f(ctx, u, state)
}

// HandlerFactory builds a fresh Handler for each dispatch.
type HandlerFactory func() Handler

// Notifier broadcasts one payload to the subscribers it was built with.
type Notifier interface {
	Execute(ctx context.Context) error
}

// NotifierFactory builds a Notifier carrying the subscriber list and payload.
type NotifierFactory func(subscribers []int64, payload any) Notifier

// normalizeID folds case and trims whitespace so "Start" and "start" match.
// A Caser is stateful, hence one per call.
func normalizeID(id string) string {
	return cases.Fold().String(strings.TrimSpace(id))
}

// CommandCatalog is the registry of commands.
type CommandCatalog struct {
	order     []string
	desc      map[string]domain.CommandDescriptor
	factories map[string]HandlerFactory
}

// NewCommandCatalog returns an empty catalog.
func NewCommandCatalog() *CommandCatalog {
	return &CommandCatalog{
		desc:      map[string]domain.CommandDescriptor{},
		factories: map[string]HandlerFactory{},
	}
}

// Register adds a command. It must be called before dispatching starts.
func (c *CommandCatalog) Register(d domain.CommandDescriptor, f HandlerFactory) error {
	d.ID = normalizeID(d.ID)
	if d.ID == "" {
		return ErrEmptyID
	}
	if f == nil {
		return fmt.Errorf("command %q: %w", d.ID, ErrNilFactory)
	}
	if _, ok := c.desc[d.ID]; ok {
		return fmt.Errorf("command %q: %w", d.ID, ErrDuplicateID)
	}
	c.order = append(c.order, d.ID)
	c.desc[d.ID] = d
	c.factories[d.ID] = f
	return nil
}

// MustRegister is Register that panics on error; for static startup tables.
func (c *CommandCatalog) MustRegister(d domain.CommandDescriptor, f HandlerFactory) {
	if err := c.Register(d, f); err != nil {
		panic(err)
	}
}

// Has reports whether id is registered.
func (c *CommandCatalog) Has(id string) bool {
	_, ok := c.desc[normalizeID(id)]
	return ok
}

// Get returns the descriptor of id.
func (c *CommandCatalog) Get(id string) (domain.CommandDescriptor, bool) {
	d, ok := c.desc[normalizeID(id)]
	return d, ok
}

// Factory returns the handler factory of id.
func (c *CommandCatalog) Factory(id string) (HandlerFactory, bool) {
	f, ok := c.factories[normalizeID(id)]
	return f, ok
}

// All returns every descriptor in registration order.
func (c *CommandCatalog) All() []domain.CommandDescriptor {
	out := make([]domain.CommandDescriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.desc[id])
	}
	return out
}

// NotifierCatalog is the registry of notifiers (topics).
type NotifierCatalog struct {
	order     []string
	desc      map[string]domain.NotifierDescriptor
	factories map[string]NotifierFactory
}

// NewNotifierCatalog returns an empty catalog.
func NewNotifierCatalog() *NotifierCatalog {
	return &NotifierCatalog{
		desc:      map[string]domain.NotifierDescriptor{},
		factories: map[string]NotifierFactory{},
	}
}

// Register adds a notifier. It must be called before dispatching starts.
func (c *NotifierCatalog) Register(d domain.NotifierDescriptor, f NotifierFactory) error {
	d.ID = normalizeID(d.ID)
	if d.ID == "" {
		return ErrEmptyID
	}
	if f == nil {
		return fmt.Errorf("notifier %q: %w", d.ID, ErrNilFactory)
	}
	if _, ok := c.desc[d.ID]; ok {
		return fmt.Errorf("notifier %q: %w", d.ID, ErrDuplicateID)
	}
	if d.Label == "" {
		d.Label = d.ID
	}
	c.order = append(c.order, d.ID)
	c.desc[d.ID] = d
	c.factories[d.ID] = f
	return nil
}

// MustRegister is Register that panics on error.
func (c *NotifierCatalog) MustRegister(d domain.NotifierDescriptor, f NotifierFactory) {
	if err := c.Register(d, f); err != nil {
		panic(err)
	}
}

// Has reports whether id is registered.
func (c *NotifierCatalog) Has(id string) bool {
	_, ok := c.desc[normalizeID(id)]
	return ok
}

// Get returns the descriptor of id.
func (c *NotifierCatalog) Get(id string) (domain.NotifierDescriptor, bool) {
	d, ok := c.desc[normalizeID(id)]
	return d, ok
}

// Factory returns the notifier factory of id.
func (c *NotifierCatalog) Factory(id string) (NotifierFactory, bool) {
	f, ok := c.factories[normalizeID(id)]
	return f, ok
}

// All returns every descriptor in registration order.
func (c *NotifierCatalog) All() []domain.NotifierDescriptor {
	out := make([]domain.NotifierDescriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.desc[id])
	}
	return out
}
