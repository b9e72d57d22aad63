// Package services defines the command dispatch and notification engine.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Only ErrStore is meant to escape a single update's processing: every other
// failure is recovered at the dispatcher boundary and logged. Translation into
// HTTP status codes is performed at the handler layer.
package services

import "errors"

var (
	// ErrStore wraps failures of the persistence layer (state, subscriptions,
	// users). It is the only error class that aborts processing of an update.
	ErrStore = errors.New("store unavailable")

	// ErrUnknownNotifier is returned by Subscribe/Unsubscribe when the
	// notifier id is not registered. Callers resolve ids through the catalog
	// before reaching this layer.
	ErrUnknownNotifier = errors.New("unknown notifier")

	// ErrEmptyID is returned when a command or notifier is registered with an
	// empty identifier.
	ErrEmptyID = errors.New("descriptor id is empty")

	// ErrDuplicateID is returned when an identifier is registered twice in the
	// same catalog.
	ErrDuplicateID = errors.New("descriptor id already registered")

	// ErrNilFactory is returned when a descriptor is registered without a
	// factory.
	ErrNilFactory = errors.New("factory is nil")

	// ErrNotSubscribed is returned by Unsubscribe when no subscription exists
	// for the pair.
	ErrNotSubscribed = errors.New("not subscribed")
)
