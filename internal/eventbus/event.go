// Package eventbus implements the core's typed publish/subscribe hub:
// synchronous and async dispatch, priority-ordered handlers, and a
// delayed/periodic schedule backed by a priority queue. Event payloads
// are a tagged union rather than an any-typed box: every concrete
// payload type fixes its own EventType, and Subscribe binds a handler
// to exactly that type, so dispatch never needs a runtime type
// assertion a caller could get wrong.
package eventbus

import "fmt"

// EventType tags a class of published event. The bus keys its
// subscriber table by this tag; it never inspects a payload's Go type
// to route it.
type EventType string

// Event is implemented by every concrete payload the bus carries. A
// payload type fixes its own tag (EventType always returns the same
// constant for a given type), which is what lets Subscribe derive the
// tag from the handler's type parameter alone.
type Event interface {
	EventType() EventType
}

// Handler processes one event of payload type T. A non-nil return does
// not stop sibling handlers from running — the bus isolates and logs
// the failure.
type Handler[T Event] func(T) error

// wrapHandler adapts a typed Handler[T] into the bus's internal
// type-erased form. The type assertion here can only fail if a caller
// publishes some other concrete type under T's tag, which Publish's own
// callers control — Subscribe is what keeps ordinary use sites from
// ever doing that.
func wrapHandler[T Event](tag EventType, handler Handler[T]) func(Event) error {
	return func(e Event) error {
		typed, ok := e.(T)
		if !ok {
			return fmt.Errorf("eventbus: handler registered for %s received %T", tag, e)
		}
		return handler(typed)
	}
}
