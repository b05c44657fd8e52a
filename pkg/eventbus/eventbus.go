package eventbus

import (
	"context"

	"github.com/stellarpay/starbridge/pkg/domain"
)

// HandlerFunc consumes one event. Handlers own their error handling;
// the bus does not retry.
type HandlerFunc func(ctx context.Context, event domain.Event) error

// Bus is the contract for publishing and subscribing to domain events.
type Bus interface {
	// Emit dispatches the event to every handler registered for its type.
	Emit(ctx context.Context, event domain.Event) error

	// Register subscribes a handler to an event type.
	Register(eventType string, handler HandlerFunc)
}
