// Package events is the in-process event bus the modules communicate
// over. It carries no domain knowledge; event definitions live with the
// modules that publish them.
package events

import (
	"context"
	"time"
)

// Event is implemented by every published event.
type Event interface {
	// EventName identifies the event type; subscribers key on it.
	EventName() string
	// OccurredAt is the publication timestamp.
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp; embed it in concrete events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler consumes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers.
type Bus interface {
	// Publish delivers the event to every handler subscribed to its
	// name. Handlers run asynchronously; failures are logged, not
	// returned.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers the event and waits for all handlers,
	// returning the first handler failure.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers handler for events whose EventName matches
	// eventName.
	Subscribe(eventName string, handler Handler)
}
