// Package events carries lead lifecycle notifications (connections, closures, ratings,
// follow-up prompts, intent outcomes) from the conversation engine and the follow-up
// sweeper to observers such as metrics. Delivery is in-process and best effort.
package events

import (
	"context"
	"time"
)

// Event is a named, timestamped notification.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent stamps an event with the time it happened.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event happened.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the wall clock.
func NewBaseEvent() BaseEvent {
	return BaseEventAt(time.Now())
}

// BaseEventAt stamps an event with at, in UTC. Conversation turns and sweeps use
// their own clock so events agree with the rows they wrote.
func BaseEventAt(at time.Time) BaseEvent {
	return BaseEvent{Timestamp: at.UTC()}
}

// Handler reacts to one event. Errors are logged by the bus, or returned by PublishSync.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events to the handlers subscribed to their name.
type Bus interface {
	// Publish hands event to its handlers without waiting for them.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers in order and stops at the first error.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers handler for events whose EventName is eventName.
	Subscribe(eventName string, handler Handler)
}
