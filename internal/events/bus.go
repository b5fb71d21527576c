package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(RSAMComputedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case WaveformReceivedEvent:
		event.Publish(b.dispatcher, e)
	case RSAMComputedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case StreamConfigChangedEvent:
		event.Publish(b.dispatcher, e)
	case SubscriptionChangedEvent:
		event.Publish(b.dispatcher, e)
	case PacketDroppedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the event type.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e RSAMComputedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(WaveformReceivedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RSAMComputedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamConfigChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SubscriptionChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PacketDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
