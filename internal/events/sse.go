package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels
// for Huma's SSE select loop. An event is forwarded only when every keep
// function accepts it. Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any, keep ...func(T) bool) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		for _, k := range keep {
			if k != nil && !k(e) {
				return
			}
		}
		select {
		case ch <- e:
		default:
		}
	})
}

// StreamSet matches events by canonical stream identifier. A nil set matches
// every stream.
type StreamSet map[string]struct{}

// NewStreamSet builds a set from canonical identifiers. No identifiers
// yields nil.
func NewStreamSet(ids ...string) StreamSet {
	if len(ids) == 0 {
		return nil
	}
	set := make(StreamSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set.
func (s StreamSet) Has(id string) bool {
	if s == nil {
		return true
	}
	_, ok := s[id]
	return ok
}

// RSAM filters RSAMComputedEvent.
func (s StreamSet) RSAM(e RSAMComputedEvent) bool { return s.Has(e.Stream.String()) }

// StateChanged filters StreamStateChangedEvent.
func (s StreamSet) StateChanged(e StreamStateChangedEvent) bool { return s.Has(e.StreamID) }

// ConfigChanged filters StreamConfigChangedEvent.
func (s StreamSet) ConfigChanged(e StreamConfigChangedEvent) bool { return s.Has(e.StreamID) }

// Dropped filters PacketDroppedEvent.
func (s StreamSet) Dropped(e PacketDroppedEvent) bool { return s.Has(e.StreamID) }
