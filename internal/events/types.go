package events

import (
	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/waveform"
)

// Event type constants for kelindar/event.
const (
	TypeWaveformReceived uint32 = iota + 1
	TypeRSAMComputed
	TypeStreamStateChanged
	TypeStreamConfigChanged
	TypeSubscriptionChanged
	TypePacketDropped
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// WaveformReceivedEvent carries a packet accepted for processing.
type WaveformReceivedEvent struct {
	Packet waveform.Packet `json:"packet" doc:"Waveform packet"`
}

// Type returns the event type identifier for WaveformReceivedEvent.
func (e WaveformReceivedEvent) Type() uint32 { return TypeWaveformReceived }

// RSAMComputedEvent is published when a stream closes an RSAM window.
type RSAMComputedEvent struct {
	rsam.Result
	Timestamp string `json:"timestamp" example:"2024-03-01T12:10:00Z" doc:"Computation timestamp"`
}

// Type returns the event type identifier for RSAMComputedEvent.
func (e RSAMComputedEvent) Type() uint32 { return TypeRSAMComputed }

// StreamStateChangedEvent reports a worker state transition.
type StreamStateChangedEvent struct {
	StreamID  string `json:"stream_id" example:"IU.ANMO.00.BHZ" doc:"Stream identifier"`
	OldState  string `json:"old_state" example:"starting" doc:"Previous worker state"`
	NewState  string `json:"new_state" example:"running" doc:"Current worker state"`
	Error     string `json:"error,omitempty" doc:"Error that caused the transition"`
	Timestamp string `json:"timestamp" example:"2024-03-01T12:00:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// StreamConfigChangedEvent is published when the stream catalogue adds, updates or removes a stream.
type StreamConfigChangedEvent struct {
	StreamID  string `json:"stream_id" example:"IU.ANMO.00.BHZ" doc:"Stream identifier"`
	Action    string `json:"action" example:"added" doc:"added, updated or removed"`
	Timestamp string `json:"timestamp" example:"2024-03-01T12:00:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamConfigChangedEvent.
func (e StreamConfigChangedEvent) Type() uint32 { return TypeStreamConfigChanged }

// SubscriptionChangedEvent reports a WebSocket client's subscription update.
type SubscriptionChangedEvent struct {
	ClientID  string   `json:"client_id" doc:"WebSocket client identifier"`
	Action    string   `json:"action" example:"subscribe" doc:"subscribe, unsubscribe or disconnect"`
	Streams   []string `json:"streams" doc:"Streams accepted by the request"`
	Rejected  int      `json:"rejected" doc:"Number of rejected stream identifiers"`
	Active    int      `json:"active" doc:"Subscriptions held by the client afterwards"`
	Total     int      `json:"total" doc:"Subscriptions held by all clients afterwards"`
	Timestamp string   `json:"timestamp" example:"2024-03-01T12:00:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SubscriptionChangedEvent.
func (e SubscriptionChangedEvent) Type() uint32 { return TypeSubscriptionChanged }

// PacketDroppedEvent is published when a worker inbox is full.
type PacketDroppedEvent struct {
	StreamID string `json:"stream_id" example:"IU.ANMO.00.BHZ" doc:"Stream identifier"`
	Samples  int    `json:"samples" doc:"Number of samples dropped"`
}

// Type returns the event type identifier for PacketDroppedEvent.
func (e PacketDroppedEvent) Type() uint32 { return TypePacketDropped }
