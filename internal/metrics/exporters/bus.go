package exporters

import (
	"github.com/smazurov/seisnode/internal/events"
	"github.com/smazurov/seisnode/internal/metrics"
	"github.com/smazurov/seisnode/internal/streamid"
)

// EventSubscriber is the subscribe side of events.Bus.
type EventSubscriber interface {
	Subscribe(handler any) func()
}

// BusCollector updates Prometheus metrics from bus events.
type BusCollector struct {
	bus    EventSubscriber
	unsubs []func()
}

// NewBusCollector creates a collector. Call Start to begin collecting.
func NewBusCollector(bus EventSubscriber) *BusCollector {
	return &BusCollector{bus: bus}
}

// Start subscribes to result, packet, subscription and configuration events.
func (c *BusCollector) Start() {
	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(func(e events.RSAMComputedEvent) {
			metrics.ObserveResult(e.Result)
		}),
		c.bus.Subscribe(func(e events.WaveformReceivedEvent) {
			metrics.PacketReceived(e.Packet.Stream, len(e.Packet.Samples))
		}),
		c.bus.Subscribe(func(e events.PacketDroppedEvent) {
			if id, err := streamid.Parse(e.StreamID); err == nil {
				metrics.PacketDropped(id)
			}
		}),
		c.bus.Subscribe(func(e events.SubscriptionChangedEvent) {
			metrics.SetSubscriptions(e.Total)
		}),
		c.bus.Subscribe(func(e events.StreamConfigChangedEvent) {
			if e.Action != "removed" {
				return
			}
			if id, err := streamid.Parse(e.StreamID); err == nil {
				metrics.DeleteStream(id)
			}
		}),
	)
}

// Stop unsubscribes from the bus.
func (c *BusCollector) Stop() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
