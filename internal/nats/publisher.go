package nats

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/smazurov/seisnode/internal/events"
	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/waveform"
)

// Publisher publishes packets and results to NATS.
// Gracefully degrades when NATS is unavailable.
type Publisher struct {
	url       string
	name      string
	conn      *nats.Conn
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
}

// NewPublisher creates a publisher. name identifies the connection on the server.
func NewPublisher(url, name string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = "seisnode-publisher"
	}

	return &Publisher{
		url:    url,
		name:   name,
		logger: logger.With("component", "nats-publisher"),
	}
}

// Connect establishes a connection to the NATS server. On failure the
// publisher stays usable and every publish is a no-op.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := nats.Connect(p.url,
		nats.Name(p.name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.setConnected(false)
			if err != nil {
				p.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.setConnected(true)
			p.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		p.logger.Warn("Failed to connect to NATS, running in offline mode", "error", err)
		return err
	}

	p.conn = conn
	p.connected = true
	p.logger.Info("Connected to NATS", "url", p.url)
	return nil
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// publish sends a JSON payload. No-op if not connected.
func (p *Publisher) publish(subject string, v any) error {
	p.mu.RLock()
	conn := p.conn
	connected := p.connected
	p.mu.RUnlock()

	if conn == nil || !connected {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", subject, err)
	}
	if err := conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// PublishPacket publishes a packet on its stream's waveform subject.
func (p *Publisher) PublishPacket(pkt waveform.Packet) error {
	return p.publish(SubjectWaveform(pkt.Stream), pkt)
}

// PublishResult publishes a result on its stream's RSAM subject.
func (p *Publisher) PublishResult(r rsam.Result) error {
	return p.publish(SubjectRSAM(r.Stream), r)
}

// AttachBus publishes every RSAMComputedEvent. Returns an unsubscribe function.
func (p *Publisher) AttachBus(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.RSAMComputedEvent) {
		if err := p.PublishResult(e.Result); err != nil {
			p.logger.Warn("Failed to publish result", "stream_id", e.Stream.String(), "error", err)
		}
	})
}

// Flush waits until buffered messages reach the server.
func (p *Publisher) Flush(timeout time.Duration) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return conn.FlushTimeout(timeout)
}

// IsConnected returns true if connected to NATS.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.conn != nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		_ = p.conn.Drain()
		p.conn = nil
	}
	p.connected = false
	p.logger.Debug("NATS publisher closed")
}
