package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/smazurov/seisnode/internal/waveform"
)

// ErrStreamMismatch is returned when a packet names a different stream than its subject.
var ErrStreamMismatch = errors.New("packet stream does not match subject")

// PacketHandler consumes a decoded packet.
type PacketHandler func(pkt waveform.Packet) error

// BridgeStats counts what the bridge has seen.
type BridgeStats struct {
	Received uint64
	Accepted uint64
	Rejected uint64
}

// Bridge subscribes to waveform subjects and hands packets to a handler.
type Bridge struct {
	url     string
	handler PacketHandler
	conn    *nats.Conn
	sub     *nats.Subscription
	logger  *slog.Logger
	mu      sync.Mutex

	received atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewBridge creates a new NATS-to-service bridge.
func NewBridge(url string, handler PacketHandler, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		url:     url,
		handler: handler,
		logger:  logger.With("component", "nats-bridge"),
	}
}

// Start connects to NATS and subscribes to every waveform subject.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name("seisnode-bridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	sub, err := conn.Subscribe(SubjectWaveformPrefix+".>", b.handleWaveform)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to waveform subjects: %w", err)
	}

	b.conn = conn
	b.sub = sub
	b.logger.Info("NATS bridge subscribed", "subject", SubjectWaveformPrefix+".>", "url", b.url)
	return nil
}

// handleWaveform processes one incoming packet.
func (b *Bridge) handleWaveform(msg *nats.Msg) {
	b.received.Add(1)

	pkt, err := decodeForSubject(msg.Subject, msg.Data)
	if err == nil {
		err = b.handler(pkt)
	}
	if err != nil {
		b.rejected.Add(1)
		b.logger.Debug("Rejected waveform packet", "subject", msg.Subject, "error", err)
		return
	}
	b.accepted.Add(1)
}

// decodeForSubject decodes a packet published on a waveform subject. A packet
// without a stream takes the subject's; one with a stream must match it.
func decodeForSubject(subject string, data []byte) (waveform.Packet, error) {
	id, err := StreamFromSubject(SubjectWaveformPrefix, subject)
	if err != nil {
		return waveform.Packet{}, err
	}

	var pkt waveform.Packet
	if err := json.Unmarshal(data, &pkt); err != nil {
		return waveform.Packet{}, fmt.Errorf("decode packet: %w", err)
	}

	switch {
	case pkt.Stream.IsZero():
		pkt.Stream = id
	case pkt.Stream != id:
		return waveform.Packet{}, fmt.Errorf("%w: %s on %s", ErrStreamMismatch, pkt.Stream, subject)
	}

	if err := pkt.Validate(); err != nil {
		return waveform.Packet{}, err
	}
	return pkt, nil
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		Received: b.received.Load(),
		Accepted: b.accepted.Load(),
		Rejected: b.rejected.Load(),
	}
}

// Stop closes the bridge connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		_ = b.sub.Unsubscribe()
		b.sub = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
