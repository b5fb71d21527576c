package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/seisnode/internal/events"
	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/waveform"
)

// DefaultMaxSubscriptions caps the streams one client may follow.
const DefaultMaxSubscriptions = 100

// HubOptions configures a Hub.
type HubOptions struct {
	// MaxSubscriptions per client. Defaults to DefaultMaxSubscriptions.
	MaxSubscriptions int

	// StrictIdentifiers rejects identifiers with trailing input.
	StrictIdentifiers bool

	// EventBus receives SubscriptionChangedEvent (optional).
	EventBus *events.Bus

	Logger *slog.Logger
}

// Hub tracks clients and the streams each one follows.
type Hub struct {
	clients map[*Client]map[streamid.StreamID]struct{}
	streams map[streamid.StreamID]map[*Client]struct{}
	closed  bool
	mu      sync.RWMutex

	maxSubscriptions int
	parse            func(string) (streamid.StreamID, error)
	bus              *events.Bus
	logger           *slog.Logger
}

// NewHub creates a new Hub
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSubs := opts.MaxSubscriptions
	if maxSubs <= 0 {
		maxSubs = DefaultMaxSubscriptions
	}
	return &Hub{
		clients:          make(map[*Client]map[streamid.StreamID]struct{}),
		streams:          make(map[streamid.StreamID]map[*Client]struct{}),
		maxSubscriptions: maxSubs,
		parse:            streamid.Parser(opts.StrictIdentifiers),
		bus:              opts.EventBus,
		logger:           logger,
	}
}

// RunWithContext blocks until ctx is cancelled, then closes every client.
func (h *Hub) RunWithContext(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.sortedClientsLocked()
	for _, c := range clients {
		h.removeLocked(c)
	}
	total := h.totalLocked()
	h.mu.Unlock()

	h.logger.Info("Subscription hub stopped", "clients_closed", len(clients))
	h.publishChange("", "shutdown", nil, 0, 0, total)
	return ctx.Err()
}

// Register adds a client. Returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = make(map[streamid.StreamID]struct{})
	h.logger.Debug("Client connected", "client_id", c.ID(), "total_clients", len(h.clients))
	return true
}

// Unregister removes a client and all its subscriptions.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	subs, ok := h.clients[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	dropped := idStrings(subs)
	h.removeLocked(c)
	total := h.totalLocked()
	remaining := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("Client disconnected", "client_id", c.ID(), "total_clients", remaining)
	h.publishChange(c.ID(), "disconnect", dropped, 0, 0, total)
}

// removeLocked closes the client's send channel and drops its subscriptions.
// Callers hold h.mu.
func (h *Hub) removeLocked(c *Client) {
	for id := range h.clients[c] {
		h.unsubscribeLocked(c, id)
	}
	delete(h.clients, c)
	c.closeSend()
}

func (h *Hub) unsubscribeLocked(c *Client, id streamid.StreamID) {
	delete(h.clients[c], id)
	if subs, ok := h.streams[id]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.streams, id)
		}
	}
}

// Subscribe validates each raw identifier and subscribes the client to the
// valid ones, up to the per-client limit.
func (h *Hub) Subscribe(c *Client, raw []string) Result {
	ids, rejected := ParseStreams(raw, h.parse)
	accepted := make([]string, 0, len(ids))

	h.mu.Lock()
	subs, ok := h.clients[c]
	if !ok {
		h.mu.Unlock()
		return Result{Accepted: accepted, Rejected: append(rejected, rejectAll(ids, "client is not connected")...)}
	}
	for _, id := range ids {
		if _, already := subs[id]; already {
			accepted = append(accepted, id.String())
			continue
		}
		if len(subs) >= h.maxSubscriptions {
			rejected = append(rejected, Rejection{
				Stream: id.String(),
				Error:  fmt.Sprintf("subscription limit of %d reached", h.maxSubscriptions),
			})
			continue
		}
		subs[id] = struct{}{}
		if h.streams[id] == nil {
			h.streams[id] = make(map[*Client]struct{})
		}
		h.streams[id][c] = struct{}{}
		accepted = append(accepted, id.String())
	}
	active := len(subs)
	total := h.totalLocked()
	h.mu.Unlock()

	h.publishChange(c.ID(), TypeSubscribe, accepted, len(rejected), active, total)
	return Result{Accepted: accepted, Rejected: nonNil(rejected), Active: active}
}

// Unsubscribe removes the valid identifiers from the client's subscriptions.
// Identifiers the client was not subscribed to are still reported accepted.
func (h *Hub) Unsubscribe(c *Client, raw []string) Result {
	ids, rejected := ParseStreams(raw, h.parse)
	accepted := make([]string, 0, len(ids))

	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return Result{Accepted: accepted, Rejected: append(rejected, rejectAll(ids, "client is not connected")...)}
	}
	for _, id := range ids {
		h.unsubscribeLocked(c, id)
		accepted = append(accepted, id.String())
	}
	active := len(h.clients[c])
	total := h.totalLocked()
	h.mu.Unlock()

	h.publishChange(c.ID(), TypeUnsubscribe, accepted, len(rejected), active, total)
	return Result{Accepted: accepted, Rejected: nonNil(rejected), Active: active}
}

// Publish sends msg to the stream's subscribers and returns how many clients
// received it. Clients whose send buffer is full are disconnected.
func (h *Hub) Publish(id streamid.StreamID, msg Message) int {
	h.mu.Lock()
	subs := h.streams[id]
	clients := make([]*Client, 0, len(subs))
	for c := range subs {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].seq < clients[j].seq })

	delivered := 0
	var slow []*Client
	for _, c := range clients {
		if c.trySend(msg) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.logger.Warn("Client send buffer full, disconnecting", "client_id", c.ID())
		h.removeLocked(c)
	}
	h.mu.Unlock()

	return delivered
}

// PublishResult forwards an RSAM result to the stream's subscribers.
func (h *Hub) PublishResult(r rsam.Result) int {
	return h.Publish(r.Stream, Message{Type: TypeRSAM, Data: r})
}

// PublishPacket forwards a waveform packet to the stream's subscribers.
func (h *Hub) PublishPacket(p waveform.Packet) int {
	return h.Publish(p.Stream, Message{Type: TypeWaveform, Data: p})
}

// AttachBus forwards RSAM results and waveform packets from the bus.
// Returns a function that detaches the hub.
func (h *Hub) AttachBus(bus *events.Bus) func() {
	unsubResults := bus.Subscribe(func(e events.RSAMComputedEvent) {
		h.PublishResult(e.Result)
	})
	unsubPackets := bus.Subscribe(func(e events.WaveformReceivedEvent) {
		h.PublishPacket(e.Packet)
	})
	return func() {
		unsubResults()
		unsubPackets()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients following a stream.
func (h *Hub) SubscriberCount(id streamid.StreamID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[id])
}

// Subscriptions returns the streams a client follows, sorted.
func (h *Hub) Subscriptions(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return idStrings(h.clients[c])
}

func (h *Hub) totalLocked() int {
	total := 0
	for _, subs := range h.clients {
		total += len(subs)
	}
	return total
}

func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].seq < clients[j].seq })
	return clients
}

func (h *Hub) publishChange(clientID, action string, streams []string, rejected, active, total int) {
	if h.bus == nil {
		return
	}
	if streams == nil {
		streams = []string{}
	}
	h.bus.Publish(events.SubscriptionChangedEvent{
		ClientID:  clientID,
		Action:    action,
		Streams:   streams,
		Rejected:  rejected,
		Active:    active,
		Total:     total,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func idStrings(set map[streamid.StreamID]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id.String())
	}
	sort.Strings(out)
	return out
}

func rejectAll(ids []streamid.StreamID, reason string) []Rejection {
	out := make([]Rejection, 0, len(ids))
	for _, id := range ids {
		out = append(out, Rejection{Stream: id.String(), Error: reason})
	}
	return out
}

func nonNil(r []Rejection) []Rejection {
	if r == nil {
		return []Rejection{}
	}
	return r
}
