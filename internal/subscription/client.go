package subscription

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// clientSeq orders clients for deterministic fan-out.
var clientSeq atomic.Uint64

// Client is one WebSocket connection and its outgoing queue.
type Client struct {
	id        string
	seq       uint64
	hub       *Hub
	conn      *websocket.Conn
	send      chan Message
	closeOnce sync.Once
}

// NewClient creates a client with a random identifier.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		seq:  clientSeq.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBufferSize),
	}
}

// ID returns the client's identifier.
func (c *Client) ID() string {
	return c.id
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// trySend queues msg without blocking. Callers hold hub.mu.
func (c *Client) trySend(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes the send queue, which makes writePump close the connection.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// reply queues msg if the client is still registered. A client whose send
// buffer is full is disconnected, as in Hub.Publish, rather than left without
// its acknowledgement.
func (c *Client) reply(msg Message) bool {
	c.hub.mu.RLock()
	_, registered := c.hub.clients[c]
	sent := registered && c.trySend(msg)
	c.hub.mu.RUnlock()

	if registered && !sent {
		c.hub.logger.Warn("Client send buffer full, dropping reply and disconnecting", "client_id", c.id, "type", msg.Type)
		c.hub.Unregister(c)
	}
	return sent
}

// readPump pumps requests from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("Failed to set read deadline", "client_id", c.id, "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("Unexpected websocket close", "client_id", c.id, "error", err)
			}
			return
		}
		c.handle(data)
	}
}

// handle answers one client request.
func (c *Client) handle(data []byte) {
	req, err := decodeRequest(data)
	if err != nil {
		c.reply(errorMessage("%v", err))
		return
	}

	switch req.Type {
	case TypePing:
		c.reply(Message{Type: TypePong})
	case TypeSubscribe, TypeUnsubscribe:
		streams, err := decodeStreams(req.Data)
		if err != nil {
			c.reply(errorMessage("%s: %v", req.Type, err))
			return
		}
		if req.Type == TypeSubscribe {
			c.reply(Message{Type: TypeSubscribed, Data: c.hub.Subscribe(c, streams.Streams)})
		} else {
			c.reply(Message{Type: TypeUnsubscribed, Data: c.hub.Unsubscribe(c, streams.Streams)})
		}
	default:
		c.reply(errorMessage("unknown message type %q", req.Type))
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				c.hub.logger.Error("Failed to encode message", "client_id", c.id, "type", msg.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
