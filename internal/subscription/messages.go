package subscription

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/smazurov/seisnode/internal/streamid"
)

// Message types
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeRSAM         = "rsam"
	TypeWaveform     = "waveform"
	TypeError        = "error"
)

// Message is a server-to-client frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Request is a client-to-server frame.
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StreamsRequest is the payload of subscribe and unsubscribe requests.
type StreamsRequest struct {
	Streams []string `json:"streams"`
}

// Rejection explains why one requested identifier was not accepted.
type Rejection struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

// Result answers a subscribe or unsubscribe request.
type Result struct {
	Accepted []string    `json:"accepted"`
	Rejected []Rejection `json:"rejected"`
	Active   int         `json:"active"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Message string `json:"message"`
}

func errorMessage(format string, args ...any) Message {
	return Message{Type: TypeError, Data: ErrorData{Message: fmt.Sprintf(format, args...)}}
}

// ParseStreams validates each raw identifier independently. Duplicates of an
// accepted identifier are collapsed.
func ParseStreams(raw []string, parse func(string) (streamid.StreamID, error)) ([]streamid.StreamID, []Rejection) {
	ids := make([]streamid.StreamID, 0, len(raw))
	seen := make(map[streamid.StreamID]struct{}, len(raw))
	var rejected []Rejection

	for _, r := range raw {
		id, err := parse(r)
		if err != nil {
			rejected = append(rejected, Rejection{Stream: r, Error: err.Error()})
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, rejected
}

func decodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("malformed message: %w", err)
	}
	if req.Type == "" {
		return Request{}, fmt.Errorf("message has no type")
	}
	return req, nil
}

func decodeStreams(data json.RawMessage) (StreamsRequest, error) {
	var req StreamsRequest
	if len(data) == 0 {
		return req, fmt.Errorf("missing data.streams")
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("malformed data: %w", err)
	}
	return req, nil
}
