package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/seisnode/internal/events"
	"github.com/smazurov/seisnode/internal/streamid"
)

// ConnectedEvent is the first message on every SSE connection.
type ConnectedEvent struct {
	Message   string   `json:"message" example:"SSE connection established"`
	Streams   []string `json:"streams,omitempty" doc:"Stream filter in effect, empty for all streams"`
	Timestamp string   `json:"timestamp" example:"2024-03-01T12:00:00Z"`
}

type eventsInput struct {
	Streams string `query:"streams" example:"IU.ANMO.00.BHZ,VG.TMKS..EHZ" doc:"Comma separated stream identifiers; stream events for other streams are skipped"`

	ids []string
}

type parserKey struct{}

// withParser exposes the server's identifier parser to input resolvers.
func (s *Server) withParser(ctx huma.Context, next func(huma.Context)) {
	next(huma.WithValue(ctx, parserKey{}, s.parse))
}

func parserFrom(ctx huma.Context) func(string) (streamid.StreamID, error) {
	if ctx != nil {
		if parse, ok := ctx.Context().Value(parserKey{}).(func(string) (streamid.StreamID, error)); ok {
			return parse
		}
	}
	return streamid.Parse
}

// Resolve validates the stream filter. Each malformed identifier is reported
// separately with its raw value.
func (i *eventsInput) Resolve(ctx huma.Context) []error {
	parse := parserFrom(ctx)
	var errs []error
	for _, raw := range strings.Split(i.Streams, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := parse(raw)
		if err != nil {
			errs = append(errs, &huma.ErrorDetail{
				Location: "query.streams",
				Message:  err.Error(),
				Value:    raw,
			})
			continue
		}
		i.ids = append(i.ids, id.String())
	}
	return errs
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of RSAM results, worker state changes, catalogue changes and subscription activity",
		Tags:        []string{"events"},
	}, map[string]any{
		"connected":             ConnectedEvent{},
		"rsam":                  events.RSAMComputedEvent{},
		"stream-state-changed":  events.StreamStateChangedEvent{},
		"stream-config-changed": events.StreamConfigChangedEvent{},
		"subscription-changed":  events.SubscriptionChangedEvent{},
		"packet-dropped":        events.PacketDroppedEvent{},
	}, func(ctx context.Context, input *eventsInput, send sse.Sender) {
		eventCh := make(chan any, 64)
		filter := events.NewStreamSet(input.ids...)

		unsubscribers := []func(){
			events.SubscribeToChannel(s.eventBus, eventCh, filter.RSAM),
			events.SubscribeToChannel(s.eventBus, eventCh, filter.StateChanged),
			events.SubscribeToChannel(s.eventBus, eventCh, filter.ConfigChanged),
			events.SubscribeToChannel[events.SubscriptionChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel(s.eventBus, eventCh, filter.Dropped),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(ConnectedEvent{
			Message:   "SSE connection established",
			Streams:   input.ids,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
