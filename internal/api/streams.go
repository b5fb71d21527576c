package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/seisnode/internal/api/models"
	"github.com/smazurov/seisnode/internal/streams"
)

type streamPathInput struct {
	StreamID string `path:"stream_id" example:"IU.ANMO.00.BHZ" doc:"Stream identifier (network.station.location.channel)"`
}

// registerStreamRoutes registers all stream-related endpoints
func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "List configured streams and any auto-started ones with their worker state",
		Tags:        []string{"streams"},
		Errors:      []int{500},
	}, func(ctx context.Context, _ *struct{}) (*models.StreamListResponse, error) {
		list, err := s.streamService.ListStreams(ctx)
		if err != nil {
			return nil, s.mapStreamError(err)
		}

		apiStreams := make([]models.StreamData, len(list))
		for i, stream := range list {
			apiStreams[i] = domainToAPIStream(stream)
		}

		return &models.StreamListResponse{
			Body: models.StreamListData{
				Streams: apiStreams,
				Count:   len(apiStreams),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/streams/{stream_id}",
		Summary:     "Get Stream",
		Description: "Get a stream's configuration, worker state and latest RSAM window",
		Tags:        []string{"streams"},
		Errors:      []int{400, 404, 500},
	}, func(ctx context.Context, input *streamPathInput) (*models.StreamResponse, error) {
		stream, err := s.streamService.GetStream(ctx, input.StreamID)
		if err != nil {
			return nil, s.mapStreamError(err)
		}

		return &models.StreamResponse{Body: domainToAPIStream(*stream)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams/{stream_id}/restart",
		Summary:     "Restart Stream",
		Description: "Restart a stream's worker. The open window is flushed and a new one starts with the next packet.",
		Tags:        []string{"streams"},
		Errors:      []int{400, 404, 409, 500},
	}, func(ctx context.Context, input *streamPathInput) (*models.StreamRestartResponse, error) {
		if err := s.streamService.RestartStream(ctx, input.StreamID); err != nil {
			return nil, s.mapStreamError(err)
		}

		stream, err := s.streamService.GetStream(ctx, input.StreamID)
		if err != nil {
			return nil, s.mapStreamError(err)
		}

		return &models.StreamRestartResponse{
			Body: models.StreamRestartData{
				StreamID: stream.Spec.ID.String(),
				Message:  "Stream restarted",
			},
		}, nil
	})
}

// domainToAPIStream converts a domain stream to API stream data
func domainToAPIStream(stream streams.Stream) models.StreamData {
	id := stream.Spec.ID
	data := models.StreamData{
		StreamID:     id.String(),
		Network:      id.Network(),
		Station:      id.Station(),
		Location:     id.Location(),
		Channel:      id.Channel(),
		Name:         stream.Spec.Name,
		Configured:   stream.Configured,
		Enabled:      stream.Spec.Enabled,
		Window:       stream.Spec.Window,
		Bands:        stream.Spec.Bands,
		State:        string(stream.Status.State),
		RestartCount: stream.Status.RestartCount,
		Queued:       stream.Status.Queued,
		Dispatched:   stream.Status.Dispatched,
		Dropped:      stream.Status.Dropped,
	}

	if !stream.Status.StartedAt.IsZero() {
		startedAt := stream.Status.StartedAt
		data.StartedAt = &startedAt
	}
	if stream.Status.LastError != nil {
		data.LastError = stream.Status.LastError.Error()
	}
	if r := stream.Latest; r != nil {
		data.Latest = &models.ResultData{
			WindowStart: r.WindowStart,
			WindowEnd:   r.WindowEnd(),
			SampleRate:  r.SampleRate,
			RSAM:        r.RSAM,
			SSAM:        r.SSAM,
			Samples:     r.Samples,
		}
	}
	return data
}

// mapStreamError maps domain errors to HTTP errors
func (s *Server) mapStreamError(err error) error {
	var streamErr *streams.StreamError
	if errors.As(err, &streamErr) {
		switch streamErr.Code {
		case streams.ErrCodeStreamNotFound:
			return huma.Error404NotFound(streamErr.Message)
		case streams.ErrCodeInvalidIdentifier, streams.ErrCodeInvalidParams:
			return huma.Error400BadRequest(streamErr.Message)
		case streams.ErrCodeStreamExists, streams.ErrCodeStreamDisabled:
			return huma.Error409Conflict(streamErr.Message)
		}
	}

	s.logger.Error("Stream operation failed", "error", err)
	return huma.Error500InternalServerError("Internal server error", err)
}
