package streams

import (
	"context"

	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/waveform"
	"github.com/smazurov/seisnode/internal/worker"
)

// Catalog maps stream identifiers to their configuration.
type Catalog map[streamid.StreamID]StreamSpec

// Store persists the stream catalogue.
type Store interface {
	// Load reads the catalogue. A *LoadError means some entries were skipped.
	Load() error

	// Save writes the catalogue.
	Save() error

	// AddStream adds a stream. Returns STREAM_EXISTS for a duplicate.
	AddStream(spec StreamSpec) error

	// UpdateStream replaces a stream's spec. Returns STREAM_NOT_FOUND if absent.
	UpdateStream(spec StreamSpec) error

	// RemoveStream removes a stream.
	RemoveStream(id streamid.StreamID) error

	// GetStream retrieves a stream by identifier.
	GetStream(id streamid.StreamID) (StreamSpec, bool)

	// GetAllStreams returns a copy of the catalogue.
	GetAllStreams() Catalog

	// GetEnabledStreams returns only enabled streams.
	GetEnabledStreams() Catalog
}

// StreamService defines the interface for stream operations.
type StreamService interface {
	ListStreams(ctx context.Context) ([]Stream, error)
	GetStream(ctx context.Context, rawID string) (*Stream, error)
	RestartStream(ctx context.Context, rawID string) error

	// HandlePacket routes a packet to its stream's worker.
	HandlePacket(pkt waveform.Packet) error

	// LoadStreamsFromConfig loads the store and starts enabled streams.
	LoadStreamsFromConfig() error

	// ApplyCatalog reconciles running workers with a new catalogue.
	ApplyCatalog(catalog Catalog)

	// Stop stops every worker.
	Stop()
}

// Stream is a stream's configuration combined with its runtime state.
type Stream struct {
	Spec       StreamSpec
	Configured bool
	Status     worker.Info
	Latest     *rsam.Result
}
