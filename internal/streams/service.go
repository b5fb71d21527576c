package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/seisnode/internal/events"
	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/waveform"
	"github.com/smazurov/seisnode/internal/worker"
)

// ServiceOptions contains configuration for the stream service
type ServiceOptions struct {
	Store    Store       // Stream catalogue (required)
	EventBus *events.Bus // Receives results and state changes (optional)

	DefaultWindow time.Duration // RSAM window for streams without one
	DefaultBands  []rsam.Band   // SSAM bands for streams without their own

	// StrictIdentifiers rejects identifiers with trailing input.
	StrictIdentifiers bool

	// AcceptUnknown starts a worker for packets whose stream is not configured.
	AcceptUnknown bool

	InboxSize int
	Logger    *slog.Logger
}

// StreamServiceImpl implements the StreamService interface
type StreamServiceImpl struct {
	store    Store
	eventBus *events.Bus
	pool     worker.Pool
	logger   *slog.Logger
	parse    func(string) (streamid.StreamID, error)

	defaultWindow time.Duration
	defaultBands  []rsam.Band
	acceptUnknown bool

	mu      sync.RWMutex
	catalog Catalog
	latest  map[streamid.StreamID]rsam.Result
}

// NewStreamService creates a new stream service
func NewStreamService(opts *ServiceOptions) StreamService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.DefaultWindow
	if window <= 0 {
		window = rsam.DefaultWindow
	}
	bands := opts.DefaultBands
	if len(bands) == 0 {
		bands = rsam.DefaultBands
	}

	s := &StreamServiceImpl{
		store:         opts.Store,
		eventBus:      opts.EventBus,
		logger:        logger,
		parse:         streamid.Parser(opts.StrictIdentifiers),
		defaultWindow: window,
		defaultBands:  bands,
		acceptUnknown: opts.AcceptUnknown,
		catalog:       make(Catalog),
		latest:        make(map[streamid.StreamID]rsam.Result),
	}

	// HandlePacket filters unknown and disabled streams before dispatching,
	// so the pool may start tasks on demand. This also revives crashed tasks.
	s.pool = worker.NewPool(&worker.PoolOptions{
		TaskProvider:  s.buildTask,
		OnStateChange: s.onStateChange,
		OnDrop:        s.onDrop,
		InboxSize:     opts.InboxSize,
		AutoStart:     true,
		Logger:        logger.With("component", "pool"),
	})

	return s
}

// LoadStreamsFromConfig loads the store and starts enabled streams.
func (s *StreamServiceImpl) LoadStreamsFromConfig() error {
	err := s.store.Load()
	var loadErr *LoadError
	switch {
	case errors.As(err, &loadErr):
		for _, entry := range loadErr.Entries {
			s.logger.Warn("Skipping invalid stream entry", "index", entry.Index, "id", entry.Raw, "error", entry.Err)
		}
	case err != nil:
		return NewStreamError(ErrCodeConfigError, "failed to load streams", err)
	}

	s.ApplyCatalog(s.store.GetAllStreams())
	return nil
}

// ApplyCatalog reconciles running workers with a new catalogue: removed or
// disabled streams are stopped, new enabled streams started and streams whose
// window or bands changed are restarted.
func (s *StreamServiceImpl) ApplyCatalog(catalog Catalog) {
	next := make(Catalog, len(catalog))
	for id, spec := range catalog {
		next[id] = spec
	}

	s.mu.Lock()
	prev := s.catalog
	s.catalog = next
	s.mu.Unlock()

	for id, old := range prev {
		spec, ok := next[id]
		switch {
		case !ok:
			s.stopIfActive(id)
			s.publishConfigChange(id, "removed")
		case !spec.Enabled:
			s.stopIfActive(id)
			if old.Enabled {
				s.publishConfigChange(id, "updated")
			}
		case !old.Enabled || !old.sameProcessing(spec):
			s.startOrRestart(id)
			s.publishConfigChange(id, "updated")
		case old.Name != spec.Name:
			s.publishConfigChange(id, "updated")
		}
	}

	for id, spec := range next {
		if _, existed := prev[id]; existed {
			continue
		}
		if spec.Enabled {
			s.startOrRestart(id)
		}
		s.publishConfigChange(id, "added")
	}

	s.logger.Info("Stream catalogue applied", "streams", len(next), "running", len(s.pool.List()))
}

func (s *StreamServiceImpl) stopIfActive(id streamid.StreamID) {
	if !s.pool.Has(id) {
		return
	}
	if err := s.pool.Stop(id); err != nil {
		s.logger.Warn("Failed to stop stream worker", "stream_id", id.String(), "error", err)
	}
}

func (s *StreamServiceImpl) startOrRestart(id streamid.StreamID) {
	var err error
	if s.pool.Has(id) {
		err = s.pool.Restart(id)
	} else {
		err = s.pool.Start(id)
	}
	if err != nil {
		s.logger.Error("Failed to start stream worker", "stream_id", id.String(), "error", err)
	}
}

// HandlePacket validates a packet and routes it to its stream's worker.
func (s *StreamServiceImpl) HandlePacket(pkt waveform.Packet) error {
	if err := pkt.Validate(); err != nil {
		return NewStreamError(ErrCodeInvalidParams, "invalid packet", err)
	}

	spec, configured := s.spec(pkt.Stream)
	switch {
	case configured && !spec.Enabled:
		return NewStreamError(ErrCodeStreamDisabled, fmt.Sprintf("stream %s is disabled", pkt.Stream), nil)
	case !configured && !s.acceptUnknown:
		return NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %s is not configured", pkt.Stream), nil)
	}

	if err := s.pool.Dispatch(pkt); err != nil {
		return NewStreamError(ErrCodeProcessingError, fmt.Sprintf("stream %s rejected packet", pkt.Stream), err)
	}

	if s.eventBus != nil {
		s.eventBus.Publish(events.WaveformReceivedEvent{Packet: pkt})
	}
	return nil
}

// ListStreams returns configured streams and any running unconfigured ones,
// ordered by identifier.
func (s *StreamServiceImpl) ListStreams(_ context.Context) ([]Stream, error) {
	s.mu.RLock()
	ids := make([]streamid.StreamID, 0, len(s.catalog))
	for id := range s.catalog {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, info := range s.pool.List() {
		if _, ok := s.spec(info.ID); !ok {
			ids = append(ids, info.ID)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	result := make([]Stream, 0, len(ids))
	for _, id := range ids {
		if stream, ok := s.describe(id); ok {
			result = append(result, *stream)
		}
	}
	return result, nil
}

// GetStream returns a stream by its raw identifier.
func (s *StreamServiceImpl) GetStream(_ context.Context, rawID string) (*Stream, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	stream, ok := s.describe(id)
	if !ok {
		return nil, NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %s not found", id), nil)
	}
	return stream, nil
}

// RestartStream restarts a stream's worker. The open window is flushed first.
func (s *StreamServiceImpl) RestartStream(_ context.Context, rawID string) error {
	id, err := s.parseID(rawID)
	if err != nil {
		return err
	}

	spec, configured := s.spec(id)
	switch {
	case configured && !spec.Enabled:
		return NewStreamError(ErrCodeStreamDisabled, fmt.Sprintf("stream %s is disabled", id), nil)
	case !configured && !s.pool.Has(id):
		return NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %s not found", id), nil)
	}

	if err := s.pool.Restart(id); err != nil {
		return NewStreamError(ErrCodeProcessingError, fmt.Sprintf("failed to restart stream %s", id), err)
	}
	return nil
}

// Stop stops every worker.
func (s *StreamServiceImpl) Stop() {
	s.pool.StopAll()
}

func (s *StreamServiceImpl) parseID(rawID string) (streamid.StreamID, error) {
	id, err := s.parse(rawID)
	if err != nil {
		return streamid.StreamID{}, NewStreamError(ErrCodeInvalidIdentifier, err.Error(), err)
	}
	return id, nil
}

func (s *StreamServiceImpl) spec(id streamid.StreamID) (StreamSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.catalog[id]
	return spec, ok
}

func (s *StreamServiceImpl) describe(id streamid.StreamID) (*Stream, bool) {
	spec, configured := s.spec(id)
	if !configured && !s.pool.Has(id) {
		return nil, false
	}

	stream := &Stream{Spec: spec, Configured: configured, Status: *s.pool.GetStatus(id)}
	if !configured {
		stream.Spec = StreamSpec{ID: id, Enabled: true}
	}

	s.mu.RLock()
	if r, ok := s.latest[id]; ok {
		stream.Latest = &r
	}
	s.mu.RUnlock()

	return stream, true
}

// buildTask returns the worker loop for a stream: packets feed an
// accumulator and every closed window is published. The open window is
// flushed when the task is stopped.
func (s *StreamServiceImpl) buildTask(id streamid.StreamID) (worker.Task, error) {
	spec, configured := s.spec(id)
	if !configured && !s.acceptUnknown {
		return nil, NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %s not found", id), nil)
	}

	window := spec.WindowOr(s.defaultWindow)
	bands := spec.BandsOr(s.defaultBands)
	logger := s.logger.With("stream_id", id.String())

	return func(ctx context.Context, id streamid.StreamID, inbox <-chan waveform.Packet) error {
		acc := rsam.NewAccumulator(id, window, bands)
		logger.Debug("Stream worker started", "window", window, "bands", len(bands))

		for {
			select {
			case <-ctx.Done():
				if result, ok := acc.Flush(); ok {
					s.publishResult(result)
				}
				if late := acc.Late(); late > 0 {
					logger.Info("Stream worker stopped", "late_samples", late)
				}
				return nil
			case pkt := <-inbox:
				for _, result := range acc.Add(pkt) {
					s.publishResult(result)
				}
			}
		}
	}, nil
}

func (s *StreamServiceImpl) publishResult(result rsam.Result) {
	s.mu.Lock()
	s.latest[result.Stream] = result
	s.mu.Unlock()

	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(events.RSAMComputedEvent{
		Result:    result,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *StreamServiceImpl) onStateChange(id streamid.StreamID, oldState, newState worker.State, err error) {
	if s.eventBus == nil {
		return
	}
	ev := events.StreamStateChangedEvent{
		StreamID:  id.String(),
		OldState:  string(oldState),
		NewState:  string(newState),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.eventBus.Publish(ev)
}

func (s *StreamServiceImpl) onDrop(pkt waveform.Packet) {
	s.logger.Warn("Stream inbox full, packet dropped", "stream_id", pkt.Stream.String(), "samples", len(pkt.Samples))
	if s.eventBus != nil {
		s.eventBus.Publish(events.PacketDroppedEvent{StreamID: pkt.Stream.String(), Samples: len(pkt.Samples)})
	}
}

func (s *StreamServiceImpl) publishConfigChange(id streamid.StreamID, action string) {
	if action == "removed" {
		s.mu.Lock()
		delete(s.latest, id)
		s.mu.Unlock()
	}
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(events.StreamConfigChangedEvent{
		StreamID:  id.String(),
		Action:    action,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
