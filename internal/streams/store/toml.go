package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/streams"
)

// fileStream is a [[streams]] entry as written in the file. The identifier
// stays a string so one bad entry does not reject the whole file.
type fileStream struct {
	ID      string      `toml:"id"`
	Name    string      `toml:"name,omitempty"`
	Enabled *bool       `toml:"enabled,omitempty"`
	Window  string      `toml:"window,omitempty"`
	Bands   []rsam.Band `toml:"bands,omitempty"`
}

type fileConfig struct {
	Version int          `toml:"version"`
	Streams []fileStream `toml:"streams"`
}

type savedConfig struct {
	Version int                  `toml:"version"`
	Streams []streams.StreamSpec `toml:"streams"`
}

// Option configures a TOML store.
type Option func(*tomlStore)

// WithStrictIdentifiers rejects identifiers with trailing input.
func WithStrictIdentifiers(strict bool) Option {
	return func(s *tomlStore) {
		s.strict = strict
	}
}

// tomlStore implements Store using TOML file storage.
type tomlStore struct {
	configPath string
	strict     bool

	mu      sync.RWMutex
	version int
	streams streams.Catalog
}

// NewTOML creates a new TOML-based store.
func NewTOML(configPath string, opts ...Option) streams.Store {
	if configPath == "" {
		configPath = "streams.toml"
	}

	s := &tomlStore{
		configPath: configPath,
		version:    1,
		streams:    make(streams.Catalog),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory catalogue with the file's contents. A missing
// file yields an empty catalogue. Entries with an invalid identifier or
// duplicate identifier are skipped and reported in a *streams.LoadError.
func (s *tomlStore) Load() error {
	data, err := os.ReadFile(s.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read streams config: %w", err)
	}

	var cfg fileConfig
	if unmarshalErr := toml.Unmarshal(data, &cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse streams config: %w", unmarshalErr)
	}

	catalog, invalid := s.decode(cfg.Streams)

	s.mu.Lock()
	s.streams = catalog
	s.version = max(cfg.Version, 1)
	s.mu.Unlock()

	if len(invalid) > 0 {
		return &streams.LoadError{Path: s.configPath, Entries: invalid}
	}
	return nil
}

func (s *tomlStore) decode(entries []fileStream) (streams.Catalog, []streams.InvalidEntry) {
	parse := streamid.Parser(s.strict)
	catalog := make(streams.Catalog, len(entries))
	var invalid []streams.InvalidEntry

	for i, entry := range entries {
		id, err := parse(entry.ID)
		if err != nil {
			invalid = append(invalid, streams.InvalidEntry{Index: i, Raw: entry.ID, Err: err})
			continue
		}
		if _, dup := catalog[id]; dup {
			err := streams.NewStreamError(streams.ErrCodeStreamExists, fmt.Sprintf("stream %s listed more than once", id), nil)
			invalid = append(invalid, streams.InvalidEntry{Index: i, Raw: entry.ID, Err: err})
			continue
		}

		spec := streams.StreamSpec{
			ID:      id,
			Name:    entry.Name,
			Enabled: entry.Enabled == nil || *entry.Enabled,
			Window:  entry.Window,
			Bands:   entry.Bands,
		}
		if err := spec.Validate(); err != nil {
			invalid = append(invalid, streams.InvalidEntry{Index: i, Raw: entry.ID, Err: err})
			continue
		}
		catalog[id] = spec
	}
	return catalog, invalid
}

// Save writes the catalogue sorted by identifier.
func (s *tomlStore) Save() error {
	dir := filepath.Dir(s.configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	s.mu.RLock()
	cfg := savedConfig{Version: s.version, Streams: sortedSpecs(s.streams)}
	s.mu.RUnlock()

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal streams config: %w", err)
	}

	if err := os.WriteFile(s.configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write streams config: %w", err)
	}
	return nil
}

func sortedSpecs(catalog streams.Catalog) []streams.StreamSpec {
	specs := make([]streams.StreamSpec, 0, len(catalog))
	for _, spec := range catalog {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID.String() < specs[j].ID.String() })
	return specs
}

// AddStream adds a new stream.
func (s *tomlStore) AddStream(spec streams.StreamSpec) error {
	if err := spec.Validate(); err != nil {
		return streams.NewStreamError(streams.ErrCodeInvalidParams, "invalid stream", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.streams[spec.ID]; exists {
		return streams.NewStreamError(streams.ErrCodeStreamExists, fmt.Sprintf("stream %s already exists", spec.ID), nil)
	}
	s.streams[spec.ID] = spec
	return nil
}

// UpdateStream replaces an existing stream.
func (s *tomlStore) UpdateStream(spec streams.StreamSpec) error {
	if err := spec.Validate(); err != nil {
		return streams.NewStreamError(streams.ErrCodeInvalidParams, "invalid stream", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.streams[spec.ID]; !exists {
		return streams.NewStreamError(streams.ErrCodeStreamNotFound, fmt.Sprintf("stream %s not found", spec.ID), nil)
	}
	s.streams[spec.ID] = spec
	return nil
}

// RemoveStream removes a stream.
func (s *tomlStore) RemoveStream(id streamid.StreamID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.streams[id]; !exists {
		return streams.NewStreamError(streams.ErrCodeStreamNotFound, fmt.Sprintf("stream %s not found", id), nil)
	}
	delete(s.streams, id)
	return nil
}

// GetStream retrieves a stream by identifier.
func (s *tomlStore) GetStream(id streamid.StreamID) (streams.StreamSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.streams[id]
	return spec, ok
}

// GetAllStreams returns a copy of the catalogue.
func (s *tomlStore) GetAllStreams() streams.Catalog {
	return s.filter(func(streams.StreamSpec) bool { return true })
}

// GetEnabledStreams returns only enabled streams.
func (s *tomlStore) GetEnabledStreams() streams.Catalog {
	return s.filter(func(spec streams.StreamSpec) bool { return spec.Enabled })
}

func (s *tomlStore) filter(keep func(streams.StreamSpec) bool) streams.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(streams.Catalog, len(s.streams))
	for id, spec := range s.streams {
		if keep(spec) {
			result[id] = spec
		}
	}
	return result
}

// Loader returns a config.Watcher loader for a streams file. Invalid entries
// are logged and skipped; only unreadable or unparsable files fail.
func Loader(strict bool, logger *slog.Logger) func(path string) (streams.Catalog, error) {
	return func(path string) (streams.Catalog, error) {
		s := NewTOML(path, WithStrictIdentifiers(strict))
		err := s.Load()
		var loadErr *streams.LoadError
		if errors.As(err, &loadErr) {
			for _, entry := range loadErr.Entries {
				logger.Warn("Skipping invalid stream entry", "index", entry.Index, "id", entry.Raw, "error", entry.Err)
			}
		} else if err != nil {
			return nil, err
		}
		return s.GetAllStreams(), nil
	}
}
