package streams

import (
	"fmt"
	"slices"
	"time"

	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
)

// StreamSpec is the configured processing for one stream.
type StreamSpec struct {
	// ID is the stream identifier, e.g. IU.ANMO.00.BHZ
	ID streamid.StreamID `toml:"id" json:"id"`

	// Name is a human-readable label such as the station's site name
	Name string `toml:"name,omitempty" json:"name,omitempty"`

	// Enabled streams get a worker at startup and accept packets
	Enabled bool `toml:"enabled" json:"enabled"`

	// Window overrides the default RSAM window, as a Go duration ("10m")
	Window string `toml:"window,omitempty" json:"window,omitempty"`

	// Bands overrides the default SSAM bands
	Bands []rsam.Band `toml:"bands,omitempty" json:"bands,omitempty"`
}

// Validate checks the window and bands.
func (s StreamSpec) Validate() error {
	if s.ID.IsZero() {
		return fmt.Errorf("missing stream identifier")
	}
	if s.Window != "" {
		d, err := time.ParseDuration(s.Window)
		if err != nil {
			return fmt.Errorf("stream %s: invalid window %q: %w", s.ID, s.Window, err)
		}
		if d <= 0 {
			return fmt.Errorf("stream %s: window must be positive", s.ID)
		}
	}
	if err := rsam.ValidateBands(s.Bands); err != nil {
		return fmt.Errorf("stream %s: %w", s.ID, err)
	}
	return nil
}

// WindowOr returns the configured window or fallback when none is set.
// Validate is expected to have accepted the spec.
func (s StreamSpec) WindowOr(fallback time.Duration) time.Duration {
	if s.Window == "" {
		return fallback
	}
	d, err := time.ParseDuration(s.Window)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// BandsOr returns the configured bands or fallback when none are set.
func (s StreamSpec) BandsOr(fallback []rsam.Band) []rsam.Band {
	if len(s.Bands) == 0 {
		return fallback
	}
	return s.Bands
}

// sameProcessing reports whether two specs produce identical results.
func (s StreamSpec) sameProcessing(other StreamSpec) bool {
	return s.Window == other.Window && slices.Equal(s.Bands, other.Bands)
}
