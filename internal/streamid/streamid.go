package streamid

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// StreamID identifies a single seismic channel stream.
//
// The zero value holds no identifier. Fields cannot be changed once set.
type StreamID struct {
	network  string
	station  string
	location string
	channel  string
}

// New builds a StreamID from its four codes. Values are stored as given and
// are not validated against the identifier grammar.
func New(network, station, location, channel string) StreamID {
	return StreamID{
		network:  network,
		station:  station,
		location: location,
		channel:  channel,
	}
}

func (s StreamID) Network() string  { return s.network }
func (s StreamID) Station() string  { return s.station }
func (s StreamID) Location() string { return s.location }
func (s StreamID) Channel() string  { return s.channel }

// ID returns the canonical network.station.location.channel form.
func (s StreamID) ID() string {
	return fmt.Sprintf("%s.%s.%s.%s", s.network, s.station, s.location, s.channel)
}

func (s StreamID) String() string {
	return s.ID()
}

// GoString is used by the %#v verb.
func (s StreamID) GoString() string {
	return "<StreamIdentifier: " + s.ID() + ">"
}

// IsZero reports whether s holds no identifier.
func (s StreamID) IsZero() bool {
	return s == StreamID{}
}

// Equal compares s with a StreamID, a *StreamID or a canonical string.
// Any other type compares unequal.
func (s StreamID) Equal(other any) bool {
	switch o := other.(type) {
	case StreamID:
		return s == o
	case *StreamID:
		return o != nil && s == *o
	case string:
		return s.ID() == o
	default:
		return false
	}
}

// EqualString reports whether s renders to id.
func (s StreamID) EqualString(id string) bool {
	return s.ID() == id
}

// Hash returns a hash of the canonical identifier.
func (s StreamID) Hash() uint64 {
	return xxhash.Sum64String(s.ID())
}

// MarshalText implements encoding.TextMarshaler.
func (s StreamID) MarshalText() ([]byte, error) {
	return []byte(s.ID()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It only populates a zero
// StreamID and returns ErrImmutable otherwise.
func (s *StreamID) UnmarshalText(text []byte) error {
	if !s.IsZero() {
		return ErrImmutable
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalJSON encodes the identifier as a JSON string.
func (s StreamID) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ID())
}

// UnmarshalJSON decodes a JSON string. JSON null clearing a populated
// identifier is rejected with ErrImmutable.
func (s *StreamID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		if !s.IsZero() {
			return ErrImmutable
		}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &FormatError{Raw: string(data)}
	}
	return s.UnmarshalText([]byte(raw))
}
