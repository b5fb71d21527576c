// Package waveform defines the sample packets exchanged between ingest,
// processing and subscribers.
package waveform

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/smazurov/seisnode/internal/streamid"
)

var (
	ErrMissingStream = errors.New("packet has no stream identifier")
	ErrInvalidRate   = errors.New("packet sampling rate must be positive")
	ErrEmptyPacket   = errors.New("packet has no samples")
)

// Packet is a contiguous run of samples from one stream.
type Packet struct {
	Stream     streamid.StreamID `json:"stream"`
	StartTime  time.Time         `json:"starttime"`
	SampleRate float64           `json:"sampling_rate"`
	Samples    []float64         `json:"data"`
}

// Validate checks that the packet can be processed.
func (p Packet) Validate() error {
	if p.Stream.IsZero() {
		return ErrMissingStream
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, p.SampleRate)
	}
	if len(p.Samples) == 0 {
		return ErrEmptyPacket
	}
	return nil
}

// SampleTime returns the timestamp of sample i.
func (p Packet) SampleTime(i int) time.Time {
	return p.StartTime.Add(time.Duration(float64(i) / p.SampleRate * float64(time.Second)))
}

// Duration is the time covered by the packet's samples.
func (p Packet) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(p.Samples)) / p.SampleRate * float64(time.Second))
}

// EndTime is the time just after the last sample.
func (p Packet) EndTime() time.Time {
	return p.StartTime.Add(p.Duration())
}

// Encode serialises a packet for the wire.
func Encode(p Packet) ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses and validates a packet.
func Decode(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("decode packet: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Packet{}, err
	}
	return p, nil
}
