package rsam

import (
	"time"

	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/waveform"
)

// DefaultWindow is the RSAM window length used when none is configured.
const DefaultWindow = 10 * time.Minute

// BandAmplitude is one SSAM value.
type BandAmplitude struct {
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	Amplitude float64 `json:"amplitude"`
}

// Result is the measurement for one closed window.
type Result struct {
	Stream      streamid.StreamID `json:"stream"`
	WindowStart time.Time         `json:"window_start"`
	Window      time.Duration     `json:"window"`
	SampleRate  float64           `json:"sampling_rate"`
	RSAM        float64           `json:"rsam"`
	SSAM        []BandAmplitude   `json:"ssam"`
	Samples     int               `json:"samples"`
}

// WindowEnd is the exclusive end of the window.
func (r Result) WindowEnd() time.Time {
	return r.WindowStart.Add(r.Window)
}

// Accumulator buffers one stream's samples into windows. It is not safe for
// concurrent use; each stream's worker owns its accumulator.
type Accumulator struct {
	stream streamid.StreamID
	window time.Duration
	bands  []Band

	start   time.Time
	rate    float64
	samples []float64
	late    int
}

// NewAccumulator creates an accumulator. Non-positive windows fall back to
// DefaultWindow and nil bands to DefaultBands.
func NewAccumulator(stream streamid.StreamID, window time.Duration, bands []Band) *Accumulator {
	if window <= 0 {
		window = DefaultWindow
	}
	if bands == nil {
		bands = DefaultBands
	}
	return &Accumulator{
		stream: stream,
		window: window,
		bands:  bands,
	}
}

// Stream returns the stream this accumulator serves.
func (a *Accumulator) Stream() streamid.StreamID {
	return a.stream
}

// Late reports how many samples arrived for an already closed window and were discarded.
func (a *Accumulator) Late() int {
	return a.late
}

// Pending is the number of samples buffered for the open window.
func (a *Accumulator) Pending() int {
	return len(a.samples)
}

// Add buffers a packet and returns the results of every window it closed.
func (a *Accumulator) Add(p waveform.Packet) []Result {
	var results []Result

	if a.rate != 0 && p.SampleRate != a.rate {
		if r, ok := a.Flush(); ok {
			results = append(results, r)
		}
	}
	a.rate = p.SampleRate

	for i, x := range p.Samples {
		t := p.SampleTime(i)
		if a.start.IsZero() {
			a.start = windowStart(t, a.window)
		}
		if t.Before(a.start) {
			a.late++
			continue
		}
		if !t.Before(a.start.Add(a.window)) {
			if r, ok := a.Flush(); ok {
				results = append(results, r)
			}
			a.start = windowStart(t, a.window)
		}
		a.samples = append(a.samples, x)
	}
	return results
}

// Flush computes the open window and empties the buffer. It returns false when
// no samples are buffered. The window start is kept so late samples are still
// recognised.
func (a *Accumulator) Flush() (Result, bool) {
	if len(a.samples) == 0 {
		return Result{}, false
	}

	spectrum := SSAM(a.samples, a.rate, a.bands)
	ssam := make([]BandAmplitude, len(a.bands))
	for i, b := range a.bands {
		ssam[i] = BandAmplitude{Low: b.Low, High: b.High, Amplitude: spectrum[i]}
	}

	r := Result{
		Stream:      a.stream,
		WindowStart: a.start,
		Window:      a.window,
		SampleRate:  a.rate,
		RSAM:        RSAM(a.samples),
		SSAM:        ssam,
		Samples:     len(a.samples),
	}
	a.samples = a.samples[:0:0]
	return r, true
}

// windowStart returns the boundary at or before t, counting whole windows from
// the Unix epoch. time.Truncate counts from year 1, which disagrees for windows
// that do not divide a day.
func windowStart(t time.Time, window time.Duration) time.Time {
	ns := t.UnixNano()
	rem := ns % int64(window)
	if rem < 0 {
		rem += int64(window)
	}
	return time.Unix(0, ns-rem).In(t.Location())
}
