// Package metrics provides Prometheus metrics for stream processing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
)

var streamLabels = []string{"stream_id", "network", "station", "location", "channel"}

var (
	rsamValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seisnode",
		Name:      "rsam",
		Help:      "RSAM of the most recently closed window",
	}, streamLabels)

	ssamValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seisnode",
		Name:      "ssam",
		Help:      "SSAM band amplitude of the most recently closed window",
	}, append(append([]string{}, streamLabels...), "band"))

	windowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seisnode",
		Name:      "rsam_windows_total",
		Help:      "RSAM windows computed",
	}, []string{"stream_id"})

	packetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seisnode",
		Name:      "packets_total",
		Help:      "Waveform packets accepted for processing",
	}, []string{"stream_id"})

	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seisnode",
		Name:      "samples_total",
		Help:      "Waveform samples accepted for processing",
	}, []string{"stream_id"})

	packetsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seisnode",
		Name:      "packets_dropped_total",
		Help:      "Waveform packets dropped because a worker inbox was full",
	}, []string{"stream_id"})

	wsSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seisnode",
		Name:      "ws_subscriptions",
		Help:      "Active WebSocket stream subscriptions",
	})

	latest   = make(map[streamid.StreamID]rsam.Result)
	latestMu sync.RWMutex
)

func labelValues(id streamid.StreamID) []string {
	return []string{id.String(), id.Network(), id.Station(), id.Location(), id.Channel()}
}

// ObserveResult records a closed RSAM window.
func ObserveResult(r rsam.Result) {
	labels := labelValues(r.Stream)
	rsamValue.WithLabelValues(labels...).Set(r.RSAM)
	for _, b := range r.SSAM {
		band := rsam.Band{Low: b.Low, High: b.High}.String()
		ssamValue.WithLabelValues(append(labels, band)...).Set(b.Amplitude)
	}
	windowsTotal.WithLabelValues(r.Stream.String()).Inc()

	latestMu.Lock()
	latest[r.Stream] = r
	latestMu.Unlock()
}

// PacketReceived counts an accepted packet.
func PacketReceived(id streamid.StreamID, samples int) {
	packetsTotal.WithLabelValues(id.String()).Inc()
	samplesTotal.WithLabelValues(id.String()).Add(float64(samples))
}

// PacketDropped counts a dropped packet.
func PacketDropped(id streamid.StreamID) {
	packetsDropped.WithLabelValues(id.String()).Inc()
}

// SetSubscriptions sets the number of active WebSocket subscriptions.
func SetSubscriptions(n int) {
	wsSubscriptions.Set(float64(n))
}

// LatestResult returns the most recent result for a stream.
func LatestResult(id streamid.StreamID) (rsam.Result, bool) {
	latestMu.RLock()
	defer latestMu.RUnlock()
	r, ok := latest[id]
	return r, ok
}

// DeleteStream removes every series and the cached result for a stream.
func DeleteStream(id streamid.StreamID) {
	match := prometheus.Labels{"stream_id": id.String()}
	rsamValue.DeletePartialMatch(match)
	ssamValue.DeletePartialMatch(match)
	windowsTotal.DeletePartialMatch(match)
	packetsTotal.DeletePartialMatch(match)
	samplesTotal.DeletePartialMatch(match)
	packetsDropped.DeletePartialMatch(match)

	latestMu.Lock()
	delete(latest, id)
	latestMu.Unlock()
}
