package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
)

func TestObserveResult(t *testing.T) {
	id := streamid.MustParse("IU.ANMO..BHZ")
	DeleteStream(id)
	defer DeleteStream(id)

	ObserveResult(rsam.Result{
		Stream:      id,
		WindowStart: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Window:      10 * time.Minute,
		RSAM:        42.5,
		SSAM:        []rsam.BandAmplitude{{Low: 1, High: 2, Amplitude: 7}},
		Samples:     60000,
	})

	if got := testutil.ToFloat64(rsamValue.WithLabelValues(labelValues(id)...)); got != 42.5 {
		t.Errorf("rsam = %v, want 42.5", got)
	}
	if got := testutil.ToFloat64(ssamValue.WithLabelValues(append(labelValues(id), "1-2")...)); got != 7 {
		t.Errorf("ssam = %v, want 7", got)
	}
	if got := testutil.ToFloat64(windowsTotal.WithLabelValues(id.String())); got != 1 {
		t.Errorf("windows = %v, want 1", got)
	}

	r, ok := LatestResult(id)
	if !ok {
		t.Fatal("expected cached result")
	}
	if r.RSAM != 42.5 {
		t.Errorf("cached rsam = %v, want 42.5", r.RSAM)
	}
}

func TestPacketCounters(t *testing.T) {
	id := streamid.MustParse("VG.MEPAS.00.HHZ")
	DeleteStream(id)
	defer DeleteStream(id)

	PacketReceived(id, 100)
	PacketReceived(id, 50)
	PacketDropped(id)

	if got := testutil.ToFloat64(packetsTotal.WithLabelValues(id.String())); got != 2 {
		t.Errorf("packets = %v, want 2", got)
	}
	if got := testutil.ToFloat64(samplesTotal.WithLabelValues(id.String())); got != 150 {
		t.Errorf("samples = %v, want 150", got)
	}
	if got := testutil.ToFloat64(packetsDropped.WithLabelValues(id.String())); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}

func TestDeleteStream(t *testing.T) {
	id := streamid.MustParse("IU.COLA.10.BHE")
	ObserveResult(rsam.Result{Stream: id, RSAM: 1})
	before := testutil.CollectAndCount(rsamValue)

	DeleteStream(id)

	if _, ok := LatestResult(id); ok {
		t.Error("expected cached result to be removed")
	}
	if after := testutil.CollectAndCount(rsamValue); after != before-1 {
		t.Errorf("expected one rsam series removed, had %d now %d", before, after)
	}
}

func TestSetSubscriptions(t *testing.T) {
	SetSubscriptions(3)
	if got := testutil.ToFloat64(wsSubscriptions); got != 3 {
		t.Errorf("subscriptions = %v, want 3", got)
	}
	SetSubscriptions(0)
}
