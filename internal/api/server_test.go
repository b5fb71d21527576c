package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/seisnode/internal/api/models"
	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/streams"
	"github.com/smazurov/seisnode/internal/waveform"
	"github.com/smazurov/seisnode/internal/worker"
)

// mockStreamService is a test implementation of streams.StreamService.
type mockStreamService struct {
	streams   map[streamid.StreamID]*streams.Stream
	restarted []string
	listErr   error
}

func newMockService() *mockStreamService {
	anmo := streamid.MustParse("IU.ANMO.00.BHZ")
	tmks := streamid.New("VG", "TMKS", "", "EHZ")
	return &mockStreamService{
		streams: map[streamid.StreamID]*streams.Stream{
			anmo: {
				Spec:       streams.StreamSpec{ID: anmo, Name: "Albuquerque", Enabled: true, Window: "5m"},
				Configured: true,
				Status:     worker.Info{ID: anmo, State: worker.StateRunning, StartedAt: time.Now(), Dispatched: 42},
				Latest: &rsam.Result{
					Stream:      anmo,
					WindowStart: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
					Window:      5 * time.Minute,
					RSAM:        153.2,
					Samples:     6000,
				},
			},
			tmks: {
				Spec:       streams.StreamSpec{ID: tmks, Enabled: false},
				Configured: true,
				Status:     worker.Info{ID: tmks, State: worker.StateIdle},
			},
		},
	}
}

func (m *mockStreamService) ListStreams(_ context.Context) ([]streams.Stream, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]streams.Stream, 0, len(m.streams))
	for _, s := range m.streams {
		result = append(result, *s)
	}
	return result, nil
}

func (m *mockStreamService) lookup(raw string) (*streams.Stream, error) {
	id, err := streamid.Parse(raw)
	if err != nil {
		return nil, streams.NewStreamError(streams.ErrCodeInvalidIdentifier, err.Error(), err)
	}
	s, ok := m.streams[id]
	if !ok {
		return nil, &streams.StreamError{Code: streams.ErrCodeStreamNotFound, Message: "stream " + id.String() + " not found"}
	}
	return s, nil
}

func (m *mockStreamService) GetStream(_ context.Context, raw string) (*streams.Stream, error) {
	return m.lookup(raw)
}

func (m *mockStreamService) RestartStream(_ context.Context, raw string) error {
	s, err := m.lookup(raw)
	if err != nil {
		return err
	}
	if !s.Spec.Enabled {
		return &streams.StreamError{Code: streams.ErrCodeStreamDisabled, Message: "stream is disabled"}
	}
	m.restarted = append(m.restarted, s.Spec.ID.String())
	return nil
}

func (m *mockStreamService) HandlePacket(_ waveform.Packet) error { return nil }
func (m *mockStreamService) LoadStreamsFromConfig() error { return nil }
func (m *mockStreamService) ApplyCatalog(_ streams.Catalog) {}
func (m *mockStreamService) Stop() {}

func setupTestServer(t *testing.T, svc streams.StreamService, opts *Options) *httptest.Server {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	opts.StreamService = svc
	server := httptest.NewServer(NewServer(opts).GetMux())
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	connected := false
	server := setupTestServer(t, newMockService(), &Options{NATSConnected: func() bool { return connected }})

	var health models.HealthData
	if status := getJSON(t, server.URL+"/api/health", &health); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if health.Status != "degraded" || health.NATS != "disconnected" {
		t.Errorf("unexpected health with NATS down: %+v", health)
	}
	if health.Streams != 2 || health.Running != 1 {
		t.Errorf("expected 2 streams / 1 running, got %d / %d", health.Streams, health.Running)
	}

	connected = true
	getJSON(t, server.URL+"/api/health", &health)
	if health.Status != "ok" || health.NATS != "connected" {
		t.Errorf("unexpected health with NATS up: %+v", health)
	}
}

func TestHealth_NATSDisabled(t *testing.T) {
	server := setupTestServer(t, newMockService(), nil)

	var health models.HealthData
	getJSON(t, server.URL+"/api/health", &health)
	if health.Status != "ok" || health.NATS != "disabled" {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestVersion(t *testing.T) {
	server := setupTestServer(t, newMockService(), nil)

	var v models.VersionData
	if status := getJSON(t, server.URL+"/api/version", &v); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if v.Version == "" || v.GoVersion == "" {
		t.Errorf("version fields missing: %+v", v)
	}
}

func TestListStreams(t *testing.T) {
	server := setupTestServer(t, newMockService(), nil)

	var list models.StreamListData
	if status := getJSON(t, server.URL+"/api/streams", &list); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if list.Count != 2 || len(list.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", list.Count)
	}
}

func TestGetStream(t *testing.T) {
	server := setupTestServer(t, newMockService(), nil)

	var stream models.StreamData
	if status := getJSON(t, server.URL+"/api/streams/IU.ANMO.00.BHZ", &stream); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if stream.StreamID != "IU.ANMO.00.BHZ" || stream.Station != "ANMO" || stream.Location != "00" {
		t.Errorf("unexpected identifier fields: %+v", stream)
	}
	if stream.State != "running" || stream.Dispatched != 42 || stream.StartedAt == nil {
		t.Errorf("unexpected status fields: %+v", stream)
	}
	if stream.Latest == nil || stream.Latest.RSAM != 153.2 {
		t.Fatalf("expected latest result, got %+v", stream.Latest)
	}
	if !stream.Latest.WindowEnd.Equal(time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)) {
		t.Errorf("unexpected window end %v", stream.Latest.WindowEnd)
	}

	getJSON(t, server.URL+"/api/streams/VG.TMKS..EHZ", &stream)
	if stream.Location != "" || stream.Enabled {
		t.Errorf("unexpected blank-location stream: %+v", stream)
	}
}

func TestGetStream_Errors(t *testing.T) {
	server := setupTestServer(t, newMockService(), nil)

	resp, err := http.Get(server.URL + "/api/streams/IU-ANMO-BHZ")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed identifier, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Stream identifier IU-ANMO-BHZ is not valid.") {
		t.Errorf("error body should name the raw identifier: %s", body)
	}

	if status := getJSON(t, server.URL+"/api/streams/IU.COLA.00.BHZ", nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown stream, got %d", status)
	}
}

func TestRestartStream(t *testing.T) {
	svc := newMockService()
	server := setupTestServer(t, svc, nil)

	resp, err := http.Post(server.URL+"/api/streams/IU.ANMO.00.BHZ/restart", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	var body models.StreamRestartData
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body.StreamID != "IU.ANMO.00.BHZ" {
		t.Errorf("unexpected body: %+v", body)
	}
	if len(svc.restarted) != 1 {
		t.Errorf("expected one restart, got %v", svc.restarted)
	}

	resp, err = http.Post(server.URL+"/api/streams/VG.TMKS..EHZ/restart", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for disabled stream, got %d", resp.StatusCode)
	}
}

func TestOptionalHandlers(t *testing.T) {
	metricsHit, wsHit := false, false
	server := setupTestServer(t, newMockService(), &Options{
		PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			metricsHit = true
			w.WriteHeader(http.StatusOK)
		}),
		WebSocketHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			wsHit = true
			w.WriteHeader(http.StatusOK)
		}),
	})

	getJSON(t, server.URL+"/metrics", nil)
	getJSON(t, server.URL+"/ws", nil)

	if !metricsHit || !wsHit {
		t.Errorf("handlers not mounted: metrics=%v ws=%v", metricsHit, wsHit)
	}
}

func TestCORSPreflight(t *testing.T) {
	server := setupTestServer(t, newMockService(), nil)

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/streams", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestMapStreamError(t *testing.T) {
	s := &Server{logger: newTestLogger()}

	tests := []struct {
		err  error
		want int
	}{
		{streams.NewStreamError(streams.ErrCodeStreamNotFound, "missing", nil), http.StatusNotFound},
		{streams.NewStreamError(streams.ErrCodeInvalidIdentifier, "bad", nil), http.StatusBadRequest},
		{streams.NewStreamError(streams.ErrCodeInvalidParams, "bad", nil), http.StatusBadRequest},
		{streams.NewStreamError(streams.ErrCodeStreamExists, "dup", nil), http.StatusConflict},
		{streams.NewStreamError(streams.ErrCodeStreamDisabled, "off", nil), http.StatusConflict},
		{streams.NewStreamError(streams.ErrCodeProcessingError, "boom", nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		var statusErr huma.StatusError
		if !errors.As(s.mapStreamError(tt.err), &statusErr) {
			t.Fatalf("mapStreamError(%v) is not a huma.StatusError", tt.err)
		}
		if statusErr.GetStatus() != tt.want {
			t.Errorf("mapStreamError(%v) = %d, want %d", tt.err, statusErr.GetStatus(), tt.want)
		}
	}
}

func TestCORSAllowedOrigins(t *testing.T) {
	server := setupTestServer(t, newMockService(), &Options{AllowedOrigins: []string{"https://observatory.example"}})

	preflight := func(origin string) string {
		req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/streams", nil)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("OPTIONS failed: %v", err)
		}
		resp.Body.Close()
		return resp.Header.Get("Access-Control-Allow-Origin")
	}

	if got := preflight("https://observatory.example"); got != "https://observatory.example" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}
	if got := preflight("https://elsewhere.example"); got != "" {
		t.Errorf("expected no CORS header for disallowed origin, got %q", got)
	}
}

func TestRequestID(t *testing.T) {
	server := setupTestServer(t, newMockService(), nil)

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}

	const incoming = "0b6f3c1e-5d8a-4a4b-9d3c-2f1e0a9b8c7d"
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/health", nil)
	req.Header.Set(RequestIDHeader, incoming)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != incoming {
		t.Errorf("expected incoming request ID %s to be kept, got %s", incoming, got)
	}
}
