package nats

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/smazurov/seisnode/internal/events"
	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/waveform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(ServerOptions{Port: -1, Name: "test-server", Logger: testLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

func testPacket(id streamid.StreamID) waveform.Packet {
	return waveform.Packet{
		Stream:     id,
		StartTime:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		SampleRate: 20,
		Samples:    []float64{1, -2, 3},
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(ServerOptions{Port: -1, Name: "test-server", Logger: testLogger()})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if !server.IsRunning() {
		t.Error("Server should be running after Start()")
	}
	if server.ClientURL() == "" || server.Addr() == "" {
		t.Error("ClientURL and Addr should not be empty")
	}

	server.Stop()

	if server.IsRunning() {
		t.Error("Server should not be running after Stop()")
	}
}

func TestServerStats(t *testing.T) {
	server := NewServer(ServerOptions{Port: -1, Logger: testLogger()})
	if stats := server.Stats(); stats != (ServerStats{}) {
		t.Errorf("stopped server stats = %+v, want zero", stats)
	}

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	conn, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if _, err := conn.SubscribeSync(SubjectWaveformPrefix + ".>"); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	_ = conn.Publish("seisnode.waveform.IU.ANMO.00.BHZ", []byte("{}"))
	_ = conn.Flush()

	stats := server.Stats()
	if stats.Clients != 1 {
		t.Errorf("clients = %d, want 1", stats.Clients)
	}
	if stats.Subscriptions == 0 {
		t.Error("subscriptions should be counted")
	}
	if stats.InMsgs < 1 {
		t.Errorf("in msgs = %d, want at least 1", stats.InMsgs)
	}
}

func TestServerLogRoutesToSlog(t *testing.T) {
	var buf bytes.Buffer
	l := &serverLog{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))}

	l.Noticef("Listening for client connections on %s", "127.0.0.1:4222")
	l.Debugf("client connected")
	if buf.Len() != 0 {
		t.Errorf("notices and debug lines should be below warn, got %q", buf.String())
	}

	l.Warnf("Readloop processing time: %v\n", time.Second)
	l.Errorf("Error trying to connect to route: %s", "refused")
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "level=ERROR") {
		t.Errorf("missing levels in %q", out)
	}
	if strings.Contains(out, "\\n") {
		t.Errorf("trailing newline should be trimmed: %q", out)
	}
}

func TestSubjects(t *testing.T) {
	tmks := streamid.New("VG", "TMKS", "", "EHZ")

	if got := SubjectWaveform(tmks); got != "seisnode.waveform.VG.TMKS.--.EHZ" {
		t.Errorf("SubjectWaveform = %q", got)
	}
	if got := SubjectRSAM(streamid.MustParse("IU.ANMO.00.BHZ")); got != "seisnode.rsam.IU.ANMO.00.BHZ" {
		t.Errorf("SubjectRSAM = %q", got)
	}

	id, err := StreamFromSubject(SubjectWaveformPrefix, "seisnode.waveform.VG.TMKS.--.EHZ")
	if err != nil {
		t.Fatalf("StreamFromSubject failed: %v", err)
	}
	if id != tmks {
		t.Errorf("StreamFromSubject = %s, want %s", id, tmks)
	}

	for _, subject := range []string{
		"seisnode.rsam.VG.TMKS.--.EHZ",
		"seisnode.waveform.VG.TMKS.EHZ",
		"seisnode.waveform.VG.TMKS.xx.EHZ",
	} {
		if _, err := StreamFromSubject(SubjectWaveformPrefix, subject); err == nil {
			t.Errorf("StreamFromSubject(%q) should fail", subject)
		}
	}
}

func TestDecodeForSubject(t *testing.T) {
	anmo := streamid.MustParse("IU.ANMO.00.BHZ")
	subject := SubjectWaveform(anmo)

	pkt, err := decodeForSubject(subject, []byte(`{"starttime":"2024-03-01T12:00:00Z","sampling_rate":20,"data":[1,2]}`))
	if err != nil {
		t.Fatalf("decode without stream failed: %v", err)
	}
	if pkt.Stream != anmo {
		t.Errorf("stream = %s, want %s", pkt.Stream, anmo)
	}

	_, err = decodeForSubject(subject, []byte(`{"stream":"IU.COLA.00.BHZ","starttime":"2024-03-01T12:00:00Z","sampling_rate":20,"data":[1]}`))
	if !errors.Is(err, ErrStreamMismatch) {
		t.Errorf("expected ErrStreamMismatch, got %v", err)
	}

	_, err = decodeForSubject(subject, []byte(`{"starttime":"2024-03-01T12:00:00Z","sampling_rate":0,"data":[1]}`))
	if !errors.Is(err, waveform.ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}

	if _, err := decodeForSubject(subject, []byte(`{"stream":"IU..00.BHZ"}`)); err == nil {
		t.Error("malformed identifier should be rejected")
	}
}

func TestBridgeReceivesPackets(t *testing.T) {
	server := startTestServer(t)

	received := make(chan waveform.Packet, 4)
	bridge := NewBridge(server.ClientURL(), func(pkt waveform.Packet) error {
		received <- pkt
		return nil
	}, testLogger())
	if err := bridge.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer bridge.Stop()

	if !bridge.IsConnected() {
		t.Fatal("bridge should be connected")
	}

	publisher := NewPublisher(server.ClientURL(), "test-publisher", testLogger())
	if err := publisher.Connect(); err != nil {
		t.Fatalf("Failed to connect publisher: %v", err)
	}
	defer publisher.Close()

	tmks := streamid.New("VG", "TMKS", "", "EHZ")
	if err := publisher.PublishPacket(testPacket(tmks)); err != nil {
		t.Fatalf("PublishPacket failed: %v", err)
	}
	if err := publisher.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	select {
	case pkt := <-received:
		if pkt.Stream != tmks {
			t.Errorf("stream = %s, want %s", pkt.Stream, tmks)
		}
		if len(pkt.Samples) != 3 {
			t.Errorf("samples = %d, want 3", len(pkt.Samples))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not deliver packet")
	}

	if stats := bridge.Stats(); stats.Accepted != 1 {
		t.Errorf("accepted = %d, want 1", stats.Accepted)
	}
}

func TestBridgeCountsRejections(t *testing.T) {
	server := startTestServer(t)

	bridge := NewBridge(server.ClientURL(), func(waveform.Packet) error {
		return errors.New("stream not configured")
	}, testLogger())
	if err := bridge.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer bridge.Stop()

	conn, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	_ = conn.Publish("seisnode.waveform.IU.ANMO.00.BHZ", []byte(`not json`))
	data, _ := waveform.Encode(testPacket(streamid.MustParse("IU.ANMO.00.BHZ")))
	_ = conn.Publish("seisnode.waveform.IU.ANMO.00.BHZ", data)
	_ = conn.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for bridge.Stats().Received < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stats := bridge.Stats()
	if stats.Received != 2 || stats.Rejected != 2 || stats.Accepted != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPublisherGracefulDegradation(t *testing.T) {
	publisher := NewPublisher("nats://127.0.0.1:59999", "", testLogger())

	if err := publisher.Connect(); err == nil {
		t.Error("Connect should fail with non-existent server")
	}

	if err := publisher.PublishPacket(testPacket(streamid.MustParse("IU.ANMO.00.BHZ"))); err != nil {
		t.Errorf("PublishPacket should be a no-op offline, got %v", err)
	}
	if err := publisher.PublishResult(rsam.Result{Stream: streamid.MustParse("IU.ANMO.00.BHZ")}); err != nil {
		t.Errorf("PublishResult should be a no-op offline, got %v", err)
	}
	if publisher.IsConnected() {
		t.Error("Publisher should not be connected")
	}

	publisher.Close()
}

func TestPublisherAttachBus(t *testing.T) {
	server := startTestServer(t)

	conn, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	sub, err := conn.SubscribeSync(SubjectRSAMPrefix + ".>")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	_ = conn.Flush()

	publisher := NewPublisher(server.ClientURL(), "test-publisher", testLogger())
	if err := publisher.Connect(); err != nil {
		t.Fatalf("Failed to connect publisher: %v", err)
	}
	defer publisher.Close()

	bus := events.New()
	unsub := publisher.AttachBus(bus)
	defer unsub()

	anmo := streamid.MustParse("IU.ANMO.00.BHZ")
	bus.Publish(events.RSAMComputedEvent{Result: rsam.Result{Stream: anmo, Window: time.Minute, RSAM: 12}})

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("no result published: %v", err)
	}
	if msg.Subject != "seisnode.rsam.IU.ANMO.00.BHZ" {
		t.Errorf("subject = %q", msg.Subject)
	}

	var result rsam.Result
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Stream != anmo || result.RSAM != 12 {
		t.Errorf("unexpected result: %+v", result)
	}
}
