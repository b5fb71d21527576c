package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

func resetLogging(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer

	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	previous := output
	output = &buf
	mutex.Unlock()

	t.Cleanup(func() {
		mutex.Lock()
		output = previous
		mutex.Unlock()
	})
	return &buf
}

func TestModuleLevelOverride(t *testing.T) {
	resetLogging(t)

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"worker": "debug",
			"api":    "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"worker", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			gotDebug := handler.Enabled(context.Background(), slog.LevelDebug)
			gotInfo := handler.Enabled(context.Background(), slog.LevelInfo)
			gotWarn := handler.Enabled(context.Background(), slog.LevelWarn)

			if gotDebug != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, gotInfo, tt.wantInfo)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestLoggerBeforeInitialize(t *testing.T) {
	resetLogging(t)

	early := GetLogger("rsam")
	if early.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("uninitialized logger should default to info")
	}

	Initialize(Config{Level: "debug", Format: "text"})

	if !GetLogger("rsam").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger should pick up debug level after Initialize")
	}
}

func TestModuleAttributeInOutput(t *testing.T) {
	buf := resetLogging(t)
	Initialize(Config{Level: "info", Format: "text"})

	GetLogger("streams").Info("stream started", "stream_id", "IU.ANMO.00.BHZ")

	out := buf.String()
	if !strings.Contains(out, "module=streams") {
		t.Errorf("output missing module attribute: %s", out)
	}
	if !strings.Contains(out, "stream_id=IU.ANMO.00.BHZ") {
		t.Errorf("output missing stream_id attribute: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	buf := resetLogging(t)
	Initialize(Config{Level: "info", Format: "json"})

	GetLogger("nats").Warn("connect failed")

	out := buf.String()
	if !strings.Contains(out, `"module":"nats"`) {
		t.Errorf("expected json output, got %s", out)
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetLogging(t)
	Initialize(Config{Level: "info", Format: "text"})

	logger := GetLogger("subscription")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled at info level")
	}

	if err := SetModuleLevel("subscription", "debug"); err != nil {
		t.Fatalf("SetModuleLevel: %v", err)
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("existing logger should see the new level")
	}

	if err := SetModuleLevel("subscription", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  *slog.Level
	}{
		{"debug", ptr(slog.LevelDebug)},
		{"INFO", ptr(slog.LevelInfo)},
		{"warning", ptr(slog.LevelWarn)},
		{"error", ptr(slog.LevelError)},
		{"trace", nil},
	}

	for _, tt := range tests {
		got := parseLevel(tt.input)
		if (got == nil) != (tt.want == nil) {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		if got != nil && *got != *tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, *tt.want)
		}
	}
}

func TestMultiHandler(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)

	logger := slog.New(h).With("module", "test")
	logger.Info("info message")
	logger.Warn("warn message")

	if !strings.Contains(debugBuf.String(), "info message") || !strings.Contains(debugBuf.String(), "warn message") {
		t.Errorf("debug handler missing records: %s", debugBuf.String())
	}
	if strings.Contains(warnBuf.String(), "info message") {
		t.Error("warn handler should not receive info records")
	}
	if !strings.Contains(warnBuf.String(), "module=test") {
		t.Error("WithAttrs should propagate to every handler")
	}
}

func TestJournalFields(t *testing.T) {
	h := NewJournalHandler(slog.LevelInfo).WithAttrs([]slog.Attr{slog.String("module", "worker")}).(*JournalHandler)
	h = h.WithGroup("task").(*JournalHandler)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "task started", 0)
	r.AddAttrs(
		slog.String("stream_id", "IU.ANMO.00.BHZ"),
		slog.Int("inbox", 64),
		slog.Group("window", slog.Duration("length", 10*time.Minute)),
		slog.String("remote.addr", "10.0.0.1"),
	)

	fields := h.recordFields(r)

	tests := map[string]string{
		"SYSLOG_IDENTIFIER":  "seisnode",
		"MESSAGE":            "task started",
		"MODULE":             "worker",
		"TASK_STREAM_ID":     "IU.ANMO.00.BHZ",
		"TASK_INBOX":         "64",
		"TASK_WINDOW_LENGTH": "10m0s",
		"TASK_REMOTE_ADDR":   "10.0.0.1",
	}
	for key, want := range tests {
		if fields[key] != want {
			t.Errorf("%s = %q, want %q", key, fields[key], want)
		}
	}
}

func TestJournalHandler_Handle(t *testing.T) {
	var gotMessage string
	var gotFields map[string]string
	orig := journalSend
	journalSend = func(message string, _ journal.Priority, vars map[string]string) error {
		gotMessage, gotFields = message, vars
		return nil
	}
	defer func() { journalSend = orig }()

	logger := slog.New(NewJournalHandler(slog.LevelInfo))
	logger.Debug("hidden")
	if gotMessage != "" {
		t.Fatal("debug record should be filtered")
	}

	logger.Warn("inbox full", "stream_id", "IU.ANMO.00.BHZ")
	if gotMessage != "inbox full" {
		t.Errorf("message = %q", gotMessage)
	}
	if gotFields["STREAM_ID"] != "IU.ANMO.00.BHZ" {
		t.Errorf("STREAM_ID = %q", gotFields["STREAM_ID"])
	}
	if gotFields["PRIORITY"] != strconv.Itoa(int(journal.PriWarning)) {
		t.Errorf("PRIORITY = %q", gotFields["PRIORITY"])
	}
}

func TestFieldName(t *testing.T) {
	tests := map[string]string{
		"stream_id":   "STREAM_ID",
		"remote-addr": "REMOTE_ADDR",
		"_private":    "PRIVATE",
		"a.b":         "A_B",
	}
	for in, want := range tests {
		if got := fieldName(in); got != want {
			t.Errorf("fieldName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapLevelToPriority(t *testing.T) {
	if mapLevelToPriority(slog.LevelError) >= mapLevelToPriority(slog.LevelInfo) {
		t.Error("error should map to a more severe priority than info")
	}
}

func ptr(l slog.Level) *slog.Level { return &l }
