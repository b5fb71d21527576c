package systemd

import (
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// listenNotify points NOTIFY_SOCKET at a fresh datagram socket.
func listenNotify(t *testing.T) *net.UnixConn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram sockets unavailable: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func readMessage(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 1024)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("no notify message: %v", err)
	}
	return string(buf[:n])
}

func TestNotifier_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	n := NewNotifier(nil, nil)
	n.Ready()
	n.Status("idle")
	n.Stopping()
}

func TestNotifier_ReadyStatusStopping(t *testing.T) {
	conn := listenNotify(t)
	t.Setenv("WATCHDOG_USEC", "")

	n := NewNotifier(nil, nil)

	n.Ready()
	if msg := readMessage(t, conn); msg != "READY=1" {
		t.Errorf("expected READY=1, got %q", msg)
	}

	n.Status("3 streams, 3 running")
	if msg := readMessage(t, conn); msg != "STATUS=3 streams, 3 running" {
		t.Errorf("unexpected status message %q", msg)
	}

	n.Stopping()
	if msg := readMessage(t, conn); msg != "STOPPING=1" {
		t.Errorf("expected STOPPING=1, got %q", msg)
	}
}

func TestNotifier_Watchdog(t *testing.T) {
	conn := listenNotify(t)
	t.Setenv("WATCHDOG_USEC", "100000")
	t.Setenv("WATCHDOG_PID", "")

	var checks atomic.Int32
	n := NewNotifier(nil, func() bool {
		checks.Add(1)
		return true
	})

	n.Ready()
	if msg := readMessage(t, conn); msg != "READY=1" {
		t.Fatalf("expected READY=1, got %q", msg)
	}
	if msg := readMessage(t, conn); !strings.HasPrefix(msg, "WATCHDOG=1") {
		t.Errorf("expected watchdog ping, got %q", msg)
	}

	n.Stopping()
	if checks.Load() == 0 {
		t.Error("health check was never consulted")
	}
}

func TestNotifier_WatchdogSkipsWhenUnhealthy(t *testing.T) {
	conn := listenNotify(t)
	t.Setenv("WATCHDOG_USEC", "50000")
	t.Setenv("WATCHDOG_PID", "")

	n := NewNotifier(nil, func() bool { return false })
	n.Ready()
	if msg := readMessage(t, conn); msg != "READY=1" {
		t.Fatalf("expected READY=1, got %q", msg)
	}

	time.Sleep(120 * time.Millisecond)
	n.Stopping()

	if msg := readMessage(t, conn); msg != "STOPPING=1" {
		t.Errorf("expected no watchdog pings before STOPPING=1, got %q", msg)
	}
}
