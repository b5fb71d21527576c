// Package systemd reports service readiness and liveness to the systemd
// service manager. Every call is a no-op when the process was not started
// by systemd.
package systemd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger *slog.Logger

	// healthy gates watchdog pings. Nil means always healthy.
	healthy func() bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier creates a notifier. healthy is consulted before each watchdog
// ping; a service that reports unhealthy stops pinging and is restarted by
// systemd once WatchdogSec elapses.
func NewNotifier(logger *slog.Logger, healthy func() bool) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:  logger.With("component", "systemd"),
		healthy: healthy,
	}
}

func (n *Notifier) notify(state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return false
	}
	return sent
}

// Ready reports that startup finished and starts the watchdog loop when
// WatchdogSec is configured for the unit.
func (n *Notifier) Ready() {
	if n.notify(daemon.SdNotifyReady) {
		n.logger.Debug("Notified systemd of readiness")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Failed to read watchdog settings", "error", err)
		return
	}
	if interval <= 0 {
		return
	}
	n.startWatchdog(interval / 2)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.notify("STATUS=" + status)
}

// Stopping reports that shutdown began and stops the watchdog loop.
func (n *Notifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)

	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (n *Notifier) startWatchdog(period time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})

	n.logger.Info("Systemd watchdog enabled", "period", period)
	go n.watchdog(ctx, period, n.done)
}

func (n *Notifier) watchdog(ctx context.Context, period time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n.healthy != nil && !n.healthy() {
				n.logger.Warn("Skipping watchdog ping, service unhealthy")
				continue
			}
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
