package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// DefaultPort is the standard NATS client port.
const DefaultPort = 4222

const (
	defaultReadyTimeout = 5 * time.Second

	// A waveform packet of a few thousand samples encodes well below this.
	defaultMaxPayload = 1 << 20
)

// ServerOptions configures the embedded NATS broker that digitizers and
// simulators publish waveform packets to.
type ServerOptions struct {
	// Port to listen on. Zero means DefaultPort and -1 picks a random port.
	Port int
	Host string
	Name string

	MaxPayload   int32
	ReadyTimeout time.Duration

	Logger *slog.Logger
}

// Server is an in-process NATS broker.
type Server struct {
	ns     *server.Server
	opts   ServerOptions
	logger *slog.Logger
}

// ServerStats is a snapshot of broker traffic.
type ServerStats struct {
	Clients       int
	Subscriptions uint32
	InMsgs        int64
	OutMsgs       int64
	SlowConsumers int64
}

// NewServer creates an embedded broker. Start must be called before use.
func NewServer(opts ServerOptions) *Server {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Name == "" {
		opts.Name = "seisnode"
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = defaultMaxPayload
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "nats-server"),
	}
}

// Start launches the broker and blocks until it accepts clients.
func (s *Server) Start() error {
	ns, err := server.NewServer(&server.Options{
		Host:       s.opts.Host,
		Port:       s.opts.Port,
		ServerName: s.opts.Name,
		NoSigs:     true,
		MaxPayload: s.opts.MaxPayload,
	})
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	debug := s.logger.Enabled(context.Background(), slog.LevelDebug)
	ns.SetLogger(&serverLog{logger: s.logger}, debug, false)

	go ns.Start()

	if !ns.ReadyForConnections(s.opts.ReadyTimeout) {
		ns.Shutdown()
		return fmt.Errorf("NATS server not ready within %s", s.opts.ReadyTimeout)
	}

	s.ns = ns
	s.logger.Info("NATS server started", "url", ns.ClientURL(), "max_payload", s.opts.MaxPayload)
	return nil
}

// Stop shuts the broker down and waits for client connections to close.
func (s *Server) Stop() {
	if s.ns == nil {
		return
	}
	s.logger.Info("Stopping NATS server", "clients", s.ns.NumClients())
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	s.ns = nil
}

// ClientURL returns the URL ingest clients connect to. Before Start it is
// derived from the configured host and port.
func (s *Server) ClientURL() string {
	if s.ns == nil {
		return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
	}
	return s.ns.ClientURL()
}

// Addr returns the bound listen address, or "" when not running.
func (s *Server) Addr() string {
	if s.ns == nil {
		return ""
	}
	if addr := s.ns.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// IsRunning reports whether the broker accepts connections.
func (s *Server) IsRunning() bool {
	return s.ns != nil && s.ns.Running()
}

// Stats returns broker counters. The zero value is returned when stopped.
func (s *Server) Stats() ServerStats {
	if s.ns == nil {
		return ServerStats{}
	}
	stats := ServerStats{
		Clients:       s.ns.NumClients(),
		Subscriptions: s.ns.NumSubscriptions(),
	}
	if varz, err := s.ns.Varz(nil); err == nil {
		stats.InMsgs = varz.InMsgs
		stats.OutMsgs = varz.OutMsgs
		stats.SlowConsumers = varz.SlowConsumers
	}
	return stats
}

// serverLog routes broker log lines into slog.
type serverLog struct {
	logger *slog.Logger
}

func (l *serverLog) log(level slog.Level, format string, v []any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *serverLog) Noticef(format string, v ...any) { l.log(slog.LevelDebug, format, v) }
func (l *serverLog) Warnf(format string, v ...any) { l.log(slog.LevelWarn, format, v) }
func (l *serverLog) Fatalf(format string, v ...any) { l.log(slog.LevelError, format, v) }
func (l *serverLog) Errorf(format string, v ...any) { l.log(slog.LevelError, format, v) }
func (l *serverLog) Debugf(format string, v ...any) { l.log(slog.LevelDebug, format, v) }
func (l *serverLog) Tracef(format string, v ...any) { l.log(slog.LevelDebug-4, format, v) }
