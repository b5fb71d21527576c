package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/seisnode/cmd"
	"github.com/smazurov/seisnode/internal/api"
	"github.com/smazurov/seisnode/internal/config"
	"github.com/smazurov/seisnode/internal/events"
	"github.com/smazurov/seisnode/internal/logging"
	"github.com/smazurov/seisnode/internal/metrics/exporters"
	"github.com/smazurov/seisnode/internal/nats"
	"github.com/smazurov/seisnode/internal/rsam"
	"github.com/smazurov/seisnode/internal/streams"
	"github.com/smazurov/seisnode/internal/streams/store"
	"github.com/smazurov/seisnode/internal/subscription"
	"github.com/smazurov/seisnode/internal/systemd"
	"github.com/smazurov/seisnode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port           string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	AllowedOrigins string `help:"Comma separated CORS and WebSocket origins (empty allows any)" default:"" toml:"server.allowed_origins" env:"SERVER_ALLOWED_ORIGINS"`

	// Streams settings
	StreamsConfigFile string `help:"Stream definitions file" default:"streams.toml" toml:"streams.config_file" env:"STREAMS_CONFIG_FILE"`
	StreamsWatch      bool   `help:"Reload the streams file when it changes" default:"true" toml:"streams.watch" env:"STREAMS_WATCH"`
	StrictIdentifiers bool   `help:"Reject stream identifiers with trailing input" default:"false" toml:"streams.strict_identifiers" env:"STREAMS_STRICT_IDENTIFIERS"`
	AcceptUnknown     bool   `help:"Process packets for streams missing from the streams file" default:"false" toml:"streams.accept_unknown" env:"STREAMS_ACCEPT_UNKNOWN"`
	InboxSize         int    `help:"Packets buffered per stream worker" default:"256" toml:"streams.inbox_size" env:"STREAMS_INBOX_SIZE"`

	// RSAM settings
	RSAMWindow string `help:"Default RSAM window" default:"10m" toml:"rsam.window" env:"RSAM_WINDOW"`

	// NATS settings
	NATSEnabled  bool   `help:"Ingest waveform packets from NATS" default:"true" toml:"nats.enabled" env:"NATS_ENABLED"`
	NATSEmbedded bool   `help:"Run an embedded NATS server" default:"true" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSHost     string `help:"Embedded NATS listen host" default:"127.0.0.1" toml:"nats.host" env:"NATS_HOST"`
	NATSPort     int    `help:"Embedded NATS listen port" default:"4222" toml:"nats.port" env:"NATS_PORT"`
	NATSURL      string `help:"External NATS URL (used when the embedded server is disabled)" default:"nats://127.0.0.1:4222" toml:"nats.url" env:"NATS_URL"`

	// Subscription settings
	WSMaxSubscriptions int `help:"Streams one WebSocket client may follow" default:"100" toml:"ws.max_subscriptions" env:"WS_MAX_SUBSCRIPTIONS"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingStreams string `help:"Streams logging level" default:"info" toml:"logging.streams" env:"LOGGING_STREAMS"`
	LoggingNATS    string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
	LoggingWS      string `help:"WebSocket subscription logging level" default:"info" toml:"logging.ws" env:"LOGGING_WS"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"streams": opts.LoggingStreams,
				"nats":    opts.LoggingNATS,
				"ws":      opts.LoggingWS,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
			},
		})

		logger := logging.GetLogger("main")
		logger.Info(version.Get().Summary())

		window, err := time.ParseDuration(opts.RSAMWindow)
		if err != nil || window <= 0 {
			logger.Warn("Invalid RSAM window, using default", "window", opts.RSAMWindow, "default", rsam.DefaultWindow)
			window = rsam.DefaultWindow
		}
		origins := splitList(opts.AllowedOrigins)

		// Create event bus for in-process event handling
		eventBus := events.New()

		var collector *exporters.BusCollector
		if opts.MetricsEnabled {
			collector = exporters.NewBusCollector(eventBus)
			collector.Start()
		}

		streamsLogger := logging.GetLogger("streams")
		streamStore := store.NewTOML(opts.StreamsConfigFile, store.WithStrictIdentifiers(opts.StrictIdentifiers))

		streamService := streams.NewStreamService(&streams.ServiceOptions{
			Store:             streamStore,
			EventBus:          eventBus,
			DefaultWindow:     window,
			StrictIdentifiers: opts.StrictIdentifiers,
			AcceptUnknown:     opts.AcceptUnknown,
			InboxSize:         opts.InboxSize,
			Logger:            streamsLogger,
		})

		// Invalid entries are skipped; the rest of the catalogue still loads.
		if loadErr := streamService.LoadStreamsFromConfig(); loadErr != nil {
			logger.Warn("Failed to load streams from config", "error", loadErr)
		}

		var watcher *config.Watcher[streams.Catalog]
		if opts.StreamsWatch {
			watcher = config.NewConfigWatcher(
				opts.StreamsConfigFile,
				store.Loader(opts.StrictIdentifiers, streamsLogger),
				streamsLogger,
			)
			watcher.OnReload(streamService.ApplyCatalog)
		}

		// WebSocket subscriptions
		hub := subscription.NewHub(subscription.HubOptions{
			MaxSubscriptions:  opts.WSMaxSubscriptions,
			StrictIdentifiers: opts.StrictIdentifiers,
			EventBus:          eventBus,
			Logger:            logging.GetLogger("ws"),
		})
		detachHub := hub.AttachBus(eventBus)
		hubCtx, stopHub := context.WithCancel(context.Background())

		// NATS ingest and result publishing
		natsLogger := logging.GetLogger("nats")
		var natsServer *nats.Server
		var bridge *nats.Bridge
		var publisher *nats.Publisher
		detachPublisher := func() {}
		natsURL := opts.NATSURL
		if opts.NATSEnabled && opts.NATSEmbedded {
			natsServer = nats.NewServer(nats.ServerOptions{
				Host:   opts.NATSHost,
				Port:   opts.NATSPort,
				Logger: natsLogger,
			})
		}

		apiOpts := &api.Options{
			StreamService:    streamService,
			EventBus:         eventBus,
			WebSocketHandler: subscription.NewHandler(hub, origins),
			AllowedOrigins:   origins,

			StrictIdentifiers: opts.StrictIdentifiers,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler(logging.GetLogger("api"))
		}
		if opts.NATSEnabled {
			apiOpts.NATSConnected = func() bool {
				return bridge != nil && bridge.IsConnected()
			}
		}

		server := api.NewServer(apiOpts)

		notifier := systemd.NewNotifier(logger, func() bool {
			return natsServer == nil || natsServer.IsRunning()
		})

		hooks.OnStart(func() {
			go func() {
				_ = hub.RunWithContext(hubCtx)
			}()

			if watcher != nil {
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to start streams watcher, hot-reload disabled", "error", startErr)
					watcher = nil
				}
			}

			if natsServer != nil {
				if startErr := natsServer.Start(); startErr != nil {
					logger.Error("Failed to start embedded NATS server", "error", startErr)
					os.Exit(1)
				}
				natsURL = natsServer.ClientURL()
			}

			if opts.NATSEnabled {
				bridge = nats.NewBridge(natsURL, streamService.HandlePacket, natsLogger)
				if startErr := bridge.Start(); startErr != nil {
					logger.Warn("NATS ingest unavailable", "url", natsURL, "error", startErr)
				}

				publisher = nats.NewPublisher(natsURL, version.ClientName("publisher"), natsLogger)
				if connErr := publisher.Connect(); connErr == nil {
					detachPublisher = publisher.AttachBus(eventBus)
				}
			}

			notifier.Ready()
			if list, listErr := streamService.ListStreams(context.Background()); listErr == nil {
				notifier.Status(fmt.Sprintf("%d streams, ingest %s", len(list), natsURL))
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()

			// Subscription clients hold long-lived connections; close them first
			// so the HTTP shutdown does not wait on them.
			stopHub()
			detachHub()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping streams watcher", "error", stopErr)
				}
			}

			// Stop ingest before workers so open windows flush with every
			// packet already received.
			if bridge != nil {
				bridge.Stop()
			}
			streamService.Stop()

			detachPublisher()
			if publisher != nil {
				if flushErr := publisher.Flush(5 * time.Second); flushErr != nil {
					logger.Warn("Failed to flush NATS publisher", "error", flushErr)
				}
				publisher.Close()
			}
			if natsServer != nil {
				stats := natsServer.Stats()
				logger.Info("Embedded NATS traffic", "in_msgs", stats.InMsgs, "out_msgs", stats.OutMsgs, "slow_consumers", stats.SlowConsumers)
				natsServer.Stop()
			}
			if collector != nil {
				collector.Stop()
			}
		})
	})

	cli.Root().Use = "seisnode"
	cli.Root().Short = "Live RSAM/SSAM computation for seismic channel streams"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateParseCmd())
	cli.Root().AddCommand(cmd.CreateSimulateCmd())
	cli.Root().AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintln(c.OutOrStdout(), version.Get().Summary())
		},
	})

	// Run the CLI
	cli.Run()
}

// splitList splits a comma separated option, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
