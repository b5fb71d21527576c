package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/seisnode/internal/api/models"
	"github.com/smazurov/seisnode/internal/events"
	"github.com/smazurov/seisnode/internal/logging"
	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/streams"
	"github.com/smazurov/seisnode/internal/version"
	"github.com/smazurov/seisnode/internal/worker"
)

// Options configures the API server.
type Options struct {
	StreamService     streams.StreamService
	EventBus          *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
	WebSocketHandler  http.Handler // Optional subscription protocol handler

	// NATSConnected reports ingest connectivity for the health check. Nil
	// means NATS is disabled.
	NATSConnected func() bool

	// AllowedOrigins restricts CORS. Empty allows any origin.
	AllowedOrigins []string

	// StrictIdentifiers rejects trailing input after the channel code in
	// identifiers read from query parameters.
	StrictIdentifiers bool
}

// Server represents the Huma v2 API server
type Server struct {
	api           huma.API
	mux           *http.ServeMux
	httpServer    *http.Server
	streamService streams.StreamService
	eventBus      *events.Bus
	options       *Options
	logger        *slog.Logger
	parse         func(string) (streamid.StreamID, error)
}

// NewServer creates a new API server with Huma v2 using Go 1.22+ native routing
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	}
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("seisnode API", version.Get().Version)
	config.Info.Description = "Live RSAM/SSAM computation for seismic channel streams"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	eventBus := opts.EventBus
	if eventBus == nil {
		eventBus = events.New()
	}

	server := &Server{
		api:           api,
		mux:           mux,
		streamService: opts.StreamService,
		eventBus:      eventBus,
		options:       opts,
		logger:        logging.GetLogger("api"),
		parse:         streamid.Parser(opts.StrictIdentifiers),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	api.UseMiddleware(server.withParser)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	if opts.WebSocketHandler != nil {
		mux.Handle("GET /ws", opts.WebSocketHandler)
	}

	server.registerRoutes()

	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start starts the HTTP server on the specified address
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting seisnode API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires.
// Long-lived SSE and WebSocket connections are closed when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
	}, func(ctx context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{Body: s.health(ctx)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		versionInfo := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   versionInfo.Version,
				GitCommit: versionInfo.GitCommit,
				BuildDate: versionInfo.BuildDate,
				BuildID:   versionInfo.BuildID,
				GoVersion: versionInfo.GoVersion,
				Compiler:  versionInfo.Compiler,
				Platform:  versionInfo.Platform,
			},
		}, nil
	})

	s.registerStreamRoutes()
	s.registerSSERoutes()
}

func (s *Server) health(ctx context.Context) models.HealthData {
	data := models.HealthData{Status: "ok", Message: "API is healthy", NATS: "disabled"}

	if s.options.NATSConnected != nil {
		data.NATS = "disconnected"
		if s.options.NATSConnected() {
			data.NATS = "connected"
		}
	}

	list, err := s.streamService.ListStreams(ctx)
	if err != nil {
		data.Status = "degraded"
		data.Message = "Failed to list streams"
		return data
	}
	for _, stream := range list {
		if stream.Configured {
			data.Streams++
		}
		if stream.Status.State == worker.StateRunning {
			data.Running++
		}
	}

	if data.NATS == "disconnected" {
		data.Status = "degraded"
		data.Message = "NATS ingest is disconnected"
	}
	return data
}
