package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration. An empty AllowOrigins or one containing
// "*" allows any origin.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig returns a permissive read-mostly CORS config.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Accept", "Origin", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

// corsHeaders is the precomputed header set for a CORSConfig.
type corsHeaders struct {
	anyOrigin bool
	origins   []string
	methods   string
	headers   string
	maxAge    string
}

func newCORSHeaders(config CORSConfig) corsHeaders {
	return corsHeaders{
		anyOrigin: len(config.AllowOrigins) == 0 || slices.Contains(config.AllowOrigins, "*"),
		origins:   config.AllowOrigins,
		methods:   strings.Join(config.AllowMethods, ", "),
		headers:   strings.Join(config.AllowHeaders, ", "),
		maxAge:    strconv.Itoa(config.MaxAge),
	}
}

// allowOrigin returns the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed.
func (c corsHeaders) allowOrigin(origin string) string {
	if c.anyOrigin {
		return "*"
	}
	if origin != "" && slices.Contains(c.origins, origin) {
		return origin
	}
	return ""
}

func (c corsHeaders) apply(set func(key, value string), origin string) {
	allowed := c.allowOrigin(origin)
	if allowed == "" {
		return
	}
	set("Access-Control-Allow-Origin", allowed)
	if allowed != "*" {
		set("Vary", "Origin")
	}
	set("Access-Control-Allow-Methods", c.methods)
	set("Access-Control-Allow-Headers", c.headers)
	set("Access-Control-Max-Age", c.maxAge)
}

// NewCORSMiddleware creates CORS middleware with the given configuration
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	h := newCORSHeaders(config)

	return func(ctx huma.Context, next func(huma.Context)) {
		h.apply(ctx.SetHeader, ctx.Header("Origin"))

		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}

		next(ctx)
	}
}

// AddCORSHandler adds a CORS preflight handler to the mux for OPTIONS requests
// This is needed because Huma middleware doesn't intercept OPTIONS before routing
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	h := newCORSHeaders(config)

	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		h.apply(w.Header().Set, r.Header.Get("Origin"))
		w.WriteHeader(http.StatusNoContent)
	})
}
