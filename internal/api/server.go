// Package api exposes the parser, provider status and run audit over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/monitoring"
	"github.com/sells-group/orderparse/internal/provider"
)

// Parser parses one stored document. *pipeline.Parser implements it.
type Parser interface {
	Parse(ctx context.Context, ref string, hints model.Hints) *model.Outcome
}

// Providers reports provider routing state. *provider.Manager implements it.
type Providers interface {
	Status() map[string]provider.Status
	CheckHealth(ctx context.Context) []provider.HealthStatus
}

// Runs looks up audited runs.
type Runs interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
}

// Metrics produces health snapshots. *monitoring.Collector implements it.
type Metrics interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Options tunes the HTTP surface.
type Options struct {
	// UploadDir receives uploaded documents while they are parsed. Empty
	// uses the OS temp dir.
	UploadDir string
	// DocumentRoot confines JSON document_ref requests. Refs must be local
	// paths that stay inside it after symlinks are resolved. Empty disables
	// refs entirely, leaving multipart upload as the only input.
	DocumentRoot string
	// MaxUploadBytes caps a single upload. Zero means 50 MB.
	MaxUploadBytes int64
	// LookbackHours is the default /v1/metrics window. Zero means 24.
	LookbackHours int
	// RequestTimeout bounds every request, including the parse itself.
	// Zero means ParseBudget of the default routing (120s calls, 3 attempts).
	RequestTimeout time.Duration
	// AllowedOrigins feeds the CORS policy. Empty allows any origin.
	AllowedOrigins []string
}

// ParseBudget is the longest a parse can legitimately take: a primary and a
// secondary extraction, each allowed maxAttempts calls of callTimeout, plus
// a minute for preprocessing and persistence.
func ParseBudget(callTimeout time.Duration, maxAttempts int) time.Duration {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return 2*time.Duration(maxAttempts)*callTimeout + time.Minute
}

// Server holds the handlers' collaborators. runs and metrics may be nil
// when no store is configured.
type Server struct {
	parser    Parser
	providers Providers
	runs      Runs
	metrics   Metrics
	opts      Options
}

// New creates a Server.
func New(parser Parser, providers Providers, runs Runs, metrics Metrics, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if opts.LookbackHours <= 0 {
		opts.LookbackHours = 24
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = ParseBudget(120*time.Second, 3)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{parser: parser, providers: providers, runs: runs, metrics: metrics, opts: opts}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logRequests)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "orderparse")
	})

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/parse", s.handleParse)
		r.Get("/providers", s.handleProviders)
		r.Get("/providers/health", s.handleProviderHealth)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}
