package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reply/internal/observability"
	"github.com/lexiqai/voice-reply/internal/orchestrator"
)

// Processor runs the voice-reply pipeline on a recorded file.
type Processor interface {
	Process(ctx context.Context, audioPath string) (*orchestrator.Result, error)
}

// Artifacts resolves generated audio names to files.
type Artifacts interface {
	Lookup(name string) (string, bool)
}

// Options configures the HTTP surface.
type Options struct {
	Processor      Processor
	Artifacts      Artifacts
	Checks         map[string]observability.HealthCheckFunc
	MaxUploadBytes int64
	RateLimitRPM   int // 0 disables rate limiting
	MetricsEnabled bool
	Logger         zerolog.Logger
}

// Handler serves the upload page, the JSON API and the websocket endpoint.
type Handler struct {
	proc      Processor
	artifacts Artifacts
	maxUpload int64
	logger    zerolog.Logger
}

// NewRouter builds the router for every public route.
func NewRouter(opts Options) http.Handler {
	h := &Handler{
		proc:      opts.Processor,
		artifacts: opts.Artifacts,
		maxUpload: opts.MaxUploadBytes,
		logger:    opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		RequestLogger(opts.Logger),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", CorrelationHeader},
			ExposedHeaders: []string{CorrelationHeader},
		}),
	)

	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(opts.Checks))
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/", h.Index)
	r.Get("/audio/{name}", h.Audio)

	// Processing routes are the expensive ones
	r.Group(func(pr chi.Router) {
		if opts.RateLimitRPM > 0 {
			pr.Use(httprate.LimitByIP(opts.RateLimitRPM, time.Minute))
		}
		pr.Post("/", h.SubmitForm)
		pr.Post("/api/v1/process", h.ProcessAPI)
		pr.Get("/ws", h.WebSocket)
	})

	return r
}
