package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/llm"
	"github.com/lexiqai/voice-reply/internal/observability"
	"github.com/lexiqai/voice-reply/internal/orchestrator"
	"github.com/lexiqai/voice-reply/internal/resilience"
	"github.com/lexiqai/voice-reply/internal/storage"
	"github.com/lexiqai/voice-reply/internal/stt"
	"github.com/lexiqai/voice-reply/internal/tts"
	"github.com/lexiqai/voice-reply/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("tts_provider", cfg.TTSProvider).
		Str("chat_model", cfg.ChatModel).
		Str("output_dir", cfg.OutputDir).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Reply Service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Collaborators are created once and shared by every request
	httpClient := &http.Client{}

	var transcriber stt.Transcriber
	switch cfg.STTProvider {
	case "deepgram":
		transcriber = stt.NewDeepgramClient(cfg)
	default:
		transcriber = stt.NewWhisperClient(cfg, httpClient)
	}

	var synthesizer tts.Synthesizer
	switch cfg.TTSProvider {
	case "openai":
		synthesizer = tts.NewOpenAISpeechClient(cfg, httpClient)
	default:
		synthesizer = tts.NewGoogleTranslateClient(cfg, httpClient)
	}

	chat := llm.NewOpenAICompatClient(cfg, httpClient)

	// The whisper server loads its model at start; wait until it answers
	reconnectCfg := &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
	if err := resilience.Reconnect(ctx, transcriber.Ping, reconnectCfg, logger.With().Str("component", transcriber.Name()).Logger()); err != nil {
		logger.Fatal().Err(err).Str("stt_provider", transcriber.Name()).Msg("Speech recognition backend unavailable")
	}

	store, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare output directory")
	}

	var mirror orchestrator.Mirror
	var s3Mirror *storage.S3Mirror
	if cfg.S3Enabled() {
		s3Mirror, err = storage.NewS3Mirror(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to init S3 mirror")
		}
		mirror = s3Mirror
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("Mirroring reply audio to S3")
	}

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        config.RetryMaxBackoff,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	proc := orchestrator.New(cfg, orchestrator.Deps{
		Transcriber: transcriber,
		Chat:        chat,
		Synthesizer: synthesizer,
		Store:       store,
		Mirror:      mirror,
		// Recognition runs locally and is too expensive to repeat
		STTGuard:  resilience.NewGuard(newBreaker(cfg, "stt", logger), nil, cfg.STTTimeoutDuration()),
		ChatGuard: resilience.NewGuard(newBreaker(cfg, "chat", logger), retryCfg, cfg.ChatTimeoutDuration()),
		TTSGuard:  resilience.NewGuard(newBreaker(cfg, "tts", logger), retryCfg, cfg.TTSTimeoutDuration()),
		Logger:    logger,
	})

	// Retention janitor
	janitor := storage.NewJanitor(
		store,
		time.Duration(cfg.RetentionTTL)*time.Second,
		cfg.RetentionMaxFiles,
		time.Duration(cfg.RetentionSweepInterval)*time.Second,
		logger,
	)
	go janitor.Run(ctx)

	// Readiness checks
	checks := map[string]observability.HealthCheckFunc{
		"stt":     pingCheck(transcriber.Ping),
		"chat":    pingCheck(chat.Ping),
		"storage": pingCheck(store.Ping),
	}
	// No synthesis call is made to avoid costs
	checks["tts"] = func(ctx context.Context) (bool, error) {
		return synthesizer != nil, nil
	}
	if s3Mirror != nil {
		checks["s3"] = pingCheck(s3Mirror.Ping)
	}

	router := web.NewRouter(web.Options{
		Processor:      proc,
		Artifacts:      store,
		Checks:         checks,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimitRPM:   cfg.RateLimitRPM,
		MetricsEnabled: cfg.MetricsEnabled,
		Logger:         logger,
	})

	// Create HTTP server with timeouts. Writes wait for the whole pipeline.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.PipelineTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	var grpcHealth *observability.GRPCHealthServer
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCHealthPort).Msg("Failed to listen for gRPC health")
		}
		grpcHealth = observability.NewGRPCHealthServer(checks, 10*time.Second)
		go func() {
			logger.Info().Str("port", cfg.GRPCHealthPort).Msg("gRPC health listening")
			if err := grpcHealth.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// newBreaker creates a circuit breaker that reports its state as a metric.
func newBreaker(cfg *config.Config, name string, logger zerolog.Logger) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(name, cfg.CircuitBreakerMaxFailures, time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	var last atomic.Int32
	cb.OnResult(func(name string, state resilience.CircuitState, success bool) {
		observability.UpdateCircuitBreakerState(name, int(state))
		if !success {
			observability.IncrementCircuitBreakerFailures(name)
		}
		if prev := resilience.CircuitState(last.Swap(int32(state))); prev != state {
			logger.Warn().
				Str("service", name).
				Str("from", prev.String()).
				Str("to", state.String()).
				Msg("Circuit breaker state changed")
		}
	})
	observability.UpdateCircuitBreakerState(name, int(resilience.StateClosed))
	return cb
}

func pingCheck(ping func(ctx context.Context) error) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		if err := ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
}
