package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/engine"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/stream"
	"github.com/lexiqai/tts-gateway/internal/synth"
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
		Str("engine_backend", cfg.EngineBackend).
		Str("language", cfg.Language).
		Str("speaker", cfg.Speaker).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("TTS Gateway Service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingExporter, cfg.OTLPEndpoint, cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Start the inference engine; model loading can take a while
	backend, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start inference engine")
	}
	defer backend.Close()

	syn, err := synth.New(backend.Frontend, backend.Engine, backend.Info, synth.Options{
		Language:      cfg.Language,
		SentencePause: cfg.SentencePause,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create synthesizer")
	}
	speakerID, err := syn.SpeakerID(cfg.Speaker)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to resolve speaker")
	}

	limiter := stream.NewRateLimiter(cfg.ConnectRatePerMinute, cfg.ConnectBurst)
	defer limiter.Close()

	proxies, err := stream.NewProxyTrust(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid TRUSTED_PROXIES")
	}

	// Create HTTP server
	mux := http.NewServeMux()

	// Streaming synthesis endpoint
	mux.Handle("/tts/stream", stream.NewHandler(syn, stream.Options{
		SpeakerID:       speakerID,
		Hyperparameters: cfg.Hyperparameters(),
		QueueSize:       cfg.SessionQueueSize,
		WriteTimeout:    time.Duration(cfg.WriteTimeout) * time.Second,
	}, stream.HandlerConfig{
		Limiter:        limiter,
		Proxies:        proxies,
		MaxMessageSize: int64(cfg.MaxMessageSize),
	}))

	// Connectivity check for clients
	mux.HandleFunc("/websocket", stream.HandleEcho(logger))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"engine": backend.Health,
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Browser demo client
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
		logger.Info().Str("dir", cfg.StaticDir).Msg("Serving static files at /")
	}

	// Websocket connections clear these deadlines on upgrade
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/tts/stream", cfg.Port)).
			Int("sample_rate", syn.SampleRate()).
			Int("speaker_id", speakerID).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	stop()

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush traces")
	}

	logger.Info().Msg("Server exited gracefully")
}
