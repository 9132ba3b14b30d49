package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/skypro1111/live-subtitle-service/internal/capture"
	"github.com/skypro1111/live-subtitle-service/internal/config"
	"github.com/skypro1111/live-subtitle-service/internal/metrics"
	"github.com/skypro1111/live-subtitle-service/internal/pipeline"
	"github.com/skypro1111/live-subtitle-service/internal/segment"
	"github.com/skypro1111/live-subtitle-service/internal/server"
	"github.com/skypro1111/live-subtitle-service/internal/transcribe"
	"github.com/skypro1111/live-subtitle-service/internal/translate"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "live-subtitle-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Local overrides for API keys and endpoints
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Initialize Sentry error reporting when a DSN is configured
	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		})
		if err != nil {
			logger.Warn("Sentry init failed", slog.String("error", err.Error()))
		} else {
			logger.Info("Sentry initialized", slog.String("environment", cfg.Sentry.Environment))
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("capture_format", cfg.Capture.InputFormat),
		slog.String("capture_device", cfg.Capture.Device),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("silence_threshold", cfg.Segmenter.SilenceThreshold),
		slog.Float64("silence_duration", cfg.Segmenter.SilenceDuration),
		slog.Float64("max_speech_duration", cfg.Segmenter.MaxSpeechDuration),
		slog.String("transcription_backend", cfg.Transcription.Backend),
		slog.String("translation_endpoint", cfg.Translation.Endpoint),
		slog.String("translation_model", cfg.Translation.Model),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize capture source
	source, err := capture.NewFFmpegSource(capture.FFmpegConfig{
		InputFormat: cfg.Capture.InputFormat,
		Device:      cfg.Capture.Device,
		QueueSize:   cfg.Capture.QueueSize,
	}, logger)
	if err != nil {
		fatal(logger, "Failed to create capture source", err)
	}

	// Initialize segmenter
	segmenter, err := segment.New(segment.Config{
		SilenceThreshold:  cfg.Segmenter.SilenceThreshold,
		SilenceDuration:   cfg.Segmenter.GetSilenceDuration(),
		MinSpeechDuration: cfg.Segmenter.GetMinSpeechDuration(),
		MaxSpeechDuration: cfg.Segmenter.GetMaxSpeechDuration(),
		Carryover:         cfg.Segmenter.GetCarryover(),
	})
	if err != nil {
		fatal(logger, "Failed to create segmenter", err)
	}

	// Initialize recognition backend
	transcriber, err := transcribe.New(transcribe.Config{
		Backend:  cfg.Transcription.Backend,
		Endpoint: cfg.Transcription.Endpoint,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		fatal(logger, "Failed to create transcriber", err)
	}
	logger.Info("Recognition backend initialized",
		slog.String("backend", cfg.Transcription.Backend),
		slog.String("endpoint", cfg.Transcription.Endpoint),
	)

	// Initialize translation client
	translator, err := translate.NewClient(translate.Config{
		Endpoint: cfg.Translation.Endpoint,
		Model:    cfg.Translation.Model,
		Timeout:  cfg.Translation.GetTimeoutDuration(),
	})
	if err != nil {
		fatal(logger, "Failed to create translation client", err)
	}

	// Wire the pipeline
	p, err := pipeline.New(pipeline.Options{
		Source:               source,
		Segmenter:            segmenter,
		Transcriber:          transcriber,
		Translator:           translator,
		Metrics:              appMetrics,
		PollTimeout:          cfg.Segmenter.GetPollTimeout(),
		TranscribeTimeout:    cfg.Transcription.GetTimeoutDuration(),
		TranslateTimeout:     cfg.Translation.GetTimeoutDuration(),
		TranslationQueueSize: cfg.Translation.QueueSize,
	})
	if err != nil {
		fatal(logger, "Failed to create pipeline", err)
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, p, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start the pipeline; this probes the translation endpoint first
	if err := p.Start(ctx); err != nil {
		fatal(logger, "Failed to start pipeline", err)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(ctx); err != nil {
			fatal(logger, "Failed to start HTTP server", err)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the pipeline (capture, recognition loop, translation worker)
	p.Stop()

	// Get final statistics
	stats := p.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("frames_captured", stats.Source.FramesCaptured),
		slog.Uint64("frames_dropped", stats.Source.FramesDropped),
		slog.Uint64("utterances_emitted", stats.Segmenter.UtterancesEmitted),
		slog.Uint64("translations_completed", stats.Translator.TasksCompleted),
		slog.Uint64("translations_failed", stats.Translator.TasksFailed),
		slog.Uint64("stale_discards", stats.Subtitles.StaleDiscards),
	)

	logger.Info("Service stopped")
}

// fatal logs the error, reports it to Sentry when configured, and exits.
func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	sentry.CaptureException(err)
	sentry.Flush(2 * time.Second)
	os.Exit(1)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
