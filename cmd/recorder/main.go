package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	primaryHTTP "go-video-recorder/internal/adapters/primary/http"
	"go-video-recorder/internal/adapters/secondary/ffmpeg"
	"go-video-recorder/internal/adapters/secondary/fsstore"
	"go-video-recorder/internal/adapters/secondary/memory"
	"go-video-recorder/internal/adapters/secondary/openai"
	"go-video-recorder/internal/adapters/secondary/queue"
	"go-video-recorder/internal/adapters/secondary/whisper"
	"go-video-recorder/internal/config"
	"go-video-recorder/internal/core/ports"
	"go-video-recorder/internal/core/services"
	"go-video-recorder/internal/metrics"
)

const serviceName = "go-video-recorder"

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("config_path", *configPath),
		slog.String("address", cfg.Server.Address),
		slog.String("storage_root", cfg.Storage.RootDir),
		slog.String("session_store", cfg.Storage.SessionStore),
		slog.String("transcription_backend", cfg.Transcription.Backend),
		slog.Int("workers", cfg.Queue.Workers),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(registry)

	// Initialize Adapters
	chunkStore, err := fsstore.NewChunkStore(cfg.Storage.RootDir)
	if err != nil {
		logger.Error("Failed to create chunk store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessions, err := newSessionRepository(cfg.Storage)
	if err != nil {
		logger.Error("Failed to create session store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	transcriber, err := newTranscriber(cfg.Transcription)
	if err != nil {
		logger.Error("Failed to create transcriber", slog.String("error", err.Error()))
		os.Exit(1)
	}
	extractor := ffmpeg.NewAudioExtractor(cfg.Transcription.FFmpegPath, "")

	// Initialize Core
	pipeline := services.NewPipeline(sessions, chunkStore, extractor, transcriber, appMetrics, logger)
	jobs := queue.New(queue.Config{
		Workers:       cfg.Queue.Workers,
		Capacity:      cfg.Queue.Capacity,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		RetryBase:     cfg.Queue.RetryBase,
		RetryMaxDelay: cfg.Queue.RetryMaxDelay,
	}, pipeline, appMetrics, logger)

	recordingService := services.NewRecordingService(sessions, chunkStore, jobs, appMetrics, logger, services.Options{
		StopWait:      cfg.Server.StopWait,
		MaxChunkBytes: cfg.Server.MaxChunkBytes,
	})

	// Initialize Driving Adapter (HTTP)
	httpHandler := primaryHTTP.NewHandler(recordingService, logger, appMetrics, registry, cfg.Server.MaxChunkBytes)
	mux := http.NewServeMux()
	httpHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + cfg.Server.StopWait,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("HTTP server failed", slog.String("error", err.Error()))
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests before draining background jobs.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}
	if err := jobs.Close(shutdownCtx); err != nil {
		logger.Warn("Job queue did not drain", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

func newSessionRepository(cfg config.StorageConfig) (ports.SessionRepository, error) {
	switch cfg.SessionStore {
	case "memory":
		return memory.NewSessionRepository(), nil
	default:
		return fsstore.NewSessionRepository(cfg.RootDir)
	}
}

func newTranscriber(cfg config.TranscriptionConfig) (ports.Transcriber, error) {
	switch cfg.Backend {
	case "openai":
		return openai.NewTranscriber(openai.Config{
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.OpenAIModel,
			Endpoint: cfg.OpenAIEndpoint,
			Language: cfg.Language,
			Timeout:  cfg.Timeout,
		})
	default:
		return whisper.NewTranscriber(cfg.WhisperPath, cfg.ModelPath, cfg.Language), nil
	}
}

// initLogger creates the structured logger described by cfg
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}
