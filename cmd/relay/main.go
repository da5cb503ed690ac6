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

	"github.com/joho/godotenv"

	"github.com/Anantak/chip-voice-relay/internal/audio"
	"github.com/Anantak/chip-voice-relay/internal/command"
	"github.com/Anantak/chip-voice-relay/internal/config"
	"github.com/Anantak/chip-voice-relay/internal/metrics"
	"github.com/Anantak/chip-voice-relay/internal/publish"
	"github.com/Anantak/chip-voice-relay/internal/recognizer"
	"github.com/Anantak/chip-voice-relay/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "chip-voice-relay"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Pick up a local .env for the API key during development; absence is fine
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("chunk_millis", cfg.Audio.ChunkMillis),
		slog.Int("max_replay_secs", cfg.Audio.MaxReplaySecs),
		slog.Int("budget_millis", cfg.Stream.BudgetMillis),
		slog.String("recognizer_endpoint", cfg.Recognizer.Endpoint),
		slog.String("language", cfg.Recognizer.Language),
		slog.String("publish_address", fmt.Sprintf("%s:%d", cfg.Publish.BindAddress, cfg.Publish.Port)),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Command vocabulary and interpreter
	vocab := command.Default()

	// Publish hub carries the command broadcast plus monitoring endpoints
	hub := publish.NewHub(cfg.Publish, logger, appMetrics)

	interp := command.NewInterpreter(vocab, hub, logger, appMetrics)

	// Recognition client
	client, err := recognizer.NewClient(recognizer.Config{
		Endpoint: cfg.Recognizer.Endpoint,
		APIKey:   cfg.Recognizer.APIKey,
		Timeout:  cfg.Recognizer.GetTimeoutDuration(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create recognition client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Microphone factory: the supervisor recreates the source after
	// unrecoverable capture errors.
	sourceFactory := func() (audio.Source, error) {
		return audio.NewMicrophone(audio.Config{
			SampleRate:   cfg.Audio.SampleRate,
			Channels:     cfg.Audio.Channels,
			ChunkSamples: cfg.Audio.ChunkSamples(),
			QueueDepth:   cfg.Audio.QueueDepth(),
			DeviceID:     cfg.Audio.DeviceID,
		}, logger, appMetrics), nil
	}

	supervisor := stream.NewSupervisor(stream.Config{
		Budget:         cfg.Stream.GetBudgetDuration(),
		InitialBackoff: cfg.Stream.GetRetryBackoff(),
		MaxBackoff:     cfg.Stream.GetMaxRetryBackoff(),
		Streaming: recognizer.StreamingConfig{
			SampleRate:     cfg.Audio.SampleRate,
			Encoding:       "linear16",
			Language:       cfg.Recognizer.Language,
			Model:          cfg.Recognizer.Model,
			PhraseHints:    vocab.Phrases(),
			InterimResults: cfg.Recognizer.InterimResults,
		},
	}, sourceFactory, client, logger, appMetrics)

	// Expose component statistics on the hub's /stats endpoint
	hub.RegisterStats("supervisor", func() interface{} { return supervisor.GetStats() })
	hub.RegisterStats("interpreter", func() interface{} { return interp.GetStats() })
	hub.RegisterStats("recognizer", func() interface{} { return client.GetStats() })

	// Start the publish hub
	if err := hub.Start(); err != nil {
		logger.Error("Failed to start publish hub", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start listening
	supervisor.Start()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, listening for voice commands...",
		slog.String("publish_address", fmt.Sprintf("%s:%d%s",
			cfg.Publish.BindAddress, cfg.Publish.Port, cfg.Publish.Path)),
	)

	// Feed transcript events to the interpreter until a shutdown is requested
	// by signal, spoken phrase, or the supervisor stopping on its own.
loop:
	for {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			break loop

		case ev, ok := <-supervisor.Events():
			if !ok {
				logger.Info("Event stream ended")
				break loop
			}
			if interp.Handle(ev) {
				logger.Info("Shutdown requested by voice command")
				break loop
			}
		}
	}

	logger.Info("Starting graceful shutdown...")

	// Stop the supervisor first so no further commands are produced
	supervisor.Stop()
	for range supervisor.Events() {
	}

	// Stop the publish hub (disconnect subscribers, stop accepting new ones)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := hub.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping publish hub", slog.String("error", err.Error()))
	}

	// Get final statistics
	supStats := supervisor.GetStats()
	interpStats := interp.GetStats()
	hubStats := hub.GetStats()
	logger.Info("Final relay statistics",
		slog.Uint64("sessions_started", supStats.SessionsStarted),
		slog.Uint64("session_restarts", supStats.Restarts),
		slog.Uint64("recoverable_errors", supStats.RecoverableErrors),
		slog.Uint64("events_accepted", interpStats.EventsAccepted),
		slog.Uint64("commands_published", interpStats.Published),
		slog.Uint64("commands_suppressed", interpStats.Suppressed),
		slog.Uint64("messages_broadcast", hubStats.Published),
		slog.Uint64("messages_dropped", hubStats.Dropped),
	)

	logger.Info("Service stopped")
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
