package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skypro1111/whisper-offline/internal/config"
	"github.com/skypro1111/whisper-offline/internal/engine"
	"github.com/skypro1111/whisper-offline/internal/inference"
	"github.com/skypro1111/whisper-offline/internal/metrics"
	"github.com/skypro1111/whisper-offline/internal/model"
	"github.com/skypro1111/whisper-offline/internal/server"
	"github.com/skypro1111/whisper-offline/internal/tokenizer"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "whisper-offline"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	download := flag.Bool("download", false, "Download the configured model variant before starting")
	flag.Parse()

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
		slog.String("models_dir", cfg.Models.Dir),
		slog.String("variant", cfg.Models.Variant),
		slog.Int("max_tokens", cfg.Decoding.MaxTokens),
		slog.String("language", cfg.Decoding.Language),
		slog.Int("queue_size", cfg.Engine.QueueSize),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize model manager
	modelMgr, err := model.NewManager(model.Config{
		RootDir: cfg.Models.Dir,
		BaseURL: cfg.Models.BaseURL,
		Timeout: cfg.Models.GetDownloadTimeout(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create model manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	variant := model.Variant(cfg.Models.Variant)
	if *download && !modelMgr.IsDownloaded(variant) {
		logger.Info("Downloading model", slog.String("variant", cfg.Models.Variant))
		err := modelMgr.Download(ctx, variant, func(file string, received, total int64) {
			logger.Debug("Download progress",
				slog.String("file", file),
				slog.Int64("received", received),
				slog.Int64("total", total))
		})
		appMetrics.RecordModelDownload(err == nil)
		if err != nil {
			logger.Error("Model download failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Load the vocabulary shipped next to the model artifacts
	tok, err := loadTokenizer(modelMgr, variant, logger)
	if err != nil {
		logger.Error("Failed to load vocabulary", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize transcription engine
	eng, err := engine.New(
		engine.Dependencies{
			Models:    modelMgr,
			Backends:  inference.NewFactory(logger),
			Tokenizer: tok,
			Metrics:   appMetrics,
		},
		engine.Options{
			Variant:       variant,
			Language:      cfg.Decoding.Language,
			MaxTokens:     cfg.Decoding.MaxTokens,
			DecodeTimeout: cfg.Decoding.GetDecodeTimeout(),
			QueueSize:     cfg.Engine.QueueSize,
		},
		engine.Callbacks{},
		logger,
	)
	if err != nil {
		logger.Error("Failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := eng.Initialize(); err != nil {
		logger.Error("Failed to initialize engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Engine initialized", slog.String("variant", cfg.Models.Variant))

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpConfig := server.HTTPServerConfig{
			Port:    cfg.HTTP.Port,
			Address: cfg.HTTP.Address,
			Enabled: cfg.HTTP.Enabled,
		}
		httpServer = server.NewHTTPServer(httpConfig, logger, cfg, eng, modelMgr, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
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

	// Dispose the engine (cancel in-flight work, release backends)
	if err := eng.Dispose(); err != nil {
		logger.Error("Error disposing engine", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := eng.GetStats()
	logger.Info("Final engine statistics",
		slog.Uint64("submitted", stats.Submitted),
		slog.Uint64("completed", stats.Completed),
		slog.Uint64("failed", stats.Failed),
		slog.Uint64("cancelled", stats.Cancelled),
	)

	logger.Info("Service stopped")
}

// loadTokenizer reads vocab.json from the variant's model directory. A
// missing vocabulary yields an empty table: decoding still runs and every
// transcript collapses to the no-speech sentinel.
func loadTokenizer(mgr *model.Manager, variant model.Variant, logger *slog.Logger) (*tokenizer.Tokenizer, error) {
	vocabPath := filepath.Join(mgr.VariantDir(variant), "vocab.json")
	if _, err := os.Stat(vocabPath); err != nil {
		logger.Warn("No vocabulary file found, text output will be empty",
			slog.String("path", vocabPath))
		return tokenizer.New(map[int]string{}), nil
	}
	return tokenizer.Load(vocabPath)
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
