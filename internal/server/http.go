package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/whisper-offline/internal/audio"
	"github.com/skypro1111/whisper-offline/internal/config"
	"github.com/skypro1111/whisper-offline/internal/engine"
	"github.com/skypro1111/whisper-offline/internal/metrics"
	"github.com/skypro1111/whisper-offline/internal/model"
)

// maxUploadBytes bounds the accepted WAV payload: 30s of 16-bit stereo at
// 48 kHz plus header slack
const maxUploadBytes = 8 << 20

// HTTPServer provides HTTP API endpoints for transcription and monitoring
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	engine  *engine.Engine
	models  *model.Manager
	metrics *metrics.Metrics

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger,
	appConfig *config.Config, eng *engine.Engine, models *model.Manager, m *metrics.Metrics) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		engine:    eng,
		models:    models,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // transcription runs inside the request
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Transcription endpoint
	mux.HandleFunc("/api/v1/transcribe", h.withMetrics("/api/v1/transcribe", h.handleTranscribe))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Model inventory endpoint
	mux.HandleFunc("/api/v1/models", h.withMetrics("/api/v1/models", h.handleModels))

	// Configuration endpoint
	mux.HandleFunc("/api/v1/config", h.withMetrics("/api/v1/config", h.handleConfig))

	// Status and statistics endpoint
	mux.HandleFunc("/api/v1/status", h.withMetrics("/api/v1/status", h.handleStatus))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleTranscribe implements the POST /api/v1/transcribe endpoint. The
// request body is a WAV file; the response is the terminal transcription
// result.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "Audio payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	buffer, err := audio.DecodeWAV(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid WAV payload: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.engine.TranscribeSync(r.Context(), buffer)
	switch {
	case errors.Is(err, engine.ErrAlreadyBusy):
		http.Error(w, "Engine busy, retry later", http.StatusServiceUnavailable)
		return
	case errors.Is(err, engine.ErrNotInitialized), errors.Is(err, engine.ErrEngineClosed):
		http.Error(w, "Engine unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.Error("Transcription request failed", slog.String("error", err.Error()))
		http.Error(w, "Transcription failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	engineStats := h.engine.GetStats()

	status := "healthy"
	if !h.engine.IsInitialized() {
		status = "initializing"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "whisper-offline",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"engine": map[string]interface{}{
				"initialized": h.engine.IsInitialized(),
				"busy":        h.engine.IsBusy(),
				"variant":     h.engine.Variant(),
				"queue_depth": h.engine.QueueDepth(),
				"submitted":   engineStats.Submitted,
				"completed":   engineStats.Completed,
				"failed":      engineStats.Failed,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleModels implements the /models endpoint
func (h *HTTPServer) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	variants := make([]map[string]interface{}, 0, len(model.Variants()))
	for _, v := range model.Variants() {
		variants = append(variants, map[string]interface{}{
			"variant":    v,
			"downloaded": h.models.IsDownloaded(v),
			"active":     v == h.engine.Variant(),
		})
	}

	response := map[string]interface{}{
		"models":    variants,
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]interface{}{
		"models": map[string]interface{}{
			"dir":              h.config.Models.Dir,
			"variant":          h.config.Models.Variant,
			"download_timeout": h.config.Models.DownloadTimeout,
			// Note: base URL is intentionally omitted
		},
		"decoding": map[string]interface{}{
			"max_tokens": h.config.Decoding.MaxTokens,
			"timeout":    h.config.Decoding.Timeout,
			"language":   h.config.Decoding.Language,
		},
		"engine": map[string]interface{}{
			"queue_size": h.config.Engine.QueueSize,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStatus implements the /api/v1/status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	status := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"busy":      h.engine.IsBusy(),
		"variant":   h.engine.Variant(),
		"language":  h.engine.Language(),
		"engine":    h.engine.GetStats(),
		"models":    h.models.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Offline Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                   "API documentation",
			"POST /api/v1/transcribe": "Transcribe a WAV payload",
			"GET /health":             "Service health check",
			"GET /api/v1/models":      "List model variants and download state",
			"GET /api/v1/config":      "Get service configuration",
			"GET /api/v1/status":      "Get service status and statistics",
			"GET /metrics":            "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
