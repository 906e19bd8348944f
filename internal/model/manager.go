package model

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Variant identifies a model-size variant
type Variant string

// Supported model-size variants
const (
	VariantTiny  Variant = "tiny"
	VariantBase  Variant = "base"
	VariantSmall Variant = "small"
)

// Artifact file names inside a variant directory
const (
	EncoderFileName = "encoder.onnx"
	DecoderFileName = "decoder.onnx"
	modelsDirName   = "models"
)

// Model management error kinds
var (
	// ErrUnknownVariant indicates an unsupported model-size variant name
	ErrUnknownVariant = errors.New("model: unknown variant")

	// ErrModelNotDownloaded indicates missing encoder or decoder artifacts
	ErrModelNotDownloaded = errors.New("model: artifacts not downloaded")

	// ErrDownloadFailed indicates a network or storage failure while fetching
	ErrDownloadFailed = errors.New("model: download failed")
)

// Handle identifies a resolved encoder/decoder artifact pair
type Handle struct {
	Variant     Variant `json:"variant"`
	EncoderPath string  `json:"encoder_path"`
	DecoderPath string  `json:"decoder_path"`
}

// Config contains model manager configuration
type Config struct {
	RootDir string        // Application data root; models live under <root>/models
	BaseURL string        // Remote host serving <base>/<variant>/{encoder,decoder}.onnx
	Timeout time.Duration // Per-file download timeout
}

// ManagerStats represents download statistics for monitoring
type ManagerStats struct {
	Downloads       uint64 `json:"downloads"`
	DownloadErrors  uint64 `json:"download_errors"`
	BytesDownloaded uint64 `json:"bytes_downloaded"`
}

// Manager resolves, verifies and downloads model artifact pairs cached on
// local disk, keyed by variant name.
type Manager struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	// Statistics
	downloads       uint64
	downloadErrors  uint64
	bytesDownloaded uint64

	mu sync.RWMutex
}

// NewManager creates a model manager rooted at the configured data directory
func NewManager(config Config, logger *slog.Logger) (*Manager, error) {
	if config.RootDir == "" {
		return nil, fmt.Errorf("model root directory cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Join(config.RootDir, modelsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &Manager{
		config: config,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// KnownVariant reports whether the variant name is supported
func KnownVariant(v Variant) bool {
	switch v {
	case VariantTiny, VariantBase, VariantSmall:
		return true
	default:
		return false
	}
}

// Variants lists the supported model-size variants
func Variants() []Variant {
	return []Variant{VariantTiny, VariantBase, VariantSmall}
}

// VariantDir returns the cache directory for a variant
func (m *Manager) VariantDir(v Variant) string {
	return filepath.Join(m.config.RootDir, modelsDirName, string(v))
}

// EncoderPath returns the cached encoder artifact path for a variant
func (m *Manager) EncoderPath(v Variant) string {
	return filepath.Join(m.VariantDir(v), EncoderFileName)
}

// DecoderPath returns the cached decoder artifact path for a variant
func (m *Manager) DecoderPath(v Variant) string {
	return filepath.Join(m.VariantDir(v), DecoderFileName)
}

// IsDownloaded reports whether both artifacts exist and are non-empty
func (m *Manager) IsDownloaded(v Variant) bool {
	if !KnownVariant(v) {
		return false
	}
	for _, path := range []string{m.EncoderPath(v), m.DecoderPath(v)} {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			return false
		}
	}
	return true
}

// Resolve returns a handle for a downloaded variant
func (m *Manager) Resolve(v Variant) (*Handle, error) {
	if !KnownVariant(v) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
	if !m.IsDownloaded(v) {
		return nil, fmt.Errorf("%w: variant %q (expected %s and %s)",
			ErrModelNotDownloaded, v, m.EncoderPath(v), m.DecoderPath(v))
	}

	return &Handle{
		Variant:     v,
		EncoderPath: m.EncoderPath(v),
		DecoderPath: m.DecoderPath(v),
	}, nil
}

// GetStats returns current download statistics
func (m *Manager) GetStats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ManagerStats{
		Downloads:       m.downloads,
		DownloadErrors:  m.downloadErrors,
		BytesDownloaded: m.bytesDownloaded,
	}
}
