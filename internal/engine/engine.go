package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/whisper-offline/internal/audio"
	"github.com/skypro1111/whisper-offline/internal/inference"
	"github.com/skypro1111/whisper-offline/internal/mel"
	"github.com/skypro1111/whisper-offline/internal/metrics"
	"github.com/skypro1111/whisper-offline/internal/model"
	"github.com/skypro1111/whisper-offline/internal/tokenizer"
)

// Engine error kinds
var (
	// ErrNotInitialized indicates a request arrived before Initialize
	ErrNotInitialized = errors.New("engine: not initialized")

	// ErrAlreadyBusy indicates the request queue is full
	ErrAlreadyBusy = errors.New("engine: busy with another request")

	// ErrEngineClosed indicates the engine was disposed
	ErrEngineClosed = errors.New("engine: closed")

	// ErrUnknownLanguage indicates an unsupported language code
	ErrUnknownLanguage = errors.New("engine: unknown language code")

	// ErrRequestNotFound indicates a cancel target that is neither pending
	// nor in flight
	ErrRequestNotFound = errors.New("engine: request not found")

	// ErrNoCapture indicates capture operations without an open capture
	ErrNoCapture = errors.New("engine: no capture in progress")
)

// Request status values reported through OnStatus
const (
	StatusQueued      = "queued"
	StatusNormalizing = "normalizing"
	StatusExtracting  = "extracting"
	StatusEncoding    = "encoding"
	StatusDecoding    = "decoding"
	StatusDone        = "done"
)

// TranscriptionResult is the terminal outcome of a transcription request
type TranscriptionResult struct {
	RequestID        string  `json:"request_id"`
	Text             string  `json:"text"`
	DetectedLanguage string  `json:"detected_language,omitempty"`
	Confidence       float64 `json:"confidence"`
	ProcessingMs     int64   `json:"processing_ms"`
	Succeeded        bool    `json:"succeeded"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// Callbacks receive request lifecycle events. All callbacks are invoked from
// the engine worker goroutine and must not block.
type Callbacks struct {
	OnComplete func(result TranscriptionResult)
	OnProgress func(requestID string, fraction float64)
	OnStatus   func(requestID, status string)
	OnError    func(requestID, message string)
}

// Dependencies wires the engine to its collaborators
type Dependencies struct {
	Models    *model.Manager
	Backends  inference.Factory
	Tokenizer *tokenizer.Tokenizer
	Metrics   *metrics.Metrics // optional
}

// Options contains engine tuning derived from configuration
type Options struct {
	Variant       model.Variant
	Language      string // ISO 639-1 code; empty enables detection
	MaxTokens     int
	DecodeTimeout time.Duration
	QueueSize     int
}

// EngineStats represents engine statistics for monitoring
type EngineStats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Rejected  uint64 `json:"rejected"`
}

// request is one unit of work moving through the queue
type request struct {
	id     string
	buffer *audio.Buffer
	done   chan TranscriptionResult // nil for async submissions

	mu        sync.Mutex
	cancelled bool               // set while still pending
	cancel    context.CancelFunc // set once in flight
}

func (r *request) markCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		return true
	}
	r.cancelled = true
	return false
}

func (r *request) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *request) setCancel(cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return false
	}
	r.cancel = cancel
	return true
}

// Engine is the transcription session controller. It owns one worker
// goroutine that drains a bounded request queue, so at most one request is
// in flight at a time.
type Engine struct {
	deps      Dependencies
	opts      Options
	callbacks Callbacks
	logger    *slog.Logger

	normalizer *audio.Normalizer
	extractor  *mel.Extractor

	queue  chan *request
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	encoder inference.EncoderBackend
	decoder inference.DecoderBackend

	capture *captureSession

	// Statistics
	submitted uint64
	completed uint64
	failed    uint64
	cancelled uint64
	rejected  uint64

	initialized bool
	closed      bool
	inFlight    *request
	pending     map[string]*request

	mu sync.RWMutex
}

// New creates an engine. The engine does not load models until Initialize.
func New(deps Dependencies, opts Options, callbacks Callbacks, logger *slog.Logger) (*Engine, error) {
	if deps.Models == nil {
		return nil, fmt.Errorf("model manager is required")
	}
	if deps.Backends == nil {
		return nil, fmt.Errorf("backend factory is required")
	}
	if deps.Tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if opts.Variant == "" {
		opts.Variant = model.VariantBase
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.MaxTokens <= 0 || opts.MaxTokens > tokenizer.MaxTokens {
		opts.MaxTokens = tokenizer.MaxTokens
	}
	if opts.Language != "" && !tokenizer.IsKnownLanguage(opts.Language) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, opts.Language)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		deps:       deps,
		opts:       opts,
		callbacks:  callbacks,
		logger:     logger,
		normalizer: audio.NewNormalizer(logger),
		extractor:  mel.NewExtractor(),
		pending:    make(map[string]*request),
	}, nil
}

// Initialize resolves the configured model variant, builds the inference
// backends and starts the worker. Calling it on an initialized engine is a
// no-op.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.initialized {
		return nil
	}

	handle, err := e.deps.Models.Resolve(e.opts.Variant)
	if err != nil {
		return fmt.Errorf("failed to resolve model %q: %w", e.opts.Variant, err)
	}

	encoder, err := e.deps.Backends.NewEncoder(handle.EncoderPath)
	if err != nil {
		return fmt.Errorf("failed to load encoder: %w", err)
	}

	decoder, err := e.deps.Backends.NewDecoder(handle.DecoderPath)
	if err != nil {
		encoder.Close()
		return fmt.Errorf("failed to load decoder: %w", err)
	}

	e.encoder = encoder
	e.decoder = decoder
	e.queue = make(chan *request, e.opts.QueueSize)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.initialized = true

	e.wg.Add(1)
	go e.worker()

	e.logger.Info("Engine initialized",
		slog.String("variant", string(e.opts.Variant)),
		slog.Int("queue_size", e.opts.QueueSize))
	return nil
}

// Transcribe submits a buffer for asynchronous transcription and returns the
// request ID. The outcome arrives through OnComplete. A full queue rejects
// the request with ErrAlreadyBusy.
func (e *Engine) Transcribe(buffer *audio.Buffer) (string, error) {
	return e.submit(buffer, nil)
}

// TranscribeSync submits a buffer and blocks until its terminal result
func (e *Engine) TranscribeSync(ctx context.Context, buffer *audio.Buffer) (TranscriptionResult, error) {
	done := make(chan TranscriptionResult, 1)
	id, err := e.submit(buffer, done)
	if err != nil {
		return TranscriptionResult{}, err
	}

	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
		e.Cancel(id)
		// The worker still delivers a terminal result for this request
		return <-done, nil
	}
}

// TranscribeFile reads a WAV file and submits it for transcription
func (e *Engine) TranscribeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file %s: %w", path, err)
	}

	buffer, err := audio.DecodeWAV(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode audio file %s: %w", path, err)
	}

	return e.Transcribe(buffer)
}

func (e *Engine) submit(buffer *audio.Buffer, done chan TranscriptionResult) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrEngineClosed
	}
	if !e.initialized {
		e.mu.Unlock()
		return "", ErrNotInitialized
	}

	req := &request{
		id:     uuid.New().String(),
		buffer: buffer,
		done:   done,
	}

	select {
	case e.queue <- req:
		e.pending[req.id] = req
		e.submitted++
		depth := len(e.queue)
		e.mu.Unlock()

		e.deps.Metrics.RecordRequest()
		e.deps.Metrics.SetQueueSize(depth)
		e.notifyStatus(req.id, StatusQueued)
		return req.id, nil
	default:
		e.rejected++
		e.mu.Unlock()

		e.deps.Metrics.RecordRejected()
		return "", ErrAlreadyBusy
	}
}

// Cancel aborts a request. A pending request is skipped before it starts and
// reported only through OnError; an in-flight request stops at the next
// pipeline boundary and still produces a terminal result.
func (e *Engine) Cancel(id string) error {
	e.mu.RLock()
	req, ok := e.pending[id]
	if !ok && e.inFlight != nil && e.inFlight.id == id {
		req, ok = e.inFlight, true
	}
	e.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}

	if req.markCancelled() {
		e.logger.Info("Cancelling in-flight request", slog.String("request_id", id))
	} else {
		e.logger.Info("Cancelled pending request", slog.String("request_id", id))
	}
	return nil
}

// Dispose stops the worker, drains pending requests as cancelled and releases
// the inference backends. It is idempotent.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	initialized := e.initialized
	e.initialized = false
	e.mu.Unlock()

	if !initialized {
		return nil
	}

	e.cancel()
	e.wg.Wait()

	// Drain whatever the worker never reached
drain:
	for {
		select {
		case req := <-e.queue:
			e.finishCancelled(req)
		default:
			break drain
		}
	}

	var errs []error
	if err := e.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("encoder close: %w", err))
	}
	if err := e.decoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("decoder close: %w", err))
	}

	e.logger.Info("Engine disposed")
	return errors.Join(errs...)
}

// SetLanguage fixes the transcription language, or enables detection when
// code is empty. Takes effect for subsequent requests.
func (e *Engine) SetLanguage(code string) error {
	if code != "" && !tokenizer.IsKnownLanguage(code) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}

	e.mu.Lock()
	e.opts.Language = code
	e.mu.Unlock()
	return nil
}

// SetModel switches the engine to another model variant. The engine must be
// idle; backends are swapped in place.
func (e *Engine) SetModel(variant model.Variant) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.opts.Variant == variant {
		return nil
	}
	if !e.initialized {
		e.opts.Variant = variant
		return nil
	}
	if e.inFlight != nil || len(e.pending) > 0 {
		return ErrAlreadyBusy
	}

	handle, err := e.deps.Models.Resolve(variant)
	if err != nil {
		return fmt.Errorf("failed to resolve model %q: %w", variant, err)
	}

	encoder, err := e.deps.Backends.NewEncoder(handle.EncoderPath)
	if err != nil {
		return fmt.Errorf("failed to load encoder: %w", err)
	}
	decoder, err := e.deps.Backends.NewDecoder(handle.DecoderPath)
	if err != nil {
		encoder.Close()
		return fmt.Errorf("failed to load decoder: %w", err)
	}

	e.encoder.Close()
	e.decoder.Close()
	e.encoder = encoder
	e.decoder = decoder
	e.opts.Variant = variant

	e.logger.Info("Model switched", slog.String("variant", string(variant)))
	return nil
}

// DownloadModel fetches a variant's artifacts into the local cache. Safe to
// call at any point in the engine lifecycle; it does not touch the loaded
// backends.
func (e *Engine) DownloadModel(ctx context.Context, variant model.Variant, progress model.ProgressFunc) error {
	err := e.deps.Models.Download(ctx, variant, progress)
	e.deps.Metrics.RecordModelDownload(err == nil)
	return err
}

// IsModelDownloaded reports whether a variant's artifacts are cached locally
func (e *Engine) IsModelDownloaded(variant model.Variant) bool {
	return e.deps.Models.IsDownloaded(variant)
}

// IsInitialized reports whether Initialize has completed
func (e *Engine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// IsBusy reports whether a request is in flight or queued
func (e *Engine) IsBusy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.inFlight != nil || len(e.pending) > 0
}

// QueueDepth returns the number of requests waiting in the queue
func (e *Engine) QueueDepth() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.queue == nil {
		return 0
	}
	return len(e.queue)
}

// Variant returns the active model variant
func (e *Engine) Variant() model.Variant {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts.Variant
}

// Language returns the configured language code, empty when detecting
func (e *Engine) Language() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts.Language
}

// GetStats returns current engine statistics
func (e *Engine) GetStats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return EngineStats{
		Submitted: e.submitted,
		Completed: e.completed,
		Failed:    e.failed,
		Cancelled: e.cancelled,
		Rejected:  e.rejected,
	}
}

func (e *Engine) notifyStatus(id, status string) {
	if e.callbacks.OnStatus != nil {
		e.callbacks.OnStatus(id, status)
	}
}

func (e *Engine) notifyProgress(id string, fraction float64) {
	if e.callbacks.OnProgress != nil {
		e.callbacks.OnProgress(id, fraction)
	}
}

func (e *Engine) notifyError(id, message string) {
	if e.callbacks.OnError != nil {
		e.callbacks.OnError(id, message)
	}
}
