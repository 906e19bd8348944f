package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/skypro1111/whisper-offline/internal/audio"
)

// ErrCaptureActive indicates StartCapture while a capture is already open
var ErrCaptureActive = errors.New("engine: capture already in progress")

// captureSession accumulates samples pushed by a caller-driven audio source
type captureSession struct {
	sampleRate int
	channels   int
	samples    []float32
}

// StartCapture opens a capture session accepting interleaved samples in the
// given format. Only one capture can be open at a time.
func (e *Engine) StartCapture(sampleRate, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", audio.ErrInvalidAudioInput, sampleRate)
	}
	if channels < 1 {
		return fmt.Errorf("%w: channels %d", audio.ErrInvalidAudioInput, channels)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.capture != nil {
		return ErrCaptureActive
	}

	e.capture = &captureSession{
		sampleRate: sampleRate,
		channels:   channels,
	}

	e.logger.Debug("Capture started",
		slog.Int("sample_rate", sampleRate),
		slog.Int("channels", channels))
	return nil
}

// FeedCapture appends interleaved samples to the open capture
func (e *Engine) FeedCapture(samples []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.capture == nil {
		return ErrNoCapture
	}

	e.capture.samples = append(e.capture.samples, samples...)
	return nil
}

// StopCaptureAndTranscribe closes the capture and submits the accumulated
// audio as a transcription request
func (e *Engine) StopCaptureAndTranscribe() (string, error) {
	e.mu.Lock()
	capture := e.capture
	e.capture = nil
	e.mu.Unlock()

	if capture == nil {
		return "", ErrNoCapture
	}

	buffer := &audio.Buffer{
		Samples:    capture.samples,
		SampleRate: capture.sampleRate,
		Channels:   capture.channels,
	}

	e.logger.Debug("Capture stopped",
		slog.Int("samples", len(capture.samples)))
	return e.Transcribe(buffer)
}

// CancelCapture discards the open capture without transcribing
func (e *Engine) CancelCapture() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.capture == nil {
		return ErrNoCapture
	}

	e.logger.Debug("Capture cancelled",
		slog.Int("samples", len(e.capture.samples)))
	e.capture = nil
	return nil
}
