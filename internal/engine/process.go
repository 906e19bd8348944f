package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skypro1111/whisper-offline/internal/inference"
	"github.com/skypro1111/whisper-offline/internal/tokenizer"
)

// worker drains the request queue one request at a time
func (e *Engine) worker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case req := <-e.queue:
			e.handle(req)
		}
	}
}

// handle runs one request end to end and delivers its terminal outcome
func (e *Engine) handle(req *request) {
	e.mu.Lock()
	delete(e.pending, req.id)
	e.inFlight = req
	depth := len(e.queue)
	e.mu.Unlock()
	e.deps.Metrics.SetQueueSize(depth)

	// A request cancelled while pending never starts and never completes
	ctx, cancel := context.WithCancel(e.ctx)
	defer cancel()
	if !req.setCancel(cancel) {
		e.mu.Lock()
		e.inFlight = nil
		e.mu.Unlock()
		e.finishCancelled(req)
		return
	}

	e.mu.Lock()
	language := e.opts.Language
	maxTokens := e.opts.MaxTokens
	timeout := e.opts.DecodeTimeout
	decoder := e.decoder
	encoder := e.encoder
	e.mu.Unlock()

	start := time.Now()
	result, tokens := e.process(ctx, req, language, maxTokens, timeout, encoder, decoder)
	result.ProcessingMs = time.Since(start).Milliseconds()

	e.mu.Lock()
	e.inFlight = nil
	switch {
	case result.Succeeded:
		e.completed++
	case result.ErrorMessage == cancelledMessage:
		e.cancelled++
	default:
		e.failed++
	}
	e.mu.Unlock()

	e.deliver(req, result, tokens)
}

const cancelledMessage = "request cancelled"

// process runs the pipeline stages. It always returns a terminal result,
// mapping every failure to Succeeded=false with a message, plus the number
// of decoded tokens.
func (e *Engine) process(ctx context.Context, req *request, language string, maxTokens int,
	timeout time.Duration, encoder inference.EncoderBackend, decoder inference.DecoderBackend) (TranscriptionResult, int) {

	result := TranscriptionResult{RequestID: req.id}

	e.notifyProgress(req.id, 0)
	e.notifyStatus(req.id, StatusNormalizing)

	buffer, err := e.normalizer.Normalize(req.buffer)
	if err != nil {
		return e.fail(result, fmt.Errorf("audio normalization: %w", err)), 0
	}
	e.notifyProgress(req.id, 0.2)
	e.notifyStatus(req.id, StatusExtracting)

	spectrogram, err := e.extractor.Extract(buffer)
	if err != nil {
		return e.fail(result, fmt.Errorf("feature extraction: %w", err)), 0
	}
	e.deps.Metrics.RecordPipeline(buffer.Duration().Seconds(), spectrogram.Frames)

	// Too little audio for a single frame: succeed with the sentinel text
	if spectrogram.Frames == 0 {
		result.Text = tokenizer.NoSpeechText
		result.Confidence = 1
		result.Succeeded = true
		e.notifyProgress(req.id, 1)
		e.notifyStatus(req.id, StatusDone)
		return result, 0
	}

	e.notifyProgress(req.id, 0.4)
	e.notifyStatus(req.id, StatusEncoding)

	runner := inference.NewEncoderRunner(encoder)
	encoded, err := runner.Encode(ctx, spectrogram)
	if err != nil {
		return e.fail(result, err), 0
	}

	e.notifyProgress(req.id, 0.6)
	e.notifyStatus(req.id, StatusDecoding)

	var seed []int
	if language != "" {
		if langToken, ok := tokenizer.LanguageToken(language); ok {
			seed = []int{
				tokenizer.TokenStartOfTranscript,
				langToken,
				tokenizer.TokenTranscribe,
				tokenizer.TokenNoTimestamps,
			}
		}
	}

	dec := inference.NewDecoder(decoder, inference.DecoderConfig{
		Seed:      seed,
		MaxTokens: maxTokens,
		Timeout:   timeout,
	}, e.logger)

	decoded, err := dec.Run(ctx, encoded)
	if err != nil {
		return e.fail(result, err), 0
	}

	result.Text = e.deps.Tokenizer.Detokenize(decoded.Tokens)
	result.Confidence = float64(decoded.Confidence)
	result.DetectedLanguage = detectLanguage(decoded.Tokens, language)
	result.Succeeded = true

	if decoded.Truncated {
		e.logger.Warn("Decode hit the token budget",
			slog.String("request_id", req.id),
			slog.Int("tokens", len(decoded.Tokens)))
	}

	e.notifyProgress(req.id, 1)
	e.notifyStatus(req.id, StatusDone)
	return result, len(decoded.Tokens)
}

// fail maps a pipeline error to a terminal failure result
func (e *Engine) fail(result TranscriptionResult, err error) TranscriptionResult {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.ErrorMessage = "decoding timed out"
	case errors.Is(err, context.Canceled):
		result.ErrorMessage = cancelledMessage
	default:
		result.ErrorMessage = err.Error()
	}
	return result
}

// deliver routes a terminal result to the done channel, callbacks and metrics
func (e *Engine) deliver(req *request, result TranscriptionResult, tokens int) {
	if result.Succeeded {
		e.deps.Metrics.RecordSuccess(float64(result.ProcessingMs)/1000, result.Confidence, tokens)
		e.logger.Info("Transcription complete",
			slog.String("request_id", req.id),
			slog.Int64("processing_ms", result.ProcessingMs),
			slog.Float64("confidence", result.Confidence))
	} else {
		if result.ErrorMessage == cancelledMessage {
			e.deps.Metrics.RecordCancelled()
		} else {
			e.deps.Metrics.RecordFailure(float64(result.ProcessingMs) / 1000)
		}
		e.logger.Warn("Transcription failed",
			slog.String("request_id", req.id),
			slog.String("error", result.ErrorMessage))
		e.notifyError(req.id, result.ErrorMessage)
	}

	if req.done != nil {
		req.done <- result
	}
	if e.callbacks.OnComplete != nil {
		e.callbacks.OnComplete(result)
	}
}

// finishCancelled reports a request that was cancelled before it started.
// Such requests surface through OnError only, never OnComplete.
func (e *Engine) finishCancelled(req *request) {
	e.mu.Lock()
	delete(e.pending, req.id)
	e.cancelled++
	e.mu.Unlock()

	e.deps.Metrics.RecordCancelled()
	e.logger.Info("Skipped cancelled request", slog.String("request_id", req.id))
	e.notifyError(req.id, cancelledMessage)

	if req.done != nil {
		req.done <- TranscriptionResult{
			RequestID:    req.id,
			ErrorMessage: cancelledMessage,
		}
	}
}

// detectLanguage extracts the language the decoder emitted, falling back to
// the configured code
func detectLanguage(tokens []int, configured string) string {
	for _, id := range tokens {
		if code, ok := tokenizer.LanguageFromToken(id); ok {
			return code
		}
	}
	return configured
}
