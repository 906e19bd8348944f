package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skypro1111/whisper-offline/internal/mel"
	"github.com/skypro1111/whisper-offline/internal/tokenizer"
)

// logitsSize is the vocabulary width the scripted backends emit; large enough
// to cover every control token id
const logitsSize = tokenizer.TokenNoTimestamps + 1

// ScriptedEncoder is an EncoderBackend that produces a deterministic hidden
// state without running a model. It stands in for the external inference
// runtime in tests and in builds without a native backend.
type ScriptedEncoder struct {
	HiddenDim int
	Err       error // returned instead of output when set
	calls     int
}

// Encode implements EncoderBackend
func (s *ScriptedEncoder) Encode(_ context.Context, spec *mel.Spectrogram) (*EncoderOutput, error) {
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}

	hidden := s.HiddenDim
	if hidden <= 0 {
		hidden = 8
	}
	seq := spec.Frames / 2 // Whisper encoder halves the time axis
	if seq < 1 {
		seq = 1
	}

	return &EncoderOutput{
		Data:   make([]float32, seq*hidden),
		Shape:  [3]int{1, seq, hidden},
		Frames: spec.Frames,
	}, nil
}

// Calls returns how many times Encode was invoked
func (s *ScriptedEncoder) Calls() int { return s.calls }

// Close implements EncoderBackend
func (s *ScriptedEncoder) Close() error { return nil }

// ScriptedDecoder is a DecoderBackend that emits logits favoring a scripted
// token per step. After the script runs out it keeps favoring
// END_OF_TRANSCRIPT, and with an empty script it favors it immediately.
type ScriptedDecoder struct {
	Script   []int
	Err      error         // returned on every call when set
	FailAt   int           // 1-based step index to fail at; 0 disables
	StepGate chan struct{} // when set, each step waits for a tick (test pacing)
	steps    int
}

// Decode implements DecoderBackend
func (s *ScriptedDecoder) Decode(ctx context.Context, tokens []int, _ *EncoderOutput) ([]float32, error) {
	if s.StepGate != nil {
		select {
		case <-s.StepGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.steps++
	if s.Err != nil {
		return nil, s.Err
	}
	if s.FailAt > 0 && s.steps >= s.FailAt {
		return nil, errors.New("scripted backend failure")
	}

	next := tokenizer.TokenEndOfTranscript
	if s.steps-1 < len(s.Script) {
		next = s.Script[s.steps-1]
	}

	logits := make([]float32, logitsSize)
	logits[next] = 10
	return logits, nil
}

// Steps returns how many decode steps were executed
func (s *ScriptedDecoder) Steps() int { return s.steps }

// Close implements DecoderBackend
func (s *ScriptedDecoder) Close() error { return nil }

// StubFactory builds scripted backends regardless of the model paths it is
// handed. It keeps the engine runnable in builds where no native inference
// runtime is compiled in.
type StubFactory struct {
	Script []int
}

// NewEncoder implements Factory
func (f *StubFactory) NewEncoder(encoderPath string) (EncoderBackend, error) {
	if encoderPath == "" {
		return nil, fmt.Errorf("%w: empty encoder path", ErrModelNotLoaded)
	}
	return &ScriptedEncoder{}, nil
}

// NewDecoder implements Factory
func (f *StubFactory) NewDecoder(decoderPath string) (DecoderBackend, error) {
	if decoderPath == "" {
		return nil, fmt.Errorf("%w: empty decoder path", ErrModelNotLoaded)
	}
	return &ScriptedDecoder{Script: f.Script}, nil
}

// NativeAvailable reports whether a native inference runtime is compiled in.
// The ONNX execution engine is an external capability; builds without it fall
// back to the scripted stub with a warning, mirroring model-less test setups.
func NativeAvailable() bool { return false }

// NewFactory returns the best available backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	if !NativeAvailable() {
		logger.Warn("No native inference runtime compiled in, using scripted stub backends")
	}
	return &StubFactory{}
}
