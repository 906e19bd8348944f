package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/skypro1111/whisper-offline/internal/mel"
)

func testSpectrogram(frames int) *mel.Spectrogram {
	return &mel.Spectrogram{
		Data:   make([]float32, mel.NumBins*frames),
		Frames: frames,
	}
}

func TestEncoderRunnerHappyPath(t *testing.T) {
	backend := &ScriptedEncoder{HiddenDim: 16}
	runner := NewEncoderRunner(backend)

	out, err := runner.Encode(context.Background(), testSpectrogram(100))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if out.Shape[0] != 1 {
		t.Errorf("Expected batch size 1, got %d", out.Shape[0])
	}
	if out.Shape[2] != 16 {
		t.Errorf("Expected hidden dim 16, got %d", out.Shape[2])
	}
	if backend.Calls() != 1 {
		t.Errorf("Backend must be invoked exactly once, got %d calls", backend.Calls())
	}
}

func TestEncoderRunnerValidatesShape(t *testing.T) {
	runner := NewEncoderRunner(&ScriptedEncoder{})

	cases := []struct {
		name string
		spec *mel.Spectrogram
	}{
		{"nil spectrogram", nil},
		{"zero frames", testSpectrogram(0)},
		{"too many frames", &mel.Spectrogram{Data: make([]float32, mel.NumBins*(mel.MaxFrames+1)), Frames: mel.MaxFrames + 1}},
		{"inconsistent data length", &mel.Spectrogram{Data: make([]float32, 10), Frames: 100}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := runner.Encode(context.Background(), tc.spec); !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("Expected ErrShapeMismatch, got %v", err)
			}
		})
	}
}

func TestEncoderRunnerWrapsBackendFailure(t *testing.T) {
	backend := &ScriptedEncoder{Err: errors.New("out of memory")}
	runner := NewEncoderRunner(backend)

	_, err := runner.Encode(context.Background(), testSpectrogram(50))
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("Expected ErrEncodeFailed, got %v", err)
	}
}

func TestEncoderRunnerWithoutBackend(t *testing.T) {
	runner := NewEncoderRunner(nil)

	if _, err := runner.Encode(context.Background(), testSpectrogram(50)); !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("Expected ErrModelNotLoaded, got %v", err)
	}
}
