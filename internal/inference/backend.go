package inference

import (
	"context"
	"errors"

	"github.com/skypro1111/whisper-offline/internal/mel"
)

// Pipeline error kinds, discriminated with errors.Is by the session engine
var (
	// ErrModelNotLoaded indicates a backend call before model initialization
	ErrModelNotLoaded = errors.New("inference: model not loaded")

	// ErrEncodeFailed indicates an encoder backend execution failure
	ErrEncodeFailed = errors.New("inference: encoder execution failed")

	// ErrDecodeFailed indicates a decoder backend execution failure or timeout
	ErrDecodeFailed = errors.New("inference: decoder execution failed")

	// ErrShapeMismatch indicates input tensor dimensions the model cannot accept
	ErrShapeMismatch = errors.New("inference: input shape mismatch")
)

// EncoderOutput is the hidden-state tensor produced by the encoder, shaped
// [1, sequence, hidden]. It is immutable once produced and shared by
// reference across every decoder step of one request.
type EncoderOutput struct {
	Data   []float32
	Shape  [3]int
	Frames int // mel frames that produced this output
}

// EncoderBackend executes the encoder half of the model. Implementations
// wrap an external neural-network runtime; they are not assumed to be safe
// for concurrent calls on the same loaded model.
type EncoderBackend interface {
	// Encode runs the encoder over a log-mel spectrogram shaped [1, 80, T]
	Encode(ctx context.Context, spec *mel.Spectrogram) (*EncoderOutput, error)

	// Close releases backend resources
	Close() error
}

// DecoderBackend executes one decoder step: given the token sequence so far
// and the encoder hidden states, it returns the logits vector for the final
// position.
type DecoderBackend interface {
	Decode(ctx context.Context, tokens []int, enc *EncoderOutput) ([]float32, error)

	// Close releases backend resources
	Close() error
}

// Factory constructs backends for a loaded model artifact pair
type Factory interface {
	NewEncoder(encoderPath string) (EncoderBackend, error)
	NewDecoder(decoderPath string) (DecoderBackend, error)
}
