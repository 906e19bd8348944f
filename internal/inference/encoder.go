package inference

import (
	"context"
	"fmt"

	"github.com/skypro1111/whisper-offline/internal/mel"
)

// EncoderRunner validates input shape and invokes the encoder backend exactly
// once per request, converting backend failures into typed errors.
type EncoderRunner struct {
	backend EncoderBackend
}

// NewEncoderRunner wraps an encoder backend
func NewEncoderRunner(backend EncoderBackend) *EncoderRunner {
	return &EncoderRunner{backend: backend}
}

// Encode runs the encoder over the spectrogram and surfaces any backend
// failure as ErrEncodeFailed rather than an opaque error.
func (r *EncoderRunner) Encode(ctx context.Context, spec *mel.Spectrogram) (*EncoderOutput, error) {
	if r.backend == nil {
		return nil, ErrModelNotLoaded
	}
	if spec == nil {
		return nil, fmt.Errorf("%w: nil spectrogram", ErrShapeMismatch)
	}
	if spec.Frames <= 0 {
		return nil, fmt.Errorf("%w: spectrogram has no frames", ErrShapeMismatch)
	}
	if spec.Frames > mel.MaxFrames {
		return nil, fmt.Errorf("%w: %d frames exceeds maximum %d",
			ErrShapeMismatch, spec.Frames, mel.MaxFrames)
	}
	if len(spec.Data) != mel.NumBins*spec.Frames {
		return nil, fmt.Errorf("%w: data length %d does not match %dx%d",
			ErrShapeMismatch, len(spec.Data), mel.NumBins, spec.Frames)
	}

	out, err := r.backend.Encode(ctx, spec)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if out == nil || len(out.Data) == 0 {
		return nil, fmt.Errorf("%w: backend returned empty output", ErrEncodeFailed)
	}

	return out, nil
}
