package audio

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"
)

const (
	// TargetSampleRate is the canonical sample rate expected by the Whisper front-end
	TargetSampleRate = 16000

	// MaxDurationSeconds is the maximum audio duration accepted per request (Whisper context limit)
	MaxDurationSeconds = 30

	// MinDurationSeconds is the minimum duration; shorter input is zero-padded up to it
	MinDurationSeconds = 1

	// MaxSamples is the maximum number of canonical samples per request
	MaxSamples = TargetSampleRate * MaxDurationSeconds

	// MinSamples is the minimum number of canonical samples per request
	MinSamples = TargetSampleRate * MinDurationSeconds
)

// ErrInvalidAudioInput indicates an empty or malformed input buffer
var ErrInvalidAudioInput = errors.New("audio: invalid input buffer")

// Buffer represents a block of PCM audio samples
type Buffer struct {
	Samples    []float32 // Interleaved samples when Channels > 1
	SampleRate int       // Samples per second per channel
	Channels   int       // Number of interleaved channels
}

// Duration returns the playback duration of the buffer
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

// IsCanonical reports whether the buffer is already in the canonical
// 16 kHz mono format within the duration bounds
func (b *Buffer) IsCanonical() bool {
	if b == nil {
		return false
	}
	return b.SampleRate == TargetSampleRate &&
		b.Channels == 1 &&
		len(b.Samples) >= MinSamples &&
		len(b.Samples) <= MaxSamples
}

// NormalizerStats represents normalizer statistics for monitoring
type NormalizerStats struct {
	BuffersProcessed uint64 `json:"buffers_processed"`
	BuffersTruncated uint64 `json:"buffers_truncated"`
	BuffersPadded    uint64 `json:"buffers_padded"`
	BuffersRejected  uint64 `json:"buffers_rejected"`
}

// Normalizer converts arbitrary PCM input into the canonical mono 16 kHz
// float buffer consumed by the mel spectrogram extractor
type Normalizer struct {
	logger *slog.Logger

	// Statistics
	processed uint64
	truncated uint64
	padded    uint64
	rejected  uint64

	mu sync.RWMutex
}

// NewNormalizer creates a new audio normalizer
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize converts the input buffer into canonical form: mono, 16 kHz,
// peak-normalized, padded to at least 1 second and truncated at 30 seconds.
// The input buffer is not modified; a new buffer is always returned.
func (n *Normalizer) Normalize(input *Buffer) (*Buffer, error) {
	if input == nil || len(input.Samples) == 0 {
		n.mu.Lock()
		n.rejected++
		n.mu.Unlock()
		return &Buffer{SampleRate: TargetSampleRate, Channels: 1}, ErrInvalidAudioInput
	}

	if input.SampleRate <= 0 || input.Channels <= 0 {
		n.mu.Lock()
		n.rejected++
		n.mu.Unlock()
		return &Buffer{SampleRate: TargetSampleRate, Channels: 1}, ErrInvalidAudioInput
	}

	// Down-mix to mono by averaging all channel values per frame
	mono := downmix(input.Samples, input.Channels)

	// Resample to the target rate with linear interpolation
	if input.SampleRate != TargetSampleRate {
		mono = resampleLinear(mono, input.SampleRate, TargetSampleRate)
	}

	var wasTruncated, wasPadded bool

	// Truncate anything beyond the maximum duration (do not wrap)
	if len(mono) > MaxSamples {
		n.logger.Warn("Audio exceeds maximum duration, truncating",
			slog.Int("input_samples", len(mono)),
			slog.Int("max_samples", MaxSamples),
			slog.Float64("input_seconds", float64(len(mono))/TargetSampleRate),
		)
		mono = mono[:MaxSamples]
		wasTruncated = true
	}

	// Zero-pad very short input up to the minimum duration
	if len(mono) < MinSamples {
		padded := make([]float32, MinSamples)
		copy(padded, mono)
		mono = padded
		wasPadded = true
	}

	// Peak-normalize amplitude; skip silent buffers to avoid division by zero
	var peak float32
	for _, s := range mono {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak > 0 {
		inv := 1 / peak
		for i := range mono {
			mono[i] *= inv
		}
	}

	n.mu.Lock()
	n.processed++
	if wasTruncated {
		n.truncated++
	}
	if wasPadded {
		n.padded++
	}
	n.mu.Unlock()

	return &Buffer{
		Samples:    mono,
		SampleRate: TargetSampleRate,
		Channels:   1,
	}, nil
}

// GetStats returns current normalizer statistics
func (n *Normalizer) GetStats() NormalizerStats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return NormalizerStats{
		BuffersProcessed: n.processed,
		BuffersTruncated: n.truncated,
		BuffersPadded:    n.padded,
		BuffersRejected:  n.rejected,
	}
}

// downmix averages interleaved channels into a mono signal
func downmix(samples []float32, channels int) []float32 {
	if channels == 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resampleLinear converts between sample rates with linear interpolation.
// For each output index the fractional source position is computed and the
// two nearest source samples are blended; the upper index is clamped to the
// last valid sample.
func resampleLinear(samples []float32, sourceRate, targetRate int) []float32 {
	if sourceRate == targetRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(sourceRate) / float64(targetRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		next := idx + 1
		if next >= len(samples) {
			next = len(samples) - 1
		}
		if idx >= len(samples) {
			idx = len(samples) - 1
		}

		out[i] = samples[idx]*(1-frac) + samples[next]*frac
	}
	return out
}
