package mel

import (
	"fmt"
	"math"
	"sync"

	"github.com/skypro1111/whisper-offline/internal/audio"
)

const (
	// NumBins is the number of mel filter bank channels
	NumBins = 80

	// FrameSize is the analysis window length in samples (25 ms at 16 kHz)
	FrameSize = 400

	// HopLength is the step between consecutive frames in samples (10 ms at 16 kHz)
	HopLength = 160

	// MaxFrames caps spectrogram width at the 30 second Whisper context limit
	MaxFrames = 3000

	// LogFloor clamps log-mel cells to avoid extreme negatives from silence
	LogFloor = -8.0

	// logEpsilon guards log10 against zero filter sums
	logEpsilon = 1e-10

	// numSpectrumBins is the number of non-redundant magnitude bins (FrameSize/2 + 1)
	numSpectrumBins = FrameSize/2 + 1
)

// Spectrogram is a log-scaled mel spectrogram with NumBins rows and a
// variable number of frame columns, stored row-major.
type Spectrogram struct {
	Data   []float32 // len == NumBins * Frames
	Frames int
}

// At returns the cell for the given mel bin and frame index
func (s *Spectrogram) At(bin, frame int) float32 {
	return s.Data[bin*s.Frames+frame]
}

// ExtractorStats represents extractor statistics for monitoring
type ExtractorStats struct {
	BuffersProcessed uint64 `json:"buffers_processed"`
	FramesComputed   uint64 `json:"frames_computed"`
}

// Extractor computes log-mel spectrograms from canonical 16 kHz mono audio.
// The Hann window and the triangular mel filter bank are precomputed once.
type Extractor struct {
	window  []float64 // Hann window, FrameSize long
	filters []float64 // NumBins x numSpectrumBins weights, row-major

	// Statistics
	buffersProcessed uint64
	framesComputed   uint64

	mu sync.RWMutex
}

// NewExtractor creates an extractor with precomputed window and filter bank
func NewExtractor() *Extractor {
	return &Extractor{
		window:  hannWindow(FrameSize),
		filters: melFilterBank(NumBins, FrameSize, audio.TargetSampleRate),
	}
}

// Extract computes the log-mel spectrogram of a canonical audio buffer.
// A buffer shorter than one frame yields a zero-frame spectrogram, which the
// pipeline treats as "no speech". Frames beyond MaxFrames are not computed.
func (e *Extractor) Extract(buf *audio.Buffer) (*Spectrogram, error) {
	if buf == nil {
		return nil, fmt.Errorf("mel: nil audio buffer")
	}
	if buf.SampleRate != audio.TargetSampleRate || buf.Channels != 1 {
		return nil, fmt.Errorf("mel: buffer must be %d Hz mono, got %d Hz %d channel(s)",
			audio.TargetSampleRate, buf.SampleRate, buf.Channels)
	}

	frames := 0
	if len(buf.Samples) >= FrameSize {
		frames = (len(buf.Samples)-FrameSize)/HopLength + 1
	}
	if frames > MaxFrames {
		frames = MaxFrames
	}

	spec := &Spectrogram{
		Data:   make([]float32, NumBins*frames),
		Frames: frames,
	}
	if frames == 0 {
		return spec, nil
	}

	re := make([]float64, FrameSize)
	im := make([]float64, FrameSize)
	magnitude := make([]float64, numSpectrumBins)

	for f := 0; f < frames; f++ {
		offset := f * HopLength

		// Window the frame
		for j := 0; j < FrameSize; j++ {
			re[j] = float64(buf.Samples[offset+j]) * e.window[j]
			im[j] = 0
		}

		// Magnitude spectrum
		outRe, outIm := fft(re, im)
		for k := 0; k < numSpectrumBins; k++ {
			magnitude[k] = math.Sqrt(outRe[k]*outRe[k] + outIm[k]*outIm[k])
		}

		// Project onto the mel filter bank and log-scale
		for m := 0; m < NumBins; m++ {
			row := e.filters[m*numSpectrumBins : (m+1)*numSpectrumBins]
			var sum float64
			for k, w := range row {
				if w != 0 {
					sum += w * magnitude[k]
				}
			}
			v := math.Log10(sum + logEpsilon)
			if v < LogFloor {
				v = LogFloor
			}
			spec.Data[m*frames+f] = float32(v)
		}
	}

	e.mu.Lock()
	e.buffersProcessed++
	e.framesComputed += uint64(frames)
	e.mu.Unlock()

	return spec, nil
}

// GetStats returns current extractor statistics
func (e *Extractor) GetStats() ExtractorStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return ExtractorStats{
		BuffersProcessed: e.buffersProcessed,
		FramesComputed:   e.framesComputed,
	}
}

// hannWindow returns the periodic-symmetric Hann window of length n
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for j := 0; j < n; j++ {
		w[j] = 0.5 * (1 - math.Cos(2*math.Pi*float64(j)/float64(n-1)))
	}
	return w
}

// hzToMel converts a frequency in Hz to the mel scale
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz converts a mel-scale value back to Hz
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterBank builds numFilters triangular filters spanning 0 Hz to Nyquist,
// with centers equally spaced on the mel scale. The result is a dense
// numFilters x (frameSize/2+1) weight matrix, row-major.
func melFilterBank(numFilters, frameSize, sampleRate int) []float64 {
	numBins := frameSize/2 + 1
	nyquist := float64(sampleRate) / 2

	// numFilters+2 edge points: each filter rises from point m to m+1 and
	// falls back to zero at m+2
	melMax := hzToMel(nyquist)
	edges := make([]float64, numFilters+2)
	for i := range edges {
		edges[i] = melToHz(melMax * float64(i) / float64(numFilters+1))
	}

	binWidth := float64(sampleRate) / float64(frameSize)
	weights := make([]float64, numFilters*numBins)

	for m := 0; m < numFilters; m++ {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		for k := 0; k < numBins; k++ {
			freq := float64(k) * binWidth
			var w float64
			switch {
			case freq <= left || freq >= right:
				w = 0
			case freq <= center:
				w = (freq - left) / (center - left)
			default:
				w = (right - freq) / (right - center)
			}
			weights[m*numBins+k] = w
		}
	}
	return weights
}
