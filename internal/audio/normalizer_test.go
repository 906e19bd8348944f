package audio

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizeEmptyInput(t *testing.T) {
	n := NewNormalizer(nil)

	out, err := n.Normalize(nil)
	if !errors.Is(err, ErrInvalidAudioInput) {
		t.Fatalf("Expected ErrInvalidAudioInput for nil buffer, got %v", err)
	}
	if out == nil {
		t.Fatal("Normalize should return an empty buffer, not nil")
	}
	if len(out.Samples) != 0 {
		t.Errorf("Expected empty output buffer, got %d samples", len(out.Samples))
	}

	_, err = n.Normalize(&Buffer{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, ErrInvalidAudioInput) {
		t.Fatalf("Expected ErrInvalidAudioInput for empty samples, got %v", err)
	}

	stats := n.GetStats()
	if stats.BuffersRejected != 2 {
		t.Errorf("Expected 2 rejected buffers, got %d", stats.BuffersRejected)
	}
}

func TestNormalizeDownmixStereo(t *testing.T) {
	n := NewNormalizer(nil)

	// Two-channel input: left always 1.0, right always 0.0
	samples := make([]float32, TargetSampleRate*2)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 1.0
	}

	out, err := n.Normalize(&Buffer{Samples: samples, SampleRate: TargetSampleRate, Channels: 2})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if out.Channels != 1 {
		t.Errorf("Expected mono output, got %d channels", out.Channels)
	}
	if len(out.Samples) != TargetSampleRate {
		t.Errorf("Expected %d samples, got %d", TargetSampleRate, len(out.Samples))
	}

	// Average of 1.0 and 0.0 is 0.5, then peak normalization scales it to 1.0
	for i, s := range out.Samples {
		if math.Abs(float64(s)-1.0) > 1e-6 {
			t.Fatalf("Sample %d: expected 1.0 after downmix and peak normalize, got %f", i, s)
		}
	}
}

func TestNormalizeResamples8kTo16k(t *testing.T) {
	n := NewNormalizer(nil)

	// 2 seconds at 8 kHz
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}

	out, err := n.Normalize(&Buffer{Samples: samples, SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if out.SampleRate != TargetSampleRate {
		t.Errorf("Expected sample rate %d, got %d", TargetSampleRate, out.SampleRate)
	}
	if len(out.Samples) != 32000 {
		t.Errorf("Expected 32000 samples after upsampling, got %d", len(out.Samples))
	}
}

func TestResampleLinearInterpolation(t *testing.T) {
	// Upsampling 2x: every second output sample must be the midpoint of its neighbours
	in := []float32{0, 1, 0, 1}
	out := resampleLinear(in, 8000, 16000)

	if len(out) != 8 {
		t.Fatalf("Expected 8 output samples, got %d", len(out))
	}
	if out[0] != 0 || out[2] != 1 || out[4] != 0 {
		t.Errorf("Integer positions should keep source values, got %v", out)
	}
	if math.Abs(float64(out[1])-0.5) > 1e-6 {
		t.Errorf("Expected interpolated midpoint 0.5, got %f", out[1])
	}
}

func TestNormalizeTruncatesLongInput(t *testing.T) {
	n := NewNormalizer(nil)

	// 100 seconds at 16 kHz must be truncated to the 30 second cap
	samples := make([]float32, 1600000)
	for i := range samples {
		samples[i] = 0.25
	}

	out, err := n.Normalize(&Buffer{Samples: samples, SampleRate: TargetSampleRate, Channels: 1})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(out.Samples) != MaxSamples {
		t.Errorf("Expected exactly %d samples after truncation, got %d", MaxSamples, len(out.Samples))
	}

	stats := n.GetStats()
	if stats.BuffersTruncated != 1 {
		t.Errorf("Expected 1 truncated buffer, got %d", stats.BuffersTruncated)
	}
}

func TestNormalizePadsShortInput(t *testing.T) {
	n := NewNormalizer(nil)

	// Half a second of audio must be padded to exactly 1 second
	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = 0.5
	}

	out, err := n.Normalize(&Buffer{Samples: samples, SampleRate: TargetSampleRate, Channels: 1})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(out.Samples) != MinSamples {
		t.Errorf("Expected exactly %d samples after padding, got %d", MinSamples, len(out.Samples))
	}

	// Tail must be zero padding
	for i := 8000; i < MinSamples; i++ {
		if out.Samples[i] != 0 {
			t.Fatalf("Expected zero padding at index %d, got %f", i, out.Samples[i])
		}
	}

	stats := n.GetStats()
	if stats.BuffersPadded != 1 {
		t.Errorf("Expected 1 padded buffer, got %d", stats.BuffersPadded)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer(nil)

	samples := make([]float32, TargetSampleRate*2)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 0.01))
	}

	once, err := n.Normalize(&Buffer{Samples: samples, SampleRate: TargetSampleRate, Channels: 1})
	if err != nil {
		t.Fatalf("First normalize failed: %v", err)
	}

	twice, err := n.Normalize(once)
	if err != nil {
		t.Fatalf("Second normalize failed: %v", err)
	}

	if len(once.Samples) != len(twice.Samples) {
		t.Fatalf("Length changed on re-normalize: %d vs %d", len(once.Samples), len(twice.Samples))
	}
	for i := range once.Samples {
		if math.Abs(float64(once.Samples[i]-twice.Samples[i])) > 1e-6 {
			t.Fatalf("Sample %d changed on re-normalize: %f vs %f", i, once.Samples[i], twice.Samples[i])
		}
	}
}

func TestNormalizeSilentBufferSkipsPeakScaling(t *testing.T) {
	n := NewNormalizer(nil)

	samples := make([]float32, TargetSampleRate)

	out, err := n.Normalize(&Buffer{Samples: samples, SampleRate: TargetSampleRate, Channels: 1})
	if err != nil {
		t.Fatalf("Normalize failed on silent buffer: %v", err)
	}

	for i, s := range out.Samples {
		if s != 0 {
			t.Fatalf("Silent buffer changed at index %d: %f", i, s)
		}
	}
}

func TestBufferIsCanonical(t *testing.T) {
	canonical := &Buffer{
		Samples:    make([]float32, TargetSampleRate),
		SampleRate: TargetSampleRate,
		Channels:   1,
	}
	if !canonical.IsCanonical() {
		t.Error("1s mono 16kHz buffer should be canonical")
	}

	stereo := &Buffer{
		Samples:    make([]float32, TargetSampleRate*2),
		SampleRate: TargetSampleRate,
		Channels:   2,
	}
	if stereo.IsCanonical() {
		t.Error("Stereo buffer should not be canonical")
	}

	short := &Buffer{
		Samples:    make([]float32, 100),
		SampleRate: TargetSampleRate,
		Channels:   1,
	}
	if short.IsCanonical() {
		t.Error("Sub-second buffer should not be canonical")
	}
}

func TestBufferDuration(t *testing.T) {
	buf := &Buffer{
		Samples:    make([]float32, TargetSampleRate*3),
		SampleRate: TargetSampleRate,
		Channels:   1,
	}
	if got := buf.Duration().Seconds(); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("Expected 3s duration, got %fs", got)
	}

	stereo := &Buffer{
		Samples:    make([]float32, 16000),
		SampleRate: 8000,
		Channels:   2,
	}
	if got := stereo.Duration().Seconds(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Expected 1s duration for interleaved stereo, got %fs", got)
	}
}
