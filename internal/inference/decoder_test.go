package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skypro1111/whisper-offline/internal/tokenizer"
)

func testEncoderOutput() *EncoderOutput {
	return &EncoderOutput{
		Data:   make([]float32, 8),
		Shape:  [3]int{1, 1, 8},
		Frames: 100,
	}
}

func TestDecodeImmediateEndOfTranscript(t *testing.T) {
	backend := &ScriptedDecoder{} // empty script: EOT on the first step
	d := NewDecoder(backend, DecoderConfig{}, nil)

	result, err := d.Run(context.Background(), testEncoderOutput())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 2 seed tokens + exactly 1 appended token
	if len(result.Tokens) != 3 {
		t.Fatalf("Expected 3 tokens (2 seed + EOT), got %d: %v", len(result.Tokens), result.Tokens)
	}
	if result.Tokens[0] != tokenizer.TokenStartOfTranscript {
		t.Errorf("First seed token must be START_OF_TRANSCRIPT, got %d", result.Tokens[0])
	}
	if result.Tokens[1] != tokenizer.TokenNoTimestamps {
		t.Errorf("Second seed token must be NO_TIMESTAMPS, got %d", result.Tokens[1])
	}
	if result.Tokens[2] != tokenizer.TokenEndOfTranscript {
		t.Errorf("Appended token must be END_OF_TRANSCRIPT, got %d", result.Tokens[2])
	}
	if result.Truncated {
		t.Error("Terminated decode must not be marked truncated")
	}

	// Detokenizing must yield the no-speech sentinel
	tok := tokenizer.New(map[int]string{})
	if got := tok.Detokenize(result.Tokens); got != tokenizer.NoSpeechText {
		t.Errorf("Expected no-speech sentinel, got '%s'", got)
	}
}

// neverEndingDecoder always favors an ordinary text token
type neverEndingDecoder struct {
	steps int
}

func (n *neverEndingDecoder) Decode(context.Context, []int, *EncoderOutput) ([]float32, error) {
	n.steps++
	logits := make([]float32, logitsSize)
	logits[100] = 5
	return logits, nil
}

func (n *neverEndingDecoder) Close() error { return nil }

func TestDecodeForceTerminatesAtMaxTokens(t *testing.T) {
	backend := &neverEndingDecoder{}
	d := NewDecoder(backend, DecoderConfig{}, nil)

	result, err := d.Run(context.Background(), testEncoderOutput())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if backend.steps != tokenizer.MaxTokens {
		t.Errorf("Expected exactly %d decode steps, got %d", tokenizer.MaxTokens, backend.steps)
	}
	if appended := len(result.Tokens) - 2; appended != tokenizer.MaxTokens {
		t.Errorf("Expected %d appended tokens, got %d", tokenizer.MaxTokens, appended)
	}
	if !result.Truncated {
		t.Error("Budget-exhausted decode must be marked truncated")
	}
}

// tieDecoder emits the maximum logit at several indices
type tieDecoder struct{}

func (tieDecoder) Decode(context.Context, []int, *EncoderOutput) ([]float32, error) {
	logits := make([]float32, logitsSize)
	logits[7] = 3
	logits[42] = 3
	logits[tokenizer.TokenEndOfTranscript] = 3
	return logits, nil
}

func (tieDecoder) Close() error { return nil }

func TestGreedySelectorBreaksTiesTowardsLowestID(t *testing.T) {
	var s GreedySelector

	logits := []float32{1, 5, 5, 5, 2}
	if got := s.Select(logits); got != 1 {
		t.Errorf("Expected lowest tied index 1, got %d", got)
	}

	// All equal: index 0 wins
	if got := s.Select([]float32{0, 0, 0}); got != 0 {
		t.Errorf("Expected index 0 for all-equal logits, got %d", got)
	}
}

func TestDecodeTieBreakIsDeterministic(t *testing.T) {
	d := NewDecoder(tieDecoder{}, DecoderConfig{MaxTokens: 4}, nil)

	result, err := d.Run(context.Background(), testEncoderOutput())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Lowest tied id (7) wins every step; never reaches EOT, so truncation
	for _, tok := range result.Tokens[2:] {
		if tok != 7 {
			t.Fatalf("Expected token 7 from tie-break, got %d", tok)
		}
	}
	if !result.Truncated {
		t.Error("Expected truncation with a never-terminating tie")
	}
}

func TestDecodeBackendFailureDiscardsTokens(t *testing.T) {
	backend := &ScriptedDecoder{Script: []int{100, 101, 102}, FailAt: 3}
	d := NewDecoder(backend, DecoderConfig{}, nil)

	result, err := d.Run(context.Background(), testEncoderOutput())
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("Expected ErrDecodeFailed, got %v", err)
	}
	if result != nil {
		t.Error("Failed decode must not return a partial result")
	}
}

func TestDecodeCancellationStopsAtIterationBoundary(t *testing.T) {
	gate := make(chan struct{})
	backend := &ScriptedDecoder{
		Script:   []int{100, 101, 102, 103},
		StepGate: gate,
	}
	d := NewDecoder(backend, DecoderConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(ctx, testEncoderOutput())
		done <- err
	}()

	// Let two steps through, then cancel
	gate <- struct{}{}
	gate <- struct{}{}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Decode did not stop after cancellation")
	}

	if backend.Steps() > 3 {
		t.Errorf("Decode continued past the cancellation boundary: %d steps", backend.Steps())
	}
}

func TestDecodeTimeout(t *testing.T) {
	gate := make(chan struct{}) // never ticked: the first step blocks
	backend := &ScriptedDecoder{Script: []int{100}, StepGate: gate}
	d := NewDecoder(backend, DecoderConfig{Timeout: 50 * time.Millisecond}, nil)

	_, err := d.Run(context.Background(), testEncoderOutput())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestDecodeConfidenceWithinRange(t *testing.T) {
	backend := &ScriptedDecoder{Script: []int{100, 101}}
	d := NewDecoder(backend, DecoderConfig{}, nil)

	result, err := d.Run(context.Background(), testEncoderOutput())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Errorf("Confidence must be in (0,1], got %f", result.Confidence)
	}
}

func TestDecodeCustomSeed(t *testing.T) {
	langToken, _ := tokenizer.LanguageToken("uk")
	seed := []int{
		tokenizer.TokenStartOfTranscript,
		langToken,
		tokenizer.TokenTranscribe,
		tokenizer.TokenNoTimestamps,
	}

	backend := &ScriptedDecoder{}
	d := NewDecoder(backend, DecoderConfig{Seed: seed}, nil)

	result, err := d.Run(context.Background(), testEncoderOutput())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Tokens) != len(seed)+1 {
		t.Fatalf("Expected %d tokens, got %d", len(seed)+1, len(result.Tokens))
	}
	for i, want := range seed {
		if result.Tokens[i] != want {
			t.Errorf("Seed token %d: expected %d, got %d", i, want, result.Tokens[i])
		}
	}
}

func TestDecodeNoSpeechTerminates(t *testing.T) {
	backend := &ScriptedDecoder{Script: []int{100, tokenizer.TokenNoSpeech, 101}}
	d := NewDecoder(backend, DecoderConfig{}, nil)

	result, err := d.Run(context.Background(), testEncoderOutput())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	last := result.Tokens[len(result.Tokens)-1]
	if last != tokenizer.TokenNoSpeech {
		t.Errorf("Expected NO_SPEECH terminator, got %d", last)
	}
	if len(result.Tokens) != 4 { // 2 seed + token 100 + NO_SPEECH
		t.Errorf("Expected 4 tokens, got %d: %v", len(result.Tokens), result.Tokens)
	}
}

func TestDecodeRejectsEmptyEncoderOutput(t *testing.T) {
	d := NewDecoder(&ScriptedDecoder{}, DecoderConfig{}, nil)

	if _, err := d.Run(context.Background(), nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for nil encoder output, got %v", err)
	}
}
