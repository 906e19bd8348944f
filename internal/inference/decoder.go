package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/skypro1111/whisper-offline/internal/tokenizer"
)

// DecodeState represents the decoder state machine
type DecodeState int

const (
	// StateSeed: the token sequence holds only the fixed seed markers
	StateSeed DecodeState = iota
	// StateStepping: tokens are being appended one per backend call
	StateStepping
	// StateTerminated: an end token was selected or the token budget ran out
	StateTerminated
)

// TokenSelector picks the next token from a logits vector. The default is
// greedy arg-max; a scored or sampling strategy can be swapped in.
type TokenSelector interface {
	Select(logits []float32) int
}

// GreedySelector selects the arg-max token. Ties are broken towards the
// lowest token id: the comparison is strictly greater-than, so the first
// occurrence of the maximum wins deterministically.
type GreedySelector struct{}

// Select returns the index of the maximum logit
func (GreedySelector) Select(logits []float32) int {
	best := 0
	bestValue := logits[0]
	for i := 1; i < len(logits); i++ {
		if logits[i] > bestValue {
			bestValue = logits[i]
			best = i
		}
	}
	return best
}

// DecoderConfig configures the autoregressive decoding loop
type DecoderConfig struct {
	// Seed is the initial token sequence; defaults to
	// [START_OF_TRANSCRIPT, NO_TIMESTAMPS] when empty
	Seed []int

	// MaxTokens bounds appended tokens; defaults to tokenizer.MaxTokens
	MaxTokens int

	// Timeout bounds wall-clock decode time; zero disables the deadline
	Timeout time.Duration

	// Selector picks the next token; defaults to GreedySelector
	Selector TokenSelector
}

// DecodeResult carries the finalized token sequence and its confidence
type DecodeResult struct {
	Tokens     []int
	Confidence float32 // mean softmax probability of the selected tokens
	Truncated  bool    // true when the token budget forced termination
}

// Decoder runs greedy autoregressive decoding against a decoder backend
type Decoder struct {
	backend  DecoderBackend
	selector TokenSelector
	seed     []int
	maxTok   int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDecoder creates a decoder loop over the given backend
func NewDecoder(backend DecoderBackend, cfg DecoderConfig, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	selector := cfg.Selector
	if selector == nil {
		selector = GreedySelector{}
	}
	maxTok := cfg.MaxTokens
	if maxTok <= 0 || maxTok > tokenizer.MaxTokens {
		maxTok = tokenizer.MaxTokens
	}
	seed := cfg.Seed
	if len(seed) == 0 {
		seed = []int{tokenizer.TokenStartOfTranscript, tokenizer.TokenNoTimestamps}
	}

	return &Decoder{
		backend:  backend,
		selector: selector,
		seed:     append([]int(nil), seed...),
		maxTok:   maxTok,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Run executes the decode loop until an end token, the token budget, a
// cancellation or the deadline. A backend failure discards all produced
// tokens; callers never receive a partial sequence mislabeled as complete.
// Cancellation is cooperative, checked at every iteration boundary.
func (d *Decoder) Run(ctx context.Context, enc *EncoderOutput) (*DecodeResult, error) {
	if d.backend == nil {
		return nil, ErrModelNotLoaded
	}
	if enc == nil || len(enc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty encoder output", ErrShapeMismatch)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	state := StateSeed
	tokens := make([]int, 0, len(d.seed)+d.maxTok)
	tokens = append(tokens, d.seed...)
	state = StateStepping

	var (
		probSum float64
		steps   int
	)

	for appended := 0; appended < d.maxTok; appended++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logits, err := d.backend.Decode(ctx, tokens, enc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: step %d: %v", ErrDecodeFailed, appended, err)
		}
		if len(logits) == 0 {
			return nil, fmt.Errorf("%w: step %d: backend returned empty logits", ErrDecodeFailed, appended)
		}

		next := d.selector.Select(logits)
		tokens = append(tokens, next)
		probSum += softmaxProbability(logits, next)
		steps++

		if next == tokenizer.TokenEndOfTranscript || next == tokenizer.TokenNoSpeech {
			state = StateTerminated
			break
		}
	}

	result := &DecodeResult{Tokens: tokens}
	if steps > 0 {
		result.Confidence = float32(probSum / float64(steps))
	}

	if state != StateTerminated {
		// Token budget exhausted: truncation, not an error
		result.Truncated = true
		d.logger.Debug("Decode truncated at token budget",
			slog.Int("max_tokens", d.maxTok),
			slog.Int("sequence_length", len(tokens)),
		)
	}

	return result, nil
}

// softmaxProbability computes the softmax probability of the token at the
// selected index, numerically stabilized by the maximum logit
func softmaxProbability(logits []float32, index int) float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var denom float64
	for _, v := range logits {
		denom += math.Exp(float64(v - maxLogit))
	}
	if denom == 0 {
		return 0
	}
	return math.Exp(float64(logits[index]-maxLogit)) / denom
}
