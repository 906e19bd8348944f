package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Multilingual Whisper vocabulary control token ids
const (
	TokenEndOfTranscript   = 50257
	TokenStartOfTranscript = 50258
	TokenLanguageBase      = 50259 // first language token ("en")
	TokenTranslate         = 50358
	TokenTranscribe        = 50359
	TokenNoSpeech          = 50362
	TokenNoTimestamps      = 50363

	// specialTokenBase marks the start of the control token range; every id
	// at or above it is stripped before detokenization
	specialTokenBase = TokenEndOfTranscript
)

// MaxTokens bounds the decoder token sequence (Whisper text context length)
const MaxTokens = 448

// NoSpeechText is returned when decoding produced no text tokens, so callers
// can distinguish silence from a transcription that never ran
const NoSpeechText = "[no speech detected]"

// languageOffsets maps ISO language codes to their offset from
// TokenLanguageBase, in Whisper vocabulary order
var languageOffsets = map[string]int{
	"en": 0, "zh": 1, "de": 2, "es": 3, "ru": 4, "ko": 5, "fr": 6, "ja": 7,
	"pt": 8, "tr": 9, "pl": 10, "ca": 11, "nl": 12, "ar": 13, "sv": 14,
	"it": 15, "id": 16, "hi": 17, "fi": 18, "vi": 19, "he": 20, "uk": 21,
	"el": 22, "ms": 23, "cs": 24, "ro": 25, "da": 26, "hu": 27, "ta": 28,
	"no": 29, "th": 30, "ur": 31, "hr": 32, "bg": 33, "lt": 34,
}

// Tokenizer maps token ids to subword strings using a supplied vocabulary
type Tokenizer struct {
	vocab map[int]string
}

// New creates a tokenizer from an id-to-subword table
func New(vocab map[int]string) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Load reads a vocabulary JSON file mapping subword strings to token ids
// (the standard vocab.json layout) and builds the inverse table.
func Load(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file %s: %w", path, err)
	}

	var table map[string]int
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary file %s: %w", path, err)
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("vocabulary file %s is empty", path)
	}

	vocab := make(map[int]string, len(table))
	for text, id := range table {
		vocab[id] = text
	}

	return &Tokenizer{vocab: vocab}, nil
}

// Size returns the number of vocabulary entries
func (t *Tokenizer) Size() int {
	return len(t.vocab)
}

// IsSpecial reports whether the id is a control token
func IsSpecial(id int) bool {
	return id >= specialTokenBase
}

// Detokenize strips all control tokens and concatenates the subword strings
// of the remaining ids. An empty filtered sequence yields NoSpeechText.
func (t *Tokenizer) Detokenize(tokens []int) string {
	var builder strings.Builder
	for _, id := range tokens {
		if IsSpecial(id) {
			continue
		}
		if text, ok := t.vocab[id]; ok {
			builder.WriteString(text)
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return NoSpeechText
	}
	return text
}

// LanguageToken returns the control token for an ISO language code
func LanguageToken(code string) (int, bool) {
	offset, ok := languageOffsets[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return 0, false
	}
	return TokenLanguageBase + offset, true
}

// LanguageFromToken returns the ISO language code for a language control token
func LanguageFromToken(id int) (string, bool) {
	offset := id - TokenLanguageBase
	if offset < 0 || offset >= len(languageOffsets) {
		return "", false
	}
	for code, o := range languageOffsets {
		if o == offset {
			return code, true
		}
	}
	return "", false
}

// IsKnownLanguage reports whether the ISO code has a language token
func IsKnownLanguage(code string) bool {
	_, ok := LanguageToken(code)
	return ok
}
