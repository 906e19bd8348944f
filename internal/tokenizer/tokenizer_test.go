package tokenizer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func testTokenizer() *Tokenizer {
	return New(map[int]string{
		100: "hello",
		101: " world",
		102: "silence",
	})
}

func TestDetokenizeStripsControlTokens(t *testing.T) {
	tok := testTokenizer()

	tokens := []int{TokenStartOfTranscript, TokenNoTimestamps, 100, 101, TokenEndOfTranscript}
	got := tok.Detokenize(tokens)

	if got != "hello world" {
		t.Errorf("Expected 'hello world', got '%s'", got)
	}
}

func TestDetokenizeEmptySequenceReturnsSentinel(t *testing.T) {
	tok := testTokenizer()

	onlyControls := []int{TokenStartOfTranscript, TokenNoTimestamps, TokenNoSpeech}
	if got := tok.Detokenize(onlyControls); got != NoSpeechText {
		t.Errorf("Expected sentinel '%s', got '%s'", NoSpeechText, got)
	}

	if got := tok.Detokenize(nil); got != NoSpeechText {
		t.Errorf("Expected sentinel for nil sequence, got '%s'", got)
	}
}

func TestDetokenizeSkipsUnknownIDs(t *testing.T) {
	tok := testTokenizer()

	got := tok.Detokenize([]int{100, 9999, 101})
	if got != "hello world" {
		t.Errorf("Unknown ids must be skipped, got '%s'", got)
	}
}

func TestIsSpecial(t *testing.T) {
	for _, id := range []int{TokenEndOfTranscript, TokenStartOfTranscript, TokenNoSpeech, TokenNoTimestamps, TokenTranscribe} {
		if !IsSpecial(id) {
			t.Errorf("Token %d should be special", id)
		}
	}
	for _, id := range []int{0, 100, 50256} {
		if IsSpecial(id) {
			t.Errorf("Token %d should not be special", id)
		}
	}
}

func TestLanguageTokenRoundTrip(t *testing.T) {
	enToken, ok := LanguageToken("en")
	if !ok {
		t.Fatal("Expected language token for 'en'")
	}
	if enToken != TokenLanguageBase {
		t.Errorf("Expected 'en' token %d, got %d", TokenLanguageBase, enToken)
	}

	code, ok := LanguageFromToken(enToken)
	if !ok || code != "en" {
		t.Errorf("Expected 'en' back from token %d, got '%s' (%v)", enToken, code, ok)
	}

	ukToken, ok := LanguageToken("UK")
	if !ok {
		t.Fatal("Language lookup should be case-insensitive")
	}
	if code, _ := LanguageFromToken(ukToken); code != "uk" {
		t.Errorf("Expected 'uk' back, got '%s'", code)
	}

	if _, ok := LanguageToken("xx"); ok {
		t.Error("Expected no token for unknown language code")
	}
	if _, ok := LanguageFromToken(100); ok {
		t.Error("Expected no language for a text token id")
	}
}

func TestLoadVocabularyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")

	table := map[string]int{"hello": 100, " world": 101}
	data, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("Failed to marshal test vocabulary: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test vocabulary: %v", err)
	}

	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if tok.Size() != 2 {
		t.Errorf("Expected 2 entries, got %d", tok.Size())
	}
	if got := tok.Detokenize([]int{100, 101}); got != "hello world" {
		t.Errorf("Expected 'hello world', got '%s'", got)
	}
}

func TestLoadVocabularyErrors(t *testing.T) {
	if _, err := Load("/nonexistent/vocab.json"); err == nil {
		t.Error("Expected error for missing file")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("not json"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Expected error for malformed JSON")
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := Load(empty); err == nil {
		t.Error("Expected error for empty vocabulary")
	}
}
