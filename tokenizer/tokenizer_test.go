package tokenizer

import (
	"testing"
)

func TestEstimator_CountTokens(t *testing.T) {
	t.Parallel()

	est := NewEstimatorTokenizer("generic", 0)

	tests := []struct {
		name string
		text string
		min  int
		max  int
	}{
		{name: "empty", text: "", min: 0, max: 0},
		{name: "short ascii", text: "hi", min: 1, max: 1},
		{name: "ascii sentence", text: "the quick brown fox jumps over the lazy dog", min: 8, max: 14},
		{name: "cjk", text: "你好世界你好世界", min: 4, max: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := est.CountTokens(tt.text)
			if err != nil {
				t.Fatalf("CountTokens: %v", err)
			}
			if got < tt.min || got > tt.max {
				t.Errorf("CountTokens(%q) = %d, want in [%d, %d]", tt.text, got, tt.min, tt.max)
			}
		})
	}
}

func TestEstimator_DecodeUnsupported(t *testing.T) {
	t.Parallel()

	est := NewEstimatorTokenizer("generic", 0)
	if _, err := est.Decode([]int{1, 2, 3}); err == nil {
		t.Fatal("expected decode error from estimator")
	}
}

func TestEstimator_DefaultMaxTokens(t *testing.T) {
	t.Parallel()

	if got := NewEstimatorTokenizer("generic", 0).MaxTokens(); got != 4096 {
		t.Errorf("expected default 4096, got %d", got)
	}
	if got := NewEstimatorTokenizer("generic", 8192).MaxTokens(); got != 8192 {
		t.Errorf("expected 8192, got %d", got)
	}
}

func TestRuneTokenizer_Roundtrip(t *testing.T) {
	t.Parallel()

	tok := NewRuneTokenizer(0)

	for _, text := range []string{"", "abcdefghij", "hello world", "你好 world"} {
		tokens, err := tok.Encode(text)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		decoded, err := tok.Decode(tokens)
		if err != nil {
			t.Fatalf("Decode(%q): %v", text, err)
		}
		if decoded != text {
			t.Errorf("roundtrip mismatch: got %q want %q", decoded, text)
		}

		count, err := tok.CountTokens(text)
		if err != nil {
			t.Fatalf("CountTokens(%q): %v", text, err)
		}
		if count != len(tokens) {
			t.Errorf("CountTokens=%d, len(Encode)=%d", count, len(tokens))
		}
	}
}

func TestNewTiktokenTokenizer_ModelMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model        string
		wantEncoding string
	}{
		{model: "gpt-4o", wantEncoding: "o200k_base"},
		{model: "gpt-4o-2024-08-06", wantEncoding: "o200k_base"}, // prefix match
		{model: "text-embedding-ada-002", wantEncoding: "cl100k_base"},
		{model: "unknown-model", wantEncoding: "cl100k_base"}, // fallback
	}

	for _, tt := range tests {
		tok, err := NewTiktokenTokenizer(tt.model)
		if err != nil {
			t.Fatalf("NewTiktokenTokenizer(%s): %v", tt.model, err)
		}
		if tok.encoding != tt.wantEncoding {
			t.Errorf("model %s: encoding = %s, want %s", tt.model, tok.encoding, tt.wantEncoding)
		}
	}
}
