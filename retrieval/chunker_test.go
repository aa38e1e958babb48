package retrieval

import (
	"strings"
	"testing"

	"github.com/bwenge/ragcore/tokenizer"
	"github.com/bwenge/ragcore/types"
)

func newRuneChunker(t *testing.T, maxTokens, overlap int) *TokenChunker {
	t.Helper()
	c, err := NewTokenChunker(tokenizer.NewRuneTokenizer(0), ChunkerConfig{
		MaxTokens: maxTokens,
		Overlap:   overlap,
	}, nil)
	if err != nil {
		t.Fatalf("NewTokenChunker failed: %v", err)
	}
	return c
}

func TestTokenChunker_SlidingWindow(t *testing.T) {
	t.Parallel()

	c := newRuneChunker(t, 4, 1)

	chunks, err := c.Split("abcdefghij")
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	want := []string{"abcd", "defg", "ghij"}
	if len(chunks) != len(want) {
		t.Fatalf("chunk count = %d, want %d (%v)", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestTokenChunker_SingleChunk(t *testing.T) {
	t.Parallel()

	c := newRuneChunker(t, 100, 10)

	chunks, err := c.Split("short text")
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("chunks = %v, want single original text", chunks)
	}
}

func TestTokenChunker_ExactWindowBoundary(t *testing.T) {
	t.Parallel()

	// 10 个 token, 窗口 5, 无重叠: 正好两块
	c := newRuneChunker(t, 5, 0)

	chunks, err := c.Split("abcdefghij")
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 2 || chunks[0] != "abcde" || chunks[1] != "fghij" {
		t.Fatalf("chunks = %v, want [abcde fghij]", chunks)
	}
}

func TestTokenChunker_EmptyText(t *testing.T) {
	t.Parallel()

	c := newRuneChunker(t, 4, 1)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := c.Split(text); !types.IsInvalidArgument(err) {
			t.Errorf("Split(%q) error = %v, want InvalidArgument", text, err)
		}
	}
}

func TestTokenChunker_BadWindowParams(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		maxTokens int
		overlap   int
	}{
		{"overlap equals max", 4, 4},
		{"overlap exceeds max", 4, 10},
		{"negative overlap", 4, -1},
		{"negative max", -1, 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewTokenChunker(tokenizer.NewRuneTokenizer(0), ChunkerConfig{
				MaxTokens: tc.maxTokens,
				Overlap:   tc.overlap,
			}, nil)
			if !types.IsInvalidArgument(err) {
				t.Fatalf("error = %v, want InvalidArgument", err)
			}
		})
	}
}

func TestTokenChunker_TokenCoverage(t *testing.T) {
	t.Parallel()

	c := newRuneChunker(t, 7, 3)
	text := "the quick brown fox jumps over the lazy dog"

	chunks, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	// 每块应恰为窗口 [i*step, i*step+max) 对应的原文片段, 末窗触底
	runes := []rune(text)
	step := 7 - 3
	covered := 0
	for i, chunk := range chunks {
		start := i * step
		end := start + 7
		if end > len(runes) {
			end = len(runes)
		}
		if want := string(runes[start:end]); chunk != want {
			t.Errorf("chunk[%d] = %q, want %q", i, chunk, want)
		}
		covered = end
	}
	if covered != len(runes) {
		t.Fatalf("windows cover %d of %d tokens", covered, len(runes))
	}
	if !strings.HasSuffix(chunks[len(chunks)-1], "dog") {
		t.Fatalf("last chunk %q should end with input tail", chunks[len(chunks)-1])
	}
}

func TestTokenChunker_ChunkDocument(t *testing.T) {
	t.Parallel()

	c := newRuneChunker(t, 4, 1)

	chunks, err := c.ChunkDocument("doc-1", "tenant-a", "persona-9", "abcdefghij")
	if err != nil {
		t.Fatalf("ChunkDocument failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunk count = %d, want 3", len(chunks))
	}

	seen := make(map[string]bool)
	for i, ch := range chunks {
		if ch.ChunkID == "" {
			t.Errorf("chunk[%d] has empty chunk_id", i)
		}
		if seen[ch.ChunkID] {
			t.Errorf("duplicate chunk_id %s", ch.ChunkID)
		}
		seen[ch.ChunkID] = true

		if ch.ChunkIndex != i {
			t.Errorf("chunk[%d].ChunkIndex = %d", i, ch.ChunkIndex)
		}
		if ch.SourceID != "doc-1" || ch.TenantID != "tenant-a" || ch.ScopeID != "persona-9" {
			t.Errorf("chunk[%d] scope fields = %+v", i, ch)
		}
	}
}

func TestTokenChunker_DefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultChunkerConfig()
	if cfg.MaxTokens != 500 || cfg.Overlap != 50 {
		t.Fatalf("defaults = %+v, want MaxTokens=500 Overlap=50", cfg)
	}

	// 零值 MaxTokens 回落到默认
	c, err := NewTokenChunker(tokenizer.NewRuneTokenizer(0), ChunkerConfig{Overlap: 50}, nil)
	if err != nil {
		t.Fatalf("NewTokenChunker failed: %v", err)
	}
	if c.cfg.MaxTokens != DefaultMaxTokens {
		t.Fatalf("MaxTokens = %d, want %d", c.cfg.MaxTokens, DefaultMaxTokens)
	}
}
