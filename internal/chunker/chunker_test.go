package chunker

import (
	"strings"
	"testing"
)

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New(Config{Strategy: "fancy"})
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestNewDefaultsToRecursive(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(*Recursive); !ok {
		t.Fatalf("expected *Recursive, got %T", s)
	}
}

func TestRecursiveEmptyInput(t *testing.T) {
	c, err := NewRecursive(Config{ChunkSize: 100})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	for _, input := range []string{"", "   ", "\n\n\t  \n"} {
		if got := c.Chunk(input); len(got) != 0 {
			t.Errorf("Chunk(%q) = %v, want empty", input, got)
		}
	}
}

func TestRecursiveShortTextSingleChunk(t *testing.T) {
	c, err := NewRecursive(Config{ChunkSize: 100})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	got := c.Chunk("hello world")
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("Chunk = %v, want [hello world]", got)
	}
}

func TestRecursiveIdempotentOnBoundedChunk(t *testing.T) {
	c, err := NewRecursive(Config{ChunkSize: 100})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	first := c.Chunk("One sentence here. Another one follows.")
	if len(first) != 1 {
		t.Fatalf("expected single chunk, got %d", len(first))
	}

	again := c.Chunk(first[0])
	if len(again) != 1 || again[0] != first[0] {
		t.Errorf("re-chunking a bounded chunk changed it: %v -> %v", first, again)
	}
}

func TestRecursiveSentenceSplit(t *testing.T) {
	// chunk_size=50 forces a split on ". " between the two sentences.
	c, err := NewRecursive(Config{ChunkSize: 50})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	got := c.Chunk("This is the first sentence. This is the second sentence.")
	if len(got) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d: %v", len(got), got)
	}
	for _, chunk := range got {
		if len(chunk) > 50 {
			t.Errorf("chunk %q exceeds size limit (%d bytes)", chunk, len(chunk))
		}
	}
}

func TestRecursiveSizeBound(t *testing.T) {
	c, err := NewRecursive(Config{ChunkSize: 64})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog. ")
	}

	for _, chunk := range c.Chunk(b.String()) {
		if len(chunk) > 64 {
			t.Errorf("chunk exceeds limit: %d bytes: %q", len(chunk), chunk)
		}
		if strings.TrimSpace(chunk) == "" {
			t.Error("emitted whitespace-only chunk")
		}
	}
}

func TestRecursiveHardCutFallback(t *testing.T) {
	c, err := NewRecursive(Config{ChunkSize: 10})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	// A single atomic token longer than the limit: only the empty-string
	// separator can split it.
	got := c.Chunk(strings.Repeat("x", 25))
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(got), got)
	}
	if got[0] != strings.Repeat("x", 10) || got[2] != strings.Repeat("x", 5) {
		t.Errorf("unexpected hard-cut chunks: %v", got)
	}
}

func TestRecursiveHardCutKeepsRunesIntact(t *testing.T) {
	c, err := NewRecursive(Config{ChunkSize: 10})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	for _, chunk := range c.Chunk(strings.Repeat("日", 12)) {
		if !strings.HasPrefix(chunk, "日") {
			t.Errorf("chunk starts mid-rune: %q", chunk)
		}
	}
}

func TestRecursiveParagraphSplit(t *testing.T) {
	c, err := NewRecursive(Config{ChunkSize: 30})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	got := c.Chunk("First paragraph text here.\n\nSecond paragraph text here.")
	if len(got) != 2 {
		t.Fatalf("expected paragraph split into 2 chunks, got %v", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapses spaces", "a   b\t\tc", "a b c"},
		{"collapses blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"trims", "  hello  ", "hello"},
		{"empty", "   \n \t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestChunkByParagraphs(t *testing.T) {
	c, err := NewRecursive(Config{ChunkSize: 100})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}

	got := c.ChunkByParagraphs("Short one.\n\nShort two.\n\n" + strings.Repeat("long paragraph ", 20))
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %v", got)
	}
	if got[0] != "Short one.\n\nShort two." {
		t.Errorf("expected packed short paragraphs, got %q", got[0])
	}
}
