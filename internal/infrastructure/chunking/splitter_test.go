package chunking

import (
	"strings"
	"testing"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)
	got := s.Split("a short document")
	if len(got) != 1 || got[0] != "a short document" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitEmptyText(t *testing.T) {
	if got := NewSplitter(100, 20).Split("   "); len(got) != 0 {
		t.Fatalf("whitespace-only text produced %v", got)
	}
}

func TestSplitOverlappingWindows(t *testing.T) {
	words := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		words = append(words, "word")
	}
	text := strings.Join(words, " ")

	s := NewSplitter(100, 25)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("long text should split, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 100 {
			t.Fatalf("chunk %d has %d runes, limit 100", i, n)
		}
	}
}

func TestSplitDoesNotCutWords(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 40)
	for _, chunk := range NewSplitter(90, 10).Split(text) {
		for _, field := range strings.Fields(chunk) {
			switch field {
			case "alpha", "beta", "gamma", "delta":
			default:
				t.Fatalf("chunk boundary split a word: %q", field)
			}
		}
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	// Devanagari runes are three bytes each; the window must still
	// hold ChunkSize runes.
	text := strings.Repeat("नमस्ते ", 50)
	chunks := NewSplitter(60, 10).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 60 {
			t.Fatalf("chunk %d has %d runes, limit 60", i, n)
		}
	}
}

func TestSplitUnbrokenRunStillSplits(t *testing.T) {
	text := strings.Repeat("x", 500)
	chunks := NewSplitter(100, 10).Split(text)
	if len(chunks) < 4 {
		t.Fatalf("unbroken run should hard-split, got %d chunks", len(chunks))
	}
}
