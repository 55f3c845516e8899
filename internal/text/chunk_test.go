package text

import (
	"strings"
	"testing"
)

func TestChunkShortTextSinglePiece(t *testing.T) {
	chunks := Chunk("hello world", 100)
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestChunkEmptyTextNoPieces(t *testing.T) {
	if chunks := Chunk("", 10); chunks != nil {
		t.Fatalf("expected no chunks, got %v", chunks)
	}
	if chunks := Chunk("   \n\t ", 10); chunks != nil {
		t.Fatalf("expected no chunks for whitespace, got %v", chunks)
	}
}

func TestChunkRespectsBudget(t *testing.T) {
	input := strings.Repeat("word ", 200)
	chunks := Chunk(input, 37)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 37 {
			t.Fatalf("chunk %d exceeds budget: %q", i, c)
		}
	}
}

func TestChunkDoesNotSplitWords(t *testing.T) {
	chunks := Chunk("alpha beta gamma delta epsilon", 12)
	for i, c := range chunks {
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Fatalf("chunk %d has stray whitespace: %q", i, c)
		}
		for _, w := range strings.Fields(c) {
			switch w {
			case "alpha", "beta", "gamma", "delta", "epsilon":
			default:
				t.Fatalf("chunk %d split a word: %q", i, c)
			}
		}
	}
}

func TestChunkPrefersSentenceBoundary(t *testing.T) {
	chunks := Chunk("First sentence. Second part continues here", 25)
	if chunks[0] != "First sentence." {
		t.Fatalf("expected sentence boundary cut, got %q", chunks[0])
	}
}

func TestChunkHardSplitsOversizedToken(t *testing.T) {
	token := strings.Repeat("x", 50)
	chunks := Chunk(token, 20)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != strings.Repeat("x", 20) || chunks[2] != strings.Repeat("x", 10) {
		t.Fatalf("unexpected hard split: %v", chunks)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	input := "The  quick brown fox\njumps over the lazy dog. Pack my box with five dozen liquor jugs."
	normalized := strings.Join(strings.Fields(input), " ")
	chunks := Chunk(input, 30)
	if got := strings.Join(chunks, " "); got != normalized {
		t.Fatalf("round trip mismatch:\n got %q\nwant %q", got, normalized)
	}
}

func TestChunkDeterministic(t *testing.T) {
	input := strings.Repeat("some words go here. ", 40)
	first := Chunk(input, 64)
	second := Chunk(input, 64)
	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("chunk %d differs: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestClampBounds(t *testing.T) {
	cases := []struct {
		value, lo, hi, want float64
	}{
		{0.5, 1.0, 2.0, 1.0},
		{1.5, 1.0, 2.0, 1.5},
		{3.0, 1.0, 2.0, 2.0},
		{1.0, 1.0, 2.0, 1.0},
		{2.0, 1.0, 2.0, 2.0},
	}
	for _, c := range cases {
		if got := Clamp(c.value, c.lo, c.hi); got != c.want {
			t.Fatalf("Clamp(%v, %v, %v) = %v, want %v", c.value, c.lo, c.hi, got, c.want)
		}
	}
}
