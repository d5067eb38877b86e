package chunking

import (
	"strings"
	"unicode"
)

const boundaryLookback = 120

// Splitter cuts extracted text into overlapping windows measured in
// runes, so multibyte scripts chunk the same as Latin text. Cuts are
// pulled back to the nearest whitespace when one is close enough,
// keeping words intact across chunk borders.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	total := len(runes)
	if total == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, total/step+1)
	start := 0
	for start < total {
		end := start + s.ChunkSize
		if end >= total {
			end = total
		} else {
			end = boundary(runes, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == total {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = start + step
		}
		// Slide the restart forward onto a word boundary so the
		// overlap never opens mid-word.
		for next < end && next > 0 && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return out
}

// boundary walks back from the hard cut to the nearest whitespace,
// giving up after a bounded lookback so a pathological unbroken run
// still splits.
func boundary(runes []rune, cut int) int {
	floor := cut - boundaryLookback
	if floor < 1 {
		floor = 1
	}
	for i := cut; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return cut
}
