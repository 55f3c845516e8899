package text

import "strings"

// sentence-ending runes preferred as chunk boundaries
const sentenceEnders = ".!?…"

// Chunk splits text into pieces of at most maxChars characters so every
// synthesis request stays under the provider character ceiling. Whitespace is
// normalized to single spaces first. Boundaries prefer sentence punctuation,
// then word breaks; a single token longer than maxChars is hard-split as a
// last resort. Empty or whitespace-only input yields no chunks.
func Chunk(text string, maxChars int) []string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{normalized}
	}

	runes := []rune(normalized)
	if len(runes) <= maxChars {
		return []string{normalized}
	}

	var chunks []string
	for len(runes) > maxChars {
		cut := boundary(runes, maxChars)
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), " "))
		for cut < len(runes) && runes[cut] == ' ' {
			cut++
		}
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// boundary returns the index to cut at, looking backwards from the budget for
// a sentence end, then any space, before giving up and splitting mid-word.
func boundary(runes []rune, maxChars int) int {
	window := runes[:maxChars+1]

	best := -1
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == ' ' {
			if best < 0 {
				best = i
			}
			if strings.ContainsRune(sentenceEnders, window[i-1]) {
				return i
			}
		}
	}
	if best > 0 {
		return best
	}
	return maxChars
}
