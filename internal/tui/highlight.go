package tui

import (
	"strings"

	"docchat/internal/summarizer"
)

// highlightBestSentence renders text with the sentence sharing the most
// distinct words with query emphasized. Text after the last terminator is
// kept as a final sentence.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	parts := summarizer.Sentences(text)
	if best := bestSentence(parts, words(query)); best >= 0 {
		parts[best] = highlightStyle.Render(parts[best])
	}
	return strings.Join(parts, " ")
}

// bestSentence returns the index of the first sentence with the highest
// overlap with want, or -1 when want is empty.
func bestSentence(sentences []string, want map[string]struct{}) int {
	if len(want) == 0 {
		return -1
	}
	best, bestHits := 0, -1
	for i, s := range sentences {
		hits := 0
		for w := range words(s) {
			if _, ok := want[w]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	return best
}

func words(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range unicodeWordRe.FindAllString(strings.ToLower(s), -1) {
		set[w] = struct{}{}
	}
	return set
}
