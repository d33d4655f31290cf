package extractive

import (
	"context"
	"strings"

	"docchat/internal/generation"
	"docchat/internal/summarizer"
)

// Generator answers without a language model by streaming the context
// sentences that best match the question.
type Generator struct {
	summarizer   *summarizer.FrequencySummarizer
	maxSentences int
}

// New creates an extractive generator emitting at most maxSentences sentences.
func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = summarizer.DefaultMaxSentences
	}
	return &Generator{summarizer: summarizer.NewFrequencySummarizer(), maxSentences: maxSentences}
}

// Name returns the identifier of this generator.
func (g *Generator) Name() string { return "extractive" }

// Generate streams one sentence per fragment.
func (g *Generator) Generate(ctx context.Context, p generation.Prompt) (generation.Stream, error) {
	sentences := g.summarizer.Select(strings.Join(p.Context, "\n"), p.Question, g.maxSentences)
	fragments := make([]string, len(sentences))
	for i, s := range sentences {
		if i > 0 {
			s = " " + s
		}
		fragments[i] = s
	}
	return generation.FromSlice(ctx, fragments), nil
}
