package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"docchat/internal/domain"
)

// Provider maps text to a fixed-dimension term-frequency vector using the
// hashing trick. It needs no corpus preparation and no network, which makes
// it usable offline and in tests.
type Provider struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates a hashing provider producing vectors of the given dimension.
func New(dimension int) *Provider {
	if dimension <= 0 {
		dimension = 768
	}
	return &Provider{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this provider.
func (p *Provider) Name() string { return "hashing" }

// Dimension returns the length of produced vectors.
func (p *Provider) Dimension() int { return p.dimension }

// Embed returns the L2-normalized hashed term frequencies of text. Text with
// no indexable tokens maps to the zero vector. Purpose is ignored.
func (p *Provider) Embed(ctx context.Context, text string, _ domain.Purpose) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := make([]float64, p.dimension)
	for _, tok := range p.tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimension))
		// Signed hashing keeps collisions from only ever adding up.
		if sum>>63 == 1 {
			acc[idx]--
		} else {
			acc[idx]++
		}
	}
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, p.dimension)
	if norm == 0 {
		return vec, nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (p *Provider) tokenize(text string) []string {
	raw := p.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := p.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "does", "do", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
