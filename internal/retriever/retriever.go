package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docchat/internal/domain"
)

// DefaultTopK is used when Retrieve is called with topK <= 0.
const DefaultTopK = 5

// FailedScore ranks passages whose stored vector is the zero fallback. It is
// below every real cosine value so failed passages always sort last.
var FailedScore = math.Inf(-1)

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string, purpose domain.Purpose) domain.Vector
}

// Retriever ranks a document's passages against a natural-language query.
type Retriever struct {
	embedder    QueryEmbedder
	defaultTopK int
}

// New creates a Retriever. Non-positive defaultTopK falls back to DefaultTopK.
func New(embedder QueryEmbedder, defaultTopK int) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{embedder: embedder, defaultTopK: defaultTopK}
}

// Retrieve embeds query and returns up to topK passages, most similar first.
// Equal scores keep passage order. It fails with domain.ErrZeroQueryVector
// when the query embeds to the zero vector.
func (r *Retriever) Retrieve(ctx context.Context, query string, passages []domain.Passage, matrix domain.Matrix, topK int) ([]domain.Scored, error) {
	if len(passages) != len(matrix) {
		return nil, fmt.Errorf("retriever: %w: %d passages, %d vectors", domain.ErrMatrixMismatch, len(passages), len(matrix))
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}
	q := r.embedder.Embed(ctx, query, domain.PurposeQuery)
	if q.IsZero() {
		return nil, domain.ErrZeroQueryVector
	}
	ranked := Rank(q, matrix, topK)
	out := make([]domain.Scored, len(ranked))
	for i, rk := range ranked {
		out[i] = domain.Scored{Passage: passages[rk.Index], Score: rk.Score}
	}
	return out, nil
}

// Ranked is a row index of the matrix with its similarity to the query.
type Ranked struct {
	Index int
	Score float64
}

// Rank scores every row of matrix against q and returns the best
// min(k, len(matrix)) rows in descending score order, ties by ascending index.
func Rank(q domain.Vector, matrix domain.Matrix, k int) []Ranked {
	scores := make([]Ranked, len(matrix))
	for i, v := range matrix {
		s, ok := Cosine(q, v)
		if !ok {
			s = FailedScore
		}
		scores[i] = Ranked{Index: i, Score: s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k > len(scores) {
		k = len(scores)
	}
	if k < 0 {
		k = 0
	}
	return scores[:k]
}

// Cosine returns (a·b)/(‖a‖‖b‖). ok is false when the lengths differ or
// either vector has zero magnitude, where the similarity is undefined.
func Cosine(a, b domain.Vector) (sim float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
