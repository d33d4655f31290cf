package domain

// Passage is a contiguous run of a document's text. Passages are immutable
// once produced by the chunker.
type Passage struct {
	DocumentID string
	ID         string
	Index      int
	// Start is the rune offset of Text within the source document.
	Start int
	Text  string
}

// Vector is a fixed-dimension embedding of a passage or query.
type Vector []float32

// Matrix holds one Vector per passage, index-aligned with the passage slice.
type Matrix []Vector

// Purpose tells an embedding provider whether the text is stored content or
// a search query.
type Purpose string

const (
	PurposeDocument Purpose = "document"
	PurposeQuery    Purpose = "query"
)

// Scored is a retrieved passage with its cosine similarity to the query.
type Scored struct {
	Passage Passage
	Score   float64
}

// ZeroVector returns the all-zero vector of the given dimension.
func ZeroVector(dim int) Vector {
	return make(Vector, dim)
}

// IsZero reports whether every component of v is zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
