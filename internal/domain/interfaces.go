package domain

import "context"

// EmbeddingProvider turns text into a vector. Implementations talk to an
// external model and may fail; callers decide how to recover.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, text string, purpose Purpose) ([]float32, error)
}

// Extractor converts raw uploaded bytes into plain text.
type Extractor func(data []byte) (string, error)
