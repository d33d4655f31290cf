package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"docchat/internal/domain"
)

const (
	DefaultDimension = 768
	DefaultMaxChars  = 3000
	DefaultWorkers   = 4
)

// Options configures an Embedder.
type Options struct {
	Dimension int
	// MaxChars caps the rune length of text sent to the provider.
	MaxChars int
	// Workers bounds concurrent provider calls in EmbedMany.
	Workers int
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{Dimension: DefaultDimension, MaxChars: DefaultMaxChars, Workers: DefaultWorkers}
}

// Result is the outcome of embedding one item. A failed Result carries an
// *domain.EmbeddingError and no vector.
type Result struct {
	Vector domain.Vector
	Err    error
}

// IsOk reports whether the provider produced a usable vector.
func (r Result) IsOk() bool { return r.Err == nil }

// VectorOr returns the vector, or the zero vector of dim on failure.
func (r Result) VectorOr(dim int) domain.Vector {
	if r.Err != nil {
		return domain.ZeroVector(dim)
	}
	return r.Vector
}

// Embedder wraps an EmbeddingProvider with the pipeline's fallback rules:
// blank input and provider failures become zero vectors so the passage
// matrix always stays rectangular and index-aligned.
type Embedder struct {
	provider domain.EmbeddingProvider
	opts     Options
	logger   *slog.Logger
}

// New creates an Embedder. Zero option fields take their defaults.
func New(provider domain.EmbeddingProvider, opts Options, logger *slog.Logger) *Embedder {
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{provider: provider, opts: opts, logger: logger.With("component", "embedder", "provider", provider.Name())}
}

// Dimension returns the length of every vector this Embedder produces.
func (e *Embedder) Dimension() int { return e.opts.Dimension }

// Embed returns the vector for one text. Failures are logged and reduced to
// the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string, purpose domain.Purpose) domain.Vector {
	return e.reduce(e.EmbedResult(ctx, 0, text, purpose))
}

// EmbedMany embeds texts as documents with bounded concurrency. The result has
// exactly len(texts) rows in input order, whatever the provider does.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) domain.Matrix {
	out := make(domain.Matrix, len(texts))
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, text := range texts {
		g.Go(func() error {
			out[i] = e.reduce(e.EmbedResult(ctx, i, text, domain.PurposeDocument))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// EmbedResult embeds a single item and reports the outcome as a typed value.
// Blank text returns the zero vector without calling the provider.
func (e *Embedder) EmbedResult(ctx context.Context, index int, text string, purpose domain.Purpose) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Vector: domain.ZeroVector(e.opts.Dimension)}
	}
	vec, err := e.provider.Embed(ctx, truncate(text, e.opts.MaxChars), purpose)
	if err == nil && len(vec) != e.opts.Dimension {
		err = fmt.Errorf("provider returned %d dimensions, want %d", len(vec), e.opts.Dimension)
	}
	if err != nil {
		return Result{Err: &domain.EmbeddingError{Index: index, Purpose: purpose, Err: err}}
	}
	return Result{Vector: domain.Vector(vec)}
}

func (e *Embedder) reduce(r Result) domain.Vector {
	var ee *domain.EmbeddingError
	if errors.As(r.Err, &ee) {
		e.logger.Warn("embedding failed, using zero vector", "index", ee.Index, "purpose", ee.Purpose, "err", ee.Err)
	}
	return r.VectorOr(e.opts.Dimension)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
