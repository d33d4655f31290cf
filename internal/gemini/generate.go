package gemini

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"

	"docchat/internal/generation"
)

// responseIterator is the part of *genai.GenerateContentResponseIterator the
// generator consumes.
type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

type streamFunc func(ctx context.Context, prompt string) responseIterator

// Generator streams answers from the Gemini generative model.
type Generator struct {
	client *Client
	open   streamFunc
}

// Generator returns a generator bound to the configured generation model.
func (c *Client) Generator() *Generator {
	g := &Generator{client: c}
	g.open = g.sdkStream
	return g
}

// Name returns the identifier of this generator.
func (g *Generator) Name() string { return "gemini" }

// Generate starts a streamed completion. The returned stream ends with
// io.EOF, or a *domain.GenerationError if the model fails part way.
func (g *Generator) Generate(ctx context.Context, p generation.Prompt) (generation.Stream, error) {
	if err := g.client.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var (
		it        responseIterator
		span      trace.Span
		fragments int
	)
	return generation.NewStream(ctx, func(ctx context.Context) (string, error) {
		if it == nil {
			ctx, span = g.client.tracer.Start(ctx, "gemini.generate_content_stream")
			span.SetAttributes(
				attribute.String("gemini.model", g.client.cfg.GenerationModel),
				attribute.Int("gemini.context_chunks", len(p.Context)),
			)
			// The stream context is cancelled on completion, failure or Close.
			context.AfterFunc(ctx, func() { span.End() })
			it = g.open(ctx, p.String())
		}
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			span.SetAttributes(attribute.Int("gemini.fragments", fragments))
			return "", io.EOF
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		fragments++
		return responseText(resp), nil
	}), nil
}

func (g *Generator) sdkStream(ctx context.Context, prompt string) responseIterator {
	model := g.client.sdk.GenerativeModel(g.client.cfg.GenerationModel)
	return model.GenerateContentStream(ctx, genai.Text(prompt))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}
