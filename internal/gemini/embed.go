package gemini

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docchat/internal/domain"
)

type embedFunc func(ctx context.Context, task genai.TaskType, text string) ([]float32, error)

// EmbeddingProvider implements domain.EmbeddingProvider on the Gemini
// embedding model. Document and query text use distinct retrieval task types.
type EmbeddingProvider struct {
	client *Client
	embed  embedFunc
}

// EmbeddingProvider returns a provider bound to the configured embedding model.
func (c *Client) EmbeddingProvider() *EmbeddingProvider {
	p := &EmbeddingProvider{client: c}
	p.embed = p.sdkEmbed
	return p
}

// Name returns the identifier of this provider.
func (p *EmbeddingProvider) Name() string { return "gemini" }

// Embed calls the embedding model once. It never retries.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string, purpose domain.Purpose) ([]float32, error) {
	ctx, span := p.client.tracer.Start(ctx, "gemini.embed_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", p.client.cfg.EmbeddingModel),
		attribute.String("gemini.purpose", string(purpose)),
		attribute.Int("gemini.input_chars", len(text)),
	)

	if err := p.client.limiter.Wait(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.client.cfg.Timeout)
	defer cancel()

	out, err := p.client.breaker.Execute(func() (interface{}, error) {
		return p.embed(ctx, taskType(purpose), text)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out.([]float32), nil
}

func (p *EmbeddingProvider) sdkEmbed(ctx context.Context, task genai.TaskType, text string) ([]float32, error) {
	model := p.client.sdk.EmbeddingModel(p.client.cfg.EmbeddingModel)
	model.TaskType = task
	res, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("gemini: no embedding returned")
	}
	return res.Embedding.Values, nil
}

func taskType(purpose domain.Purpose) genai.TaskType {
	if purpose == domain.PurposeQuery {
		return genai.TaskTypeRetrievalQuery
	}
	return genai.TaskTypeRetrievalDocument
}
