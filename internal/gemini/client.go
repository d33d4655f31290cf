// Package gemini adapts the Google Generative AI SDK to the embedding and
// generation interfaces. Every request passes through a rate limiter;
// embedding calls also pass through a circuit breaker.
package gemini

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"docchat/internal/domain"
)

const (
	DefaultEmbeddingModel  = "models/embedding-001"
	DefaultGenerationModel = "gemini-2.0-flash-lite"
	DefaultTimeout         = 30 * time.Second
)

// Config configures the Gemini client.
type Config struct {
	APIKey          string
	EmbeddingModel  string
	GenerationModel string
	// RequestsPerMinute caps outgoing calls; zero disables limiting.
	RequestsPerMinute int
	// Timeout bounds a single embedding call.
	Timeout time.Duration
}

// Client owns the SDK connection shared by the embedding provider and the
// generator.
type Client struct {
	sdk     *genai.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewClient validates the credential and opens the SDK client. A missing or
// rejected key is reported as *domain.CredentialError.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &domain.CredentialError{Reason: "Gemini API key is empty"}
	}
	sdk, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, &domain.CredentialError{Reason: "failed to configure Gemini API", Err: err}
	}
	return newClient(sdk, cfg, logger), nil
}

func newClient(sdk *genai.Client, cfg Config, logger *slog.Logger) *Client {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultGenerationModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gemini")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini-embed",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// A caller abandoning the request says nothing about the API's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		sdk:     sdk,
		cfg:     cfg,
		limiter: limiter,
		breaker: breaker,
		tracer:  otel.Tracer("docchat/gemini"),
		logger:  logger,
	}
}

// Close releases the SDK connection.
func (c *Client) Close() error {
	if c.sdk != nil {
		return c.sdk.Close()
	}
	return nil
}
