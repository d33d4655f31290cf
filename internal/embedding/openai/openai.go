package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"docchat/internal/domain"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultMaxRetries = 3
)

// Provider is an OpenAI-compatible embeddings client. It also accepts the
// Ollama-native response shape, so local embedding servers work unchanged.
type Provider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Dimensions is forwarded to models that support shortened embeddings.
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
}

// New creates a provider. The hosted OpenAI endpoint requires a key; custom
// base URLs may run without one.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" && cfg.BaseURL == DefaultBaseURL {
		return nil, &domain.CredentialError{Reason: "OpenAI API key is empty"}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Provider{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		sleep:      sleepContext,
	}, nil
}

// Name returns the identifier of this provider.
func (p *Provider) Name() string { return "openai" }

type request struct {
	Input      string `json:"input,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type statusError struct {
	status string
	code   int
}

func (e *statusError) Error() string { return "openai embeddings failed: " + e.status }

// Embed returns an embedding vector for text. The purpose is ignored: the
// OpenAI embedding API has no task types. Rate limits and server errors are
// retried with exponential backoff, honouring Retry-After.
func (p *Provider) Embed(ctx context.Context, text string, _ domain.Purpose) ([]float32, error) {
	body, err := json.Marshal(request{Input: text, Prompt: text, Model: p.model, Dimensions: p.dimensions})
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, backoff(lastErr, attempt-1)); err != nil {
				return nil, err
			}
		}
		v, err := p.do(ctx, body)
		if err == nil {
			return v, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

type retryAfterError struct {
	*statusError
	after time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.statusError }

func (p *Provider) do(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &domain.CredentialError{Reason: "OpenAI rejected the API key", Err: &statusError{resp.Status, resp.StatusCode}}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		serr := &statusError{resp.Status, resp.StatusCode}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, &retryAfterError{serr, time.Duration(secs) * time.Second}
		}
		return nil, serr
	case resp.StatusCode >= 300:
		return nil, &statusError{resp.Status, resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decode(payload)
}

func decode(payload []byte) ([]float32, error) {
	// OpenAI shape first, then Ollama-native { "embedding": [...] }.
	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	raw := out.Embedding
	if len(out.Data) > 0 {
		raw = out.Data[0].Embedding
	}
	if len(raw) == 0 {
		return nil, errors.New("openai: no embedding returned")
	}
	v := make([]float32, len(raw))
	for i, x := range raw {
		v[i] = float32(x)
	}
	return v, nil
}

func retryable(err error) bool {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code == http.StatusTooManyRequests || serr.code >= 500
	}
	var cerr *domain.CredentialError
	if errors.As(err, &cerr) {
		return false
	}
	// Transport errors.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func backoff(err error, attempt int) time.Duration {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.after
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
