package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"docchat/internal/domain"
)

// Provider names accepted in the config file.
const (
	ProviderGemini     = "gemini"
	ProviderHashing    = "hashing"
	ProviderOpenAI     = "openai"
	ProviderExtractive = "extractive"
)

// GeminiConfig holds settings for the Gemini API.
type GeminiConfig struct {
	APIKeyEnv         string `yaml:"api_key_env"`
	EmbeddingModel    string `yaml:"embedding_model"`
	GenerationModel   string `yaml:"generation_model"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	TimeoutSecs       int    `yaml:"timeout_secs"`
}

// Timeout returns the per-call timeout as a duration.
func (g GeminiConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// MaxRetries defaults to 3; a negative value disables retries.
	MaxRetries int `yaml:"max_retries"`
}

// Timeout returns the per-request timeout as a duration.
func (o OpenAIConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// ChunkerConfig configures how documents are split into passages. Sizes are
// counted in runes.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider  string `yaml:"provider"`
	Dimension int    `yaml:"dimension"`
	MaxChars  int    `yaml:"max_chars"`
	Workers   int    `yaml:"workers"`
}

// RetrieverConfig configures passage selection.
type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// GeneratorConfig selects the answer generator.
type GeneratorConfig struct {
	Provider     string `yaml:"provider"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Gemini    GeminiConfig    `yaml:"gemini"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Generator GeneratorConfig `yaml:"generator"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/docchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

// Validate reports settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	switch {
	case c.Chunker.Size <= 0:
		return fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size)
	case c.Chunker.Overlap < 0:
		return fmt.Errorf("chunker.overlap must not be negative, got %d", c.Chunker.Overlap)
	case c.Chunker.Overlap >= c.Chunker.Size:
		return fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.size (%d)", c.Chunker.Overlap, c.Chunker.Size)
	case c.Embedder.Dimension <= 0:
		return fmt.Errorf("embedder.dimension must be positive, got %d", c.Embedder.Dimension)
	case c.Embedder.MaxChars <= 0:
		return fmt.Errorf("embedder.max_chars must be positive, got %d", c.Embedder.MaxChars)
	case c.Retriever.TopK <= 0:
		return fmt.Errorf("retriever.top_k must be positive, got %d", c.Retriever.TopK)
	}
	switch c.Embedder.Provider {
	case ProviderGemini, ProviderHashing, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedder provider: %s", c.Embedder.Provider)
	}
	switch c.Generator.Provider {
	case ProviderGemini, ProviderExtractive:
	default:
		return fmt.Errorf("unknown generator provider: %s", c.Generator.Provider)
	}
	return nil
}

// NeedsAPIKey reports whether any selected provider calls the Gemini API.
func (c *AppConfig) NeedsAPIKey() bool {
	return c.Embedder.Provider == ProviderGemini || c.Generator.Provider == ProviderGemini
}

// APIKey returns override if set, otherwise the value of the configured
// environment variable. It fails with *domain.CredentialError when a Gemini
// provider is selected and no key is available.
func (c *AppConfig) APIKey(override string) (string, error) {
	key := override
	if key == "" {
		key = os.Getenv(c.Gemini.APIKeyEnv)
	}
	if key == "" && c.NeedsAPIKey() {
		return "", &domain.CredentialError{Reason: fmt.Sprintf("set %s or pass --api-key", c.Gemini.APIKeyEnv)}
	}
	return key, nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docchat", "config.yaml"), nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Gemini.APIKeyEnv == "" {
		cfg.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.Gemini.EmbeddingModel == "" {
		cfg.Gemini.EmbeddingModel = "models/embedding-001"
	}
	if cfg.Gemini.GenerationModel == "" {
		cfg.Gemini.GenerationModel = "gemini-2.0-flash-lite"
	}
	if cfg.Gemini.TimeoutSecs == 0 {
		cfg.Gemini.TimeoutSecs = 30
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 30
	}
	if cfg.OpenAI.MaxRetries == 0 {
		cfg.OpenAI.MaxRetries = 3
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 200
		}
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = ProviderGemini
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 768
	}
	if cfg.Embedder.MaxChars == 0 {
		cfg.Embedder.MaxChars = 3000
	}
	if cfg.Embedder.Workers == 0 {
		cfg.Embedder.Workers = 4
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 5
	}
	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = ProviderGemini
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "docchat.log"
	}
}
