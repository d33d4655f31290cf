package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/embedding/hashing"
	"docchat/internal/embedding/openai"
	"docchat/internal/extract"
	"docchat/internal/gemini"
	"docchat/internal/generation"
	"docchat/internal/generation/extractive"
	"docchat/internal/logging"
	"docchat/internal/service"
	"docchat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, apiKey string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docchat/config.yaml if not provided)")
	flag.StringVar(&apiKey, "api-key", "", "Gemini API key (overrides the configured environment variable)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: docchat [--config=config.yaml] [--api-key=KEY] [document]\n\nSupported formats: %v\n", extract.Supported())
		flag.PrintDefaults()
	}
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer closeLog()

	if err := run(cfg, apiKey, flag.Args(), logger); err != nil {
		logger.Error("docchat exited", "err", err)
		var credErr *domain.CredentialError
		if errors.As(err, &credErr) {
			fmt.Fprintln(os.Stderr, credErr.Error())
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, apiKey string, args []string, logger *slog.Logger) error {
	ctx := context.Background()

	key, err := cfg.APIKey(apiKey)
	if err != nil {
		return err
	}
	var client *gemini.Client
	if cfg.NeedsAPIKey() {
		client, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:            key,
			EmbeddingModel:    cfg.Gemini.EmbeddingModel,
			GenerationModel:   cfg.Gemini.GenerationModel,
			RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
			Timeout:           cfg.Gemini.Timeout(),
		}, logger)
		if err != nil {
			return err
		}
		defer client.Close()
	}

	// Assemble components
	var provider domain.EmbeddingProvider
	switch cfg.Embedder.Provider {
	case config.ProviderGemini:
		provider = client.EmbeddingProvider()
	case config.ProviderHashing:
		provider = hashing.New(cfg.Embedder.Dimension)
	case config.ProviderOpenAI:
		provider, err = openai.New(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     os.Getenv(cfg.OpenAI.APIKeyEnv),
			Model:      cfg.OpenAI.Model,
			Dimensions: cfg.Embedder.Dimension,
			Timeout:    cfg.OpenAI.Timeout(),
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown embedder provider: %s", cfg.Embedder.Provider)
	}

	var gen generation.Generator
	switch cfg.Generator.Provider {
	case config.ProviderGemini:
		gen = client.Generator()
	case config.ProviderExtractive:
		gen = extractive.New(cfg.Generator.MaxSentences)
	default:
		return fmt.Errorf("unknown generator provider: %s", cfg.Generator.Provider)
	}

	emb := embedding.New(provider, embedding.Options{
		Dimension: cfg.Embedder.Dimension,
		MaxChars:  cfg.Embedder.MaxChars,
		Workers:   cfg.Embedder.Workers,
	}, logger)
	svc := service.New(
		chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap),
		emb,
		gen,
		service.Options{TopK: cfg.Retriever.TopK},
		logger,
	)
	logger.Info("docchat starting",
		"embedder", provider.Name(),
		"generator", gen.Name(),
		"dimension", emb.Dimension(),
	)

	if len(args) > 0 {
		if _, err := svc.LoadFile(ctx, args[0]); err != nil {
			return err
		}
	}

	_, err = tea.NewProgram(tui.New(svc), tea.WithAltScreen()).Run()
	svc.Cancel()
	return err
}
