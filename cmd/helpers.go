package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/config"
	"github.com/lifelink/copilot/internal/embeddings"
	"github.com/lifelink/copilot/internal/llm"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `copilot init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Verbose mode switches to the
// development encoder with debug level enabled.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
// Shared by the serve, ingest, and mcp commands.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.Embedding.Provider
	if provider == "" {
		provider = cfg.LLM.Provider
	}
	model := cfg.Embedding.Model
	if model == "" {
		model = config.GetPreset(provider).EmbeddingModel
	}

	switch provider {
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, 768, ""), nil
	default:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model)), nil
	}
}

// createLLMProviderFromConfig creates an LLM provider based on config settings.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	provider, err := llm.NewProvider(string(cfg.LLM.Provider), cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.RequestsPerMinute > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.LLM.RequestsPerMinute)
	}
	return provider, nil
}
