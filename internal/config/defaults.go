package config

// ModelPreset describes the model pair for a provider.
type ModelPreset struct {
	Model          string
	EmbeddingModel string
}

// modelPresets maps each provider to its recommended models.
var modelPresets = map[ProviderType]ModelPreset{
	ProviderOpenAI: {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-small"},
	ProviderOllama: {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8090",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path:      "copilot.db",
			VectorDir: "vectors",
		},
		Backend: BackendConfig{
			URL:            "http://localhost:8080",
			TimeoutSeconds: 15,
		},
		LLM: LLMConfig{
			Provider: ProviderOpenAI,
			Model:    "gpt-4o",
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOpenAI,
			Model:    "text-embedding-3-small",
		},
		Retrieval: RetrievalConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
			TopK:         5,
			Threshold:    0.7,
		},
		Worker: WorkerConfig{
			Workers:    4,
			QueueDepth: 64,
		},
	}
}

// GetPreset returns the model preset for a provider, falling back to the
// OpenAI pair for unknown providers.
func GetPreset(provider ProviderType) ModelPreset {
	if preset, ok := modelPresets[provider]; ok {
		return preset
	}
	return modelPresets[ProviderOpenAI]
}
