package config

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level service configuration, corresponding to
// copilot.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Database  DatabaseConfig  `yaml:"database" koanf:"database"`
	Backend   BackendConfig   `yaml:"backend" koanf:"backend"`
	LLM       LLMConfig       `yaml:"llm" koanf:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Worker    WorkerConfig    `yaml:"worker" koanf:"worker"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr" koanf:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
}

// DatabaseConfig holds the SQLite path and the vector index directory.
type DatabaseConfig struct {
	Path      string `yaml:"path" koanf:"path"`
	VectorDir string `yaml:"vector_dir" koanf:"vector_dir"`
}

// BackendConfig points at the operational backend the tools call.
type BackendConfig struct {
	URL            string `yaml:"url" koanf:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" koanf:"timeout_seconds"`
}

// LLMConfig selects the chat model. RequestsPerMinute of zero disables
// client-side rate limiting.
type LLMConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// EmbeddingConfig selects the embedding model used for document indexing.
type EmbeddingConfig struct {
	Provider ProviderType `yaml:"provider" koanf:"provider"`
	Model    string       `yaml:"model" koanf:"model"`
}

// RetrievalConfig tunes chunking and search.
type RetrievalConfig struct {
	ChunkSize    int     `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	TopK         int     `yaml:"top_k" koanf:"top_k"`
	Threshold    float64 `yaml:"threshold" koanf:"threshold"`
}

// WorkerConfig tunes the background pool.
type WorkerConfig struct {
	Workers    int `yaml:"workers" koanf:"workers"`
	QueueDepth int `yaml:"queue_depth" koanf:"queue_depth"`
}
