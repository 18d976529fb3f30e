package config

// LLMConfig configures the language model client.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine used by the knowledge store.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // genai, ollama, hash

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
	// TaskType for GenAI: SEMANTIC_SIMILARITY, RETRIEVAL_QUERY, RETRIEVAL_DOCUMENT
	TaskType string `yaml:"task_type"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	// Vector width of the offline hashing engine
	HashDimensions int `yaml:"hash_dimensions"`
}
