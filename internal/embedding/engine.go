// Package embedding provides vector embedding generation for the knowledge store.
// Supports Google GenAI (cloud), Ollama (local) and a deterministic hashing engine.
package embedding

import (
	"context"
	"fmt"
	"math"

	"eventqual/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates embeddings for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// QueryEmbedder is implemented by engines that embed search queries
// differently from stored documents (asymmetric retrieval task types).
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// HealthChecker is an optional interface for engines backed by a service
// that can be probed before use.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbedQuery embeds a query with the engine's query task type when it has one.
func EmbedQuery(ctx context.Context, e EmbeddingEngine, text string) ([]float32, error) {
	if qe, ok := e.(QueryEmbedder); ok {
		return qe.EmbedQuery(ctx, text)
	}
	return e.Embed(ctx, text)
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "genai", "ollama" or "hash"
	Provider string

	// GenAI Configuration
	GenAIAPIKey string
	GenAIModel  string // Default: "gemini-embedding-001"
	// TaskType for GenAI: "SEMANTIC_SIMILARITY" or "RETRIEVAL" (query/document split)
	TaskType string

	// Ollama Configuration
	OllamaEndpoint string // Default: "http://localhost:11434"
	OllamaModel    string // Default: "embeddinggemma"

	// Hash Configuration
	HashDimensions int // Default: 256
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:       "genai",
		GenAIModel:     "gemini-embedding-001",
		TaskType:       "SEMANTIC_SIMILARITY",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		HashDimensions: 256,
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(ctx context.Context, cfg Config) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)
	logging.EmbeddingDebug("Engine config: provider=%s, genai_model=%s, task_type=%s, ollama_endpoint=%s, ollama_model=%s",
		cfg.Provider, cfg.GenAIModel, cfg.TaskType, cfg.OllamaEndpoint, cfg.OllamaModel)

	var engine EmbeddingEngine
	var err error

	switch cfg.Provider {
	case "genai":
		engine, err = NewGenAIEngine(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "hash":
		engine = NewHashEngine(cfg.HashDimensions)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'genai', 'ollama' or 'hash')", cfg.Provider)
		logging.Get(logging.CategoryEmbedding).Error("Unsupported embedding provider: %s", cfg.Provider)
		return nil, err
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		aMagnitude += float64(a[i]) * float64(a[i])
		bMagnitude += float64(b[i]) * float64(b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}
