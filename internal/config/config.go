// Package config loads and validates eventqual configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all eventqual configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Language model used for query planning, scoring and event extraction
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine backing the knowledge store
	Embedding EmbeddingConfig `yaml:"embedding"`

	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Search    SearchConfig    `yaml:"search"`
	Fetch     FetchConfig     `yaml:"fetch"`

	// Gathering loop and scoring
	Agent AgentConfig `yaml:"agent"`

	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "eventqual",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			Temperature: 0.1,
			Timeout:     "60s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "genai",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			HashDimensions: 256,
		},

		Knowledge: KnowledgeConfig{
			Driver:     "sqlite",
			Path:       ".eventqual/knowledge.db",
			Collection: "WebSearchResults",
			Limit:      5,
			Alpha:      0.75,
			Timeout:    "15s",
		},

		Search: SearchConfig{
			Provider:           "brightdata",
			BrightDataEndpoint: "https://api.brightdata.com",
			BrightDataZone:     "serp_api1",
			Country:            "us",
			Timeout:            "30s",
		},

		Fetch: FetchConfig{
			Mode:            "auto",
			UnlockerZone:    "unblocker",
			Headless:        true,
			NavTimeout:      "30s",
			Timeout:         "30s",
			CacheTTL:        "15m",
			MaxContentChars: 4000,
		},

		Agent: AgentConfig{
			RequiredEvidence:    3,
			MaxRounds:           10,
			SimilarityThreshold: 0.6,
			KeywordBoost:        true,
			EvidenceCharBudget:  3000,
			PlannerTimeout:      "30s",
			GatherTimeout:       "60s",
			ScoringTimeout:      "60s",
			ExtractTimeout:      "90s",
		},

		Server: ServerConfig{
			Addr:              ":8000",
			MaxConcurrentRuns: 4,
			CORSOrigins:       []string{"*"},
			ShutdownTimeout:   "10s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// GOOGLE_API_KEY first so GEMINI_API_KEY wins when both are set
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if c.LLM.APIKey != "" && c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("GENAI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = c.LLM.APIKey
	}

	if token := os.Getenv("BRIGHTDATA_API_TOKEN"); token != "" {
		c.Search.BrightDataToken = token
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}

	if path := os.Getenv("EVENTQUAL_DB"); path != "" {
		c.Knowledge.Path = path
	}

	if level := os.Getenv("EVENTQUAL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
}

// GetLLMTimeout returns the per-call LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetKnowledgeTimeout returns the knowledge store call timeout.
func (c *Config) GetKnowledgeTimeout() time.Duration {
	return parseDuration(c.Knowledge.Timeout, 15*time.Second)
}

// GetSearchTimeout returns the web search call timeout.
func (c *Config) GetSearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 30*time.Second)
}

// GetFetchTimeout returns the page fetch timeout.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDuration(c.Fetch.Timeout, 30*time.Second)
}

// GetNavTimeout returns the browser navigation timeout.
func (c *Config) GetNavTimeout() time.Duration {
	return parseDuration(c.Fetch.NavTimeout, 30*time.Second)
}

// GetFetchCacheTTL returns how long fetched pages stay cached.
func (c *Config) GetFetchCacheTTL() time.Duration {
	return parseDuration(c.Fetch.CacheTTL, 15*time.Minute)
}

// GetShutdownTimeout returns the graceful shutdown window for the HTTP server.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidProviders lists the supported values per pluggable section.
var (
	ValidLLMProviders       = []string{"gemini"}
	ValidEmbeddingProviders = []string{"genai", "ollama", "hash"}
	ValidSearchProviders    = []string{"brightdata", "duckduckgo", "news"}
	ValidFetchModes         = []string{"auto", "unlocker", "direct", "browser"}
	ValidKnowledgeDrivers   = []string{"sqlite", "sqlite3"}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or GOOGLE_API_KEY)")
	}
	if !contains(ValidLLMProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidLLMProviders)
	}
	if !contains(ValidEmbeddingProviders, c.Embedding.Provider) {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}
	if !contains(ValidSearchProviders, c.Search.Provider) {
		return fmt.Errorf("invalid search provider: %s (valid: %v)", c.Search.Provider, ValidSearchProviders)
	}
	if c.Search.Provider == "brightdata" && c.Search.BrightDataToken == "" {
		return fmt.Errorf("brightdata search requires an API token (set BRIGHTDATA_API_TOKEN)")
	}
	if !contains(ValidFetchModes, c.Fetch.Mode) {
		return fmt.Errorf("invalid fetch mode: %s (valid: %v)", c.Fetch.Mode, ValidFetchModes)
	}
	if !contains(ValidKnowledgeDrivers, c.Knowledge.Driver) {
		return fmt.Errorf("invalid knowledge driver: %s (valid: %v)", c.Knowledge.Driver, ValidKnowledgeDrivers)
	}
	if c.Knowledge.Alpha < 0 || c.Knowledge.Alpha > 1 {
		return fmt.Errorf("knowledge.alpha must be within [0,1], got %v", c.Knowledge.Alpha)
	}
	if c.Agent.RequiredEvidence < 1 {
		return fmt.Errorf("agent.required_evidence must be positive, got %d", c.Agent.RequiredEvidence)
	}
	if c.Agent.MaxRounds < c.Agent.RequiredEvidence {
		return fmt.Errorf("agent.max_rounds (%d) must be >= agent.required_evidence (%d)",
			c.Agent.MaxRounds, c.Agent.RequiredEvidence)
	}
	if c.Agent.SimilarityThreshold < 0 || c.Agent.SimilarityThreshold > 1 {
		return fmt.Errorf("agent.similarity_threshold must be within [0,1], got %v", c.Agent.SimilarityThreshold)
	}
	if c.Server.MaxConcurrentRuns < 1 {
		return fmt.Errorf("server.max_concurrent_runs must be positive, got %d", c.Server.MaxConcurrentRuns)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
