// Package system wires every eventqual component from configuration.
package system

import (
	"context"
	"fmt"
	"net/http"

	"eventqual/internal/config"
	"eventqual/internal/dedup"
	"eventqual/internal/embedding"
	"eventqual/internal/event"
	"eventqual/internal/fetch"
	"eventqual/internal/knowledge"
	"eventqual/internal/llm"
	"eventqual/internal/logging"
	"eventqual/internal/qualify"
	"eventqual/internal/retry"
	"eventqual/internal/scoring"
	"eventqual/internal/websearch"
)

// System is a fully wired agent.
type System struct {
	Config *config.Config

	Embedder     embedding.EmbeddingEngine
	Knowledge    *knowledge.SQLiteStore
	Search       *websearch.Connector
	Dedup        *dedup.Deduplicator
	Fetch        *fetch.Service
	LLM          llm.Client
	Scorer       *scoring.Scorer
	Extractor    *event.Extractor
	Orchestrator *qualify.Orchestrator
}

// Option overrides a component Boot would otherwise build from config.
type Option func(*overrides)

type overrides struct {
	llm      llm.Client
	provider websearch.Provider
	embedder embedding.EmbeddingEngine
}

// WithLLM uses client instead of a Gemini client.
func WithLLM(client llm.Client) Option {
	return func(o *overrides) { o.llm = client }
}

// WithSearchProvider uses p instead of the configured search provider.
func WithSearchProvider(p websearch.Provider) Option {
	return func(o *overrides) { o.provider = p }
}

// WithEmbedder uses e instead of the configured embedding engine.
func WithEmbedder(e embedding.EmbeddingEngine) Option {
	return func(o *overrides) { o.embedder = e }
}

// Boot builds the agent. An unavailable knowledge store is not fatal: the
// agent then searches the web every round.
func Boot(ctx context.Context, cfg *config.Config, opts ...Option) (*System, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "Boot")
	defer timer.Stop()

	var ov overrides
	for _, opt := range opts {
		opt(&ov)
	}

	s := &System{Config: cfg}

	// 1. Language model
	s.LLM = ov.llm
	if s.LLM == nil {
		client, err := llm.NewGenAIClient(ctx, llm.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.GetLLMTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		s.LLM = llm.Traced(client, logging.CategoryAPI)
	}

	// 2. Knowledge store
	s.Embedder = ov.embedder
	store, engine, err := OpenKnowledge(ctx, cfg, s.Embedder)
	if err != nil {
		logging.StoreWarn("Knowledge store unavailable, every round will search the web: %v", err)
	} else {
		s.Knowledge, s.Embedder = store, engine
	}

	// 3. Web search
	provider := ov.provider
	if provider == nil {
		provider, err = NewSearchProvider(cfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create search provider: %w", err)
		}
	}
	s.Search = websearch.NewConnector(provider, cfg.GetSearchTimeout())

	var dedupStore dedup.Store
	if s.Knowledge != nil {
		dedupStore = s.Knowledge
	}
	s.Dedup = dedup.New(dedupStore, s.Search, dedup.Options{
		Collection: cfg.Knowledge.Collection,
		Retry:      retry.DefaultConfig(),
	})

	// 4. Event pages
	s.Fetch, err = fetch.New(fetch.Options{
		Mode:               cfg.Fetch.Mode,
		BrightDataEndpoint: cfg.Search.BrightDataEndpoint,
		BrightDataToken:    cfg.Search.BrightDataToken,
		UnlockerZone:       cfg.Fetch.UnlockerZone,
		Headless:           cfg.Fetch.Headless,
		DebuggerURL:        cfg.Fetch.DebuggerURL,
		NavTimeout:         cfg.GetNavTimeout(),
		Timeout:            cfg.GetFetchTimeout(),
		CacheTTL:           cfg.GetFetchCacheTTL(),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create fetch service: %w", err)
	}
	s.Extractor = event.NewExtractor(s.Fetch, s.LLM, cfg.Fetch.MaxContentChars)

	// 5. Agent
	timeouts := cfg.Agent.Timeouts()
	s.Scorer = scoring.New(s.LLM, scoring.Options{
		CharBudget: cfg.Agent.EvidenceCharBudget,
		Timeout:    timeouts.Scoring,
	})
	s.Orchestrator = qualify.New(
		qualify.NewPlanner(s.LLM, timeouts.Planner),
		s.Dedup,
		s.Scorer,
		s.Extractor,
		qualify.Options{
			RequiredEvidence:    cfg.Agent.RequiredEvidence,
			MaxRounds:           cfg.Agent.MaxRounds,
			SimilarityThreshold: cfg.Agent.SimilarityThreshold,
			KeywordBoost:        cfg.Agent.KeywordBoost,
			GatherTimeout:       timeouts.Gather,
			ExtractTimeout:      timeouts.Extract,
		},
	)

	logging.Boot("System ready: search=%s fetch=%s knowledge=%v", s.Search.Tool(), s.Fetch.Name(), s.Knowledge != nil)
	return s, nil
}

// OpenKnowledge opens the configured knowledge store. A nil engine is
// created from the embedding config; when that fails the store opens
// without vectors and only keyword queries work.
func OpenKnowledge(ctx context.Context, cfg *config.Config, engine embedding.EmbeddingEngine) (*knowledge.SQLiteStore, embedding.EmbeddingEngine, error) {
	if engine == nil {
		e, err := embedding.NewEngine(ctx, embedding.Config{
			Provider:       cfg.Embedding.Provider,
			GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
			GenAIModel:     cfg.Embedding.GenAIModel,
			TaskType:       cfg.Embedding.TaskType,
			OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
			OllamaModel:    cfg.Embedding.OllamaModel,
			HashDimensions: cfg.Embedding.HashDimensions,
		})
		if err == nil {
			if hc, ok := e.(embedding.HealthChecker); ok {
				err = hc.HealthCheck(ctx)
			}
		}
		if err != nil {
			logging.BootWarn("Embedding engine unavailable, knowledge store is keyword-only: %v", err)
		} else {
			engine = e
		}
	}

	store, err := knowledge.Open(ctx, knowledge.Options{
		Driver:     cfg.Knowledge.Driver,
		Path:       cfg.Knowledge.Path,
		Collection: cfg.Knowledge.Collection,
		Alpha:      cfg.Knowledge.Alpha,
		Timeout:    cfg.GetKnowledgeTimeout(),
		Embedder:   engine,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, engine, nil
}

// NewSearchProvider builds the configured web search provider.
func NewSearchProvider(cfg *config.Config) (websearch.Provider, error) {
	switch cfg.Search.Provider {
	case "brightdata", "":
		p, err := websearch.NewBrightDataProvider(websearch.BrightDataConfig{
			Endpoint: cfg.Search.BrightDataEndpoint,
			Token:    cfg.Search.BrightDataToken,
			Zone:     cfg.Search.BrightDataZone,
			Country:  cfg.Search.Country,
			Client:   &http.Client{Timeout: cfg.GetSearchTimeout()},
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "duckduckgo":
		return websearch.NewDuckDuckGoProvider(), nil
	case "news":
		return websearch.NewNewsProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s (use 'brightdata', 'duckduckgo' or 'news')", cfg.Search.Provider)
	}
}
