package system

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventqual/internal/config"
	"eventqual/internal/event"
	"eventqual/internal/evidence"
	"eventqual/internal/llm"
	"eventqual/internal/qualify"
	"eventqual/internal/websearch"
)

var searchNumber = regexp.MustCompile(`Search #(\d+):`)

var plannedQueries = []string{
	"Ada Lovelace keynote talks",
	"Ada Lovelace analytical engine research",
	"Ada Lovelace mathematics publications",
	"Ada Lovelace programming awards",
}

// scriptedLLM plans from plannedQueries and always scores 8.
func scriptedLLM() llm.Client {
	return llm.Func(func(_ context.Context, prompt string) (string, error) {
		if m := searchNumber.FindStringSubmatch(prompt); m != nil {
			n, _ := strconv.Atoi(m[1])
			return fmt.Sprintf(`{"query": %q}`, plannedQueries[(n-1)%len(plannedQueries)]), nil
		}
		if strings.Contains(prompt, "qualification score") {
			return "```json\n{\"score\": 8, \"reasoning\": \"Pioneering work\", \"key_qualifications\": [\"First program\"], \"missing_information\": []}\n```", nil
		}
		return "{}", nil
	})
}

type echoProvider struct {
	calls atomic.Int32
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) Search(_ context.Context, query string) (any, error) {
	p.calls.Add(1)
	slug := strings.ReplaceAll(strings.ToLower(query), " ", "-")
	return map[string]any{"organic": []any{
		map[string]any{
			"title":       query,
			"link":        "https://results.test/" + slug,
			"description": "Details about " + query,
		},
	}}, nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = ""
	cfg.Embedding.Provider = "hash"
	cfg.Knowledge.Path = filepath.Join(t.TempDir(), "kb", "knowledge.db")
	cfg.Fetch.Mode = "direct"
	return cfg
}

func TestBootWiresAgent(t *testing.T) {
	provider := &echoProvider{}
	sys, err := Boot(context.Background(), testConfig(t), WithLLM(scriptedLLM()), WithSearchProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })

	require.NotNil(t, sys.Knowledge)
	require.NotNil(t, sys.Embedder)
	assert.Equal(t, "hash:256", sys.Embedder.Name())
	assert.Equal(t, "echo", sys.Search.Tool())
	assert.Equal(t, "chain(direct_http)", sys.Fetch.Name())
	assert.NotNil(t, sys.Orchestrator)
}

func TestQualifyEndToEndReusesStoredKnowledge(t *testing.T) {
	ctx := context.Background()
	provider := &echoProvider{}
	sys, err := Boot(ctx, testConfig(t), WithLLM(scriptedLLM()), WithSearchProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })

	details := event.Details{Name: "History of Computing Summit", Requirements: []string{"Computing pioneer"}}

	first := sys.Orchestrator.Qualify(ctx, "Ada Lovelace", details)
	require.Empty(t, first.Error)
	assert.Equal(t, 8, first.QualificationScore)
	assert.Equal(t, 3, first.SearchesPerformed)
	assert.Equal(t, qualify.GatheringComplete, first.GatheringStatus)
	assert.EqualValues(t, 3, provider.calls.Load())
	for _, src := range first.InformationSources {
		assert.Equal(t, string(evidence.SourceWebSearch), src.Source)
		assert.False(t, src.FoundExisting)
	}

	second := sys.Orchestrator.Qualify(ctx, "Ada Lovelace", details)
	require.Empty(t, second.Error)
	assert.Equal(t, 3, second.SearchesPerformed)
	assert.EqualValues(t, 3, provider.calls.Load(), "second run should be answered from the store")
	for _, src := range second.InformationSources {
		assert.Equal(t, string(evidence.SourceKnowledgeStore), src.Source)
		assert.True(t, src.FoundExisting)
	}

	cols, err := sys.Knowledge.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "WebSearchResults", cols[0].Name)
	assert.Equal(t, 3, cols[0].Documents)
}

func TestBootRequiresAPIKeyWithoutLLMOverride(t *testing.T) {
	_, err := Boot(context.Background(), testConfig(t), WithSearchProvider(&echoProvider{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestBootSurvivesUnusableKnowledgeStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Knowledge.Driver = "postgres"

	sys, err := Boot(context.Background(), cfg, WithLLM(scriptedLLM()), WithSearchProvider(&echoProvider{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })
	assert.Nil(t, sys.Knowledge)

	report := sys.Orchestrator.Qualify(context.Background(), "Ada Lovelace", event.Details{})
	require.Empty(t, report.Error)
	assert.Equal(t, 3, report.SearchesPerformed)
}

func TestNewSearchProvider(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Search.Provider = "duckduckgo"
	p, err := NewSearchProvider(cfg)
	require.NoError(t, err)
	assert.IsType(t, &websearch.DuckDuckGoProvider{}, p)

	cfg.Search.Provider = "news"
	p, err = NewSearchProvider(cfg)
	require.NoError(t, err)
	assert.IsType(t, &websearch.NewsProvider{}, p)

	cfg.Search.Provider = "brightdata"
	cfg.Search.BrightDataToken = ""
	_, err = NewSearchProvider(cfg)
	assert.Error(t, err)

	cfg.Search.BrightDataToken = "token"
	p, err = NewSearchProvider(cfg)
	require.NoError(t, err)
	assert.IsType(t, &websearch.BrightDataProvider{}, p)

	cfg.Search.Provider = "bing"
	_, err = NewSearchProvider(cfg)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	sys, err := Boot(context.Background(), testConfig(t), WithLLM(scriptedLLM()), WithSearchProvider(&echoProvider{}))
	require.NoError(t, err)
	require.NoError(t, sys.Close())
	require.NoError(t, sys.Close())

	var nilSys *System
	assert.NoError(t, nilSys.Close())
}
