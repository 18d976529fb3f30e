// Package mcptools exposes the knowledge store, deduplicated web search and
// qualification runs as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"eventqual/internal/event"
	"eventqual/internal/evidence"
	"eventqual/internal/knowledge"
	"eventqual/internal/logging"
	"eventqual/internal/qualify"
)

// Knowledge is the read side of the knowledge store.
type Knowledge interface {
	Query(ctx context.Context, q knowledge.Query) ([]knowledge.Result, error)
	Collections(ctx context.Context) ([]knowledge.CollectionInfo, error)
}

// EvidenceSource answers a query from stored knowledge or the web.
type EvidenceSource interface {
	FetchEvidence(ctx context.Context, query string, threshold float64, keywordBoost bool) evidence.Record
}

// Qualifier runs qualifications.
type Qualifier interface {
	Qualify(ctx context.Context, personName string, details event.Details) qualify.Report
	QualifyFromURL(ctx context.Context, personName, eventURL string) qualify.Report
}

// Handler is the signature of a tool handler.
type Handler = func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Tools holds the dependencies behind the tool handlers. Any of them may be
// nil; the matching tools are then not registered.
type Tools struct {
	Knowledge    Knowledge
	Evidence     EvidenceSource
	Qualifier    Qualifier
	Threshold    float64
	KeywordBoost bool
}

// NewServer builds an MCP server with every available tool registered.
func NewServer(name, version string, t *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	t.Register(s)
	return s
}

// ServeStdio serves s over stdin/stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	logging.MCP("Starting MCP server on stdio")
	return server.ServeStdio(s)
}

// Register adds the tools to s.
func (t *Tools) Register(s *server.MCPServer) {
	for _, def := range t.definitions() {
		s.AddTool(def.tool, def.handler)
		logging.MCP("Registered tool %s", def.tool.Name)
	}
}

type definition struct {
	tool    mcp.Tool
	handler Handler
}

func (t *Tools) definitions() []definition {
	var defs []definition
	if t.Knowledge != nil {
		defs = append(defs,
			definition{
				tool: mcp.NewTool("search_knowledge",
					mcp.WithDescription("Search the knowledge store of previously gathered web results"),
					mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
					mcp.WithString("mode",
						mcp.Description("Matching mode"),
						mcp.Enum(string(knowledge.ModeSimilarity), string(knowledge.ModeKeyword), string(knowledge.ModeHybrid)),
						mcp.DefaultString(string(knowledge.ModeSimilarity)),
					),
					mcp.WithNumber("limit", mcp.Description("Maximum results"), mcp.DefaultNumber(knowledge.DefaultLimit), mcp.Min(1)),
					mcp.WithNumber("alpha", mcp.Description("Hybrid weight of the vector score"), mcp.Min(0), mcp.Max(1)),
					mcp.WithString("filter", mcp.Description(`JSON filter such as {"property":"source","operator":"Equal","value":"web_search"}`)),
					mcp.WithBoolean("include_scores", mcp.Description("Return distance, similarity and score"), mcp.DefaultBool(true)),
				),
				handler: t.handleSearchKnowledge,
			},
			definition{
				tool: mcp.NewTool("list_collections",
					mcp.WithDescription("List knowledge store collections with document counts"),
				),
				handler: t.handleListCollections,
			},
		)
	}
	if t.Evidence != nil {
		defs = append(defs, definition{
			tool: mcp.NewTool("search_web_with_deduplication",
				mcp.WithDescription("Answer a query from stored knowledge when a relevant match exists, otherwise search the web and store the results"),
				mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
				mcp.WithNumber("similarity_threshold", mcp.Description("Similarity a stored match must reach"), mcp.Min(0), mcp.Max(1)),
				mcp.WithBoolean("keyword_boost", mcp.Description("Relax the threshold for lexically relevant matches")),
			),
			handler: t.handleSearchWeb,
		})
	}
	if t.Qualifier != nil {
		defs = append(defs,
			definition{
				tool: mcp.NewTool("qualify_person",
					mcp.WithDescription("Research a person and score how well they fit an event (1-10)"),
					mcp.WithString("person_name", mcp.Required(), mcp.Description("Full name of the person")),
					mcp.WithString("event_details", mcp.Description("Event as a JSON object: name, type, requirements, audience, format, date, location, description, topics")),
				),
				handler: t.handleQualify,
			},
			definition{
				tool: mcp.NewTool("qualify_person_from_url",
					mcp.WithDescription("Extract an event from its web page, then qualify a person for it"),
					mcp.WithString("person_name", mcp.Required(), mcp.Description("Full name of the person")),
					mcp.WithString("event_url", mcp.Required(), mcp.Description("URL of the event page")),
				),
				handler: t.handleQualifyFromURL,
			},
		)
	}
	return defs
}

func (t *Tools) handleSearchKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	q := knowledge.NewQuery(strings.TrimSpace(text))
	q.Mode = knowledge.Mode(strings.ToLower(req.GetString("mode", string(knowledge.ModeSimilarity))))
	if limit := int(req.GetFloat("limit", knowledge.DefaultLimit)); limit > 0 {
		q.Limit = limit
	}
	if alpha := req.GetFloat("alpha", -1); alpha >= 0 {
		q.Alpha = &alpha
	}
	q.IncludeScores = req.GetBool("include_scores", true)
	if raw := req.GetString("filter", ""); raw != "" {
		var f knowledge.Filter
		if err := json.Unmarshal([]byte(raw), &f); err != nil || f.Property == "" {
			return mcp.NewToolResultError(fmt.Sprintf("invalid filter %q", raw)), nil
		}
		q.Filter = &f
	}

	results, err := t.Knowledge.Query(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("knowledge search failed: %v", err)), nil
	}
	if results == nil {
		results = []knowledge.Result{}
	}
	return jsonResult(map[string]any{"query": q.Text, "mode": q.Mode, "count": len(results), "results": results})
}

func (t *Tools) handleListCollections(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cols, err := t.Knowledge.Collections(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing collections failed: %v", err)), nil
	}
	if cols == nil {
		cols = []knowledge.CollectionInfo{}
	}
	return jsonResult(map[string]any{"collections": cols})
}

func (t *Tools) handleSearchWeb(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	threshold := req.GetFloat("similarity_threshold", t.Threshold)
	boost := req.GetBool("keyword_boost", t.KeywordBoost)

	rec := t.Evidence.FetchEvidence(ctx, strings.TrimSpace(query), threshold, boost)
	return jsonResult(rec)
}

func (t *Tools) handleQualify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	person, err := req.RequireString("person_name")
	if err != nil || strings.TrimSpace(person) == "" {
		return mcp.NewToolResultError("person_name is required"), nil
	}
	var details event.Details
	if raw := req.GetString("event_details", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &details); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("event_details must be a JSON object: %v", err)), nil
		}
	}
	return reportResult(t.Qualifier.Qualify(ctx, person, details))
}

func (t *Tools) handleQualifyFromURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	person, err := req.RequireString("person_name")
	if err != nil || strings.TrimSpace(person) == "" {
		return mcp.NewToolResultError("person_name is required"), nil
	}
	eventURL, err := req.RequireString("event_url")
	if err != nil || strings.TrimSpace(eventURL) == "" {
		return mcp.NewToolResultError("event_url is required"), nil
	}
	return reportResult(t.Qualifier.QualifyFromURL(ctx, person, eventURL))
}

func reportResult(r qualify.Report) (*mcp.CallToolResult, error) {
	res, err := jsonResult(r)
	if err != nil {
		return nil, err
	}
	res.IsError = r.Failed()
	return res, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
