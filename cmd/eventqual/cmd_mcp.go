package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eventqual/internal/mcptools"
	"eventqual/internal/system"
)

// mcpCmd serves the agent as MCP tools over stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	Long: `Exposes search_knowledge, list_collections, search_web_with_deduplication,
qualify_person and qualify_person_from_url to an MCP client over stdin/stdout.
Logs go to stderr or the configured log file.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	sys, err := system.Boot(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to boot: %w", err)
	}
	defer sys.Close()

	tools := &mcptools.Tools{
		Evidence:     sys.Dedup,
		Qualifier:    sys.Orchestrator,
		Threshold:    cfg.Agent.SimilarityThreshold,
		KeywordBoost: cfg.Agent.KeywordBoost,
	}
	if sys.Knowledge != nil {
		tools.Knowledge = sys.Knowledge
	}
	return mcptools.ServeStdio(mcptools.NewServer(cfg.Name, Version, tools))
}
