package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eventqual/internal/dedup"
	"eventqual/internal/knowledge"
	"eventqual/internal/system"
	"eventqual/internal/websearch"
)

var (
	searchMode          string
	searchLimit         int
	searchAlpha         float64
	searchFilter        string
	searchNoScores      bool
	knowledgeCollection string

	ingestQuery string
	ingestTool  string
)

// knowledgeCmd groups knowledge store commands
var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and load the knowledge store",
	Long: `Inspect and load the knowledge store of gathered web results.

Subcommands:
  search       - Query the store (similarity, keyword or hybrid)
  collections  - List collections with document counts
  ingest       - Load a saved search payload (JSON) into the store`,
}

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the knowledge store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKnowledgeSearch,
}

var knowledgeCollectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections",
	RunE:  runKnowledgeCollections,
}

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest <payload.json>",
	Short: "Load a saved search payload into the store",
	Long: `Reads a search payload (an object with "organic" or "results", or a plain
list of {title, url|link, snippet|description}) and stores each usable result
under --query. Results already stored are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runKnowledgeIngest,
}

func init() {
	knowledgeSearchCmd.Flags().StringVar(&searchMode, "mode", string(knowledge.ModeSimilarity), "similarity, keyword or hybrid")
	knowledgeSearchCmd.Flags().IntVar(&searchLimit, "limit", knowledge.DefaultLimit, "Maximum results")
	knowledgeSearchCmd.Flags().Float64Var(&searchAlpha, "alpha", -1, "Hybrid vector weight in [0,1] (default from config)")
	knowledgeSearchCmd.Flags().StringVar(&searchFilter, "filter", "", `JSON filter, e.g. {"property":"source","operator":"Equal","value":"web_search"}`)
	knowledgeSearchCmd.Flags().BoolVar(&searchNoScores, "no-scores", false, "Omit distance, similarity and score")

	knowledgeIngestCmd.Flags().StringVar(&ingestQuery, "query", "", "Search query the payload answered (required)")
	knowledgeIngestCmd.Flags().StringVar(&ingestTool, "tool", "manual_import", "Provenance tag stored with each result")
	_ = knowledgeIngestCmd.MarkFlagRequired("query")

	knowledgeCmd.PersistentFlags().StringVar(&knowledgeCollection, "collection", "", "Collection (default from config)")
	knowledgeCmd.AddCommand(knowledgeSearchCmd)
	knowledgeCmd.AddCommand(knowledgeCollectionsCmd)
	knowledgeCmd.AddCommand(knowledgeIngestCmd)
}

// withKnowledge opens the store alone; no model or search credentials are needed.
func withKnowledge(cmd *cobra.Command, fn func(ctx context.Context, store *knowledge.SQLiteStore) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	store, _, err := system.OpenKnowledge(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer store.Close()
	return fn(ctx, store)
}

func runKnowledgeSearch(cmd *cobra.Command, args []string) error {
	q := knowledge.NewQuery(strings.Join(args, " "))
	q.Mode = knowledge.Mode(strings.ToLower(searchMode))
	q.Limit = searchLimit
	q.IncludeScores = !searchNoScores
	q.Collection = knowledgeCollection
	if searchAlpha >= 0 {
		q.Alpha = &searchAlpha
	}
	if searchFilter != "" {
		var f knowledge.Filter
		if err := json.Unmarshal([]byte(searchFilter), &f); err != nil {
			return fmt.Errorf("invalid --filter: %w", err)
		}
		q.Filter = &f
	}

	return withKnowledge(cmd, func(ctx context.Context, store *knowledge.SQLiteStore) error {
		results, err := store.Query(ctx, q)
		if err != nil {
			return err
		}
		printResults(cmd.OutOrStdout(), results)
		return nil
	})
}

func printResults(w io.Writer, results []knowledge.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching knowledge.")
		return
	}
	fmt.Fprintf(w, "%d result(s)\n", len(results))
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for i, r := range results {
		line := fmt.Sprintf("%d. %s", i+1, r.Title)
		if r.Similarity != nil {
			line += fmt.Sprintf("  (similarity %.3f)", *r.Similarity)
		} else if r.Score != nil {
			line += fmt.Sprintf("  (score %.3f)", *r.Score)
		}
		fmt.Fprintln(w, line)
		if r.URL != "" {
			fmt.Fprintf(w, "   %s\n", r.URL)
		}
		if r.Snippet != "" {
			fmt.Fprintf(w, "   %s\n", r.Snippet)
		}
	}
}

func runKnowledgeCollections(cmd *cobra.Command, args []string) error {
	return withKnowledge(cmd, func(ctx context.Context, store *knowledge.SQLiteStore) error {
		cols, err := store.Collections(ctx)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(cols) == 0 {
			fmt.Fprintln(w, "No collections.")
			return nil
		}
		for _, c := range cols {
			fmt.Fprintf(w, "%-30s %d documents\n", c.Name, c.Documents)
		}
		return nil
	})
}

func runKnowledgeIngest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	now := time.Now()
	docs := dedup.BuildDocuments(ingestQuery, websearch.Result{Success: true, Query: ingestQuery, Raw: raw, Timestamp: now},
		ingestTool, knowledgeCollection, now)
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No usable results in payload.")
		return nil
	}

	return withKnowledge(cmd, func(ctx context.Context, store *knowledge.SQLiteStore) error {
		res, err := store.Upsert(ctx, docs)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d, skipped %d duplicate(s)\n", res.Inserted, res.Skipped)
		return nil
	})
}
