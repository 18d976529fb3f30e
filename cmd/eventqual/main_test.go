package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventqual/internal/event"
	"eventqual/internal/qualify"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "embedding:\n  provider: hash\n  hash_dimensions: 64\n" +
		"knowledge:\n  path: " + filepath.Join(dir, "kb.db") + "\n" +
		"logging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}

func TestCommandTree(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "qualify", "qualify-url", "knowledge", "mcp", "version"} {
		assert.Contains(t, names, want)
	}

	var sub []string
	for _, c := range knowledgeCmd.Commands() {
		sub = append(sub, c.Name())
	}
	assert.ElementsMatch(t, []string{"search", "collections", "ingest"}, sub)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "eventqual dev\n", out)
}

func TestQualifyRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := execute(t, "qualify", "--config", writeConfig(t), "Ada Lovelace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestKnowledgeIngestSearchCollections(t *testing.T) {
	cfgPath := writeConfig(t)
	payload := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{"organic": [
		{"title": "Ada Lovelace keynote", "link": "https://talks.test/ada", "description": "Ada on the analytical engine"},
		{"title": "Search page", "link": "https://www.google.com/search?q=ada"},
		{"title": "", "link": "https://talks.test/untitled"}
	]}`), 0644))

	out, err := execute(t, "knowledge", "ingest", "--config", cfgPath, "--query", "Ada Lovelace keynote", payload)
	require.NoError(t, err)
	assert.Contains(t, out, "Inserted 1, skipped 0 duplicate(s)")

	out, err = execute(t, "knowledge", "ingest", "--config", cfgPath, "--query", "Ada Lovelace keynote", payload)
	require.NoError(t, err)
	assert.Contains(t, out, "Inserted 0, skipped 1 duplicate(s)")

	out, err = execute(t, "knowledge", "search", "--config", cfgPath, "--mode", "keyword", "--limit", "5", "Ada keynote")
	require.NoError(t, err)
	assert.Contains(t, out, "1 result(s)")
	assert.Contains(t, out, "Ada Lovelace keynote")
	assert.Contains(t, out, "https://talks.test/ada")

	out, err = execute(t, "knowledge", "collections", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "WebSearchResults")
	assert.Contains(t, out, "1 documents")
}

func TestKnowledgeSearchBadFilter(t *testing.T) {
	_, err := execute(t, "knowledge", "search", "--config", writeConfig(t), "--mode", "similarity", "--filter", "{", "ada")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --filter")
	searchFilter = ""
}

func TestEventFromFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"From File","date":"2026-09-01","requirements":"Go"}`), 0644))

	eventFile, eventName, eventLocation = path, "", "Berlin"
	eventTopics = []string{"concurrency"}
	t.Cleanup(func() {
		eventFile, eventLocation, eventTopics = "", "", nil
	})

	d, err := eventFromFlags()
	require.NoError(t, err)
	assert.Equal(t, "From File", d.Name)
	assert.Equal(t, "2026-09-01", d.Date)
	assert.Equal(t, "Berlin", d.Location)
	assert.Equal(t, []string{"Go"}, d.Requirements)
	assert.Equal(t, []string{"concurrency"}, d.Topics)

	eventFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = eventFromFlags()
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	d := event.Defaults("").Normalize()
	report := qualify.Report{
		PersonName:         "Ada Lovelace",
		EventDetails:       &d,
		QualificationScore: 9,
		InformationSources: []qualify.InformationSource{},
		Timestamp:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, report))
	assert.Contains(t, buf.String(), "9/10 highly qualified")
	assert.Contains(t, buf.String(), "Ada Lovelace")

	outputJSON = true
	t.Cleanup(func() { outputJSON = false })
	buf.Reset()
	require.NoError(t, printReport(&buf, report))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.EqualValues(t, 9, decoded["qualification_score"])

	outputJSON = false
	buf.Reset()
	require.NoError(t, printReport(&buf, qualify.Report{Error: "Agent execution failed: boom"}))
	assert.True(t, strings.Contains(buf.String(), "error: Agent execution failed: boom"))
}
