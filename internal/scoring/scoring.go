// Package scoring asks a model to rate how well a person fits an event and
// turns whatever it answers into a valid score.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"eventqual/internal/event"
	"eventqual/internal/evidence"
	"eventqual/internal/jsonx"
	"eventqual/internal/llm"
	"eventqual/internal/logging"
)

const (
	// DefaultCharBudget bounds the evidence text placed in the prompt.
	DefaultCharBudget = 3000
	// NeutralScore is used whenever the model's answer cannot be trusted.
	NeutralScore = 5
	MinScore     = 1
	MaxScore     = 10
)

// Result is a validated qualification score.
type Result struct {
	Score              int      `json:"score"`
	Reasoning          string   `json:"reasoning"`
	KeyQualifications  []string `json:"key_qualifications"`
	MissingInformation []string `json:"missing_information"`
}

// Options tune a Scorer.
type Options struct {
	CharBudget int
	Timeout    time.Duration
}

// Scorer scores a person against an event from gathered evidence.
type Scorer struct {
	llm  llm.Client
	opts Options
}

// New creates a Scorer.
func New(client llm.Client, opts Options) *Scorer {
	if opts.CharBudget <= 0 {
		opts.CharBudget = DefaultCharBudget
	}
	return &Scorer{llm: client, opts: opts}
}

// Score always returns a result with a score in [1,10].
func (s *Scorer) Score(ctx context.Context, person string, details event.Details, records []evidence.Record) Result {
	timer := logging.StartTimer(logging.CategoryScoring, "Score")
	defer timer.Stop()

	compiled := Compile(person, records)
	prompt := BuildPrompt(person, details, truncate(compiled, s.opts.CharBudget))

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		logging.ScoringWarn("Scoring call failed for %s: %v", person, err)
		return Result{
			Score:              NeutralScore,
			Reasoning:          fmt.Sprintf("Error in scoring process: %v. Data was collected but scoring failed.", err),
			KeyQualifications:  []string{},
			MissingInformation: []string{"Unable to process information"},
		}
	}

	res := Parse(raw, evidence.CountWithPayload(records) > 0)
	logging.Scoring("Scored %s: %d/10", person, res.Score)
	return res
}

// Compile joins the evidence payload into prompt text. Items with content
// contribute it verbatim; others contribute "title: snippet" or the title.
func Compile(person string, records []evidence.Record) string {
	var parts []string
	for _, r := range records {
		for _, item := range r.Payload {
			var piece string
			switch {
			case item.Content != "":
				piece = item.Content
			case item.Snippet != "":
				piece = item.Title + ": " + item.Snippet
			default:
				piece = item.Title
			}
			if piece != "" {
				parts = append(parts, piece)
			}
		}
	}

	compiled := strings.Join(parts, "\n\n")
	if strings.TrimSpace(compiled) == "" {
		return fmt.Sprintf("Limited information found for %s.", person)
	}
	return compiled
}

// BuildPrompt renders the scoring prompt.
func BuildPrompt(person string, details event.Details, info string) string {
	eventJSON, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		eventJSON = []byte("{}")
	}

	return fmt.Sprintf(`Analyze the following information and provide a qualification score.

PERSON: %s

EVENT DETAILS:
%s

INFORMATION FOUND:
%s

Provide a score from 1-10 where:
- 1-3: Not qualified
- 4-5: Minimally qualified
- 6-7: Well qualified
- 8-9: Highly qualified
- 10: Exceptionally qualified

YOU MUST RESPOND WITH ONLY A VALID JSON OBJECT, nothing else:
{"score": 5, "reasoning": "explanation here", "key_qualifications": ["qual1", "qual2"], "missing_information": ["info1", "info2"]}
`, person, eventJSON, info)
}

// Parse extracts and validates a score from model output. contentFound is
// reported in the reasoning when nothing parseable came back.
func Parse(raw string, contentFound bool) Result {
	m, err := jsonx.Object(raw)
	if err != nil {
		logging.ScoringWarn("Could not parse scoring response: %v", err)
		return Result{
			Score:              NeutralScore,
			Reasoning:          fmt.Sprintf("Could not parse LLM response. Content found: %t", contentFound),
			KeyQualifications:  []string{},
			MissingInformation: []string{"Unable to process response"},
		}
	}

	res := Result{
		Score:              NeutralScore,
		Reasoning:          "Unable to determine reasoning",
		KeyQualifications:  stringList(m["key_qualifications"]),
		MissingInformation: stringList(m["missing_information"]),
	}
	if r, ok := m["reasoning"].(string); ok {
		res.Reasoning = r
	}

	if v, present := m["score"]; present {
		score, ok := integer(v)
		if !ok || score < MinScore || score > MaxScore {
			logging.ScoringWarn("Model returned out-of-range score %v, using %d", v, NeutralScore)
			res.Reasoning = "Score adjusted to valid range. " + res.Reasoning
			score = NeutralScore
		}
		res.Score = score
	}
	return res
}

func integer(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(i), true
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
