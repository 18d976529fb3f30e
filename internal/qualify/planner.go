package qualify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"eventqual/internal/event"
	"eventqual/internal/jsonx"
	"eventqual/internal/llm"
	"eventqual/internal/logging"
)

// FocusAreas are the angles the planner is steered toward, in rotation order.
var FocusAreas = []string{
	"professional background and current role",
	"expertise and skills",
	"achievements or publications",
	"speaking experience",
	"education",
}

// PlanInput is what the planner knows when choosing the next query.
type PlanInput struct {
	Person    string
	Details   event.Details
	Completed int      // rounds that produced evidence
	Previous  []string // queries already issued
	Round     int      // zero-based round index
}

// Planner asks the model for the next search query.
type Planner struct {
	llm     llm.Client
	timeout time.Duration
}

// NewPlanner creates a planner. A nil client always uses the fallback query.
func NewPlanner(client llm.Client, timeout time.Duration) *Planner {
	return &Planner{llm: client, timeout: timeout}
}

// Plan returns the next query. fallback is true when the model's answer was
// unusable and the deterministic query was used instead.
func (p *Planner) Plan(ctx context.Context, in PlanInput) (query string, fallback bool) {
	if p.llm == nil {
		return FallbackQuery(in.Person, in.Round), true
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := p.llm.Complete(ctx, PlannerPrompt(in))
	if err != nil {
		logging.AgentWarn("Planner call failed, using fallback query: %v", err)
		return FallbackQuery(in.Person, in.Round), true
	}

	var out struct {
		Query string `json:"query"`
	}
	if err := jsonx.Decode(raw, &out); err != nil || strings.TrimSpace(out.Query) == "" {
		logging.AgentWarn("Planner returned no usable query, using fallback")
		return FallbackQuery(in.Person, in.Round), true
	}
	return strings.TrimSpace(out.Query), false
}

// FallbackQuery is the deterministic query for round.
func FallbackQuery(person string, round int) string {
	if round < 0 {
		round = 0
	}
	return person + " " + FocusAreas[round%len(FocusAreas)]
}

// PlannerPrompt renders the query-planning prompt.
func PlannerPrompt(in PlanInput) string {
	eventJSON, err := json.MarshalIndent(in.Details, "", "  ")
	if err != nil {
		eventJSON = []byte("{}")
	}

	previous := "none"
	if len(in.Previous) > 0 {
		previous = "- " + strings.Join(in.Previous, "\n- ")
	}

	var focus strings.Builder
	for _, area := range FocusAreas {
		focus.WriteString("- ")
		focus.WriteString(area)
		focus.WriteString("\n")
	}

	return fmt.Sprintf(`You are helping to qualify %[1]s for an event.

Event Details: %[2]s

Information gathered so far: %[3]d searches completed.

Queries already used:
%[4]s

Search #%[5]d:
Choose a web search query for specific information about %[1]s that would help determine their qualification for this event.

Focus areas based on what we need:
%[6]s
Do not repeat a previous query. If searching for "%[1]s" directly, include their company or field if known.

Respond with ONLY a JSON object: {"query": "your search query"}
`, in.Person, eventJSON, in.Completed, previous, in.Completed+1, focus.String())
}
