// Package evidence holds the records a qualification run accumulates.
package evidence

import "time"

// Source names where a record's payload came from.
type Source string

const (
	SourceKnowledgeStore Source = "knowledge_store"
	SourceWebSearch      Source = "web_search"
)

// Item is one normalized result. Provider field names never reach this type.
type Item struct {
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet"`
	Content    string   `json:"content,omitempty"`
	URL        string   `json:"url"`
	Similarity *float64 `json:"similarity,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// Ingestion counts what a web search added to the knowledge store.
type Ingestion struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Record is the outcome of one gathering round.
type Record struct {
	Source        Source     `json:"source"`
	Query         string     `json:"query"`
	RetrievedAt   time.Time  `json:"retrieved_at"`
	Payload       []Item     `json:"payload"`
	FoundExisting bool       `json:"found_existing"`
	Ingestion     *Ingestion `json:"ingestion,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// HasPayload reports whether the record carries any evidence.
func (r Record) HasPayload() bool { return len(r.Payload) > 0 }

// CountWithPayload counts records carrying evidence.
func CountWithPayload(records []Record) int {
	n := 0
	for _, r := range records {
		if r.HasPayload() {
			n++
		}
	}
	return n
}

// WithPayload returns the records carrying evidence, in order.
func WithPayload(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.HasPayload() {
			out = append(out, r)
		}
	}
	return out
}
