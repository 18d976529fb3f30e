package qualify

import (
	"time"

	"eventqual/internal/event"
	"eventqual/internal/evidence"
)

// Gathering outcomes reported in Report.GatheringStatus.
const (
	GatheringComplete  = "complete"
	GatheringExhausted = "exhausted"
)

// InformationSource summarizes one evidence-carrying round.
type InformationSource struct {
	Query         string `json:"query"`
	Source        string `json:"source"`
	FoundExisting bool   `json:"found_existing"`
}

// Report is the outcome of a qualification run.
type Report struct {
	RunID                  string              `json:"run_id,omitempty"`
	PersonName             string              `json:"person_name"`
	EventDetails           *event.Details      `json:"event_details,omitempty"`
	QualificationScore     int                 `json:"qualification_score"`
	QualificationReasoning string              `json:"qualification_reasoning,omitempty"`
	KeyQualifications      []string            `json:"key_qualifications,omitempty"`
	MissingInformation     []string            `json:"missing_information,omitempty"`
	SearchesPerformed      int                 `json:"searches_performed"`
	InformationSources     []InformationSource `json:"information_sources"`
	RoundsAttempted        int                 `json:"rounds_attempted"`
	GatheringStatus        string              `json:"gathering_status,omitempty"`
	Timestamp              time.Time           `json:"timestamp"`

	EventURL              string `json:"event_url,omitempty"`
	EventExtractedFromURL bool   `json:"event_extracted_from_url,omitempty"`

	Error string `json:"error,omitempty"`
}

// Failed reports whether the run ended in a failure report.
func (r Report) Failed() bool { return r.Error != "" }

func sources(records []evidence.Record) []InformationSource {
	kept := evidence.WithPayload(records)
	out := make([]InformationSource, 0, len(kept))
	for _, r := range kept {
		out = append(out, InformationSource{
			Query:         r.Query,
			Source:        string(r.Source),
			FoundExisting: r.FoundExisting,
		})
	}
	return out
}
