// Package qualify runs a qualification: it gathers evidence round by round
// until enough has been found, scores the person, and assembles a report.
package qualify

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/event"
	"eventqual/internal/evidence"
	"eventqual/internal/logging"
	"eventqual/internal/scoring"
)

// State is a position in the run state machine.
type State string

const (
	StateGathering          State = "gathering"
	StateGatheringExhausted State = "gathering_exhausted"
	StateScoring            State = "scoring"
	StateReporting          State = "reporting"
	StateDone               State = "done"
)

// Defaults for the gathering loop.
const (
	DefaultRequiredEvidence = 3
	DefaultMaxRounds        = 10
	DefaultThreshold        = 0.6
)

// EvidenceSource produces one evidence record per query.
type EvidenceSource interface {
	FetchEvidence(ctx context.Context, query string, threshold float64, keywordBoost bool) evidence.Record
}

// Scorer scores a person from gathered evidence.
type Scorer interface {
	Score(ctx context.Context, person string, details event.Details, records []evidence.Record) scoring.Result
}

// EventExtractor resolves event details from a URL.
type EventExtractor interface {
	Extract(ctx context.Context, url string) event.Details
}

// Options tune the orchestrator.
type Options struct {
	RequiredEvidence    int
	MaxRounds           int
	SimilarityThreshold float64
	KeywordBoost        bool

	GatherTimeout  time.Duration
	ExtractTimeout time.Duration

	Now func() time.Time
}

// DefaultOptions returns the standard gathering settings.
func DefaultOptions() Options {
	return Options{
		RequiredEvidence:    DefaultRequiredEvidence,
		MaxRounds:           DefaultMaxRounds,
		SimilarityThreshold: DefaultThreshold,
		KeywordBoost:        true,
	}
}

// Run is the mutable state of one qualification.
type Run struct {
	ID           string
	PersonName   string
	EventDetails event.Details
	State        State
	Evidence     []evidence.Record
	Queries      []string
	Attempts     int
	Exhausted    bool

	Score              *int
	Reasoning          string
	KeyQualifications  []string
	MissingInformation []string
	Report             *Report
}

// Orchestrator drives runs through gathering, scoring and reporting.
type Orchestrator struct {
	planner   *Planner
	evidence  EvidenceSource
	scorer    Scorer
	extractor EventExtractor
	opts      Options
}

// New creates an orchestrator. extractor may be nil when URL-seeded runs
// are not needed.
func New(planner *Planner, source EvidenceSource, scorer Scorer, extractor EventExtractor, opts Options) *Orchestrator {
	if opts.RequiredEvidence <= 0 {
		opts.RequiredEvidence = DefaultRequiredEvidence
	}
	if opts.MaxRounds < opts.RequiredEvidence {
		opts.MaxRounds = max(DefaultMaxRounds, opts.RequiredEvidence)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if planner == nil {
		planner = NewPlanner(nil, 0)
	}
	return &Orchestrator{planner: planner, evidence: source, scorer: scorer, extractor: extractor, opts: opts}
}

// Qualify runs a full qualification of personName against details. It never
// fails: unexpected errors and panics become a report carrying Error.
func (o *Orchestrator) Qualify(ctx context.Context, personName string, details event.Details) (report Report) {
	runID := uuid.NewString()
	log := logging.WithRequestID(logging.CategoryAgent, runID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Run panicked: %v\n%s", r, debug.Stack())
			report = o.failure(runID, personName, fmt.Errorf("panic: %v", r))
		}
	}()

	personName = strings.TrimSpace(personName)
	if personName == "" {
		return o.failure(runID, personName, eqerrors.New(eqerrors.EInvalidInput, "qualify.Qualify", "person name is required"))
	}

	run := &Run{
		ID:           runID,
		PersonName:   personName,
		EventDetails: details.Normalize(),
		State:        StateGathering,
	}
	log.Info("Qualifying %s for %q", personName, run.EventDetails.Name)

	if err := o.drive(ctx, run); err != nil {
		log.Warn("Run failed in state %s: %v", run.State, err)
		return o.failure(runID, personName, err)
	}
	return *run.Report
}

// QualifyFromURL extracts the event from eventURL, then qualifies personName.
func (o *Orchestrator) QualifyFromURL(ctx context.Context, personName, eventURL string) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			logging.AgentError("URL run panicked: %v\n%s", r, debug.Stack())
			report = o.failure(uuid.NewString(), personName, fmt.Errorf("panic: %v", r))
		}
	}()

	if o.extractor == nil {
		return o.failure(uuid.NewString(), personName, eqerrors.New(eqerrors.EInvalidInput, "qualify.QualifyFromURL", "event extraction is not configured"))
	}
	if strings.TrimSpace(personName) == "" {
		return o.failure(uuid.NewString(), personName, eqerrors.New(eqerrors.EInvalidInput, "qualify.QualifyFromURL", "person name is required"))
	}

	extractCtx, cancel := withTimeout(ctx, o.opts.ExtractTimeout)
	details := o.extractor.Extract(extractCtx, eventURL)
	cancel()

	report = o.Qualify(ctx, personName, details)
	report.EventURL = eventURL
	report.EventExtractedFromURL = true
	return report
}

func (o *Orchestrator) drive(ctx context.Context, run *Run) error {
	for run.State != StateDone {
		var err error
		switch run.State {
		case StateGathering:
			err = o.gather(ctx, run)
		case StateGatheringExhausted:
			run.Exhausted = true
			run.State = StateScoring
		case StateScoring:
			err = o.score(ctx, run)
		case StateReporting:
			o.report(run)
		default:
			err = fmt.Errorf("unknown run state %q", run.State)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// gather performs at most one round.
func (o *Orchestrator) gather(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	found := evidence.CountWithPayload(run.Evidence)
	if found >= o.opts.RequiredEvidence {
		logging.Agent("Gathered %d evidence records in %d rounds", found, run.Attempts)
		run.State = StateScoring
		return nil
	}
	if run.Attempts >= o.opts.MaxRounds {
		logging.AgentWarn("Gathering exhausted after %d rounds with %d evidence records", run.Attempts, found)
		run.State = StateGatheringExhausted
		return nil
	}

	query, fallback := o.planner.Plan(ctx, PlanInput{
		Person:    run.PersonName,
		Details:   run.EventDetails,
		Completed: found,
		Previous:  run.Queries,
		Round:     run.Attempts,
	})
	logging.AgentDebug("Round %d query %q (fallback=%v)", run.Attempts+1, query, fallback)

	gctx, cancel := withTimeout(ctx, o.opts.GatherTimeout)
	rec := o.evidence.FetchEvidence(gctx, query, o.opts.SimilarityThreshold, o.opts.KeywordBoost)
	cancel()

	run.Evidence = append(run.Evidence, rec)
	run.Queries = append(run.Queries, query)
	run.Attempts++
	return nil
}

func (o *Orchestrator) score(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := o.scorer.Score(ctx, run.PersonName, run.EventDetails, evidence.WithPayload(run.Evidence))
	run.Score = &res.Score
	run.Reasoning = res.Reasoning
	run.KeyQualifications = res.KeyQualifications
	run.MissingInformation = res.MissingInformation
	run.State = StateReporting
	return nil
}

func (o *Orchestrator) report(run *Run) {
	status := GatheringComplete
	if run.Exhausted {
		status = GatheringExhausted
	}
	details := run.EventDetails
	score := 0
	if run.Score != nil {
		score = *run.Score
	}

	run.Report = &Report{
		RunID:                  run.ID,
		PersonName:             run.PersonName,
		EventDetails:           &details,
		QualificationScore:     score,
		QualificationReasoning: run.Reasoning,
		KeyQualifications:      run.KeyQualifications,
		MissingInformation:     run.MissingInformation,
		SearchesPerformed:      evidence.CountWithPayload(run.Evidence),
		InformationSources:     sources(run.Evidence),
		RoundsAttempted:        run.Attempts,
		GatheringStatus:        status,
		Timestamp:              o.opts.Now(),
	}
	run.State = StateDone
	logging.Agent("Run %s done: %s scored %d/10", run.ID, run.PersonName, score)
}

func (o *Orchestrator) failure(runID, personName string, err error) Report {
	return Report{
		RunID:              runID,
		PersonName:         personName,
		QualificationScore: 0,
		InformationSources: []InformationSource{},
		Timestamp:          o.opts.Now(),
		Error:              fmt.Sprintf("Agent execution failed: %v", err),
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
