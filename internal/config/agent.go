package config

import "time"

// AgentConfig configures the gathering loop and the scorer.
type AgentConfig struct {
	RequiredEvidence int `yaml:"required_evidence"`
	MaxRounds        int `yaml:"max_rounds"`

	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	KeywordBoost        bool    `yaml:"keyword_boost"`

	// Characters of compiled evidence handed to the scorer
	EvidenceCharBudget int `yaml:"evidence_char_budget"`

	PlannerTimeout string `yaml:"planner_timeout"`
	GatherTimeout  string `yaml:"gather_timeout"`
	ScoringTimeout string `yaml:"scoring_timeout"`
	ExtractTimeout string `yaml:"extract_timeout"`
}

// AgentTimeouts holds the parsed per-call timeouts of a qualification run.
type AgentTimeouts struct {
	Planner time.Duration
	Gather  time.Duration
	Scoring time.Duration
	Extract time.Duration
}

// Timeouts parses the agent's per-call timeouts, falling back to defaults.
func (a AgentConfig) Timeouts() AgentTimeouts {
	return AgentTimeouts{
		Planner: parseDuration(a.PlannerTimeout, 30*time.Second),
		Gather:  parseDuration(a.GatherTimeout, 60*time.Second),
		Scoring: parseDuration(a.ScoringTimeout, 60*time.Second),
		Extract: parseDuration(a.ExtractTimeout, 90*time.Second),
	}
}
