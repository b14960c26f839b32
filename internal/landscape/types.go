// Package landscape runs the competitive-landscape pipeline for a
// biomedical molecular target: LLM extraction over scraped evidence,
// normalization into development phases, and a crowding score.
package landscape

import (
	"strings"
	"time"

	"github.com/joelkehle/target-landscape/internal/gracejson"
)

// Development phases, in ascending maturity order. Every phase-grouped
// structure carries exactly this key set.
const (
	PhasePreclinical = "Preclinical"
	PhaseI           = "Phase I"
	PhaseII          = "Phase II"
	PhaseIII         = "Phase III"
	PhaseApproved    = "Approved"
)

// Phases lists the fixed phase keys in display order.
var Phases = []string{PhasePreclinical, PhaseI, PhaseII, PhaseIII, PhaseApproved}

// phaseWeights scale each phase's competitor count in the crowding
// score. Later phases crowd harder.
var phaseWeights = map[string]float64{
	PhasePreclinical: 0.2,
	PhaseI:           0.4,
	PhaseII:          0.6,
	PhaseIII:         0.8,
	PhaseApproved:    1.0,
}

// DefaultMaxSaturation is the weighted competitor sum at which the
// crowding score saturates to 1.0.
const DefaultMaxSaturation = 50.0

// Required fields per stage output. Missing or blank values are
// backfilled with "Unknown" by the validator.
var (
	assetRequiredFields = []string{
		"drug_name", "phase", "status", "modality",
		"sponsor", "indication", "mechanism_of_action",
	}
	patentRequiredFields = []string{
		"publication_number", "title", "assignee", "status",
	}
	summaryRequiredFields = []string{
		"target", "crowding_score", "total_competitors", "phase_distribution",
		"modalities", "notable_acquisitions", "white_space_flags",
		"scoring_methodology",
	}
)

type ReportMode string

const (
	ReportModeComplete ReportMode = "complete"
	ReportModeDegraded ReportMode = "degraded"
)

// Config tunes the batch engine. Zero values select defaults.
type Config struct {
	// Model is the Anthropic model name, also used to calibrate the
	// token estimator.
	Model string

	// ExtractTokenBudget bounds each extraction chunk.
	ExtractTokenBudget int
	// RefineTokenBudget bounds each normalization and scoring chunk.
	RefineTokenBudget int

	// MinCallDelay is enforced after every completion call.
	MinCallDelay time.Duration
	// RateLimitCooldown is slept before the single retry after a
	// rate-limit signal.
	RateLimitCooldown time.Duration

	// MaxSaturation overrides the crowding-score saturation point.
	MaxSaturation float64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.ExtractTokenBudget <= 0 {
		c.ExtractTokenBudget = 8000
	}
	if c.RefineTokenBudget <= 0 {
		c.RefineTokenBudget = 6000
	}
	if c.MinCallDelay <= 0 {
		c.MinCallDelay = 2 * time.Second
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = 30 * time.Second
	}
	if c.MaxSaturation <= 0 {
		c.MaxSaturation = DefaultMaxSaturation
	}
	return c
}

// Request identifies the target under analysis.
type Request struct {
	Target     string `json:"target"`
	Indication string `json:"indication,omitempty"`
}

// subject is the label prompts and registry queries are built around.
// An indication narrows it.
func (r Request) subject() string {
	if s := strings.TrimSpace(r.Indication); s != "" {
		return r.Target + " " + s
	}
	return r.Target
}

// Result is the full pipeline output. Every section is always present;
// degraded sections carry "_" metadata markers instead of being absent.
type Result struct {
	Target   string                        `json:"target"`
	Patents  []gracejson.Record            `json:"patents"`
	Assets   []gracejson.Record            `json:"assets"`
	ByPhase  map[string][]gracejson.Record `json:"by_phase"`
	Summary  gracejson.Record              `json:"summary"`
	Report   string                        `json:"report_markdown"`
	Metadata ResultMetadata                `json:"metadata"`
}

type ResultMetadata struct {
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  time.Time  `json:"completed_at"`
	Mode         ReportMode `json:"mode"`
	StagesFailed []string   `json:"stages_failed,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// StageProgressFn receives human-readable progress lines from the
// pipeline, one per stage transition.
type StageProgressFn func(stage, message string)
