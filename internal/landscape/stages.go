package landscape

import (
	"fmt"

	"github.com/joelkehle/target-landscape/internal/gracejson"
)

const patentExtractionPrompt = `Analyze these Google Patents search results for the molecular target "%s".

Extract every distinct patent as a JSON object with exactly these fields:
- publication_number: the patent publication number
- title: the patent title
- assignee: the filing organization
- status: GRANT, APPLICATION, or Unknown

Return a JSON array of these objects and nothing else. If no patents are
relevant, return [].

Search results:
%s`

const assetExtractionPrompt = `You are analyzing competitive evidence about the molecular target "%s" from the source "%s".

Extract every distinct therapeutic program (drug, candidate, or research
asset) as a JSON object with exactly these fields:
- drug_name: program or compound name
- phase: one of Preclinical, Phase I, Phase II, Phase III, Approved
- status: development status (active, terminated, completed, unknown)
- modality: e.g. small molecule, antibody, ADC, cell therapy, siRNA
- sponsor: the developing organization
- indication: the disease being pursued
- mechanism_of_action: how the program engages the target
- acquisition/licensing signals: optional, any deal activity mentioned

Return a JSON array of these objects and nothing else. If the evidence
contains no programs, return [].

Evidence:
%s`

const normalizationPrompt = `You are normalizing extracted competitor records for the molecular target "%s".

Merge duplicate programs (same asset reported by multiple sources), fix
inconsistent naming, and assign each program to its most advanced
development phase.

Return a single JSON object with exactly these keys, each holding an
array of program objects:
"Preclinical", "Phase I", "Phase II", "Phase III", "Approved"

Every program object keeps the fields drug_name, phase, status,
modality, sponsor, indication, mechanism_of_action. Return the JSON
object and nothing else.

Records:
%s`

const scoringPrompt = `You are scoring the competitive landscape for the molecular target "%s".

Given the phase-grouped competitor programs below, produce a single JSON
object with exactly these fields:
- target: the target name
- crowding_score: number in [0,1]
- total_competitors: integer count of all programs
- phase_distribution: object with integer counts for "Preclinical",
  "Phase I", "Phase II", "Phase III", "Approved"
- modalities: array of distinct modality strings
- notable_acquisitions: array of deal/licensing signals worth flagging
- white_space_flags: array of strategic gaps (underserved phases,
  missing modalities, abandoned programs)
- scoring_methodology: one sentence on how you scored

Return the JSON object and nothing else.

Phase-grouped programs:
%s`

func patentStage(target string) StageSpec {
	return StageSpec{
		Name: "patent_extraction",
		Prompt: func(chunk string) string {
			return fmt.Sprintf(patentExtractionPrompt, target, chunk)
		},
		Required: patentRequiredFields,
		Fallback: gracejson.Record{
			"publication_number": "", "title": "", "assignee": "", "status": "",
		},
	}
}

func assetStage(target, source string) StageSpec {
	return StageSpec{
		Name: "asset_extraction",
		Prompt: func(chunk string) string {
			return fmt.Sprintf(assetExtractionPrompt, target, source, chunk)
		},
		Required: assetRequiredFields,
		Fallback: gracejson.Record{
			"drug_name": "", "phase": "", "status": "", "modality": "",
			"sponsor": "", "indication": "", "mechanism_of_action": "",
		},
	}
}

func normalizeStage(target string) StageSpec {
	return StageSpec{
		Name: "normalization",
		Prompt: func(chunk string) string {
			return fmt.Sprintf(normalizationPrompt, target, chunk)
		},
		Fallback: gracejson.Record{
			PhasePreclinical: []any{}, PhaseI: []any{}, PhaseII: []any{},
			PhaseIII: []any{}, PhaseApproved: []any{},
		},
	}
}

func scoreStage(target string) StageSpec {
	return StageSpec{
		Name: "scoring",
		Prompt: func(chunk string) string {
			return fmt.Sprintf(scoringPrompt, target, chunk)
		},
		Required: summaryRequiredFields,
		Fallback: gracejson.Record{
			"target": "", "crowding_score": 0.0, "total_competitors": 0.0,
			"phase_distribution":   map[string]any{},
			"modalities":           []any{},
			"notable_acquisitions": []any{},
			"white_space_flags":    []any{},
			"scoring_methodology":  "",
		},
	}
}
