package landscape

import (
	"strings"
	"testing"
	"time"

	"github.com/joelkehle/target-landscape/internal/gracejson"
)

func sampleResult() Result {
	return Result{
		Target: "KRAS G12C",
		ByPhase: map[string][]gracejson.Record{
			PhasePreclinical: {},
			PhaseI:           {},
			PhaseII: {{
				"drug_name": "ABC-123", "sponsor": "Acme Bio",
				"modality": "small molecule", "status": "active",
				"indication": "NSCLC",
			}},
			PhaseIII:      {},
			PhaseApproved: {},
		},
		Summary: gracejson.Record{
			"target":            "KRAS G12C",
			"crowding_score":    0.416,
			"total_competitors": 42,
			"phase_distribution": map[string]any{
				PhasePreclinical: 10, PhaseI: 14, PhaseII: 9, PhaseIII: 6, PhaseApproved: 3,
			},
			"modalities":           []any{"small molecule", "antibody"},
			"notable_acquisitions": []any{},
			"white_space_flags":    []any{"no approved ADC"},
			"scoring_methodology":  "weighted phase sum over saturation",
		},
		Metadata: ResultMetadata{StartedAt: time.Now(), Mode: ReportModeComplete},
	}
}

func TestBuildReportSections(t *testing.T) {
	md := BuildReport(sampleResult())
	for _, want := range []string{
		"# Competitive Landscape: KRAS G12C",
		"**0.416**",
		"Total competitors: 42",
		"| Preclinical | 10 |",
		"| Approved | 3 |",
		"- small molecule",
		"- no approved ADC",
		"### Phase II",
		"| ABC-123 | Acme Bio |",
		"weighted phase sum over saturation",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestBuildReportDegradedBanner(t *testing.T) {
	res := sampleResult()
	res.Metadata.Mode = ReportModeDegraded
	res.Metadata.StagesFailed = []string{"normalization"}
	md := BuildReport(res)
	if !strings.Contains(md, "DEGRADED") || !strings.Contains(md, "normalization") {
		t.Fatal("degraded banner missing or incomplete")
	}
}

func TestBuildReportCorrectionNote(t *testing.T) {
	res := sampleResult()
	res.Summary["_total_competitors_corrected"] = true
	if !strings.Contains(BuildReport(res), "corrected") {
		t.Fatal("correction note missing")
	}
}

func TestSanitizeEscapesTableCells(t *testing.T) {
	if got := sanitize("a|b\nc"); got != "a\\|b c" {
		t.Fatalf("sanitize = %q", got)
	}
}
