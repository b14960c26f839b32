package landscape

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/target-landscape/internal/gracejson"
)

const reportDisclaimer = "Automated competitive triage. Figures are model-extracted from public registries and require analyst review before any decision."

// BuildReport renders the pipeline result as markdown: crowding score,
// phase table, modalities, deal signals, and white-space flags.
func BuildReport(res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Competitive Landscape: %s\n\n", sanitize(res.Target))
	fmt.Fprintf(&b, "- Date: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Mode: %s\n\n", res.Metadata.Mode)
	fmt.Fprintf(&b, "%s\n\n", reportDisclaimer)

	if res.Metadata.Mode == ReportModeDegraded {
		fmt.Fprintf(&b, "> DEGRADED: ")
		if len(res.Metadata.StagesFailed) > 0 {
			fmt.Fprintf(&b, "stage(s) `%s` failed. ", strings.Join(res.Metadata.StagesFailed, "`, `"))
		}
		if res.Metadata.Error != "" {
			fmt.Fprintf(&b, "%s. ", sanitize(res.Metadata.Error))
		}
		fmt.Fprintf(&b, "Treat this as partial analysis pending human review.\n\n")
	}

	fmt.Fprintf(&b, "## Crowding\n\n")
	fmt.Fprintf(&b, "- Crowding score: **%.3f** (0 = open field, 1 = saturated)\n", asFloat(res.Summary["crowding_score"]))
	fmt.Fprintf(&b, "- Total competitors: %d\n", asInt(res.Summary["total_competitors"]))
	if corrected, _ := res.Summary["_total_competitors_corrected"].(bool); corrected {
		fmt.Fprintf(&b, "- [!] Competitor total was corrected to match the phase counts.\n")
	}
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "## Phase Distribution\n\n")
	fmt.Fprintf(&b, "| Phase | Programs |\n|-------|----------|\n")
	dist, _ := res.Summary["phase_distribution"].(map[string]any)
	for _, phase := range Phases {
		n := 0
		if dist != nil {
			n = asInt(dist[phase])
		}
		fmt.Fprintf(&b, "| %s | %d |\n", phase, n)
	}
	fmt.Fprintf(&b, "\n")

	writeList(&b, "Modalities", res.Summary["modalities"], "No modalities identified.")
	writeList(&b, "Notable Acquisitions & Licensing", res.Summary["notable_acquisitions"], "No deal activity identified.")
	writeList(&b, "White-Space Flags", res.Summary["white_space_flags"], "No strategic gaps flagged.")

	fmt.Fprintf(&b, "## Programs by Phase\n\n")
	for _, phase := range Phases {
		recs := res.ByPhase[phase]
		if len(recs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", phase)
		fmt.Fprintf(&b, "| Program | Sponsor | Modality | Status | Indication |\n")
		fmt.Fprintf(&b, "|---------|---------|----------|--------|------------|\n")
		for _, r := range recs {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				cell(r, "drug_name"), cell(r, "sponsor"), cell(r, "modality"),
				cell(r, "status"), cell(r, "indication"))
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Methodology\n\n")
	if s, _ := res.Summary["scoring_methodology"].(string); s != "" {
		fmt.Fprintf(&b, "%s\n", sanitize(s))
	}
	return b.String()
}

func writeList(b *strings.Builder, title string, v any, empty string) {
	fmt.Fprintf(b, "## %s\n\n", title)
	list, _ := v.([]any)
	if len(list) == 0 {
		fmt.Fprintf(b, "%s\n\n", empty)
		return
	}
	for _, e := range list {
		if s, ok := e.(string); ok {
			fmt.Fprintf(b, "- %s\n", sanitize(s))
		}
	}
	fmt.Fprintf(b, "\n")
}

func cell(r gracejson.Record, field string) string {
	s, _ := r[field].(string)
	if s == "" {
		s = gracejson.UnknownValue
	}
	return sanitize(s)
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func asInt(v any) int {
	n, _ := asCount(v)
	return n
}
