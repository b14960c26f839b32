package landscape

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/joelkehle/target-landscape/internal/gracejson"
)

// CombineFlat concatenates the record lists of a stage's sub-pipelines.
// An entirely empty combination still yields exactly one fallback
// record so downstream stages never see a vanished section.
func CombineFlat(required []string, lists ...[]gracejson.Record) []gracejson.Record {
	out := []gracejson.Record{}
	for _, l := range lists {
		out = append(out, l...)
	}
	if len(out) == 0 {
		rec := gracejson.Record{
			"_fallback_entry": true,
			"_error_message":  "no records extracted from any source",
		}
		for _, f := range required {
			rec[f] = gracejson.UnknownValue
		}
		out = append(out, rec)
	}
	return out
}

// MergePhaseGroups folds per-chunk phase->records mappings into one
// mapping over the fixed phase key set. Records are deduped per phase
// by an order-independent serialization of their non-metadata fields.
// A chunk that is not a mapping at all, or a mapping standing in for a
// failed chunk, folds into Preclinical as a tagged fallback record, so
// a failed chunk still contributes exactly one record.
func MergePhaseGroups(chunks []any) map[string][]gracejson.Record {
	merged := map[string][]gracejson.Record{}
	for _, phase := range Phases {
		merged[phase] = []gracejson.Record{}
	}
	for i, chunk := range chunks {
		m, ok := chunk.(map[string]any)
		if !ok {
			log.Printf("landscape: normalize chunk %d is not a phase mapping (%T)", i+1, chunk)
			merged[PhasePreclinical] = append(merged[PhasePreclinical], gracejson.Record{
				"drug_name":       gracejson.UnknownValue,
				"phase":           PhasePreclinical,
				"_fallback_entry": true,
				"_batch":          i + 1,
				"_error_message":  fmt.Sprintf("chunk output was %T, expected phase mapping", chunk),
			})
			continue
		}
		if isFailedMapping(m) {
			merged[PhasePreclinical] = append(merged[PhasePreclinical], failedChunkRecord(m, i+1))
			continue
		}
		for _, phase := range Phases {
			switch v := m[phase].(type) {
			case []any:
				for _, e := range v {
					if rec, ok := e.(map[string]any); ok {
						merged[phase] = append(merged[phase], rec)
					}
				}
			case map[string]any:
				// A lone mapping where a list belongs counts as one entry.
				merged[phase] = append(merged[phase], v)
			}
		}
	}
	for _, phase := range Phases {
		merged[phase] = dedupeRecords(merged[phase])
	}
	return merged
}

// isFailedMapping recognizes the fallback mappings the batch layer emits
// for a chunk whose call or parse failed. Their phase lists are empty,
// so without this check the failure would vanish from the aggregate.
func isFailedMapping(m map[string]any) bool {
	if b, _ := m["_processing_error"].(bool); b {
		return true
	}
	b, _ := m["_parsing_error"].(bool)
	return b
}

// failedChunkRecord rebuilds the failure as a single Preclinical entry,
// carrying over the batch layer's tags.
func failedChunkRecord(m map[string]any, batch int) gracejson.Record {
	rec := gracejson.Record{
		"drug_name":       gracejson.UnknownValue,
		"phase":           PhasePreclinical,
		"_fallback_entry": true,
		"_batch":          batch,
	}
	for _, k := range []string{"_processing_error", "_parsing_error", "_error_message", "_context", "_stage"} {
		if v, ok := m[k]; ok {
			rec[k] = v
		}
	}
	return rec
}

// dedupeRecords drops later records whose non-metadata fields exactly
// match an earlier one. First occurrence wins, order preserved.
// Fallback entries are never deduped: each stands for a distinct
// failed chunk even though their visible fields coincide.
func dedupeRecords(recs []gracejson.Record) []gracejson.Record {
	seen := map[string]bool{}
	out := make([]gracejson.Record, 0, len(recs))
	for _, r := range recs {
		if fb, _ := r["_fallback_entry"].(bool); fb {
			out = append(out, r)
			continue
		}
		key := dedupeKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func dedupeKey(r gracejson.Record) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(r[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
		b.WriteByte(';')
	}
	return b.String()
}

// CombineSummaries recombines per-chunk scoring outputs into one
// summary. Phase counts sum over the chunks that produced a usable
// phase_distribution; list fields union with order-preserving dedupe;
// the crowding score and competitor total are recomputed from the
// combined counts, never trusted from the model.
func CombineSummaries(target string, chunks []any, maxSaturation float64) gracejson.Record {
	if maxSaturation <= 0 {
		maxSaturation = DefaultMaxSaturation
	}
	counts := map[string]int{}
	for _, p := range Phases {
		counts[p] = 0
	}
	modalities, acquisitions, flags := []any{}, []any{}, []any{}
	claimedTotal := 0
	validChunks := 0

	for i, chunk := range chunks {
		m, ok := chunk.(map[string]any)
		if !ok {
			log.Printf("landscape: scoring chunk %d is not a mapping (%T)", i+1, chunk)
			continue
		}
		dist, ok := m["phase_distribution"].(map[string]any)
		if !ok {
			log.Printf("landscape: scoring chunk %d has no phase_distribution", i+1)
			continue
		}
		validChunks++
		for _, p := range Phases {
			if n, ok := asCount(dist[p]); ok {
				counts[p] += n
			}
		}
		if n, ok := asCount(m["total_competitors"]); ok {
			claimedTotal += n
		}
		modalities = unionStrings(modalities, m["modalities"])
		acquisitions = unionStrings(acquisitions, m["notable_acquisitions"])
		flags = unionStrings(flags, m["white_space_flags"])
	}

	if validChunks == 0 {
		return gracejson.Record{
			"target":               target,
			"crowding_score":       0.0,
			"total_competitors":    0,
			"phase_distribution":   zeroDistribution(),
			"modalities":           []any{},
			"notable_acquisitions": []any{},
			"white_space_flags":    []any{},
			"scoring_methodology":  "No scoring chunk produced a usable summary.",
			"_combine_error":       true,
		}
	}

	total := 0
	weighted := 0.0
	dist := map[string]any{}
	for _, p := range Phases {
		dist[p] = counts[p]
		total += counts[p]
		weighted += float64(counts[p]) * phaseWeights[p]
	}
	score := round3(math.Min(1.0, weighted/maxSaturation))

	summary := gracejson.Record{
		"target":               target,
		"crowding_score":       score,
		"total_competitors":    total,
		"phase_distribution":   dist,
		"modalities":           modalities,
		"notable_acquisitions": acquisitions,
		"white_space_flags":    flags,
		"scoring_methodology": fmt.Sprintf(
			"Crowding score = min(1.0, weighted phase sum / %.0f) with weights "+
				"Preclinical 0.2, Phase I 0.4, Phase II 0.6, Phase III 0.8, Approved 1.0; "+
				"recombined from %d chunk(s).", maxSaturation, validChunks),
	}
	if claimedTotal != total {
		summary["_total_competitors_corrected"] = true
	}
	return summary
}

// ValidateSummary enforces the summary shape on its way out: required
// fields present, score clamped to [0,1], and the competitor total
// equal to the phase-count sum (corrected and flagged when not).
func ValidateSummary(summary gracejson.Record, target string) gracejson.Record {
	if summary == nil {
		summary = gracejson.Record{}
	}
	if s, _ := summary["target"].(string); s == "" {
		summary["target"] = target
	}
	dist, ok := summary["phase_distribution"].(map[string]any)
	if !ok {
		dist = zeroDistribution()
		summary["phase_distribution"] = dist
	}
	total := 0
	for _, p := range Phases {
		n, ok := asCount(dist[p])
		if !ok {
			n = 0
		}
		dist[p] = n
		total += n
	}
	if claimed, ok := asCount(summary["total_competitors"]); !ok || claimed != total {
		summary["total_competitors"] = total
		if ok && claimed != total {
			summary["_total_competitors_corrected"] = true
		}
	}
	if score, ok := summary["crowding_score"].(float64); !ok {
		summary["crowding_score"] = 0.0
	} else if score < 0 {
		summary["crowding_score"] = 0.0
	} else if score > 1 {
		summary["crowding_score"] = 1.0
	}
	for _, f := range []string{"modalities", "notable_acquisitions", "white_space_flags"} {
		if _, ok := summary[f].([]any); !ok {
			summary[f] = []any{}
		}
	}
	if s, _ := summary["scoring_methodology"].(string); s == "" {
		summary["scoring_methodology"] = "Methodology unavailable."
	}
	return summary
}

func zeroDistribution() map[string]any {
	d := map[string]any{}
	for _, p := range Phases {
		d[p] = 0
	}
	return d
}

// asCount coerces JSON numbers (and numeric strings the model sometimes
// emits) to a non-negative int.
func asCount(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return int(t), true
	case int:
		if t < 0 {
			return 0, false
		}
		return t, true
	case json.Number:
		f, err := t.Float64()
		if err != nil || f < 0 {
			return 0, false
		}
		return int(f), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%f", &f); err != nil || f < 0 {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}

// unionStrings appends the string members of add not already in base,
// preserving first-seen order.
func unionStrings(base []any, add any) []any {
	list, ok := add.([]any)
	if !ok {
		return base
	}
	seen := map[string]bool{}
	for _, v := range base {
		if s, ok := v.(string); ok {
			seen[s] = true
		}
	}
	for _, v := range list {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" || seen[s] {
			continue
		}
		seen[s] = true
		base = append(base, s)
	}
	return base
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
