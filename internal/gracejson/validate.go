package gracejson

import "log"

// UnknownValue backfills required fields the model left out or blank.
const UnknownValue = "Unknown"

// ExtractValid normalizes parsed output into a list of validated
// records. A single mapping becomes a one-element list; list elements
// that are not mappings are skipped; anything else yields an empty
// list. Missing or falsy required fields are backfilled with
// UnknownValue and every surviving record is stamped _validated.
// Records are copied first; the caller's data is never mutated.
// Never returns an error.
func ExtractValid(data any, required []string) []Record {
	var candidates []any
	switch t := data.(type) {
	case Record:
		candidates = []any{t}
	case []any:
		candidates = t
	case []Record:
		for _, r := range t {
			candidates = append(candidates, r)
		}
	default:
		return []Record{}
	}

	out := make([]Record, 0, len(candidates))
	for i, c := range candidates {
		src, ok := c.(map[string]any)
		if !ok {
			log.Printf("gracejson: skipping non-mapping entry %d (%T)", i, c)
			continue
		}
		rec := make(Record, len(src)+1)
		for k, v := range src {
			rec[k] = v
		}
		for _, field := range required {
			if isFalsy(rec[field]) {
				rec[field] = UnknownValue
			}
		}
		rec["_validated"] = true
		out = append(out, rec)
	}
	return out
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
