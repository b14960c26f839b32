// Package gracejson recovers structured records from model output that
// is almost, but not quite, valid JSON. Parsing never fails: when every
// recovery strategy comes up empty the caller gets a tagged fallback
// value built from a stage template instead of an error.
package gracejson

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Record is one extracted entity. Keys starting with "_" are metadata
// added by the pipeline, not model output.
type Record = map[string]any

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z]*\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
	jsonSpan   = regexp.MustCompile(`(?s)\[.*\]|\{.*\}`)
)

// Parse attempts a cascade of recovery strategies over raw model text
// and returns the first structure that decodes. On total failure it
// returns a fallback built from template (see Fallback). context names
// the call site for the fallback tags, e.g. "asset extraction batch 2".
func Parse(raw string, template Record, context string) any {
	cleaned := stripCodeFences(raw)

	// Strategy 1: the whole cleaned text is JSON.
	if v, ok := tryDecode(cleaned); ok {
		return v
	}

	// Strategy 2: first array-or-object span anywhere in the text.
	if span := jsonSpan.FindString(cleaned); span != "" {
		if v, ok := tryDecode(span); ok {
			return v
		}
	}

	// Strategy 3: balanced scan backward from the rightmost closer.
	if span := balancedSpan(cleaned); span != "" {
		if v, ok := tryDecode(span); ok {
			return v
		}
	}

	// Strategy 4: one standalone object per line, collected as a list.
	if list := decodeLines(cleaned); len(list) > 0 {
		return list
	}

	return Fallback(template, context, raw)
}

// ParseValue handles input that may already be structured. Maps and
// slices pass through untouched, which makes repeated application a
// no-op; only strings go through the text cascade.
func ParseValue(v any, template Record, context string) any {
	switch t := v.(type) {
	case string:
		return Parse(t, template, context)
	case []byte:
		return Parse(string(t), template, context)
	case json.RawMessage:
		return Parse(string(t), template, context)
	case nil:
		return Fallback(template, context, "")
	default:
		return v
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func tryDecode(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}

// balancedSpan walks backward from the rightmost closing brace or
// bracket (the later of the two wins) and matches nesting depth until
// the corresponding opener. Returns "" when no balanced span exists.
func balancedSpan(s string) string {
	end := strings.LastIndexByte(s, '}')
	closer, opener := byte('}'), byte('{')
	if i := strings.LastIndexByte(s, ']'); i > end {
		end = i
		closer, opener = ']', '['
	}
	if end < 0 {
		return ""
	}
	depth := 0
	for i := end; i >= 0; i-- {
		switch s[i] {
		case closer:
			depth++
		case opener:
			depth--
			if depth == 0 {
				return s[i : end+1]
			}
		}
	}
	return ""
}

func decodeLines(s string) []any {
	var out []any
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			out = append(out, obj)
		}
	}
	return out
}

// Fallback builds the value returned when parsing fails outright. The
// template's falsy fields are coerced to their canonical empty form so
// downstream consumers see the expected shape. The raw text survives
// only as a bounded preview for debugging.
func Fallback(template Record, context, raw string) Record {
	out := Record{}
	for k, v := range template {
		out[k] = emptyOf(v)
	}
	if len(template) == 0 {
		out["error"] = "failed to parse model response"
	}
	out["_parsing_error"] = true
	out["_context"] = context
	out["_original_data_preview"] = preview(raw, 100)
	return out
}

func emptyOf(v any) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return ""
		}
	case []any:
		if len(t) == 0 {
			return []any{}
		}
	case map[string]any:
		if len(t) == 0 {
			return map[string]any{}
		}
	case nil:
		return ""
	}
	return v
}

func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
