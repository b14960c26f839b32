// Package tokens estimates completion-model token costs and splits
// oversized payloads into budget-bounded chunks.
package tokens

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// genericCharsPerToken approximates a byte-pair tokenizer for unknown
// models. Conservative for English prose mixed with JSON punctuation.
const genericCharsPerToken = 4.0

// modelRatios maps model-name prefixes to calibrated characters-per-token
// ratios. Longest matching prefix wins.
var modelRatios = []struct {
	prefix string
	ratio  float64
}{
	{"claude-3-5", 3.4},
	{"claude-3", 3.4},
	{"claude", 3.5},
	{"gpt-4o", 3.7},
	{"gpt-4", 3.8},
	{"gpt-3.5", 4.0},
}

// Estimator converts text and JSON payloads into estimated token counts
// for a named completion model. An unrecognized model name falls back to
// the generic ratio; construction never fails.
type Estimator struct {
	model string
	ratio float64
}

func NewEstimator(model string) *Estimator {
	return &Estimator{model: model, ratio: ratioForModel(model)}
}

func ratioForModel(model string) float64 {
	m := strings.ToLower(strings.TrimSpace(model))
	best := 0
	ratio := genericCharsPerToken
	for _, entry := range modelRatios {
		if strings.HasPrefix(m, entry.prefix) && len(entry.prefix) > best {
			best = len(entry.prefix)
			ratio = entry.ratio
		}
	}
	return ratio
}

// Model returns the model name the estimator was built for.
func (e *Estimator) Model() string { return e.model }

// Count estimates the token cost of text. Deterministic: equal input
// yields equal cost for the life of the process.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(utf8.RuneCountInString(text)) / e.ratio)
	if n < 1 {
		n = 1
	}
	return n
}

// CountValue estimates the token cost of an arbitrary JSON-compatible
// value by serializing it to canonical JSON first. A value that cannot
// be marshaled is costed on its Go string form; the caller never sees
// an error.
func (e *Estimator) CountValue(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return e.Count(t)
	case json.RawMessage:
		return e.Count(string(t))
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return e.Count(fmt.Sprintf("%v", v))
	}
	return e.Count(string(blob))
}
