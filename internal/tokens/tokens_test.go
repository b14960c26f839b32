package tokens

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRatioForModelPrefixes(t *testing.T) {
	cases := []struct {
		model string
		want  float64
	}{
		{"claude-3-5-sonnet-20241022", 3.4},
		{"claude-3-opus", 3.4},
		{"claude-instant", 3.5},
		{"gpt-4o-mini", 3.7},
		{"gpt-4-turbo", 3.8},
		{"gpt-3.5-turbo", 4.0},
		{"mystery-model-9000", genericCharsPerToken},
		{"", genericCharsPerToken},
	}
	for _, tc := range cases {
		if got := ratioForModel(tc.model); got != tc.want {
			t.Errorf("ratioForModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

func TestCountDeterministicAndMonotone(t *testing.T) {
	est := NewEstimator("claude-3-5-sonnet-20241022")
	if est.Count("") != 0 {
		t.Fatal("empty text should cost zero")
	}
	if est.Count("x") < 1 {
		t.Fatal("non-empty text should cost at least one token")
	}
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	a, b := est.Count(text), est.Count(text)
	if a != b {
		t.Fatalf("count not deterministic: %d vs %d", a, b)
	}
	if est.Count(text+text) <= a {
		t.Fatal("doubling input should raise the estimate")
	}
}

func TestCountValueSerializes(t *testing.T) {
	est := NewEstimator("claude-3-5-sonnet-20241022")
	if est.CountValue(nil) != 0 {
		t.Fatal("nil should cost zero")
	}
	v := map[string]any{"drug_name": "ABC-123", "phase": "Phase II"}
	blob, _ := json.Marshal(v)
	if got, want := est.CountValue(v), est.Count(string(blob)); got != want {
		t.Fatalf("CountValue = %d, want %d (canonical JSON cost)", got, want)
	}
	if est.CountValue("plain") != est.Count("plain") {
		t.Fatal("string values should be costed as-is")
	}
}

func TestFromJSONClassification(t *testing.T) {
	if p := FromJSON([]byte(`[1,2,3]`)); p.Kind != List || len(p.Items) != 3 {
		t.Fatalf("array misclassified: %+v", p)
	}
	p := FromJSON([]byte(`{"z":1,"a":2,"m":3}`))
	if p.Kind != Object {
		t.Fatalf("object misclassified: %+v", p)
	}
	keys := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		keys = append(keys, m.Key)
	}
	if strings.Join(keys, ",") != "z,a,m" {
		t.Fatalf("member order not preserved: %v", keys)
	}
	if p := FromJSON([]byte(`just some prose`)); p.Kind != Text {
		t.Fatalf("prose misclassified: %+v", p)
	}
	if p := FromJSON([]byte(`{broken`)); p.Kind != Text {
		t.Fatalf("invalid JSON should fall back to text: %+v", p)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	raw := `{"z":{"nested":true},"a":[1,2],"m":"s"}`
	p := FromJSON([]byte(raw))
	var want, got any
	if err := json.Unmarshal([]byte(raw), &want); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(p.Encode()), &got); err != nil {
		t.Fatalf("Encode produced invalid JSON: %v", err)
	}
	if wb, _ := json.Marshal(want); string(wb) != mustMarshal(t, got) {
		t.Fatalf("round trip mismatch: %s", p.Encode())
	}
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestSplitWithinBudgetUnchanged(t *testing.T) {
	est := NewEstimator("claude-3-5-sonnet-20241022")
	ch := NewChunker(est)
	p := FromText("short input.")
	chunks := ch.Split(p, 1000)
	if len(chunks) != 1 || chunks[0].Text != p.Text {
		t.Fatalf("within-budget payload should pass through, got %d chunks", len(chunks))
	}
}

func TestSplitListCompleteness(t *testing.T) {
	est := NewEstimator("claude-3-5-sonnet-20241022")
	ch := NewChunker(est)
	var items []json.RawMessage
	for i := 0; i < 40; i++ {
		items = append(items, json.RawMessage(`{"drug_name":"compound-`+strings.Repeat("x", i%7)+`","phase":"Phase II","sponsor":"Acme Bio"}`))
	}
	p := Payload{Kind: List, Items: items}
	chunks := ch.Split(p, 60)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	total := 0
	for i, c := range chunks {
		if c.Kind != List {
			t.Fatalf("chunk %d is not a list", i)
		}
		total += len(c.Items)
	}
	if total != len(items) {
		t.Fatalf("elements lost or duplicated: %d != %d", total, len(items))
	}
	// Concatenation preserves order.
	idx := 0
	for _, c := range chunks {
		for _, item := range c.Items {
			if string(item) != string(items[idx]) {
				t.Fatalf("order broken at element %d", idx)
			}
			idx++
		}
	}
}

func TestSplitOversizedElementAlone(t *testing.T) {
	est := NewEstimator("claude-3-5-sonnet-20241022")
	ch := NewChunker(est)
	huge := json.RawMessage(`"` + strings.Repeat("a", 4000) + `"`)
	p := Payload{Kind: List, Items: []json.RawMessage{
		json.RawMessage(`"small"`), huge, json.RawMessage(`"tail"`),
	}}
	chunks := ch.Split(p, 50)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks (oversized element alone), got %d", len(chunks))
	}
	if len(chunks[1].Items) != 1 || string(chunks[1].Items[0]) != string(huge) {
		t.Fatal("oversized element was not isolated in its own chunk")
	}
}

func TestSplitObjectPreservesOrder(t *testing.T) {
	est := NewEstimator("claude-3-5-sonnet-20241022")
	ch := NewChunker(est)
	raw := `{` +
		`"first":"` + strings.Repeat("a", 100) + `",` +
		`"second":"` + strings.Repeat("b", 100) + `",` +
		`"third":"` + strings.Repeat("c", 100) + `",` +
		`"fourth":"` + strings.Repeat("d", 100) + `"}`
	p := FromJSON([]byte(raw))
	chunks := ch.Split(p, 40)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var keys []string
	for _, c := range chunks {
		if c.Kind != Object {
			t.Fatal("object chunk lost its kind")
		}
		for _, m := range c.Members {
			keys = append(keys, m.Key)
		}
	}
	if strings.Join(keys, ",") != "first,second,third,fourth" {
		t.Fatalf("member order broken: %v", keys)
	}
}

func TestSplitTextBudgetAndOverlap(t *testing.T) {
	est := NewEstimator("claude-3-5-sonnet-20241022")
	ch := NewChunker(est)
	ch.OverlapTokens = 10
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("Competitor programs continue to advance through the clinic. ")
	}
	chunks := ch.Split(FromText(b.String()), 120)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Kind != Text {
			t.Fatalf("chunk %d is not text", i)
		}
		// Budget plus the overlap allowance.
		if got := est.Count(c.Text); got > 120+ch.OverlapTokens+est.Count("Competitor programs continue to advance through the clinic. ") {
			t.Fatalf("chunk %d far over budget: %d tokens", i, got)
		}
	}
	// Overlap: second chunk starts with the tail of the first.
	if !strings.Contains(chunks[0].Text, strings.Fields(chunks[1].Text)[0]) {
		t.Fatal("second chunk carries no overlap from the first")
	}
}

func TestSplitTextNoBoundary(t *testing.T) {
	est := NewEstimator("claude-3-5-sonnet-20241022")
	ch := NewChunker(est)
	ch.OverlapTokens = 0
	text := strings.Repeat("word ", 200)
	chunks := ch.Split(FromText(text), 50)
	if len(chunks) == 0 {
		t.Fatal("text without sentence boundaries must still yield a chunk")
	}
}
