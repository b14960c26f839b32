package tokens

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DefaultOverlapTokens seeds each new text chunk with this much trailing
// context from the previous chunk so the consuming model call does not
// lose cross-boundary sentences.
const DefaultOverlapTokens = 100

var sentenceBoundary = regexp.MustCompile(`(?s)(.*?[.!?])(\s+|$)`)

// Chunker splits payloads that exceed a token budget into an ordered
// sequence of sub-payloads, each within budget, without ever splitting
// a list element or object member.
type Chunker struct {
	est *Estimator

	// OverlapTokens applies to Text payloads only. Zero disables
	// overlap seeding.
	OverlapTokens int
}

func NewChunker(est *Estimator) *Chunker {
	return &Chunker{est: est, OverlapTokens: DefaultOverlapTokens}
}

// Split returns the payload unchanged when it fits the budget, otherwise
// an in-order sequence of chunks. A single element or member whose own
// cost exceeds the budget is placed alone in its own chunk rather than
// split or dropped, so progress is guaranteed for any budget >= 1.
func (c *Chunker) Split(p Payload, budget int) []Payload {
	if budget < 1 {
		budget = 1
	}
	if c.est.Count(p.Encode()) <= budget {
		return []Payload{p}
	}
	switch p.Kind {
	case List:
		return c.splitList(p.Items, budget)
	case Object:
		return c.splitObject(p.Members, budget)
	default:
		return c.splitText(p.Text, budget)
	}
}

func (c *Chunker) splitList(items []json.RawMessage, budget int) []Payload {
	var chunks []Payload
	var current []json.RawMessage
	cost := 2 // brackets
	for _, item := range items {
		itemCost := c.est.Count(string(item)) + 1 // trailing comma
		if cost+itemCost > budget && len(current) > 0 {
			chunks = append(chunks, Payload{Kind: List, Items: current})
			current = nil
			cost = 2
		}
		current = append(current, item)
		cost += itemCost
	}
	if len(current) > 0 {
		chunks = append(chunks, Payload{Kind: List, Items: current})
	}
	return chunks
}

func (c *Chunker) splitObject(members []Member, budget int) []Payload {
	var chunks []Payload
	var current []Member
	cost := 2 // braces
	for _, m := range members {
		key, _ := json.Marshal(m.Key)
		memberCost := c.est.Count(string(key)+":"+string(m.Value)) + 1
		if cost+memberCost > budget && len(current) > 0 {
			chunks = append(chunks, Payload{Kind: Object, Members: current})
			current = nil
			cost = 2
		}
		current = append(current, m)
		cost += memberCost
	}
	if len(current) > 0 {
		chunks = append(chunks, Payload{Kind: Object, Members: current})
	}
	return chunks
}

func (c *Chunker) splitText(text string, budget int) []Payload {
	sentences := splitSentences(text)
	var chunks []Payload
	var current strings.Builder
	cost := 0
	for _, sentence := range sentences {
		sentenceCost := c.est.Count(sentence)
		if cost+sentenceCost > budget && current.Len() > 0 {
			closed := strings.TrimSpace(current.String())
			chunks = append(chunks, FromText(closed))
			current.Reset()
			if c.OverlapTokens > 0 {
				seed := c.overlapTail(closed)
				current.WriteString(seed)
			}
			current.WriteString(sentence)
			cost = c.est.Count(current.String())
			continue
		}
		current.WriteString(sentence)
		cost += sentenceCost
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, FromText(strings.TrimSpace(current.String())))
	}
	return chunks
}

// overlapTail returns roughly OverlapTokens worth of trailing text,
// snapped back to a word boundary so the seed reads cleanly.
func (c *Chunker) overlapTail(text string) string {
	want := int(float64(c.OverlapTokens) * c.est.ratio)
	runes := []rune(text)
	if len(runes) <= want {
		return text + " "
	}
	tail := string(runes[len(runes)-want:])
	if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return tail + " "
}

// splitSentences slices text at sentence-ending punctuation, keeping
// each sentence's trailing whitespace so concatenation is lossless when
// overlap is disabled. Text without any boundary comes back whole.
func splitSentences(text string) []string {
	matches := sentenceBoundary.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	var out []string
	end := 0
	for _, m := range matches {
		out = append(out, text[m[0]:m[1]])
		end = m[1]
	}
	if end < len(text) {
		out = append(out, text[end:])
	}
	return out
}
