package tokens

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind discriminates the payload variants a stage input can take.
type Kind int

const (
	// Text is free prose, split on sentence boundaries.
	Text Kind = iota
	// List is a JSON array, split on element boundaries.
	List
	// Object is a JSON object, split on member boundaries with
	// original key order preserved.
	Object
)

// Member is one key/value pair of an Object payload, in source order.
type Member struct {
	Key   string
	Value json.RawMessage
}

// Payload is a tagged union over the input shapes the batch pipeline
// accepts: free text, a JSON array, or a JSON object. Exactly one of
// Text, Items, or Members is meaningful, selected by Kind.
type Payload struct {
	Kind    Kind
	Text    string
	Items   []json.RawMessage
	Members []Member
}

// FromText wraps raw prose as a Text payload.
func FromText(s string) Payload {
	return Payload{Kind: Text, Text: s}
}

// FromJSON classifies a raw byte slice: a JSON array becomes a List
// payload, a JSON object an Object payload with member order preserved,
// and anything else (scalars, invalid JSON, prose) a Text payload. It
// never fails.
func FromJSON(raw []byte) Payload {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{Kind: Text}
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			return Payload{Kind: List, Items: items}
		}
	case '{':
		if members, err := decodeMembers(trimmed); err == nil {
			return Payload{Kind: Object, Members: members}
		}
	}
	return Payload{Kind: Text, Text: string(trimmed)}
}

// FromValue serializes an arbitrary JSON-compatible value and classifies
// it via FromJSON. Strings are treated as text, not re-parsed.
func FromValue(v any) Payload {
	switch t := v.(type) {
	case nil:
		return Payload{Kind: Text}
	case string:
		return FromText(t)
	case json.RawMessage:
		return FromJSON(t)
	case []byte:
		return FromJSON(t)
	case Payload:
		return t
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return Payload{Kind: Text}
	}
	return FromJSON(blob)
}

// decodeMembers walks the object with a token-stream decoder so member
// order survives the round trip, which map[string]any would destroy.
func decodeMembers(raw []byte) ([]Member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, err
	}
	var members []Member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		members = append(members, Member{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, err
	}
	return members, nil
}

// Encode renders the payload back to the wire form handed to a
// completion call. Concatenating the encodings of all chunks of a
// payload, in order, reconstructs a value equivalent to the original.
func (p Payload) Encode() string {
	switch p.Kind {
	case List:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range p.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			b.Write(item)
		}
		b.WriteByte(']')
		return b.String()
	case Object:
		var b strings.Builder
		b.WriteByte('{')
		for i, m := range p.Members {
			if i > 0 {
				b.WriteByte(',')
			}
			key, _ := json.Marshal(m.Key)
			b.Write(key)
			b.WriteByte(':')
			b.Write(m.Value)
		}
		b.WriteByte('}')
		return b.String()
	default:
		return p.Text
	}
}

// Empty reports whether the payload carries no content at all.
func (p Payload) Empty() bool {
	switch p.Kind {
	case List:
		return len(p.Items) == 0
	case Object:
		return len(p.Members) == 0
	default:
		return strings.TrimSpace(p.Text) == ""
	}
}
