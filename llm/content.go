package llm

import (
	"encoding/json"
	"strings"
)

// PartKind distinguishes the part variants of multi-part content.
type PartKind string

const (
	PartText      PartKind = "text"
	PartReasoning PartKind = "reasoning"
)

// Part is one element of multi-part message content.
type Part struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text"`
}

// MessageContent is either a single text blob or an ordered sequence of
// parts. The zero value is empty text.
type MessageContent struct {
	text  *string
	parts []Part
}

// TextContent creates single-text content.
func TextContent(s string) MessageContent {
	return MessageContent{text: &s}
}

// PartsContent creates multi-part content.
func PartsContent(parts []Part) MessageContent {
	return MessageContent{parts: parts}
}

// IsParts reports whether the content is the multi-part variant.
func (c MessageContent) IsParts() bool { return c.parts != nil }

// Parts returns the part sequence, or nil for single-text content.
func (c MessageContent) Parts() []Part { return c.parts }

// IsEmpty reports whether the content carries no text at all.
func (c MessageContent) IsEmpty() bool {
	return c.AsText() == ""
}

// AsText returns the text of single-text content directly, or the
// concatenated text parts (reasoning parts excluded) joined by newlines for
// multi-part content. Single-text content is returned without copying.
func (c MessageContent) AsText() string {
	if c.parts == nil {
		if c.text == nil {
			return ""
		}
		return *c.text
	}
	var texts []string
	for _, p := range c.parts {
		if p.Kind == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Trim returns content with leading/trailing whitespace removed from the
// text. Trim(Trim(x)) == Trim(x), and already-trimmed single-text content is
// returned as-is without allocating.
func (c MessageContent) Trim() MessageContent {
	if c.parts == nil {
		if c.text == nil {
			return c
		}
		trimmed := strings.TrimSpace(*c.text)
		if trimmed == *c.text {
			return c
		}
		return TextContent(trimmed)
	}
	changed := false
	out := make([]Part, len(c.parts))
	for i, p := range c.parts {
		t := strings.TrimSpace(p.Text)
		if t != p.Text {
			changed = true
		}
		out[i] = Part{Kind: p.Kind, Text: t}
	}
	if !changed {
		return c
	}
	return PartsContent(out)
}

// MarshalJSON encodes single-text content as a JSON string and multi-part
// content as an array of parts, mirroring how providers shape content.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.parts != nil {
		return json.Marshal(c.parts)
	}
	if c.text == nil {
		return json.Marshal("")
	}
	return json.Marshal(*c.text)
}

// UnmarshalJSON accepts a string, an array of parts, or null.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = MessageContent{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = TextContent(s)
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*c = PartsContent(parts)
	return nil
}
