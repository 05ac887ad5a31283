package llm

import (
	"encoding/json"
	"testing"
)

func TestTrimIdempotent(t *testing.T) {
	cases := []MessageContent{
		TextContent("  padded  "),
		TextContent("already trimmed"),
		TextContent(""),
		PartsContent([]Part{{Kind: PartText, Text: " a "}, {Kind: PartReasoning, Text: "b\n"}}),
	}
	for _, c := range cases {
		once := c.Trim()
		twice := once.Trim()
		if once.AsText() != twice.AsText() {
			t.Errorf("trim not idempotent: %q vs %q", once.AsText(), twice.AsText())
		}
	}
}

func TestAsTextExcludesReasoning(t *testing.T) {
	c := PartsContent([]Part{
		{Kind: PartReasoning, Text: "hidden chain"},
		{Kind: PartText, Text: "visible"},
		{Kind: PartText, Text: "also visible"},
	})
	if got := c.AsText(); got != "visible\nalso visible" {
		t.Errorf("AsText = %q", got)
	}
}

func TestContentJSONRoundTrip(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		data, err := json.Marshal(TextContent("hello"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != `"hello"` {
			t.Errorf("marshal = %s", data)
		}
		var back MessageContent
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if back.AsText() != "hello" {
			t.Errorf("round trip = %q", back.AsText())
		}
	})

	t.Run("parts", func(t *testing.T) {
		orig := PartsContent([]Part{{Kind: PartReasoning, Text: "r"}, {Kind: PartText, Text: "t"}})
		data, err := json.Marshal(orig)
		if err != nil {
			t.Fatal(err)
		}
		var back MessageContent
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if !back.IsParts() || len(back.Parts()) != 2 {
			t.Fatalf("round trip lost parts: %+v", back)
		}
		if back.AsText() != "t" {
			t.Errorf("AsText = %q", back.AsText())
		}
	})

	t.Run("null", func(t *testing.T) {
		var back MessageContent
		if err := json.Unmarshal([]byte("null"), &back); err != nil {
			t.Fatal(err)
		}
		if back.AsText() != "" {
			t.Errorf("null content should be empty, got %q", back.AsText())
		}
	})
}

func TestMessageHelpers(t *testing.T) {
	m := ToolResultMessage("call_1", "result body")
	if m.Role != "tool" || m.ToolCallID != "call_1" || m.ContentString() != "result body" {
		t.Errorf("ToolResultMessage = %+v", m)
	}
}
