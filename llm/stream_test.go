package llm

import (
	"strings"
	"testing"
)

func feed(events ...StreamEvent) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestAccumulateStreamTextOnly(t *testing.T) {
	ch := feed(
		StreamEvent{Kind: EventTextDelta, Text: "Hello "},
		StreamEvent{Kind: EventTextDelta, Text: "world!"},
		StreamEvent{Kind: EventDone, FinishReason: "stop"},
	)

	var collected strings.Builder
	resp, err := AccumulateStream(ch, func(text string) {
		collected.WriteString(text)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Message.ContentString() != "Hello world!" {
		t.Errorf("expected 'Hello world!', got %q", resp.Message.ContentString())
	}
	if collected.String() != "Hello world!" {
		t.Errorf("onText collected %q", collected.String())
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected finish_reason=stop, got %q", resp.FinishReason)
	}
}

func TestAccumulateStreamToolCalls(t *testing.T) {
	ch := feed(
		StreamEvent{Kind: EventToolCallStart, ID: "call_abc", Name: "find_files"},
		StreamEvent{Kind: EventToolCallArgDelta, ID: "call_abc", ArgFragment: `{"pat`},
		StreamEvent{Kind: EventToolCallArgDelta, ID: "call_abc", ArgFragment: `tern":"*.go"}`},
		StreamEvent{Kind: EventToolCallEnd, ID: "call_abc"},
		StreamEvent{Kind: EventToolCallStart, ID: "call_def", Name: "read_file"},
		StreamEvent{Kind: EventToolCallArgDelta, ID: "call_def", ArgFragment: `{"path":"main.go"}`},
		StreamEvent{Kind: EventToolCallEnd, ID: "call_def"},
		StreamEvent{Kind: EventDone, FinishReason: "tool_calls"},
	)

	resp, err := AccumulateStream(ch, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Message.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.Message.ToolCalls))
	}
	first := resp.Message.ToolCalls[0]
	if first.ID != "call_abc" || first.Name != "find_files" {
		t.Errorf("first call = %+v", first)
	}
	if first.Arguments != `{"pattern":"*.go"}` {
		t.Errorf("fragments did not concatenate: %q", first.Arguments)
	}
	if resp.Message.ToolCalls[1].ID != "call_def" {
		t.Errorf("call ordering not preserved: %+v", resp.Message.ToolCalls[1])
	}
}

func TestAccumulateStreamIgnoresEventsAfterDone(t *testing.T) {
	ch := feed(
		StreamEvent{Kind: EventTextDelta, Text: "final"},
		StreamEvent{Kind: EventDone, FinishReason: "stop"},
		StreamEvent{Kind: EventTextDelta, Text: " trailing garbage"},
	)

	resp, err := AccumulateStream(ch, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.ContentString() != "final" {
		t.Errorf("events after Done must be ignored, got %q", resp.Message.ContentString())
	}
}

func TestAccumulateStreamArgDeltaAfterEndIsError(t *testing.T) {
	ch := feed(
		StreamEvent{Kind: EventToolCallStart, ID: "c1", Name: "grep"},
		StreamEvent{Kind: EventToolCallEnd, ID: "c1"},
		StreamEvent{Kind: EventToolCallArgDelta, ID: "c1", ArgFragment: `{"late":true}`},
	)

	if _, err := AccumulateStream(ch, nil); err == nil {
		t.Fatal("expected error for ToolCallArgDelta after ToolCallEnd")
	}
}

func TestAccumulateStreamEmptyArgumentsBecomeObject(t *testing.T) {
	ch := feed(
		StreamEvent{Kind: EventToolCallStart, ID: "c1", Name: "read_tasks"},
		StreamEvent{Kind: EventToolCallEnd, ID: "c1"},
		StreamEvent{Kind: EventDone, FinishReason: "tool_calls"},
	)

	resp, err := AccumulateStream(ch, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.ToolCalls[0].Arguments != "{}" {
		t.Errorf("expected empty-object arguments, got %q", resp.Message.ToolCalls[0].Arguments)
	}
}

func TestAccumulateStreamErrorEvent(t *testing.T) {
	wantErr := &Error{Kind: KindRateLimited, Provider: "openai", Message: "slow down", Retryable: true}
	ch := feed(
		StreamEvent{Kind: EventTextDelta, Text: "partial"},
		StreamEvent{Kind: EventError, Err: wantErr},
	)

	_, err := AccumulateStream(ch, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	pe, ok := AsError(err)
	if !ok || pe.Kind != KindRateLimited {
		t.Errorf("expected normalized RateLimited error, got %v", err)
	}
}

func TestAccumulateStreamReasoningParts(t *testing.T) {
	ch := feed(
		StreamEvent{Kind: EventReasoningDelta, Text: "thinking about it"},
		StreamEvent{Kind: EventTextDelta, Text: "the answer"},
		StreamEvent{Kind: EventDone, FinishReason: "stop"},
	)

	resp, err := AccumulateStream(ch, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Message.Content.IsParts() {
		t.Fatal("expected multi-part content when reasoning present")
	}
	// Reasoning parts are excluded from the text view.
	if resp.Message.ContentString() != "the answer" {
		t.Errorf("AsText = %q", resp.Message.ContentString())
	}
}

func TestUsageUpdatePropagates(t *testing.T) {
	ch := feed(
		StreamEvent{Kind: EventTextDelta, Text: "ok"},
		StreamEvent{Kind: EventUsageUpdate, Usage: &Usage{InputTokens: 120, OutputTokens: 4, CachedInputTokens: 100}},
		StreamEvent{Kind: EventDone, FinishReason: "stop"},
	)

	resp, err := AccumulateStream(ch, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.CachedInputTokens != 100 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}
