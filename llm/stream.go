package llm

import (
	"fmt"
	"strings"
)

// EventKind tags the variants of the streaming protocol. Deltas for a tool
// call id arrive contiguously and in order; ToolCallEnd precedes Done;
// argument fragments concatenate into valid JSON only at ToolCallEnd.
type EventKind int

const (
	EventTextDelta EventKind = iota
	EventToolCallStart
	EventToolCallArgDelta
	EventToolCallEnd
	EventReasoningDelta
	EventUsageUpdate
	EventError
	EventDone
)

// StreamEvent is one element of the lazy, finite, non-restartable event
// sequence produced by a provider's Stream.
type StreamEvent struct {
	Kind         EventKind
	Text         string // TextDelta, ReasoningDelta
	ID           string // tool-call events
	Name         string // ToolCallStart
	ArgFragment  string // ToolCallArgDelta
	Usage        *Usage // UsageUpdate
	Err          *Error // Error
	FinishReason string // Done
}

// AccumulateStream collects streaming events into a complete Response,
// calling onText for each text delta for real-time display. It enforces the
// protocol's ordering rules: events after Done are ignored, an argument
// delta after its call's ToolCallEnd is an error, and fragments are parsed
// only once the call ends.
func AccumulateStream(events <-chan StreamEvent, onText func(string)) (*Response, error) {
	var text strings.Builder
	var reasoning strings.Builder
	var order []string
	open := make(map[string]*ToolCall)
	closed := make(map[string]bool)
	var args = make(map[string]*strings.Builder)
	var usage Usage
	var finishReason string
	done := false

	for event := range events {
		if done {
			// Boundary rule: stream events after Done are ignored.
			continue
		}
		switch event.Kind {
		case EventTextDelta:
			text.WriteString(event.Text)
			if onText != nil {
				onText(event.Text)
			}
		case EventReasoningDelta:
			reasoning.WriteString(event.Text)
		case EventToolCallStart:
			if _, exists := open[event.ID]; exists {
				return nil, fmt.Errorf("duplicate ToolCallStart for id %q", event.ID)
			}
			open[event.ID] = &ToolCall{ID: event.ID, Name: event.Name}
			args[event.ID] = &strings.Builder{}
			order = append(order, event.ID)
		case EventToolCallArgDelta:
			if closed[event.ID] {
				return nil, fmt.Errorf("ToolCallArgDelta after ToolCallEnd for id %q", event.ID)
			}
			b, ok := args[event.ID]
			if !ok {
				return nil, fmt.Errorf("ToolCallArgDelta for unknown id %q", event.ID)
			}
			b.WriteString(event.ArgFragment)
		case EventToolCallEnd:
			tc, ok := open[event.ID]
			if !ok {
				return nil, fmt.Errorf("ToolCallEnd for unknown id %q", event.ID)
			}
			tc.Arguments = args[event.ID].String()
			if tc.Arguments == "" {
				tc.Arguments = "{}"
			}
			closed[event.ID] = true
		case EventUsageUpdate:
			if event.Usage != nil {
				usage = *event.Usage
			}
		case EventError:
			if event.Err != nil {
				return nil, event.Err
			}
			return nil, fmt.Errorf("stream error event with no payload")
		case EventDone:
			finishReason = event.FinishReason
			done = true
		}
	}

	var calls []ToolCall
	for _, id := range order {
		if !closed[id] {
			return nil, fmt.Errorf("stream ended with unclosed tool call %q", id)
		}
		calls = append(calls, *open[id])
	}

	content := buildContent(text.String(), reasoning.String())
	return &Response{
		Message:      AssistantMessage(content, calls),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

func buildContent(text, reasoning string) MessageContent {
	if reasoning == "" {
		return TextContent(text)
	}
	parts := []Part{{Kind: PartReasoning, Text: reasoning}}
	if text != "" {
		parts = append(parts, Part{Kind: PartText, Text: text})
	}
	return PartsContent(parts)
}
