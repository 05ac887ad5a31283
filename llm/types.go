// Package llm provides the provider abstraction: a neutral message and
// tool-call data model, a uniform generate/stream interface over remote LLM
// providers, a normalized error taxonomy, and stream accumulation helpers.
// Provider adapters (Anthropic, OpenAI) are the only place wire formats are
// spoken; everything above this package consumes the neutral model.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Provider is a capability set over a remote LLM: non-streaming generation
// plus an event stream, with feature flags consulted by the session before
// constructing requests.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
	Capabilities() Capabilities
}

// Capabilities are the feature flags of a provider adapter.
type Capabilities struct {
	Streaming       bool
	ToolCalling     bool
	AdvancedToolUse bool // deferred tools + search_tools expansion
	PromptCaching   bool
}

// Message is one record of the conversation. Insertion order is preserved
// and authoritative; messages are never reordered.
type Message struct {
	Role       string         `json:"role"`
	Content    MessageContent `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
}

// TextMessage creates a message with plain text content.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: TextContent(content), Timestamp: time.Now()}
}

// ToolResultMessage creates a tool result message bound to a call ID.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: "tool", Content: TextContent(content), ToolCallID: toolCallID, Timestamp: time.Now()}
}

// AssistantMessage creates an assistant message with optional tool calls.
func AssistantMessage(content MessageContent, toolCalls []ToolCall) Message {
	return Message{Role: "assistant", Content: content, ToolCalls: toolCalls, Timestamp: time.Now()}
}

// ContentString returns the message text, concatenating text parts for
// multi-part content.
func (m Message) ContentString() string {
	return m.Content.AsText()
}

// ToolCall is a structured request by the model to invoke a named tool.
// ID is provider-generated and unique within a turn; Arguments is a JSON
// object encoded as a string (fragments concatenate during streaming).
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef declares a tool available to the model. Deferred tools are held
// back from the initial schema list and surfaced through the search_tools
// meta-tool on providers with advanced tool use.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Deferred    bool            `json:"-"`
}

// Usage tracks token consumption reported by the provider.
type Usage struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	CachedInputTokens int `json:"cached_input_tokens"`
}

// Total returns input + output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Request is the neutral request shape. Adapters map it to the provider's
// native wire format.
type Request struct {
	Model           string
	Messages        []Message
	Tools           []ToolDef
	MaxOutputTokens int
	Temperature     float32
	Stop            []string
	ReasoningEffort string
	DeferByDefault  bool
	ToolSearch      bool
}

// Response is the non-streaming result: the assistant message with tool
// calls attached, usage, and the provider's finish reason.
type Response struct {
	Message      Message
	FinishReason string
	Usage        Usage
}
