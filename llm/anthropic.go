package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// advancedToolUseBeta is the feature header attached whenever any deferred
// tool is present in the request.
const advancedToolUseBeta = "advanced-tool-use-2025-06-01"

// AnthropicProvider adapts the Anthropic Messages API to the neutral
// Provider interface via the official SDK.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicProvider creates an Anthropic adapter. baseURL overrides the
// default endpoint when non-empty.
func NewAnthropicProvider(apiKey, model string, maxTokens int, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Capabilities() Capabilities {
	return Capabilities{
		Streaming:       true,
		ToolCalling:     true,
		AdvancedToolUse: true,
		PromptCaching:   true,
	}
}

// Generate sends a non-streaming request.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	params, opts, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params, opts...)
	if err != nil {
		return nil, decodeAnthropicError(err, p.modelFor(req))
	}

	var text string
	var calls []ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			toolUse := block.AsToolUse()
			calls = append(calls, ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: string(toolUse.Input),
			})
		}
	}

	return &Response{
		Message:      AssistantMessage(TextContent(text), calls),
		FinishReason: anthropicFinishReason(string(msg.StopReason)),
		Usage: Usage{
			InputTokens:       int(msg.Usage.InputTokens),
			OutputTokens:      int(msg.Usage.OutputTokens),
			CachedInputTokens: int(msg.Usage.CacheReadInputTokens),
		},
	}, nil
}

// Stream sends a streaming request and converts SSE events into the neutral
// protocol. The returned channel is closed when the stream ends.
func (p *AnthropicProvider) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	params, opts, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, params, opts...)
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		usage := Usage{}
		finishReason := ""
		currentToolID := ""

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				messageStart := event.AsMessageStart()
				usage.InputTokens = int(messageStart.Message.Usage.InputTokens)
				usage.CachedInputTokens = int(messageStart.Message.Usage.CacheReadInputTokens)

			case "content_block_start":
				contentBlock := event.AsContentBlockStart().ContentBlock
				if contentBlock.Type == "tool_use" {
					toolUse := contentBlock.AsToolUse()
					currentToolID = toolUse.ID
					events <- StreamEvent{Kind: EventToolCallStart, ID: toolUse.ID, Name: toolUse.Name}
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						events <- StreamEvent{Kind: EventTextDelta, Text: delta.Text}
					}
				case "thinking_delta":
					if delta.Thinking != "" {
						events <- StreamEvent{Kind: EventReasoningDelta, Text: delta.Thinking}
					}
				case "input_json_delta":
					if delta.PartialJSON != "" && currentToolID != "" {
						events <- StreamEvent{Kind: EventToolCallArgDelta, ID: currentToolID, ArgFragment: delta.PartialJSON}
					}
				}

			case "content_block_stop":
				if currentToolID != "" {
					events <- StreamEvent{Kind: EventToolCallEnd, ID: currentToolID}
					currentToolID = ""
				}

			case "message_delta":
				messageDelta := event.AsMessageDelta()
				if messageDelta.Usage.OutputTokens > 0 {
					usage.OutputTokens = int(messageDelta.Usage.OutputTokens)
				}
				if messageDelta.Delta.StopReason != "" {
					finishReason = anthropicFinishReason(string(messageDelta.Delta.StopReason))
				}

			case "message_stop":
				events <- StreamEvent{Kind: EventUsageUpdate, Usage: &usage}
				events <- StreamEvent{Kind: EventDone, FinishReason: finishReason}
				return
			}
		}

		if err := stream.Err(); err != nil {
			events <- StreamEvent{Kind: EventError, Err: decodeAnthropicError(err, p.modelFor(req))}
		}
	}()

	return events, nil
}

func (p *AnthropicProvider) modelFor(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

func (p *AnthropicProvider) buildParams(req *Request) (anthropic.MessageNewParams, []option.RequestOption, error) {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	messages, system, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelFor(req)),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if system != "" {
		// Stable prefix blocks are marked cacheable; the cached-read count
		// comes back through usage.CachedInputTokens.
		params.System = []anthropic.TextBlockParam{{
			Type:         "text",
			Text:         system,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}

	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	hasDeferred := false
	if len(req.Tools) > 0 {
		tools, deferred, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, nil, err
		}
		params.Tools = tools
		hasDeferred = deferred
	}

	var opts []option.RequestOption
	if hasDeferred {
		opts = append(opts, option.WithHeader("anthropic-beta", advancedToolUseBeta))
	}
	return params, opts, nil
}

// convertAnthropicMessages maps the neutral model to Anthropic's content
// blocks. System messages are pulled out (Anthropic takes them separately);
// tool-role messages become user messages carrying a tool_result block.
func convertAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string, error) {
	var result []anthropic.MessageParam
	system := ""

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += msg.ContentString()

		case "tool":
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.ContentString(), false),
			))

		case "assistant":
			var content []anthropic.ContentBlockParamUnion
			if text := msg.ContentString(); text != "" {
				content = append(content, anthropic.NewTextBlock(text))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					return nil, "", fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) > 0 {
				result = append(result, anthropic.NewAssistantMessage(content...))
			}

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.ContentString())))
		}
	}

	return result, system, nil
}

func convertAnthropicTools(tools []ToolDef) ([]anthropic.ToolUnionParam, bool, error) {
	var result []anthropic.ToolUnionParam
	hasDeferred := false

	for _, tool := range tools {
		if tool.Deferred {
			// Deferred tools are withheld from the schema list; the model
			// reaches them through search_tools, and the session expands
			// them on the next request.
			hasDeferred = true
			continue
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, false, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, false, fmt.Errorf("invalid tool schema for %s", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}

	return result, hasDeferred, nil
}

func anthropicFinishReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return stopReason
	}
}
