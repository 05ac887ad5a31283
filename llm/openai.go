package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts the OpenAI Chat Completions API to the neutral
// Provider interface via the sashabaranov SDK. Any OpenAI-compatible
// endpoint works through the baseURL override.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIProvider creates an OpenAI adapter. baseURL overrides the default
// endpoint when non-empty.
func NewOpenAIProvider(apiKey, model string, maxTokens int, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{
		Streaming:   true,
		ToolCalling: true,
	}
}

// Generate sends a non-streaming request.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	chatReq := p.buildRequest(req, false)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, decodeOpenAIError(err, p.modelFor(req))
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindProviderInternal, Provider: "openai", Model: p.modelFor(req), Message: "no choices in response", Retryable: true}
	}

	choice := resp.Choices[0]
	var calls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if resp.Usage.PromptTokensDetails != nil {
		usage.CachedInputTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	return &Response{
		Message:      AssistantMessage(TextContent(choice.Message.Content), calls),
		FinishReason: string(choice.FinishReason),
		Usage:        usage,
	}, nil
}

// Stream sends a streaming request and converts chunked deltas into the
// neutral protocol. Tool-call argument fragments arrive contiguously per
// call; ends are emitted before Done.
func (p *OpenAIProvider) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	chatReq := p.buildRequest(req, true)

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, decodeOpenAIError(err, p.modelFor(req))
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		// Tool-call IDs in order of appearance, indexed by the stream's
		// per-call index. ended tracks which have had their End emitted.
		idByIndex := make(map[int]string)
		var openOrder []int
		ended := make(map[string]bool)
		usage := Usage{}
		finishReason := ""

		closeOpenCalls := func() {
			for _, idx := range openOrder {
				id := idByIndex[idx]
				if !ended[id] {
					events <- StreamEvent{Kind: EventToolCallEnd, ID: id}
					ended[id] = true
				}
			}
		}

		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					closeOpenCalls()
					events <- StreamEvent{Kind: EventUsageUpdate, Usage: &usage}
					events <- StreamEvent{Kind: EventDone, FinishReason: finishReason}
					return
				}
				events <- StreamEvent{Kind: EventError, Err: decodeOpenAIError(err, p.modelFor(req))}
				return
			}

			if resp.Usage != nil {
				usage.InputTokens = resp.Usage.PromptTokens
				usage.OutputTokens = resp.Usage.CompletionTokens
				if resp.Usage.PromptTokensDetails != nil {
					usage.CachedInputTokens = resp.Usage.PromptTokensDetails.CachedTokens
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}

			choice := resp.Choices[0]
			if choice.Delta.Content != "" {
				events <- StreamEvent{Kind: EventTextDelta, Text: choice.Delta.Content}
			}

			for _, tc := range choice.Delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				if tc.ID != "" {
					if _, seen := idByIndex[index]; !seen {
						// A new call starting closes out earlier ones so
						// that deltas per id stay contiguous.
						closeOpenCalls()
						idByIndex[index] = tc.ID
						openOrder = append(openOrder, index)
						events <- StreamEvent{Kind: EventToolCallStart, ID: tc.ID, Name: tc.Function.Name}
					}
				}
				id := idByIndex[index]
				if id != "" && tc.Function.Arguments != "" {
					events <- StreamEvent{Kind: EventToolCallArgDelta, ID: id, ArgFragment: tc.Function.Arguments}
				}
			}

			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
				closeOpenCalls()
			}
		}
	}()

	return events, nil
}

func (p *OpenAIProvider) modelFor(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

func (p *OpenAIProvider) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     p.modelFor(req),
		Messages:  convertOpenAIMessages(req.Messages),
		MaxTokens: maxTokens,
		Stream:    stream,
		Stop:      req.Stop,
	}
	if stream {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}
	return chatReq
}

func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.ContentString(),
		}
		if msg.Role == "tool" {
			out.Role = openai.ChatMessageRoleTool
			out.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		result = append(result, out)
	}
	return result
}

func convertOpenAITools(tools []ToolDef) []openai.Tool {
	var result []openai.Tool
	for _, tool := range tools {
		if tool.Deferred {
			// The Chat Completions dialect has no deferred-tool support;
			// the session falls back to sending everything non-deferred
			// before reaching this adapter.
			continue
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return result
}
