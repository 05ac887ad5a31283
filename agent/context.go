package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lowkaihon/vtcode/llm"
	"github.com/lowkaihon/vtcode/tokenbudget"
)

// preservedTurns is how many of the most recent complete turns compaction
// keeps verbatim. Only the span between the system prompt and those turns
// is replaced by a summary.
const preservedTurns = 4

// progressSnapshotLimit bounds the .progress.md compaction snapshot.
const progressSnapshotLimit = 2048

// ContextStore is the append-only ordered message log. It is owned by the
// turn loop; other goroutines never mutate it. The only structural change
// besides append is compaction's ReplaceRange.
type ContextStore struct {
	messages []llm.Message
}

// NewContextStore creates a store seeded with the system prompt.
func NewContextStore(systemPrompt string) *ContextStore {
	return &ContextStore{messages: []llm.Message{llm.TextMessage("system", systemPrompt)}}
}

// Append adds a message at the end. O(1); insertion order is authoritative.
func (s *ContextStore) Append(msg llm.Message) {
	s.messages = append(s.messages, msg)
}

// Messages returns the canonical log. Callers must not mutate it.
func (s *ContextStore) Messages() []llm.Message { return s.messages }

// Len returns the message count.
func (s *ContextStore) Len() int { return len(s.messages) }

// Truncate drops every message at or after index n.
func (s *ContextStore) Truncate(n int) {
	if n >= 0 && n <= len(s.messages) {
		s.messages = s.messages[:n]
	}
}

// ReplaceRange replaces messages[start:end] with the given messages,
// preserving everything outside the range. Used by compaction to swap the
// middle span for a summary.
func (s *ContextStore) ReplaceRange(start, end int, with ...llm.Message) {
	if start < 0 || end > len(s.messages) || start > end {
		return
	}
	out := make([]llm.Message, 0, len(s.messages)-(end-start)+len(with))
	out = append(out, s.messages[:start]...)
	out = append(out, with...)
	out = append(out, s.messages[end:]...)
	s.messages = out
}

// Reset drops everything but the first message (the system prompt).
func (s *ContextStore) Reset() {
	if len(s.messages) > 0 {
		s.messages = s.messages[:1]
	}
}

// UserMessageCount returns the number of user-role messages, excluding
// compaction summaries.
func (s *ContextStore) UserMessageCount() int {
	n := 0
	for _, m := range s.messages {
		if m.Role == "user" {
			n++
		}
	}
	return n
}

// turnStarts returns the indices of user messages, each of which begins a
// turn.
func (s *ContextStore) turnStarts() []int {
	var starts []int
	for i, m := range s.messages {
		if m.Role == "user" {
			starts = append(starts, i)
		}
	}
	return starts
}

// UnpairedToolCalls returns the IDs of ToolUse entries in assistant
// messages with no matching tool message, for the pairing invariant.
func (s *ContextStore) UnpairedToolCalls() []string {
	answered := make(map[string]bool)
	for _, m := range s.messages {
		if m.Role == "tool" && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}
	var missing []string
	for _, m := range s.messages {
		if m.Role != "assistant" {
			continue
		}
		for _, tc := range m.ToolCalls {
			if !answered[tc.ID] {
				missing = append(missing, tc.ID)
			}
		}
	}
	return missing
}

// EstimateMessageTokens estimates one message's token footprint.
func EstimateMessageTokens(msg llm.Message, model string) int {
	tokens := tokenbudget.EstimateTokens(msg.ContentString(), model)
	for _, tc := range msg.ToolCalls {
		tokens += tokenbudget.EstimateTokens(tc.Name, model)
		tokens += tokenbudget.EstimateTokens(tc.Arguments, model)
	}
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// rebuildBudget reprices the whole store into per-component counts, used
// after compaction so the budget strictly decreases to the new truth.
func (s *ContextStore) rebuildBudget(model string) map[tokenbudget.Component]int {
	per := make(map[tokenbudget.Component]int)
	for _, msg := range s.messages {
		n := EstimateMessageTokens(msg, model)
		switch msg.Role {
		case "system":
			per[tokenbudget.System] += n
		case "user":
			per[tokenbudget.User] += n
		case "assistant":
			per[tokenbudget.Assistant] += n
		case "tool":
			per[tokenbudget.ToolResult] += n
		default:
			per[tokenbudget.Scratch] += n
		}
	}
	return per
}

// compact consolidates the middle of the conversation into a structured
// summary: the system prompt and the most recent preservedTurns turns stay
// verbatim, everything between is replaced by one summary message, and a
// progress snapshot is written for resumption.
func (a *Agent) compact(ctx context.Context) error {
	starts := a.store.turnStarts()
	if len(starts) <= preservedTurns {
		return nil // nothing old enough to fold
	}

	// The span to summarize runs from just after the system prompt to the
	// start of the oldest preserved turn.
	cutoff := starts[len(starts)-preservedTurns]
	if cutoff <= 1 {
		return nil
	}
	middle := a.store.Messages()[1:cutoff]

	history := serializeHistory(middle)
	resp, err := a.provider.Generate(ctx, &llm.Request{
		Model: a.model,
		Messages: []llm.Message{
			llm.TextMessage("system", compactionPrompt()),
			llm.TextMessage("user", history),
		},
	})
	if err != nil {
		return fmt.Errorf("compaction summary: %w", err)
	}

	summary := resp.Message.ContentString()
	if summary == "" {
		return fmt.Errorf("compaction produced an empty summary")
	}

	if err := a.writeProgressSnapshot(summary); err != nil {
		a.logger.Warn("write progress snapshot", "error", err)
	}

	a.store.ReplaceRange(1, cutoff, llm.TextMessage("system",
		"[Conversation compacted] Summary of the earlier conversation:\n\n"+summary))

	a.budget.Compact(a.store.rebuildBudget(a.model))
	a.logger.Info("context compacted",
		"summarized_messages", len(middle),
		"kept_turns", preservedTurns,
		"tokens_after", a.budget.Used())
	return nil
}

// hardReset is the reset_at escalation: everything but the system prompt
// and the current turn's user message is dropped.
func (a *Agent) hardReset() {
	msgs := a.store.Messages()
	var lastUser *llm.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			lastUser = &msgs[i]
			break
		}
	}
	a.store.Reset()
	if lastUser != nil {
		a.store.Append(*lastUser)
	}
	a.budget.Compact(a.store.rebuildBudget(a.model))
	a.logger.Warn("context hard reset", "tokens_after", a.budget.Used())
}

// writeProgressSnapshot persists a bounded resumption snapshot under the
// session state directory.
func (a *Agent) writeProgressSnapshot(summary string) error {
	if a.stateDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.stateDir, 0755); err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Progress snapshot\n\nSession: %s\nUpdated: %s\n\n", a.sessionID, time.Now().Format(time.RFC3339))
	if ts := a.TaskSummary(); ts != "No tasks." {
		sb.WriteString("## Tasks\n\n" + ts + "\n\n")
	}
	sb.WriteString("## Summary\n\n")
	sb.WriteString(summary)

	content := sb.String()
	if len(content) > progressSnapshotLimit {
		content = content[:progressSnapshotLimit]
	}
	return os.WriteFile(filepath.Join(a.stateDir, ".progress.md"), []byte(content), 0644)
}

// compactionPrompt returns the system prompt used when asking the LLM to summarize the conversation.
func compactionPrompt() string {
	return `Your task is to create a detailed summary of the conversation so far, paying close attention to the user's explicit requests and your previous actions. This summary should be thorough in capturing technical details, code patterns, and architectural decisions essential for continuing work without losing context.

Your summary should include these sections:

1. Goals: all of the user's explicit requests and intents in detail.
2. Completed Checkpoints: work finished so far, with the key decisions made.
3. Files and Code Sections: specific files examined, modified, or created, with why each matters.
4. Errors and Fixes: errors encountered and how they were resolved, including any user feedback.
5. Pending Items: tasks explicitly asked for that remain incomplete.
6. Open Questions: anything unresolved that the next steps depend on.

Drop verbose tool outputs (full file contents, long search results) — instead note what was learned. Drop redundant back-and-forth and dead-end steps unless the dead end itself is informative.

Output the summary directly. Do not include any preamble or meta-commentary.`
}

// serializeHistory formats conversation messages into readable text for the LLM to summarize.
func serializeHistory(messages []llm.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			sb.WriteString("[System]\n")
			content := msg.ContentString()
			if len(content) > 500 {
				content = content[:500] + "...[truncated]"
			}
			sb.WriteString(content)
		case "user":
			sb.WriteString("[User]\n")
			sb.WriteString(msg.ContentString())
		case "assistant":
			sb.WriteString("[Assistant]\n")
			sb.WriteString(msg.ContentString())
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&sb, "\n[Tool Call: %s(%s)]", tc.Name, tc.Arguments)
			}
		case "tool":
			sb.WriteString("[Tool Result]\n")
			content := msg.ContentString()
			if len(content) > 1000 {
				content = content[:1000] + "...[truncated]"
			}
			sb.WriteString(content)
		default:
			fmt.Fprintf(&sb, "[%s]\n", msg.Role)
			sb.WriteString(msg.ContentString())
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}
