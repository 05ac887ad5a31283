// Package agent implements the session turn loop: a cooperative state
// machine interleaving model turns, tool calls, and user input, with
// cancellation, retry, token-budget management, lifecycle hooks, session
// persistence, and checkpointing.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lowkaihon/vtcode/hooks"
	"github.com/lowkaihon/vtcode/llm"
	"github.com/lowkaihon/vtcode/tokenbudget"
	"github.com/lowkaihon/vtcode/toolpolicy"
	"github.com/lowkaihon/vtcode/tools"
	"github.com/lowkaihon/vtcode/ui"
)

// MaxIterationsPerTurn limits the number of LLM round-trips per user message
// to prevent runaway tool-use loops.
const MaxIterationsPerTurn = 50

// cancelledMarker replaces pending tool results when a turn is cancelled,
// keeping the tool-result pairing invariant intact.
const cancelledMarker = "cancelled"

// Options wires an Agent's collaborators.
type Options struct {
	Provider      llm.Provider
	Registry      *tools.Registry
	WorkDir       string
	StateDir      string // per-workspace state directory (spool, .progress.md)
	ContextWindow int
	Model         string
	Hooks         *hooks.Engine
	Logger        *slog.Logger
}

// Agent orchestrates the LLM conversation and tool execution loop.
type Agent struct {
	provider llm.Provider
	tools    *tools.Registry
	store    *ContextStore
	budget   *tokenbudget.Budget
	hooks    *hooks.Engine
	retry    llm.RetryPolicy
	logger   *slog.Logger

	workDir  string
	stateDir string
	model    string
	state    State

	sessionID      string
	sessionCreated time.Time
	lastUsage      llm.Usage

	checkpoints   []Checkpoint
	fileOriginals map[string]*FileSnapshot
	tasks         []Task

	term UI // stored for sub-agent visibility
}

// New creates an Agent with the system prompt initialized.
func New(opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		provider:       opts.Provider,
		tools:          opts.Registry,
		workDir:        opts.WorkDir,
		stateDir:       opts.StateDir,
		model:          opts.Model,
		budget:         tokenbudget.New(opts.ContextWindow),
		hooks:          opts.Hooks,
		retry:          llm.DefaultRetryPolicy(),
		logger:         logger.With("component", "agent"),
		sessionID:      generateSessionID(),
		sessionCreated: time.Now(),
		fileOriginals:  make(map[string]*FileSnapshot),
	}
	a.store = NewContextStore(a.systemPrompt())
	a.budget.Add(tokenbudget.System, EstimateMessageTokens(a.store.Messages()[0], a.model))

	if opts.Registry != nil {
		opts.Registry.SetExploreFunc(a.runExplore)
		opts.Registry.SetTaskCallbacks(tools.TaskCallbacks{
			WriteTasks: a.WriteTasks,
			UpdateTask: a.UpdateTask,
			ReadTasks:  a.TaskSummary,
		})
	}
	return a
}

// SetProvider swaps the provider and context window (e.g., after /model).
func (a *Agent) SetProvider(p llm.Provider, model string, contextWindow int) {
	a.provider = p
	a.model = model
	a.budget.ContextWindowTotal = contextWindow
}

// State returns the loop's current state.
func (a *Agent) State() State { return a.state }

// SessionID returns the current session's identifier.
func (a *Agent) SessionID() string { return a.sessionID }

// Run processes one user message through the agent loop: Idle → UserQueued
// → AssistantPending → (ToolExecution → AssistantPending)* → Idle.
func (a *Agent) Run(ctx context.Context, userMessage string, term UI) error {
	a.term = term
	a.state = StateUserQueued
	defer func() { a.state = StateIdle }()

	// UserPromptSubmit hooks may block the prompt before anything is
	// appended to the context store.
	if outcome := a.fireHook(ctx, hooks.UserPromptSubmit, hooks.Payload{Prompt: userMessage}); outcome != nil {
		if outcome.Blocked {
			term.PrintWarning("Prompt blocked by hook: " + outcome.BlockReason)
			return nil
		}
		if hookCtx := outcome.Context(); hookCtx != "" {
			a.appendMessage(llm.TextMessage("system", hookCtx))
		}
		a.surfaceHookMessages(outcome, term)
	}

	// Single-user-message invariant: the input is appended exactly once,
	// here, on the UserQueued → AssistantPending transition. Request
	// construction below reads the store and never re-appends.
	a.budget.StartTurn()
	a.appendMessage(llm.TextMessage("user", userMessage))
	a.state = StateAssistantPending

	// Start escape listener for Esc key cancellation
	opCtx, listener, escErr := term.StartEscapeListener(ctx)
	if escErr != nil {
		opCtx = ctx
		listener = noopInterrupter{}
	}
	defer listener.Stop()

	for iteration := 0; iteration < MaxIterationsPerTurn; iteration++ {
		a.reactToBudget(opCtx, term)
		term.PrintSpinner()

		spinnerCleared := false
		clearSpinner := func() {
			if !spinnerCleared {
				term.ClearSpinner()
				spinnerCleared = true
			}
		}

		resp, err := a.streamWithRetry(opCtx, func(text string) {
			clearSpinner()
			term.PrintAssistant(text)
		})
		clearSpinner()
		if err != nil {
			if opCtx.Err() != nil {
				a.state = StateCancelling
				fmt.Println()
				return context.Canceled
			}
			return err
		}

		if resp.Usage.Total() > 0 {
			a.lastUsage = resp.Usage
		}

		a.appendMessage(resp.Message)
		a.budget.Add(tokenbudget.Assistant, EstimateMessageTokens(resp.Message, a.model))

		if len(resp.Message.ToolCalls) == 0 {
			term.PrintAssistantDone()
			if resp.FinishReason == "length" {
				term.PrintWarning("Response was truncated due to token limit.")
			}
			return nil
		}

		// Print newline after any streamed text before tool output
		if resp.Message.ContentString() != "" {
			fmt.Println()
		}

		a.state = StateToolExecution
		cancelled := a.executeToolCalls(opCtx, resp.Message.ToolCalls, term)
		if cancelled {
			a.state = StateCancelling
			fmt.Println()
			return context.Canceled
		}
		a.state = StateAssistantPending
	}

	return fmt.Errorf("agent loop exceeded maximum iterations (%d)", MaxIterationsPerTurn)
}

// appendMessage adds to the context store and accounts user tokens. Other
// components account their own categories at their append sites.
func (a *Agent) appendMessage(msg llm.Message) {
	a.store.Append(msg)
	if msg.Role == "user" {
		a.budget.Add(tokenbudget.User, EstimateMessageTokens(msg, a.model))
	}
}

// buildRequest materializes the store into the provider's request shape.
// Deferred tool flags are cleared for providers without advanced tool use
// so every tool schema ships on each request.
func (a *Agent) buildRequest() *llm.Request {
	defs := a.tools.Definitions()
	caps := a.provider.Capabilities()
	if !caps.AdvancedToolUse {
		for i := range defs {
			defs[i].Deferred = false
		}
	}
	return &llm.Request{
		Model:    a.model,
		Messages: a.store.Messages(),
		Tools:    defs,
	}
}

// streamWithRetry runs one provider call with the retry policy: Transient
// errors back off exponentially, RateLimited honors the retry_after hint,
// and ContextWindowExceeded triggers immediate compaction then one retry.
func (a *Agent) streamWithRetry(ctx context.Context, onText func(string)) (*llm.Response, error) {
	compacted := false

	for attempt := 0; ; attempt++ {
		resp, err := a.streamOnce(ctx, onText)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		pe, ok := llm.AsError(err)
		if !ok {
			return nil, err
		}

		if pe.Kind == llm.KindContextWindowExceeded && !compacted {
			a.logger.Warn("context window exceeded, compacting")
			if cErr := a.compact(ctx); cErr != nil {
				return nil, fmt.Errorf("compaction after context overflow failed: %w", cErr)
			}
			compacted = true
			continue
		}

		if !pe.Retryable || attempt >= a.retry.MaxRetries {
			return nil, fmt.Errorf("LLM request failed: %w", err)
		}

		delay := a.retry.Delay(attempt, pe.RetryAfter)
		a.logger.Info("retrying provider request", "attempt", attempt+1, "kind", pe.Kind.String(), "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (a *Agent) streamOnce(ctx context.Context, onText func(string)) (*llm.Response, error) {
	req := a.buildRequest()
	if !a.provider.Capabilities().Streaming {
		return a.provider.Generate(ctx, req)
	}
	events, err := a.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.AccumulateStream(events, onText)
}

// reactToBudget emits at most one threshold reaction per check: warn prints
// a notice, compact folds the middle of the conversation, reset drops to
// the system prompt plus current turn.
func (a *Agent) reactToBudget(ctx context.Context, term UI) {
	event := a.budget.CheckThresholds()
	if event == nil {
		return
	}
	switch event.Threshold {
	case "warn":
		term.PrintWarning(fmt.Sprintf("Context is at %d%% of the window.", event.Used*100/event.Total))
	case "compact":
		term.PrintWarning("Context is large, compacting conversation...")
		if err := a.compact(ctx); err != nil {
			a.logger.Warn("compaction failed, continuing with full history", "error", err)
			term.PrintWarning("Compaction failed, continuing with full history.")
		} else {
			term.PrintWarning("Context compacted successfully.")
		}
	case "reset":
		term.PrintWarning("Context critically full, dropping older conversation...")
		a.hardReset()
	}
}

// executeToolCalls resolves a finished assistant message's tool calls and
// appends one tool message per call id, in call order. Returns true if the
// turn was cancelled; pending calls then carry the cancelled marker.
func (a *Agent) executeToolCalls(ctx context.Context, calls []llm.ToolCall, term UI) (cancelled bool) {
	appended := make(map[string]bool, len(calls))
	defer func() {
		if !cancelled {
			return
		}
		// Pairing invariant under cancellation: every unanswered call gets
		// a cancelled marker.
		for _, tc := range calls {
			if !appended[tc.ID] {
				a.appendToolResult(tc.ID, cancelledMarker, 0)
			}
		}
	}()

	// Hooks need per-call sequencing; without them the registry's conflict
	// planner may parallelize read-class runs.
	hooked := a.hooks.Configured(hooks.PreToolUse) || a.hooks.Configured(hooks.PostToolUse)

	if !hooked {
		for _, tc := range calls {
			term.PrintToolCall(tc.Name, tc.Arguments)
		}
		results := a.tools.ExecuteBatch(ctx, calls)
		if ctx.Err() != nil {
			// Keep whatever completed before the cancel.
			for _, br := range results {
				if br.Result != nil && br.Result.Meta.Status != tools.StatusCancelled {
					term.PrintToolResult(br.Result.UIContent)
					a.appendToolResult(br.ID, br.Result.LLMContent, br.Result.Meta.TokensLLM)
					appended[br.ID] = true
				}
			}
			return true
		}
		for _, br := range results {
			term.PrintToolResult(br.Result.UIContent)
			a.appendToolResult(br.ID, br.Result.LLMContent, br.Result.Meta.TokensLLM)
			appended[br.ID] = true
		}
		a.reactToBudget(ctx, term)
		return false
	}

	for i, tc := range calls {
		if ctx.Err() != nil {
			return true
		}
		term.PrintToolCall(tc.Name, tc.Arguments)
		result := a.executeHookedCall(ctx, tc)
		if ctx.Err() != nil {
			return true
		}
		term.PrintToolResult(result.UIContent)
		a.appendToolResult(tc.ID, result.LLMContent, result.Meta.TokensLLM)
		appended[tc.ID] = true

		// PostToolUse fires after the result is recorded; its context joins
		// the conversation, and a block stops further calls this round.
		outcome := a.fireHook(ctx, hooks.PostToolUse, hooks.Payload{
			ToolName:     tc.Name,
			ToolInput:    json.RawMessage(tc.Arguments),
			ToolResponse: result.LLMContent,
		})
		if outcome != nil {
			if hookCtx := outcome.Context(); hookCtx != "" {
				a.appendMessage(llm.TextMessage("system", hookCtx))
			}
			a.surfaceHookMessages(outcome, a.term)
			if outcome.Blocked {
				a.appendMessage(llm.TextMessage("system",
					"[hook] Continuation blocked: "+outcome.BlockReason))
				for _, rest := range calls[i+1:] {
					a.appendToolResult(rest.ID, cancelledMarker, 0)
					appended[rest.ID] = true
				}
				break
			}
		}
	}
	a.reactToBudget(ctx, term)
	return false
}

// executeHookedCall runs PreToolUse hooks and then the registry pipeline,
// honoring a hook's permissionDecision override for this call.
func (a *Agent) executeHookedCall(ctx context.Context, tc llm.ToolCall) *tools.ToolResult {
	outcome := a.fireHook(ctx, hooks.PreToolUse, hooks.Payload{
		ToolName:  tc.Name,
		ToolInput: json.RawMessage(tc.Arguments),
	})

	var override toolpolicy.Decision
	if outcome != nil {
		if outcome.Blocked {
			return a.blockedByHook(outcome.BlockReason)
		}
		switch outcome.PermissionDecision {
		case "allow":
			override = toolpolicy.Allow
		case "deny":
			return a.blockedByHook(outcome.PermissionDecisionReason)
		case "ask":
			override = toolpolicy.Prompt
		}
		a.surfaceHookMessages(outcome, a.term)
	}

	return a.tools.ExecuteWithOverride(ctx, tc.Name, json.RawMessage(tc.Arguments), override)
}

func (a *Agent) blockedByHook(reason string) *tools.ToolResult {
	if reason == "" {
		reason = "blocked by hook"
	}
	content := "Error (policy_denied): " + reason
	return &tools.ToolResult{
		LLMContent: content,
		UIContent:  content,
		Meta:       tools.ResultMeta{Status: tools.StatusPolicyDenied},
	}
}

func (a *Agent) appendToolResult(id, content string, tokens int) {
	a.store.Append(llm.ToolResultMessage(id, content))
	if tokens == 0 {
		tokens = tokenbudget.EstimateTokens(content, a.model)
	}
	a.budget.Add(tokenbudget.ToolResult, tokens)
}

// fireHook runs an event's hooks with the shared session fields filled in.
// A nil engine or unconfigured event returns nil.
func (a *Agent) fireHook(ctx context.Context, event hooks.Event, payload hooks.Payload) *hooks.Outcome {
	if !a.hooks.Configured(event) {
		return nil
	}
	payload.SessionID = a.sessionID
	payload.Cwd = a.workDir
	outcome, err := a.hooks.Fire(ctx, event, payload)
	if err != nil {
		a.logger.Warn("hook engine error", "event", string(event), "error", err)
		return nil
	}
	return outcome
}

func (a *Agent) surfaceHookMessages(outcome *hooks.Outcome, term UI) {
	if term == nil || outcome.SuppressOutput {
		return
	}
	for _, msg := range outcome.SystemMessages {
		term.PrintWarning(msg)
	}
	for _, msg := range outcome.Stderr {
		if msg != "" {
			term.PrintWarning(msg)
		}
	}
}

// FireSessionStart runs SessionStart hooks, injecting their output as
// context before the first turn.
func (a *Agent) FireSessionStart(ctx context.Context, term UI) {
	outcome := a.fireHook(ctx, hooks.SessionStart, hooks.Payload{})
	if outcome == nil {
		return
	}
	if hookCtx := outcome.Context(); hookCtx != "" {
		a.appendMessage(llm.TextMessage("system", hookCtx))
	}
	a.surfaceHookMessages(outcome, term)
}

// FireSessionEnd runs SessionEnd hooks.
func (a *Agent) FireSessionEnd(ctx context.Context) {
	a.fireHook(ctx, hooks.SessionEnd, hooks.Payload{})
}

// Compact forces a compaction of the conversation history.
func (a *Agent) Compact(ctx context.Context, term UI) error {
	if a.store.Len() <= 1 {
		term.PrintWarning("Nothing to compact.")
		return nil
	}
	term.PrintWarning("Compacting conversation...")
	if err := a.compact(ctx); err != nil {
		term.PrintWarning("Compaction failed, continuing with full history.")
		return err
	}
	term.PrintWarning("Context compacted successfully.")
	return nil
}

// Clear resets the conversation history to just the system prompt.
func (a *Agent) Clear(term UI) {
	a.store.Reset()
	a.checkpoints = nil
	a.lastUsage = llm.Usage{}
	a.budget.Compact(a.store.rebuildBudget(a.model))
	term.PrintWarning("Conversation cleared.")
}

// MaxExploreIterations is the iteration limit for the explore sub-agent.
const MaxExploreIterations = 30

// runExplore spawns a child agent with read-only tools to research the
// codebase. It uses non-streaming Generate to avoid interleaved terminal
// output, and its usage is accounted under Scratch so a sub-agent never
// inflates the parent's per-component budget.
func (a *Agent) runExplore(ctx context.Context, task string) (string, error) {
	roRegistry := tools.NewReadOnlyRegistry(a.tools.ReadOnlyOptions())
	toolDefs := roRegistry.Definitions()

	messages := []llm.Message{
		llm.TextMessage("system", exploreSystemPrompt(a.workDir)),
		llm.TextMessage("user", task),
	}

	totalSteps := 0

	for iteration := 0; iteration < MaxExploreIterations; iteration++ {
		resp, err := a.provider.Generate(ctx, &llm.Request{
			Model:    a.model,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return "", fmt.Errorf("explore sub-agent LLM error: %w", err)
		}

		a.budget.Add(tokenbudget.Scratch, resp.Usage.OutputTokens)
		messages = append(messages, resp.Message)

		// If no tool calls, the sub-agent is done — return its final text
		if len(resp.Message.ToolCalls) == 0 {
			if a.term != nil {
				a.term.PrintSubAgentStatus(fmt.Sprintf("Explore complete (%d tool calls)", totalSteps))
			}
			return resp.Message.ContentString(), nil
		}

		for _, tc := range resp.Message.ToolCalls {
			totalSteps++
			if a.term != nil {
				a.term.PrintSubAgentToolCall(tc.Name, tc.Arguments)
			}
		}

		results := roRegistry.ExecuteBatch(ctx, resp.Message.ToolCalls)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		for _, br := range results {
			messages = append(messages, llm.ToolResultMessage(br.ID, br.Result.LLMContent))
		}
	}

	if a.term != nil {
		a.term.PrintSubAgentStatus(fmt.Sprintf("Explore reached max iterations (%d tool calls)", totalSteps))
	}
	return "Explore sub-agent reached maximum iterations without completing.", nil
}

func exploreSystemPrompt(workDir string) string {
	return fmt.Sprintf(`You are an exploration sub-agent. Your job is to thoroughly research the codebase to answer the given question.

Working directory: %s

This is a READ-ONLY exploration task. You only have access to: read_file, list_files, grep, tree, find_files.

Guidelines:
- Use find_files for broad file pattern matching (prefer over repeated list_files calls)
- Use grep for searching file contents with regex
- Use read_file when you know the specific file path
- Use tree or list_files only when you need to see directory structure

You are meant to be a fast agent. To achieve this:
- Make efficient use of your tools — be smart about how you search
- Wherever possible, call multiple tools in parallel. When you find several files to read, read them ALL in one response instead of one at a time
- Start broad (find_files, grep) then narrow down to specific reads

When you have gathered enough information, provide a clear, structured summary of your findings. Do not ask follow-up questions — just research and report.`, workDir)
}

// ContextStats holds context usage statistics.
type ContextStats struct {
	TotalTokens   int // actual from API, or estimated
	ContextWindow int
	WarnAt        int
	CompactAt     int
	MessageCount  int
	SystemTokens  int
	ToolDefTokens int
	MessageTokens int
	ActualTokens  int // from latest API response (0 if no call yet)
}

// ContextUsage returns current context usage statistics.
func (a *Agent) ContextUsage() ContextStats {
	stats := ContextStats{
		ContextWindow: a.budget.ContextWindowTotal,
		WarnAt:        int(float64(a.budget.ContextWindowTotal) * a.budget.Thresholds.WarnAt),
		CompactAt:     int(float64(a.budget.ContextWindowTotal) * a.budget.Thresholds.CompactAt),
		MessageCount:  a.store.Len(),
		ActualTokens:  a.lastUsage.Total(),
	}
	for _, msg := range a.store.Messages() {
		tokens := EstimateMessageTokens(msg, a.model)
		if msg.Role == "system" {
			stats.SystemTokens += tokens
		} else {
			stats.MessageTokens += tokens
		}
	}
	stats.ToolDefTokens = estimateToolDefTokens(a.tools.Definitions(), a.model)
	stats.TotalTokens = stats.ActualTokens
	if stats.TotalTokens == 0 {
		stats.TotalTokens = stats.SystemTokens + stats.ToolDefTokens + stats.MessageTokens
	}
	return stats
}

func estimateToolDefTokens(defs []llm.ToolDef, model string) int {
	data, err := json.Marshal(defs)
	if err != nil {
		return 0
	}
	return tokenbudget.EstimateTokens(string(data), model)
}

func generateSessionID() string {
	return time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

func (a *Agent) systemPrompt() string {
	var sb strings.Builder

	sb.WriteString(`You are vtcode, an AI coding assistant running in the terminal. You help users with software engineering tasks. Use the instructions below and the tools available to you to assist the user.

IMPORTANT: Assist with authorized security testing, defensive security, CTF challenges, and educational contexts. Refuse requests for destructive techniques, DoS attacks, mass targeting, supply chain compromise, or detection evasion for malicious purposes.

# Doing tasks
The user will primarily request you to perform software engineering tasks. These include solving bugs, adding new functionality, refactoring code, explaining code, and more.
- NEVER propose changes to code you haven't read. If a user asks about or wants you to modify a file, read it first. Understand existing code before suggesting modifications.
- Be careful not to introduce security vulnerabilities such as command injection, XSS, SQL injection, and other OWASP top 10 vulnerabilities. If you notice that you wrote insecure code, immediately fix it.
- Avoid over-engineering. Only make changes that are directly requested or clearly necessary. Keep solutions simple and focused.
  - Don't add features, refactor code, or make "improvements" beyond what was asked. A bug fix doesn't need surrounding code cleaned up. A simple feature doesn't need extra configurability. Don't add docstrings, comments, or type annotations to code you didn't change. Only add comments where the logic isn't self-evident.
  - Don't add error handling, fallbacks, or validation for scenarios that can't happen. Trust internal code and framework guarantees. Only validate at system boundaries (user input, external APIs). Don't use feature flags or backwards-compatibility shims when you can just change the code.
  - Don't create helpers, utilities, or abstractions for one-time operations. Don't design for hypothetical future requirements. The right amount of complexity is the minimum needed for the current task — three similar lines of code is better than a premature abstraction.
- Avoid backwards-compatibility hacks like renaming unused ` + "`_vars`" + `, re-exporting types, adding ` + "`// removed`" + ` comments for removed code, etc. If something is unused, delete it completely.

# Executing actions with care

Carefully consider the reversibility and blast radius of actions. Generally you can freely take local, reversible actions like editing files or running tests. But for actions that are hard to reverse, affect shared systems beyond your local environment, or could otherwise be risky or destructive, check with the user before proceeding. The cost of pausing to confirm is low, while the cost of an unwanted action (lost work, unintended messages sent, deleted branches) can be very high.

Examples of risky actions that warrant user confirmation:
- Destructive operations: deleting files/branches, dropping database tables, killing processes, rm -rf, overwriting uncommitted changes
- Hard-to-reverse operations: force-pushing, git reset --hard, amending published commits, removing or downgrading packages/dependencies
- Actions visible to others or that affect shared state: pushing code, creating/closing/commenting on PRs or issues, sending messages, modifying shared infrastructure

When you encounter an obstacle, do not use destructive actions as a shortcut. Try to identify root causes and fix underlying issues rather than bypassing safety checks (e.g. --no-verify). If you discover unexpected state like unfamiliar files, branches, or configuration, investigate before deleting or overwriting, as it may represent the user's in-progress work. When in doubt, ask before acting.

# Tool usage policy
- You can call multiple tools in a single response. If you intend to call multiple tools and there are no dependencies between them, make all independent tool calls in parallel. However, if some tool calls depend on previous calls, do NOT call these tools in parallel — call them sequentially instead.
- Use dedicated tools instead of terminal commands for file operations: read_file for reading (not cat/head/tail), edit_file for editing (not sed/awk), write_file for creating files. Reserve run_terminal_cmd exclusively for system commands that genuinely require execution.
- NEVER use terminal echo or other command-line tools to communicate with the user. Output all communication directly in your response text.
- Do not create files unless they're absolutely necessary for achieving your goal. ALWAYS prefer editing an existing file to creating a new one, including markdown files.
- For broad codebase exploration questions (project structure, how a feature works, finding patterns across files), use the explore tool to delegate the research to a focused sub-agent. This keeps the main conversation focused and avoids cluttering context with intermediate search results.

# Tone and style
- Only use emojis if the user explicitly requests it.
- Your output will be displayed on a command line interface. Responses should be short and concise. You can use Github-flavored markdown for formatting.
- Do not use a colon before tool calls. Text like "Let me read the file:" followed by a tool call should just be "Let me read the file." with a period.
- Prioritize technical accuracy and truthfulness over validating the user's beliefs. Provide direct, objective technical info without unnecessary praise or emotional validation. Disagree when necessary — objective guidance and respectful correction are more valuable than false agreement.
- Never give time estimates or predictions for how long tasks will take. Focus on what needs to be done, not how long it might take.

# Git workflow
When asked to create git commits:
- Only commit when the user explicitly requests it
- NEVER force-push, reset --hard, use --no-verify, or amend unless the user explicitly asks
- Prefer staging specific files over ` + "`git add -A`" + ` or ` + "`git add .`" + `
- NEVER use interactive flags (` + "`-i`" + `) since they require interactive input

`)

	sb.WriteString("# Environment\n\nWorking directory: ")
	sb.WriteString(a.workDir)
	sb.WriteString("\n\n")

	sb.WriteString(`# Memory

Project knowledge is stored in MEMORY.md at the project root. This file is human-editable and version-controlled.
To persist important context (conventions, architecture decisions, gotchas), use the edit_file tool to update MEMORY.md.
`)

	// Inject project memory if available
	memoryPath := filepath.Join(a.workDir, "MEMORY.md")
	if data, err := os.ReadFile(memoryPath); err == nil && len(data) > 0 {
		sb.WriteString("\n## Project Memory (MEMORY.md)\n\n")
		sb.WriteString(string(data))
		sb.WriteString("\n")
	}

	if len(a.tasks) > 0 {
		sb.WriteString("\n# Current Tasks\n\n")
		sb.WriteString(a.TaskSummary())
		sb.WriteString("\n")
	}

	return sb.String()
}

// noopInterrupter is a no-op implementation used when escape listening is unavailable.
type noopInterrupter struct{}

func (noopInterrupter) Stop()   {}
func (noopInterrupter) Pause()  {}
func (noopInterrupter) Resume() {}

var _ ui.Interrupter = noopInterrupter{}
