// Package hooks implements the lifecycle hook engine: user-configured shell
// commands fired at session lifecycle points, with matcher scoping,
// exit-code semantics, and structured JSON output.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event names the lifecycle points hooks can attach to.
type Event string

const (
	SessionStart     Event = "SessionStart"
	SessionEnd       Event = "SessionEnd"
	UserPromptSubmit Event = "UserPromptSubmit"
	PreToolUse       Event = "PreToolUse"
	PostToolUse      Event = "PostToolUse"
	TaskCompletion   Event = "TaskCompletion"
	TeammateIdle     Event = "TeammateIdle"
)

// DefaultTimeout bounds a hook command when no per-hook override is set.
const DefaultTimeout = 60 * time.Second

// blockingExitCode is the exit status that makes a hook blocking: the tool
// is blocked for PreToolUse, the prompt for UserPromptSubmit, continuation
// for PostToolUse.
const blockingExitCode = 2

// Hook is a single configured command.
type Hook struct {
	Command string
	Timeout time.Duration // zero means DefaultTimeout
}

// MatcherGroup scopes a set of hooks to matching events. The matcher is an
// exact string, "*" (or empty) for everything, or an anchored regex.
// Hooks within a group run sequentially; distinct groups for the same event
// run concurrently.
type MatcherGroup struct {
	Matcher string
	Hooks   []Hook

	compiled *regexp.Regexp
	once     sync.Once
}

func (g *MatcherGroup) matches(subject string) bool {
	if g.Matcher == "" || g.Matcher == "*" {
		return true
	}
	if g.Matcher == subject {
		return true
	}
	g.once.Do(func() {
		re, err := regexp.Compile("^(?:" + g.Matcher + ")$")
		if err == nil {
			g.compiled = re
		}
	})
	return g.compiled != nil && g.compiled.MatchString(subject)
}

// Payload is the JSON document delivered on each hook's stdin.
type Payload struct {
	SessionID      string          `json:"session_id"`
	Cwd            string          `json:"cwd"`
	HookEventName  string          `json:"hook_event_name"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse   string          `json:"tool_response,omitempty"`
	Prompt         string          `json:"prompt,omitempty"`
}

// structuredOutput is the recognized JSON shape a hook may print to stdout.
type structuredOutput struct {
	Continue           *bool  `json:"continue"`
	StopReason         string `json:"stopReason"`
	SuppressOutput     bool   `json:"suppressOutput"`
	SystemMessage      string `json:"systemMessage"`
	Decision           string `json:"decision"`
	Reason             string `json:"reason"`
	HookSpecificOutput *struct {
		AdditionalContext        string `json:"additionalContext"`
		PermissionDecision       string `json:"permissionDecision"`
		PermissionDecisionReason string `json:"permissionDecisionReason"`
	} `json:"hookSpecificOutput"`
}

// Outcome aggregates the effect of every hook fired for one event.
type Outcome struct {
	// Blocked is set by exit code 2, a timeout, a {"decision":"block"}, or
	// {"continue":false} structured response.
	Blocked bool
	// BlockReason carries stderr (or the structured reason) of the blocking
	// hook, fed back to the model as remedial guidance.
	BlockReason string
	// AdditionalContext entries concatenate in matcher-definition order.
	AdditionalContext []string
	// SystemMessages to surface to the user.
	SystemMessages []string
	// Stdout of successful non-JSON hooks, in matcher-definition order.
	// It is part of Context(), which the agent adds to the conversation for
	// SessionStart, UserPromptSubmit and PostToolUse; stdout is not
	// displayed to the user for any event.
	Stdout []string
	// Stderr of non-blocking failures, surfaced to the user.
	Stderr []string
	// PermissionDecision, when non-empty ("allow"/"deny"/"ask"), overrides
	// the Tool-Policy Store for this call.
	PermissionDecision       string
	PermissionDecisionReason string
	SuppressOutput           bool
}

// Context returns the concatenated injectable context: structured
// additionalContext first, then plain stdout, in matcher-definition order.
func (o *Outcome) Context() string {
	parts := append(append([]string(nil), o.AdditionalContext...), o.Stdout...)
	return strings.Join(parts, "\n")
}

// Engine fires configured hooks for lifecycle events.
type Engine struct {
	groups map[Event][]*MatcherGroup
	logger *slog.Logger
}

// New creates an Engine from per-event matcher groups.
func New(groups map[Event][]*MatcherGroup, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{groups: groups, logger: logger}
}

// Configured reports whether any hook is registered for the event.
func (e *Engine) Configured(event Event) bool {
	return e != nil && len(e.groups[event]) > 0
}

// groupResult is one matcher group's contribution, merged in definition
// order after the concurrent run.
type groupResult struct {
	outcome Outcome
}

// Fire runs every matching hook for the event. The matcher subject is the
// tool name for tool events and the prompt for UserPromptSubmit. Distinct
// matcher groups run concurrently; hooks within a group run sequentially,
// stopping at the first blocking hook. Merge order follows group
// definition order so additionalContext concatenation is deterministic.
func (e *Engine) Fire(ctx context.Context, event Event, payload Payload) (*Outcome, error) {
	if e == nil {
		return &Outcome{}, nil
	}
	groups := e.groups[event]
	if len(groups) == 0 {
		return &Outcome{}, nil
	}

	payload.HookEventName = string(event)
	subject := matchSubject(event, payload)

	stdin, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal hook payload: %w", err)
	}

	results := make([]*groupResult, len(groups))
	var wg sync.WaitGroup
	for i, g := range groups {
		if !g.matches(subject) {
			continue
		}
		wg.Add(1)
		go func(i int, g *MatcherGroup) {
			defer wg.Done()
			results[i] = e.runGroup(ctx, event, g, stdin)
		}(i, g)
	}
	wg.Wait()

	merged := &Outcome{}
	for _, res := range results {
		if res == nil {
			continue
		}
		o := &res.outcome
		if o.Blocked && !merged.Blocked {
			merged.Blocked = true
			merged.BlockReason = o.BlockReason
		}
		merged.AdditionalContext = append(merged.AdditionalContext, o.AdditionalContext...)
		merged.SystemMessages = append(merged.SystemMessages, o.SystemMessages...)
		merged.Stdout = append(merged.Stdout, o.Stdout...)
		merged.Stderr = append(merged.Stderr, o.Stderr...)
		if merged.PermissionDecision == "" && o.PermissionDecision != "" {
			merged.PermissionDecision = o.PermissionDecision
			merged.PermissionDecisionReason = o.PermissionDecisionReason
		}
		if o.SuppressOutput {
			merged.SuppressOutput = true
		}
	}
	return merged, nil
}

func matchSubject(event Event, payload Payload) string {
	switch event {
	case PreToolUse, PostToolUse:
		return payload.ToolName
	case UserPromptSubmit:
		return payload.Prompt
	default:
		return ""
	}
}

func (e *Engine) runGroup(ctx context.Context, event Event, g *MatcherGroup, stdin []byte) *groupResult {
	res := &groupResult{}
	for _, h := range g.Hooks {
		o := e.runHook(ctx, event, h, stdin)
		res.outcome.AdditionalContext = append(res.outcome.AdditionalContext, o.AdditionalContext...)
		res.outcome.SystemMessages = append(res.outcome.SystemMessages, o.SystemMessages...)
		res.outcome.Stdout = append(res.outcome.Stdout, o.Stdout...)
		res.outcome.Stderr = append(res.outcome.Stderr, o.Stderr...)
		if res.outcome.PermissionDecision == "" && o.PermissionDecision != "" {
			res.outcome.PermissionDecision = o.PermissionDecision
			res.outcome.PermissionDecisionReason = o.PermissionDecisionReason
		}
		if o.SuppressOutput {
			res.outcome.SuppressOutput = true
		}
		if o.Blocked {
			res.outcome.Blocked = true
			res.outcome.BlockReason = o.BlockReason
			break
		}
	}
	return res
}

func (e *Engine) runHook(ctx context.Context, event Event, h Hook, stdin []byte) Outcome {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(hookCtx, "sh", "-c", h.Command)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	outText := strings.TrimSpace(stdout.String())
	errText := strings.TrimSpace(stderr.String())

	if hookCtx.Err() == context.DeadlineExceeded {
		// Timeout is a blocking error.
		e.logger.Warn("hook timed out", "event", string(event), "command", h.Command, "timeout", timeout)
		return Outcome{Blocked: true, BlockReason: fmt.Sprintf("hook %q timed out after %s", h.Command, timeout)}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == blockingExitCode {
			e.logger.Info("hook blocked", "event", string(event), "command", h.Command, "stderr", errText)
			return Outcome{Blocked: true, BlockReason: errText}
		}
		// Other non-zero exits are non-blocking failures.
		e.logger.Warn("hook failed", "event", string(event), "command", h.Command, "error", err)
		return Outcome{Stderr: []string{errText}}
	}

	if outText == "" {
		return Outcome{}
	}

	var structured structuredOutput
	if json.Unmarshal([]byte(outText), &structured) == nil && looksStructured(outText) {
		return e.applyStructured(structured)
	}
	return Outcome{Stdout: []string{outText}}
}

// looksStructured guards against treating plain-text stdout that happens to
// parse as a JSON scalar as a structured response.
func looksStructured(out string) bool {
	return strings.HasPrefix(out, "{")
}

func (e *Engine) applyStructured(s structuredOutput) Outcome {
	o := Outcome{SuppressOutput: s.SuppressOutput}
	if s.SystemMessage != "" {
		o.SystemMessages = append(o.SystemMessages, s.SystemMessage)
	}
	if s.HookSpecificOutput != nil {
		if s.HookSpecificOutput.AdditionalContext != "" {
			o.AdditionalContext = append(o.AdditionalContext, s.HookSpecificOutput.AdditionalContext)
		}
		o.PermissionDecision = s.HookSpecificOutput.PermissionDecision
		o.PermissionDecisionReason = s.HookSpecificOutput.PermissionDecisionReason
	}
	if s.Decision == "block" || (s.Continue != nil && !*s.Continue) {
		o.Blocked = true
		o.BlockReason = s.Reason
		if o.BlockReason == "" {
			o.BlockReason = s.StopReason
		}
	}
	return o
}
