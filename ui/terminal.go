// Package ui provides terminal output formatting, colorized diffs, user
// prompts, keyboard interrupt handling, and all user-facing display logic.
// Output is reflowed for raw mode so the canonical message log never has to
// care about terminal state.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lowkaihon/vtcode/llm"
)

// ANSI color codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
	White   = "\033[97m"
)

// Terminal handles all user-facing output.
type Terminal struct {
	color bool

	mu  sync.Mutex
	raw bool // raw mode active: newlines need a carriage return
}

// NewTerminal creates a terminal with color detection.
func NewTerminal() *Terminal {
	return &Terminal{
		color: isTerminal(),
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (t *Terminal) c(code, text string) string {
	if !t.color {
		return text
	}
	return code + text + Reset
}

func (t *Terminal) setRaw(on bool) {
	t.mu.Lock()
	t.raw = on
	t.mu.Unlock()
}

// write is the single output path: in raw mode bare newlines are rewritten
// to CRLF so streamed text doesn't stair-step.
func (t *Terminal) write(s string) {
	t.mu.Lock()
	raw := t.raw
	t.mu.Unlock()
	if raw {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	fmt.Print(s)
}

func (t *Terminal) println(s string)                  { t.write(s + "\n") }
func (t *Terminal) printf(format string, args ...any) { t.write(fmt.Sprintf(format, args...)) }

// PrintBanner prints the startup banner.
func (t *Terminal) PrintBanner(model, workDir, version string) {
	banner := `
        __                  __
 _   __/ /__________  ____/ /__
| | / / __/ ___/ __ \/ __  / _ \
| |/ / /_/ /__/ /_/ / /_/ /  __/
|___/\__/\___/\____/\__,_/\___/
`
	t.write(t.c(Bold+Cyan, banner))

	versionStr := ""
	if version != "" && version != "dev" {
		versionStr = " v" + version
	}

	t.println(t.c(Bold+White, "AI Coding Agent") + t.c(Gray, versionStr))
	t.println("")
	t.println(t.c(Gray, "  Model:   ") + t.c(Cyan, model))
	t.println(t.c(Gray, "  Dir:     ") + t.c(White, workDir))
	t.println("")
	t.println(t.c(Gray, "  Type ") + t.c(Cyan, "/help") + t.c(Gray, " for commands"))
	t.println("")
}

// Prompt returns the formatted prompt string.
func (t *Terminal) Prompt() string {
	return t.c(Bold+Blue, "> ")
}

// PrintPrompt prints the input prompt.
func (t *Terminal) PrintPrompt() {
	t.write(t.Prompt())
}

// ReadLine reads a line of input using standard buffered I/O.
// The OS terminal handles line editing (arrow keys, Home/End, backspace).
func (t *Terminal) ReadLine(prompt string) (string, error) {
	t.write(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PrintAssistant prints assistant text.
func (t *Terminal) PrintAssistant(text string) {
	t.write(text)
}

// PrintAssistantDone signals end of assistant output.
func (t *Terminal) PrintAssistantDone() {
	t.write("\n\n")
}

// PrintToolCall prints a tool invocation.
func (t *Terminal) PrintToolCall(name string, args string) {
	t.println(t.c(Yellow, fmt.Sprintf("  ↳ %s", name)) + t.c(Gray, fmt.Sprintf(" %s", truncate(args, 100))))
}

// PrintToolResult prints a tool's result (truncated).
func (t *Terminal) PrintToolResult(result string) {
	lines := strings.Split(result, "\n")
	if len(lines) > 5 {
		for _, line := range lines[:5] {
			t.println(t.c(Gray, "    "+truncate(line, 120)))
		}
		t.println(t.c(Gray, fmt.Sprintf("    ... (%d more lines)", len(lines)-5)))
	} else {
		for _, line := range lines {
			t.println(t.c(Gray, "    "+truncate(line, 120)))
		}
	}
}

// PrintSubAgentToolCall prints a sub-agent's tool invocation with deeper indentation.
func (t *Terminal) PrintSubAgentToolCall(name string, args string) {
	t.println(t.c(Dim+Yellow, fmt.Sprintf("      ↳ %s", name)) + t.c(Gray, fmt.Sprintf(" %s", truncate(args, 80))))
}

// PrintSubAgentStatus prints a sub-agent status line.
func (t *Terminal) PrintSubAgentStatus(msg string) {
	t.println(t.c(Gray, "      "+msg))
}

// PrintError prints an error message.
func (t *Terminal) PrintError(err error) {
	fmt.Fprintln(os.Stderr, t.c(Red, "Error: "+err.Error()))
	t.println("")
}

// PrintWarning prints a warning message.
func (t *Terminal) PrintWarning(msg string) {
	t.println(t.c(Yellow, "Warning: "+msg))
}

// PrintSpinner prints a thinking indicator.
func (t *Terminal) PrintSpinner() {
	t.write(t.c(Gray, "  thinking..."))
}

// ClearSpinner clears the thinking indicator.
func (t *Terminal) ClearSpinner() {
	fmt.Print("\r\033[K")
}

// PrintHelp prints all available slash commands.
func (t *Terminal) PrintHelp() {
	t.println(t.c(Bold, "Commands"))
	t.println(t.c(Cyan, "  /help   ") + " Show this help message")
	t.println(t.c(Cyan, "  /model  ") + " Switch LLM model")
	t.println(t.c(Cyan, "  /compact") + " Compact conversation (LLM summarizes history)")
	t.println(t.c(Cyan, "  /clear  ") + " Clear conversation history")
	t.println(t.c(Cyan, "  /context") + " Show context window usage")
	t.println(t.c(Cyan, "  /tasks  ") + " Show current task list")
	t.println(t.c(Cyan, "  /resume ") + " Resume a previous session")
	t.println(t.c(Cyan, "  /rewind ") + " Rewind to a previous checkpoint")
	t.println(t.c(Cyan, "  /quit   ") + " Exit vtcode")
	t.println("")
}

// ModelOption represents a model choice in the /model menu.
type ModelOption struct {
	Label   string
	Current bool
}

// PrintModelMenu prints the numbered model selection menu.
func (t *Terminal) PrintModelMenu(options []ModelOption) {
	t.println(t.c(Bold, "Select a model:"))
	for i, opt := range options {
		marker := "  "
		if opt.Current {
			marker = t.c(Green, "→ ")
		}
		t.printf("%s%s %s\n", marker, t.c(Cyan, fmt.Sprintf("[%d]", i+1)), opt.Label)
	}
	t.printf("  %s %s\n", t.c(Cyan, "[0]"), "Enter a custom model name")
	t.println(t.c(Gray, "  Ctrl+C to cancel"))
	t.println("")
}

// PrintModelSwitch prints a model switch confirmation.
func (t *Terminal) PrintModelSwitch(model string) {
	t.println(t.c(Green, fmt.Sprintf("Switched to %s", model)))
	t.println("")
}

// PrintContextUsage prints context usage statistics.
func (t *Terminal) PrintContextUsage(total, window, compactAt, msgCount, systemTokens, toolDefTokens, messageTokens, actualTokens int) {
	t.println(t.c(Bold, "Context Usage"))
	if actualTokens > 0 {
		pct := 0.0
		if window > 0 {
			pct = float64(actualTokens) / float64(window) * 100
		}
		t.printf("  Tokens: %s / %s (%.1f%%)\n", formatNum(actualTokens), formatNum(window), pct)
		t.printf("  Compact at: %s (80%%)\n", formatNum(compactAt))
		t.printf("  Messages: %d\n", msgCount)
	} else {
		pct := 0.0
		if window > 0 {
			pct = float64(total) / float64(window) * 100
		}
		t.printf("  Tokens: ~%s / %s (~%.1f%%)\n", formatNum(total), formatNum(window), pct)
		t.printf("  Compact at: %s (80%%)\n", formatNum(compactAt))
		t.println("")
		t.printf("    %s\n", t.c(Bold, "Breakdown (estimated):"))
		t.printf("      %s  ~%s tokens\n", t.c(Gray, "System prompt   "), formatNum(systemTokens))
		t.printf("      %s  ~%s tokens\n", t.c(Yellow, "Tool definitions"), formatNum(toolDefTokens))
		t.printf("      %s  ~%s tokens\n", t.c(Cyan, fmt.Sprintf("Messages (%d)   ", msgCount)), formatNum(messageTokens))
	}
	t.println("")
}

func formatNum(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Interrupter controls an escape key listener during agent execution.
type Interrupter interface {
	Stop()
	Pause()
	Resume()
}

var _ Interrupter = (*InterruptListener)(nil)

// InterruptListener watches for Esc key presses during agent execution
// and cancels a derived context when detected.
type InterruptListener struct {
	term    *Terminal
	rawMode *RawMode
	cancel  context.CancelFunc
	stopCh  chan struct{} // closed to signal readLoop to exit
	done    chan struct{} // closed when readLoop has exited
	mu      sync.Mutex
	active  bool
}

// StartEscapeListener creates a derived context that cancels when Esc is pressed.
// Returns the derived context, the listener (for Pause/Resume/Stop), and any error.
// If raw mode cannot be initialized (e.g., no TTY), returns the original context
// and a nil listener.
func (t *Terminal) StartEscapeListener(parent context.Context) (context.Context, Interrupter, error) {
	rm, err := NewRawMode()
	if err != nil {
		return parent, nil, err
	}

	if err := rm.Enable(); err != nil {
		return parent, nil, err
	}
	t.setRaw(true)

	ctx, cancel := context.WithCancel(parent)
	il := &InterruptListener{
		term:    t,
		rawMode: rm,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		active:  true,
	}

	go il.readLoop()

	return ctx, il, nil
}

func (il *InterruptListener) readLoop() {
	defer close(il.done)
	for {
		ch, err := il.rawMode.ReadKey(il.stopCh)
		if err != nil {
			return // ErrStopped or read error
		}

		il.mu.Lock()
		active := il.active
		il.mu.Unlock()

		if !active {
			continue
		}

		if ch == 0x1B {
			il.cancel()
			return
		}
	}
}

// Stop shuts down the listener and restores terminal mode.
func (il *InterruptListener) Stop() {
	il.mu.Lock()
	il.active = false
	il.mu.Unlock()

	// Restore terminal mode first so Ctrl+C works even if goroutine is slow to exit
	il.rawMode.Disable()
	il.term.setRaw(false)

	// Signal the readLoop to stop, then wait for it
	close(il.stopCh)
	<-il.done

	il.cancel()
}

// Pause temporarily disables raw mode (e.g., for confirmation prompts).
func (il *InterruptListener) Pause() {
	il.mu.Lock()
	il.active = false
	il.mu.Unlock()
	il.rawMode.Disable()
	il.term.setRaw(false)
}

// Resume re-enables raw mode after a Pause.
func (il *InterruptListener) Resume() {
	il.rawMode.Enable()
	il.term.setRaw(true)
	il.mu.Lock()
	il.active = true
	il.mu.Unlock()
}

// SessionListItem represents a session entry for display.
type SessionListItem struct {
	ID       string
	Updated  time.Time
	Preview  string
	MsgCount int
}

// PrintSessionList displays a numbered list of recent sessions.
func (t *Terminal) PrintSessionList(items []SessionListItem) {
	t.println(t.c(Bold, "Recent sessions:"))
	for i, item := range items {
		age := formatAge(item.Updated)
		preview := item.Preview
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		t.printf("  %s  %s  %s  %s\n",
			t.c(Cyan, fmt.Sprintf("[%d]", i+1)),
			t.c(Gray, fmt.Sprintf("%-8s", age)),
			t.c(White, fmt.Sprintf("%q", preview)),
			t.c(Gray, fmt.Sprintf("(%d messages)", item.MsgCount)),
		)
	}
	t.println(t.c(Gray, "  Ctrl+C to cancel"))
	t.println("")
}

// PrintSessionResumed prints a confirmation after resuming a session.
func (t *Terminal) PrintSessionResumed(msgCount int, preview string) {
	if len(preview) > 60 {
		preview = preview[:60] + "..."
	}
	t.println(t.c(Green, fmt.Sprintf("Resumed session: %q (%d messages)", preview, msgCount)))
	t.println("")
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// CheckpointListItem represents a checkpoint entry for display.
type CheckpointListItem struct {
	Turn      int
	Timestamp time.Time
	Preview   string
}

// PrintCheckpointList displays a numbered list of checkpoints.
func (t *Terminal) PrintCheckpointList(items []CheckpointListItem) {
	t.println(t.c(Bold, "Checkpoints:"))
	for _, item := range items {
		age := formatAge(item.Timestamp)
		preview := item.Preview
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		t.printf("  %s  %s  %s\n",
			t.c(Cyan, fmt.Sprintf("[%d]", item.Turn)),
			t.c(Gray, fmt.Sprintf("%-8s", age)),
			t.c(White, fmt.Sprintf("%q", preview)),
		)
	}
	t.println(t.c(Gray, "  Ctrl+C to cancel"))
	t.println("")
}

// PrintRewindActions displays the rewind action menu.
func (t *Terminal) PrintRewindActions() {
	t.println(t.c(Bold, "Choose action:"))
	t.printf("  %s  Restore code and conversation\n", t.c(Cyan, "[1]"))
	t.printf("  %s  Restore conversation only\n", t.c(Cyan, "[2]"))
	t.printf("  %s  Restore code only\n", t.c(Cyan, "[3]"))
	t.printf("  %s  Summarize from here\n", t.c(Cyan, "[4]"))
	t.printf("  %s  Never mind\n", t.c(Cyan, "[5]"))
	t.println("")
}

// PrintProviderPrompt prints a provider selection prompt for custom model entry.
func (t *Terminal) PrintProviderPrompt(current string) {
	t.printf("  %s openai  %s anthropic  (current: %s)\n",
		t.c(Cyan, "[1]"), t.c(Cyan, "[2]"), current)
}

// PrintConversationHistory replays a stored conversation to the terminal.
func (t *Terminal) PrintConversationHistory(messages []llm.Message) {
	t.println(t.c(Gray, "--- Conversation history ---"))
	t.println("")
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "user":
			if text := msg.ContentString(); text != "" {
				t.println(t.c(Bold+Blue, "> ") + text)
				t.println("")
			}
		case "assistant":
			if text := msg.ContentString(); text != "" {
				t.PrintAssistant(text)
				t.PrintAssistantDone()
			}
			for _, tc := range msg.ToolCalls {
				t.PrintToolCall(tc.Name, tc.Arguments)
			}
		case "tool":
			t.PrintToolResult(msg.ContentString())
		}
	}
	t.println(t.c(Gray, "--- End of history ---"))
	t.println("")
}

// TaskListItem represents a task entry for display.
type TaskListItem struct {
	ID          int
	Content     string
	Description string
	Status      string
	ActiveForm  string
}

// PrintTaskList displays the current task list grouped by status.
func (t *Terminal) PrintTaskList(tasks []TaskListItem) {
	t.println(t.c(Bold, "Tasks"))

	pending, inProgress, completed := 0, 0, 0
	for _, task := range tasks {
		var marker string
		switch task.Status {
		case "in_progress":
			inProgress++
			marker = t.c(Yellow, "● ")
		case "completed":
			completed++
			marker = t.c(Green, "✓ ")
		default:
			pending++
			marker = t.c(Cyan, "○ ")
		}
		t.printf("  %s%s %s\n", marker, t.c(Gray, fmt.Sprintf("[%d]", task.ID)), task.Content)
		if task.Description != "" {
			desc := task.Description
			if len(desc) > 200 {
				desc = desc[:197] + "..."
			}
			t.printf("       %s\n", t.c(Gray, desc))
		}
	}
	t.println("")
	t.printf("  %d tasks (%d pending, %d in progress, %d completed)\n",
		len(tasks), pending, inProgress, completed)
	t.println("")
}

// PrintRewindComplete prints a confirmation message after a rewind operation.
func (t *Terminal) PrintRewindComplete(action string) {
	t.println(t.c(Green, fmt.Sprintf("Rewind complete: %s", action)))
	t.println("")
}
