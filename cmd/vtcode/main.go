// vtcode is a terminal-based AI coding agent that provides a REPL interface
// for interactive conversations with LLM-powered tool execution.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lowkaihon/vtcode/agent"
	"github.com/lowkaihon/vtcode/cache"
	"github.com/lowkaihon/vtcode/config"
	"github.com/lowkaihon/vtcode/hooks"
	"github.com/lowkaihon/vtcode/llm"
	"github.com/lowkaihon/vtcode/policy"
	"github.com/lowkaihon/vtcode/toolpolicy"
	"github.com/lowkaihon/vtcode/tools"
	"github.com/lowkaihon/vtcode/ui"
	"github.com/lowkaihon/vtcode/workspace"
)

var version = "dev"

func getVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

const (
	cacheCapacity = 256
	cacheMaxBytes = 32 << 20
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("vtcode %s\n", getVersion())
		os.Exit(0)
	}

	// Structured audit log on stderr; the TUI owns stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	rootCtx := context.Background()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	workDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting working directory: %s\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	guard, err := workspace.New(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	term := ui.NewTerminal()

	currentProvider := cfg.Agent.DefaultProvider
	currentModel := cfg.Agent.DefaultModel
	provider, err := newProvider(cfg, currentProvider, currentModel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	policyPath, _ := config.ToolPolicyPath()
	policies, err := toolpolicy.Load(policyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	applyToolOverrides(policies, cfg.Tools)

	stateDir, _ := agent.StateDir(workDir)

	registry := tools.NewRegistry(tools.Options{
		Guard:    guard,
		Exec:     policy.New(guard, cfg.Commands.AllowList),
		Policies: policies,
		Prompt:   promptFunc(term),
		Cache:    cache.New(cacheCapacity, cacheMaxBytes),
		StateDir: stateDir,
		Model:    currentModel,
		Logger:   logger,
	})

	hookEngine := hooks.New(hookGroups(cfg), logger)

	ag := agent.New(agent.Options{
		Provider:      provider,
		Registry:      registry,
		WorkDir:       workDir,
		StateDir:      stateDir,
		ContextWindow: cfg.Agent.MaxContextTokens,
		Model:         currentModel,
		Hooks:         hookEngine,
		Logger:        logger,
	})

	term.PrintBanner(currentModel, workDir, getVersion())
	ag.FireSessionStart(rootCtx, term)
	defer ag.FireSessionEnd(rootCtx)

	reader := bufio.NewReader(os.Stdin)

	// Track whether agent is currently running, protected by mutex
	var mu sync.Mutex
	var runCancel context.CancelFunc
	var lastInterrupt time.Time

	// Background goroutine to handle Ctrl+C signals
	go func() {
		for range sigCh {
			mu.Lock()
			cancel := runCancel
			now := time.Now()
			doubleTap := now.Sub(lastInterrupt) < 2*time.Second
			lastInterrupt = now
			mu.Unlock()

			if cancel != nil {
				// Agent is running — cancel the current operation
				cancel()
			} else if doubleTap {
				fmt.Println("\nExiting.")
				os.Exit(0)
			} else {
				fmt.Println()
				term.PrintPrompt()
			}
		}
	}()

	running := true
	for running {
		fmt.Print(term.Prompt())
		input, err := readInput(reader)
		if err != nil {
			// EOF (Ctrl+D) or error
			break
		}

		if input == "" {
			continue
		}

		switch input {
		case "/help":
			term.PrintHelp()
			if sessDir, err := agent.GlobalSessionsDir(workDir); err == nil {
				fmt.Printf("  Sessions stored at: %s\n\n", sessDir)
			}
		case "/model":
			handleModelSwitch(reader, term, cfg, ag, &currentModel, &currentProvider)
		case "/quit":
			running = false
		case "/resume":
			handleResume(reader, term, ag, workDir)
		case "/compact":
			if err := ag.Compact(rootCtx, term); err != nil {
				term.PrintError(err)
			} else if err := ag.SaveSession(); err != nil {
				term.PrintWarning(fmt.Sprintf("Session save failed: %s", err))
			}
		case "/clear":
			ag.Clear(term)
		case "/context":
			s := ag.ContextUsage()
			term.PrintContextUsage(s.TotalTokens, s.ContextWindow, s.CompactAt,
				s.MessageCount, s.SystemTokens, s.ToolDefTokens,
				s.MessageTokens, s.ActualTokens)
		case "/tasks":
			items := make([]ui.TaskListItem, 0)
			for _, t := range ag.Tasks() {
				items = append(items, ui.TaskListItem{
					ID: t.ID, Content: t.Content, Status: t.Status, ActiveForm: t.ActiveForm,
				})
			}
			term.PrintTaskList(items)
		case "/rewind":
			handleRewind(reader, term, ag, rootCtx)
		default:
			ag.CreateCheckpoint(input)

			runCtx, cancel := context.WithCancel(rootCtx)

			mu.Lock()
			runCancel = cancel
			mu.Unlock()

			err := ag.Run(runCtx, input, term)

			mu.Lock()
			runCancel = nil
			mu.Unlock()

			cancel() // clean up context resources

			if err != nil {
				if err == context.Canceled || runCtx.Err() != nil {
					fmt.Println("Operation cancelled.")
					fmt.Println()
				} else {
					term.PrintError(err)
				}
			}

			if saveErr := ag.SaveSession(); saveErr != nil {
				term.PrintWarning(fmt.Sprintf("Session save failed: %s", saveErr))
			}
		}
	}
}

func newProvider(cfg *config.Config, providerName, model string) (llm.Provider, error) {
	apiKey := cfg.APIKeyForProvider(providerName)
	if apiKey == "" {
		envVar := "OPENAI_API_KEY"
		if providerName == "anthropic" {
			envVar = "ANTHROPIC_API_KEY"
		}
		var err error
		apiKey, err = config.PromptAPIKey(providerName, envVar)
		if err != nil {
			return nil, err
		}
	}

	baseURL := cfg.BaseURLForProvider(providerName)
	_, maxTokens, _ := config.ProviderDefaults(providerName, model)

	switch providerName {
	case "anthropic":
		return llm.NewAnthropicProvider(apiKey, model, maxTokens, baseURL), nil
	default:
		// Any OpenAI-compatible endpoint routes through the same adapter.
		return llm.NewOpenAIProvider(apiKey, model, maxTokens, baseURL), nil
	}
}

// applyToolOverrides seeds [tools] config entries into the policy store as
// session-scoped decisions so a vtcode.toml override never silently
// persists into the user's global policy file.
func applyToolOverrides(store *toolpolicy.Store, overrides map[string]string) {
	for name, decision := range overrides {
		switch toolpolicy.Decision(decision) {
		case toolpolicy.Allow, toolpolicy.Prompt, toolpolicy.Deny:
			store.Override(name, toolpolicy.Decision(decision))
		}
	}
}

// promptFunc bridges the registry's policy prompt to the terminal.
func promptFunc(term *ui.Terminal) toolpolicy.PromptFunc {
	return func(toolName, detail string) toolpolicy.Scope {
		switch term.PromptToolDecision(toolName, detail) {
		case "session":
			return toolpolicy.Session
		case "always":
			return toolpolicy.Always
		case "deny":
			return toolpolicy.DenyOnce
		default:
			return toolpolicy.Once
		}
	}
}

// hookGroups converts the TOML hook configuration to the engine's shape.
func hookGroups(cfg *config.Config) map[hooks.Event][]*hooks.MatcherGroup {
	out := make(map[hooks.Event][]*hooks.MatcherGroup)
	for eventName, groups := range cfg.Hooks.Lifecycle {
		event := hooks.Event(eventName)
		for _, g := range groups {
			mg := &hooks.MatcherGroup{Matcher: g.Matcher}
			for _, h := range g.Hooks {
				mg.Hooks = append(mg.Hooks, hooks.Hook{
					Command: h.Command,
					Timeout: time.Duration(h.TimeoutSeconds) * time.Second,
				})
			}
			out[event] = append(out[event], mg)
		}
	}
	return out
}

// readInput reads one line from the reader, then collects any additional
// pasted lines already buffered from the same paste event.
func readInput(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	lines := []string{strings.TrimRight(line, "\r\n")}

	for reader.Buffered() > 0 {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func handleModelSwitch(reader *bufio.Reader, term *ui.Terminal, cfg *config.Config, ag *agent.Agent, currentModel, currentProvider *string) {
	models := config.KnownModels()
	options := make([]ui.ModelOption, len(models))
	for i, m := range models {
		options[i] = ui.ModelOption{
			Label:   m.Label,
			Current: m.Model == *currentModel,
		}
	}
	term.PrintModelMenu(options)

	fmt.Print("Choice: ")
	choice, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return
	}

	var selectedModel, selectedProvider string

	n, err := strconv.Atoi(choice)
	if err != nil {
		term.PrintWarning("Invalid choice.")
		return
	}

	switch {
	case n == 0:
		term.PrintProviderPrompt(*currentProvider)
		fmt.Print("Provider (Enter for current): ")
		pChoice, pErr := reader.ReadString('\n')
		if pErr != nil {
			return
		}
		switch strings.TrimSpace(pChoice) {
		case "1":
			selectedProvider = "openai"
		case "2":
			selectedProvider = "anthropic"
		case "":
			selectedProvider = *currentProvider
		default:
			term.PrintWarning("Invalid choice.")
			return
		}

		fmt.Print("Model name: ")
		custom, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		custom = strings.TrimSpace(custom)
		if custom == "" {
			return
		}
		selectedModel = custom
	case n >= 1 && n <= len(models):
		selectedModel = models[n-1].Model
		selectedProvider = models[n-1].Provider
	default:
		term.PrintWarning("Invalid choice.")
		return
	}

	if selectedModel == *currentModel {
		term.PrintWarning(fmt.Sprintf("Already using %s.", selectedModel))
		return
	}

	if cfg.APIKeyForProvider(selectedProvider) == "" {
		term.PrintWarning(fmt.Sprintf("No API key found for %s. Set the environment variable or add it to credentials.", selectedProvider))
		return
	}

	provider, err := newProvider(cfg, selectedProvider, selectedModel)
	if err != nil {
		term.PrintError(err)
		return
	}
	_, _, contextWindow := config.ProviderDefaults(selectedProvider, selectedModel)
	ag.SetProvider(provider, selectedModel, contextWindow)
	*currentModel = selectedModel
	*currentProvider = selectedProvider

	term.PrintModelSwitch(selectedModel)
}

func handleResume(reader *bufio.Reader, term *ui.Terminal, ag *agent.Agent, workDir string) {
	sessions, err := agent.ListSessions(workDir, 10)
	if err != nil {
		term.PrintError(fmt.Errorf("list sessions: %w", err))
		return
	}
	if len(sessions) == 0 {
		term.PrintWarning("No saved sessions found.")
		return
	}

	items := make([]ui.SessionListItem, len(sessions))
	for i, s := range sessions {
		items[i] = ui.SessionListItem{
			ID:       s.ID,
			Updated:  s.UpdatedAt,
			Preview:  s.Preview,
			MsgCount: s.MsgCount,
		}
	}
	term.PrintSessionList(items)

	fmt.Print("Choice: ")
	choice, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return
	}

	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(sessions) {
		term.PrintWarning("Invalid choice.")
		return
	}

	selected := sessions[n-1]
	if err := ag.ResumeSession(selected.ID); err != nil {
		term.PrintError(fmt.Errorf("resume session: %w", err))
		return
	}

	term.PrintConversationHistory(ag.MessageHistory())
	term.PrintSessionResumed(selected.MsgCount, selected.Preview)
}

func handleRewind(reader *bufio.Reader, term *ui.Terminal, ag *agent.Agent, ctx context.Context) {
	items := ag.Checkpoints()
	if len(items) == 0 {
		term.PrintWarning("No checkpoints available. Checkpoints are created at the start of each turn.")
		return
	}

	uiItems := make([]ui.CheckpointListItem, len(items))
	for i, item := range items {
		uiItems[i] = ui.CheckpointListItem{
			Turn:      item.Turn,
			Timestamp: item.Timestamp,
			Preview:   item.Preview,
		}
	}
	term.PrintCheckpointList(uiItems)

	fmt.Print("Checkpoint number: ")
	choice, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return
	}

	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(items) {
		term.PrintWarning("Invalid checkpoint number.")
		return
	}

	term.PrintRewindActions()

	fmt.Print("Action: ")
	action, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	action = strings.TrimSpace(action)

	switch action {
	case "1":
		if err := ag.RewindAll(n); err != nil {
			term.PrintError(err)
			return
		}
		term.PrintConversationHistory(ag.MessageHistory())
		term.PrintRewindComplete("restored code and conversation")
	case "2":
		ag.RewindConversation(n)
		term.PrintConversationHistory(ag.MessageHistory())
		term.PrintRewindComplete("restored conversation only")
	case "3":
		if err := ag.RewindCode(n); err != nil {
			term.PrintError(err)
			return
		}
		term.PrintRewindComplete("restored code only")
	case "4":
		if err := ag.SummarizeFrom(ctx, n, term); err != nil {
			term.PrintError(err)
			return
		}
		term.PrintConversationHistory(ag.MessageHistory())
		term.PrintRewindComplete("summarized from checkpoint")
	case "5":
		return
	default:
		term.PrintWarning("Invalid action.")
	}
}
