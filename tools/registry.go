// Package tools provides the tool registry and execution pipeline: schema
// validation, workspace path confinement, policy gating, fingerprinting and
// result caching, command-policy enforcement for shell-backed tools, and
// dual-channel result encoding.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lowkaihon/vtcode/cache"
	"github.com/lowkaihon/vtcode/llm"
	"github.com/lowkaihon/vtcode/policy"
	"github.com/lowkaihon/vtcode/tokenbudget"
	"github.com/lowkaihon/vtcode/toolpolicy"
	"github.com/lowkaihon/vtcode/workspace"
)

// ToolFunc is the signature for tool implementations. The returned string is
// the raw output; the pipeline dual-encodes it afterwards.
type ToolFunc func(ctx context.Context, input json.RawMessage) (string, error)

// PreviewFunc renders what a write-class tool is about to do, shown to the
// user when the policy store answers Prompt.
type PreviewFunc func(input json.RawMessage) (string, error)

// SpoolThreshold is the ui_content size past which the full output is also
// written to the session state directory.
const SpoolThreshold = 200 * 1024

// maxParallelReads bounds the worker pool for parallel read-class calls.
const maxParallelReads = 4

type toolEntry struct {
	name        string
	description string
	schema      json.RawMessage
	class       Class
	pathProps   []string // schema properties holding workspace paths
	searchable  bool     // candidate for fuzzy cache matching
	deferred    bool     // withheld from the initial schema list
	fn          ToolFunc
	preview     PreviewFunc
}

// Options wires the registry's collaborators.
type Options struct {
	Guard          *workspace.Guard
	Exec           *policy.Policy
	Policies       *toolpolicy.Store
	Prompt         toolpolicy.PromptFunc
	Cache          *cache.Cache
	StateDir       string // spool directory for oversized ui_content
	Model          string // tokenizer hint for estimation
	ResponseBudget int    // llm_content token bound; 0 = default
	Logger         *slog.Logger
}

// Registry holds all available tools and runs the execution pipeline.
type Registry struct {
	opts          Options
	tools         []toolEntry
	byName        map[string]int
	exploreFunc   ExploreFunc
	taskCallbacks TaskCallbacks
}

// NewRegistry creates a registry with every built-in tool registered.
func NewRegistry(opts Options) *Registry {
	if opts.ResponseBudget <= 0 {
		opts.ResponseBudget = tokenbudget.DefaultToolResponseBudget
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Registry{opts: opts, byName: make(map[string]int)}
	r.registerBuiltins()
	return r
}

func (r *Registry) register(e toolEntry) {
	r.byName[e.name] = len(r.tools)
	r.tools = append(r.tools, e)
}

func (r *Registry) workDir() string {
	return r.opts.Guard.Root()
}

// IsReadOnly reports whether a tool never modifies the filesystem.
func (r *Registry) IsReadOnly(name string) bool {
	idx, ok := r.byName[name]
	if !ok {
		return false
	}
	return r.tools[idx].class == ClassRead
}

// Definitions returns tool definitions in stable registration order,
// carrying each tool's deferred flag for advanced-tool-use providers.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, len(r.tools))
	for i, t := range r.tools {
		defs[i] = llm.ToolDef{
			Name:        t.name,
			Description: t.description,
			Parameters:  t.schema,
			Deferred:    t.deferred,
		}
	}
	return defs
}

// ReadOnlyOptions returns a copy of this registry's options suitable for a
// read-only child registry: same guard, cache, and budget, no prompt.
func (r *Registry) ReadOnlyOptions() Options {
	opts := r.opts
	opts.Prompt = nil
	return opts
}

// Promote marks a deferred tool non-deferred, used after search_tools
// surfaces it so the next provider request carries its schema.
func (r *Registry) Promote(name string) {
	if idx, ok := r.byName[name]; ok {
		r.tools[idx].deferred = false
	}
}

// Execute runs the full pipeline for one call: schema check, path
// normalization, policy gate, fingerprint and cache lookup, execution, and
// dual-channel encoding. It always returns a result; failures are encoded
// in the result's status so the model can react.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) *ToolResult {
	return r.ExecuteWithOverride(ctx, name, input, "")
}

// ExecuteWithOverride is Execute with a per-call policy override, used when
// a PreToolUse hook's permissionDecision overrides the Tool-Policy Store
// for this one call. An empty override means no override.
func (r *Registry) ExecuteWithOverride(ctx context.Context, name string, input json.RawMessage, override toolpolicy.Decision) *ToolResult {
	if ctx.Err() != nil {
		return r.errResult(StatusCancelled, "operation cancelled")
	}

	idx, ok := r.byName[name]
	if !ok {
		return r.errResult(StatusUnknownTool, fmt.Sprintf("unknown tool: %s", name))
	}
	entry := &r.tools[idx]

	// 1. Schema check.
	if err := validateArgs(entry.schema, input); err != nil {
		return r.errResult(StatusInvalidArguments, err.Error())
	}

	// 2. Path normalization through the Workspace Guard.
	paths, res := r.resolvePathArgs(entry, input)
	if res != nil {
		return res
	}

	// 3. Policy gate.
	if res := r.policyGate(entry, input, override); res != nil {
		return res
	}

	// 4. Fingerprint and cache lookup (read-class only).
	var fingerprint string
	if entry.class == ClassRead && r.opts.Cache != nil {
		fp, err := Fingerprint(entry.name, input, r.workDir(), paths)
		if err == nil {
			fingerprint = fp
			if hit, ok := r.opts.Cache.Get(fp); ok {
				return r.cachedResult(hit, false)
			}
			if entry.searchable {
				tokens := cache.Tokenize(string(input))
				if hit, ok := r.opts.Cache.FuzzyGet(tokens, cache.FuzzyThreshold); ok {
					return r.cachedResult(hit, true)
				}
			}
		}
	}

	// 5-6. Execute and dual-encode.
	raw, err := entry.fn(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return r.errResult(StatusCancelled, "operation cancelled")
		}
		status := StatusExecFailed
		if _, blocked := err.(*policy.Blocked); blocked {
			status = StatusBlocked
			r.opts.Logger.Warn("command blocked", "tool", name, "reason", err.Error())
		}
		return r.errResult(status, err.Error())
	}

	result := r.encode(entry, raw, fingerprint)

	// 7. Cache insert and invalidation.
	switch entry.class {
	case ClassRead:
		if fingerprint != "" && r.opts.Cache != nil {
			r.opts.Cache.Put(fingerprint, &cache.Entry{
				LLMContent: result.LLMContent,
				UIContent:  result.UIContent,
				Paths:      paths,
				Tokens:     searchTokens(entry, input),
				TTL:        cache.DefaultTTL(entry.name),
				Size:       len(result.LLMContent) + len(result.UIContent),
			})
		}
	case ClassWrite:
		if r.opts.Cache != nil {
			for _, p := range paths {
				r.opts.Cache.InvalidatePrefix(p)
			}
		}
	case ClassExec:
		if r.opts.Cache != nil && !execIsPure(input) {
			r.opts.Cache.InvalidateAll()
		}
	}

	return result
}

func searchTokens(entry *toolEntry, input json.RawMessage) []string {
	if !entry.searchable {
		return nil
	}
	return cache.Tokenize(string(input))
}

// resolvePathArgs routes every declared path argument through the Workspace
// Guard and returns the canonical paths the call touches.
func (r *Registry) resolvePathArgs(entry *toolEntry, input json.RawMessage) ([]string, *ToolResult) {
	if len(entry.pathProps) == 0 {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return nil, r.errResult(StatusInvalidArguments, err.Error())
	}

	var paths []string
	for _, prop := range entry.pathProps {
		raw, ok := decoded[prop]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok || s == "" {
			continue
		}
		canonical, _, err := r.opts.Guard.Resolve(s)
		if err != nil {
			return nil, r.errResult(StatusOutsideWorkspace, err.Error())
		}
		paths = append(paths, canonical)
	}
	return paths, nil
}

// policyGate consults the Tool-Policy Store, prompting interactively when
// the decision is Prompt. A non-empty override replaces the store's answer
// for this call only.
func (r *Registry) policyGate(entry *toolEntry, input json.RawMessage, override toolpolicy.Decision) *ToolResult {
	def := toolpolicy.DefaultDecision(entry.name, entry.class == ClassRead || entry.class == ClassMeta, false)
	decision := def
	if r.opts.Policies != nil {
		decision = r.opts.Policies.Decision(entry.name, def)
	}
	if override != "" {
		decision = override
	}

	switch decision {
	case toolpolicy.Deny:
		r.opts.Logger.Warn("tool denied by policy", "tool", entry.name)
		return r.errResult(StatusPolicyDenied, fmt.Sprintf("tool %q is denied by policy", entry.name))
	case toolpolicy.Prompt:
		if r.opts.Prompt == nil {
			return r.errResult(StatusPolicyDenied, fmt.Sprintf("tool %q requires confirmation but no prompt is available", entry.name))
		}
		detail := string(input)
		if entry.preview != nil {
			if p, err := entry.preview(input); err == nil {
				detail = p
			}
		}
		scope := r.opts.Prompt(entry.name, detail)
		if scope == toolpolicy.DenyOnce {
			return r.errResult(StatusPolicyDenied, "User denied the operation.")
		}
		if r.opts.Policies != nil {
			if err := r.opts.Policies.Record(entry.name, scope); err != nil {
				r.opts.Logger.Warn("persist tool policy", "tool", entry.name, "error", err)
			}
		}
	}
	return nil
}

// encode produces the dual-channel result: full ui_content (spooled past
// the threshold) and llm_content bounded by the response token budget.
func (r *Registry) encode(entry *toolEntry, raw string, fingerprint string) *ToolResult {
	llmContent, truncated := tokenbudget.Truncate(raw, r.opts.ResponseBudget, r.opts.Model)

	result := &ToolResult{
		LLMContent: llmContent,
		UIContent:  raw,
		Meta: ResultMeta{
			Status:       StatusOK,
			TokensLLM:    tokenbudget.EstimateTokens(llmContent, r.opts.Model),
			TokensUI:     tokenbudget.EstimateTokens(raw, r.opts.Model),
			Summarized:   truncated,
			CanonicalLen: len(raw),
		},
	}

	if len(raw) > SpoolThreshold && r.opts.StateDir != "" {
		name := entry.name
		if len(fingerprint) >= 12 {
			name += "-" + fingerprint[:12]
		} else {
			name += fmt.Sprintf("-%d", time.Now().UnixNano())
		}
		spool := filepath.Join(r.opts.StateDir, "spool", name+".txt")
		if err := os.MkdirAll(filepath.Dir(spool), 0755); err == nil {
			if err := os.WriteFile(spool, []byte(raw), 0644); err == nil {
				result.Meta.SpooledPath = spool
			}
		}
	}

	return result
}

func (r *Registry) cachedResult(e *cache.Entry, fuzzy bool) *ToolResult {
	return &ToolResult{
		LLMContent: e.LLMContent,
		UIContent:  e.UIContent,
		Meta: ResultMeta{
			Status:     StatusOK,
			TokensLLM:  tokenbudget.EstimateTokens(e.LLMContent, r.opts.Model),
			TokensUI:   tokenbudget.EstimateTokens(e.UIContent, r.opts.Model),
			FromCache:  true,
			FuzzyMatch: fuzzy,
		},
	}
}

func (r *Registry) errResult(status Status, msg string) *ToolResult {
	content := fmt.Sprintf("Error (%s): %s", status, msg)
	return &ToolResult{
		LLMContent: content,
		UIContent:  content,
		Meta: ResultMeta{
			Status:    status,
			TokensLLM: tokenbudget.EstimateTokens(content, r.opts.Model),
			TokensUI:  tokenbudget.EstimateTokens(content, r.opts.Model),
		},
	}
}

// BatchResult pairs a call's id with its result, in the model's call order.
type BatchResult struct {
	ID     string
	Name   string
	Result *ToolResult
}

// ExecuteBatch runs a finished assistant message's tool calls. The conflict
// planner groups consecutive read-class calls (reads never conflict with
// reads) for parallel execution on a bounded pool; write-class, exec-class,
// and meta calls flush the group and run sequentially. Result order always
// follows the model's call order regardless of completion order.
func (r *Registry) ExecuteBatch(ctx context.Context, calls []llm.ToolCall) []BatchResult {
	results := make([]BatchResult, len(calls))
	for i, call := range calls {
		results[i] = BatchResult{ID: call.ID, Name: call.Name}
	}

	var group []int
	flush := func() {
		if len(group) == 0 {
			return
		}
		if len(group) == 1 {
			i := group[0]
			results[i].Result = r.Execute(ctx, calls[i].Name, json.RawMessage(calls[i].Arguments))
		} else {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(maxParallelReads)
			for _, i := range group {
				i := i
				g.Go(func() error {
					results[i].Result = r.Execute(gctx, calls[i].Name, json.RawMessage(calls[i].Arguments))
					return nil
				})
			}
			g.Wait()
		}
		group = group[:0]
	}

	for i, call := range calls {
		if !json.Valid([]byte(call.Arguments)) {
			flush()
			results[i].Result = r.errResult(StatusInvalidArguments, fmt.Sprintf("invalid JSON in tool arguments: %s", call.Arguments))
			continue
		}
		idx, known := r.byName[call.Name]
		if known && r.tools[idx].class == ClassRead {
			group = append(group, i)
			continue
		}
		flush()
		results[i].Result = r.Execute(ctx, call.Name, json.RawMessage(call.Arguments))
	}
	flush()

	return results
}

// Conflicts implements the planner's rule: two operations conflict iff one
// writes and either touches the same canonical path prefix.
func Conflicts(aClass Class, aPaths []string, bClass Class, bPaths []string) bool {
	if aClass != ClassWrite && bClass != ClassWrite {
		return false
	}
	for _, a := range aPaths {
		for _, b := range bPaths {
			if a == b || pathHasPrefix(a, b) || pathHasPrefix(b, a) {
				return true
			}
		}
	}
	return false
}

func pathHasPrefix(p, prefix string) bool {
	rel, err := filepath.Rel(prefix, p)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && rel != "." && !isDotDotPrefixed(rel)
}

func isDotDotPrefixed(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
