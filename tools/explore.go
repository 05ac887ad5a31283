package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lowkaihon/vtcode/tokenbudget"
)

// ExploreFunc is the callback signature for running a sub-agent exploration.
// It receives a context and task description, returns the exploration summary.
type ExploreFunc func(ctx context.Context, task string) (string, error)

// SetExploreFunc injects the explore callback, breaking the circular dependency
// between the tools and agent packages.
func (r *Registry) SetExploreFunc(fn ExploreFunc) {
	r.exploreFunc = fn
}

type exploreInput struct {
	Task string `json:"task"`
}

func (r *Registry) exploreTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[exploreInput](input)
	if err != nil {
		return "", err
	}
	if params.Task == "" {
		return "", fmt.Errorf("task is required")
	}
	if r.exploreFunc == nil {
		return "", fmt.Errorf("explore sub-agent not configured")
	}

	return r.exploreFunc(ctx, params.Task)
}

// NewReadOnlyRegistry creates a registry with only the read-class tools.
// Used by the explore sub-agent to prevent file modifications; it shares
// the parent's guard, cache and policy store but not its prompt
// (read-class defaults to Allow, so no gate fires).
func NewReadOnlyRegistry(opts Options) *Registry {
	opts.Prompt = nil
	if opts.ResponseBudget <= 0 {
		opts.ResponseBudget = tokenbudget.DefaultToolResponseBudget
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Registry{opts: opts, byName: make(map[string]int)}
	r.registerReadOnlyTools()
	return r
}
