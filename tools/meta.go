package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SkillsDir is the workspace-relative directory load_skill reads from.
const SkillsDir = ".vtcode/skills"

type searchToolsInput struct {
	Query string `json:"query"`
}

// searchToolsTool matches the query against deferred tool names and
// descriptions and promotes the matches so the next provider request
// carries their schemas.
func (r *Registry) searchToolsTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[searchToolsInput](input)
	if err != nil {
		return "", err
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	re, reErr := regexp.Compile("(?i)" + params.Query)
	keywords := strings.Fields(strings.ToLower(params.Query))

	matches := func(name, description string) bool {
		haystack := name + " " + description
		if reErr == nil && re.MatchString(haystack) {
			return true
		}
		lower := strings.ToLower(haystack)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	var found []string
	for i := range r.tools {
		t := &r.tools[i]
		if !t.deferred {
			continue
		}
		if matches(t.name, t.description) {
			r.Promote(t.name)
			found = append(found, fmt.Sprintf("- %s: %s", t.name, firstSentence(t.description)))
		}
	}

	if len(found) == 0 {
		return "No deferred tools matched the query.", nil
	}
	return fmt.Sprintf("Matched %d tool(s); they are available from your next turn:\n%s",
		len(found), strings.Join(found, "\n")), nil
}

func firstSentence(s string) string {
	if idx := strings.IndexByte(s, '.'); idx > 0 && idx < 200 {
		return s[:idx+1]
	}
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

type loadSkillInput struct {
	Name string `json:"name"`
}

func (r *Registry) loadSkillTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[loadSkillInput](input)
	if err != nil {
		return "", err
	}
	if params.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	if strings.ContainsAny(params.Name, "/\\") {
		return "", fmt.Errorf("skill name must not contain path separators")
	}

	skillPath, _, err := r.opts.Guard.Resolve(filepath.Join(SkillsDir, params.Name+".md"))
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(skillPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("skill %q not found under %s", params.Name, SkillsDir)
		}
		return "", fmt.Errorf("read skill: %w", err)
	}

	return fmt.Sprintf("# Skill: %s\n\n%s", params.Name, string(data)), nil
}
