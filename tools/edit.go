package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type editFileInput struct {
	Path   string `json:"path"`
	OldStr string `json:"old_str"`
	NewStr string `json:"new_str"`
}

func (r *Registry) editFileTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[editFileInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if params.OldStr == "" {
		return "", fmt.Errorf("old_str is required")
	}

	absPath, _, err := r.opts.Guard.Resolve(params.Path)
	if err != nil {
		return "", err
	}

	newContent, err := replaceUnique(absPath, params.Path, params.OldStr, params.NewStr)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if err := AtomicWrite(absPath, []byte(newContent), info.Mode()); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return fmt.Sprintf("Successfully edited %s", params.Path), nil
}

func (r *Registry) editFilePreview(input json.RawMessage) (string, error) {
	params, err := parseInput[editFileInput](input)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("edit_file %s\n--- old_str\n%s\n+++ new_str\n%s", params.Path, params.OldStr, params.NewStr), nil
}

// replaceUnique applies a single exact-match replacement, failing when the
// match is missing or ambiguous so the model can supply more context.
func replaceUnique(absPath, displayPath, oldStr, newStr string) (string, error) {
	contentBytes, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(contentBytes)

	count := strings.Count(content, oldStr)
	if count == 0 {
		return "", fmt.Errorf("no match found for old_str in %s. Check for exact whitespace and indentation", displayPath)
	}
	if count > 1 {
		// Find line numbers of each match to help the model disambiguate.
		lines := strings.Split(content, "\n")
		firstLine := strings.SplitN(oldStr, "\n", 2)[0]
		var locations []string
		for i, line := range lines {
			if strings.Contains(line, firstLine) {
				locations = append(locations, fmt.Sprintf("line %d", i+1))
			}
		}
		return "", fmt.Errorf("old_str matches %d times in %s (at %s). Include more surrounding context to make the match unique",
			count, displayPath, strings.Join(locations, ", "))
	}

	return strings.Replace(content, oldStr, newStr, 1), nil
}

type patchEdit struct {
	OldStr string `json:"old_str"`
	NewStr string `json:"new_str"`
}

type applyPatchInput struct {
	Path  string      `json:"path"`
	Edits []patchEdit `json:"edits"`
}

func (r *Registry) applyPatchTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[applyPatchInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if len(params.Edits) == 0 {
		return "", fmt.Errorf("edits array is required and must not be empty")
	}

	absPath, _, err := r.opts.Guard.Resolve(params.Path)
	if err != nil {
		return "", err
	}

	contentBytes, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(contentBytes)

	// All edits validate against the evolving content before anything is
	// written, so the patch applies atomically or not at all.
	for i, e := range params.Edits {
		if e.OldStr == "" {
			return "", fmt.Errorf("edit %d: old_str is required", i+1)
		}
		count := strings.Count(content, e.OldStr)
		if count == 0 {
			return "", fmt.Errorf("edit %d: no match found for old_str in %s", i+1, params.Path)
		}
		if count > 1 {
			return "", fmt.Errorf("edit %d: old_str matches %d times in %s. Include more surrounding context", i+1, count, params.Path)
		}
		content = strings.Replace(content, e.OldStr, e.NewStr, 1)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if err := AtomicWrite(absPath, []byte(content), info.Mode()); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return fmt.Sprintf("Successfully applied %d edits to %s", len(params.Edits), params.Path), nil
}

func (r *Registry) applyPatchPreview(input json.RawMessage) (string, error) {
	params, err := parseInput[applyPatchInput](input)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "apply_patch %s (%d edits)\n", params.Path, len(params.Edits))
	for i, e := range params.Edits {
		fmt.Fprintf(&sb, "\nedit %d:\n--- old_str\n%s\n+++ new_str\n%s\n", i+1, e.OldStr, e.NewStr)
	}
	return sb.String(), nil
}
