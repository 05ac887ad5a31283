package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *Registry) writeFileTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[writeFileInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if params.Content == "" {
		return "", fmt.Errorf("content is required")
	}

	absPath, _, err := r.opts.Guard.Resolve(params.Path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := AtomicWrite(absPath, []byte(params.Content), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return fmt.Sprintf("Successfully wrote %s (%d bytes)", params.Path, len(params.Content)), nil
}

func (r *Registry) writeFilePreview(input json.RawMessage) (string, error) {
	params, err := parseInput[writeFileInput](input)
	if err != nil {
		return "", err
	}
	absPath, _, err := r.opts.Guard.Resolve(params.Path)
	if err != nil {
		return "", err
	}
	old := ""
	if data, err := os.ReadFile(absPath); err == nil {
		old = string(data)
	}
	return formatChangePreview("write_file", params.Path, old, params.Content), nil
}

func formatChangePreview(tool, path, old, new string) string {
	if old == "" {
		return fmt.Sprintf("%s %s (new file, %d bytes)\n\n%s", tool, path, len(new), new)
	}
	return fmt.Sprintf("%s %s\n--- old (%d bytes)\n+++ new (%d bytes)\n\n%s", tool, path, len(old), len(new), new)
}
