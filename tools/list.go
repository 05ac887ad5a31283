package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type listFilesInput struct {
	Path string `json:"path"`
}

func (r *Registry) listFilesTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[listFilesInput](input)
	if err != nil {
		return "", err
	}

	dir := r.workDir()
	if params.Path != "" {
		dir, _, err = r.opts.Guard.Resolve(params.Path)
		if err != nil {
			return "", err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read directory: %w", err)
	}

	var result strings.Builder
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		if entry.IsDir() {
			result.WriteString(fmt.Sprintf("  %s/\n", entry.Name()))
		} else {
			result.WriteString(fmt.Sprintf("  %-40s %s\n", entry.Name(), formatSize(info.Size())))
		}
	}

	if result.Len() == 0 {
		return "Directory is empty.", nil
	}

	return result.String(), nil
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

type treeInput struct {
	Path     string `json:"path"`
	MaxDepth int    `json:"max_depth"`
}

func (r *Registry) treeTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[treeInput](input)
	if err != nil {
		return "", err
	}

	root := r.workDir()
	if params.Path != "" {
		root, _, err = r.opts.Guard.Resolve(params.Path)
		if err != nil {
			return "", err
		}
	}
	maxDepth := params.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}

	var sb strings.Builder
	sb.WriteString(filepath.Base(root) + "/\n")
	if err := writeTree(&sb, root, "", 1, maxDepth); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeTree(sb *strings.Builder, dir, indent string, depth, maxDepth int) error {
	if depth > maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for i, entry := range entries {
		if entry.IsDir() && shouldSkipDir(entry.Name()) {
			continue
		}
		connector := "├── "
		childIndent := indent + "│   "
		if i == len(entries)-1 {
			connector = "└── "
			childIndent = indent + "    "
		}
		if entry.IsDir() {
			sb.WriteString(indent + connector + entry.Name() + "/\n")
			if entry.Type()&os.ModeSymlink == 0 {
				if err := writeTree(sb, filepath.Join(dir, entry.Name()), childIndent, depth+1, maxDepth); err != nil {
					return err
				}
			}
		} else {
			sb.WriteString(indent + connector + entry.Name() + "\n")
		}
	}
	return nil
}
