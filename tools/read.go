package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lowkaihon/vtcode/tokenbudget"
)

type readFileInput struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	MaxLines  int    `json:"max_lines"`
	MaxTokens int    `json:"max_tokens"`
}

func (r *Registry) readFileTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[readFileInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}

	absPath, _, err := r.opts.Guard.Resolve(params.Path)
	if err != nil {
		return "", err
	}

	// Per-call token budget: max_tokens wins; the legacy max_lines parameter
	// is mapped through the documented lines-to-tokens ratio.
	if params.MaxTokens <= 0 && params.MaxLines > 0 {
		mapped, deprecated := tokenbudget.MaxTokensFromLegacyLines(params.MaxLines)
		if deprecated {
			r.opts.Logger.Warn("max_lines is deprecated, use max_tokens",
				"tool", "read_file", "max_lines", params.MaxLines, "mapped_tokens", mapped)
		}
		params.MaxTokens = mapped
	}

	file, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	startLine := params.StartLine
	if startLine <= 0 {
		startLine = 1
	}
	endLine := params.EndLine

	const maxLines = 500

	var result strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 256*1024), 256*1024)

	lineNum := 0
	linesRead := 0
	totalLines := 0

	for scanner.Scan() {
		lineNum++
		totalLines = lineNum

		if lineNum < startLine {
			continue
		}
		if endLine > 0 && lineNum > endLine {
			continue // keep counting total lines
		}

		linesRead++
		if endLine <= 0 && linesRead > maxLines {
			for scanner.Scan() {
				lineNum++
				totalLines = lineNum
			}
			result.WriteString(fmt.Sprintf("\n... (file has %d total lines, showing lines %d-%d. Use start_line/end_line to read more.)",
				totalLines, startLine, startLine+maxLines-1))
			break
		}

		result.WriteString(fmt.Sprintf("%4d │ %s\n", lineNum, scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	if result.Len() == 0 {
		return "File is empty.", nil
	}

	out := result.String()
	if params.MaxTokens > 0 {
		out, _ = tokenbudget.Truncate(out, params.MaxTokens, r.opts.Model)
	}
	return out, nil
}
