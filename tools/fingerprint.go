package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Fingerprint computes the stable canonical hash of a tool call: tool name,
// canonicalized arguments, workspace root, and the mtime/size of each path
// argument's target. Equal fingerprints guarantee semantically identical
// calls under the same workspace snapshot, which is what makes the result
// cache safe for read-class tools.
func Fingerprint(toolName string, args json.RawMessage, workspaceRoot string, paths []string) (string, error) {
	canonical, err := CanonicalizeArgs(args, workspaceRoot)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write([]byte(canonical))
	h.Write([]byte{0})
	h.Write([]byte(workspaceRoot))

	// Stat each resolved path so a changed target yields a new fingerprint.
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(p))
		if info, err := os.Stat(p); err == nil {
			fmt.Fprintf(h, "|%d|%d", info.ModTime().UnixNano(), info.Size())
		} else {
			h.Write([]byte("|absent"))
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CanonicalizeArgs rewrites an argument object into a deterministic form:
// object keys sorted recursively, numbers and whitespace normalized by
// re-encoding, and absolute path values under the workspace rewritten to
// workspace-relative form. fingerprint(args) == fingerprint(canonicalize(args)).
func CanonicalizeArgs(args json.RawMessage, workspaceRoot string) (string, error) {
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return "", fmt.Errorf("canonicalize arguments: %w", err)
	}

	var sb strings.Builder
	writeCanonical(&sb, normalizePaths(decoded, workspaceRoot))
	return sb.String(), nil
}

func normalizePaths(v any, root string) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = normalizePaths(sub, root)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = normalizePaths(sub, root)
		}
		return out
	case string:
		if root != "" && filepath.IsAbs(val) {
			if rel, err := filepath.Rel(root, val); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return filepath.ToSlash(rel)
			}
		}
		return val
	default:
		return v
	}
}

// writeCanonical emits JSON with sorted object keys. encoding/json already
// normalizes number formatting on re-encode.
func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			sb.Write(keyJSON)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, sub := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, sub)
		}
		sb.WriteByte(']')
	default:
		data, _ := json.Marshal(val)
		sb.Write(data)
	}
}
