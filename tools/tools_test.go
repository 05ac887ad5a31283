package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lowkaihon/vtcode/cache"
	"github.com/lowkaihon/vtcode/llm"
	"github.com/lowkaihon/vtcode/policy"
	"github.com/lowkaihon/vtcode/toolpolicy"
	"github.com/lowkaihon/vtcode/workspace"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	guard, err := workspace.New(root)
	if err != nil {
		t.Fatal(err)
	}
	policies, err := toolpolicy.Load(filepath.Join(t.TempDir(), "tool_policy"))
	if err != nil {
		t.Fatal(err)
	}
	r := NewRegistry(Options{
		Guard:    guard,
		Exec:     policy.New(guard, nil),
		Policies: policies,
		Prompt: func(toolName, detail string) toolpolicy.Scope {
			return toolpolicy.Once // auto-approve prompts in tests
		},
		Cache: cache.New(64, 0),
	})
	return r, guard.Root()
}

func execTool(t *testing.T, r *Registry, name, args string) *ToolResult {
	t.Helper()
	return r.Execute(context.Background(), name, json.RawMessage(args))
}

func mustOK(t *testing.T, res *ToolResult) *ToolResult {
	t.Helper()
	if !res.OK() {
		t.Fatalf("status=%s: %s", res.Meta.Status, res.LLMContent)
	}
	return res
}

func TestUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := execTool(t, r, "teleport", `{}`)
	if res.Meta.Status != StatusUnknownTool {
		t.Errorf("status = %s", res.Meta.Status)
	}
}

func TestSchemaValidation(t *testing.T) {
	r, _ := newTestRegistry(t)

	// Missing required property.
	res := execTool(t, r, "read_file", `{}`)
	if res.Meta.Status != StatusInvalidArguments {
		t.Errorf("missing path: status = %s", res.Meta.Status)
	}

	// Wrong type.
	res = execTool(t, r, "read_file", `{"path": 42}`)
	if res.Meta.Status != StatusInvalidArguments {
		t.Errorf("numeric path: status = %s", res.Meta.Status)
	}

	// Zero-length argument JSON is an error.
	res = r.Execute(context.Background(), "read_file", nil)
	if res.Meta.Status != StatusInvalidArguments {
		t.Errorf("empty args: status = %s", res.Meta.Status)
	}
}

func TestPathOutsideWorkspace(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := execTool(t, r, "read_file", `{"path": "/etc/passwd"}`)
	if res.Meta.Status != StatusOutsideWorkspace {
		t.Errorf("status = %s", res.Meta.Status)
	}
	res = execTool(t, r, "read_file", `{"path": "../../../etc/passwd"}`)
	if res.Meta.Status != StatusOutsideWorkspace {
		t.Errorf("traversal status = %s", res.Meta.Status)
	}
}

func TestWriteEditReadRoundTrip(t *testing.T) {
	r, root := newTestRegistry(t)

	mustOK(t, execTool(t, r, "write_file", `{"path": "main.go", "content": "package main\n\nfunc main() {}\n"}`))

	data, err := os.ReadFile(filepath.Join(root, "main.go"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "package main\n\nfunc main() {}\n" {
		t.Fatalf("written content = %q", data)
	}

	mustOK(t, execTool(t, r, "edit_file", `{"path": "main.go", "old_str": "func main() {}", "new_str": "func main() { println(1) }"}`))

	// Reading the file back yields exactly the patched content.
	res := mustOK(t, execTool(t, r, "read_file", `{"path": "main.go"}`))
	if !strings.Contains(res.LLMContent, "println(1)") {
		t.Errorf("read after edit = %q", res.LLMContent)
	}

	data, _ = os.ReadFile(filepath.Join(root, "main.go"))
	if string(data) != "package main\n\nfunc main() { println(1) }\n" {
		t.Errorf("patched content = %q", data)
	}
}

func TestEditRequiresUniqueMatch(t *testing.T) {
	r, root := newTestRegistry(t)
	os.WriteFile(filepath.Join(root, "dup.txt"), []byte("x\nx\n"), 0644)

	res := execTool(t, r, "edit_file", `{"path": "dup.txt", "old_str": "x", "new_str": "y"}`)
	if res.Meta.Status != StatusExecFailed {
		t.Errorf("ambiguous edit status = %s", res.Meta.Status)
	}
	if !strings.Contains(res.LLMContent, "matches 2 times") {
		t.Errorf("message = %q", res.LLMContent)
	}
}

func TestApplyPatchAtomic(t *testing.T) {
	r, root := newTestRegistry(t)
	original := "alpha\nbeta\ngamma\n"
	os.WriteFile(filepath.Join(root, "f.txt"), []byte(original), 0644)

	// Second edit fails to match, so nothing may be written.
	res := execTool(t, r, "apply_patch", `{"path": "f.txt", "edits": [
		{"old_str": "alpha", "new_str": "ALPHA"},
		{"old_str": "missing", "new_str": "x"}
	]}`)
	if res.Meta.Status == StatusOK {
		t.Fatal("patch with a failing edit must not succeed")
	}
	data, _ := os.ReadFile(filepath.Join(root, "f.txt"))
	if string(data) != original {
		t.Errorf("file mutated by failed patch: %q", data)
	}

	mustOK(t, execTool(t, r, "apply_patch", `{"path": "f.txt", "edits": [
		{"old_str": "alpha", "new_str": "ALPHA"},
		{"old_str": "gamma", "new_str": "GAMMA"}
	]}`))
	data, _ = os.ReadFile(filepath.Join(root, "f.txt"))
	if string(data) != "ALPHA\nbeta\nGAMMA\n" {
		t.Errorf("patched = %q", data)
	}
}

func TestReadCacheHitAndWriteInvalidation(t *testing.T) {
	r, root := newTestRegistry(t)
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1\n"), 0644)

	first := mustOK(t, execTool(t, r, "read_file", `{"path": "a.txt"}`))
	if first.Meta.FromCache {
		t.Fatal("first read cannot be cached")
	}

	second := mustOK(t, execTool(t, r, "read_file", `{"path": "a.txt"}`))
	if !second.Meta.FromCache {
		t.Fatal("identical read should hit the cache")
	}

	// Cache safety: a write to the path invalidates every cached read of it.
	mustOK(t, execTool(t, r, "write_file", `{"path": "a.txt", "content": "v2\n"}`))

	third := mustOK(t, execTool(t, r, "read_file", `{"path": "a.txt"}`))
	if third.Meta.FromCache {
		t.Fatal("read after write returned a stale cached result")
	}
	if !strings.Contains(third.LLMContent, "v2") {
		t.Errorf("read after write = %q", third.LLMContent)
	}
}

func TestExecClassInvalidatesCacheUnlessPure(t *testing.T) {
	r, root := newTestRegistry(t)
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1\n"), 0644)

	mustOK(t, execTool(t, r, "read_file", `{"path": "a.txt"}`))
	if res := mustOK(t, execTool(t, r, "read_file", `{"path": "a.txt"}`)); !res.Meta.FromCache {
		t.Fatal("expected warm cache")
	}

	// A known-pure command leaves the cache alone.
	mustOK(t, execTool(t, r, "run_terminal_cmd", `{"command": ["ls"]}`))
	if res := mustOK(t, execTool(t, r, "read_file", `{"path": "a.txt"}`)); !res.Meta.FromCache {
		t.Fatal("known-pure command must not flush the cache")
	}

	// A non-pure command flushes everything.
	mustOK(t, execTool(t, r, "run_terminal_cmd", `{"command": ["git", "status"]}`))
	if res := mustOK(t, execTool(t, r, "read_file", `{"path": "a.txt"}`)); res.Meta.FromCache {
		t.Fatal("non-pure command must flush the cache")
	}
}

func TestPolicyDeniedTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.opts.Policies.Override("write_file", toolpolicy.Deny)

	res := execTool(t, r, "write_file", `{"path": "x.txt", "content": "data"}`)
	if res.Meta.Status != StatusPolicyDenied {
		t.Errorf("status = %s", res.Meta.Status)
	}
}

func TestHookOverrideBypassesPrompt(t *testing.T) {
	r, root := newTestRegistry(t)
	r.opts.Prompt = nil // without a prompt, write-class would be denied

	res := r.ExecuteWithOverride(context.Background(), "write_file",
		json.RawMessage(`{"path": "x.txt", "content": "data"}`), toolpolicy.Allow)
	mustOK(t, res)
	if _, err := os.Stat(filepath.Join(root, "x.txt")); err != nil {
		t.Fatal("file not written despite allow override")
	}

	res = r.Execute(context.Background(), "write_file", json.RawMessage(`{"path": "y.txt", "content": "data"}`))
	if res.Meta.Status != StatusPolicyDenied {
		t.Errorf("promptless write should be denied, got %s", res.Meta.Status)
	}
}

func TestRunTerminalCmdBlockedFlag(t *testing.T) {
	r, _ := newTestRegistry(t)

	res := execTool(t, r, "run_terminal_cmd", `{"command": ["grep", "--pre", "sh", "x"]}`)
	if res.Meta.Status != StatusBlocked {
		t.Errorf("status = %s", res.Meta.Status)
	}
	if !strings.Contains(res.LLMContent, "--pre") {
		t.Errorf("message = %q", res.LLMContent)
	}

	res = execTool(t, r, "run_terminal_cmd", `{"command": ["nmap", "localhost"]}`)
	if res.Meta.Status != StatusBlocked {
		t.Errorf("unlisted program status = %s", res.Meta.Status)
	}
}

func TestRunTerminalCmdExecutes(t *testing.T) {
	r, root := newTestRegistry(t)
	os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0644)

	res := mustOK(t, execTool(t, r, "run_terminal_cmd", `{"command": ["ls"]}`))
	if !strings.Contains(res.LLMContent, "hello.txt") {
		t.Errorf("ls output = %q", res.LLMContent)
	}
}

func TestTruncationBound(t *testing.T) {
	root := t.TempDir()
	guard, _ := workspace.New(root)
	policies, _ := toolpolicy.Load(filepath.Join(t.TempDir(), "p"))
	r := NewRegistry(Options{
		Guard:          guard,
		Policies:       policies,
		Cache:          cache.New(4, 0),
		ResponseBudget: 200,
	})

	var sb strings.Builder
	for i := 0; i < 400; i++ {
		sb.WriteString("some long line of file content that repeats for a while\n")
	}
	os.WriteFile(filepath.Join(guard.Root(), "big.txt"), []byte(sb.String()), 0644)

	res := mustOK(t, r.Execute(context.Background(), "read_file", json.RawMessage(`{"path": "big.txt"}`)))
	if !res.Meta.Summarized {
		t.Fatal("oversized output must be truncated")
	}
	if res.Meta.TokensLLM > 200 {
		t.Errorf("llm_content estimates %d tokens, budget 200", res.Meta.TokensLLM)
	}
	if !strings.Contains(res.LLMContent, "lines omitted") {
		t.Error("truncation marker missing")
	}
	if len(res.UIContent) <= len(res.LLMContent) {
		t.Error("ui channel should keep the full output")
	}
}

func TestGrepFindsMatches(t *testing.T) {
	r, root := newTestRegistry(t)
	os.MkdirAll(filepath.Join(root, "src"), 0755)
	os.WriteFile(filepath.Join(root, "src", "config.go"), []byte("package src\n\nfunc parseConfig() {}\n"), 0644)

	res := mustOK(t, execTool(t, r, "grep", `{"pattern": "func parseConfig", "path": "src"}`))
	if !strings.Contains(res.LLMContent, "src/config.go:3") {
		t.Errorf("grep output = %q", res.LLMContent)
	}
}

func TestFindFilesGlob(t *testing.T) {
	r, root := newTestRegistry(t)
	os.MkdirAll(filepath.Join(root, "a", "b"), 0755)
	os.WriteFile(filepath.Join(root, "a", "b", "x.go"), []byte("package b"), 0644)
	os.WriteFile(filepath.Join(root, "top.go"), []byte("package top"), 0644)
	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("text"), 0644)

	res := mustOK(t, execTool(t, r, "find_files", `{"pattern": "**/*.go"}`))
	if !strings.Contains(res.LLMContent, "a/b/x.go") || !strings.Contains(res.LLMContent, "top.go") {
		t.Errorf("find_files = %q", res.LLMContent)
	}
	if strings.Contains(res.LLMContent, "notes.txt") {
		t.Errorf("glob matched non-go file: %q", res.LLMContent)
	}
}

func TestTreeTool(t *testing.T) {
	r, root := newTestRegistry(t)
	os.MkdirAll(filepath.Join(root, "pkg", "sub"), 0755)
	os.WriteFile(filepath.Join(root, "pkg", "sub", "f.go"), []byte("x"), 0644)

	res := mustOK(t, execTool(t, r, "tree", `{}`))
	if !strings.Contains(res.LLMContent, "pkg/") || !strings.Contains(res.LLMContent, "f.go") {
		t.Errorf("tree = %q", res.LLMContent)
	}
}

func TestSearchToolsPromotesDeferred(t *testing.T) {
	r, _ := newTestRegistry(t)
	// Defer a tool manually, then find it through the meta-tool.
	idx := r.byName["tree"]
	r.tools[idx].deferred = true

	res := mustOK(t, execTool(t, r, "search_tools", `{"query": "directory tree"}`))
	if !strings.Contains(res.LLMContent, "tree") {
		t.Errorf("search_tools = %q", res.LLMContent)
	}
	if r.tools[idx].deferred {
		t.Error("matched tool should be promoted")
	}

	found := false
	for _, def := range r.Definitions() {
		if def.Name == "tree" && !def.Deferred {
			found = true
		}
	}
	if !found {
		t.Error("promoted tool should appear non-deferred in definitions")
	}
}

func TestLoadSkill(t *testing.T) {
	r, root := newTestRegistry(t)
	skillDir := filepath.Join(root, SkillsDir)
	os.MkdirAll(skillDir, 0755)
	os.WriteFile(filepath.Join(skillDir, "deploy.md"), []byte("# Deploy\nsteps here"), 0644)

	res := mustOK(t, execTool(t, r, "load_skill", `{"name": "deploy"}`))
	if !strings.Contains(res.LLMContent, "steps here") {
		t.Errorf("skill = %q", res.LLMContent)
	}

	if res := execTool(t, r, "load_skill", `{"name": "missing"}`); res.Meta.Status == StatusOK {
		t.Error("missing skill should fail")
	}
	if res := execTool(t, r, "load_skill", `{"name": "../evil"}`); res.Meta.Status == StatusOK {
		t.Error("path separators in skill names must be rejected")
	}
}

func TestExecuteBatchPreservesOrder(t *testing.T) {
	r, root := newTestRegistry(t)
	os.WriteFile(filepath.Join(root, "one.txt"), []byte("first\n"), 0644)
	os.WriteFile(filepath.Join(root, "two.txt"), []byte("second\n"), 0644)
	os.WriteFile(filepath.Join(root, "three.txt"), []byte("third\n"), 0644)

	calls := []struct{ id, path string }{
		{"c1", "one.txt"}, {"c2", "two.txt"}, {"c3", "three.txt"},
	}
	var batch []llm.ToolCall
	for _, c := range calls {
		batch = append(batch, llm.ToolCall{ID: c.id, Name: "read_file", Arguments: `{"path": "` + c.path + `"}`})
	}
	results := r.ExecuteBatch(context.Background(), batch)

	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for i, c := range calls {
		if results[i].ID != c.id {
			t.Errorf("result %d id = %s, want %s", i, results[i].ID, c.id)
		}
		if !results[i].Result.OK() {
			t.Errorf("result %d status = %s", i, results[i].Result.Meta.Status)
		}
	}
	if !strings.Contains(results[0].Result.LLMContent, "first") {
		t.Errorf("result order broken: %q", results[0].Result.LLMContent)
	}
}

func TestConflictPlannerRule(t *testing.T) {
	if Conflicts(ClassRead, []string{"/ws/a"}, ClassRead, []string{"/ws/a"}) {
		t.Error("two reads never conflict")
	}
	if !Conflicts(ClassWrite, []string{"/ws/dir/file"}, ClassRead, []string{"/ws/dir"}) {
		t.Error("write under a read prefix must conflict")
	}
	if Conflicts(ClassWrite, []string{"/ws/a"}, ClassRead, []string{"/ws/b"}) {
		t.Error("disjoint paths must not conflict")
	}
}

func TestFingerprintCanonicalization(t *testing.T) {
	root := t.TempDir()

	// Key order and whitespace do not change the fingerprint.
	a, err := Fingerprint("grep", json.RawMessage(`{"pattern":"x","path":"src"}`), root, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fingerprint("grep", json.RawMessage(`{ "path" : "src" , "pattern" : "x" }`), root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("fingerprint must be order/whitespace independent")
	}

	// fingerprint(args) == fingerprint(canonicalize(args))
	canon, err := CanonicalizeArgs(json.RawMessage(`{"pattern":"x","path":"src"}`), root)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Fingerprint("grep", json.RawMessage(canon), root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != c {
		t.Error("fingerprint of canonical form must match")
	}

	// Absolute paths inside the workspace canonicalize to relative form.
	abs, _ := CanonicalizeArgs(json.RawMessage(`{"path":"`+filepath.Join(root, "src")+`"}`), root)
	rel, _ := CanonicalizeArgs(json.RawMessage(`{"path":"src"}`), root)
	if abs != rel {
		t.Errorf("path canonicalization: %q != %q", abs, rel)
	}

	// Different tools never share fingerprints.
	d, _ := Fingerprint("read_file", json.RawMessage(`{"pattern":"x","path":"src"}`), root, nil)
	if a == d {
		t.Error("tool name must be part of the fingerprint")
	}
}

func TestFingerprintChangesWithFileState(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("v1"), 0644)

	a, _ := Fingerprint("read_file", json.RawMessage(`{"path":"f.txt"}`), root, []string{target})
	os.WriteFile(target, []byte("v2 with different size"), 0644)
	b, _ := Fingerprint("read_file", json.RawMessage(`{"path":"f.txt"}`), root, []string{target})
	if a == b {
		t.Error("fingerprint must change when the target file changes")
	}
}
