package policy

import (
	"errors"
	"testing"

	"github.com/lowkaihon/vtcode/workspace"
)

func newPolicy(t *testing.T) *Policy {
	t.Helper()
	g, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(g, nil)
}

func blockedKind(t *testing.T, err error) Kind {
	t.Helper()
	var b *Blocked
	if !errors.As(err, &b) {
		t.Fatalf("expected *Blocked, got %v", err)
	}
	return b.Kind
}

func TestAllowListedCommandPasses(t *testing.T) {
	p := newPolicy(t)
	if err := p.Validate(CommandSpec{Argv: []string{"ls", "-la"}}); err != nil {
		t.Fatalf("ls -la should pass: %v", err)
	}
	if err := p.Validate(CommandSpec{Argv: []string{"grep", "-n", "pattern"}}); err != nil {
		t.Fatalf("grep -n should pass: %v", err)
	}
}

func TestUnknownProgramBlocked(t *testing.T) {
	p := newPolicy(t)
	err := p.Validate(CommandSpec{Argv: []string{"curl", "http://example.com"}})
	if blockedKind(t, err) != NotAllowed {
		t.Errorf("kind = %v", blockedKind(t, err))
	}
}

func TestEmptyArgvBlocked(t *testing.T) {
	p := newPolicy(t)
	err := p.Validate(CommandSpec{})
	if blockedKind(t, err) != NotAllowed {
		t.Errorf("kind = %v", blockedKind(t, err))
	}
}

func TestUnknownFlagBlocked(t *testing.T) {
	p := newPolicy(t)
	err := p.Validate(CommandSpec{Argv: []string{"grep", "--color=always", "x"}})
	if blockedKind(t, err) != UnknownFlag {
		t.Errorf("kind = %v", blockedKind(t, err))
	}
}

func TestExecutionEscapeFlagsBlocked(t *testing.T) {
	p := newPolicy(t)
	cases := [][]string{
		{"grep", "--pre", "sh", "x"},
		{"rg", "--pre", "sh", "x"},
		{"find", ".", "-exec", "rm", "{}", ";"},
	}
	for _, argv := range cases {
		err := p.Validate(CommandSpec{Argv: argv})
		if err == nil {
			t.Errorf("%v should be blocked", argv)
			continue
		}
		kind := blockedKind(t, err)
		if kind != ExecutionEscape && kind != ShellMetacharacter {
			t.Errorf("%v kind = %v", argv, kind)
		}
	}
}

func TestDeniedSubcommandsBlocked(t *testing.T) {
	p := newPolicy(t)
	cases := [][]string{
		{"git", "reset", "HEAD~3"},
		{"git", "filter-branch", "--all"},
		{"git", "config", "core.hooksPath"},
		{"go", "generate", "./..."},
	}
	for _, argv := range cases {
		err := p.Validate(CommandSpec{Argv: argv})
		if err == nil {
			t.Errorf("%v should be blocked", argv)
			continue
		}
		if blockedKind(t, err) != NotAllowed {
			t.Errorf("%v kind = %v", argv, blockedKind(t, err))
		}
	}
}

func TestSubcommandAllowListEnforced(t *testing.T) {
	p := newPolicy(t)

	if err := p.Validate(CommandSpec{Argv: []string{"git", "status"}}); err != nil {
		t.Fatalf("git status should pass: %v", err)
	}
	if err := p.Validate(CommandSpec{Argv: []string{"git", "log", "--oneline"}}); err != nil {
		t.Fatalf("git log --oneline should pass: %v", err)
	}
	if err := p.Validate(CommandSpec{Argv: []string{"go", "test", "-run", "TestFoo"}}); err != nil {
		t.Fatalf("go test should pass: %v", err)
	}

	// An unlisted subcommand is blocked even though it isn't on the deny
	// list — unknown resolves to deny.
	err := p.Validate(CommandSpec{Argv: []string{"git", "rebase", "main"}})
	if blockedKind(t, err) != NotAllowed {
		t.Errorf("git rebase kind = %v", blockedKind(t, err))
	}

	// Positionals after the subcommand are ordinary arguments: "HEAD" is
	// not treated as a subcommand.
	if err := p.Validate(CommandSpec{Argv: []string{"git", "show", "HEAD"}}); err != nil {
		t.Fatalf("git show HEAD should pass: %v", err)
	}
}

func TestSedInScriptExecutionSuffixBlocked(t *testing.T) {
	p := newPolicy(t)
	err := p.Validate(CommandSpec{Argv: []string{"sed", "s/a/b/e"}})
	if blockedKind(t, err) != ExecutionEscape {
		t.Errorf("kind = %v", blockedKind(t, err))
	}
}

func TestShellMetacharactersBlocked(t *testing.T) {
	p := newPolicy(t)
	cases := []string{"a;b", "a&&b", "a||b", "`whoami`", "$(whoami)"}
	for _, arg := range cases {
		err := p.Validate(CommandSpec{Argv: []string{"cat", arg}})
		if err == nil {
			t.Errorf("%q should be blocked", arg)
			continue
		}
		if blockedKind(t, err) != ShellMetacharacter {
			t.Errorf("%q kind = %v", arg, blockedKind(t, err))
		}
	}
}

func TestPathArgumentOutsideWorkspaceBlocked(t *testing.T) {
	p := newPolicy(t)
	err := p.Validate(CommandSpec{Argv: []string{"cat", "/etc/passwd"}})
	if blockedKind(t, err) != OutsideWorkspace {
		t.Errorf("kind = %v", blockedKind(t, err))
	}

	err = p.Validate(CommandSpec{Argv: []string{"cat", "../../outside.txt"}})
	if blockedKind(t, err) != OutsideWorkspace {
		t.Errorf("kind = %v", blockedKind(t, err))
	}
}

func TestExtraAllowListGetsGenericValidator(t *testing.T) {
	g, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p := New(g, []string{"jq"})

	if err := p.Validate(CommandSpec{Argv: []string{"jq", ".field"}}); err != nil {
		t.Fatalf("extra allow-listed program should pass: %v", err)
	}
	// Shell metacharacters still blocked for extras.
	if err := p.Validate(CommandSpec{Argv: []string{"jq", ".a; rm -rf /"}}); err == nil {
		t.Fatal("metacharacters must be blocked for extra programs too")
	}
}

func TestValidateNeverMutatesArgv(t *testing.T) {
	p := newPolicy(t)
	argv := []string{"grep", "-n", "pattern", "."}
	spec := CommandSpec{Argv: argv}
	if err := p.Validate(spec); err != nil {
		t.Fatal(err)
	}
	want := []string{"grep", "-n", "pattern", "."}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("argv mutated: %v", argv)
		}
	}
}
