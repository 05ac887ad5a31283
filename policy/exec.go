// Package policy implements the command execution policy: a compile-time
// allow-list of program names, each with a dedicated argument validator.
// Argv is built once by the caller and is never reconstructed from, or
// passed through, a shell.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lowkaihon/vtcode/workspace"
)

// Kind identifies why a CommandSpec was blocked.
type Kind int

const (
	_ Kind = iota
	NotAllowed
	UnknownFlag
	ExecutionEscape
	OutsideWorkspace
	ShellMetacharacter
)

func (k Kind) String() string {
	switch k {
	case NotAllowed:
		return "NotAllowed"
	case UnknownFlag:
		return "UnknownFlag"
	case ExecutionEscape:
		return "ExecutionEscape"
	case OutsideWorkspace:
		return "OutsideWorkspace"
	case ShellMetacharacter:
		return "ShellMetacharacter"
	default:
		return "Unknown"
	}
}

// Blocked is the terminal failure of the Execution Policy. Validators never
// execute on uncertainty: any ambiguity resolves to Blocked.
type Blocked struct {
	Kind   Kind
	Reason string
}

func (e *Blocked) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Reason) }

// CommandSpec is an argv vector plus execution context. argv[0] is the
// program name. It is never rebuilt from a shell string after validation;
// the validated Argv is exactly what gets exec'd.
type CommandSpec struct {
	Argv    []string
	Cwd     string
	Env     []string
	Timeout int // seconds
}

// shellMeta matches shell metacharacters that must never appear in an
// argument, regardless of program: command separators, logical operators,
// command substitution and backticks. Argv is exec'd directly (no shell),
// so these only matter as a defense against a model trying to smuggle a
// second command inside what looks like a single argument.
var shellMeta = regexp.MustCompile("[;&|`]|\\$\\(")

// validator is the per-program argument policy.
type validator struct {
	// allowedFlags enumerates every permitted flag (with or without a
	// "=value" suffix, compared on the flag name only). Empty means the
	// program takes no flags, only positional arguments.
	allowedFlags map[string]bool
	// deniedFlags is the execution-escape denylist: flags whose semantics
	// spawn subprocesses or execute arbitrary code, checked before
	// allowedFlags so an explicit deny always wins.
	deniedFlags map[string]bool
	// pathArgs, when true, routes every non-flag argument that looksLikePath
	// through the Workspace Guard. Programs whose positional arguments are
	// not paths set this false and instead list the path-bearing flags in
	// pathFlags; a subcommand name (git, go, npm) is handled by subcommand.
	pathArgs bool
	// pathFlags names flags whose value (next argv element, or the
	// "=value" suffix) is a path and must be routed through the Workspace
	// Guard.
	pathFlags map[string]bool
	// scriptEscape, when set, is applied to every positional argument to
	// catch in-argument execution escapes that aren't expressed as a flag
	// (e.g. sed's "e" command suffix).
	scriptEscape *regexp.Regexp
	// subcommand, when true, means the program's first positional argument
	// is a subcommand (git status, go build) and must itself pass the
	// allowedFlags/deniedFlags sets. Later positionals are ordinary
	// arguments.
	subcommand bool
}

// Policy is the Execution Policy: a fixed allow-list plus validators, gated
// on a Workspace Guard for path-argument confinement.
type Policy struct {
	guard      *workspace.Guard
	validators map[string]validator
}

var sedScriptEscape = regexp.MustCompile(`(^|[/;])\s*e\s*($|;)`)

// New builds the Execution Policy with its fixed, compile-time allow-list:
// a dozen read-class utilities and a curated set of dev-tool binaries.
// Extra programs can be appended via extraAllow (the [commands] allow_list
// config), each reusing the generic validator (shell-metacharacter
// rejection plus path-argument routing, no flag allow-list).
func New(guard *workspace.Guard, extraAllow []string) *Policy {
	p := &Policy{
		guard: guard,
		validators: map[string]validator{
			"ls":   {allowedFlags: set("-l", "-a", "-la", "-al", "-h", "-R", "-1"), pathArgs: true},
			"cat":  {allowedFlags: set("-n", "-A"), pathArgs: true},
			"head": {allowedFlags: set("-n", "-c"), pathArgs: true},
			"tail": {allowedFlags: set("-n", "-c", "-f"), deniedFlags: set("-f"), pathArgs: true},
			"wc":   {allowedFlags: set("-l", "-w", "-c", "-m"), pathArgs: true},
			"diff": {allowedFlags: set("-u", "-r", "-N", "--unified"), pathArgs: true},
			"find": {allowedFlags: set("-name", "-type", "-maxdepth", "-iname", "-path", "-mtime", "-size"),
				deniedFlags: set("-exec", "-execdir", "-ok", "-okdir", "-delete", "-fprintf"), pathArgs: true},
			"grep": {allowedFlags: set("-n", "-r", "-i", "-v", "-l", "-c", "-E", "-w", "-A", "-B", "-C", "--include", "--exclude"),
				deniedFlags: set("--pre", "--pre-glob", "-P"), pathArgs: true},
			"rg": {allowedFlags: set("-n", "-i", "-v", "-l", "-c", "-w", "-A", "-B", "-C", "--glob", "--type", "--hidden"),
				deniedFlags: set("--pre", "--pre-glob", "--search-zip"), pathArgs: true},
			"sed": {allowedFlags: set("-n", "-e", "-r", "-E", "-i"), pathArgs: true, scriptEscape: sedScriptEscape},
			"awk": {allowedFlags: set("-F", "-v"), pathArgs: true},
			"git": {allowedFlags: set("status", "diff", "log", "show", "branch", "add", "commit", "push", "pull",
				"fetch", "checkout", "stash", "remote", "rev-parse", "blame", "-C", "-m", "-p", "--stat", "--oneline"),
				deniedFlags: set("reset", "filter-branch", "update-ref", "hook", "config"), pathArgs: true, subcommand: true},
			"go": {allowedFlags: set("build", "test", "vet", "run", "fmt", "mod", "get", "list", "-v", "-o", "-run", "-race"),
				deniedFlags: set("generate"), pathArgs: true, subcommand: true},
			"npm":     {allowedFlags: set("install", "ci", "run", "test", "build", "--save", "--save-dev"), pathArgs: true, subcommand: true},
			"make":    {allowedFlags: set("-j", "-C", "-n"), pathArgs: true},
			"python3": {allowedFlags: set("-m", "-c"), deniedFlags: set("-c"), pathArgs: true},
			"pytest":  {allowedFlags: set("-v", "-x", "-k", "--maxfail"), pathArgs: true},
		},
	}
	for _, name := range extraAllow {
		if _, ok := p.validators[name]; !ok {
			p.validators[name] = validator{pathArgs: true}
		}
	}
	return p
}

func set(flags ...string) map[string]bool {
	m := make(map[string]bool, len(flags))
	for _, f := range flags {
		m[f] = true
	}
	return m
}

// Validate implements the C1 contract: given a CommandSpec, return the same
// spec (unmodified — argv is never rewritten) or a *Blocked error. It never
// runs the command itself.
func (p *Policy) Validate(spec CommandSpec) error {
	if len(spec.Argv) == 0 {
		return &Blocked{Kind: NotAllowed, Reason: "empty argv"}
	}
	program := spec.Argv[0]
	v, ok := p.validators[program]
	if !ok {
		return &Blocked{Kind: NotAllowed, Reason: fmt.Sprintf("%q is not on the allow-list", program)}
	}

	for _, arg := range spec.Argv {
		if shellMeta.MatchString(arg) {
			return &Blocked{Kind: ShellMetacharacter, Reason: fmt.Sprintf("argument %q contains a shell metacharacter", arg)}
		}
	}

	sawSubcommand := false
	for i := 1; i < len(spec.Argv); i++ {
		arg := spec.Argv[i]
		flag, isFlag := flagName(arg)

		if isFlag {
			if v.deniedFlags[flag] {
				return &Blocked{Kind: ExecutionEscape, Reason: fmt.Sprintf("flag %q is an execution escape for %q", flag, program)}
			}
			if len(v.allowedFlags) > 0 && !v.allowedFlags[flag] {
				return &Blocked{Kind: UnknownFlag, Reason: fmt.Sprintf("unknown flag %q for %q", flag, program)}
			}
			if v.pathFlags[flag] {
				val, consumed := flagValue(spec.Argv, i, arg)
				if val != "" {
					if err := p.checkPath(val); err != nil {
						return err
					}
				}
				i += consumed
			}
			continue
		}

		// Bareword subcommand names (git reset, go generate) live in the
		// same deny set as flags; they never reach the generic path checks.
		if v.deniedFlags[arg] {
			return &Blocked{Kind: NotAllowed, Reason: fmt.Sprintf("subcommand %q is denied for %q", arg, program)}
		}
		if v.subcommand && !sawSubcommand {
			sawSubcommand = true
			if len(v.allowedFlags) > 0 && !v.allowedFlags[arg] {
				return &Blocked{Kind: NotAllowed, Reason: fmt.Sprintf("subcommand %q is not allowed for %q", arg, program)}
			}
			continue
		}

		if v.scriptEscape != nil && v.scriptEscape.MatchString(arg) {
			return &Blocked{Kind: ExecutionEscape, Reason: fmt.Sprintf("argument %q contains an in-script execution suffix", arg)}
		}

		if v.pathArgs && looksLikePath(arg) {
			if err := p.checkPath(arg); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Policy) checkPath(arg string) error {
	if p.guard == nil {
		return nil
	}
	if _, _, err := p.guard.Resolve(arg); err != nil {
		return &Blocked{Kind: OutsideWorkspace, Reason: err.Error()}
	}
	return nil
}

func flagName(arg string) (name string, isFlag bool) {
	if !strings.HasPrefix(arg, "-") {
		return "", false
	}
	if eq := strings.IndexByte(arg, '='); eq != -1 {
		return arg[:eq], true
	}
	return arg, true
}

func flagValue(argv []string, i int, arg string) (value string, consumed int) {
	if eq := strings.IndexByte(arg, '='); eq != -1 {
		return arg[eq+1:], 0
	}
	if i+1 < len(argv) {
		return argv[i+1], 1
	}
	return "", 0
}

// looksLikePath is a conservative heuristic: arguments containing a path
// separator, starting with "~", or equal to "." or ".." are treated as
// paths and routed through the Workspace Guard. Pure
// words with no separators (e.g. a git subcommand already consumed above,
// or a search pattern) are left alone — the Workspace Guard only ever
// rejects; it never accepts something that wasn't a path to begin with,
// since Resolve is only called when this returns true.
func looksLikePath(arg string) bool {
	return strings.ContainsRune(arg, '/') || arg == "." || arg == ".." || strings.HasPrefix(arg, "~")
}
