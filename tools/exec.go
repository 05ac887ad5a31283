package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/lowkaihon/vtcode/cache"
	"github.com/lowkaihon/vtcode/policy"
)

type runTerminalCmdInput struct {
	Command []string `json:"command"`
	Timeout int      `json:"timeout"`
}

const (
	defaultCmdTimeout = 30
	maxCmdTimeout     = 120
	maxOutputChars    = 10000
	// killGracePeriod is how long a cancelled command gets between SIGTERM
	// and SIGKILL.
	killGracePeriod = 2 * time.Second
)

// runTerminalCmdTool executes an argv vector after the Execution Policy
// validates it. The argv is exec'd directly — never joined into a shell
// line — and cancellation delivers SIGTERM, then SIGKILL after the grace
// period.
func (r *Registry) runTerminalCmdTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[runTerminalCmdInput](input)
	if err != nil {
		return "", err
	}
	if len(params.Command) == 0 {
		return "", fmt.Errorf("command is required")
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultCmdTimeout
	}
	if timeout > maxCmdTimeout {
		timeout = maxCmdTimeout
	}

	spec := policy.CommandSpec{
		Argv:    params.Command,
		Cwd:     r.workDir(),
		Timeout: timeout,
	}
	if r.opts.Exec == nil {
		return "", &policy.Blocked{Kind: policy.NotAllowed, Reason: "no execution policy configured"}
	}
	if err := r.opts.Exec.Validate(spec); err != nil {
		return "", err
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Cancel = func() error {
		// Cooperative first: the hard kill comes from WaitDelay.
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()

	output := buf.String()
	truncated := false
	if len(output) > maxOutputChars {
		output = output[:maxOutputChars]
		truncated = true
	}

	var result string
	switch {
	case execCtx.Err() == context.DeadlineExceeded:
		result = fmt.Sprintf("Command timed out after %ds.\n%s", timeout, output)
	case ctx.Err() != nil:
		return "", ctx.Err()
	case runErr != nil:
		result = fmt.Sprintf("Exit code: %s\n%s", runErr, output)
	default:
		result = output
		if result == "" {
			result = "(no output)"
		}
	}

	if truncated {
		result += "\n[output truncated]"
	}

	return result, nil
}

func (r *Registry) runTerminalCmdPreview(input json.RawMessage) (string, error) {
	params, err := parseInput[runTerminalCmdInput](input)
	if err != nil {
		return "", err
	}
	return "run_terminal_cmd: " + strings.Join(params.Command, " "), nil
}

// execIsPure reports whether the command in an exec-class call is known not
// to mutate the workspace, so the result cache can survive it.
func execIsPure(input json.RawMessage) bool {
	var params runTerminalCmdInput
	if err := json.Unmarshal(input, &params); err != nil || len(params.Command) == 0 {
		return false
	}
	return cache.KnownPureCommands[params.Command[0]]
}
