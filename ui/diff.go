package ui

import (
	"fmt"
	"strings"
)

// PrintDiff prints a colorized unified diff.
func (t *Terminal) PrintDiff(path, oldContent, newContent string) {
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")

	t.println(t.c(Bold, fmt.Sprintf("--- %s", path)))
	t.println(t.c(Bold, fmt.Sprintf("+++ %s", path)))

	// Simple line-by-line diff — find changed region. Tool edits are
	// localized, so head/tail trimming is enough.
	start := 0
	for start < len(oldLines) && start < len(newLines) && oldLines[start] == newLines[start] {
		start++
	}

	endOld := len(oldLines) - 1
	endNew := len(newLines) - 1
	for endOld > start && endNew > start && oldLines[endOld] == newLines[endNew] {
		endOld--
		endNew--
	}

	contextLines := 3
	from := start - contextLines
	if from < 0 {
		from = 0
	}

	t.println(t.c(Cyan, fmt.Sprintf("@@ -%d,%d +%d,%d @@", from+1, endOld-from+1, from+1, endNew-from+1)))

	for i := from; i < start; i++ {
		t.println(t.c(Gray, " "+oldLines[i]))
	}

	for i := start; i <= endOld && i < len(oldLines); i++ {
		t.println(t.c(Red, "-"+oldLines[i]))
	}

	for i := start; i <= endNew && i < len(newLines); i++ {
		t.println(t.c(Green, "+"+newLines[i]))
	}

	to := endOld + contextLines + 1
	if to > len(oldLines) {
		to = len(oldLines)
	}
	for i := endOld + 1; i < to; i++ {
		t.println(t.c(Gray, " "+oldLines[i]))
	}
}

// PrintFilePreview prints a preview of file contents for the write tool.
func (t *Terminal) PrintFilePreview(path, content string) {
	t.println(t.c(Bold+Green, fmt.Sprintf("New file: %s", path)))
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		t.println(t.c(Gray, fmt.Sprintf("  %3d │ ", i+1)) + t.c(Green, line))
	}
}

// ConfirmAction asks the user for y/n confirmation.
func (t *Terminal) ConfirmAction(prompt string) bool {
	t.write(t.c(Bold+Yellow, prompt+" [y/n] "))
	var response string
	fmt.Scanln(&response)
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// PromptToolDecision shows a tool's pending action and asks for the policy
// scope: allow once, allow for session, allow always, or deny. Returns one
// of "once", "session", "always", "deny".
func (t *Terminal) PromptToolDecision(toolName, detail string) string {
	t.println("")
	t.println(t.c(Bold+Yellow, fmt.Sprintf("Tool %q wants to run:", toolName)))
	for _, line := range strings.Split(detail, "\n") {
		t.println(t.c(Gray, "  "+truncate(line, 160)))
	}
	t.println("")
	t.printf("  %s allow once  %s allow for session  %s allow always  %s deny\n",
		t.c(Cyan, "[1]"), t.c(Cyan, "[2]"), t.c(Cyan, "[3]"), t.c(Cyan, "[4]"))
	t.write(t.c(Bold+Yellow, "Choice [1]: "))

	var response string
	fmt.Scanln(&response)
	switch strings.TrimSpace(response) {
	case "", "1", "y", "yes":
		return "once"
	case "2":
		return "session"
	case "3":
		return "always"
	default:
		return "deny"
	}
}
