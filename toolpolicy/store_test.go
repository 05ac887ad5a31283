package toolpolicy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDecision(t *testing.T) {
	if DefaultDecision("read_file", true, false) != Allow {
		t.Error("read-class should default to Allow")
	}
	if DefaultDecision("write_file", false, false) != Prompt {
		t.Error("write-class should default to Prompt")
	}
	if DefaultDecision("format_disk", false, true) != Deny {
		t.Error("dangerous tools should default to Deny")
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "tool_policy"))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Decision("write_file", Prompt); got != Prompt {
		t.Errorf("decision = %v", got)
	}
}

func TestRecordAlwaysPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_policy")
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Record("write_file", Always); err != nil {
		t.Fatal(err)
	}
	if got := s.Decision("write_file", Prompt); got != Allow {
		t.Errorf("decision after Always = %v", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "write_file = allow") {
		t.Errorf("file contents = %q", data)
	}

	// A fresh load sees the persisted decision.
	s2, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Decision("write_file", Prompt); got != Allow {
		t.Errorf("reloaded decision = %v", got)
	}
}

func TestRecordSessionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_policy")
	s, _ := Load(path)

	if err := s.Record("edit_file", Session); err != nil {
		t.Fatal(err)
	}
	if got := s.Decision("edit_file", Prompt); got != Allow {
		t.Errorf("session decision = %v", got)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("session-scoped decision must not touch the policy file")
	}
}

func TestRecordOnceStoresNothing(t *testing.T) {
	s, _ := Load(filepath.Join(t.TempDir(), "tool_policy"))
	if err := s.Record("run_terminal_cmd", Once); err != nil {
		t.Fatal(err)
	}
	if got := s.Decision("run_terminal_cmd", Prompt); got != Prompt {
		t.Errorf("Once must not change future decisions, got %v", got)
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_policy")
	s, _ := Load(path)
	s.Record("write_file", Always)

	if err := s.Reset("write_file"); err != nil {
		t.Fatal(err)
	}
	if got := s.Decision("write_file", Prompt); got != Prompt {
		t.Errorf("decision after reset = %v", got)
	}
}

func TestOverrideSessionScoped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_policy")
	s, _ := Load(path)

	s.Override("run_terminal_cmd", Deny)
	if got := s.Decision("run_terminal_cmd", Prompt); got != Deny {
		t.Errorf("override = %v", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("override must not persist")
	}

	// A persisted user decision wins over the config override.
	s.Record("run_terminal_cmd", Always)
	if got := s.Decision("run_terminal_cmd", Prompt); got != Allow {
		t.Errorf("persisted decision should win, got %v", got)
	}
}

func TestLoadIgnoresMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_policy")
	content := "# comment\nwrite_file = allow\ngarbage line\nedit_file = bogus\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Decision("write_file", Prompt); got != Allow {
		t.Errorf("write_file = %v", got)
	}
	if got := s.Decision("edit_file", Prompt); got != Prompt {
		t.Errorf("malformed decision should be ignored, got %v", got)
	}
}
