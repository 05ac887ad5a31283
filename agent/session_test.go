package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// sessionTestHome redirects HOME so session files land in a temp dir.
func sessionTestHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestSaveAndResumeSession(t *testing.T) {
	sessionTestHome(t)
	a, _ := newTestAgent(t, &fakeProvider{script: []scriptStep{{resp: textResp("hello back")}}}, nil)

	if err := a.Run(context.Background(), "remember this question", quietUI{}); err != nil {
		t.Fatal(err)
	}
	if err := a.SaveSession(); err != nil {
		t.Fatal(err)
	}

	sessions, err := ListSessions(a.workDir, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d", len(sessions))
	}
	if !strings.HasPrefix(sessions[0].Preview, "remember this question") {
		t.Errorf("preview = %q", sessions[0].Preview)
	}
	if sessions[0].MsgCount != 2 {
		t.Errorf("msg count = %d (system prompt must be excluded)", sessions[0].MsgCount)
	}

	// Resume into a fresh agent sharing the same workDir.
	b := New(Options{
		Provider:      &fakeProvider{},
		Registry:      a.tools,
		WorkDir:       a.workDir,
		ContextWindow: 100000,
	})
	if err := b.ResumeSession(sessions[0].ID); err != nil {
		t.Fatal(err)
	}

	if b.MessageCount() != 3 { // fresh system prompt + 2 saved
		t.Errorf("resumed messages = %d", b.MessageCount())
	}
	if b.MessageHistory()[0].Role != "system" {
		t.Error("resume must rebuild a fresh system prompt first")
	}
	if b.MessageHistory()[1].ContentString() != "remember this question" {
		t.Errorf("resumed user message = %q", b.MessageHistory()[1].ContentString())
	}
	if b.SessionID() != sessions[0].ID {
		t.Errorf("session id = %q", b.SessionID())
	}
}

func TestSaveSkipsEmptySession(t *testing.T) {
	sessionTestHome(t)
	a, _ := newTestAgent(t, &fakeProvider{}, nil)

	if err := a.SaveSession(); err != nil {
		t.Fatal(err)
	}
	sessions, err := ListSessions(a.workDir, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("empty session was saved: %d", len(sessions))
	}
}

func TestListSessionsOrderedByRecency(t *testing.T) {
	sessionTestHome(t)
	a, _ := newTestAgent(t, &fakeProvider{script: []scriptStep{
		{resp: textResp("one")}, {resp: textResp("two")},
	}}, nil)

	if err := a.Run(context.Background(), "first", quietUI{}); err != nil {
		t.Fatal(err)
	}
	if err := a.SaveSession(); err != nil {
		t.Fatal(err)
	}

	// A second session in the same workspace.
	b, _ := newTestAgent(t, &fakeProvider{script: []scriptStep{{resp: textResp("x")}}}, nil)
	b.workDir = a.workDir
	if err := b.Run(context.Background(), "second", quietUI{}); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveSession(); err != nil {
		t.Fatal(err)
	}

	sessions, err := ListSessions(a.workDir, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d", len(sessions))
	}
	if sessions[0].UpdatedAt.Before(sessions[1].UpdatedAt) {
		t.Error("sessions must be sorted most-recent first")
	}
}

func TestSessionTasksRoundTrip(t *testing.T) {
	sessionTestHome(t)
	a, _ := newTestAgent(t, &fakeProvider{script: []scriptStep{{resp: textResp("ok")}}}, nil)
	a.tasks = []Task{{ID: 1, Content: "ship it", Status: "in_progress"}}

	if err := a.Run(context.Background(), "work", quietUI{}); err != nil {
		t.Fatal(err)
	}
	if err := a.SaveSession(); err != nil {
		t.Fatal(err)
	}

	b := New(Options{Provider: &fakeProvider{}, Registry: a.tools, WorkDir: a.workDir, ContextWindow: 100000})
	if err := b.ResumeSession(a.sessionID); err != nil {
		t.Fatal(err)
	}
	if len(b.Tasks()) != 1 || b.Tasks()[0].Content != "ship it" {
		t.Errorf("tasks = %+v", b.Tasks())
	}
}

func TestSessionFileIsValidJSON(t *testing.T) {
	sessionTestHome(t)
	a, _ := newTestAgent(t, &fakeProvider{script: []scriptStep{{resp: textResp("resp")}}}, nil)

	if err := a.Run(context.Background(), "q", quietUI{}); err != nil {
		t.Fatal(err)
	}
	if err := a.SaveSession(); err != nil {
		t.Fatal(err)
	}

	dir, err := GlobalSessionsDir(a.workDir)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("no session file: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	// Round-trips through the message content codec.
	var sf SessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		t.Fatal(err)
	}
	if len(sf.Messages) != 2 {
		t.Errorf("messages = %d", len(sf.Messages))
	}
	if sf.Messages[0].ContentString() != "q" {
		t.Errorf("user message = %q", sf.Messages[0].ContentString())
	}
}
