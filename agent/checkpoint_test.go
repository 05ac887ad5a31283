package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lowkaihon/vtcode/llm"
)

func TestCreateCheckpointRecordsMessageIndex(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, nil)

	a.CreateCheckpoint("first question")
	a.store.Append(llm.TextMessage("user", "first question"))
	a.store.Append(llm.TextMessage("assistant", "answer one"))
	a.CreateCheckpoint("second question")

	items := a.Checkpoints()
	if len(items) != 2 {
		t.Fatalf("checkpoints = %d", len(items))
	}
	if items[0].Turn != 1 || items[1].Turn != 2 {
		t.Errorf("turns = %+v", items)
	}
	if a.checkpoints[0].MsgIndex != 1 || a.checkpoints[1].MsgIndex != 3 {
		t.Errorf("msg indices = %d, %d", a.checkpoints[0].MsgIndex, a.checkpoints[1].MsgIndex)
	}
}

func TestRewindConversation(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, nil)

	a.CreateCheckpoint("q1")
	a.store.Append(llm.TextMessage("user", "q1"))
	a.store.Append(llm.TextMessage("assistant", "a1"))
	a.CreateCheckpoint("q2")
	a.store.Append(llm.TextMessage("user", "q2"))
	a.store.Append(llm.TextMessage("assistant", "a2"))

	a.RewindConversation(2)

	if a.MessageCount() != 3 { // system + q1 + a1
		t.Errorf("messages after rewind = %d", a.MessageCount())
	}
	if len(a.Checkpoints()) != 1 {
		t.Errorf("checkpoints after rewind = %d", len(a.Checkpoints()))
	}
}

func TestRewindCodeRestoresFiles(t *testing.T) {
	a, root := newTestAgent(t, &fakeProvider{}, nil)
	target := filepath.Join(root, "tracked.txt")

	if err := os.WriteFile(target, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	// Turn 1 modifies the file.
	a.CreateCheckpoint("modify the file")
	a.CaptureFileBeforeModification(target)
	if err := os.WriteFile(target, []byte("modified"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := a.RewindCode(1); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "original" {
		t.Errorf("content after rewind = %q", data)
	}
}

func TestRewindCodeRemovesCreatedFiles(t *testing.T) {
	a, root := newTestAgent(t, &fakeProvider{}, nil)
	created := filepath.Join(root, "new.txt")

	a.CreateCheckpoint("create a file")
	a.CaptureFileBeforeModification(created) // records non-existence
	if err := os.WriteFile(created, []byte("fresh"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := a.RewindCode(1); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(created); !os.IsNotExist(err) {
		t.Error("file created after the checkpoint must be removed")
	}
}

func TestRewindAllRestoresBoth(t *testing.T) {
	a, root := newTestAgent(t, &fakeProvider{}, nil)
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("v0"), 0644)

	a.CreateCheckpoint("turn one")
	a.store.Append(llm.TextMessage("user", "turn one"))
	a.CaptureFileBeforeModification(target)
	os.WriteFile(target, []byte("v1"), 0644)
	a.store.Append(llm.TextMessage("assistant", "changed it"))

	if err := a.RewindAll(1); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(target)
	if string(data) != "v0" {
		t.Errorf("file = %q", data)
	}
	if a.MessageCount() != 1 {
		t.Errorf("messages = %d", a.MessageCount())
	}
}

func TestSummarizeFromCheckpoint(t *testing.T) {
	provider := &fakeProvider{script: []scriptStep{{resp: textResp("what happened later")}}}
	a, _ := newTestAgent(t, provider, nil)

	a.CreateCheckpoint("early work")
	a.store.Append(llm.TextMessage("user", "early work"))
	a.store.Append(llm.TextMessage("assistant", "early answer"))
	a.CreateCheckpoint("later work")
	a.store.Append(llm.TextMessage("user", "later work"))
	a.store.Append(llm.TextMessage("assistant", "later answer"))

	if err := a.SummarizeFrom(context.Background(), 2, quietUI{}); err != nil {
		t.Fatal(err)
	}

	msgs := a.MessageHistory()
	last := msgs[len(msgs)-1]
	if last.Role != "user" || !strings.Contains(last.ContentString(), "what happened later") {
		t.Errorf("last message = %s %q", last.Role, last.ContentString())
	}
	// Earlier turn kept verbatim.
	if msgs[1].ContentString() != "early work" {
		t.Errorf("earlier history mutated: %q", msgs[1].ContentString())
	}
}

func TestInvalidRewindTurns(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, nil)
	if err := a.RewindCode(1); err == nil {
		t.Error("rewind with no checkpoints must fail")
	}
	a.RewindConversation(99) // out of range is a no-op
	if a.MessageCount() != 1 {
		t.Errorf("messages = %d", a.MessageCount())
	}
}

