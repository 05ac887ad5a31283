package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	root := t.TempDir()
	g, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	return g, g.Root()
}

func TestResolveRelativeInside(t *testing.T) {
	g, root := newGuard(t)
	if err := os.WriteFile(filepath.Join(root, "file.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, flagged, err := g.Resolve("file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if flagged {
		t.Error("existing file should not be flagged")
	}
	if got != filepath.Join(root, "file.txt") {
		t.Errorf("resolved = %q", got)
	}
}

func TestWorkspaceRootIsInside(t *testing.T) {
	g, root := newGuard(t)
	resolved, _, err := g.Resolve(".")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != root {
		t.Errorf("resolved root = %q, want %q", resolved, root)
	}
	if !g.Inside(root) {
		t.Error("the workspace root itself must be inside the workspace")
	}
}

func TestParentTraversalBlocked(t *testing.T) {
	g, _ := newGuard(t)
	_, _, err := g.Resolve("../../etc/passwd")
	var blocked *Blocked
	if !errors.As(err, &blocked) {
		t.Fatalf("expected Blocked, got %v", err)
	}
	if blocked.Kind != ParentTraversalOutsideWorkspace {
		t.Errorf("kind = %v", blocked.Kind)
	}
}

func TestAbsoluteOutsideBlocked(t *testing.T) {
	g, _ := newGuard(t)
	_, _, err := g.Resolve("/etc/passwd")
	var blocked *Blocked
	if !errors.As(err, &blocked) {
		t.Fatalf("expected Blocked, got %v", err)
	}
	if blocked.Kind != AbsoluteOutsideWorkspace {
		t.Errorf("kind = %v", blocked.Kind)
	}
}

func TestSymlinkIntoWorkspaceAllowed(t *testing.T) {
	g, root := newGuard(t)
	target := filepath.Join(root, "real.txt")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	resolved, _, err := g.Resolve("link.txt")
	if err != nil {
		t.Fatalf("symlink into the workspace must be allowed: %v", err)
	}
	if resolved != target {
		t.Errorf("resolved = %q, want %q", resolved, target)
	}
}

func TestSymlinkEscapeBlocked(t *testing.T) {
	g, root := newGuard(t)
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "escape.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, _, err := g.Resolve("escape.txt")
	var blocked *Blocked
	if !errors.As(err, &blocked) {
		t.Fatalf("symlink out of the workspace must be blocked, got %v", err)
	}
	if blocked.Kind != SymlinkEscape {
		t.Errorf("kind = %v", blocked.Kind)
	}
}

func TestNonexistentIntermediateFlagged(t *testing.T) {
	g, root := newGuard(t)
	resolved, flagged, err := g.Resolve("newdir/sub/file.txt")
	if err != nil {
		t.Fatalf("write-class targets may have missing intermediates: %v", err)
	}
	if !flagged {
		t.Error("missing intermediate must be flagged")
	}
	if resolved != filepath.Join(root, "newdir", "sub", "file.txt") {
		t.Errorf("resolved = %q", resolved)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	g, _ := newGuard(t)
	if _, _, err := g.Resolve(""); err == nil {
		t.Fatal("empty path must be rejected")
	}
}
