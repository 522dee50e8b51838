package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindGitRoot(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, ".git"), 0o755); err != nil {
		t.Fatalf("create .git: %v", err)
	}
	nested := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("create nested dirs: %v", err)
	}

	root, err := findGitRoot(nested)
	if err != nil {
		t.Fatalf("findGitRoot: %v", err)
	}
	if root != tmpDir {
		t.Errorf("expected root %q, got %q", tmpDir, root)
	}
}

func TestFindGitRootNotARepo(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := findGitRoot(tmpDir); err == nil {
		t.Error("expected an error when no .git directory exists up to root")
	}
}
