package worktree

import (
	"fmt"
	"strings"
	"testing"
)

// fakeGit is a minimal in-memory stand-in for gitrunner.Runner, recording
// calls instead of shelling out, so these tests exercise parsing and orphan
// logic without a real git binary.
type fakeGit struct {
	worktrees      []string // "path|branch" pairs
	removed        []string
	unlocked       []string
	pruned         bool
	addErr         error
	removeErr      error
}

func (f *fakeGit) CurrentBranch() (string, error)                       { return "main", nil }
func (f *fakeGit) CreateAndCheckoutBranch(name string) error            { return nil }
func (f *fakeGit) CheckoutBranch(name string) error                     { return nil }
func (f *fakeGit) BranchExists(name string) (bool, error)                { return false, nil }
func (f *fakeGit) DeleteBranch(name string) error                        { return nil }
func (f *fakeGit) HeadSHA() (string, error)                              { return "deadbeef", nil }
func (f *fakeGit) Status() (string, error)                               { return "", nil }
func (f *fakeGit) HasChanges() (bool, error)                             { return false, nil }
func (f *fakeGit) ChangedFiles(base string) ([]string, error)            { return nil, nil }
func (f *fakeGit) ChangedFilesRelative(b, r string) ([]string, error)    { return nil, nil }
func (f *fakeGit) ConflictedFiles() ([]string, error)                    { return nil, nil }
func (f *fakeGit) Add(paths ...string) error                             { return nil }
func (f *fakeGit) Commit(message string) error                           { return nil }
func (f *fakeGit) MergeNoFF(branch string) error                         { return nil }
func (f *fakeGit) MergeAbort() error                                     { return nil }
func (f *fakeGit) HasConflicts() (bool, error)                           { return false, nil }
func (f *fakeGit) Rebase(base string) error                              { return nil }
func (f *fakeGit) RebaseAbort() error                                    { return nil }
func (f *fakeGit) PullFFOnly() error                                     { return nil }
func (f *fakeGit) CheckoutOurs(path string) error                        { return nil }
func (f *fakeGit) CheckoutTheirs(path string) error                      { return nil }
func (f *fakeGit) Run(args ...string) (string, error)                    { return "", nil }

func (f *fakeGit) WorktreeAddNewBranch(path, branch string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.worktrees = append(f.worktrees, path+"|"+branch)
	return nil
}

func (f *fakeGit) WorktreeRemove(path string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, path)
	f.removeWorktree(path)
	return nil
}

func (f *fakeGit) WorktreeRemoveOptionalForce(path string, force bool) error {
	return f.WorktreeRemove(path)
}

func (f *fakeGit) WorktreeUnlock(path string) error {
	f.unlocked = append(f.unlocked, path)
	return nil
}

func (f *fakeGit) WorktreeListPorcelain() (string, error) {
	var b strings.Builder
	for _, wt := range f.worktrees {
		parts := strings.SplitN(wt, "|", 2)
		fmt.Fprintf(&b, "worktree %s\n", parts[0])
		fmt.Fprintf(&b, "branch refs/heads/%s\n\n", parts[1])
	}
	return b.String(), nil
}

func (f *fakeGit) WorktreePrune() error { f.pruned = true; return nil }

func (f *fakeGit) WorktreePruneExpireNow() error { f.pruned = true; return nil }

func (f *fakeGit) removeWorktree(path string) {
	out := f.worktrees[:0]
	for _, wt := range f.worktrees {
		if !strings.HasPrefix(wt, path+"|") {
			out = append(out, wt)
		}
	}
	f.worktrees = out
}

func TestCreateAndList(t *testing.T) {
	fg := &fakeGit{}
	mgr, err := NewWithRunner(t.TempDir(), "demo", fg)
	if err != nil {
		t.Fatalf("NewWithRunner: %v", err)
	}

	wt, err := mgr.Create("agent-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if wt.BranchName != "agent-agent-1" {
		t.Errorf("BranchName = %q, want agent-agent-1", wt.BranchName)
	}

	listed, err := mgr.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("List() returned %d worktrees, want 1", len(listed))
	}
}

func TestListOrphansExcludesActiveAndMainRepo(t *testing.T) {
	fg := &fakeGit{
		worktrees: []string{
			"/repo|main",
			"/repo/.ralph-worktrees/demo/agent-1|agent-1",
			"/repo/.ralph-worktrees/demo/agent-2|agent-2",
		},
	}
	mgr, err := NewWithRunner("/repo", "demo", fg)
	if err != nil {
		t.Fatalf("NewWithRunner: %v", err)
	}

	orphans, err := mgr.ListOrphans([]string{"1"})
	if err != nil {
		t.Fatalf("ListOrphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].AgentID != "2" {
		t.Fatalf("ListOrphans() = %+v, want only agent-2's worktree", orphans)
	}
}

func TestCleanupOrphansRemovesAndReports(t *testing.T) {
	fg := &fakeGit{
		worktrees: []string{
			"/repo|main",
			"/repo/.ralph-worktrees/demo/agent-stale|agent-stale",
		},
	}
	mgr, err := NewWithRunner("/repo", "demo", fg)
	if err != nil {
		t.Fatalf("NewWithRunner: %v", err)
	}

	var reported []string
	removed, err := mgr.CleanupOrphans(nil, func(path string) { reported = append(reported, path) })
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if removed != 1 {
		t.Fatalf("CleanupOrphans() removed = %d, want 1", removed)
	}
	if len(reported) != 1 {
		t.Fatalf("verbose callback called %d times, want 1", len(reported))
	}
	if !fg.pruned {
		t.Error("expected WorktreePruneExpireNow to be called after cleanup")
	}
}
