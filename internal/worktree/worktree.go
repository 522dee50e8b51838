// Package worktree manages the per-agent git worktrees task agents run in,
// including orphan detection and cleanup after a crash.
package worktree

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ralphctl/ralph/internal/gitrunner"
)

// Worktree is one agent's isolated working copy.
type Worktree struct {
	Path       string
	BranchName string
	AgentID    string
	CreatedAt  time.Time
}

// ralphWorktreePatterns are the branch-name prefixes a worktree must carry
// to be considered ralph-managed (and thus eligible for orphan cleanup).
var ralphWorktreePatterns = []string{"agent-", "task-agent-"}

// Manager creates, removes, and recovers worktrees beneath
// <repo>/.ralph-worktrees/<team>/, per the spawn phase's worktree layout.
type Manager struct {
	baseDir  string
	repoPath string
	git      gitrunner.Runner
	mu       sync.Mutex
}

// New returns a manager rooted at <repoPath>/.ralph-worktrees/<team>.
func New(repoPath, team string) (*Manager, error) {
	return newWithRunner(repoPath, team, gitrunner.NewRunner(repoPath))
}

// NewWithRunner is New with an injectable git runner, for tests.
func NewWithRunner(repoPath, team string, runner gitrunner.Runner) (*Manager, error) {
	return newWithRunner(repoPath, team, runner)
}

func newWithRunner(repoPath, team string, runner gitrunner.Runner) (*Manager, error) {
	baseDir := filepath.Join(repoPath, ".ralph-worktrees", team)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("worktree: create base dir: %w", err)
	}
	return &Manager{baseDir: baseDir, repoPath: repoPath, git: runner}, nil
}

// BaseDir returns the directory worktrees are created under.
func (m *Manager) BaseDir() string { return m.baseDir }

// Create creates a fresh worktree and branch for agentID.
func (m *Manager) Create(agentID string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	branchName := "agent-" + agentID
	path := filepath.Join(m.baseDir, branchName)

	if err := m.git.WorktreeAddNewBranch(path, branchName); err != nil {
		return nil, fmt.Errorf("worktree: create for %s: %w", agentID, err)
	}

	return &Worktree{
		Path:       path,
		BranchName: branchName,
		AgentID:    agentID,
		CreatedAt:  time.Now(),
	}, nil
}

// Remove removes the worktree at path, forcing if requested (e.g. when the
// agent left uncommitted changes behind).
func (m *Manager) Remove(path string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreeRemoveOptionalForce(path, force); err != nil {
		return fmt.Errorf("worktree: remove %s: %w", path, err)
	}
	return nil
}

// List returns every worktree git currently tracks for the repository.
func (m *Manager) List() ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.git.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("worktree: list: %w", err)
	}
	return parsePorcelain(out)
}

func parsePorcelain(output string) ([]*Worktree, error) {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current != nil {
				worktrees = append(worktrees, current)
				current = nil
			}
		case strings.HasPrefix(line, "worktree "):
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && current != nil:
			ref := strings.TrimPrefix(line, "branch ")
			current.BranchName = strings.TrimPrefix(ref, "refs/heads/")
			current.AgentID = agentIDFromBranch(current.BranchName)
		}
	}
	if current != nil {
		worktrees = append(worktrees, current)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("worktree: parse list: %w", err)
	}
	return worktrees, nil
}

func isRalphWorktree(wt *Worktree) bool {
	for _, prefix := range ralphWorktreePatterns {
		if strings.HasPrefix(wt.BranchName, prefix) {
			return true
		}
	}
	return false
}

func agentIDFromBranch(branch string) string {
	for _, prefix := range ralphWorktreePatterns {
		if strings.HasPrefix(branch, prefix) {
			return strings.TrimPrefix(branch, prefix)
		}
	}
	return ""
}

// ListOrphans returns every ralph-managed worktree whose agent ID is not in
// activeAgentIDs and which is not the main repository checkout.
func (m *Manager) ListOrphans(activeAgentIDs []string) ([]*Worktree, error) {
	m.mu.Lock()
	out, err := m.git.WorktreeListPorcelain()
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("worktree: list: %w", err)
	}

	worktrees, err := parsePorcelain(out)
	if err != nil {
		return nil, err
	}

	active := make(map[string]bool, len(activeAgentIDs))
	for _, id := range activeAgentIDs {
		active[id] = true
	}

	var orphans []*Worktree
	for _, wt := range worktrees {
		if !isRalphWorktree(wt) || wt.Path == m.repoPath {
			continue
		}
		if wt.AgentID != "" && active[wt.AgentID] {
			continue
		}
		orphans = append(orphans, wt)
	}
	return orphans, nil
}

// CleanupOrphans removes every orphaned worktree, reporting each removed
// path to verbose if non-nil, and returns the count removed.
func (m *Manager) CleanupOrphans(activeAgentIDs []string, verbose func(path string)) (int, error) {
	orphans, err := m.ListOrphans(activeAgentIDs)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, wt := range orphans {
		_ = m.git.WorktreeUnlock(wt.Path)
		if err := m.git.WorktreeRemove(wt.Path); err != nil {
			if err := os.RemoveAll(wt.Path); err != nil {
				continue
			}
		}
		if verbose != nil {
			verbose(wt.Path)
		}
		removed++
	}
	_ = m.git.WorktreePruneExpireNow()
	return removed, nil
}

// StartupCleanup runs CleanupOrphans with no progress callback; called once
// at `ralph run` startup to recover from a crashed prior session.
func (m *Manager) StartupCleanup(activeAgentIDs []string) (int, error) {
	return m.CleanupOrphans(activeAgentIDs, nil)
}
