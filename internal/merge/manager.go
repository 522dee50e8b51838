// Package merge implements the merge manager: it drains the
// merge queue in dependency order (Kahn's algorithm over the completed
// sub-DAG), merges each task's branch onto the target branch per a
// configured strategy, detects file-overlap between tasks, and invokes the
// conflict resolver when a merge lands with conflicts.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/ralphctl/ralph/internal/filelock"
	"github.com/ralphctl/ralph/internal/gitrunner"
	"github.com/ralphctl/ralph/internal/taskstore"
	"github.com/ralphctl/ralph/pkg/models"
)

// Strategy selects how a task's branch is landed on the target branch.
type Strategy string

const (
	StrategyRebaseThenMerge Strategy = "rebase_then_merge"
	StrategyMergeDirect     Strategy = "merge_direct"
	StrategySequential      Strategy = "sequential"
)

// Resolver resolves merge conflicts left behind in workDir, given the
// conflicted paths and the task's description for intent. The
// merge package depends on this narrow interface rather than the concrete
// conflictresolver package to avoid a dependency cycle (the resolver itself
// runs inside a worktree the merge manager owns).
type Resolver interface {
	Resolve(ctx context.Context, workDir string, conflicts []string, taskDescription, mergeError string) error
}

// Config configures one team's merge manager.
type Config struct {
	// TargetBranch is the branch merges land on. Empty means whatever
	// branch was current when the manager started.
	TargetBranch string
	// Strategy selects the merge strategy.
	Strategy Strategy
	// MaxConcurrentMerges bounds merge concurrency in addition to the
	// process-wide merge lock. The design assumes a single merge lock;
	// values other than 0 or 1 are rejected by config validation before
	// reaching this package.
	MaxConcurrentMerges int
	// LockTimeout bounds how long ProcessNextMerge waits for merge.lock.
	LockTimeout time.Duration
}

// WorktreeLocator returns the worktree path and branch name a completed
// task's result was produced in, so the manager can merge the right branch.
type WorktreeLocator func(taskID string) (worktreePath, branch string, ok bool)

// Manager coordinates merging completed tasks' branches onto a target
// branch in dependency order.
type Manager struct {
	base string
	team string
	cfg  Config

	store     *taskstore.Store
	git       gitrunner.Runner
	resolver  Resolver
	locate    WorktreeLocator
	ownership *Ownership
	queue     *Queue

	conflictBudget   time.Duration
	onOverlapWarning func(FileConflictWarning)
}

// New returns a merge manager for team, rooted at base (layout:
// <base>/teams/<team>/merge.lock).
func New(base, team string, store *taskstore.Store, git gitrunner.Runner, resolver Resolver, locate WorktreeLocator, cfg Config) *Manager {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRebaseThenMerge
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	return &Manager{
		base:           base,
		team:           team,
		cfg:            cfg,
		store:          store,
		git:            git,
		resolver:       resolver,
		locate:         locate,
		ownership:      NewOwnership(),
		queue:          NewQueue(),
		conflictBudget: 15 * time.Minute,
	}
}

// SetOnOverlapWarning registers a callback invoked once per real-time
// ownership overlap a merge's Register call surfaces.
func (m *Manager) SetOnOverlapWarning(fn func(FileConflictWarning)) { m.onOverlapWarning = fn }

func (m *Manager) registerOwnership(t *models.Task) {
	if t.Result == nil {
		return
	}
	for _, w := range m.ownership.Register(t.ID, t.Result.FilesModified) {
		if m.onOverlapWarning != nil {
			m.onOverlapWarning(w)
		}
	}
}

func (m *Manager) lockPath() string {
	return fmt.Sprintf("%s/teams/%s/merge.lock", m.base, m.team)
}

// QueueForMerge enqueues taskID if it is completed and not already queued;
// calling it again for an already-queued or already-merged task is a no-op.
func (m *Manager) QueueForMerge(taskID string) error {
	t := m.store.GetByID(taskID)
	if t == nil || t.Status != models.TaskStatusCompleted {
		return nil
	}
	if t.MergeStatus == models.MergeStatusMerged || t.MergeStatus == models.MergeStatusMerging {
		return nil
	}
	m.queue.Enqueue(taskID)
	if t.MergeStatus == "" || t.MergeStatus == models.MergeStatusPending {
		return m.store.SetMergeStatus(taskID, models.MergeStatusQueued)
	}
	return nil
}

// IsReadyToMerge reports whether every dependency of taskID has already
// merged.
func (m *Manager) IsReadyToMerge(taskID string) bool {
	t := m.store.GetByID(taskID)
	if t == nil {
		return false
	}
	for _, dep := range t.DependsOn {
		d := m.store.GetByID(dep)
		if d == nil || d.MergeStatus != models.MergeStatusMerged {
			return false
		}
	}
	return true
}

// ProcessNextMerge picks the next queued task whose dependencies are all
// merged, in topological order, and merges it. Returns nil, nil if nothing
// is currently ready.
func (m *Manager) ProcessNextMerge(ctx context.Context) (*models.Task, error) {
	lock, err := filelock.TryAcquire(m.lockPath(), m.cfg.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("merge: acquire merge lock: %w", err)
	}
	if lock == nil {
		return nil, nil
	}
	defer lock.Release()

	queued := m.queue.Items()
	if len(queued) == 0 {
		return nil, nil
	}

	var candidates []*models.Task
	for _, id := range queued {
		t := m.store.GetByID(id)
		if t != nil {
			candidates = append(candidates, t)
		}
	}
	ordered := TopoOrder(candidates)

	var next *models.Task
	for _, t := range ordered {
		if m.IsReadyToMerge(t.ID) {
			next = t
			break
		}
	}
	if next == nil {
		return nil, nil
	}

	m.queue.Remove(next.ID)
	if err := m.mergeOne(ctx, next); err != nil {
		return next, err
	}
	return next, nil
}

// ProcessAllMerges drains every readily-mergeable task until none remain.
func (m *Manager) ProcessAllMerges(ctx context.Context) ([]*models.Task, error) {
	var merged []*models.Task
	for {
		t, err := m.ProcessNextMerge(ctx)
		if err != nil {
			return merged, err
		}
		if t == nil {
			return merged, nil
		}
		merged = append(merged, t)
	}
}

// mergeOne executes the merge algorithm for a single task. Caller holds
// merge.lock.
func (m *Manager) mergeOne(ctx context.Context, t *models.Task) error {
	if err := m.store.SetMergeStatus(t.ID, models.MergeStatusMerging); err != nil {
		return err
	}

	worktreePath, branch, ok := m.locate(t.ID)
	if !ok {
		return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
	}

	target := m.cfg.TargetBranch
	if target == "" {
		current, err := m.git.CurrentBranch()
		if err != nil {
			return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
		}
		target = current
	}

	if err := m.git.CheckoutBranch(target); err != nil {
		return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
	}

	mergeErr := m.executeStrategy(worktreePath, branch, target)
	if mergeErr == nil {
		m.registerOwnership(t)
		return m.store.SetMergeStatus(t.ID, models.MergeStatusMerged)
	}

	conflicts, _ := m.git.ConflictedFiles()
	if len(conflicts) == 0 {
		return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
	}

	if err := m.store.SetMergeStatus(t.ID, models.MergeStatusConflictDetected); err != nil {
		return err
	}

	if m.resolver == nil {
		_ = m.git.MergeAbort()
		return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
	}

	resolveCtx, cancel := context.WithTimeout(ctx, m.conflictBudget)
	defer cancel()

	if err := m.resolver.Resolve(resolveCtx, worktreePath, conflicts, t.Description, mergeErr.Error()); err != nil {
		_ = m.git.MergeAbort()
		return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
	}

	remaining, _ := m.git.ConflictedFiles()
	if len(remaining) > 0 {
		_ = m.git.MergeAbort()
		return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
	}

	if err := m.git.Add("."); err != nil {
		return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
	}
	if err := m.git.Commit(fmt.Sprintf("merge: resolve conflicts for %s", t.ID)); err != nil {
		return m.store.SetMergeStatus(t.ID, models.MergeStatusFailed)
	}

	m.registerOwnership(t)
	return m.store.SetMergeStatus(t.ID, models.MergeStatusMerged)
}

// executeStrategy runs the configured merge strategy and returns the merge
// error (if any) without treating it as fatal — conflicts are expected and
// handled by the caller.
func (m *Manager) executeStrategy(worktreePath, branch, target string) error {
	switch m.cfg.Strategy {
	case StrategyRebaseThenMerge:
		if err := m.git.Rebase(target); err != nil {
			_ = m.git.RebaseAbort()
			return m.git.MergeNoFF(branch)
		}
		return m.git.MergeNoFF(branch)
	case StrategyMergeDirect:
		return m.git.MergeNoFF(branch)
	case StrategySequential:
		if err := m.git.PullFFOnly(); err != nil {
			return err
		}
		return m.git.MergeNoFF(branch)
	default:
		return m.git.MergeNoFF(branch)
	}
}

// DetectFileOverlap runs overlap detection over tasks, exposed on the
// manager for convenience alongside ownership tracking.
func (m *Manager) DetectFileOverlap(tasks []*models.Task) []FileConflictWarning {
	return DetectFileOverlap(tasks)
}

// Ownership exposes the manager's file-ownership tracker for callers (e.g.
// the orchestrator) that want to surface overlap warnings as they occur.
func (m *Manager) Ownership() *Ownership { return m.ownership }

// Queue exposes the FIFO merge queue, primarily for status reporting.
func (m *Manager) Queue() *Queue { return m.queue }
