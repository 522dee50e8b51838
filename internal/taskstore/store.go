// Package taskstore implements the dependency-aware, file-locked, crash-safe
// shared work queue every task agent and the lead orchestrator claim from.
package taskstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ralphctl/ralph/internal/filelock"
	"github.com/ralphctl/ralph/pkg/models"
)

// DefaultStaleClaimTimeout is how long an in_progress claim may sit
// untouched before release_stale_claims reclaims it.
const DefaultStaleClaimTimeout = 15 * time.Minute

// DefaultLockTimeout bounds how long a mutating operation waits for
// claims.lock before giving up.
const DefaultLockTimeout = 5 * time.Second

// Store is the JSON-file-backed task queue for one team.
type Store struct {
	*emitter

	tasksPath string
	lockPath  string

	staleClaimTimeout time.Duration
	lockTimeout       time.Duration

	mu    sync.Mutex
	tasks map[string]*models.Task
}

// New returns a store rooted at <base>/teams/<team>/tasks/.
func New(base, team string) *Store {
	dir := filepath.Join(base, "teams", team, "tasks")
	return &Store{
		emitter:           newEmitter(64),
		tasksPath:         filepath.Join(dir, "tasks.json"),
		lockPath:          filepath.Join(dir, "claims.lock"),
		staleClaimTimeout: DefaultStaleClaimTimeout,
		lockTimeout:       DefaultLockTimeout,
		tasks:             make(map[string]*models.Task),
	}
}

// SetStaleClaimTimeout overrides DefaultStaleClaimTimeout.
func (s *Store) SetStaleClaimTimeout(d time.Duration) { s.staleClaimTimeout = d }

// Load reads tasks.json from disk, resetting any in_progress claim to
// pending (the claiming agent is presumed dead) per the store's crash-safety
// contract, and persists the corrected state back.
func (s *Store) Load() error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: load: %w", err)
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return err
	}

	changed := false
	for _, t := range tasks {
		if t.Status == models.TaskStatusInProgress {
			t.Status = models.TaskStatusPending
			t.ClaimedByAgentID = ""
			t.ClaimedAt = nil
			changed = true
		}
	}

	s.mu.Lock()
	s.tasks = byID(tasks)
	s.mu.Unlock()

	if changed {
		return s.persistLocked(tasks)
	}
	return nil
}

// readLocked loads tasks.json from disk; a missing file is an empty store.
// Caller must hold claims.lock.
func (s *Store) readLocked() ([]*models.Task, error) {
	data, err := os.ReadFile(s.tasksPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: read %s: %w", s.tasksPath, err)
	}
	var tasks []*models.Task
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("taskstore: parse %s: %w", s.tasksPath, err)
	}
	return tasks, nil
}

// persistLocked writes tasks to disk atomically. Serialization failures are
// logged by the caller's error return, not fatal to the in-memory store.
func (s *Store) persistLocked(tasks []*models.Task) error {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("taskstore: marshal: %w", err)
	}
	if err := filelock.AtomicWrite(s.tasksPath, data); err != nil {
		return fmt.Errorf("taskstore: persist: %w", err)
	}
	return nil
}

func byID(tasks []*models.Task) map[string]*models.Task {
	m := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}

// snapshot returns the current in-memory task list, sorted by CreatedAt, as
// deep-enough copies safe for the caller to read without racing mutations.
func (s *Store) snapshot() []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AddTasks merges ts into the store by ID, persists, and emits TaskAdded
// for each task that is genuinely new.
func (s *Store) AddTasks(ts []*models.Task) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: add_tasks: %w", err)
	}
	defer lock.Release()

	current, err := s.readLocked()
	if err != nil {
		return err
	}
	byIDCurrent := byID(current)

	var added []string
	for _, t := range ts {
		if _, exists := byIDCurrent[t.ID]; !exists {
			current = append(current, t)
			byIDCurrent[t.ID] = t
			added = append(added, t.ID)
		} else {
			byIDCurrent[t.ID] = t
		}
	}

	if err := s.persistLocked(current); err != nil {
		// In-memory update still visible even if the disk write failed.
		s.mu.Lock()
		s.tasks = byIDCurrent
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.tasks = byIDCurrent
	s.mu.Unlock()

	now := time.Now()
	for _, id := range added {
		s.Emit(Event{Type: EventTaskAdded, TaskID: id, Timestamp: now})
	}
	return nil
}

// GetAll returns every task, oldest first.
func (s *Store) GetAll() []*models.Task { return s.snapshot() }

// GetByID returns the task with id, or nil if unknown.
func (s *Store) GetByID(id string) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// GetClaimable returns pending tasks whose dependencies are all completed,
// ordered by (priority asc, created_at asc).
func (s *Store) GetClaimable() []*models.Task {
	s.mu.Lock()
	all := s.tasks
	claimable := make([]*models.Task, 0)
	for _, t := range all {
		if t.Claimable(all) {
			claimable = append(claimable, t.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(claimable, func(i, j int) bool {
		if claimable[i].Priority != claimable[j].Priority {
			return claimable[i].Priority.Less(claimable[j].Priority)
		}
		return claimable[i].CreatedAt.Before(claimable[j].CreatedAt)
	})
	return claimable
}

// GetInProgress returns every in_progress task.
func (s *Store) GetInProgress() []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Task, 0)
	for _, t := range s.tasks {
		if t.Status == models.TaskStatusInProgress {
			out = append(out, t.Clone())
		}
	}
	return out
}

// TryClaim runs the claim algorithm: release stale claims, compute the
// claimable set, claim the head of it for agentID. Returns nil if there is
// nothing claimable or the lock is contended beyond timeout.
func (s *Store) TryClaim(agentID string) (*models.Task, error) {
	lock, err := filelock.TryAcquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("taskstore: try_claim: %w", err)
	}
	if lock == nil {
		return nil, nil
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	all := byID(tasks)
	releaseStale(all, s.staleClaimTimeout)

	var claimable []*models.Task
	for _, t := range tasks {
		if t.Claimable(all) {
			claimable = append(claimable, t)
		}
	}
	if len(claimable) == 0 {
		if err := s.persistLocked(tasks); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.tasks = all
		s.mu.Unlock()
		return nil, nil
	}

	sort.Slice(claimable, func(i, j int) bool {
		if claimable[i].Priority != claimable[j].Priority {
			return claimable[i].Priority.Less(claimable[j].Priority)
		}
		return claimable[i].CreatedAt.Before(claimable[j].CreatedAt)
	})

	head := claimable[0]
	now := time.Now()
	head.Status = models.TaskStatusInProgress
	head.ClaimedByAgentID = agentID
	head.ClaimedAt = &now

	if err := s.persistLocked(tasks); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()

	s.Emit(Event{Type: EventTaskClaimed, TaskID: head.ID, AgentID: agentID, Timestamp: now})
	return head.Clone(), nil
}

// TryClaimTask claims a specific task for agentID if it is claimable.
func (s *Store) TryClaimTask(taskID, agentID string) (bool, error) {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return false, fmt.Errorf("taskstore: try_claim_task: %w", err)
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return false, err
	}
	all := byID(tasks)

	t, ok := all[taskID]
	if !ok || !t.Claimable(all) {
		return false, nil
	}

	now := time.Now()
	t.Status = models.TaskStatusInProgress
	t.ClaimedByAgentID = agentID
	t.ClaimedAt = &now

	if err := s.persistLocked(tasks); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()

	s.Emit(Event{Type: EventTaskClaimed, TaskID: taskID, AgentID: agentID, Timestamp: now})
	return true, nil
}

// releaseStale resets claims older than timeout back to pending.
func releaseStale(all map[string]*models.Task, timeout time.Duration) {
	now := time.Now()
	for _, t := range all {
		if t.Status == models.TaskStatusInProgress && t.ClaimedAt != nil && now.Sub(*t.ClaimedAt) > timeout {
			t.Status = models.TaskStatusPending
			t.ClaimedByAgentID = ""
			t.ClaimedAt = nil
		}
	}
}

// ReleaseStaleClaims resets every in_progress claim older than the
// configured stale-claim timeout to pending.
func (s *Store) ReleaseStaleClaims() error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: release_stale_claims: %w", err)
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return err
	}
	all := byID(tasks)
	releaseStale(all, s.staleClaimTimeout)

	if err := s.persistLocked(tasks); err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()
	return nil
}

// Complete marks taskID completed with result, then recomputes claimability
// for every pending task that depends on it, emitting TaskUnblocked for each
// one newly eligible.
func (s *Store) Complete(taskID string, result *models.TaskResult) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: complete: %w", err)
	}

	tasks, err := s.readLocked()
	if err != nil {
		lock.Release()
		return err
	}
	all := byID(tasks)

	t, ok := all[taskID]
	if !ok {
		lock.Release()
		return nil // silent no-op on unknown id, per contract
	}

	now := time.Now()
	t.Status = models.TaskStatusCompleted
	t.Result = result
	t.CompletedAt = &now

	if err := s.persistLocked(tasks); err != nil {
		lock.Release()
		return err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()
	lock.Release()

	s.Emit(Event{Type: EventTaskCompleted, TaskID: taskID, Timestamp: now})

	for _, dep := range tasks {
		if dep.Status != models.TaskStatusPending {
			continue
		}
		dependsOnThis := false
		for _, d := range dep.DependsOn {
			if d == taskID {
				dependsOnThis = true
				break
			}
		}
		if dependsOnThis && dep.Claimable(all) {
			s.Emit(Event{Type: EventTaskUnblocked, TaskID: dep.ID, Timestamp: now})
		}
	}
	return nil
}

// Fail increments retry_count; if it remains under max_retries the task
// goes back to pending for another attempt, otherwise it moves to failed.
func (s *Store) Fail(taskID, errMsg string) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: fail: %w", err)
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return err
	}
	all := byID(tasks)

	t, ok := all[taskID]
	if !ok {
		return nil
	}

	t.Error = errMsg
	t.RetryCount++
	t.ClaimedByAgentID = ""
	t.ClaimedAt = nil
	if t.RetryCount < t.MaxRetries {
		t.Status = models.TaskStatusPending
	} else {
		t.Status = models.TaskStatusFailed
	}

	if err := s.persistLocked(tasks); err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()

	s.Emit(Event{Type: EventTaskFailed, TaskID: taskID, Timestamp: time.Now()})
	return nil
}

// Retry puts a failed task back in the queue with a fresh retry budget.
// Used when the lead dispositions a failed task as retry_task; a task that
// is not failed is left untouched.
func (s *Store) Retry(taskID string) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: retry: %w", err)
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return err
	}
	all := byID(tasks)

	t, ok := all[taskID]
	if !ok || t.Status != models.TaskStatusFailed {
		return nil
	}

	t.Status = models.TaskStatusPending
	t.RetryCount = 0
	t.Error = ""
	t.ClaimedByAgentID = ""
	t.ClaimedAt = nil

	if err := s.persistLocked(tasks); err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()
	return nil
}

// SetMergeStatus updates a task's merge status in place. Used by the merge
// manager as it queues, merges, and lands (or fails to land) a task's
// branch onto the target branch.
func (s *Store) SetMergeStatus(taskID string, status models.MergeStatus) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: set_merge_status: %w", err)
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return err
	}
	all := byID(tasks)

	t, ok := all[taskID]
	if !ok {
		return nil
	}
	t.MergeStatus = status

	if err := s.persistLocked(tasks); err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()
	return nil
}

// Cancel forces taskID to failed immediately, bypassing retry, regardless
// of its current status. Used by the orchestrator's cancel_task mutation
// ("dynamic mutation during coordination").
func (s *Store) Cancel(taskID, reason string) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: cancel: %w", err)
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return err
	}
	all := byID(tasks)

	t, ok := all[taskID]
	if !ok {
		return nil
	}

	t.Status = models.TaskStatusFailed
	t.Error = reason
	t.ClaimedByAgentID = ""
	t.ClaimedAt = nil

	if err := s.persistLocked(tasks); err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()

	s.Emit(Event{Type: EventTaskFailed, TaskID: taskID, Timestamp: time.Now()})
	return nil
}

// Reassign moves or releases a task's claim. Passing an empty newAgentID
// releases the claim back to pending.
func (s *Store) Reassign(taskID, newAgentID string) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("taskstore: reassign: %w", err)
	}
	defer lock.Release()

	tasks, err := s.readLocked()
	if err != nil {
		return err
	}
	all := byID(tasks)

	t, ok := all[taskID]
	if !ok {
		return nil
	}

	if newAgentID == "" {
		t.Status = models.TaskStatusPending
		t.ClaimedByAgentID = ""
		t.ClaimedAt = nil
	} else {
		now := time.Now()
		t.Status = models.TaskStatusInProgress
		t.ClaimedByAgentID = newAgentID
		t.ClaimedAt = &now
	}

	if err := s.persistLocked(tasks); err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()
	return nil
}

// Delete removes the store's persistence directory (tasks.json and
// claims.lock) entirely, clearing the in-memory task map along with it.
// Used by the orchestrator's merge & cleanup phase once a team's run is
// fully wrapped up.
func (s *Store) Delete() error {
	s.mu.Lock()
	s.tasks = make(map[string]*models.Task)
	s.mu.Unlock()

	dir := filepath.Dir(s.tasksPath)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("taskstore: delete: %w", err)
	}
	return nil
}
