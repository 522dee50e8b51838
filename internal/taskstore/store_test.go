package taskstore

import (
	"testing"
	"time"

	"github.com/ralphctl/ralph/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), "demo")
	s.lockTimeout = time.Second
	return s
}

func TestAddTasksAndGetAll(t *testing.T) {
	s := newTestStore(t)

	err := s.AddTasks([]*models.Task{
		{ID: "task-1", Title: "first", Status: models.TaskStatusPending, Priority: models.PriorityNormal, CreatedAt: time.Now()},
		{ID: "task-2", Title: "second", Status: models.TaskStatusPending, Priority: models.PriorityNormal, CreatedAt: time.Now().Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	all := s.GetAll()
	if len(all) != 2 {
		t.Fatalf("GetAll returned %d tasks, want 2", len(all))
	}
}

func TestClaimableRespectsDependencies(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	must(t, s.AddTasks([]*models.Task{
		{ID: "task-1", Status: models.TaskStatusPending, Priority: models.PriorityNormal, CreatedAt: now},
		{ID: "task-2", Status: models.TaskStatusPending, Priority: models.PriorityNormal, DependsOn: []string{"task-1"}, CreatedAt: now.Add(time.Second)},
	}))

	claimable := s.GetClaimable()
	if len(claimable) != 1 || claimable[0].ID != "task-1" {
		t.Fatalf("GetClaimable() = %+v, want only task-1", claimable)
	}
}

func TestTryClaimOrdersByPriorityThenAge(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	must(t, s.AddTasks([]*models.Task{
		{ID: "low-old", Status: models.TaskStatusPending, Priority: models.PriorityLow, CreatedAt: now},
		{ID: "high-new", Status: models.TaskStatusPending, Priority: models.PriorityHigh, CreatedAt: now.Add(time.Second)},
	}))

	claimed, err := s.TryClaim("agent-1")
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	if claimed == nil || claimed.ID != "high-new" {
		t.Fatalf("TryClaim() = %+v, want high-new claimed first", claimed)
	}
	if claimed.Status != models.TaskStatusInProgress {
		t.Errorf("claimed task status = %q, want in_progress", claimed.Status)
	}
	if claimed.ClaimedByAgentID != "agent-1" {
		t.Errorf("claimed task agent = %q, want agent-1", claimed.ClaimedByAgentID)
	}
}

func TestTryClaimReturnsNilWhenNothingClaimable(t *testing.T) {
	s := newTestStore(t)
	claimed, err := s.TryClaim("agent-1")
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("TryClaim() = %+v, want nil", claimed)
	}
}

func TestCompleteUnblocksDependents(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	must(t, s.AddTasks([]*models.Task{
		{ID: "task-1", Status: models.TaskStatusInProgress, ClaimedByAgentID: "agent-1", ClaimedAt: &now, Priority: models.PriorityNormal, CreatedAt: now},
		{ID: "task-2", Status: models.TaskStatusPending, Priority: models.PriorityNormal, DependsOn: []string{"task-1"}, CreatedAt: now.Add(time.Second)},
	}))

	events := s.Events()
	// AddTasks queued one TaskAdded event per task; consume them first.
	drainEvents(t, events, 2)

	if err := s.Complete("task-1", &models.TaskResult{Success: true, Summary: "done"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got := drainEvents(t, events, 2)
	if got[0].Type != EventTaskCompleted || got[0].TaskID != "task-1" {
		t.Errorf("first event = %+v, want TaskCompleted task-1", got[0])
	}
	if got[1].Type != EventTaskUnblocked || got[1].TaskID != "task-2" {
		t.Errorf("second event = %+v, want TaskUnblocked task-2", got[1])
	}

	task1 := s.GetByID("task-1")
	if task1.Status != models.TaskStatusCompleted {
		t.Errorf("task-1 status = %q, want completed", task1.Status)
	}
	if task1.Result == nil || !task1.Result.Success {
		t.Errorf("task-1 result = %+v, want success", task1.Result)
	}
}

func TestFailRetriesThenFails(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	must(t, s.AddTasks([]*models.Task{
		{ID: "task-1", Status: models.TaskStatusInProgress, MaxRetries: 2, Priority: models.PriorityNormal, CreatedAt: now},
	}))

	if err := s.Fail("task-1", "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	t1 := s.GetByID("task-1")
	if t1.Status != models.TaskStatusPending {
		t.Fatalf("after first failure status = %q, want pending (retry available)", t1.Status)
	}

	must(t, markInProgress(s, "task-1"))
	if err := s.Fail("task-1", "boom again"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	t1 = s.GetByID("task-1")
	if t1.Status != models.TaskStatusFailed {
		t.Fatalf("after retries exhausted status = %q, want failed", t1.Status)
	}
}

func TestRetryResetsFailedTask(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	must(t, s.AddTasks([]*models.Task{
		{ID: "task-1", Status: models.TaskStatusFailed, Error: "boom", RetryCount: 3, MaxRetries: 3, Priority: models.PriorityNormal, CreatedAt: now},
		{ID: "task-2", Status: models.TaskStatusCompleted, Priority: models.PriorityNormal, CreatedAt: now},
	}))

	must(t, s.Retry("task-1"))
	t1 := s.GetByID("task-1")
	if t1.Status != models.TaskStatusPending {
		t.Fatalf("retried task status = %q, want pending", t1.Status)
	}
	if t1.RetryCount != 0 || t1.Error != "" {
		t.Errorf("retried task should have retry budget and error reset, got retries=%d error=%q", t1.RetryCount, t1.Error)
	}

	// A task that is not failed is left untouched.
	must(t, s.Retry("task-2"))
	if got := s.GetByID("task-2").Status; got != models.TaskStatusCompleted {
		t.Errorf("Retry on a completed task changed status to %q", got)
	}
}

func TestLoadResetsInProgressOnCrashRecovery(t *testing.T) {
	base := t.TempDir()
	s1 := New(base, "demo")
	s1.lockTimeout = time.Second
	now := time.Now()
	must(t, s1.AddTasks([]*models.Task{
		{ID: "task-1", Status: models.TaskStatusInProgress, ClaimedByAgentID: "agent-1", ClaimedAt: &now, Priority: models.PriorityNormal, CreatedAt: now},
	}))

	s2 := New(base, "demo")
	s2.lockTimeout = time.Second
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	t1 := s2.GetByID("task-1")
	if t1.Status != models.TaskStatusPending {
		t.Errorf("recovered task status = %q, want pending", t1.Status)
	}
	if t1.ClaimedByAgentID != "" {
		t.Errorf("recovered task should have its claim cleared, got %q", t1.ClaimedByAgentID)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func markInProgress(s *Store, taskID string) error {
	_, err := s.TryClaimTask(taskID, "agent-1")
	return err
}

func drainEvents(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case e := <-events:
			out = append(out, e)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}
	return out
}
