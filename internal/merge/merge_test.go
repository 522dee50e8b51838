package merge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ralphctl/ralph/internal/gitrunner"
	"github.com/ralphctl/ralph/internal/taskstore"
	"github.com/ralphctl/ralph/pkg/models"
)

type fakeGit struct {
	gitrunner.Runner
	conflicts    []string
	mergeErr     error
	rebaseErr    error
	currentBranch string
}

func (f *fakeGit) CurrentBranch() (string, error)             { return f.currentBranch, nil }
func (f *fakeGit) CheckoutBranch(name string) error            { return nil }
func (f *fakeGit) Rebase(base string) error                    { return f.rebaseErr }
func (f *fakeGit) RebaseAbort() error                           { return nil }
func (f *fakeGit) MergeNoFF(branch string) error                { return f.mergeErr }
func (f *fakeGit) MergeAbort() error                             { return nil }
func (f *fakeGit) ConflictedFiles() ([]string, error)            { return f.conflicts, nil }
func (f *fakeGit) Add(paths ...string) error                     { return nil }
func (f *fakeGit) Commit(message string) error                   { return nil }
func (f *fakeGit) PullFFOnly() error                              { return nil }

func newTestStore(t *testing.T) (*taskstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s := taskstore.New(dir, "team1")
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, dir
}

func TestQueueForMergeIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	now := time.Now()
	task := &models.Task{ID: "t1", Status: models.TaskStatusCompleted, CreatedAt: now, Priority: models.PriorityNormal}
	if err := s.AddTasks([]*models.Task{task}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	m := New(t.TempDir(), "team1", s, &fakeGit{}, nil, func(id string) (string, string, bool) { return "", "", false }, Config{})
	if err := m.QueueForMerge("t1"); err != nil {
		t.Fatalf("QueueForMerge: %v", err)
	}
	if err := m.QueueForMerge("t1"); err != nil {
		t.Fatalf("QueueForMerge (second time): %v", err)
	}
	if n := len(m.Queue().Items()); n != 1 {
		t.Fatalf("expected queue length 1 after idempotent re-queue, got %d", n)
	}
}

func TestProcessNextMergeCleanMerge(t *testing.T) {
	s, base := newTestStore(t)
	now := time.Now()
	task := &models.Task{
		ID: "t1", Status: models.TaskStatusCompleted, CreatedAt: now,
		Priority: models.PriorityNormal,
		Result:   &models.TaskResult{FilesModified: []string{"a.go"}},
	}
	if err := s.AddTasks([]*models.Task{task}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	git := &fakeGit{currentBranch: "main"}
	m := New(base, "team1", s, git, nil, func(id string) (string, string, bool) {
		return filepath.Join(base, "wt"), "agent-a1", true
	}, Config{Strategy: StrategyMergeDirect})

	if err := m.QueueForMerge("t1"); err != nil {
		t.Fatalf("QueueForMerge: %v", err)
	}

	merged, err := m.ProcessNextMerge(context.Background())
	if err != nil {
		t.Fatalf("ProcessNextMerge: %v", err)
	}
	if merged == nil || merged.ID != "t1" {
		t.Fatalf("expected t1 to merge, got %+v", merged)
	}

	got := s.GetByID("t1")
	if got.MergeStatus != models.MergeStatusMerged {
		t.Fatalf("expected merged status, got %s", got.MergeStatus)
	}
}

func TestProcessNextMergeRespectsDependencyOrder(t *testing.T) {
	s, base := newTestStore(t)
	now := time.Now()
	t1 := &models.Task{ID: "t1", Status: models.TaskStatusCompleted, CreatedAt: now, Priority: models.PriorityNormal}
	t2 := &models.Task{ID: "t2", Status: models.TaskStatusCompleted, CreatedAt: now.Add(time.Second), Priority: models.PriorityNormal, DependsOn: []string{"t1"}}
	if err := s.AddTasks([]*models.Task{t1, t2}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	git := &fakeGit{currentBranch: "main"}
	m := New(base, "team1", s, git, nil, func(id string) (string, string, bool) {
		return filepath.Join(base, "wt-"+id), "agent-" + id, true
	}, Config{Strategy: StrategyMergeDirect})

	if err := m.QueueForMerge("t2"); err != nil {
		t.Fatalf("QueueForMerge t2: %v", err)
	}
	if err := m.QueueForMerge("t1"); err != nil {
		t.Fatalf("QueueForMerge t1: %v", err)
	}

	first, err := m.ProcessNextMerge(context.Background())
	if err != nil {
		t.Fatalf("ProcessNextMerge: %v", err)
	}
	if first == nil || first.ID != "t1" {
		t.Fatalf("expected t1 to merge before t2, got %+v", first)
	}

	second, err := m.ProcessNextMerge(context.Background())
	if err != nil {
		t.Fatalf("ProcessNextMerge: %v", err)
	}
	if second == nil || second.ID != "t2" {
		t.Fatalf("expected t2 next, got %+v", second)
	}
}

func TestMergeOneEmitsOverlapWarningOnOwnershipClash(t *testing.T) {
	s, base := newTestStore(t)
	now := time.Now()
	t1 := &models.Task{
		ID: "t1", Status: models.TaskStatusCompleted, CreatedAt: now, Priority: models.PriorityNormal,
		Result: &models.TaskResult{FilesModified: []string{"shared.go"}},
	}
	t2 := &models.Task{
		ID: "t2", Status: models.TaskStatusCompleted, CreatedAt: now.Add(time.Second), Priority: models.PriorityNormal,
		Result: &models.TaskResult{FilesModified: []string{"shared.go"}},
	}
	if err := s.AddTasks([]*models.Task{t1, t2}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	git := &fakeGit{currentBranch: "main"}
	m := New(base, "team1", s, git, nil, func(id string) (string, string, bool) {
		return filepath.Join(base, "wt-"+id), "agent-" + id, true
	}, Config{Strategy: StrategyMergeDirect})

	var warnings []FileConflictWarning
	m.SetOnOverlapWarning(func(w FileConflictWarning) { warnings = append(warnings, w) })

	if err := m.QueueForMerge("t1"); err != nil {
		t.Fatalf("QueueForMerge t1: %v", err)
	}
	if err := m.QueueForMerge("t2"); err != nil {
		t.Fatalf("QueueForMerge t2: %v", err)
	}

	if _, err := m.ProcessNextMerge(context.Background()); err != nil {
		t.Fatalf("ProcessNextMerge (t1): %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no overlap warning for the first owner, got %v", warnings)
	}

	if _, err := m.ProcessNextMerge(context.Background()); err != nil {
		t.Fatalf("ProcessNextMerge (t2): %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one overlap warning once t2 claims shared.go, got %d: %v", len(warnings), warnings)
	}
	if warnings[0].File != "shared.go" {
		t.Fatalf("expected warning for shared.go, got %+v", warnings[0])
	}
}

func TestProcessNextMergeConflictInvokesResolver(t *testing.T) {
	s, base := newTestStore(t)
	now := time.Now()
	task := &models.Task{ID: "t1", Status: models.TaskStatusCompleted, CreatedAt: now, Priority: models.PriorityNormal, Description: "fix README"}
	if err := s.AddTasks([]*models.Task{task}); err != nil {
		t.Fatalf("AddTasks: %v", err)
	}

	git := &fakeGit{currentBranch: "main", mergeErr: errConflict{}, conflicts: []string{"README.md"}}
	resolver := &fakeResolver{resolved: []string{}, git: git}
	m := New(base, "team1", s, git, resolver, func(id string) (string, string, bool) {
		return filepath.Join(base, "wt"), "agent-a1", true
	}, Config{Strategy: StrategyMergeDirect})

	if err := m.QueueForMerge("t1"); err != nil {
		t.Fatalf("QueueForMerge: %v", err)
	}
	merged, err := m.ProcessNextMerge(context.Background())
	if err != nil {
		t.Fatalf("ProcessNextMerge: %v", err)
	}
	if merged == nil {
		t.Fatalf("expected a processed task")
	}
	if !resolver.called {
		t.Fatalf("expected conflict resolver to be invoked")
	}
	got := s.GetByID("t1")
	if got.MergeStatus != models.MergeStatusMerged {
		t.Fatalf("expected merged after resolution, got %s", got.MergeStatus)
	}
}

type errConflict struct{}

func (errConflict) Error() string { return "merge conflict" }

type fakeResolver struct {
	called   bool
	resolved []string
	git      *fakeGit
}

func (f *fakeResolver) Resolve(ctx context.Context, workDir string, conflicts []string, taskDescription, mergeError string) error {
	f.called = true
	f.resolved = conflicts
	if f.git != nil {
		f.git.conflicts = nil
	}
	return nil
}

func TestDetectFileOverlapSeverity(t *testing.T) {
	now := time.Now()
	a := &models.Task{ID: "a", Files: []string{"x.go"}, CreatedAt: now}
	b := &models.Task{ID: "b", Files: []string{"x.go"}, CreatedAt: now}
	c := &models.Task{ID: "c", Files: []string{"x.go"}, CreatedAt: now}

	warnings := DetectFileOverlap([]*models.Task{a, b, c})
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(warnings))
	}
	if warnings[0].Severity != SeverityCritical {
		t.Fatalf("expected critical severity for 3 independent tasks, got %s", warnings[0].Severity)
	}
}

func TestDetectFileOverlapDependencyChainIsMedium(t *testing.T) {
	now := time.Now()
	a := &models.Task{ID: "a", Files: []string{"x.go"}, CreatedAt: now}
	b := &models.Task{ID: "b", Files: []string{"x.go"}, CreatedAt: now, DependsOn: []string{"a"}}

	warnings := DetectFileOverlap([]*models.Task{a, b})
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(warnings))
	}
	if warnings[0].Severity != SeverityMedium {
		t.Fatalf("expected medium severity for dependency-chain overlap, got %s", warnings[0].Severity)
	}
}

func TestTopoOrderWithCycleAppendsRemnantAtEnd(t *testing.T) {
	now := time.Now()
	a := &models.Task{ID: "a", DependsOn: []string{"b"}, CreatedAt: now}
	b := &models.Task{ID: "b", DependsOn: []string{"a"}, CreatedAt: now}
	c := &models.Task{ID: "c", CreatedAt: now}

	order := TopoOrder([]*models.Task{a, b, c})
	if len(order) != 3 {
		t.Fatalf("expected all 3 tasks in output, got %d", len(order))
	}
	if order[0].ID != "c" {
		t.Fatalf("expected acyclic task c first, got %s", order[0].ID)
	}
}
