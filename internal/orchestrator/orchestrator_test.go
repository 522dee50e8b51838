package orchestrator

import (
	"testing"
	"time"

	"github.com/ralphctl/ralph/internal/aiprocess"
	"github.com/ralphctl/ralph/internal/mailbox"
	"github.com/ralphctl/ralph/internal/taskagent"
	"github.com/ralphctl/ralph/pkg/models"
)

// fakeGit is a no-op stand-in for gitrunner.Runner, sufficient for
// construction-only tests that never actually shell out.
type fakeGit struct{}

func (fakeGit) CurrentBranch() (string, error)                    { return "main", nil }
func (fakeGit) CreateAndCheckoutBranch(name string) error         { return nil }
func (fakeGit) CheckoutBranch(name string) error                  { return nil }
func (fakeGit) BranchExists(name string) (bool, error)             { return false, nil }
func (fakeGit) DeleteBranch(name string) error                     { return nil }
func (fakeGit) HeadSHA() (string, error)                           { return "deadbeef", nil }
func (fakeGit) Status() (string, error)                            { return "", nil }
func (fakeGit) HasChanges() (bool, error)                          { return false, nil }
func (fakeGit) ChangedFiles(base string) ([]string, error)         { return nil, nil }
func (fakeGit) ChangedFilesRelative(b, r string) ([]string, error)  { return nil, nil }
func (fakeGit) ConflictedFiles() ([]string, error)                 { return nil, nil }
func (fakeGit) Add(paths ...string) error                          { return nil }
func (fakeGit) Commit(message string) error                        { return nil }
func (fakeGit) MergeNoFF(branch string) error                       { return nil }
func (fakeGit) MergeAbort() error                                   { return nil }
func (fakeGit) HasConflicts() (bool, error)                        { return false, nil }
func (fakeGit) Rebase(base string) error                            { return nil }
func (fakeGit) RebaseAbort() error                                  { return nil }
func (fakeGit) PullFFOnly() error                                   { return nil }
func (fakeGit) CheckoutOurs(path string) error                      { return nil }
func (fakeGit) CheckoutTheirs(path string) error                    { return nil }
func (fakeGit) Run(args ...string) (string, error)                  { return "", nil }
func (fakeGit) WorktreeAddNewBranch(path, branch string) error      { return nil }
func (fakeGit) WorktreeRemove(path string) error                    { return nil }
func (fakeGit) WorktreeRemoveOptionalForce(p string, f bool) error  { return nil }
func (fakeGit) WorktreeUnlock(path string) error                    { return nil }
func (fakeGit) WorktreeListPorcelain() (string, error)              { return "", nil }
func (fakeGit) WorktreePrune() error                                { return nil }
func (fakeGit) WorktreePruneExpireNow() error                       { return nil }

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Team:         "team1",
		BaseDir:      t.TempDir(),
		RepoPath:     t.TempDir(),
		LeadProvider: aiprocess.Provider{Executable: "true"},
	}
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(testConfig(t), fakeGit{}, taskagent.ShellRunner{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNewOrchestrator(t *testing.T) {
	o := newTestOrchestrator(t)
	if o.cfg.Team != "team1" {
		t.Fatalf("expected config to be retained, got team %q", o.cfg.Team)
	}
	if o.Store() == nil || o.Lifecycle() == nil {
		t.Fatalf("expected store and lifecycle manager to be wired")
	}
}

func TestNewOrchestratorClampsAgentCount(t *testing.T) {
	cfg := testConfig(t)
	cfg.AgentCount = 99
	o, err := New(cfg, fakeGit{}, taskagent.ShellRunner{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if o.cfg.AgentCount != maxAgents {
		t.Fatalf("expected agent count clamped to %d, got %d", maxAgents, o.cfg.AgentCount)
	}

	cfg2 := testConfig(t)
	cfg2.AgentCount = 1
	o2, err := New(cfg2, fakeGit{}, taskagent.ShellRunner{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if o2.cfg.AgentCount != minAgents {
		t.Fatalf("expected agent count clamped to %d, got %d", minAgents, o2.cfg.AgentCount)
	}
}

func TestNewOrchestratorDefaults(t *testing.T) {
	o := newTestOrchestrator(t)
	if o.cfg.Assignment != AssignSameAsLead {
		t.Fatalf("expected default assignment strategy, got %s", o.cfg.Assignment)
	}
	if o.cfg.CoordinateInterval != time.Second {
		t.Fatalf("expected default coordinate interval of 1s, got %s", o.cfg.CoordinateInterval)
	}
	if o.cfg.MaxUnparseableDecisions != DefaultMaxUnparseableDecisions {
		t.Fatalf("expected default max unparseable decisions, got %d", o.cfg.MaxUnparseableDecisions)
	}
}

func TestOrchestratorEventsChannelExists(t *testing.T) {
	o := newTestOrchestrator(t)
	if o.Events() == nil {
		t.Fatalf("expected non-nil events channel")
	}
}

func TestOrchestratorEmitDeliversEvent(t *testing.T) {
	o := newTestOrchestrator(t)
	o.emit(Event{Type: EventQueueUpdate, Message: "test"})

	select {
	case evt := <-o.Events():
		if evt.Type != EventQueueUpdate || evt.Message != "test" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected event to be delivered")
	}
}

func TestConfigProviderForSameAsLead(t *testing.T) {
	cfg := Config{LeadProvider: aiprocess.Provider{Executable: "lead"}}
	cfg.setDefaults()
	if got := cfg.providerFor(0); got.Executable != "lead" {
		t.Fatalf("expected lead provider, got %+v", got)
	}
}

func TestConfigProviderForRoundRobin(t *testing.T) {
	cfg := Config{
		Assignment:     AssignRoundRobin,
		AgentProviders: []aiprocess.Provider{{Executable: "a"}, {Executable: "b"}},
	}
	cfg.setDefaults()
	if got := cfg.providerFor(0); got.Executable != "a" {
		t.Fatalf("expected provider a, got %+v", got)
	}
	if got := cfg.providerFor(2); got.Executable != "a" {
		t.Fatalf("expected round-robin wraparound to a, got %+v", got)
	}
}

func TestAddTaskMutation(t *testing.T) {
	o := newTestOrchestrator(t)
	if err := o.AddTask(&models.Task{ID: "t1", Title: "do thing"}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if o.store.GetByID("t1") == nil {
		t.Fatalf("expected task t1 to be present in the store")
	}
}

func TestCancelTaskMutation(t *testing.T) {
	o := newTestOrchestrator(t)
	if err := o.AddTask(&models.Task{ID: "t1", Title: "do thing", MaxRetries: 3}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := o.CancelTask("t1"); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	got := o.store.GetByID("t1")
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("expected cancelled task to be failed, got %s", got.Status)
	}
}

func TestRequestShutdownUnknownAgent(t *testing.T) {
	o := newTestOrchestrator(t)
	if err := o.RequestShutdown("nonexistent"); err == nil {
		t.Fatalf("expected error for unknown agent")
	}
}

func TestPollAgentInboxShutdownRequestAcknowledged(t *testing.T) {
	o := newTestOrchestrator(t)
	h := &agentHandle{
		id:          "agent-1",
		mailbox:     mailbox.New(o.cfg.BaseDir, o.cfg.Team, "agent-1"),
		shutdownReq: make(chan struct{}),
	}

	if err := o.leadInbox.Send("agent-1", models.MessageShutdownRequest, "wind down", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !o.pollAgentInbox(h, false, nil) {
		t.Fatalf("expected shutdown_request to be reported")
	}

	msgs, err := o.leadInbox.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Type != models.MessageShutdownResponse {
		t.Fatalf("expected a shutdown_response in the lead inbox, got %+v", msgs)
	}
	if msgs[0].Metadata["accepted"] != "true" {
		t.Fatalf("expected accepted=true when the agent is between tasks, got %+v", msgs[0].Metadata)
	}
}

func TestPollAgentInboxShutdownWhileWorkingDeclines(t *testing.T) {
	o := newTestOrchestrator(t)
	h := &agentHandle{
		id:          "agent-1",
		mailbox:     mailbox.New(o.cfg.BaseDir, o.cfg.Team, "agent-1"),
		shutdownReq: make(chan struct{}),
	}

	if err := o.leadInbox.Send("agent-1", models.MessageShutdownRequest, "wind down", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !o.pollAgentInbox(h, true, nil) {
		t.Fatalf("expected shutdown_request to be reported")
	}

	msgs, err := o.leadInbox.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Metadata["accepted"] != "false" {
		t.Fatalf("expected accepted=false while working, got %+v", msgs)
	}
}

func TestPollAgentInboxBuffersTeamMessages(t *testing.T) {
	o := newTestOrchestrator(t)
	h := &agentHandle{
		id:          "agent-1",
		mailbox:     mailbox.New(o.cfg.BaseDir, o.cfg.Team, "agent-1"),
		shutdownReq: make(chan struct{}),
	}

	if err := o.leadInbox.Send("agent-1", models.MessageText, "heads up", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := o.leadInbox.Send("agent-1", models.MessageBroadcast, "begin phase 2", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if o.pollAgentInbox(h, false, nil) {
		t.Fatalf("text/broadcast messages must not trigger shutdown")
	}

	buffered := h.drainBuffered()
	if len(buffered) != 2 {
		t.Fatalf("expected 2 buffered messages, got %d", len(buffered))
	}
	if buffered[0].Content != "heads up" || buffered[1].Content != "begin phase 2" {
		t.Fatalf("unexpected buffered contents: %+v", buffered)
	}
	if got := h.drainBuffered(); len(got) != 0 {
		t.Fatalf("expected drain to clear the buffer, got %+v", got)
	}
}
