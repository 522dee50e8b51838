// Package orchestrator implements the lead orchestrator: it
// decomposes a request into tasks, spawns a team of task agents, coordinates
// their work against the shared task store and mailboxes, synthesizes a
// summary, and drives the merge manager to land every completed task's
// branch before cleaning up.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ralphctl/ralph/internal/agentlifecycle"
	"github.com/ralphctl/ralph/internal/aiprocess"
	"github.com/ralphctl/ralph/internal/decompose"
	"github.com/ralphctl/ralph/internal/gitrunner"
	"github.com/ralphctl/ralph/internal/mailbox"
	"github.com/ralphctl/ralph/internal/merge"
	"github.com/ralphctl/ralph/internal/taskagent"
	"github.com/ralphctl/ralph/internal/taskstore"
	"github.com/ralphctl/ralph/internal/worktree"
	"github.com/ralphctl/ralph/pkg/models"
)

// Phase names one of the five stages of the pipeline.
type Phase string

const (
	PhaseDecompose    Phase = "decompose"
	PhaseSpawn        Phase = "spawn"
	PhaseCoordinate   Phase = "coordinate"
	PhaseSynthesize   Phase = "synthesize"
	PhaseMergeCleanup Phase = "merge_cleanup"
)

// planApprovalTimeout bounds how long a task agent's plan-approval
// sub-cycle waits for the lead's response ("wait up to 10 min").
const planApprovalTimeout = 10 * time.Minute

// idleBackoffStart and idleBackoffMax bound the doubling backoff an agent
// sleeps between claim attempts when nothing is claimable. A new message or
// a successful claim resets it.
const (
	idleBackoffStart = time.Second
	idleBackoffMax   = 30 * time.Second
)

// agentHandle is the orchestrator's runtime record for one spawned agent,
// distinct from the lifecycle manager's models.Agent snapshot.
type agentHandle struct {
	id          string
	provider    aiprocess.Provider
	worktree    *worktree.Worktree
	mailbox     *mailbox.Mailbox
	shutdownReq chan struct{}

	bufMu    sync.Mutex
	buffered []models.Message
}

// buffer holds a message for inclusion in the agent's next task context.
func (h *agentHandle) buffer(msg models.Message) {
	h.bufMu.Lock()
	h.buffered = append(h.buffered, msg)
	h.bufMu.Unlock()
}

// drainBuffered returns and clears the messages buffered since the last
// call.
func (h *agentHandle) drainBuffered() []models.Message {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	out := h.buffered
	h.buffered = nil
	return out
}

// Summary is the Synthesize phase's output.
type Summary struct {
	TaskStatuses map[string]summaryEntry
	Findings     []string
}

type summaryEntry struct {
	Status  models.TaskStatus
	AgentID string
}

// Orchestrator runs one team's Decompose -> Spawn -> Coordinate ->
// Synthesize -> Merge & cleanup pipeline.
type Orchestrator struct {
	cfg Config

	store      *taskstore.Store
	lifecycle  *agentlifecycle.Manager
	leadInbox  *mailbox.Mailbox
	worktrees  *worktree.Manager
	mergeMgr   *merge.Manager
	decomposer *decompose.Decomposer
	git        gitrunner.Runner
	runner     taskagent.VerifyRunner

	events chan Event

	mu     sync.Mutex
	agents map[string]*agentHandle

	findingsMu sync.Mutex
	findings   []string

	debug *DebugLogger
}

// New wires an orchestrator for cfg. git drives worktree and merge
// operations against cfg.RepoPath; resolver (may be nil) is invoked by the
// merge manager when a merge lands with conflicts; runner executes each
// task agent's Verify phase.
func New(cfg Config, git gitrunner.Runner, runner taskagent.VerifyRunner, resolver merge.Resolver) (*Orchestrator, error) {
	cfg.setDefaults()

	store := taskstore.New(cfg.BaseDir, cfg.Team)
	if cfg.StaleClaimTimeout > 0 {
		store.SetStaleClaimTimeout(cfg.StaleClaimTimeout)
	}
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("orchestrator: load task store: %w", err)
	}

	wtMgr, err := worktree.NewWithRunner(cfg.RepoPath, cfg.Team, git)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: worktree manager: %w", err)
	}

	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		lifecycle:  agentlifecycle.New(),
		leadInbox:  mailbox.New(cfg.BaseDir, cfg.Team, models.LeadAgentID),
		worktrees:  wtMgr,
		decomposer: decompose.New(cfg.LeadProvider),
		git:        git,
		runner:     runner,
		events:     make(chan Event, 256),
		agents:     make(map[string]*agentHandle),
		debug:      NewDebugLoggerForTeam(cfg.BaseDir, cfg.Team),
	}
	o.mergeMgr = merge.New(cfg.BaseDir, cfg.Team, store, git, resolver, o.locateWorktree, cfg.MergeConfig)
	o.mergeMgr.SetOnOverlapWarning(func(w merge.FileConflictWarning) {
		o.emit(Event{Type: EventOverlapWarning, Message: fmt.Sprintf("%s: %s", w.File, strings.Join(w.TaskIDs, ","))})
	})
	if err := o.writeTeamConfig(); err != nil {
		o.debug.Log("write team config: %v", err)
	}
	o.debug.Log("orchestrator initialized: team=%s agents=%d repo=%s", cfg.Team, cfg.AgentCount, cfg.RepoPath)
	return o, nil
}

// writeTeamConfig records the run's effective configuration at
// <base>/teams/<team>/config.json as a snapshot of what the team was
// started with; nothing in ralph reads the file back. Best-effort: a write
// failure is logged, not fatal.
func (o *Orchestrator) writeTeamConfig() error {
	modelRefs := make([]string, 0, o.cfg.AgentCount)
	for i := 0; i < o.cfg.AgentCount; i++ {
		modelRefs = append(modelRefs, providerRef(o.cfg.providerFor(i)))
	}
	snapshot := map[string]any{
		"team":          o.cfg.Team,
		"agentCount":    o.cfg.AgentCount,
		"assignment":    string(o.cfg.Assignment),
		"models":        modelRefs,
		"mergeStrategy": string(o.cfg.MergeConfig.Strategy),
		"leadDriven":    o.cfg.LeadDriven,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(o.cfg.BaseDir, "teams", o.cfg.Team, "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Store exposes the underlying task store for status-reporting callers
// (e.g. `ralph status`).
func (o *Orchestrator) Store() *taskstore.Store { return o.store }

// Lifecycle exposes the agent lifecycle manager for status-reporting
// callers.
func (o *Orchestrator) Lifecycle() *agentlifecycle.Manager { return o.lifecycle }

func (o *Orchestrator) locateWorktree(taskID string) (string, string, bool) {
	t := o.store.GetByID(taskID)
	if t == nil || t.ClaimedByAgentID == "" {
		return "", "", false
	}
	o.mu.Lock()
	h, ok := o.agents[t.ClaimedByAgentID]
	o.mu.Unlock()
	if !ok || h.worktree == nil {
		return "", "", false
	}
	return h.worktree.Path, h.worktree.BranchName, true
}

// Run executes the full pipeline for request and returns the synthesized
// summary once the coordinate loop's exit condition is met (or ctx is
// cancelled).
func (o *Orchestrator) Run(ctx context.Context, request string) (*Summary, error) {
	defer o.debug.Close()

	if err := o.runDecompose(ctx, request); err != nil {
		o.debug.Log("decompose failed: %v", err)
		return nil, err
	}
	if err := o.runSpawn(ctx); err != nil {
		o.debug.Log("spawn failed: %v", err)
		return nil, err
	}
	if err := o.runCoordinate(ctx); err != nil {
		o.debug.Log("coordinate failed: %v", err)
		return nil, err
	}
	summary := o.runSynthesize()
	if err := o.runMergeAndCleanup(ctx); err != nil {
		o.debug.Log("merge and cleanup failed: %v", err)
		return summary, err
	}
	o.debug.Log("run complete")
	return summary, nil
}

// runDecompose implements the Decompose phase: resume existing work if any is
// pending, else ask the lead AI to emit a TEAM_TASKS block.
func (o *Orchestrator) runDecompose(ctx context.Context, request string) error {
	o.emit(Event{Type: EventPhaseChanged, Phase: PhaseDecompose})

	existing := o.store.GetAll()
	for _, t := range existing {
		if t.Status == models.TaskStatusPending || t.Status == models.TaskStatusInProgress {
			return nil // resume: work is already queued
		}
	}

	tasks, err := o.decomposer.Decompose(ctx, request, o.cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("orchestrator: decompose: %w", err)
	}
	if err := o.store.AddTasks(tasks); err != nil {
		return fmt.Errorf("orchestrator: persist decomposed tasks: %w", err)
	}
	return nil
}

// runSpawn implements the Spawn phase: clean up stale worktrees from a
// prior crashed run, then create N agents.
func (o *Orchestrator) runSpawn(ctx context.Context) error {
	o.emit(Event{Type: EventPhaseChanged, Phase: PhaseSpawn})

	if _, err := o.worktrees.StartupCleanup(nil); err != nil {
		o.emit(Event{Type: EventError, Phase: PhaseSpawn, Message: err.Error()})
	}

	for i := 0; i < o.cfg.AgentCount; i++ {
		agentID := fmt.Sprintf("agent-%d", i+1)
		wt, err := o.worktrees.Create(agentID)
		if err != nil {
			return fmt.Errorf("orchestrator: create worktree for %s: %w", agentID, err)
		}
		if _, err := o.lifecycle.CreateWithID(agentID, providerRef(o.cfg.providerFor(i)), wt.Path, wt.BranchName); err != nil {
			return fmt.Errorf("orchestrator: register agent %s: %w", agentID, err)
		}
		if err := o.lifecycle.Transition(agentID, models.AgentStateReady); err != nil {
			return err
		}

		h := &agentHandle{
			id:          agentID,
			provider:    o.cfg.providerFor(i),
			worktree:    wt,
			mailbox:     mailbox.New(o.cfg.BaseDir, o.cfg.Team, agentID),
			shutdownReq: make(chan struct{}),
		}
		o.mu.Lock()
		o.agents[agentID] = h
		o.mu.Unlock()
		o.debug.Log("spawned %s at %s (branch %s)", agentID, wt.Path, wt.BranchName)
	}
	return nil
}

func providerRef(p aiprocess.Provider) string {
	if p.Model != "" {
		return p.Model
	}
	return p.Executable
}

// runCoordinate implements the Coordinate phase: runs every agent's claim loop
// concurrently with the lead's inbox/stuck-detection/exit-condition loop,
// returning once the exit condition is met or ctx is cancelled.
func (o *Orchestrator) runCoordinate(ctx context.Context) error {
	o.emit(Event{Type: EventPhaseChanged, Phase: PhaseCoordinate})

	coordCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	o.mu.Lock()
	handles := make([]*agentHandle, 0, len(o.agents))
	for _, h := range o.agents {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		wg.Add(1)
		go func(h *agentHandle) {
			defer wg.Done()
			o.runAgentLoop(coordCtx, h)
		}(h)
	}

	err := o.runLeadLoop(coordCtx)
	cancel()
	wg.Wait()
	return err
}

// runLeadLoop is the lead's side of coordination: drains its inbox,
// evaluates plan submissions, detects stuck agents, emits QueueUpdate, and
// watches for the exit condition.
func (o *Orchestrator) runLeadLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.CoordinateInterval)
	defer ticker.Stop()

	dispositioner := newLeadDispositioner(o.cfg.LeadProvider, o.cfg.RepoPath, o.cfg.MaxUnparseableDecisions)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		msgs, err := o.leadInbox.Poll()
		if err != nil {
			o.emit(Event{Type: EventError, Phase: PhaseCoordinate, Message: err.Error()})
		}
		for _, msg := range msgs {
			o.handleLeadMessage(ctx, msg)
		}

		tasks := o.store.GetAll()
		stats := statsFor(tasks)
		o.detectStuckAgents(tasks)
		o.emit(Event{Type: EventQueueUpdate, Phase: PhaseCoordinate, Stats: stats})

		if o.cfg.LeadDriven {
			o.dispositionFailedTasks(ctx, dispositioner, tasks)
		}

		agents := o.lifecycle.All()
		if exitCondition(stats, agents) {
			return nil
		}
	}
}

func (o *Orchestrator) handleLeadMessage(ctx context.Context, msg models.Message) {
	switch msg.Type {
	case models.MessagePlanSubmission:
		approved := evaluatePlan(msg.Content)
		content := "rejected"
		if approved {
			content = "approved"
		}
		_ = o.leadInbox.Send(msg.From, models.MessagePlanApproval, content, msg.Metadata)
		o.emit(Event{Type: EventPlanEvaluated, AgentID: msg.From, Message: content})
	case models.MessageStatusUpdate:
		// Per-agent monitoring snapshot is derived from lifecycle.Stats;
		// nothing further to record here beyond the status_update's
		// having been observed by detectStuckAgents below.
	case models.MessageText:
		o.findingsMu.Lock()
		o.findings = append(o.findings, msg.Content)
		o.findingsMu.Unlock()
	}
}

// detectStuckAgents logs (via EventAgentStuck) every agent in working for
// more than 2x the team's average task duration with no recent activity.
// No automatic kill; the lead just surfaces it for visibility.
func (o *Orchestrator) detectStuckAgents(tasks []*models.Task) {
	avg := averageTaskDuration(tasks)
	if avg <= 0 {
		return
	}
	now := time.Now()
	for _, a := range o.lifecycle.All() {
		if a.State != models.AgentStateWorking {
			continue
		}
		if isStuck(now, a.Stats.LastActivity, avg, o.cfg.StuckMultiplier) {
			o.emit(Event{Type: EventAgentStuck, AgentID: a.ID, Message: "no recent activity"})
			o.debug.Log("agent %s stuck: last activity %s, average task duration %s", a.ID, a.Stats.LastActivity, avg)
		}
	}
}

// dispositionFailedTasks consults the lead AI (or fast-paths) for every
// task that has exhausted its retries. Each task is dispositioned at most
// once; the coordinate loop revisits the same failed task every tick, and
// re-asking the lead each second would hammer the AI for a decision it has
// already made.
func (o *Orchestrator) dispositionFailedTasks(ctx context.Context, d *leadDispositioner, tasks []*models.Task) {
	for _, t := range tasks {
		if t.Status != models.TaskStatusFailed || d.Decided(t.ID) {
			continue
		}
		decision, err := d.Disposition(ctx, t.ID, t.Error)
		if err != nil {
			o.emit(Event{Type: EventError, TaskID: t.ID, Message: err.Error()})
			continue
		}
		o.debug.Log("disposition for failed task %s: %s", t.ID, decision.Action)
		switch decision.Action {
		case decompose.ActionRetryTask:
			_ = o.store.Retry(t.ID)
		case decompose.ActionSkipTask:
			// leave as failed; no further action.
		case decompose.ActionDeclareComplete:
			_ = o.store.Complete(t.ID, &models.TaskResult{
				Success:     true,
				Summary:     "declared complete by lead: " + decision.Reason,
				CompletedAt: time.Now(),
			})
		}
	}
}

// runAgentLoop implements one task agent's working loop: poll the inbox,
// claim, run phases, report result, repeat until shutdown is requested or
// ctx is cancelled.
func (o *Orchestrator) runAgentLoop(ctx context.Context, h *agentHandle) {
	backoff := idleBackoffStart
	for {
		select {
		case <-ctx.Done():
			_ = o.lifecycle.Transition(h.id, models.AgentStateShuttingDown)
			_ = o.lifecycle.Transition(h.id, models.AgentStateStopped)
			return
		case <-h.shutdownReq:
			_ = o.lifecycle.Transition(h.id, models.AgentStateShuttingDown)
			_ = o.lifecycle.Transition(h.id, models.AgentStateStopped)
			return
		default:
		}

		// Inbox is checked before each claim attempt; a shutdown_request
		// arriving while the agent is between tasks is accepted
		// immediately. A new message also resets the idle backoff.
		hadMessages := false
		if o.pollAgentInbox(h, false, &hadMessages) {
			_ = o.lifecycle.Transition(h.id, models.AgentStateShuttingDown)
			_ = o.lifecycle.Transition(h.id, models.AgentStateStopped)
			return
		}
		if hadMessages {
			backoff = idleBackoffStart
		}

		if err := o.lifecycle.Transition(h.id, models.AgentStateClaiming); err != nil {
			time.Sleep(idleBackoffStart)
			continue
		}

		t, err := o.store.TryClaim(h.id)
		if err != nil || t == nil {
			_ = o.lifecycle.Transition(h.id, models.AgentStateIdle)
			select {
			case <-ctx.Done():
				return
			case <-h.shutdownReq:
				_ = o.lifecycle.Transition(h.id, models.AgentStateShuttingDown)
				_ = o.lifecycle.Transition(h.id, models.AgentStateStopped)
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > idleBackoffMax {
				backoff = idleBackoffMax
			}
			continue
		}
		backoff = idleBackoffStart

		o.lifecycle.SetCurrentTask(h.id, t.ID)
		_ = o.lifecycle.Transition(h.id, models.AgentStateWorking)

		// A shutdown_request that slipped in after the claim is
		// acknowledged with accepted=false; the agent finishes this task
		// first, then stops.
		stopAfterTask := o.pollAgentInbox(h, true, nil)

		// Only a successful task passes through merging; a failed one has
		// nothing to merge and goes working -> error, then recovers to idle
		// for the next claim.
		if o.runTask(ctx, h, t) {
			_ = o.lifecycle.Transition(h.id, models.AgentStateMerging)
			_ = o.mergeMgr.QueueForMerge(t.ID)
			_ = o.lifecycle.Transition(h.id, models.AgentStateIdle)
		} else {
			_ = o.lifecycle.Transition(h.id, models.AgentStateError)
			_ = o.lifecycle.Transition(h.id, models.AgentStateIdle)
		}
		o.lifecycle.SetCurrentTask(h.id, "")

		if stopAfterTask {
			_ = o.lifecycle.Transition(h.id, models.AgentStateShuttingDown)
			_ = o.lifecycle.Transition(h.id, models.AgentStateStopped)
			return
		}
	}
}

// pollAgentInbox drains h's inbox. shutdown_request triggers the graceful
// shutdown protocol: acknowledged with accepted=true when the agent is
// between tasks, accepted=false plus a reason when it is working.
// text, broadcast, and plan_approval messages are buffered into the agent's
// context for its next task; task_assignment is logged but does not bypass
// normal claiming. Returns true when a shutdown was requested; hadMessages,
// if non-nil, reports whether anything arrived at all.
func (o *Orchestrator) pollAgentInbox(h *agentHandle, working bool, hadMessages *bool) bool {
	msgs, err := h.mailbox.Poll()
	if err != nil {
		o.emit(Event{Type: EventError, AgentID: h.id, Message: err.Error()})
		return false
	}
	if hadMessages != nil {
		*hadMessages = len(msgs) > 0
	}

	shutdown := false
	for _, msg := range msgs {
		switch msg.Type {
		case models.MessageShutdownRequest:
			shutdown = true
			content := "accepted"
			meta := map[string]string{"accepted": "true"}
			if working {
				content = "finishing current task first"
				meta = map[string]string{"accepted": "false", "reason": "task in progress"}
			}
			_ = h.mailbox.Send(msg.From, models.MessageShutdownResponse, content, meta)
		case models.MessageText, models.MessageBroadcast, models.MessagePlanApproval:
			h.buffer(msg)
		case models.MessageTaskAssignment:
			o.debug.Log("agent %s received task_assignment: %s", h.id, msg.Content)
		}
	}
	return shutdown
}

// runTask runs one task agent invocation for t, persists the outcome to
// the task store, and reports whether the task succeeded so the caller can
// route the agent's lifecycle accordingly.
func (o *Orchestrator) runTask(ctx context.Context, h *agentHandle, t *models.Task) bool {
	start := time.Now()
	approver := &mailboxApprover{mb: h.mailbox}

	// Messages buffered since the agent's last task ride along as context.
	if notes := h.drainBuffered(); len(notes) > 0 {
		var b strings.Builder
		b.WriteString(t.Description)
		b.WriteString("\n\nRecent team messages:\n")
		for _, m := range notes {
			fmt.Fprintf(&b, "- [%s] %s\n", m.From, m.Content)
		}
		t.Description = b.String()
	}

	ta := taskagent.New(h.id, t.ID, h.worktree.Path, h.worktree.BranchName, h.provider, o.git, o.runner, o.cfg.AgentOptions, func(evt taskagent.Event) {
		if evt.Type == taskagent.EventOutput {
			return
		}
		o.emit(Event{Type: EventPhaseChanged, Phase: PhaseCoordinate, TaskID: t.ID, AgentID: h.id, Message: evt.Message})
	})

	result, err := ta.Run(ctx, t, approver)
	if err != nil {
		o.lifecycle.RecordTaskFailed(h.id)
		_ = o.store.Fail(t.ID, err.Error())
		return false
	}

	duration := time.Since(start)
	if !result.Success {
		o.lifecycle.RecordTaskFailed(h.id)
		_ = o.store.Fail(t.ID, result.Summary)
		return false
	}

	o.lifecycle.RecordTaskCompleted(h.id, int64(len(result.Output)), duration)
	_ = o.store.Complete(t.ID, &models.TaskResult{
		Success:       true,
		Summary:       result.Summary,
		FilesModified: result.FilesModified,
		Output:        result.Output,
		DurationMS:    duration.Milliseconds(),
		CompletedAt:   time.Now(),
	})
	return true
}

// runSynthesize assembles the Synthesize phase's summary report.
func (o *Orchestrator) runSynthesize() *Summary {
	o.emit(Event{Type: EventPhaseChanged, Phase: PhaseSynthesize})

	s := &Summary{TaskStatuses: make(map[string]summaryEntry)}
	for _, t := range o.store.GetAll() {
		s.TaskStatuses[t.ID] = summaryEntry{Status: t.Status, AgentID: t.ClaimedByAgentID}
	}
	o.findingsMu.Lock()
	s.Findings = append([]string(nil), o.findings...)
	o.findingsMu.Unlock()
	return s
}

// runMergeAndCleanup implements the Merge & cleanup phase: merge every completed
// task in dependency order, then tear down agent worktrees and delete the
// store's persistence files.
func (o *Orchestrator) runMergeAndCleanup(ctx context.Context) error {
	o.emit(Event{Type: EventPhaseChanged, Phase: PhaseMergeCleanup})

	for _, t := range o.store.GetAll() {
		_ = o.mergeMgr.QueueForMerge(t.ID)
	}
	merged, err := o.mergeMgr.ProcessAllMerges(ctx)
	for _, t := range merged {
		o.emit(Event{Type: EventTaskMerged, TaskID: t.ID})
	}
	for _, w := range o.mergeMgr.DetectFileOverlap(o.store.GetAll()) {
		o.emit(Event{Type: EventOverlapWarning, Message: fmt.Sprintf("%s: %s", w.File, strings.Join(w.TaskIDs, ","))})
	}
	if err != nil {
		o.emit(Event{Type: EventError, Phase: PhaseMergeCleanup, Message: err.Error()})
	}

	o.mu.Lock()
	handles := make([]*agentHandle, 0, len(o.agents))
	for _, h := range o.agents {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		if t := o.taskForAgent(h.id); t != nil && t.Status == models.TaskStatusFailed && !o.cfg.CleanupWorktreesOnFailedTask {
			continue
		}
		_ = o.worktrees.Remove(h.worktree.Path, true)
		o.lifecycle.Remove(h.id)
	}

	if delErr := o.store.Delete(); delErr != nil {
		o.emit(Event{Type: EventError, Phase: PhaseMergeCleanup, Message: delErr.Error()})
	}

	return err
}

func (o *Orchestrator) taskForAgent(agentID string) *models.Task {
	for _, t := range o.store.GetAll() {
		if t.ClaimedByAgentID == agentID {
			return t
		}
	}
	return nil
}

// mailboxApprover bridges a task agent's plan-approval sub-cycle to the
// lead via that agent's own mailbox: submit sends
// plan_submission to "lead" and waits on the agent's own inbox for
// plan_approval, which the lead loop's handleLeadMessage produces.
type mailboxApprover struct {
	mb *mailbox.Mailbox
}

func (a *mailboxApprover) SubmitPlan(ctx context.Context, taskID, plan string) (bool, string, error) {
	if err := a.mb.Send(models.LeadAgentID, models.MessagePlanSubmission, plan, map[string]string{"taskId": taskID}); err != nil {
		return false, "", fmt.Errorf("orchestrator: submit plan: %w", err)
	}
	msg, err := a.mb.WaitForMessage(models.MessagePlanApproval, planApprovalTimeout)
	if err != nil {
		return false, "", fmt.Errorf("orchestrator: await plan approval: %w", err)
	}
	if msg == nil {
		// Timeout is a soft cap: the error return makes the approval cycle
		// proceed with the last plan and surface a warning, not revise.
		return false, "", fmt.Errorf("orchestrator: plan approval timed out after %s", planApprovalTimeout)
	}
	approved := strings.EqualFold(strings.TrimSpace(msg.Content), "approved")
	return approved, msg.Content, nil
}
