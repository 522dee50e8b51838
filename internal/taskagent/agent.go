// Package taskagent implements the per-task worker: it runs
// up to three phases (Plan, Code, Verify) sequentially for a single task,
// Plan and Code each as one subprocess invocation against the assigned
// model and Verify as the project's verification command run through a
// shell, and reports an aggregate result to the lead orchestrator.
package taskagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ralphctl/ralph/internal/aiprocess"
	"github.com/ralphctl/ralph/internal/gitrunner"
	"github.com/ralphctl/ralph/pkg/models"
)

// Phase is one of the three sequential execution phases.
type Phase string

const (
	PhasePlan   Phase = "plan"
	PhaseCode   Phase = "code"
	PhaseVerify Phase = "verify"
)

// Options configure which phases run and how.
type Options struct {
	// EnablePlan, EnableCode, EnableVerify toggle phases; disabled phases
	// are skipped and do not count against aggregate success.
	EnablePlan   bool
	EnableCode   bool
	EnableVerify bool

	// VerifyCommand is the project's configured verification command,
	// run via a shell ("Verify" phase). Empty disables Verify
	// regardless of EnableVerify.
	VerifyCommand string

	RequirePlanApproval bool
}

// DefaultOptions runs all three phases.
func DefaultOptions() Options {
	return Options{EnablePlan: true, EnableCode: true, EnableVerify: true}
}

// Result is the observable outcome the orchestrator reads once a task
// finishes running.
type Result struct {
	Success       bool
	Branch        string
	Summary       string
	FilesModified []string
	Output        string
	Duration      time.Duration
}

// EventType identifies an observable task-agent notification.
type EventType string

const (
	EventPhaseChanged EventType = "OnPhaseChanged"
	EventOutput       EventType = "OnOutput"
	EventError        EventType = "OnError"
)

// Event is one fire-and-forget notification to the orchestrator.
type Event struct {
	Type      EventType
	TaskID    string
	AgentID   string
	Phase     Phase
	Message   string
	Timestamp time.Time
}

// Observer receives task-agent events. Implementations must not block.
type Observer func(Event)

// PlanApprover submits a plan and waits for approval, per the plan-approval
// sub-cycle. Implemented by the mailbox-backed coordinator in
// the orchestrator package; kept as an interface here so taskagent does not
// depend on the mailbox's concrete type or on "lead"'s identity.
type PlanApprover interface {
	SubmitPlan(ctx context.Context, taskID, plan string) (approved bool, feedback string, err error)
}

// Agent runs the phases of one task inside worktreePath on branch.
type Agent struct {
	AgentID      string
	TaskID       string
	WorktreePath string
	Branch       string
	Provider     aiprocess.Provider
	Git          gitrunner.Runner
	Runner       VerifyRunner
	Observer     Observer

	opts   Options
	output strings.Builder
}

// New returns an agent configured with opts.
func New(agentID, taskID, worktreePath, branch string, provider aiprocess.Provider, git gitrunner.Runner, runner VerifyRunner, opts Options, observer Observer) *Agent {
	return &Agent{
		AgentID:      agentID,
		TaskID:       taskID,
		WorktreePath: worktreePath,
		Branch:       branch,
		Provider:     provider,
		Git:          git,
		Runner:       runner,
		Observer:     observer,
		opts:         opts,
	}
}

func (a *Agent) emit(evt Event) {
	if a.Observer == nil {
		return
	}
	evt.TaskID = a.TaskID
	evt.AgentID = a.AgentID
	evt.Timestamp = time.Now()
	a.Observer(evt)
}

// Run executes the Plan, Code, and Verify phases in order (skipping those
// disabled) against t, returning the aggregate result. Success requires
// every *executed* phase to succeed.
func (a *Agent) Run(ctx context.Context, t *models.Task, approver PlanApprover) (*Result, error) {
	start := time.Now()
	var plan string

	if a.opts.EnablePlan {
		a.emit(Event{Type: EventPhaseChanged, Phase: PhasePlan, Message: "starting plan phase"})
		p, err := a.runPlan(ctx, t)
		if err != nil {
			a.emit(Event{Type: EventError, Phase: PhasePlan, Message: err.Error()})
			return a.failure(start, err), nil
		}
		plan = p

		if a.opts.RequirePlanApproval && approver != nil {
			approvedPlan, err := a.runPlanApprovalCycle(ctx, t, approver, plan)
			if err != nil {
				a.emit(Event{Type: EventError, Phase: PhasePlan, Message: err.Error()})
			}
			plan = approvedPlan
		}
	}

	if a.opts.EnableCode {
		a.emit(Event{Type: EventPhaseChanged, Phase: PhaseCode, Message: "starting code phase"})
		if err := a.runCode(ctx, t, plan); err != nil {
			a.emit(Event{Type: EventError, Phase: PhaseCode, Message: err.Error()})
			return a.failure(start, err), nil
		}
	}

	if a.opts.EnableVerify && a.opts.VerifyCommand != "" {
		a.emit(Event{Type: EventPhaseChanged, Phase: PhaseVerify, Message: "starting verify phase"})
		if err := a.runVerify(ctx, t); err != nil {
			a.emit(Event{Type: EventError, Phase: PhaseVerify, Message: err.Error()})
			return a.failure(start, err), nil
		}
	}

	files, _ := a.Git.ChangedFiles(a.Branch)
	return &Result{
		Success:       true,
		Branch:        a.Branch,
		Summary:       fmt.Sprintf("completed %s", t.Title),
		FilesModified: files,
		Output:        a.output.String(),
		Duration:      time.Since(start),
	}, nil
}

func (a *Agent) failure(start time.Time, err error) *Result {
	return &Result{
		Success:  false,
		Branch:   a.Branch,
		Summary:  err.Error(),
		Output:   a.output.String(),
		Duration: time.Since(start),
	}
}

func (a *Agent) runPlan(ctx context.Context, t *models.Task) (string, error) {
	res, err := aiprocess.Run(ctx, a.Provider, planPrompt(t), a.WorktreePath, a.onOutput)
	if err != nil {
		return "", fmt.Errorf("taskagent: plan phase: %w", err)
	}
	a.output.WriteString(res.Output)
	if !res.Success {
		return "", fmt.Errorf("taskagent: plan phase failed: %s", res.Error)
	}
	return text(res), nil
}

func (a *Agent) runCode(ctx context.Context, t *models.Task, plan string) error {
	res, err := aiprocess.Run(ctx, a.Provider, codePrompt(t, plan), a.WorktreePath, a.onOutput)
	if err != nil {
		return fmt.Errorf("taskagent: code phase: %w", err)
	}
	a.output.WriteString(res.Output)
	if !res.Success {
		return fmt.Errorf("taskagent: code phase failed: %s", res.Error)
	}

	hasChanges, err := a.Git.HasChanges()
	if err != nil {
		return fmt.Errorf("taskagent: check changes: %w", err)
	}
	if !hasChanges {
		return nil
	}
	if err := a.Git.Add("."); err != nil {
		return fmt.Errorf("taskagent: stage changes: %w", err)
	}
	if err := a.Git.Commit(fmt.Sprintf("%s: %s", t.ID, t.Title)); err != nil {
		return fmt.Errorf("taskagent: commit: %w", err)
	}
	return nil
}

func (a *Agent) runVerify(ctx context.Context, t *models.Task) error {
	out, err := a.Runner.RunShell(ctx, a.WorktreePath, a.opts.VerifyCommand)
	a.output.Write(out)
	if err != nil {
		return fmt.Errorf("taskagent: verify phase failed: %w: %s", err, string(out))
	}
	return nil
}

func (a *Agent) onOutput(line string) {
	a.emit(Event{Type: EventOutput, Message: line})
}

func text(res *aiprocess.Result) string {
	if res.ParsedText != "" {
		return res.ParsedText
	}
	return res.Output
}
