package taskagent

import (
	"context"
	"fmt"

	"github.com/ralphctl/ralph/internal/aiprocess"
	"github.com/ralphctl/ralph/pkg/models"
)

// MaxPlanRevisions bounds rejected-plan retries ("up to 3
// revisions"); after that the agent proceeds with the last plan, a soft
// cap, not fatal.
const MaxPlanRevisions = 3

// runPlanApprovalCycle submits plan to the lead via approver, waiting up to
// approver's own timeout for a verdict ("up to 10 min"). On
// rejection it revises and resubmits, up to MaxPlanRevisions times, then
// proceeds with the last plan regardless of the final verdict.
func (a *Agent) runPlanApprovalCycle(ctx context.Context, t *models.Task, approver PlanApprover, plan string) (string, error) {
	current := plan
	for attempt := 0; attempt < MaxPlanRevisions; attempt++ {
		approved, feedback, err := approver.SubmitPlan(ctx, t.ID, current)
		if err != nil {
			// Proceeds with the last plan regardless; the caller emits
			// this as a warning, not a hard failure.
			return current, fmt.Errorf("taskagent: plan approval: %w", err)
		}
		if approved {
			return current, nil
		}

		revised, err := a.revisePlan(ctx, t, current, feedback)
		if err != nil {
			return current, fmt.Errorf("taskagent: plan revision: %w", err)
		}
		current = revised
	}
	return current, nil
}

func (a *Agent) revisePlan(ctx context.Context, t *models.Task, previousPlan, feedback string) (string, error) {
	res, err := aiprocess.Run(ctx, a.Provider, planRevisionPrompt(t, previousPlan, feedback), a.WorktreePath, a.onOutput)
	if err != nil {
		return previousPlan, err
	}
	if !res.Success {
		return previousPlan, fmt.Errorf("revision subprocess failed: %s", res.Error)
	}
	return text(res), nil
}
