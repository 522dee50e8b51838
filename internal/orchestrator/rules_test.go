package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/ralphctl/ralph/pkg/models"
)

func TestEvaluatePlanRejectsShortOrEmpty(t *testing.T) {
	if evaluatePlan("") {
		t.Fatalf("expected empty plan to be rejected")
	}
	if evaluatePlan("too short") {
		t.Fatalf("expected short plan to be rejected")
	}
}

func TestEvaluatePlanAcceptsLongPlan(t *testing.T) {
	plan := strings.Repeat("x", 200)
	if !evaluatePlan(plan) {
		t.Fatalf("expected >=200 char plan to be accepted regardless of keywords")
	}
}

func TestEvaluatePlanAcceptsTwoKeywordHits(t *testing.T) {
	plan := "First I will implement the parser, then add tests for it to be safe."
	if !evaluatePlan(plan) {
		t.Fatalf("expected plan with 2+ keyword hits to be accepted: %q", plan)
	}
}

func TestEvaluatePlanRejectsOneKeywordHit(t *testing.T) {
	plan := "This plan mentions fix but is otherwise just filler words with no other terms at all here."
	if evaluatePlan(plan) {
		t.Fatalf("expected plan with only 1 keyword hit and <200 chars to be rejected: %q (%d chars)", plan, len(plan))
	}
}

func TestIsStuck(t *testing.T) {
	now := time.Now()
	avg := 10 * time.Minute

	if isStuck(now, now.Add(-5*time.Minute), avg, 2.0) {
		t.Fatalf("expected agent active within threshold to not be stuck")
	}
	if !isStuck(now, now.Add(-25*time.Minute), avg, 2.0) {
		t.Fatalf("expected agent idle beyond 2x avg duration to be stuck")
	}
}

func TestIsStuckNoAverageYet(t *testing.T) {
	now := time.Now()
	if isStuck(now, now.Add(-time.Hour), 0, 2.0) {
		t.Fatalf("expected no stuck determination possible with zero average duration")
	}
}

func TestAllAgentsTerminal(t *testing.T) {
	agents := []*models.Agent{
		{ID: "a1", State: models.AgentStateIdle},
		{ID: "a2", State: models.AgentStateStopped},
	}
	if !allAgentsTerminal(agents) {
		t.Fatalf("expected all-terminal agents to report terminal")
	}

	agents = append(agents, &models.Agent{ID: "a3", State: models.AgentStateWorking})
	if allAgentsTerminal(agents) {
		t.Fatalf("expected a working agent to break all-terminal")
	}
}

func TestQueueDrainedAndExitCondition(t *testing.T) {
	stats := QueueStats{Pending: 0, InProgress: 0, Completed: 3}
	agents := []*models.Agent{{ID: "a1", State: models.AgentStateIdle}}

	if !queueDrained(stats) {
		t.Fatalf("expected drained queue stats to report drained")
	}
	if !exitCondition(stats, agents) {
		t.Fatalf("expected exit condition to be met")
	}

	stats.Pending = 1
	if exitCondition(stats, agents) {
		t.Fatalf("expected exit condition to fail with pending work remaining")
	}
}

func TestStatsFor(t *testing.T) {
	tasks := []*models.Task{
		{ID: "1", Status: models.TaskStatusPending},
		{ID: "2", Status: models.TaskStatusInProgress},
		{ID: "3", Status: models.TaskStatusCompleted},
		{ID: "4", Status: models.TaskStatusFailed},
		{ID: "5", Status: models.TaskStatusCompleted},
	}
	stats := statsFor(tasks)
	if stats.Pending != 1 || stats.InProgress != 1 || stats.Completed != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAverageTaskDuration(t *testing.T) {
	tasks := []*models.Task{
		{ID: "1", Status: models.TaskStatusCompleted, Result: &models.TaskResult{DurationMS: 1000}},
		{ID: "2", Status: models.TaskStatusCompleted, Result: &models.TaskResult{DurationMS: 3000}},
		{ID: "3", Status: models.TaskStatusFailed, Result: &models.TaskResult{DurationMS: 99999}},
	}
	avg := averageTaskDuration(tasks)
	if avg != 2*time.Second {
		t.Fatalf("expected 2s average, got %s", avg)
	}
}

func TestAverageTaskDurationNoCompletedTasks(t *testing.T) {
	tasks := []*models.Task{{ID: "1", Status: models.TaskStatusPending}}
	if avg := averageTaskDuration(tasks); avg != 0 {
		t.Fatalf("expected zero average with no completed tasks, got %s", avg)
	}
}
