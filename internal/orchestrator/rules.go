package orchestrator

import (
	"strings"
	"time"

	"github.com/ralphctl/ralph/pkg/models"
)

// planTaskKeywords are the terms the plan-evaluation rule looks for
// ("at least two task-keyword hits"). Plans that describe concrete work
// tend to name these regardless of phrasing.
var planTaskKeywords = []string{
	"implement", "add", "create", "update", "fix", "test", "refactor",
	"remove", "modify", "write", "verify", "run", "check", "step",
}

// evaluatePlan applies the plan-submission acceptance rule: non-empty,
// at least 50 characters, and either at least two task-keyword hits or at
// least 200 characters.
func evaluatePlan(plan string) bool {
	trimmed := strings.TrimSpace(plan)
	if trimmed == "" || len(trimmed) < 50 {
		return false
	}
	if len(trimmed) >= 200 {
		return true
	}
	lower := strings.ToLower(trimmed)
	hits := 0
	for _, kw := range planTaskKeywords {
		if strings.Contains(lower, kw) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}

// isStuck reports whether an agent with no activity more recent than
// lastActivity should be logged as a stuck suspect, given avgTaskDuration
// and the configured multiplier.
func isStuck(now, lastActivity time.Time, avgTaskDuration time.Duration, multiplier float64) bool {
	if avgTaskDuration <= 0 {
		return false
	}
	threshold := time.Duration(float64(avgTaskDuration) * multiplier)
	return now.Sub(lastActivity) > threshold
}

// allAgentsTerminal reports whether every agent is resting, the agent half
// of the coordinate loop's exit condition.
func allAgentsTerminal(agents []*models.Agent) bool {
	for _, a := range agents {
		if !a.State.Terminal() {
			return false
		}
	}
	return true
}

// queueDrained reports whether the task store has no pending or
// in_progress work left.
func queueDrained(stats QueueStats) bool {
	return stats.Pending == 0 && stats.InProgress == 0
}

// exitCondition combines both halves of the coordinate loop's exit
// condition.
func exitCondition(stats QueueStats, agents []*models.Agent) bool {
	return queueDrained(stats) && allAgentsTerminal(agents)
}

// statsFor computes QueueStats from the store's current task list.
func statsFor(tasks []*models.Task) QueueStats {
	var s QueueStats
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusPending:
			s.Pending++
		case models.TaskStatusInProgress:
			s.InProgress++
		case models.TaskStatusCompleted:
			s.Completed++
		case models.TaskStatusFailed:
			s.Failed++
		}
	}
	return s
}

// averageTaskDuration returns the mean DurationMS across completed tasks
// with a recorded result, or 0 if none have completed yet.
func averageTaskDuration(tasks []*models.Task) time.Duration {
	var total time.Duration
	var n int
	for _, t := range tasks {
		if t.Result != nil && t.Status == models.TaskStatusCompleted {
			total += time.Duration(t.Result.DurationMS) * time.Millisecond
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
